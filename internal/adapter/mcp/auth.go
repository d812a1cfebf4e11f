package mcp

import (
	"context"
	"net/http"

	"github.com/Strob0t/CareForge/internal/middleware"
)

// principalContext carries the caller resolved by the auth middleware into
// the context tool handlers run with.
func principalContext(ctx context.Context, r *http.Request) context.Context {
	if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		return middleware.WithPrincipal(ctx, p)
	}
	return ctx
}
