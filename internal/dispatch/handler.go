package dispatch

import (
	"context"

	"github.com/Strob0t/CareForge/internal/domain/result"
)

// HandlerFunc performs the operation described by a request.
type HandlerFunc[Req Request[R], R any] func(ctx context.Context, req Req) result.Result[R]

// ValidatorFunc checks a request and returns the violations it finds, or nil.
// Validators must be read-only: side-effecting checks belong in the handler.
type ValidatorFunc[Req any] func(ctx context.Context, req Req) []result.Error

// Check builds a validator that reports a single validation error when ok
// returns false.
func Check[Req any](code, message string, ok func(Req) bool) ValidatorFunc[Req] {
	return func(_ context.Context, req Req) []result.Error {
		if ok(req) {
			return nil
		}
		return []result.Error{result.Validation(code, message)}
	}
}

// handleFunc and validateFunc are the type-erased forms stored in the registry.
type (
	handleFunc   func(ctx context.Context, req any) result.Result[any]
	validateFunc func(ctx context.Context, req any) []result.Error
)

func eraseHandler[Req Request[R], R any](h HandlerFunc[Req, R]) handleFunc {
	return func(ctx context.Context, req any) result.Result[any] {
		return result.Map(h(ctx, req.(Req)), func(v R) any { return v })
	}
}

func eraseValidator[Req any](v ValidatorFunc[Req]) validateFunc {
	return func(ctx context.Context, req any) []result.Error {
		return v(ctx, req.(Req))
	}
}
