package middleware

import (
	"net/http"

	"github.com/Strob0t/CareForge/internal/domain/result"
)

// RequireRole returns middleware that restricts access to callers holding
// one of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, result.CodeUnauthorized, "authorization required")
				return
			}

			if !allowed[p.Role] {
				writeError(w, http.StatusForbidden, "FORBIDDEN_ROLE", "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
