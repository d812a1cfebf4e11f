package dispatch

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/logger"
)

// Call describes one dispatch as seen by behaviors.
type Call struct {
	Name    string
	Request any
	typ     reflect.Type
}

// Next continues the dispatch chain.
type Next func(ctx context.Context, call Call) result.Result[any]

// Behavior wraps every dispatch for cross-cutting concerns such as logging,
// tracing or authorization. A behavior may short-circuit by not calling next.
type Behavior func(next Next) Next

// chain wraps core with behaviors so that the first behavior is outermost.
func chain(core Next, behaviors []Behavior) Next {
	wrapped := core
	for i := len(behaviors) - 1; i >= 0; i-- {
		wrapped = behaviors[i](wrapped)
	}
	return wrapped
}

// Logging logs every dispatch with its outcome and duration. Unexpected
// failures are logged at error level, other failures at info, successes at debug.
func Logging(l *slog.Logger) Behavior {
	return func(next Next) Next {
		return func(ctx context.Context, call Call) result.Result[any] {
			start := time.Now()
			out := next(ctx, call)

			attrs := []any{
				"request_type", call.Name,
				"request_id", logger.RequestID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if out.IsSuccess() {
				l.DebugContext(ctx, "dispatch completed", append(attrs, "outcome", "success")...)
				return out
			}

			e := out.Err()
			attrs = append(attrs, "outcome", "failure", "code", e.Code, "kind", string(e.Kind))
			if e.Kind == result.KindUnexpected {
				l.ErrorContext(ctx, "dispatch failed", append(attrs, "error", e.Message)...)
			} else {
				l.InfoContext(ctx, "dispatch failed", attrs...)
			}
			return out
		}
	}
}

// RoleRestricted is implemented by requests that only callers holding one of
// the returned roles may dispatch.
type RoleRestricted interface {
	RequiredRoles() []string
}

// CodeForbiddenRole is the failure code produced by Authorize.
const CodeForbiddenRole = "FORBIDDEN_ROLE"

// Authorize rejects RoleRestricted requests whose caller, as reported by
// roleOf, holds none of the required roles. Other requests pass through.
func Authorize(roleOf func(ctx context.Context) (role string, ok bool)) Behavior {
	return func(next Next) Next {
		return func(ctx context.Context, call Call) result.Result[any] {
			rr, restricted := call.Request.(RoleRestricted)
			if !restricted {
				return next(ctx, call)
			}
			role, ok := roleOf(ctx)
			if !ok {
				return result.Failure[any](result.Unauthorized(result.CodeUnauthorized, "authentication required"))
			}
			if !slices.Contains(rr.RequiredRoles(), role) {
				return result.Failure[any](result.Unauthorized(CodeForbiddenRole,
					"role "+role+" may not perform "+call.Name))
			}
			return next(ctx, call)
		}
	}
}
