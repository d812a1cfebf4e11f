// Package dispatch routes typed requests to exactly one handler, running the
// validators bound to the request type first, and returns a uniform
// result.Result to the caller.
//
// A request type declares its result type by embedding Returns:
//
//	type CreateRole struct {
//		dispatch.Returns[bool]
//		Name string
//	}
//
// Handlers and validators are bound on a Builder at startup. Build checks that
// every declared request type has a handler and freezes the registry; the
// resulting Dispatcher is read-only and safe for concurrent use.
//
//	b := dispatch.NewBuilder()
//	dispatch.Validate(b, requireName)
//	dispatch.Register(b, roles.createRole)
//	d, err := b.Build()
//
//	res := dispatch.Send[bool](ctx, d, CreateRole{Name: "Pharmacist"})
package dispatch

import "reflect"

// Request is implemented by request structs that embed Returns[R]. R is the
// type of value carried by a successful outcome.
type Request[R any] interface {
	resultType() R
}

// Returns binds a request struct to its result type R. Embed it by value.
type Returns[R any] struct{}

func (Returns[R]) resultType() (zero R) { return zero }

// typeName returns the display name used in logs and errors.
func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
