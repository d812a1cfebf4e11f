package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"slices"

	"github.com/Strob0t/CareForge/internal/domain/result"
)

// Dispatcher routes requests through their validators and handler.
// It is immutable after Builder.Build and shared by all goroutines.
type Dispatcher struct {
	pipelines   map[reflect.Type]*pipeline
	chain       Next
	stopOnFirst bool
	logger      *slog.Logger
}

// Send dispatches req and returns the handler's outcome, a validation
// failure, or a cancelled outcome. It never panics on handler faults.
func Send[R any](ctx context.Context, d *Dispatcher, req Request[R]) result.Result[R] {
	t := reflect.TypeOf(req)
	out := d.chain(ctx, Call{Name: typeName(t), Request: req, typ: t})
	return result.Map(out, func(v any) R {
		rv, _ := v.(R)
		return rv
	})
}

// Len returns the number of request types with a bound handler.
func (d *Dispatcher) Len() int {
	return len(d.pipelines)
}

// Registered returns the sorted names of all routable request types.
func (d *Dispatcher) Registered() []string {
	names := make([]string, 0, len(d.pipelines))
	for _, p := range d.pipelines {
		names = append(names, p.name)
	}
	slices.Sort(names)
	return names
}

// run is the innermost step of the chain:
// Received -> Validating -> (Handling | ShortCircuited) -> Completed.
func (d *Dispatcher) run(ctx context.Context, call Call) (out result.Result[any]) {
	p, ok := d.pipelines[call.typ]
	if !ok {
		d.logger.Error("dispatch: no handler bound", "request_type", call.Name)
		return result.Failure[any](result.Unexpected(result.CodeUnregisteredRequest,
			fmt.Sprintf("no handler registered for %s", call.Name)))
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("dispatch: recovered panic",
				"request_type", call.Name,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			out = result.Failure[any](result.Unexpected(result.CodeUnexpected,
				fmt.Sprintf("%s failed unexpectedly", call.Name)))
		}
	}()

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	if errs := d.validate(ctx, p, call.Request); len(errs) > 0 {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		return result.Failure[any](result.Aggregate(errs))
	}

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	out = p.handle(ctx, call.Request)
	if out.IsFailure() && out.Err().Kind == result.KindUnexpected {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
	}
	return out
}

func (d *Dispatcher) validate(ctx context.Context, p *pipeline, req any) []result.Error {
	var errs []result.Error
	for _, v := range p.validators {
		if ctx.Err() != nil {
			return errs
		}
		found := v(ctx, req)
		errs = append(errs, found...)
		if len(found) > 0 && d.stopOnFirst {
			break
		}
	}
	return errs
}

func cancelled(err error) result.Result[any] {
	return result.Failure[any](result.Cancelled(err))
}
