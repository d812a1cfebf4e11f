package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/result"
)

// DispatchBehavior traces every dispatch and records its count, duration
// and failure kind. m may be nil, in which case only spans are produced.
func DispatchBehavior(m *Metrics) dispatch.Behavior {
	return func(next dispatch.Next) dispatch.Next {
		return func(ctx context.Context, call dispatch.Call) result.Result[any] {
			ctx, span := StartDispatchSpan(ctx, call.Name)
			defer span.End()

			start := time.Now()
			out := next(ctx, call)
			elapsed := time.Since(start).Seconds()

			typeAttr := attribute.String("request_type", call.Name)
			if out.IsFailure() {
				e := out.Err()
				span.SetAttributes(attribute.String("result.code", e.Code), attribute.String("result.kind", string(e.Kind)))
				if e.Kind == result.KindUnexpected {
					span.SetStatus(codes.Error, e.Message)
				}
			}

			if m != nil {
				m.Dispatches.Add(ctx, 1, metric.WithAttributes(typeAttr))
				m.DispatchDuration.Record(ctx, elapsed, metric.WithAttributes(typeAttr))
				if out.IsFailure() {
					m.DispatchFailures.Add(ctx, 1, metric.WithAttributes(typeAttr,
						attribute.String("kind", string(out.Err().Kind))))
				}
			}
			return out
		}
	}
}
