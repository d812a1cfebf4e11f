package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "careforge"

// StartDispatchSpan starts a span for one dispatched request.
func StartDispatchSpan(ctx context.Context, requestType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch "+requestType,
		trace.WithAttributes(attribute.String("dispatch.request_type", requestType)),
	)
}

// StartDocumentSpan starts a span for a document store operation.
func StartDocumentSpan(ctx context.Context, op, prescriptionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "document."+op,
		trace.WithAttributes(attribute.String("prescription.id", prescriptionID)),
	)
}
