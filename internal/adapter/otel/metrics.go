package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "careforge"

// Metrics holds all CareForge metric instruments.
type Metrics struct {
	Dispatches          metric.Int64Counter
	DispatchFailures    metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
	PrescriptionChanges metric.Int64Counter
	DocumentBytes       metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Dispatches, err = meter.Int64Counter("careforge.dispatch.requests",
		metric.WithDescription("Number of dispatched requests"))
	if err != nil {
		return nil, err
	}

	m.DispatchFailures, err = meter.Int64Counter("careforge.dispatch.failures",
		metric.WithDescription("Number of dispatched requests that failed, by kind"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("careforge.dispatch.duration_seconds",
		metric.WithDescription("Dispatch duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.PrescriptionChanges, err = meter.Int64Counter("careforge.prescriptions.transitions",
		metric.WithDescription("Number of prescription status transitions"))
	if err != nil {
		return nil, err
	}

	m.DocumentBytes, err = meter.Int64Counter("careforge.documents.bytes",
		metric.WithDescription("Bytes of prescription documents stored"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
