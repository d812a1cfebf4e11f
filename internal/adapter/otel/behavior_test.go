package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Strob0t/CareForge/internal/config"
	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/result"
)

type lookup struct {
	dispatch.Returns[string]
	ID string
}

func TestDispatchBehavior_RecordsSpansAndMetrics(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	b := dispatch.NewBuilder(dispatch.WithBehaviors(DispatchBehavior(m)))
	dispatch.Register(b, func(_ context.Context, r lookup) result.Result[string] {
		if r.ID == "" {
			return result.Failure[string](result.NotFound("MISSING", "no id"))
		}
		return result.Success(r.ID)
	})
	d, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dispatch.Send[string](context.Background(), d, lookup{ID: "a"})
	dispatch.Send[string](context.Background(), d, lookup{})

	ended := spans.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "dispatch otel.lookup" {
		t.Errorf("unexpected span name %q", ended[0].Name())
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[metric.Name] += dp.Value
				}
			}
		}
	}
	if totals["careforge.dispatch.requests"] != 2 {
		t.Errorf("requests = %d, want 2", totals["careforge.dispatch.requests"])
	}
	if totals["careforge.dispatch.failures"] != 1 {
		t.Errorf("failures = %d, want 1", totals["careforge.dispatch.failures"])
	}
}

func TestDispatchBehavior_NilMetrics(t *testing.T) {
	b := dispatch.NewBuilder(dispatch.WithBehaviors(DispatchBehavior(nil)))
	dispatch.Register(b, func(_ context.Context, r lookup) result.Result[string] { return result.Success(r.ID) })
	d, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := dispatch.Send[string](context.Background(), d, lookup{ID: "x"}); got.Value() != "x" {
		t.Fatalf("got %q", got.Value())
	}
}

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTEL{ServiceName: "careforge"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
