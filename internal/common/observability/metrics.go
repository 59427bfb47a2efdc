package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider     *metric.MeterProvider
	meter             otelmetric.Meter
	utteranceCounter  otelmetric.Int64Counter
	utteranceDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	utteranceCounter, _ := meter.Int64Counter(
		"utterances.processed",
		otelmetric.WithDescription("Number of utterances processed"),
	)

	utteranceDuration, _ := meter.Float64Histogram(
		"utterances.duration",
		otelmetric.WithDescription("Utterance processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:     provider,
		meter:             meter,
		utteranceCounter:  utteranceCounter,
		utteranceDuration: utteranceDuration,
	}
}

func (o *Observability) RecordUtterance(ctx context.Context, tier string) {
	if o.utteranceCounter != nil {
		o.utteranceCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("tier", tier),
		))
	}
}

func (o *Observability) RecordDuration(ctx context.Context, duration time.Duration, tier string) {
	if o.utteranceDuration != nil {
		o.utteranceDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("tier", tier),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
