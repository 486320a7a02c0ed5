// Package observability wires OpenTelemetry metrics (Prometheus exporter) and
// tracing (Jaeger exporter) for the orchestration pipeline.
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	jobCounter   otelmetric.Int64Counter
	jobDuration  otelmetric.Float64Histogram
	tokenCounter otelmetric.Int64Counter
	costCounter  otelmetric.Float64Counter
	llmLatency   otelmetric.Float64Histogram
}

// New registers the meter provider and, when jaegerEndpoint is set, a batch
// span exporter. Exporter failures degrade to no-op instruments.
func New(serviceName, jaegerEndpoint string) *Observability {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	if jaegerEndpoint != "" {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			o.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exp),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(o.tracerProvider)
			o.tracer = o.tracerProvider.Tracer(serviceName)
		}
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(o.meterProvider)
	meter := o.meterProvider.Meter(serviceName)

	o.jobCounter, _ = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.tokenCounter, _ = meter.Int64Counter(
		"llm.tokens",
		otelmetric.WithDescription("Tokens consumed by model calls"),
	)
	o.costCounter, _ = meter.Float64Counter(
		"llm.cost",
		otelmetric.WithDescription("Cost of model calls"),
		otelmetric.WithUnit("{cent}"),
	)
	o.llmLatency, _ = meter.Float64Histogram(
		"llm.latency",
		otelmetric.WithDescription("Model call latency"),
		otelmetric.WithUnit("ms"),
	)

	return o
}

// NewNoop returns an instance whose spans and instruments do nothing.
func NewNoop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("noop")}
}

// StartSpan starts a span named name. End must be called on the returned span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("noop").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o != nil && o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

// RecordUsage records one completed model call.
func (o *Observability) RecordUsage(ctx context.Context, model, assistant string, tokensIn, tokensOut int, costCents float64, latency time.Duration) {
	if o == nil || o.tokenCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("model", model),
		attribute.String("assistant", assistant),
	)
	o.tokenCounter.Add(ctx, int64(tokensIn+tokensOut), attrs)
	o.costCounter.Add(ctx, costCents, attrs)
	o.llmLatency.Record(ctx, float64(latency.Milliseconds()), attrs)
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
