package server

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider     *sdktrace.TracerProvider
	DiagnoseCounter   metric.Int64Counter
	DiagnoseDuration  metric.Int64Histogram
	UpstreamErrors    metric.Int64Counter
	RateLimited       metric.Int64Counter
	TokensUsed        metric.Int64Counter
	FieldServiceCalls metric.Int64Counter
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "diag-api"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	diagnoseCounter, _ := meter.Int64Counter("hvac_diagnose_total")
	diagnoseDuration, _ := meter.Int64Histogram("hvac_diagnose_duration_ms")
	upstreamErrors, _ := meter.Int64Counter("hvac_upstream_error_total")
	rateLimited, _ := meter.Int64Counter("hvac_rate_limited_total")
	tokensUsed, _ := meter.Int64Counter("hvac_completion_tokens_total")
	fieldServiceCalls, _ := meter.Int64Counter("hvac_fieldservice_total")
	return &Observability{
		Tracer:            tracer,
		Meter:             meter,
		traceProvider:     tp,
		DiagnoseCounter:   diagnoseCounter,
		DiagnoseDuration:  diagnoseDuration,
		UpstreamErrors:    upstreamErrors,
		RateLimited:       rateLimited,
		TokensUsed:        tokensUsed,
		FieldServiceCalls: fieldServiceCalls,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	return o.traceProvider.Shutdown(ctx)
}

// MarkDiagnose records one completed diagnosis, tagged by provenance
// ("live", "cached", "predefined", "generic").
func (o *Observability) MarkDiagnose(ctx context.Context, source string, durationMS int64) {
	if o == nil {
		return
	}
	o.DiagnoseCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
	o.DiagnoseDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.String("source", source),
	))
}

func (o *Observability) MarkUpstreamError(ctx context.Context, kind string) {
	if o == nil {
		return
	}
	o.UpstreamErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (o *Observability) MarkRateLimited(ctx context.Context) {
	if o == nil {
		return
	}
	o.RateLimited.Add(ctx, 1)
}

// MarkFieldService records one proxied field-service call, tagged by action
// ("fieldservice.customer", ...) and outcome ("ok", "error").
func (o *Observability) MarkFieldService(ctx context.Context, action, result string) {
	if o == nil {
		return
	}
	o.FieldServiceCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
}

func (o *Observability) MarkTokens(ctx context.Context, prompt, completion int) {
	if o == nil {
		return
	}
	o.TokensUsed.Add(ctx, int64(prompt), metric.WithAttributes(attribute.String("kind", "prompt")))
	o.TokensUsed.Add(ctx, int64(completion), metric.WithAttributes(attribute.String("kind", "completion")))
}
