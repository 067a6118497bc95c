// Package tracing initialises OpenTelemetry and holds the span helpers used
// by the forecasting pipeline.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/inferloop/salesforecast/pkg/constants"
)

// TracerName is the instrumentation scope of every span.
const TracerName = "github.com/inferloop/salesforecast"

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled           bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName       string  `json:"service_name" mapstructure:"service_name"`
	ServiceVersion    string  `json:"service_version" mapstructure:"service_version"`
	Environment       string  `json:"environment" mapstructure:"environment"`
	CollectorEndpoint string  `json:"collector_endpoint" mapstructure:"collector_endpoint"`
	CollectorInsecure bool    `json:"collector_insecure" mapstructure:"collector_insecure"`
	SamplingRate      float64 `json:"sampling_rate" mapstructure:"sampling_rate"`
}

// DefaultConfig returns tracing defaults; tracing is off unless enabled.
func DefaultConfig() *Config {
	return &Config{
		Enabled:           false,
		ServiceName:       constants.AppName,
		ServiceVersion:    constants.AppVersion,
		Environment:       "development",
		CollectorEndpoint: "localhost:4317",
		CollectorInsecure: true,
		SamplingRate:      1.0,
	}
}

// InitTracer installs a batching OTLP tracer provider as the global one.
// With tracing disabled it returns nil and spans stay no-ops.
func InitTracer(ctx context.Context, config *Config) (*sdktrace.TracerProvider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return nil, nil
	}
	if config.SamplingRate < 0 || config.SamplingRate > 1 {
		return nil, fmt.Errorf("sampling rate %.2f outside [0, 1]", config.SamplingRate)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.CollectorEndpoint)}
	if config.CollectorInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return tp.Shutdown(ctx)
}

// StartSpan starts a span on the global provider.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, spanName)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Span attribute keys.
const (
	AttrProduct     = attribute.Key("forecast.product")
	AttrGranularity = attribute.Key("forecast.granularity")
	AttrHorizon     = attribute.Key("forecast.horizon")
	AttrScenario    = attribute.Key("forecast.scenario")
	AttrStrategy    = attribute.Key("forecast.strategy")
	AttrLagDepth    = attribute.Key("forecast.lag_depth")
	AttrProducts    = attribute.Key("kpi.products")
	AttrSkipped     = attribute.Key("kpi.skipped")
	AttrCacheHit    = attribute.Key("cache.hit")
)

// ForecastAttributes describes one forecast request.
func ForecastAttributes(product, granularity, scenario string, horizon int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProduct.String(product),
		AttrGranularity.String(granularity),
		AttrScenario.String(scenario),
		AttrHorizon.Int(horizon),
	}
}
