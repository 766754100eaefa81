package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/infra/config"
)

const serviceVersion = "0.4.0"

// Tracing owns the process-wide tracer provider used by the HTTP middleware,
// the permission resolver and the refresh guard.
type Tracing struct {
	provider *sdktrace.TracerProvider
	logger   *zap.Logger
}

// NewTracing installs the global tracer provider and propagator. Without an
// OTLP endpoint spans are never sampled, but they still mint trace ids that
// the request logger attaches to every line.
func NewTracing(ctx context.Context, cfg config.TelemetrySettings, env string, logger *zap.Logger) (*Tracing, error) {
	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(cfg, env)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint == "" {
		opts = append(opts, sdktrace.WithSampler(sdktrace.NeverSample()))
	} else {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithTimeout(10*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		opts = append(opts,
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithSampler(samplerFor(cfg.SamplingRate)),
		)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.OTLPEndpoint == "" {
		logger.Info("trace export disabled", zap.String("service_name", cfg.ServiceName))
	} else {
		logger.Info("trace export enabled",
			zap.String("otlp_endpoint", cfg.OTLPEndpoint),
			zap.String("service_name", cfg.ServiceName),
			zap.Float64("sampling_rate", cfg.SamplingRate),
		)
	}
	return &Tracing{provider: tp, logger: logger}, nil
}

func serviceAttributes(cfg config.TelemetrySettings, env string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(serviceVersion),
		semconv.DeploymentEnvironment(env),
		attribute.String("iam.surface", "admin-api"),
	}
}

// samplerFor honours the caller's decision when a gateway already started the
// trace, and samples root spans at rate.
func samplerFor(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	t.logger.Info("flushing traces")
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
