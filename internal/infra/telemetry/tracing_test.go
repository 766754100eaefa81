package telemetry

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/admin-iam/internal/infra/config"
)

func TestNewTracingWithoutEndpointStillMintsTraceIDs(t *testing.T) {
	ctx := context.Background()
	tracing, err := NewTracing(ctx, config.TelemetrySettings{ServiceName: "admin-iam"}, "test", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTracing returned error: %v", err)
	}
	t.Cleanup(func() { _ = tracing.Shutdown(ctx) })

	_, span := otel.Tracer("test").Start(ctx, "AuthService.Login")
	defer span.End()
	if !span.SpanContext().TraceID().IsValid() {
		t.Fatal("expected a trace id for log correlation")
	}
	if span.SpanContext().IsSampled() {
		t.Fatal("spans must not be sampled without an exporter")
	}
}

func TestSamplerForRate(t *testing.T) {
	cases := map[float64]string{
		1:    "AlwaysOnSampler",
		2:    "AlwaysOnSampler",
		0:    "AlwaysOffSampler",
		0.25: "TraceIDRatioBased{0.25}",
	}
	for rate, want := range cases {
		desc := samplerFor(rate).Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+want) {
			t.Fatalf("samplerFor(%v) = %s, want root %s", rate, desc, want)
		}
	}
}

func TestServiceAttributesNameTheAdminSurface(t *testing.T) {
	attrs := serviceAttributes(config.TelemetrySettings{ServiceName: "admin-iam"}, "prod")
	found := map[string]string{}
	for _, kv := range attrs {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found["service.name"] != "admin-iam" || found["deployment.environment"] != "prod" || found["iam.surface"] != "admin-api" {
		t.Fatalf("unexpected resource attributes %v", found)
	}
}
