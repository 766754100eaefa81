package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAuthMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewAuthMetrics(reg)
	if err != nil {
		t.Fatalf("NewAuthMetrics returned error: %v", err)
	}

	m.Login("password", "success")
	m.RefreshReuse()
	m.RefreshReuse()
	m.CacheLookup("hit")

	if got := testutil.ToFloat64(m.refreshReuse); got != 2 {
		t.Fatalf("expected 2 reuse events, got %v", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("password", "success")); got != 1 {
		t.Fatalf("expected 1 login, got %v", got)
	}
}

func TestAuthMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewAuthMetrics(reg)
	if err != nil {
		t.Fatalf("NewAuthMetrics returned error: %v", err)
	}
	second, err := NewAuthMetrics(reg)
	if err != nil {
		t.Fatalf("second NewAuthMetrics returned error: %v", err)
	}

	second.RefreshReuse()
	if got := testutil.ToFloat64(first.refreshReuse); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilAuthMetricsIsSafe(t *testing.T) {
	var m *AuthMetrics
	m.Login("password", "failure")
	m.RefreshReuse()
	m.AccessDecision("deny")
	m.EventDeliveryFailed("admin.iam.token.reuse_detected")
}

func TestEventDeliveryFailuresByTopic(t *testing.T) {
	m, err := NewAuthMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewAuthMetrics returned error: %v", err)
	}
	m.EventDeliveryFailed("admin.iam.role.grants_changed")
	m.EventDeliveryFailed("admin.iam.role.grants_changed")

	if got := testutil.ToFloat64(m.eventFailures.WithLabelValues("admin.iam.role.grants_changed")); got != 2 {
		t.Fatalf("expected 2 failures, got %v", got)
	}
}
