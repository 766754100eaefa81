package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics groups the counters emitted by the authentication and
// authorization flows. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshReuse    prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	accessDecisions *prometheus.CounterVec
	eventFailures   *prometheus.CounterVec
}

// NewAuthMetrics registers the auth counters on reg. Collectors already
// registered by an earlier call are reused.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &AuthMetrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Login attempts partitioned by method and outcome.",
		}, []string{"method", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh token redemptions partitioned by outcome.",
		}, []string{"outcome"}),
		refreshReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iam",
			Subsystem: "auth",
			Name:      "refresh_reuse_total",
			Help:      "Refresh tokens presented after they were already redeemed.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Subsystem: "rbac",
			Name:      "permission_cache_lookups_total",
			Help:      "Role permission cache lookups partitioned by result.",
		}, []string{"result"}),
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Subsystem: "rbac",
			Name:      "access_decisions_total",
			Help:      "Access decisions partitioned by result.",
		}, []string{"result"}),
		eventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Subsystem: "events",
			Name:      "delivery_failures_total",
			Help:      "Security events the broker rejected after retries, by topic.",
		}, []string{"topic"}),
	}

	var err error
	if m.logins, err = registerCounterVec(reg, m.logins); err != nil {
		return nil, err
	}
	if m.refreshes, err = registerCounterVec(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = registerCounterVec(reg, m.cacheLookups); err != nil {
		return nil, err
	}
	if m.accessDecisions, err = registerCounterVec(reg, m.accessDecisions); err != nil {
		return nil, err
	}
	if m.eventFailures, err = registerCounterVec(reg, m.eventFailures); err != nil {
		return nil, err
	}
	if err := reg.Register(m.refreshReuse); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		m.refreshReuse = already.ExistingCollector.(prometheus.Counter)
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return vec, nil
}

// Login records a login attempt.
func (m *AuthMetrics) Login(method, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome).Inc()
}

// Refresh records a refresh redemption outcome.
func (m *AuthMetrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// RefreshReuse records a replayed refresh token.
func (m *AuthMetrics) RefreshReuse() {
	if m == nil {
		return
	}
	m.refreshReuse.Inc()
}

// CacheLookup records a permission cache hit, miss or stale entry.
func (m *AuthMetrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// AccessDecision records an allow or deny.
func (m *AuthMetrics) AccessDecision(result string) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(result).Inc()
}

// EventDeliveryFailed records an event the broker never acknowledged.
func (m *AuthMetrics) EventDeliveryFailed(topic string) {
	if m == nil {
		return
	}
	m.eventFailures.WithLabelValues(topic).Inc()
}
