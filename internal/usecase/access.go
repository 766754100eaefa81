package usecase

import (
	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/infra/telemetry"
)

// AccessDecider answers whether a resolved grant set admits a request.
type AccessDecider struct {
	metrics *telemetry.AuthMetrics
}

// NewAccessDecider constructs a decider.
func NewAccessDecider(metrics *telemetry.AuthMetrics) *AccessDecider {
	return &AccessDecider{metrics: metrics}
}

// Decide returns nil when grants admit req and a *ForbiddenError otherwise.
// The super-permission admits everything. Otherwise some API grant must cover
// the method and either the concrete path or the route template, and every
// required business permission must be held.
func (d *AccessDecider) Decide(grants domain.GrantSet, req domain.AccessRequest) error {
	if grants.IsSuper() {
		d.metrics.AccessDecision("allow_super")
		return nil
	}

	if !coversRequest(grants, req) {
		d.metrics.AccessDecision("deny")
		return &ForbiddenError{Method: req.Method, Path: req.Path}
	}
	for _, perm := range req.Required {
		if !grants.Has(perm) {
			d.metrics.AccessDecision("deny")
			return &ForbiddenError{Method: req.Method, Path: req.Path, Permission: perm}
		}
	}

	d.metrics.AccessDecision("allow")
	return nil
}

func coversRequest(grants domain.GrantSet, req domain.AccessRequest) bool {
	for _, g := range grants.API() {
		if g.Covers(req.Method, req.Path) {
			return true
		}
		if req.Route != "" && req.Route != req.Path && g.Covers(req.Method, req.Route) {
			return true
		}
	}
	return false
}
