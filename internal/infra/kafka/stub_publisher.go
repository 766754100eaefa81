package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
)

// StubPublisher logs events instead of sending them. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*StubPublisher)(nil)

// NewStubPublisher constructs a logging publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now()
	}
	p.logger.Info("stub event published",
		append([]zap.Field{zap.String("event_type", eventType), zap.Time("timestamp", at.UTC())}, fields...)...,
	)
}

// PublishPrincipalRegistered logs iam.principal.registered.
func (p *StubPublisher) PublishPrincipalRegistered(_ context.Context, event domain.PrincipalRegisteredEvent) error {
	p.logEvent(EventPrincipalRegistered, event.RegisteredAt,
		zap.Int64("principal_id", event.PrincipalID),
		zap.String("method", event.Method),
		zap.Int64s("role_ids", event.RoleIDs),
	)
	return nil
}

// PublishRoleGrantsChanged logs iam.role.grants.changed.
func (p *StubPublisher) PublishRoleGrantsChanged(_ context.Context, event domain.RoleGrantsChangedEvent) error {
	p.logEvent(EventRoleGrantsChanged, event.ChangedAt,
		zap.Int64s("role_ids", event.RoleIDs),
		zap.String("change", event.Change),
		zap.Int64("changed_by", event.ChangedBy),
	)
	return nil
}

// PublishTokenReuseDetected logs iam.token.reuse_detected.
func (p *StubPublisher) PublishTokenReuseDetected(_ context.Context, event domain.TokenReuseDetectedEvent) error {
	p.logEvent(EventTokenReuseDetected, event.DetectedAt,
		zap.Int64("principal_id", event.PrincipalID),
		zap.String("token_id", event.TokenID),
	)
	return nil
}
