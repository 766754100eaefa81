package port

import (
	"context"

	"github.com/arklim/admin-iam/internal/core/domain"
)

// EventPublisher publishes security events to the message bus.
type EventPublisher interface {
	PublishPrincipalRegistered(ctx context.Context, event domain.PrincipalRegisteredEvent) error
	PublishRoleGrantsChanged(ctx context.Context, event domain.RoleGrantsChangedEvent) error
	PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error
}
