package usecase

import (
	"context"

	"github.com/arklim/admin-iam/internal/infra/logger"
)

// WithActor records the id of the principal performing a mutation. Loggers
// built with logger.Enrich pick it up as actor_id.
func WithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, logger.ActorKey{}, userID)
}

// ActorFrom returns the acting principal id, or 0 when unknown.
func ActorFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(logger.ActorKey{}).(int64)
	return id
}
