package port

import (
	"context"

	"github.com/arklim/admin-iam/internal/core/domain"
)

// UserRepository exposes persistence behavior for principals.
type UserRepository interface {
	Create(ctx context.Context, principal domain.Principal) (*domain.Principal, error)
	GetByID(ctx context.Context, id int64) (*domain.Principal, error)
	GetByUsername(ctx context.Context, username string) (*domain.Principal, error)
	// GetByExternalIdentity returns the principal bound to a provider account.
	GetByExternalIdentity(ctx context.Context, provider, subject string) (*domain.Principal, error)
	// CreateExternal inserts the principal, its roles and its identity binding
	// atomically. ErrConflict covers both a taken username and a bound identity.
	CreateExternal(ctx context.Context, principal domain.Principal, provider, subject string) (*domain.Principal, error)
	List(ctx context.Context) ([]domain.Principal, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	ReplaceRoles(ctx context.Context, id int64, roleIDs []int64) error
	Delete(ctx context.Context, id int64) error
}
