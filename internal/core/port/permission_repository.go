package port

import (
	"context"

	"github.com/arklim/admin-iam/internal/core/domain"
)

// PermissionRepository manages business permission storage.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) (*domain.Permission, error)
	List(ctx context.Context) ([]domain.Permission, error)
	GetByID(ctx context.Context, id int64) (*domain.Permission, error)
	GetByName(ctx context.Context, name string) (*domain.Permission, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Permission, error)
	// Delete removes the permission and its role links in one transaction
	// and returns the roles that held it at that moment.
	Delete(ctx context.Context, id int64) (roleIDs []int64, err error)
}

// APIPermissionRepository manages method+path permissions.
type APIPermissionRepository interface {
	Create(ctx context.Context, permission domain.APIPermission) (*domain.APIPermission, error)
	// Upsert inserts the permission unless one with the same method and path exists.
	Upsert(ctx context.Context, permission domain.APIPermission) (created bool, err error)
	List(ctx context.Context) ([]domain.APIPermission, error)
	GetByID(ctx context.Context, id int64) (*domain.APIPermission, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.APIPermission, error)
	Update(ctx context.Context, permission domain.APIPermission) error
	// Delete removes the permission and its role links in one transaction
	// and returns the roles that held it at that moment.
	Delete(ctx context.Context, id int64) (roleIDs []int64, err error)
}
