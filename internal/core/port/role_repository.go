package port

import (
	"context"

	"github.com/arklim/admin-iam/internal/core/domain"
)

// RoleRepository handles role persistence and the role's permission associations.
type RoleRepository interface {
	// Create inserts the role together with its PermissionIDs and
	// APIPermissionIDs links; nothing is kept when any part fails.
	Create(ctx context.Context, role domain.Role) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	// GetByID loads a role; includeGrants also loads its business and API permissions.
	GetByID(ctx context.Context, id int64, includeGrants bool) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	Update(ctx context.Context, role domain.Role) error
	Delete(ctx context.Context, id int64) error
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	ReplaceAPIPermissions(ctx context.Context, roleID int64, apiPermissionIDs []int64) error
	ListIDsByPermission(ctx context.Context, permissionID int64) ([]int64, error)
	ListIDsByAPIPermission(ctx context.Context, apiPermissionID int64) ([]int64, error)
}
