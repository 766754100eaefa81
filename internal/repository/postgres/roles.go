package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/repository"
)

var roleColumns = []string{"id", "name", "description", "is_system", "created_at", "updated_at"}

// RoleRepository implements role persistence operations.
type RoleRepository struct {
	base
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(db DB, retry RetryPolicy) *RoleRepository {
	return &RoleRepository{base: newBase(db, retry)}
}

// Create inserts a new role and returns it with its generated id.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) (*domain.Role, error) {
	stmt, args, err := r.builder.Insert("iam.roles").
		Columns("name", "description", "is_system").
		Values(role.Name, role.Description, role.IsSystem).
		Suffix("RETURNING " + joinColumns(roleColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert role sql: %w", err)
	}

	var created *domain.Role
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		var scanErr error
		created, scanErr = scanRole(tx.QueryRow(ctx, stmt, args...))
		if scanErr != nil {
			return mapWriteError("insert role", scanErr)
		}
		if err := r.insertLinks(ctx, tx, "iam.role_permissions", "permission_id", created.ID, role.PermissionIDs); err != nil {
			return err
		}
		return r.insertLinks(ctx, tx, "iam.role_api_permissions", "api_permission_id", created.ID, role.APIPermissionIDs)
	})
	if err != nil {
		return nil, err
	}
	created.PermissionIDs = role.PermissionIDs
	created.APIPermissionIDs = role.APIPermissionIDs
	return created, nil
}

// List retrieves all roles sorted by id without their grants.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("iam.roles").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	var roles []domain.Role
	err = r.read(ctx, func() error {
		rows, err := r.db.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		roles = roles[:0]
		for rows.Next() {
			role, err := scanRole(rows)
			if err != nil {
				return fmt.Errorf("scan role: %w", err)
			}
			roles = append(roles, *role)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	return roles, nil
}

// GetByID retrieves a role; includeGrants also loads its business and API permissions.
func (r *RoleRepository) GetByID(ctx context.Context, id int64, includeGrants bool) (*domain.Role, error) {
	role, err := r.getOne(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if !includeGrants {
		return role, nil
	}

	if err := r.loadGrants(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

func (r *RoleRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("iam.roles").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	var role *domain.Role
	err = r.read(ctx, func() error {
		var scanErr error
		role, scanErr = scanRole(r.db.QueryRow(ctx, stmt, args...))
		return scanErr
	})
	if err != nil {
		return nil, notFoundOr(err, "select role")
	}
	return role, nil
}

func (r *RoleRepository) loadGrants(ctx context.Context, role *domain.Role) error {
	permStmt, permArgs, err := r.builder.Select("p.id", "p.name", "p.description", "p.is_system").
		From("iam.permissions p").
		Join("iam.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": role.ID}).
		OrderBy("p.id ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build role permissions sql: %w", err)
	}

	apiStmt, apiArgs, err := r.builder.Select("a.id", "a.method", "a.path", "a.match_type", "a.description").
		From("iam.api_permissions a").
		Join("iam.role_api_permissions ra ON ra.api_permission_id = a.id").
		Where(squirrel.Eq{"ra.role_id": role.ID}).
		OrderBy("a.id ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build role api permissions sql: %w", err)
	}

	err = r.read(ctx, func() error {
		rows, err := r.db.Query(ctx, permStmt, permArgs...)
		if err != nil {
			return err
		}
		perms, err := scanPermissions(rows)
		if err != nil {
			return err
		}
		role.Permissions = perms
		return nil
	})
	if err != nil {
		return fmt.Errorf("query role permissions: %w", err)
	}

	err = r.read(ctx, func() error {
		rows, err := r.db.Query(ctx, apiStmt, apiArgs...)
		if err != nil {
			return err
		}
		apis, err := scanAPIPermissions(rows)
		if err != nil {
			return err
		}
		role.APIPermissions = apis
		return nil
	})
	if err != nil {
		return fmt.Errorf("query role api permissions: %w", err)
	}

	role.PermissionIDs = make([]int64, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		role.PermissionIDs = append(role.PermissionIDs, p.ID)
	}
	role.APIPermissionIDs = make([]int64, 0, len(role.APIPermissions))
	for _, a := range role.APIPermissions {
		role.APIPermissionIDs = append(role.APIPermissionIDs, a.ID)
	}
	return nil
}

// Update modifies an existing role's name and description.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Update("iam.roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("update role", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a role by ID (cascades to user_roles and the grant link tables via FK).
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.Delete("iam.roles").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("delete role", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReplacePermissions swaps the role's business permissions in one transaction.
func (r *RoleRepository) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return r.replaceLinks(ctx, "iam.role_permissions", "permission_id", roleID, permissionIDs)
}

// ReplaceAPIPermissions swaps the role's API permissions in one transaction.
func (r *RoleRepository) ReplaceAPIPermissions(ctx context.Context, roleID int64, apiPermissionIDs []int64) error {
	return r.replaceLinks(ctx, "iam.role_api_permissions", "api_permission_id", roleID, apiPermissionIDs)
}

func (r *RoleRepository) replaceLinks(ctx context.Context, table, column string, roleID int64, ids []int64) error {
	delStmt, delArgs, err := r.builder.Delete(table).
		Where(squirrel.Eq{"role_id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear %s sql: %w", table, err)
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, delStmt, delArgs...); err != nil {
			return mapWriteError("clear "+table, err)
		}
		return r.insertLinks(ctx, tx, table, column, roleID, ids)
	})
}

func (r *RoleRepository) insertLinks(ctx context.Context, tx pgx.Tx, table, column string, roleID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := r.builder.Insert(table).Columns("role_id", column)
	for _, id := range ids {
		query = query.Values(roleID, id)
	}
	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s sql: %w", table, err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert "+table, err)
	}
	return nil
}

// ListIDsByPermission returns the roles holding a business permission.
func (r *RoleRepository) ListIDsByPermission(ctx context.Context, permissionID int64) ([]int64, error) {
	return r.listRoleIDs(ctx, "iam.role_permissions", "permission_id", permissionID)
}

// ListIDsByAPIPermission returns the roles holding an API permission.
func (r *RoleRepository) ListIDsByAPIPermission(ctx context.Context, apiPermissionID int64) ([]int64, error) {
	return r.listRoleIDs(ctx, "iam.role_api_permissions", "api_permission_id", apiPermissionID)
}

func (r *RoleRepository) listRoleIDs(ctx context.Context, table, column string, id int64) ([]int64, error) {
	stmt, args, err := r.builder.Select("role_id").
		From(table).
		Where(squirrel.Eq{column: id}).
		OrderBy("role_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role ids sql: %w", err)
	}

	var ids []int64
	err = r.read(ctx, func() error {
		rows, err := r.db.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		ids, err = collectIDs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query role ids: %w", err)
	}
	return ids, nil
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var role domain.Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	return &role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
