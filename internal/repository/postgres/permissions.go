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

var permissionColumns = []string{"id", "name", "description", "is_system"}

// PermissionRepository implements port.PermissionRepository over PostgreSQL.
type PermissionRepository struct {
	base
}

// NewPermissionRepository constructs a permission repository instance.
func NewPermissionRepository(db DB, retry RetryPolicy) *PermissionRepository {
	return &PermissionRepository{base: newBase(db, retry)}
}

// Create inserts a new permission row.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) (*domain.Permission, error) {
	stmt, args, err := r.builder.Insert("iam.permissions").
		Columns("name", "description", "is_system").
		Values(permission.Name, permission.Description, permission.IsSystem).
		Suffix("RETURNING " + joinColumns(permissionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert permission sql: %w", err)
	}

	var created domain.Permission
	row := r.db.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&created.ID, &created.Name, &created.Description, &created.IsSystem); err != nil {
		return nil, mapWriteError("insert permission", err)
	}
	return &created, nil
}

// List returns every business permission ordered by id.
func (r *PermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	return r.query(ctx, r.builder.Select(permissionColumns...).From("iam.permissions").OrderBy("id ASC"))
}

// ListByIDs returns the permissions whose id is in ids.
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Permission, error) {
	if len(ids) == 0 {
		return []domain.Permission{}, nil
	}
	return r.query(ctx, r.builder.Select(permissionColumns...).
		From("iam.permissions").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id ASC"))
}

// GetByID retrieves a permission by id.
func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*domain.Permission, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByName retrieves a permission by its unique name.
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

func (r *PermissionRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Permission, error) {
	perms, err := r.query(ctx, r.builder.Select(permissionColumns...).From("iam.permissions").Where(where).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return nil, repository.ErrNotFound
	}
	return &perms[0], nil
}

func (r *PermissionRepository) query(ctx context.Context, q squirrel.SelectBuilder) ([]domain.Permission, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permissions sql: %w", err)
	}

	var perms []domain.Permission
	err = r.read(ctx, func() error {
		rows, err := r.db.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		perms, err = scanPermissions(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	return perms, nil
}

// Delete removes a permission with its role links and reports the roles that held it.
func (r *PermissionRepository) Delete(ctx context.Context, id int64) ([]int64, error) {
	return r.deleteGrant(ctx, "iam.permissions", "iam.role_permissions", "permission_id", id)
}

func scanPermissions(rows pgx.Rows) ([]domain.Permission, error) {
	defer rows.Close()

	perms := make([]domain.Permission, 0)
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.IsSystem); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return perms, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
