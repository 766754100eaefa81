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

var apiPermissionColumns = []string{"id", "method", "path", "match_type", "description"}

// APIPermissionRepository persists method+path permissions.
type APIPermissionRepository struct {
	base
}

// NewAPIPermissionRepository constructs an API permission repository.
func NewAPIPermissionRepository(db DB, retry RetryPolicy) *APIPermissionRepository {
	return &APIPermissionRepository{base: newBase(db, retry)}
}

// Create inserts an API permission.
func (r *APIPermissionRepository) Create(ctx context.Context, p domain.APIPermission) (*domain.APIPermission, error) {
	stmt, args, err := r.builder.Insert("iam.api_permissions").
		Columns("method", "path", "match_type", "description").
		Values(p.Method, p.Path, string(p.MatchType), p.Description).
		Suffix("RETURNING " + joinColumns(apiPermissionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert api permission sql: %w", err)
	}

	created, err := scanAPIPermission(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, mapWriteError("insert api permission", err)
	}
	return created, nil
}

// Upsert inserts p unless the method and path are already registered.
func (r *APIPermissionRepository) Upsert(ctx context.Context, p domain.APIPermission) (bool, error) {
	stmt, args, err := r.builder.Insert("iam.api_permissions").
		Columns("method", "path", "match_type", "description").
		Values(p.Method, p.Path, string(p.MatchType), p.Description).
		Suffix("ON CONFLICT (method, path) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert api permission sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, mapWriteError("upsert api permission", err)
	}
	return res.RowsAffected() > 0, nil
}

// List returns all API permissions ordered by path then method.
func (r *APIPermissionRepository) List(ctx context.Context) ([]domain.APIPermission, error) {
	return r.query(ctx, r.builder.Select(apiPermissionColumns...).
		From("iam.api_permissions").
		OrderBy("path ASC", "method ASC"))
}

// ListByIDs returns the API permissions whose id is in ids.
func (r *APIPermissionRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.APIPermission, error) {
	if len(ids) == 0 {
		return []domain.APIPermission{}, nil
	}
	return r.query(ctx, r.builder.Select(apiPermissionColumns...).
		From("iam.api_permissions").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id ASC"))
}

// GetByID retrieves one API permission.
func (r *APIPermissionRepository) GetByID(ctx context.Context, id int64) (*domain.APIPermission, error) {
	found, err := r.query(ctx, r.builder.Select(apiPermissionColumns...).
		From("iam.api_permissions").
		Where(squirrel.Eq{"id": id}).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	return &found[0], nil
}

// Update rewrites method, path, match type and description.
func (r *APIPermissionRepository) Update(ctx context.Context, p domain.APIPermission) error {
	stmt, args, err := r.builder.Update("iam.api_permissions").
		Set("method", p.Method).
		Set("path", p.Path).
		Set("match_type", string(p.MatchType)).
		Set("description", p.Description).
		Where(squirrel.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update api permission sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("update api permission", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an API permission with its role links and reports the roles that held it.
func (r *APIPermissionRepository) Delete(ctx context.Context, id int64) ([]int64, error) {
	return r.deleteGrant(ctx, "iam.api_permissions", "iam.role_api_permissions", "api_permission_id", id)
}

func (r *APIPermissionRepository) query(ctx context.Context, q squirrel.SelectBuilder) ([]domain.APIPermission, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select api permissions sql: %w", err)
	}

	var out []domain.APIPermission
	err = r.read(ctx, func() error {
		rows, err := r.db.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		out, err = scanAPIPermissions(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query api permissions: %w", err)
	}
	return out, nil
}

func scanAPIPermission(row pgx.Row) (*domain.APIPermission, error) {
	var (
		p     domain.APIPermission
		match string
	)
	if err := row.Scan(&p.ID, &p.Method, &p.Path, &match, &p.Description); err != nil {
		return nil, err
	}
	p.MatchType = domain.MatchType(match)
	return &p, nil
}

func scanAPIPermissions(rows pgx.Rows) ([]domain.APIPermission, error) {
	defer rows.Close()

	out := make([]domain.APIPermission, 0)
	for rows.Next() {
		p, err := scanAPIPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api permission: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api permissions: %w", err)
	}
	return out, nil
}

var _ port.APIPermissionRepository = (*APIPermissionRepository)(nil)
