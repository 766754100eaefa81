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

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	base
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(db DB, retry RetryPolicy) *UserRepository {
	return &UserRepository{base: newBase(db, retry)}
}

func (r *UserRepository) selectPrincipals() squirrel.SelectBuilder {
	return r.builder.Select(
		"u.id",
		"u.username",
		"u.password_hash",
		"u.real_name",
		"u.email",
		"u.is_system",
		"u.created_at",
		"u.updated_at",
		"COALESCE(array_agg(ur.role_id ORDER BY ur.role_id) FILTER (WHERE ur.role_id IS NOT NULL), '{}') AS role_ids",
	).
		From("iam.users u").
		LeftJoin("iam.user_roles ur ON ur.user_id = u.id").
		GroupBy("u.id")
}

// Create inserts the principal and its role links in one transaction.
func (r *UserRepository) Create(ctx context.Context, p domain.Principal) (*domain.Principal, error) {
	var created *domain.Principal
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = r.insertPrincipal(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateExternal inserts the principal, its roles and the provider binding in
// one transaction.
func (r *UserRepository) CreateExternal(ctx context.Context, p domain.Principal, provider, subject string) (*domain.Principal, error) {
	var created *domain.Principal
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		if created, err = r.insertPrincipal(ctx, tx, p); err != nil {
			return err
		}
		stmt, args, err := r.builder.Insert("iam.external_identities").
			Columns("provider", "subject", "user_id").
			Values(provider, subject, created.ID).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert identity sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return mapWriteError("insert identity", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) insertPrincipal(ctx context.Context, tx pgx.Tx, p domain.Principal) (*domain.Principal, error) {
	stmt, args, err := r.builder.Insert("iam.users").
		Columns("username", "password_hash", "real_name", "email", "is_system").
		Values(p.Username, p.PasswordHash, p.RealName, p.Email, p.IsSystem).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}

	created := p
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, mapWriteError("insert user", err)
	}
	if err := r.insertRoles(ctx, tx, created.ID, p.RoleIDs); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetByID retrieves a principal with its role ids.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.Principal, error) {
	return r.getOne(ctx, r.selectPrincipals().Where(squirrel.Eq{"u.id": id}))
}

// GetByUsername retrieves a principal by its unique username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.Principal, error) {
	return r.getOne(ctx, r.selectPrincipals().Where(squirrel.Eq{"u.username": username}))
}

// GetByExternalIdentity retrieves the principal bound to a provider account.
func (r *UserRepository) GetByExternalIdentity(ctx context.Context, provider, subject string) (*domain.Principal, error) {
	return r.getOne(ctx, r.selectPrincipals().
		Join("iam.external_identities ei ON ei.user_id = u.id").
		Where(squirrel.Eq{"ei.provider": provider, "ei.subject": subject}))
}

func (r *UserRepository) getOne(ctx context.Context, query squirrel.SelectBuilder) (*domain.Principal, error) {
	stmt, args, err := query.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var p *domain.Principal
	err = r.read(ctx, func() error {
		var scanErr error
		p, scanErr = scanPrincipal(r.db.QueryRow(ctx, stmt, args...))
		return scanErr
	})
	if err != nil {
		return nil, notFoundOr(err, "select user")
	}
	return p, nil
}

// List returns all principals ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]domain.Principal, error) {
	stmt, args, err := r.selectPrincipals().OrderBy("u.id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	var out []domain.Principal
	err = r.read(ctx, func() error {
		rows, err := r.db.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			p, err := scanPrincipal(rows)
			if err != nil {
				return fmt.Errorf("scan user: %w", err)
			}
			out = append(out, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return out, nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("password_hash", passwordHash).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("update password", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReplaceRoles swaps the principal's roles in one transaction.
func (r *UserRepository) ReplaceRoles(ctx context.Context, id int64, roleIDs []int64) error {
	stmt, args, err := r.builder.Delete("iam.user_roles").Where(squirrel.Eq{"user_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build clear user roles sql: %w", err)
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return mapWriteError("clear user roles", err)
		}
		return r.insertRoles(ctx, tx, id, roleIDs)
	})
}

func (r *UserRepository) insertRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	query := r.builder.Insert("iam.user_roles").Columns("user_id", "role_id")
	for _, roleID := range roleIDs {
		query = query.Values(userID, roleID)
	}
	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert user roles sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert user roles", err)
	}
	return nil
}

// Delete removes a principal; role links cascade.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.Delete("iam.users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("delete user", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	var p domain.Principal
	if err := row.Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.RealName,
		&p.Email,
		&p.IsSystem,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.RoleIDs,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
