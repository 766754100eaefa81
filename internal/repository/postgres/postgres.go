package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/admin-iam/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RetryPolicy bounds retries of idempotent reads on connection-class failures.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
}

// DefaultRetryPolicy retries three times starting at 50ms.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Initial: 50 * time.Millisecond}

type base struct {
	db      DB
	builder squirrel.StatementBuilderType
	retry   RetryPolicy
}

func newBase(db DB, retry RetryPolicy) base {
	return base{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		retry:   retry,
	}
}

// read runs fn, retrying transient failures with exponential backoff. Once
// retries are exhausted the error is wrapped with repository.ErrUnavailable.
func (b base) read(ctx context.Context, fn func() error) error {
	if b.retry.Attempts <= 0 {
		return fn()
	}

	policy := backoff.NewExponentialBackOff()
	if b.retry.Initial > 0 {
		policy.InitialInterval = b.retry.Initial
	}
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(b.retry.Attempts)), ctx))
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return err
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (b base) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		if isTransient(err) {
			return fmt.Errorf("%w: begin: %v", repository.ErrUnavailable, err)
		}
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// deleteGrant removes a permission row and its role links in one
// transaction, returning the roles whose links were removed.
func (b base) deleteGrant(ctx context.Context, table, links, column string, id int64) ([]int64, error) {
	unlinkStmt, unlinkArgs, err := b.builder.Delete(links).
		Where(squirrel.Eq{column: id}).
		Suffix("RETURNING role_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unlink %s sql: %w", table, err)
	}
	delStmt, delArgs, err := b.builder.Delete(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete %s sql: %w", table, err)
	}

	var roleIDs []int64
	err = b.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, unlinkStmt, unlinkArgs...)
		if err != nil {
			return mapWriteError("unlink "+table, err)
		}
		if roleIDs, err = collectIDs(rows); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, delStmt, delArgs...)
		if err != nil {
			return mapWriteError("delete "+table, err)
		}
		if res.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roleIDs, nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "40001", pgErr.Code == "57P01":
			return true
		}
	}
	return false
}

// mapWriteError converts unique violations into repository.ErrConflict and
// dangling foreign keys into repository.ErrNotFound.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %v", op, repository.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
