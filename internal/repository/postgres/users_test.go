package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/repository"
)

var principalColumns = []string{
	"id", "username", "password_hash", "real_name", "email", "is_system", "created_at", "updated_at", "role_ids",
}

func TestUserRepository_GetByUsername(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock, fastRetry)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM iam\.users u LEFT JOIN iam\.user_roles ur .* WHERE u\.username = \$1 GROUP BY u\.id`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(principalColumns).
			AddRow(int64(1), "alice", "hash", "Alice", "alice@example.com", false, now, now, []int64{2}))

	p, err := repo.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername returned error: %v", err)
	}
	if p.ID != 1 || len(p.RoleIDs) != 1 || p.RoleIDs[0] != 2 {
		t.Fatalf("unexpected principal %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock, fastRetry)

	mock.ExpectQuery(`FROM iam\.users u`).WithArgs(int64(7)).WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), 7); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_CreateWithRoles(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock, fastRetry)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO iam\.users \(username,password_hash,real_name,email,is_system\)`).
		WithArgs("octocat", "hash", "The Octocat", "", false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(11), now, now))
	mock.ExpectExec(`INSERT INTO iam\.user_roles \(user_id,role_id\)`).
		WithArgs(int64(11), int64(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := repo.Create(context.Background(), domain.Principal{
		Username:     "octocat",
		PasswordHash: "hash",
		RealName:     "The Octocat",
		RoleIDs:      []int64{2},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != 11 {
		t.Fatalf("expected id 11, got %d", created.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByExternalIdentity(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock, fastRetry)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM iam\.users u LEFT JOIN iam\.user_roles ur .* JOIN iam\.external_identities ei ON ei\.user_id = u\.id WHERE ei\.provider = \$1 AND ei\.subject = \$2`).
		WithArgs("github", "583231").
		WillReturnRows(pgxmock.NewRows(principalColumns).
			AddRow(int64(11), "github:octocat", "hash", "", "", false, now, now, []int64{3}))

	p, err := repo.GetByExternalIdentity(context.Background(), "github", "583231")
	if err != nil {
		t.Fatalf("GetByExternalIdentity returned error: %v", err)
	}
	if p.ID != 11 || p.Username != "github:octocat" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateExternalBindsIdentity(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock, fastRetry)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO iam\.users`).
		WithArgs("github:octocat", "hash", "", "", false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(11), now, now))
	mock.ExpectExec(`INSERT INTO iam\.user_roles`).
		WithArgs(int64(11), int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO iam\.external_identities \(provider,subject,user_id\)`).
		WithArgs("github", "583231", int64(11)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.CreateExternal(context.Background(), domain.Principal{
		Username:     "github:octocat",
		PasswordHash: "hash",
		RoleIDs:      []int64{3},
	}, "github", "583231")
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_DeleteMissing(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock, fastRetry)

	mock.ExpectExec(`DELETE FROM iam\.users WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), 5); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
