package postgres

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/admin-iam/internal/repository"
)

func TestAPIPermissionRepository_DeleteReportsHolders(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAPIPermissionRepository(mock, fastRetry)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM iam\.role_api_permissions WHERE api_permission_id = \$1 RETURNING role_id`).
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"role_id"}).AddRow(int64(3)).AddRow(int64(4)))
	mock.ExpectExec(`DELETE FROM iam\.api_permissions WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	roleIDs, err := repo.Delete(context.Background(), 9)
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(roleIDs) != 2 || roleIDs[0] != 3 || roleIDs[1] != 4 {
		t.Fatalf("unexpected holders %v", roleIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPermissionRepository_DeleteMissingRollsBack(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPermissionRepository(mock, fastRetry)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM iam\.role_permissions WHERE permission_id = \$1 RETURNING role_id`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"role_id"}))
	mock.ExpectExec(`DELETE FROM iam\.permissions WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	if _, err := repo.Delete(context.Background(), 7); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
