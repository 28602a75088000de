package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMigrate_RunsEveryStep(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	mock.MatchExpectationsInOrder(true)

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMigrate_StopsAtFailedStep(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	boom := errors.New("permission denied")
	mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE").WillReturnError(boom)

	err := Migrate(context.Background(), db)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !strings.Contains(err.Error(), "migrate step 1") {
		t.Errorf("expected failing step in message, got %q", err)
	}
}
