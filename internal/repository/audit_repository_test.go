package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

func TestMigrationAuditCreateAndCloseRun(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMigrationAuditRepository(db)

	mock.ExpectExec(`INSERT INTO migration_runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE migration_runs SET status`).
		WithArgs("run-1", models.RunStatusSuccess, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.MigrationRun{
		ID:        "run-1",
		Name:      "receipt_backfill",
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateRun(context.Background(), run))
	require.NoError(t, repo.CloseRun(context.Background(), "run-1", models.RunStatusSuccess, time.Now().UTC()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationAuditAppendRejection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMigrationAuditRepository(db)

	mock.ExpectExec(`INSERT INTO migration_rejections`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	details := "strconv.ParseInt: parsing \"abc\": invalid syntax"
	rec := &models.RejectionRecord{
		ID:           "rej-1",
		RunID:        "run-1",
		Category:     "invalid_legacy_id",
		RecordID:     "line 14",
		Reason:       "legacy id is not an integer",
		ErrorDetails: &details,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.AppendRejection(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}
