package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// MigrationAuditRepository persists run bookkeeping. It deliberately
// takes its own *sqlx.DB rather than a transaction: audit rows record
// attempts and must survive a rolled-back data batch.
type MigrationAuditRepository struct {
	db *sqlx.DB
}

// NewMigrationAuditRepository constructs the repository.
func NewMigrationAuditRepository(db *sqlx.DB) *MigrationAuditRepository {
	return &MigrationAuditRepository{db: db}
}

// CreateRun inserts the run row at start.
func (r *MigrationAuditRepository) CreateRun(ctx context.Context, run *models.MigrationRun) error {
	const query = `INSERT INTO migration_runs (id, name, status, dry_run, started_at)
        VALUES (:id, :name, :status, :dry_run, :started_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create migration run: %w", err)
	}
	return nil
}

// CloseRun records the run's terminal status.
func (r *MigrationAuditRepository) CloseRun(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error {
	const query = `UPDATE migration_runs SET status = $2, finished_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, runID, status, finishedAt); err != nil {
		return fmt.Errorf("close migration run: %w", err)
	}
	return nil
}

// AppendRejection inserts one immutable rejection record.
func (r *MigrationAuditRepository) AppendRejection(ctx context.Context, rec *models.RejectionRecord) error {
	const query = `INSERT INTO migration_rejections (id, run_id, category, record_id, reason, error_details, created_at)
        VALUES (:id, :run_id, :category, :record_id, :reason, :error_details, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("append rejection: %w", err)
	}
	return nil
}
