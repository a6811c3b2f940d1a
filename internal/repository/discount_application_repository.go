package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// DiscountApplicationRepository persists resolved discount events.
// Applications are insert-only; corrections happen by recording a new
// application, never by mutating history.
type DiscountApplicationRepository struct {
	db *sqlx.DB
}

// NewDiscountApplicationRepository constructs the repository.
func NewDiscountApplicationRepository(db *sqlx.DB) *DiscountApplicationRepository {
	return &DiscountApplicationRepository{db: db}
}

// Insert persists one application. ext is the caller's batch
// transaction; nil falls back to the pool.
func (r *DiscountApplicationRepository) Insert(ctx context.Context, ext sqlx.ExtContext, app *models.DiscountApplication) error {
	if ext == nil {
		ext = r.db
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO discount_applications
        (id, rule_id, student_id, term_id, original_amount, discount_amount, final_amount,
         status, legacy_receipt_id, legacy_ipk, created_at)
        VALUES (:id, :rule_id, :student_id, :term_id, :original_amount, :discount_amount,
                :final_amount, :status, :legacy_receipt_id, :legacy_ipk, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, app); err != nil {
		return fmt.Errorf("insert discount application: %w", err)
	}
	return nil
}

// ExistsForReceipt reports whether a receipt was already reconciled
// against a rule; duplicate runs skip instead of double-applying.
// Running on ext lets the check see inserts from the same batch.
func (r *DiscountApplicationRepository) ExistsForReceipt(ctx context.Context, ext sqlx.ExtContext, legacyReceiptID, ruleID string) (bool, error) {
	if ext == nil {
		ext = r.db
	}
	const query = `SELECT 1 FROM discount_applications
        WHERE legacy_receipt_id = $1 AND rule_id = $2 LIMIT 1`
	var one int
	if err := sqlx.GetContext(ctx, ext, &one, query, legacyReceiptID, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check discount application: %w", err)
	}
	return true, nil
}
