package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// WatermarkSourceRepository reads the highest committed legacy id from
// target tables. It is the ground truth the change-detection ledger
// recomputes its watermark from on every run.
type WatermarkSourceRepository struct {
	db *sqlx.DB
}

// NewWatermarkSourceRepository constructs the repository.
func NewWatermarkSourceRepository(db *sqlx.DB) *WatermarkSourceRepository {
	return &WatermarkSourceRepository{db: db}
}

// MaxLegacyID returns the maximum legacy id in a table, 0 when the
// table is empty. Identifiers come from configuration, not user
// input, but are quoted anyway.
func (r *WatermarkSourceRepository) MaxLegacyID(ctx context.Context, table, column string) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s",
		pq.QuoteIdentifier(column), pq.QuoteIdentifier(table))
	var max int64
	if err := r.db.GetContext(ctx, &max, query); err != nil {
		return 0, fmt.Errorf("max legacy id for %s: %w", table, err)
	}
	return max, nil
}
