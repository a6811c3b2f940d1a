package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// ReviewQueueRepository stores LOW-confidence identifier parses for
// manual review. HIGH and MEDIUM parses are applied automatically and
// never land here.
type ReviewQueueRepository struct {
	db *sqlx.DB
}

// NewReviewQueueRepository constructs the repository.
func NewReviewQueueRepository(db *sqlx.DB) *ReviewQueueRepository {
	return &ReviewQueueRepository{db: db}
}

// Enqueue appends one parse to the review queue.
func (r *ReviewQueueRepository) Enqueue(ctx context.Context, item *models.ReviewItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(item.Identifier)
	if err != nil {
		return fmt.Errorf("encode parsed identifier: %w", err)
	}
	const query = `INSERT INTO identifier_review_queue (id, run_id, legacy_id, identifier, created_at)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, item.ID, item.RunID, item.LegacyID, payload, item.CreatedAt); err != nil {
		return fmt.Errorf("enqueue review item: %w", err)
	}
	return nil
}

// PendingCount returns the queue depth; surfaced in run reports.
func (r *ReviewQueueRepository) PendingCount(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM identifier_review_queue WHERE resolved_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count review queue: %w", err)
	}
	return count, nil
}
