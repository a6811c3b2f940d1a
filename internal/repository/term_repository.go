package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// TermRepository handles persistence for academic terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

const termColumns = `id, code, name, cycle, start_date, end_date, is_active, legacy_id, created_at, updated_at`

// FindByCode returns the term carrying a legacy term code.
func (r *TermRepository) FindByCode(ctx context.Context, code string) (*models.Term, error) {
	query := fmt.Sprintf(`SELECT %s FROM terms WHERE code = $1`, termColumns)
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, code); err != nil {
		return nil, fmt.Errorf("find term by code: %w", err)
	}
	return &term, nil
}

