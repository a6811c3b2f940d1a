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

// DiscountRuleRepository handles persistence of discount rules.
type DiscountRuleRepository struct {
	db *sqlx.DB
}

// NewDiscountRuleRepository constructs the repository.
func NewDiscountRuleRepository(db *sqlx.DB) *DiscountRuleRepository {
	return &DiscountRuleRepository{db: db}
}

// discountRuleRow carries the JSONB schedule column alongside the
// model fields.
type discountRuleRow struct {
	models.DiscountRule
	ScheduleJSON []byte `db:"schedule"`
}

const discountRuleColumns = `id, pattern, type, amount, applies_to_terms, applies_to_cycle,
        applies_to_programs, schedule, effective_date, effective_until, is_exclusive, is_active,
        created_at, updated_at`

// ActiveAsOf returns active rules whose effective window covers the
// pricing date.
func (r *DiscountRuleRepository) ActiveAsOf(ctx context.Context, date time.Time) ([]models.DiscountRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM discount_rules
        WHERE is_active = TRUE
          AND effective_date <= $1
          AND (effective_until IS NULL OR effective_until >= $1)
        ORDER BY effective_date, id`, discountRuleColumns)

	var rows []discountRuleRow
	if err := r.db.SelectContext(ctx, &rows, query, date); err != nil {
		return nil, fmt.Errorf("list active discount rules: %w", err)
	}

	rules := make([]models.DiscountRule, 0, len(rows))
	for _, row := range rows {
		rule := row.DiscountRule
		if len(row.ScheduleJSON) > 0 {
			var schedule models.ScheduleFilter
			if err := json.Unmarshal(row.ScheduleJSON, &schedule); err != nil {
				return nil, fmt.Errorf("decode schedule for rule %s: %w", rule.ID, err)
			}
			rule.Schedule = &schedule
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Create persists a new rule; used by pricing-setup migrations.
func (r *DiscountRuleRepository) Create(ctx context.Context, rule *models.DiscountRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	var scheduleJSON []byte
	if rule.Schedule != nil {
		encoded, err := json.Marshal(rule.Schedule)
		if err != nil {
			return fmt.Errorf("encode schedule: %w", err)
		}
		scheduleJSON = encoded
	}

	query := fmt.Sprintf(`INSERT INTO discount_rules (%s)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, discountRuleColumns)
	if _, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Pattern, rule.Type, rule.Amount, rule.AppliesToTerms, rule.AppliesToCycle,
		rule.AppliesToPrograms, scheduleJSON, rule.EffectiveDate, rule.EffectiveUntil,
		rule.IsExclusive, rule.IsActive, rule.CreatedAt, rule.UpdatedAt); err != nil {
		return fmt.Errorf("create discount rule: %w", err)
	}
	return nil
}
