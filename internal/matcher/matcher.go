// Package matcher reconstructs historical discount state from legacy
// receipts. Given a transaction tied to an academic term, it resolves
// which pricing rules applied and records each resolution as an
// immutable DiscountApplication.
//
// Rule selection keys off the term's start date, never the payment
// date. A payment recorded years late still prices at the term it
// paid for; this is a business invariant, not an implementation
// choice.
package matcher

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// RuleSource loads discount rules active on a pricing date.
type RuleSource interface {
	ActiveAsOf(ctx context.Context, date time.Time) ([]models.DiscountRule, error)
}

// EnrollmentSource loads a student's enrollments for a term.
type EnrollmentSource interface {
	ByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error)
}

// ApplicationStore persists resolved discount applications. ext is
// the caller's batch transaction; nil means the store's own pool.
type ApplicationStore interface {
	Insert(ctx context.Context, ext sqlx.ExtContext, app *models.DiscountApplication) error
	ExistsForReceipt(ctx context.Context, ext sqlx.ExtContext, legacyReceiptID, ruleID string) (bool, error)
}

// Transaction is one historical financial event under reconciliation.
type Transaction struct {
	StudentID       string
	Term            models.Term
	Cycle           models.Cycle
	Program         string
	Amount          decimal.Decimal
	PaymentDate     time.Time
	LegacyReceiptID *string
	LegacyIPK       *int64
}

// RuleMatch is one eligible rule with its computed discount.
type RuleMatch struct {
	Rule            models.DiscountRule
	Discount        decimal.Decimal
	MatchingCourses int
}

// Resolution is the combined outcome for one transaction.
type Resolution struct {
	Matches        []RuleMatch
	OriginalAmount decimal.Decimal
	DiscountTotal  decimal.Decimal
	FinalAmount    decimal.Decimal
}

// Matcher resolves discount rules for historical transactions.
type Matcher struct {
	rules       RuleSource
	enrollments EnrollmentSource
	apps        ApplicationStore
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// New constructs a Matcher.
func New(rules RuleSource, enrollments EnrollmentSource, apps ApplicationStore, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		rules:       rules,
		enrollments: enrollments,
		apps:        apps,
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
	}
}

// Resolve computes the applicable rules and amounts without any
// persistence. Matches on independent dimensions combine additively;
// if any eligible rule is exclusive, the largest exclusive discount
// wins and suppresses combination.
func (m *Matcher) Resolve(ctx context.Context, txn Transaction) (*Resolution, error) {
	pricingDate := txn.Term.StartDate

	rules, err := m.rules.ActiveAsOf(ctx, pricingDate)
	if err != nil {
		return nil, err
	}

	var enrollments []models.Enrollment
	enrollmentsLoaded := false
	loadEnrollments := func() ([]models.Enrollment, error) {
		if enrollmentsLoaded {
			return enrollments, nil
		}
		enrollments, err = m.enrollments.ByStudentAndTerm(ctx, txn.StudentID, txn.Term.ID)
		if err != nil {
			return nil, err
		}
		enrollmentsLoaded = true
		return enrollments, nil
	}

	var matches []RuleMatch
	for _, rule := range rules {
		if err := m.validate.Struct(rule); err != nil {
			m.logger.Warn("skipping invalid discount rule",
				zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}

		// Each filter is a hard gate; order per precedence.
		if len(rule.AppliesToTerms) > 0 && !contains(rule.AppliesToTerms, txn.Term.Code) {
			continue
		}
		if rule.AppliesToCycle != "" && rule.AppliesToCycle != txn.Cycle {
			continue
		}
		if len(rule.AppliesToPrograms) > 0 && !contains(rule.AppliesToPrograms, txn.Program) {
			continue
		}

		matching, total := 0, 0
		if rule.Schedule != nil && len(rule.Schedule.TimeOfDay) > 0 {
			enrolled, err := loadEnrollments()
			if err != nil {
				return nil, err
			}
			total = len(enrolled)
			for _, e := range enrolled {
				if containsTimeOfDay(rule.Schedule.TimeOfDay, e.TimeOfDay) {
					matching++
				}
			}
			if matching == 0 || matching < rule.Schedule.MinCourses {
				continue
			}
		}

		if !rule.EffectiveOn(pricingDate) {
			continue
		}

		discount := computeDiscount(rule, txn.Amount, matching, total)
		if discount.IsZero() {
			continue
		}
		matches = append(matches, RuleMatch{Rule: rule, Discount: discount, MatchingCourses: matching})
	}

	matches = resolveExclusivity(matches)

	totalDiscount := decimal.Zero
	for _, match := range matches {
		totalDiscount = totalDiscount.Add(match.Discount)
	}
	if totalDiscount.GreaterThan(txn.Amount) {
		totalDiscount = txn.Amount
	}

	return &Resolution{
		Matches:        matches,
		OriginalAmount: txn.Amount,
		DiscountTotal:  totalDiscount,
		FinalAmount:    txn.Amount.Sub(totalDiscount),
	}, nil
}

// Apply resolves the transaction and persists one immutable
// DiscountApplication per applied rule. Writes execute on ext so they
// commit or roll back with the caller's batch.
func (m *Matcher) Apply(ctx context.Context, ext sqlx.ExtContext, txn Transaction) (*Resolution, error) {
	resolution, err := m.Resolve(ctx, txn)
	if err != nil {
		return nil, err
	}

	for _, match := range resolution.Matches {
		if txn.LegacyReceiptID != nil {
			exists, err := m.apps.ExistsForReceipt(ctx, ext, *txn.LegacyReceiptID, match.Rule.ID)
			if err != nil {
				return nil, err
			}
			// Already reconciled on a previous run; history stays single-entry.
			if exists {
				continue
			}
		}
		app := &models.DiscountApplication{
			ID:              uuid.NewString(),
			RuleID:          match.Rule.ID,
			StudentID:       txn.StudentID,
			TermID:          txn.Term.ID,
			OriginalAmount:  txn.Amount,
			DiscountAmount:  match.Discount,
			FinalAmount:     txn.Amount.Sub(match.Discount),
			Status:          models.ApplicationStatusSystemComputed,
			LegacyReceiptID: txn.LegacyReceiptID,
			LegacyIPK:       txn.LegacyIPK,
			CreatedAt:       m.now().UTC(),
		}
		if err := m.apps.Insert(ctx, ext, app); err != nil {
			return nil, err
		}
	}
	return resolution, nil
}

// computeDiscount applies the rule's calculation method. matching and
// total are zero for rules without a schedule filter.
func computeDiscount(rule models.DiscountRule, amount decimal.Decimal, matching, total int) decimal.Decimal {
	method := models.CalcFlatRate
	if rule.Schedule != nil && rule.Schedule.Method != "" {
		method = rule.Schedule.Method
	}

	hundred := decimal.NewFromInt(100)

	switch method {
	case models.CalcPerClass:
		if matching == 0 {
			return decimal.Zero
		}
		if rule.Type == models.DiscountTypeFixed {
			return rule.Amount.Mul(decimal.NewFromInt(int64(matching)))
		}
		// Percentage of the invoice share the matching classes carry.
		return amount.Mul(rule.Amount).Div(hundred).
			Mul(decimal.NewFromInt(int64(matching))).
			Div(decimal.NewFromInt(int64(total)))
	case models.CalcWeightedAverage:
		// Blended percentage proportional to the matching share of the
		// student's schedule, never a fixed midpoint.
		if total == 0 {
			return decimal.Zero
		}
		if rule.Type == models.DiscountTypeFixed {
			return rule.Amount.Mul(decimal.NewFromInt(int64(matching)))
		}
		return amount.Mul(rule.Amount).Div(hundred).
			Mul(decimal.NewFromInt(int64(matching))).
			Div(decimal.NewFromInt(int64(total)))
	default:
		if rule.Type == models.DiscountTypeFixed {
			return rule.Amount
		}
		return amount.Mul(rule.Amount).Div(hundred)
	}
}

// resolveExclusivity suppresses additive combination when an eligible
// exclusive rule is present: the largest exclusive discount wins.
func resolveExclusivity(matches []RuleMatch) []RuleMatch {
	var best *RuleMatch
	for i := range matches {
		if !matches[i].Rule.IsExclusive {
			continue
		}
		if best == nil || matches[i].Discount.GreaterThan(best.Discount) {
			best = &matches[i]
		}
	}
	if best == nil {
		return matches
	}
	return []RuleMatch{*best}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func containsTimeOfDay(list []models.TimeOfDay, value models.TimeOfDay) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
