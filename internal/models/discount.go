package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// DiscountType distinguishes percentage from fixed-amount rules.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// CalculationMethod selects how a matched rule produces an amount.
type CalculationMethod string

const (
	// CalcPerClass applies the amount once per matching enrollment.
	CalcPerClass CalculationMethod = "per_class"
	// CalcFlatRate applies the amount once per invoice.
	CalcFlatRate CalculationMethod = "flat_rate"
	// CalcWeightedAverage blends the percentage proportionally to the
	// matching share of the student's enrollments.
	CalcWeightedAverage CalculationMethod = "weighted_average"
)

// ScheduleFilter constrains a rule to students with a given class
// schedule shape within the term.
type ScheduleFilter struct {
	TimeOfDay  []TimeOfDay       `json:"time_of_day"`
	MinCourses int               `json:"min_courses"`
	Method     CalculationMethod `json:"calculation_method"`
}

// DiscountRule is a long-lived pricing policy. An empty AppliesToTerms
// list means "every term that passes the other filters"; a non-empty
// list is an explicit allow-list of term codes.
type DiscountRule struct {
	ID                string          `db:"id" json:"id" validate:"required"`
	Pattern           string          `db:"pattern" json:"pattern" validate:"required"`
	Type              DiscountType    `db:"type" json:"type" validate:"oneof=PERCENTAGE FIXED"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	AppliesToTerms    pq.StringArray  `db:"applies_to_terms" json:"applies_to_terms"`
	AppliesToCycle    Cycle           `db:"applies_to_cycle" json:"applies_to_cycle"`
	AppliesToPrograms pq.StringArray  `db:"applies_to_programs" json:"applies_to_programs"`
	Schedule          *ScheduleFilter `db:"-" json:"schedule,omitempty"`
	EffectiveDate     time.Time       `db:"effective_date" json:"effective_date" validate:"required"`
	EffectiveUntil    *time.Time      `db:"effective_until" json:"effective_until,omitempty"`
	IsExclusive       bool            `db:"is_exclusive" json:"is_exclusive"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// EffectiveOn reports whether the rule's window covers the date.
func (r DiscountRule) EffectiveOn(date time.Time) bool {
	if date.Before(r.EffectiveDate) {
		return false
	}
	if r.EffectiveUntil != nil && date.After(*r.EffectiveUntil) {
		return false
	}
	return true
}

// ApplicationStatus separates computed from manually granted discounts.
type ApplicationStatus string

const (
	ApplicationStatusSystemComputed ApplicationStatus = "SYSTEM_COMPUTED"
	ApplicationStatusManual         ApplicationStatus = "MANUAL"
)

// DiscountApplication is one resolved discount event. Immutable after
// insert; together they form the reconciliation audit trail.
type DiscountApplication struct {
	ID              string            `db:"id" json:"id"`
	RuleID          string            `db:"rule_id" json:"rule_id"`
	StudentID       string            `db:"student_id" json:"student_id"`
	TermID          string            `db:"term_id" json:"term_id"`
	OriginalAmount  decimal.Decimal   `db:"original_amount" json:"original_amount"`
	DiscountAmount  decimal.Decimal   `db:"discount_amount" json:"discount_amount"`
	FinalAmount     decimal.Decimal   `db:"final_amount" json:"final_amount"`
	Status          ApplicationStatus `db:"status" json:"status"`
	LegacyReceiptID *string           `db:"legacy_receipt_id" json:"legacy_receipt_id,omitempty"`
	LegacyIPK       *int64            `db:"legacy_ipk" json:"legacy_ipk,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}
