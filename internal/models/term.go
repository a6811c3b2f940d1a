package models

import "time"

// Cycle groups programs for pricing purposes.
type Cycle string

const (
	CycleHighSchool Cycle = "HS"
	CycleBachelor   Cycle = "BA"
	CycleMaster     Cycle = "MA"
	CycleLanguage   Cycle = "LANG"
)

// Term models an academic term. StartDate doubles as the pricing
// reference date for every historical reconciliation; payment dates
// are never used to select rules.
type Term struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Cycle     Cycle     `db:"cycle" json:"cycle"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	LegacyID  *int64    `db:"legacy_id" json:"legacy_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
