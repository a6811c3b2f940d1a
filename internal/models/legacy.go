package models

import (
	"strconv"
	"strings"
	"time"
)

// Confidence grades how much structural evidence supported a parse.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// TimeOfDay identifies when a legacy class session met.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "MORNING"
	TimeOfDayAfternoon TimeOfDay = "AFTERNOON"
	TimeOfDayEvening   TimeOfDay = "EVENING"
)

// TimeIndicatorFor maps a single-letter legacy indicator to a TimeOfDay.
func TimeIndicatorFor(indicator string) (TimeOfDay, bool) {
	switch indicator {
	case "M":
		return TimeOfDayMorning, true
	case "A":
		return TimeOfDayAfternoon, true
	case "E":
		return TimeOfDayEvening, true
	}
	return "", false
}

// RawLegacyRecord is one row of a legacy CSV export. All string
// coercion happens here, at construction time, so downstream code
// never re-parses field text.
type RawLegacyRecord struct {
	// IPK is the legacy system's durable integer row id. Valid only
	// when IPKValid is set; a row with an uncoercible id is carried
	// through so the run can reject it with context.
	IPK      int64
	IPKValid bool
	Line     int
	Fields   map[string]string
}

// Get returns the trimmed value for a column, empty when absent.
func (r *RawLegacyRecord) Get(column string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[column])
}

// GetInt coerces a column to an integer.
func (r *RawLegacyRecord) GetInt(column string) (int64, bool) {
	raw := r.Get(column)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetDate coerces a column to a date using the legacy export format.
func (r *RawLegacyRecord) GetDate(column string) (time.Time, bool) {
	raw := r.Get(column)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParsedIdentifier is the structured decomposition of one composite
// legacy class identifier. A failed parse is still a ParsedIdentifier;
// the Err flag and Confidence carry the failure, never a panic.
type ParsedIdentifier struct {
	Original      string     `db:"original" json:"original"`
	Program       string     `db:"program" json:"program"`
	TermCode      string     `db:"term_code" json:"term_code"`
	Year          string     `db:"year" json:"year"`
	Semester      string     `db:"semester" json:"semester"`
	Level         string     `db:"level" json:"level"`
	Section       string     `db:"section" json:"section"`
	TimeIndicator string     `db:"time_indicator" json:"time_indicator"`
	CourseCode    string     `db:"course_code" json:"course_code"`
	Confidence    Confidence `db:"confidence" json:"confidence"`
	Err           bool       `db:"err" json:"err"`
	ErrMessage    string     `db:"err_message" json:"err_message,omitempty"`
}

// NeedsReview reports whether the parse must be queued for a human.
func (p ParsedIdentifier) NeedsReview() bool {
	return p.Err || p.Confidence == ConfidenceLow
}

// ReviewItem is a LOW-confidence parse queued for manual review.
type ReviewItem struct {
	ID         string           `db:"id" json:"id"`
	RunID      string           `db:"run_id" json:"run_id"`
	LegacyID   int64            `db:"legacy_id" json:"legacy_id"`
	Identifier ParsedIdentifier `db:"-" json:"identifier"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}
