package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// Enrollment captures a student's registration to a class within a
// term. TimeOfDay comes from the decomposed legacy identifier and is
// what schedule-based discount rules match against.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	TermID     string           `db:"term_id" json:"term_id"`
	CourseCode string           `db:"course_code" json:"course_code"`
	Section    string           `db:"section" json:"section"`
	TimeOfDay  TimeOfDay        `db:"time_of_day" json:"time_of_day"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	LegacyID   *int64           `db:"legacy_id" json:"legacy_id,omitempty"`
	JoinedAt   time.Time        `db:"joined_at" json:"joined_at"`
}
