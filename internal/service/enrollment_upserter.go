package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

type upserterTermSource interface {
	FindByCode(ctx context.Context, code string) (*models.Term, error)
}

type enrollmentTarget interface {
	UpsertByLegacyID(ctx context.Context, ext sqlx.ExtContext, enrollment *models.Enrollment) error
	ExistsByLegacyID(ctx context.Context, ext sqlx.ExtContext, legacyID int64) (bool, error)
}

type studentResolver interface {
	ResolveLegacyStudent(ctx context.Context, legacyStudentID string) (string, error)
}

// EnrollmentUpserter materialises decomposed legacy rows as
// enrollments, keyed on the legacy id so re-runs are no-ops.
type EnrollmentUpserter struct {
	terms       upserterTermSource
	enrollments enrollmentTarget
	students    studentResolver
}

// NewEnrollmentUpserter constructs the upserter.
func NewEnrollmentUpserter(terms upserterTermSource, enrollments enrollmentTarget, students studentResolver) *EnrollmentUpserter {
	return &EnrollmentUpserter{terms: terms, enrollments: enrollments, students: students}
}

// Upsert implements the Upserter contract for enrollment imports.
// Writes execute on ext so they share the caller's batch transaction.
func (u *EnrollmentUpserter) Upsert(ctx context.Context, ext sqlx.ExtContext, rec *models.RawLegacyRecord, parsed models.ParsedIdentifier) (bool, error) {
	term, err := u.terms.FindByCode(ctx, parsed.TermCode)
	if err != nil {
		return false, fmt.Errorf("resolve term %q: %w", parsed.TermCode, err)
	}

	studentID, err := u.students.ResolveLegacyStudent(ctx, rec.Get("studentid"))
	if err != nil {
		return false, fmt.Errorf("resolve student %q: %w", rec.Get("studentid"), err)
	}

	existed, err := u.enrollments.ExistsByLegacyID(ctx, ext, rec.IPK)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}

	legacyID := rec.IPK
	enrollment := &models.Enrollment{
		StudentID:  studentID,
		TermID:     term.ID,
		CourseCode: parsed.CourseCode,
		Section:    parsed.Section,
		LegacyID:   &legacyID,
	}
	if tod, ok := models.TimeIndicatorFor(parsed.TimeIndicator); ok {
		enrollment.TimeOfDay = tod
	}

	if err := u.enrollments.UpsertByLegacyID(ctx, ext, enrollment); err != nil {
		return false, err
	}
	return !existed, nil
}
