package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, term_id, course_code, section, time_of_day, status, legacy_id, joined_at`

// ByStudentAndTerm returns a student's enrollments for a term; the
// reconciliation matcher reads these to evaluate schedule filters.
func (r *EnrollmentRepository) ByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND term_id = $2`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ExistsByLegacyID reports whether an enrollment already carries the
// legacy id. ext is the caller's batch transaction; nil falls back to
// the pool.
func (r *EnrollmentRepository) ExistsByLegacyID(ctx context.Context, ext sqlx.ExtContext, legacyID int64) (bool, error) {
	if ext == nil {
		ext = r.db
	}
	const query = `SELECT 1 FROM enrollments WHERE legacy_id = $1 LIMIT 1`
	var one int
	if err := sqlx.GetContext(ctx, ext, &one, query, legacyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment by legacy id: %w", err)
	}
	return true, nil
}

// UpsertByLegacyID creates or refreshes an enrollment keyed on its
// legacy id, which makes repeated migration runs idempotent. ext is
// the caller's batch transaction; nil falls back to the pool.
func (r *EnrollmentRepository) UpsertByLegacyID(ctx context.Context, ext sqlx.ExtContext, enrollment *models.Enrollment) error {
	if ext == nil {
		ext = r.db
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, term_id, course_code, section, time_of_day, status, legacy_id, joined_at)
        VALUES (:id, :student_id, :term_id, :course_code, :section, :time_of_day, :status, :legacy_id, :joined_at)
        ON CONFLICT (legacy_id) DO UPDATE SET
          student_id = EXCLUDED.student_id,
          term_id = EXCLUDED.term_id,
          course_code = EXCLUDED.course_code,
          section = EXCLUDED.section,
          time_of_day = EXCLUDED.time_of_day,
          status = EXCLUDED.status`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, enrollment); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}
