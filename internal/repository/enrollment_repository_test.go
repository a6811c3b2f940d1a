package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

func TestEnrollmentByStudentAndTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	legacyID := int64(9001)
	rows := sqlmock.NewRows([]string{"id", "student_id", "term_id", "course_code", "section", "time_of_day", "status", "legacy_id", "joined_at"}).
		AddRow("enr-1", "stu-1", "term-1", "IEAP-02", "A", models.TimeOfDayEvening, models.EnrollmentStatusActive, legacyID, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND term_id = $2")).
		WithArgs("stu-1", "term-1").
		WillReturnRows(rows)

	enrollments, err := repo.ByStudentAndTerm(context.Background(), "stu-1", "term-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.TimeOfDayEvening, enrollments[0].TimeOfDay)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentUpsertByLegacyIDFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`(?s)INSERT INTO enrollments.+ON CONFLICT \(legacy_id\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	legacyID := int64(9002)
	enrollment := &models.Enrollment{
		StudentID:  "stu-1",
		TermID:     "term-1",
		CourseCode: "IEAP-02",
		TimeOfDay:  models.TimeOfDayMorning,
		LegacyID:   &legacyID,
	}
	require.NoError(t, repo.UpsertByLegacyID(context.Background(), nil, enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.False(t, enrollment.JoinedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentUpsertRunsOnGivenTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO enrollments.+ON CONFLICT \(legacy_id\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	legacyID := int64(9003)
	require.NoError(t, repo.UpsertByLegacyID(context.Background(), tx, &models.Enrollment{
		StudentID: "stu-1",
		TermID:    "term-1",
		LegacyID:  &legacyID,
	}))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
