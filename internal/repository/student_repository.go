package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StudentRepository resolves legacy student numbers to current ids.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ResolveLegacyStudent maps the predecessor system's student number
// to the current student id. Unknown numbers are an error the caller
// turns into a per-record rejection.
func (r *StudentRepository) ResolveLegacyStudent(ctx context.Context, legacyStudentID string) (string, error) {
	const query = `SELECT id FROM students WHERE legacy_student_number = $1`
	var id string
	if err := r.db.GetContext(ctx, &id, query, legacyStudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("unknown legacy student %q", legacyStudentID)
		}
		return "", fmt.Errorf("resolve legacy student: %w", err)
	}
	return id, nil
}
