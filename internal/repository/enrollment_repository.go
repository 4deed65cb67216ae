package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// EnrollmentRepository decides exam eligibility from enrollments and results.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// IsEligible reports whether the student is enrolled for the exam and has
// no result for it yet. An enrollment may redirect to another exam.
func (r *EnrollmentRepository) IsEligible(ctx context.Context, studentID, examID string) (session.Eligibility, error) {
	var available string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(available_exam_id, exam_id)
		 FROM exam_enrollments
		 WHERE student_id = $1 AND exam_id = $2`, studentID, examID,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Eligibility{Reason: "you are not enrolled for this exam"}, nil
		}
		return session.Eligibility{}, err
	}

	var taken bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM exam_results WHERE student_id = $1 AND exam_id = $2
		 )`, studentID, available,
	).Scan(&taken)
	if err != nil {
		return session.Eligibility{}, err
	}
	if taken {
		return session.Eligibility{AvailableExamID: available, Reason: "you have already completed this exam"}, nil
	}

	return session.Eligibility{Eligible: true, AvailableExamID: available}, nil
}

// Enroll allows the student to take examID, optionally served as availableExamID.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, examID, availableExamID string) error {
	var available *string
	if availableExamID != "" && availableExamID != examID {
		available = &availableExamID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_enrollments (student_id, exam_id, available_exam_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (student_id, exam_id) DO UPDATE
		 SET available_exam_id = EXCLUDED.available_exam_id`,
		studentID, examID, available,
	)
	return err
}
