package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Award kinds and statuses stored in exam_awards.
const (
	awardCredit    = "credit"
	awardPlacement = "placement"
	awardEarned    = "earned"
	awardDenied    = "denied"
)

// ResultSummary is one graded exam as listed to the student.
type ResultSummary struct {
	ID           int64     `json:"id"`
	ExamID       string    `json:"exam_id"`
	SerialNumber int64     `json:"serial_number"`
	Score        int       `json:"score"`
	Licensed     bool      `json:"licensed"`
	GradedAt     time.Time `json:"graded_at"`
}

// ResultRepository persists grading results.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// HasResult reports whether a result with the given key was recorded.
func (r *ResultRepository) HasResult(ctx context.Context, key model.ResultKey) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM exam_results
			WHERE student_id = $1 AND serial_number = $2 AND realized_at = $3
		 )`, key.StudentID, key.SerialNumber, key.RealizedAt,
	).Scan(&exists)
	return exists, err
}

// RecordResult stores the result, its subtest scores and awards in one
// transaction. It returns grading.ErrDuplicateSubmission when the key exists.
func (r *ResultRepository) RecordResult(ctx context.Context, res *model.GradeResult) error {
	verdicts, err := json.Marshal(res.RuleVerdicts)
	if err != nil {
		return fmt.Errorf("encode rule verdicts: %w", err)
	}
	missed, err := json.Marshal(res.Missed)
	if err != nil {
		return fmt.Errorf("encode missed problems: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var resultID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO exam_results
			(student_id, exam_id, serial_number, realized_at, graded_at, score, rule_verdicts, missed, licensed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (student_id, serial_number, realized_at) DO NOTHING
		 RETURNING id`,
		res.StudentID, res.ExamID, res.SerialNumber, res.RealizedAt, res.GradedAt,
		res.Score, verdicts, missed, res.Licensed,
	).Scan(&resultID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return grading.ErrDuplicateSubmission
		}
		return err
	}

	if len(res.SubtestScores) > 0 {
		rows := make([][]any, 0, len(res.SubtestScores))
		for name, score := range res.SubtestScores {
			rows = append(rows, []any{resultID, name, score})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"exam_subtest_scores"},
			[]string{"result_id", "subtest", "score"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy subtest scores: %w", err)
		}
	}

	if awards := awardRows(resultID, res); len(awards) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"exam_awards"},
			[]string{"result_id", "kind", "status", "course", "outcome", "reason", "validated_by"},
			pgx.CopyFromRows(awards),
		)
		if err != nil {
			return fmt.Errorf("copy awards: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListByStudent returns the student's graded exams, newest first.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID string) ([]ResultSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, serial_number, score, licensed, graded_at
		 FROM exam_results
		 WHERE student_id = $1
		 ORDER BY graded_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ResultSummary
	for rows.Next() {
		var s ResultSummary
		if err := rows.Scan(&s.ID, &s.ExamID, &s.SerialNumber, &s.Score, &s.Licensed, &s.GradedAt); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

func awardRows(resultID int64, res *model.GradeResult) [][]any {
	var rows [][]any
	earned := func(kind string, list []model.Award) {
		for _, a := range list {
			rows = append(rows, []any{resultID, kind, awardEarned, a.Course, a.Outcome, nil, nullable(a.ValidatedBy)})
		}
	}
	denied := func(kind string, list []model.Denial) {
		for _, d := range list {
			rows = append(rows, []any{resultID, kind, awardDenied, d.Course, d.Outcome, string(d.Reason), nullable(d.ValidatedBy)})
		}
	}
	earned(awardCredit, res.EarnedCredit)
	earned(awardPlacement, res.EarnedPlacement)
	denied(awardCredit, res.DeniedCredit)
	denied(awardPlacement, res.DeniedPlacement)
	return rows
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
