package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrTemplateNotFound is returned when no exam template has the given ID.
var ErrTemplateNotFound = errors.New("exam template not found")

// TemplateRepository stores exam templates as JSONB documents.
type TemplateRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool, now: time.Now}
}

// GetByID loads a template.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*model.ExamTemplate, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT definition FROM exam_templates WHERE id = $1`, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	var tpl model.ExamTemplate
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", id, err)
	}
	tpl.ID = id
	return &tpl, nil
}

// Upsert creates or replaces a template.
func (r *TemplateRepository) Upsert(ctx context.Context, tpl *model.ExamTemplate) error {
	raw, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("encode template %s: %w", tpl.ID, err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_templates (id, title, definition)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, definition = EXCLUDED.definition, updated_at = NOW()`,
		tpl.ID, tpl.Title, raw,
	)
	return err
}

// Realize loads the template and realizes it under serial.
func (r *TemplateRepository) Realize(ctx context.Context, templateRef string, serial int64) (*model.PresentedExam, error) {
	tpl, err := r.GetByID(ctx, templateRef)
	if err != nil {
		return nil, err
	}
	return tpl.Realize(serial, r.now())
}
