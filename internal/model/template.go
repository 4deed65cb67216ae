package model

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"
)

// TemplateProblem lists the interchangeable variants of one problem slot.
type TemplateProblem struct {
	ID       string            `json:"id"`
	Variants []json.RawMessage `json:"variants"`
}

// TemplateSection is the unrealized form of a Section.
type TemplateSection struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Problems []TemplateProblem `json:"problems"`
}

// ExamTemplate is the stored definition an exam is realized from.
type ExamTemplate struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	TimeLimitSeconds int               `json:"time_limit_seconds"`
	MasteryScore     *float64          `json:"mastery_score,omitempty"`
	Sections         []TemplateSection `json:"sections"`
	Subtests         []Subtest         `json:"subtests"`
	GradingRules     []GradingRule     `json:"grading_rules,omitempty"`
	Outcomes         []Outcome         `json:"outcomes,omitempty"`
}

// Realize instantiates the template. The variant chosen for each problem is
// derived from the serial number, so the same serial always yields the same exam.
// The realization time is kept at microsecond precision to match Postgres.
func (t *ExamTemplate) Realize(serial int64, at time.Time) (*PresentedExam, error) {
	if len(t.Sections) == 0 {
		return nil, fmt.Errorf("%w: template %s has no sections", ErrTemplateInvalid, t.ID)
	}

	r := rand.New(rand.NewSource(serial))
	exam := &PresentedExam{
		ExamID:           t.ID,
		Title:            t.Title,
		SerialNumber:     serial,
		RealizedAt:       at.UTC().Truncate(time.Microsecond),
		TimeLimitSeconds: t.TimeLimitSeconds,
		MasteryScore:     t.MasteryScore,
		Sections:         make([]Section, 0, len(t.Sections)),
		Subtests:         append([]Subtest(nil), t.Subtests...),
		GradingRules:     append([]GradingRule(nil), t.GradingRules...),
		Outcomes:         append([]Outcome(nil), t.Outcomes...),
	}

	seen := make(map[string]struct{})
	for _, ts := range t.Sections {
		if len(ts.Problems) == 0 {
			return nil, fmt.Errorf("%w: section %s has no problems", ErrTemplateInvalid, ts.ID)
		}
		sec := Section{ID: ts.ID, Title: ts.Title, Problems: make([]Problem, 0, len(ts.Problems))}
		for _, tp := range ts.Problems {
			if len(tp.Variants) == 0 {
				return nil, fmt.Errorf("%w: problem %s has no variants", ErrTemplateInvalid, tp.ID)
			}
			if _, dup := seen[tp.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate problem id %s", ErrTemplateInvalid, tp.ID)
			}
			seen[tp.ID] = struct{}{}

			inst, err := decodeInstance(tp.Variants[r.Intn(len(tp.Variants))])
			if err != nil {
				return nil, fmt.Errorf("%w: problem %s: %v", ErrTemplateInvalid, tp.ID, err)
			}
			sec.Problems = append(sec.Problems, Problem{ID: tp.ID, Selected: inst})
		}
		exam.Sections = append(exam.Sections, sec)
	}

	for _, st := range exam.Subtests {
		for _, m := range st.Members {
			if _, ok := seen[m.ProblemID]; !ok {
				return nil, fmt.Errorf("%w: subtest %s references unknown problem %s", ErrTemplateInvalid, st.Name, m.ProblemID)
			}
		}
	}

	return exam, nil
}

// Variant builds a template variant from a concrete instance.
func Variant(inst ProblemInstance) (json.RawMessage, error) {
	return encodeInstance(inst)
}
