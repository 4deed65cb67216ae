package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ProblemKind enumerates the closed set of problem variants.
type ProblemKind string

const (
	ProblemKindChoice      ProblemKind = "choice"
	ProblemKindMultiChoice ProblemKind = "multi_choice"
	ProblemKindNumeric     ProblemKind = "numeric"
	ProblemKindText        ProblemKind = "text"
)

// ErrEmptyAnswer is returned when a raw answer carries no usable value.
var ErrEmptyAnswer = errors.New("answer is empty")

// ProblemInstance is the selected, realized instance of a problem.
// It records the student's answer and reports correctness.
type ProblemInstance interface {
	Kind() ProblemKind
	// RecordAnswer parses raw input and stores it, replacing any earlier answer.
	RecordAnswer(raw string) error
	Answered() bool
	RawAnswer() string
	IsCorrect() bool
	// Score is the points earned: Points when correct, zero otherwise.
	Score() float64
}

// ChoiceProblem is a single-answer multiple choice problem.
type ChoiceProblem struct {
	Options []string `json:"options"`
	Correct string   `json:"correct"`
	Points  float64  `json:"points"`
	Answer  *string  `json:"answer,omitempty"`
}

func (p *ChoiceProblem) Kind() ProblemKind { return ProblemKindChoice }

func (p *ChoiceProblem) RecordAnswer(raw string) error {
	sel := strings.TrimSpace(raw)
	if sel == "" {
		return ErrEmptyAnswer
	}
	if len(p.Options) > 0 && !containsFold(p.Options, sel) {
		return fmt.Errorf("unknown option %q", sel)
	}
	p.Answer = &sel
	return nil
}

func (p *ChoiceProblem) Answered() bool { return p.Answer != nil }

func (p *ChoiceProblem) RawAnswer() string {
	if p.Answer == nil {
		return ""
	}
	return *p.Answer
}

func (p *ChoiceProblem) IsCorrect() bool {
	return p.Answer != nil && strings.EqualFold(*p.Answer, p.Correct)
}

func (p *ChoiceProblem) Score() float64 { return earned(p.IsCorrect(), p.Points) }

// MultiChoiceProblem requires the exact set of correct options.
// Raw answers are comma separated option keys.
type MultiChoiceProblem struct {
	Options []string `json:"options"`
	Correct []string `json:"correct"`
	Points  float64  `json:"points"`
	Answer  []string `json:"answer,omitempty"`
}

func (p *MultiChoiceProblem) Kind() ProblemKind { return ProblemKindMultiChoice }

func (p *MultiChoiceProblem) RecordAnswer(raw string) error {
	selected := normalizeSet(strings.Split(raw, ","))
	if len(selected) == 0 {
		return ErrEmptyAnswer
	}
	for _, s := range selected {
		if len(p.Options) > 0 && !containsFold(p.Options, s) {
			return fmt.Errorf("unknown option %q", s)
		}
	}
	p.Answer = selected
	return nil
}

func (p *MultiChoiceProblem) Answered() bool { return len(p.Answer) > 0 }

func (p *MultiChoiceProblem) RawAnswer() string { return strings.Join(p.Answer, ",") }

func (p *MultiChoiceProblem) IsCorrect() bool {
	if len(p.Answer) == 0 {
		return false
	}
	want := normalizeSet(p.Correct)
	if len(want) != len(p.Answer) {
		return false
	}
	for i := range want {
		if want[i] != p.Answer[i] {
			return false
		}
	}
	return true
}

func (p *MultiChoiceProblem) Score() float64 { return earned(p.IsCorrect(), p.Points) }

// NumericProblem accepts a number within Tolerance of Correct.
type NumericProblem struct {
	Correct   float64  `json:"correct"`
	Tolerance float64  `json:"tolerance"`
	Points    float64  `json:"points"`
	Answer    *float64 `json:"answer,omitempty"`
	Raw       string   `json:"raw,omitempty"`
}

func (p *NumericProblem) Kind() ProblemKind { return ProblemKindNumeric }

func (p *NumericProblem) RecordAnswer(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ErrEmptyAnswer
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fmt.Errorf("parse numeric answer: %w", err)
	}
	p.Answer = &v
	p.Raw = trimmed
	return nil
}

func (p *NumericProblem) Answered() bool { return p.Answer != nil }

func (p *NumericProblem) RawAnswer() string { return p.Raw }

func (p *NumericProblem) IsCorrect() bool {
	return p.Answer != nil && math.Abs(*p.Answer-p.Correct) <= p.Tolerance
}

func (p *NumericProblem) Score() float64 { return earned(p.IsCorrect(), p.Points) }

// TextProblem matches free text against a list of accepted answers.
type TextProblem struct {
	Accepted      []string `json:"accepted"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
	Points        float64  `json:"points"`
	Answer        *string  `json:"answer,omitempty"`
}

func (p *TextProblem) Kind() ProblemKind { return ProblemKindText }

func (p *TextProblem) RecordAnswer(raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ErrEmptyAnswer
	}
	p.Answer = &text
	return nil
}

func (p *TextProblem) Answered() bool { return p.Answer != nil }

func (p *TextProblem) RawAnswer() string {
	if p.Answer == nil {
		return ""
	}
	return *p.Answer
}

func (p *TextProblem) IsCorrect() bool {
	if p.Answer == nil {
		return false
	}
	for _, a := range p.Accepted {
		a = strings.TrimSpace(a)
		if p.CaseSensitive && a == *p.Answer {
			return true
		}
		if !p.CaseSensitive && strings.EqualFold(a, *p.Answer) {
			return true
		}
	}
	return false
}

func (p *TextProblem) Score() float64 { return earned(p.IsCorrect(), p.Points) }

// problemEnvelope is the wire form of a ProblemInstance.
type problemEnvelope struct {
	Kind ProblemKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func encodeInstance(inst ProblemInstance) ([]byte, error) {
	if inst == nil {
		return nil, errors.New("problem has no selected instance")
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return nil, err
	}
	return json.Marshal(problemEnvelope{Kind: inst.Kind(), Data: data})
}

func decodeInstance(raw []byte) (ProblemInstance, error) {
	var env problemEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	var inst ProblemInstance
	switch env.Kind {
	case ProblemKindChoice:
		inst = &ChoiceProblem{}
	case ProblemKindMultiChoice:
		inst = &MultiChoiceProblem{}
	case ProblemKindNumeric:
		inst = &NumericProblem{}
	case ProblemKindText:
		inst = &TextProblem{}
	default:
		return nil, fmt.Errorf("unknown problem kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Data, inst); err != nil {
		return nil, fmt.Errorf("decode %s problem: %w", env.Kind, err)
	}
	return inst, nil
}

func earned(correct bool, points float64) float64 {
	if correct {
		return points
	}
	return 0
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func normalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
