package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Problem is one slot of a section holding its selected instance.
type Problem struct {
	ID       string          `json:"id"`
	Selected ProblemInstance `json:"-"`
}

type problemJSON struct {
	ID       string          `json:"id"`
	Selected json.RawMessage `json:"selected"`
}

// MarshalJSON encodes the selected instance inside a kind envelope.
func (p Problem) MarshalJSON() ([]byte, error) {
	sel, err := encodeInstance(p.Selected)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", p.ID, err)
	}
	return json.Marshal(problemJSON{ID: p.ID, Selected: sel})
}

// UnmarshalJSON restores the concrete instance variant.
func (p *Problem) UnmarshalJSON(data []byte) error {
	var raw problemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	inst, err := decodeInstance(raw.Selected)
	if err != nil {
		return fmt.Errorf("problem %s: %w", raw.ID, err)
	}
	p.ID = raw.ID
	p.Selected = inst
	return nil
}

// Section is an ordered group of problems.
type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Problems []Problem `json:"problems"`
}

// SubtestMember references a problem with a weight multiplier.
type SubtestMember struct {
	ProblemID string  `json:"problem_id"`
	Weight    float64 `json:"weight"`
}

// Subtest is a named group of problems whose weighted correct sum is one score.
type Subtest struct {
	Name    string          `json:"name"`
	Members []SubtestMember `json:"members"`
}

// ScoreSubtestName is the subtest the mastery threshold applies to.
const ScoreSubtestName = "score"

// RuleType classifies grading rules.
type RuleType string

const (
	RuleTypePassFail RuleType = "pass_fail"
	RuleTypeOther    RuleType = "other"
)

// GradingRule is a named boolean determination. Conditions are tried in
// order and the first one evaluating true makes the rule true.
type GradingRule struct {
	Name       string   `json:"name"`
	Type       RuleType `json:"type"`
	Conditions []string `json:"conditions"`
}

// Validation is a formula plus the method tag recorded when it holds.
type Validation struct {
	Formula string `json:"formula"`
	Method  string `json:"method"`
}

// ActionKind enumerates what an outcome can award.
type ActionKind string

const (
	ActionAwardPlacement ActionKind = "award_placement"
	ActionAwardCredit    ActionKind = "award_credit"
	ActionMarkLicensed   ActionKind = "mark_licensed"
)

// Action is a single effect of an outcome. Course is empty for MarkLicensed.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Course string     `json:"course,omitempty"`
}

// Outcome is a policy unit awarding credit, placement or a license.
type Outcome struct {
	Name          string       `json:"name"`
	Condition     string       `json:"condition"`
	Prerequisites []string     `json:"prerequisites,omitempty"`
	Validations   []Validation `json:"validations,omitempty"`
	Actions       []Action     `json:"actions"`
}

// PresentedExam is a realized exam owned by exactly one session.
type PresentedExam struct {
	ExamID           string        `json:"exam_id"`
	Title            string        `json:"title"`
	SerialNumber     int64         `json:"serial_number"`
	RealizedAt       time.Time     `json:"realized_at"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
	MasteryScore     *float64      `json:"mastery_score,omitempty"`
	Sections         []Section     `json:"sections"`
	Subtests         []Subtest     `json:"subtests"`
	GradingRules     []GradingRule `json:"grading_rules,omitempty"`
	Outcomes         []Outcome     `json:"outcomes,omitempty"`
}

// TimeLimit returns the allowed duration, zero when untimed.
func (e *PresentedExam) TimeLimit() time.Duration {
	return time.Duration(e.TimeLimitSeconds) * time.Second
}

// ItemAt returns the problem at the given indices.
func (e *PresentedExam) ItemAt(section, item int) (*Problem, bool) {
	if section < 0 || section >= len(e.Sections) {
		return nil, false
	}
	probs := e.Sections[section].Problems
	if item < 0 || item >= len(probs) {
		return nil, false
	}
	return &probs[item], true
}

// Problem looks up a problem by ID.
func (e *PresentedExam) Problem(id string) (*Problem, bool) {
	for si := range e.Sections {
		for pi := range e.Sections[si].Problems {
			if e.Sections[si].Problems[pi].ID == id {
				return &e.Sections[si].Problems[pi], true
			}
		}
	}
	return nil, false
}

// Answers collects the raw recorded answers keyed by problem ID.
func (e *PresentedExam) Answers() map[string]string {
	out := make(map[string]string)
	for _, s := range e.Sections {
		for _, p := range s.Problems {
			if p.Selected != nil && p.Selected.Answered() {
				out[p.ID] = p.Selected.RawAnswer()
			}
		}
	}
	return out
}

// ResultKey identifies one realized attempt for duplicate detection.
func (e *PresentedExam) ResultKey(studentID string) ResultKey {
	return ResultKey{
		StudentID:    studentID,
		SerialNumber: e.SerialNumber,
		RealizedAt:   e.RealizedAt,
	}
}

// ErrTemplateInvalid is returned when a template cannot be realized.
var ErrTemplateInvalid = errors.New("exam template is not realizable")

// ResultKey is the idempotence key of a grading result.
type ResultKey struct {
	StudentID    string
	SerialNumber int64
	RealizedAt   time.Time
}

func (k ResultKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.StudentID, k.SerialNumber, k.RealizedAt.UnixNano())
}
