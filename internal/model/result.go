package model

import "time"

// DenyReason records why an outcome action was denied.
type DenyReason string

const (
	DenyNone       DenyReason = ""
	DenyPrereq     DenyReason = "PREREQ"
	DenyValidation DenyReason = "VALIDATION"
)

// ValidatedByUnverified is forced onto awards that were granted despite
// failing every validation.
const ValidatedByUnverified = "UNVERIFIED"

// Award is an earned credit or placement.
type Award struct {
	Course      string `json:"course"`
	Outcome     string `json:"outcome"`
	ValidatedBy string `json:"validated_by,omitempty"`
}

// Denial is the audit record of a denied credit or placement.
type Denial struct {
	Course      string     `json:"course"`
	Outcome     string     `json:"outcome"`
	Reason      DenyReason `json:"reason"`
	ValidatedBy string     `json:"validated_by,omitempty"`
}

// GradeResult is the outcome of grading one realized exam.
type GradeResult struct {
	StudentID       string          `json:"student_id"`
	ExamID          string          `json:"exam_id"`
	SerialNumber    int64           `json:"serial_number"`
	RealizedAt      time.Time       `json:"realized_at"`
	GradedAt        time.Time       `json:"graded_at"`
	Score           int             `json:"score"`
	GradingError    string          `json:"grading_error,omitempty"`
	SubtestScores   map[string]int  `json:"subtest_scores"`
	RuleVerdicts    map[string]bool `json:"rule_verdicts"`
	Missed          []string        `json:"missed,omitempty"`
	EarnedCredit    []Award         `json:"earned_credit,omitempty"`
	EarnedPlacement []Award         `json:"earned_placement,omitempty"`
	DeniedCredit    []Denial        `json:"denied_credit,omitempty"`
	DeniedPlacement []Denial        `json:"denied_placement,omitempty"`
	Licensed        bool            `json:"licensed"`
}

// Key returns the idempotence key of the result.
func (r *GradeResult) Key() ResultKey {
	return ResultKey{StudentID: r.StudentID, SerialNumber: r.SerialNumber, RealizedAt: r.RealizedAt}
}

// EarnedCreditFor reports whether credit for course was earned.
func (r *GradeResult) EarnedCreditFor(course string) bool {
	return hasAward(r.EarnedCredit, course)
}

// EarnedPlacementFor reports whether placement into course was earned.
func (r *GradeResult) EarnedPlacementFor(course string) bool {
	return hasAward(r.EarnedPlacement, course)
}

// CreditDenial returns the denial record for course, if any.
func (r *GradeResult) CreditDenial(course string) (Denial, bool) {
	for _, d := range r.DeniedCredit {
		if d.Course == course {
			return d, true
		}
	}
	return Denial{}, false
}

func hasAward(list []Award, course string) bool {
	for _, a := range list {
		if a.Course == course {
			return true
		}
	}
	return false
}
