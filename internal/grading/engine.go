package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Grading errors surfaced to students and operators.
var (
	ErrDuplicateSubmission = errors.New("duplicate submission: this exam has already been graded")
	ErrNoAnswers           = errors.New("no answers were submitted")
)

// ResultRecorder persists grading results. RecordResult must return
// ErrDuplicateSubmission when a result with the same key already exists.
type ResultRecorder interface {
	HasResult(ctx context.Context, key model.ResultKey) (bool, error)
	RecordResult(ctx context.Context, res *model.GradeResult) error
}

// Engine scores realized exams and determines outcomes.
type Engine struct {
	eval    Evaluator
	results ResultRecorder
	log     zerolog.Logger
	now     func() time.Time
}

// NewEngine creates a new Engine.
func NewEngine(eval Evaluator, results ResultRecorder, log zerolog.Logger) *Engine {
	return &Engine{
		eval:    eval,
		results: results,
		log:     log.With().Str("component", "grading_engine").Logger(),
		now:     time.Now,
	}
}

// Grade scores the exam against the submitted answers (problem ID -> raw input),
// evaluates grading rules and outcomes, and records the result.
//
// The returned error is one of ErrDuplicateSubmission, ErrNoAnswers or a
// persistence failure; in every case the result carries the message in
// GradingError so callers can show it.
func (e *Engine) Grade(ctx context.Context, studentID string, exam *model.PresentedExam, answers map[string]string) (model.GradeResult, error) {
	res := model.GradeResult{
		StudentID:     studentID,
		ExamID:        exam.ExamID,
		SerialNumber:  exam.SerialNumber,
		RealizedAt:    exam.RealizedAt,
		GradedAt:      e.now().UTC(),
		SubtestScores: make(map[string]int),
		RuleVerdicts:  make(map[string]bool),
	}

	log := e.log.With().
		Str("student_id", studentID).
		Str("exam_id", exam.ExamID).
		Int64("serial", exam.SerialNumber).
		Logger()

	// 1. Idempotence guard.
	exists, err := e.results.HasResult(ctx, exam.ResultKey(studentID))
	if err != nil {
		return failed(res, fmt.Errorf("check previous result: %w", err))
	}
	if exists {
		log.Warn().Msg("Duplicate submission rejected")
		return failed(res, ErrDuplicateSubmission)
	}

	if len(answers) == 0 {
		log.Warn().Msg("Submission has no answers")
		return failed(res, ErrNoAnswers)
	}

	// 2. Answer materialization.
	correct := e.materialize(log, exam, answers, &res)

	// 3. Subtest scoring.
	gctx := NewContext()
	var total float64
	var scoreSubtest *float64
	for _, st := range exam.Subtests {
		var sum float64
		for _, m := range st.Members {
			inst, ok := correct[m.ProblemID]
			if !ok {
				continue
			}
			w := m.Weight
			if w == 0 {
				w = 1
			}
			sum += w * inst.Score()
		}
		gctx.SetReal(st.Name, sum)
		res.SubtestScores[st.Name] = int(math.Round(sum))
		total += sum
		if st.Name == model.ScoreSubtestName {
			s := sum
			scoreSubtest = &s
		}
	}
	if len(exam.Subtests) == 0 {
		for _, inst := range correct {
			total += inst.Score()
		}
	}

	switch {
	case scoreSubtest != nil:
		res.Score = int(math.Round(*scoreSubtest))
	default:
		res.Score = int(math.Round(total))
	}

	// 4. Pass/fail synthesis; an explicit "passed" rule below overrides it.
	if exam.MasteryScore != nil && scoreSubtest != nil {
		gctx.SetBool("passed", *scoreSubtest >= *exam.MasteryScore)
		res.RuleVerdicts["passed"] = *scoreSubtest >= *exam.MasteryScore
	}

	// 5. Grading rules.
	for _, rule := range exam.GradingRules {
		verdict, err := e.evaluateRule(rule, gctx)
		if err != nil {
			log.Warn().Err(err).Str("rule", rule.Name).Msg("Grading rule unresolved")
			continue
		}
		gctx.SetBool(rule.Name, verdict)
		res.RuleVerdicts[rule.Name] = verdict
	}

	// 6. Outcomes.
	for _, o := range exam.Outcomes {
		e.applyOutcome(log, o, gctx, &res)
	}

	// 7. Persist.
	if err := e.results.RecordResult(ctx, &res); err != nil {
		if errors.Is(err, ErrDuplicateSubmission) {
			log.Warn().Msg("Duplicate submission detected while recording")
			return failed(res, ErrDuplicateSubmission)
		}
		log.Error().Err(err).Msg("Failed to record result")
		res.GradingError = fmt.Sprintf("result could not be recorded: %v", err)
		return res, fmt.Errorf("record result: %w", err)
	}

	log.Info().
		Int("score", res.Score).
		Int("earned_credit", len(res.EarnedCredit)).
		Int("earned_placement", len(res.EarnedPlacement)).
		Bool("licensed", res.Licensed).
		Msg("Exam graded")
	return res, nil
}

// materialize records submitted answers on the selected instances and returns
// the instances that were answered correctly, keyed by problem ID.
func (e *Engine) materialize(log zerolog.Logger, exam *model.PresentedExam, answers map[string]string, res *model.GradeResult) map[string]model.ProblemInstance {
	ids := referencedProblems(exam)
	correct := make(map[string]model.ProblemInstance, len(ids))

	for _, id := range ids {
		p, ok := exam.Problem(id)
		if !ok || p.Selected == nil {
			log.Warn().Str("problem_id", id).Msg("Subtest references a missing problem")
			continue
		}

		raw, submitted := answers[id]
		if !submitted {
			res.Missed = append(res.Missed, id)
			continue
		}
		if err := p.Selected.RecordAnswer(raw); err != nil {
			log.Warn().Err(err).Str("problem_id", id).Msg("Answer could not be recorded, counted as missed")
			res.Missed = append(res.Missed, id)
			continue
		}
		if p.Selected.IsCorrect() {
			correct[id] = p.Selected
		}
	}
	return correct
}

func (e *Engine) evaluateRule(rule model.GradingRule, gctx *Context) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := e.eval.Evaluate(cond, gctx).Truth()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) applyOutcome(log zerolog.Logger, o model.Outcome, gctx *Context, res *model.GradeResult) {
	olog := log.With().Str("outcome", o.Name).Logger()

	holds, err := e.eval.Evaluate(o.Condition, gctx).Truth()
	if err != nil {
		olog.Warn().Err(err).Msg("Outcome condition unresolved, skipping")
		return
	}
	if !holds {
		return
	}

	deny := model.DenyNone
	for _, pre := range o.Prerequisites {
		ok, err := e.eval.Evaluate(pre, gctx).Truth()
		if err != nil {
			olog.Warn().Err(err).Str("formula", pre).Msg("Prerequisite unresolved, treated as failed")
		}
		if err != nil || !ok {
			deny = model.DenyPrereq
			break
		}
	}

	validatedBy := ""
	if deny == model.DenyNone && len(o.Validations) > 0 {
		for _, v := range o.Validations {
			ok, err := e.eval.Evaluate(v.Formula, gctx).Truth()
			if err != nil {
				olog.Warn().Err(err).Str("method", v.Method).Msg("Validation unresolved")
				continue
			}
			if ok {
				validatedBy = v.Method
				break
			}
		}
		if validatedBy == "" {
			deny = model.DenyValidation
		}
	}

	for _, a := range o.Actions {
		switch a.Kind {
		case model.ActionAwardCredit:
			res.EarnedCredit, res.DeniedCredit = applyAward(o.Name, a.Course, deny, validatedBy, res.EarnedCredit, res.DeniedCredit)
		case model.ActionAwardPlacement:
			res.EarnedPlacement, res.DeniedPlacement = applyAward(o.Name, a.Course, deny, validatedBy, res.EarnedPlacement, res.DeniedPlacement)
		case model.ActionMarkLicensed:
			if deny != model.DenyPrereq {
				res.Licensed = true
			}
		default:
			olog.Warn().Str("action", string(a.Kind)).Msg("Unknown outcome action")
		}
	}

	if deny != model.DenyNone {
		olog.Info().Str("deny_reason", string(deny)).Msg("Outcome denied")
	}
}

// applyAward grants or denies one course. A validation denial still grants
// the course, marks it unverified, and keeps a denial entry for audit.
func applyAward(outcome, course string, deny model.DenyReason, validatedBy string, earned []model.Award, denied []model.Denial) ([]model.Award, []model.Denial) {
	switch deny {
	case model.DenyPrereq:
		denied = append(denied, model.Denial{Course: course, Outcome: outcome, Reason: model.DenyPrereq})
	case model.DenyValidation:
		earned = addAward(earned, model.Award{Course: course, Outcome: outcome, ValidatedBy: model.ValidatedByUnverified})
		denied = append(denied, model.Denial{
			Course:      course,
			Outcome:     outcome,
			Reason:      model.DenyValidation,
			ValidatedBy: model.ValidatedByUnverified,
		})
	default:
		earned = addAward(earned, model.Award{Course: course, Outcome: outcome, ValidatedBy: validatedBy})
	}
	return earned, denied
}

func addAward(list []model.Award, a model.Award) []model.Award {
	for _, existing := range list {
		if existing.Course == a.Course {
			return list
		}
	}
	return append(list, a)
}

func referencedProblems(exam *model.PresentedExam) []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(exam.Subtests) == 0 {
		for _, s := range exam.Sections {
			for _, p := range s.Problems {
				add(p.ID)
			}
		}
		return ids
	}
	for _, st := range exam.Subtests {
		for _, m := range st.Members {
			add(m.ProblemID)
		}
	}
	return ids
}

// failed strips any computed awards and reports err as the grading error.
func failed(res model.GradeResult, err error) (model.GradeResult, error) {
	return model.GradeResult{
		StudentID:     res.StudentID,
		ExamID:        res.ExamID,
		SerialNumber:  res.SerialNumber,
		RealizedAt:    res.RealizedAt,
		GradedAt:      res.GradedAt,
		SubtestScores: map[string]int{},
		RuleVerdicts:  map[string]bool{},
		GradingError:  err.Error(),
	}, err
}
