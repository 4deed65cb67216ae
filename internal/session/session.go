package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Session errors.
var (
	ErrInvalidTransition = errors.New("operation not allowed in the current session state")
	ErrSessionFailed     = errors.New("exam session failed")
	ErrIndexOutOfRange   = errors.New("section or item index out of range")
	ErrInvalidAnswer     = errors.New("answer could not be recorded")
	ErrTimedOut          = errors.New("exam time has expired, answers were submitted")
)

// Eligibility is the eligibility collaborator's verdict.
type Eligibility struct {
	Eligible        bool
	AvailableExamID string
	Reason          string
}

// EligibilityChecker confirms a student may take an exam.
type EligibilityChecker interface {
	IsEligible(ctx context.Context, studentID, examID string) (Eligibility, error)
}

// Realizer instantiates an exam template under a serial number.
type Realizer interface {
	Realize(ctx context.Context, templateRef string, serial int64) (*model.PresentedExam, error)
}

// SerialSource hands out unique exam serial numbers.
type SerialSource interface {
	NextSerial(ctx context.Context) (int64, error)
}

// Journal is the write-ahead record of in-flight exams and answers.
type Journal interface {
	MarkPending(ctx context.Context, p model.PendingExam) error
	SaveAnswer(ctx context.Context, studentID string, exam *model.PresentedExam, problemID, raw string) error
	SaveAnswers(ctx context.Context, studentID string, exam *model.PresentedExam, answers map[string]string) error
	ClearPending(ctx context.Context, studentID, examID string) error
}

// Grader scores a submitted exam.
type Grader interface {
	Grade(ctx context.Context, studentID string, exam *model.PresentedExam, answers map[string]string) (model.GradeResult, error)
}

// Deps are the collaborators shared by every session of a Store.
type Deps struct {
	Eligibility EligibilityChecker
	Realizer    Realizer
	Serials     SerialSource
	Journal     Journal
	Grader      Grader
	Log         zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// PurgeWindow is how long a session may live after it starts.
	PurgeWindow time.Duration
	// GracePeriod separates the timeout from the purge.
	GracePeriod time.Duration
	// CodeCost is the bcrypt cost of one-time cleanup codes.
	CodeCost int
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// stamp is now at the precision the session log keeps.
func (d *Deps) stamp() time.Time {
	return d.now().UTC().Truncate(time.Millisecond)
}

// ExamSession drives one student's attempt at one exam.
type ExamSession struct {
	mu   sync.Mutex
	deps *Deps
	log  zerolog.Logger

	studentID string
	examID    string

	state     State
	section   int
	item      int
	started   bool
	timeoutAt time.Time
	purgeAt   time.Time

	score        *int
	gradingError string
	failure      string
	result       *model.GradeResult
	exam         *model.PresentedExam
}

func newSession(deps *Deps, studentID, examID string) *ExamSession {
	return &ExamSession{
		deps:      deps,
		log:       deps.Log.With().Str("component", "exam_session").Str("student_id", studentID).Logger(),
		studentID: studentID,
		examID:    examID,
		state:     StateInitial,
	}
}

func (s *ExamSession) StudentID() string { return s.studentID }

func (s *ExamSession) ExamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.examID
}

func (s *ExamSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize confirms eligibility, realizes the exam and records the
// pending-exam marker. Any failure leaves the session in StateError.
func (s *ExamSession) Initialize(ctx context.Context, templateRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitial {
		return ErrInvalidTransition
	}
	s.purgeAt = s.deps.stamp().Add(s.deps.PurgeWindow)

	el, err := s.deps.Eligibility.IsEligible(ctx, s.studentID, s.examID)
	if err != nil {
		return s.fail(fmt.Sprintf("eligibility could not be confirmed: %v", err))
	}
	if !el.Eligible {
		reason := el.Reason
		if reason == "" {
			reason = "you are not eligible to take this exam"
		}
		return s.fail(reason)
	}
	if el.AvailableExamID != "" {
		s.examID = el.AvailableExamID
	}
	if templateRef == "" {
		templateRef = s.examID
	}

	serial, err := s.deps.Serials.NextSerial(ctx)
	if err != nil {
		return s.fail(fmt.Sprintf("exam serial number could not be allocated: %v", err))
	}

	exam, err := s.deps.Realizer.Realize(ctx, templateRef, serial)
	if err != nil {
		return s.fail(fmt.Sprintf("exam %s could not be prepared: %v", templateRef, err))
	}
	if len(exam.Sections) == 0 {
		return s.fail(fmt.Sprintf("exam %s has no content", templateRef))
	}
	s.exam = exam
	s.examID = exam.ExamID

	pending := model.PendingExam{
		StudentID:    s.studentID,
		ExamID:       exam.ExamID,
		SerialNumber: exam.SerialNumber,
		RealizedAt:   exam.RealizedAt,
	}
	if err := s.deps.Journal.MarkPending(ctx, pending); err != nil {
		return s.fail(fmt.Sprintf("exam could not be registered: %v", err))
	}

	s.state = StateInstructions
	s.log.Info().Str("exam_id", s.examID).Int64("serial", exam.SerialNumber).Msg("Exam realized")
	return nil
}

// Begin moves from the instructions to the first item and starts the clock.
func (s *ExamSession) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.precheck(ctx); err != nil {
		return err
	}
	if s.state != StateInstructions || s.started {
		return ErrInvalidTransition
	}
	if _, ok := s.exam.ItemAt(0, 0); !ok {
		return ErrIndexOutOfRange
	}

	s.startTimer()
	s.section, s.item = 0, 0
	s.state = StateItem
	return nil
}

// Navigate moves to an item. The first navigation starts the clock unless
// startTimer is false.
func (s *ExamSession) Navigate(ctx context.Context, section, item int, startTimer bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.precheck(ctx); err != nil {
		return err
	}
	if s.state != StateInstructions && s.state != StateItem {
		return ErrInvalidTransition
	}
	if _, ok := s.exam.ItemAt(section, item); !ok {
		return ErrIndexOutOfRange
	}

	if startTimer {
		s.startTimer()
	}
	s.section, s.item = section, item
	s.state = StateItem
	return nil
}

// ShowInstructions returns to the instructions without touching the clock.
func (s *ExamSession) ShowInstructions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.precheck(ctx); err != nil {
		return err
	}
	if s.state != StateItem && s.state != StateInstructions {
		return ErrInvalidTransition
	}
	s.state = StateInstructions
	return nil
}

// RecordAnswer stores raw input for the current item. A request naming any
// other item is stale and ignored.
func (s *ExamSession) RecordAnswer(ctx context.Context, section, item int, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.precheck(ctx); err != nil {
		return err
	}
	if s.state != StateItem {
		return ErrInvalidTransition
	}
	if section != s.section || item != s.item {
		s.log.Warn().
			Int("section", section).Int("item", item).
			Int("current_section", s.section).Int("current_item", s.item).
			Msg("Stale answer ignored")
		return nil
	}

	p, ok := s.exam.ItemAt(section, item)
	if !ok {
		return ErrIndexOutOfRange
	}
	if err := p.Selected.RecordAnswer(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}

	if err := s.deps.Journal.SaveAnswer(ctx, s.studentID, s.exam, p.ID, p.Selected.RawAnswer()); err != nil {
		s.log.Error().Err(err).Str("problem_id", p.ID).Msg("Answer journal write failed")
	}
	return nil
}

// RequestSubmit asks the student to confirm submission.
func (s *ExamSession) RequestSubmit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.precheck(ctx); err != nil {
		return err
	}
	if s.state != StateInstructions && s.state != StateItem {
		return ErrInvalidTransition
	}
	s.state = StateSubmitConfirm
	return nil
}

// ConfirmSubmit grades the exam when yes, otherwise returns to the current
// item. Confirming an already graded session reports a duplicate submission.
func (s *ExamSession) ConfirmSubmit(ctx context.Context, yes bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted {
		s.log.Warn().Msg("Repeated submit confirmation ignored")
		return grading.ErrDuplicateSubmission
	}
	if err := s.precheck(ctx); err != nil {
		return err
	}
	if s.state != StateSubmitConfirm {
		return ErrInvalidTransition
	}

	if !yes {
		s.state = StateItem
		return nil
	}

	s.submit(ctx, "confirmed")
	return nil
}

// CheckTimeout submits the exam when its clock has run out. It reports
// whether a timeout submission happened.
func (s *ExamSession) CheckTimeout(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkTimeout(ctx)
}

// Close ends a completed or failed session.
func (s *ExamSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Terminal() {
		return ErrInvalidTransition
	}
	s.log.Info().Str("state", s.state.String()).Msg("Session closed")
	return nil
}

// ForceAbort discards the attempt without scoring.
func (s *ExamSession) ForceAbort(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exam != nil {
		if err := s.deps.Journal.ClearPending(ctx, s.studentID, s.exam.ExamID); err != nil {
			s.log.Error().Err(err).Msg("Pending exam marker could not be cleared")
		}
	}
	if reason == "" {
		reason = "exam aborted by an administrator"
	}
	s.state = StateError
	s.failure = reason
	s.log.Warn().Str("reason", reason).Msg("Session force-aborted")
	return nil
}

// ForceSubmit grades the exam regardless of the current state. A completed
// session keeps its result.
func (s *ExamSession) ForceSubmit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted {
		s.log.Info().Msg("Forced submit of a graded session ignored")
		return nil
	}
	if s.exam == nil {
		return fmt.Errorf("%w: no exam was realized", ErrSessionFailed)
	}
	s.submit(ctx, "forced")
	return nil
}

// precheck rejects operations on failed sessions and applies a lapsed timer.
func (s *ExamSession) precheck(ctx context.Context) error {
	if s.state == StateError {
		return ErrSessionFailed
	}
	if s.checkTimeout(ctx) {
		return ErrTimedOut
	}
	return nil
}

func (s *ExamSession) timedOut(now time.Time) bool {
	return !s.timeoutAt.IsZero() && !now.Before(s.timeoutAt)
}

func (s *ExamSession) checkTimeout(ctx context.Context) bool {
	if !s.state.active() || !s.timedOut(s.deps.now()) {
		return false
	}
	s.submit(ctx, "timeout")
	return true
}

// startTimer sets the deadlines once; later calls are no-ops.
func (s *ExamSession) startTimer() {
	if s.started {
		return
	}
	now := s.deps.stamp()
	s.started = true
	if limit := s.exam.TimeLimit(); limit > 0 {
		s.timeoutAt = now.Add(limit)
	}
	s.purgeAt = now.Add(s.deps.PurgeWindow)
	if !s.timeoutAt.IsZero() {
		if floor := s.timeoutAt.Add(s.deps.GracePeriod); s.purgeAt.Before(floor) {
			s.purgeAt = floor
		}
	}
	s.log.Info().Time("timeout_at", s.timeoutAt).Time("purge_at", s.purgeAt).Msg("Exam clock started")
}

// submit journals the answers, grades synchronously and completes the session.
func (s *ExamSession) submit(ctx context.Context, cause string) {
	answers := s.exam.Answers()
	if err := s.deps.Journal.SaveAnswers(ctx, s.studentID, s.exam, answers); err != nil {
		s.log.Error().Err(err).Msg("Write-ahead of answers failed, grading anyway")
	}

	res, err := s.deps.Grader.Grade(ctx, s.studentID, s.exam, answers)
	switch {
	case errors.Is(err, grading.ErrDuplicateSubmission) && s.result != nil:
		// Already graded by this session; the stored result stands.
	case err == nil:
		s.result = &res
		score := res.Score
		s.score = &score
		s.gradingError = ""
	default:
		s.result = &res
		s.score = nil
		s.gradingError = res.GradingError
		if s.gradingError == "" {
			s.gradingError = err.Error()
		}
	}

	if err == nil || errors.Is(err, grading.ErrDuplicateSubmission) {
		if cerr := s.deps.Journal.ClearPending(ctx, s.studentID, s.exam.ExamID); cerr != nil {
			s.log.Error().Err(cerr).Msg("Pending exam marker could not be cleared")
		}
	}

	s.state = StateCompleted
	s.log.Info().
		Str("cause", cause).
		Str("grading_error", s.gradingError).
		Msg("Exam submitted")
}

func (s *ExamSession) fail(reason string) error {
	s.state = StateError
	s.failure = reason
	s.log.Warn().Str("reason", reason).Msg("Session failed")
	return fmt.Errorf("%w: %s", ErrSessionFailed, reason)
}
