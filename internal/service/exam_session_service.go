package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// ErrInvalidCode is returned when a cleanup code is unknown or already used.
var ErrInvalidCode = errors.New("cleanup code is invalid or already used")

// PendingReader reads write-ahead pending exam markers.
type PendingReader interface {
	Pending(ctx context.Context, studentID, examID string) (*model.PendingExam, error)
}

// ResultLister lists a student's graded exams.
type ResultLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]repository.ResultSummary, error)
}

// SessionStarted is returned when a student opens an exam.
type SessionStarted struct {
	Session session.View `json:"session"`
	Resumed bool         `json:"resumed"`
}

// SessionClosed carries the one-time cleanup code handed out on close.
type SessionClosed struct {
	Code string `json:"code"`
}

// SessionInspection is the admin view of a live session.
type SessionInspection struct {
	Session session.View       `json:"session"`
	Pending *model.PendingExam `json:"pending,omitempty"`
	PurgeAt time.Time          `json:"purge_at"`
}

// ExamSessionService drives students' exam sessions through the Store.
type ExamSessionService struct {
	store   *session.Store
	pending PendingReader
	results ResultLister
	log     zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(store *session.Store, pending PendingReader, results ResultLister, log zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		store:   store,
		pending: pending,
		results: results,
		log:     log.With().Str("component", "exam_session_service").Logger(),
	}
}

// CreateOrResume opens the student's exam, resuming a live session if one
// exists. When initialization fails the returned view is still set and
// shows the failure.
func (s *ExamSessionService) CreateOrResume(ctx context.Context, studentID, examID, templateRef string) (*SessionStarted, error) {
	sess, resumed, err := s.store.Open(ctx, studentID, examID, templateRef)
	if sess == nil {
		return nil, err
	}
	if resumed && sess.ExamID() != examID {
		s.log.Info().
			Str("student_id", studentID).
			Str("requested_exam_id", examID).
			Str("exam_id", sess.ExamID()).
			Msg("Resuming a different exam than requested")
	}
	return &SessionStarted{Session: sess.View(), Resumed: resumed}, err
}

// Get returns the student's session view.
func (s *ExamSessionService) Get(ctx context.Context, studentID string) (session.View, error) {
	return s.drive(studentID, func(sess *session.ExamSession) error {
		sess.CheckTimeout(ctx)
		return nil
	})
}

// Begin leaves the instructions for the first item and starts the clock.
func (s *ExamSessionService) Begin(ctx context.Context, studentID string) (session.View, error) {
	return s.drive(studentID, func(sess *session.ExamSession) error {
		return sess.Begin(ctx)
	})
}

// Navigate moves to an item, starting the clock on first navigation.
func (s *ExamSessionService) Navigate(ctx context.Context, studentID string, section, item int) (session.View, error) {
	return s.drive(studentID, func(sess *session.ExamSession) error {
		return sess.Navigate(ctx, section, item, true)
	})
}

// ShowInstructions returns to the instructions without touching the clock.
func (s *ExamSessionService) ShowInstructions(ctx context.Context, studentID string) (session.View, error) {
	return s.drive(studentID, func(sess *session.ExamSession) error {
		return sess.ShowInstructions(ctx)
	})
}

// RecordAnswer stores the answer for the current item.
func (s *ExamSessionService) RecordAnswer(ctx context.Context, studentID string, section, item int, raw string) (session.View, error) {
	return s.drive(studentID, func(sess *session.ExamSession) error {
		return sess.RecordAnswer(ctx, section, item, raw)
	})
}

// RequestSubmit asks the student to confirm the submission.
func (s *ExamSessionService) RequestSubmit(ctx context.Context, studentID string) (session.View, error) {
	return s.drive(studentID, func(sess *session.ExamSession) error {
		return sess.RequestSubmit(ctx)
	})
}

// ConfirmSubmit grades the exam on yes, or returns to it on no.
func (s *ExamSessionService) ConfirmSubmit(ctx context.Context, studentID string, yes bool) (session.View, error) {
	return s.drive(studentID, func(sess *session.ExamSession) error {
		return sess.ConfirmSubmit(ctx, yes)
	})
}

// Close ends a completed or failed session and returns the cleanup code.
func (s *ExamSessionService) Close(studentID string) (*SessionClosed, error) {
	code, err := s.store.Close(studentID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("student_id", studentID).Msg("Session closed")
	return &SessionClosed{Code: code}, nil
}

// Release consumes the cleanup code handed out by Close.
func (s *ExamSessionService) Release(studentID, code string) error {
	if !s.store.RedeemCode(studentID, code) {
		return ErrInvalidCode
	}
	return nil
}

// Results lists the student's graded exams.
func (s *ExamSessionService) Results(ctx context.Context, studentID string) ([]repository.ResultSummary, error) {
	results, err := s.results.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []repository.ResultSummary{}
	}
	return results, nil
}

// ─── Administrative ────────────────────────────────────────────────

// List returns a view of every live session.
func (s *ExamSessionService) List() []session.View {
	sessions := s.store.Sessions()
	views := make([]session.View, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.View())
	}
	return views
}

// Inspect returns a live session together with its write-ahead marker.
func (s *ExamSessionService) Inspect(ctx context.Context, studentID string) (*SessionInspection, error) {
	sess, ok := s.store.Get(studentID)
	if !ok {
		return nil, session.ErrNotFound
	}
	pending, err := s.pending.Pending(ctx, studentID, sess.ExamID())
	if err != nil {
		return nil, err
	}
	_, purgeAt := sess.Timers()
	return &SessionInspection{Session: sess.View(), Pending: pending, PurgeAt: purgeAt}, nil
}

// ForceAbort discards the student's attempt without grading.
func (s *ExamSessionService) ForceAbort(ctx context.Context, adminID, studentID, reason string) error {
	if reason == "" {
		reason = "aborted by proctor"
	}
	if err := s.store.ForceAbort(ctx, studentID, reason); err != nil {
		return err
	}
	s.log.Warn().
		Str("admin_id", adminID).
		Str("student_id", studentID).
		Str("reason", reason).
		Msg("Session aborted by override")
	return nil
}

// ForceSubmit grades the student's attempt regardless of its state.
func (s *ExamSessionService) ForceSubmit(ctx context.Context, adminID, studentID string) (session.View, error) {
	view, err := s.store.ForceSubmit(ctx, studentID)
	if err != nil {
		return session.View{}, err
	}
	s.log.Warn().
		Str("admin_id", adminID).
		Str("student_id", studentID).
		Msg("Session submitted by override")
	return view, nil
}

func (s *ExamSessionService) drive(studentID string, op func(*session.ExamSession) error) (session.View, error) {
	sess, ok := s.store.Get(studentID)
	if !ok {
		return session.View{}, session.ErrNotFound
	}
	err := op(sess)
	return sess.View(), err
}
