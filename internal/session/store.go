package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Store errors.
var (
	ErrAlreadyActive = errors.New("student already has an active exam session")
	ErrNotFound      = errors.New("exam session not found")
)

// SnapshotLog is a durable sink of encoded session records.
type SnapshotLog interface {
	// WriteAll replaces the log contents with records.
	WriteAll(ctx context.Context, records [][]byte) error
	ReadAll(ctx context.Context) ([][]byte, error)
	Append(ctx context.Context, record []byte) error
}

// Store is the registry of live sessions, at most one per student.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*ExamSession
	codes    map[string][]byte

	deps     *Deps
	recovery SnapshotLog
	log      zerolog.Logger
}

// NewStore creates an empty Store. recovery receives the snapshots of
// sessions purged without scoring and may be nil.
func NewStore(deps Deps, recovery SnapshotLog) *Store {
	return &Store{
		sessions: make(map[string]*ExamSession),
		codes:    make(map[string][]byte),
		deps:     &deps,
		recovery: recovery,
		log:      deps.Log.With().Str("component", "session_store").Logger(),
	}
}

// New creates an uninstalled session bound to the store's collaborators.
func (st *Store) New(studentID, examID string) *ExamSession {
	s := newSession(st.deps, studentID, examID)
	s.purgeAt = st.deps.stamp().Add(st.deps.PurgeWindow)
	return s
}

// Install registers s. It fails when the student already has a session or
// when s has run past its time limit.
func (st *Store) Install(s *ExamSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.installLocked(s)
}

func (st *Store) installLocked(s *ExamSession) error {
	if _, ok := st.sessions[s.studentID]; ok {
		return ErrAlreadyActive
	}
	s.mu.Lock()
	expired := s.state.active() && s.timedOut(st.deps.now())
	s.mu.Unlock()
	if expired {
		return ErrTimedOut
	}
	st.sessions[s.studentID] = s
	return nil
}

// Get returns the student's session.
func (st *Store) Get(studentID string) (*ExamSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[studentID]
	return s, ok
}

// Remove unregisters the student's session.
func (st *Store) Remove(studentID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, studentID)
}

// removeSession unregisters s unless it has already been replaced.
func (st *Store) removeSession(s *ExamSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[s.studentID]; ok && cur == s {
		delete(st.sessions, s.studentID)
	}
}

// Len reports the number of registered sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sessions returns the registered sessions ordered by student ID.
func (st *Store) Sessions() []*ExamSession {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*ExamSession, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].studentID < out[j].studentID })
	return out
}

// Open returns the student's live session or creates and initializes a new
// one. The slot is reserved before initialization so concurrent opens for
// the same student share one session. A session that fails to initialize
// stays registered in StateError until it is closed.
func (st *Store) Open(ctx context.Context, studentID, examID, templateRef string) (*ExamSession, bool, error) {
	st.mu.Lock()
	if s, ok := st.sessions[studentID]; ok {
		st.mu.Unlock()
		s.CheckTimeout(ctx)
		return s, true, nil
	}
	s := st.New(studentID, examID)
	if err := st.installLocked(s); err != nil {
		st.mu.Unlock()
		return nil, false, err
	}
	st.mu.Unlock()

	if err := s.Initialize(ctx, templateRef); err != nil {
		return s, false, err
	}
	return s, false, nil
}

// Close ends a completed or failed session, unregisters it and returns the
// one-time cleanup code.
func (st *Store) Close(studentID string) (string, error) {
	s, ok := st.Get(studentID)
	if !ok {
		return "", ErrNotFound
	}
	if err := s.Close(); err != nil {
		return "", err
	}
	st.removeSession(s)
	return st.IssueCode(studentID), nil
}

// ForceAbort discards the student's attempt and unregisters the session.
func (st *Store) ForceAbort(ctx context.Context, studentID, reason string) error {
	s, ok := st.Get(studentID)
	if !ok {
		return ErrNotFound
	}
	if err := s.ForceAbort(ctx, reason); err != nil {
		return err
	}
	st.removeSession(s)
	return nil
}

// ForceSubmit grades the student's attempt regardless of its state and
// unregisters the session. The final view is returned.
func (st *Store) ForceSubmit(ctx context.Context, studentID string) (View, error) {
	s, ok := st.Get(studentID)
	if !ok {
		return View{}, ErrNotFound
	}
	if err := s.ForceSubmit(ctx); err != nil {
		return View{}, err
	}
	st.removeSession(s)
	return s.View(), nil
}

// PersistAll writes every session that has not run out of time to sink. A
// session that fails to encode is logged and skipped.
func (st *Store) PersistAll(ctx context.Context, sink SnapshotLog) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.deps.now()
	records := make([][]byte, 0, len(st.sessions))
	for id, s := range st.sessions {
		s.mu.Lock()
		expired := s.timedOut(now)
		s.mu.Unlock()
		if expired {
			st.log.Info().Str("student_id", id).Msg("Timed out session not persisted")
			continue
		}

		data, err := EncodeRecord(s)
		if err != nil {
			st.log.Error().Err(err).Str("student_id", id).Msg("Session could not be encoded")
			continue
		}
		records = append(records, data)
	}

	if err := sink.WriteAll(ctx, records); err != nil {
		return 0, fmt.Errorf("persist sessions: %w", err)
	}
	st.log.Info().Int("count", len(records)).Msg("Sessions persisted")
	return len(records), nil
}

// RestoreAll installs the sessions read from source. Records past their
// purge time are dropped, corrupt records are skipped. An active session
// whose time ran out while the process was down is submitted first so the
// student finds it graded.
func (st *Store) RestoreAll(ctx context.Context, source SnapshotLog) (int, error) {
	raw, err := source.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore sessions: %w", err)
	}

	// Decoding and timeout grading run before the registry lock is taken.
	now := st.deps.now()
	sessions := make([]*ExamSession, 0, len(raw))
	for i, data := range raw {
		rec, err := DecodeRecord(data)
		if err != nil {
			st.log.Warn().Err(err).Int("index", i).Msg("Corrupt session record skipped")
			continue
		}

		s := fromRecord(st.deps, rec)
		if !s.purgeAt.IsZero() && !now.Before(s.purgeAt) {
			st.log.Info().Str("student_id", rec.StudentID).Msg("Session past purge time dropped")
			continue
		}
		s.CheckTimeout(ctx)
		sessions = append(sessions, s)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	restored := 0
	for _, s := range sessions {
		if err := st.installLocked(s); err != nil {
			st.log.Warn().Err(err).Str("student_id", s.studentID).Msg("Session not restored")
			continue
		}
		restored++
	}

	st.log.Info().Int("count", restored).Int("records", len(raw)).Msg("Sessions restored")
	return restored, nil
}

// PurgeExpired submits sessions whose time ran out and evicts sessions past
// their purge time. Unsubmitted work, including a started exam parked on the
// instructions, is always scored before eviction; other sessions leave a
// recovery snapshot. Sessions busy with a request are left
// for the next sweep. It returns the number of sessions removed.
func (st *Store) PurgeExpired(ctx context.Context) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.deps.now()
	removed := 0
	for id, s := range st.sessions {
		if !s.mu.TryLock() {
			continue
		}

		log := st.log.With().Str("student_id", id).Str("state", s.state.String()).Logger()
		switch {
		case s.state.active() && s.timedOut(now):
			s.submit(ctx, "timeout")
			log.Info().Msg("Timed out session submitted and purged")

		case !now.Before(s.purgeAt):
			if s.state == StateItem || s.state == StateSubmitConfirm || (s.state == StateInstructions && s.started) {
				s.submit(ctx, "purge")
				log.Info().Msg("Expired session submitted and purged")
			} else {
				st.snapshotLocked(ctx, log, s)
				log.Info().Msg("Expired session purged")
			}

		default:
			s.mu.Unlock()
			continue
		}

		s.mu.Unlock()
		delete(st.sessions, id)
		removed++
	}
	return removed
}

// snapshotLocked appends s to the recovery log. Callers hold s.mu.
func (st *Store) snapshotLocked(ctx context.Context, log zerolog.Logger, s *ExamSession) {
	if st.recovery == nil {
		return
	}
	data, err := json.Marshal(s.record())
	if err != nil {
		log.Error().Err(err).Msg("Recovery snapshot could not be encoded")
		return
	}
	if err := st.recovery.Append(ctx, data); err != nil {
		log.Error().Err(err).Msg("Recovery snapshot could not be written")
	}
}

// IssueCode creates the student's one-time cleanup code, replacing any
// earlier one. Only a bcrypt hash of the code is kept.
func (st *Store) IssueCode(studentID string) string {
	code := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), st.codeCost())
	if err != nil {
		st.log.Error().Err(err).Str("student_id", studentID).Msg("Cleanup code could not be hashed")
		return code
	}
	st.mu.Lock()
	st.codes[studentID] = hash
	st.mu.Unlock()
	return code
}

// RedeemCode consumes the student's code. It reports false for an unknown
// or already used code.
func (st *Store) RedeemCode(studentID, code string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	hash, ok := st.codes[studentID]
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(code)) != nil {
		return false
	}
	delete(st.codes, studentID)
	return true
}

func (st *Store) codeCost() int {
	if st.deps.CodeCost < bcrypt.MinCost {
		return bcrypt.MinCost
	}
	return st.deps.CodeCost
}
