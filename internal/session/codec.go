package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// recordVersion is bumped whenever Record changes incompatibly.
const recordVersion = 2

// Record is the durable form of one session.
type Record struct {
	Version      int                  `json:"v"`
	StudentID    string               `json:"student_id"`
	ExamID       string               `json:"exam_id"`
	SerialNumber int64                `json:"serial_number"`
	RealizedAt   int64                `json:"realized_at"`
	State        State                `json:"state"`
	Section      int                  `json:"section"`
	Item         int                  `json:"item"`
	Started      bool                 `json:"started"`
	TimeoutAt    int64                `json:"timeout_at"`
	PurgeAt      int64                `json:"purge_at"`
	Score        *int                 `json:"score,omitempty"`
	GradingError string               `json:"grading_error,omitempty"`
	Failure      string               `json:"failure,omitempty"`
	Result       *model.GradeResult   `json:"result,omitempty"`
	Exam         *model.PresentedExam `json:"exam,omitempty"`
}

var errUnsupportedVersion = errors.New("unsupported session record version")

// record captures the session. Callers hold s.mu.
func (s *ExamSession) record() Record {
	r := Record{
		Version:      recordVersion,
		StudentID:    s.studentID,
		ExamID:       s.examID,
		State:        s.state,
		Section:      s.section,
		Item:         s.item,
		Started:      s.started,
		TimeoutAt:    toMillis(s.timeoutAt),
		PurgeAt:      toMillis(s.purgeAt),
		Score:        s.score,
		GradingError: s.gradingError,
		Failure:      s.failure,
		Result:       s.result,
		Exam:         s.exam,
	}
	if s.exam != nil {
		r.SerialNumber = s.exam.SerialNumber
		r.RealizedAt = s.exam.RealizedAt.UnixMicro()
	}
	return r
}

// EncodeRecord serializes a session.
func EncodeRecord(s *ExamSession) ([]byte, error) {
	s.mu.Lock()
	r := s.record()
	data, err := json.Marshal(r)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", r.StudentID, err)
	}
	return data, nil
}

// DecodeRecord parses a record produced by EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode session record: %w", err)
	}
	if r.Version != recordVersion {
		return Record{}, fmt.Errorf("%w: %d", errUnsupportedVersion, r.Version)
	}
	if r.StudentID == "" {
		return Record{}, errors.New("decode session record: missing student id")
	}
	if r.State != StateInitial && r.State != StateError && r.Exam == nil {
		return Record{}, fmt.Errorf("decode session record %s: state %s without exam", r.StudentID, r.State)
	}
	return r, nil
}

// fromRecord rebuilds a session bound to deps.
func fromRecord(deps *Deps, r Record) *ExamSession {
	s := newSession(deps, r.StudentID, r.ExamID)
	s.state = r.State
	s.section = r.Section
	s.item = r.Item
	s.started = r.Started
	s.timeoutAt = fromMillis(r.TimeoutAt)
	s.purgeAt = fromMillis(r.PurgeAt)
	s.score = r.Score
	s.gradingError = r.GradingError
	s.failure = r.Failure
	s.result = r.Result
	s.exam = r.Exam
	return s
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
