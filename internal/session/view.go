package session

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ItemView is what a client needs to render the current item. It never
// carries the expected answer.
type ItemView struct {
	Section   int               `json:"section"`
	Item      int               `json:"item"`
	ProblemID string            `json:"problem_id"`
	Kind      model.ProblemKind `json:"kind"`
	Options   []string          `json:"options,omitempty"`
	Answer    string            `json:"answer,omitempty"`
}

// SectionView summarizes one section for navigation.
type SectionView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Items    int    `json:"items"`
	Answered int    `json:"answered"`
}

// View is a point-in-time rendering model of a session.
type View struct {
	StudentID        string             `json:"student_id"`
	ExamID           string             `json:"exam_id"`
	Title            string             `json:"title,omitempty"`
	SerialNumber     int64              `json:"serial_number,omitempty"`
	State            State              `json:"state"`
	Started          bool               `json:"started"`
	TimeoutAt        *time.Time         `json:"timeout_at,omitempty"`
	RemainingSeconds *int64             `json:"remaining_seconds,omitempty"`
	Sections         []SectionView      `json:"sections,omitempty"`
	Current          *ItemView          `json:"current,omitempty"`
	Score            *int               `json:"score,omitempty"`
	GradingError     string             `json:"grading_error,omitempty"`
	Failure          string             `json:"failure,omitempty"`
	Result           *model.GradeResult `json:"result,omitempty"`
}

// View renders the session. The timer is not evaluated.
func (s *ExamSession) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		StudentID:    s.studentID,
		ExamID:       s.examID,
		State:        s.state,
		Started:      s.started,
		GradingError: s.gradingError,
		Failure:      s.failure,
	}
	if s.score != nil {
		score := *s.score
		v.Score = &score
	}
	if s.result != nil && s.result.GradingError == "" {
		res := *s.result
		v.Result = &res
	}
	if !s.timeoutAt.IsZero() {
		at := s.timeoutAt
		v.TimeoutAt = &at
		if s.state.active() {
			left := int64(at.Sub(s.deps.now()).Seconds())
			if left < 0 {
				left = 0
			}
			v.RemainingSeconds = &left
		}
	}

	if s.exam == nil {
		return v
	}
	v.Title = s.exam.Title
	v.SerialNumber = s.exam.SerialNumber
	if s.state.Terminal() {
		return v
	}

	for _, sec := range s.exam.Sections {
		sv := SectionView{ID: sec.ID, Title: sec.Title, Items: len(sec.Problems)}
		for _, p := range sec.Problems {
			if p.Selected != nil && p.Selected.Answered() {
				sv.Answered++
			}
		}
		v.Sections = append(v.Sections, sv)
	}

	if s.state == StateItem {
		if p, ok := s.exam.ItemAt(s.section, s.item); ok {
			v.Current = itemView(s.section, s.item, p)
		}
	}
	return v
}

func itemView(section, item int, p *model.Problem) *ItemView {
	iv := &ItemView{Section: section, Item: item, ProblemID: p.ID}
	if p.Selected == nil {
		return iv
	}
	iv.Kind = p.Selected.Kind()
	iv.Answer = p.Selected.RawAnswer()
	switch inst := p.Selected.(type) {
	case *model.ChoiceProblem:
		iv.Options = append([]string(nil), inst.Options...)
	case *model.MultiChoiceProblem:
		iv.Options = append([]string(nil), inst.Options...)
	}
	return iv
}

// Position returns the current section and item indices.
func (s *ExamSession) Position() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.section, s.item
}

// Timers returns the timeout and purge deadlines. A zero timeout means untimed
// or not yet started.
func (s *ExamSession) Timers() (timeoutAt, purgeAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutAt, s.purgeAt
}

// Score returns the graded score, nil until graded or when grading failed.
func (s *ExamSession) Score() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.score == nil {
		return nil
	}
	v := *s.score
	return &v
}

func (s *ExamSession) GradingError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gradingError
}

// Exam returns the realized exam, nil before Initialize succeeds.
func (s *ExamSession) Exam() *model.PresentedExam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}
