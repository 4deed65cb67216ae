package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeEligibility struct {
	denied map[string]string
	err    error
}

func (f *fakeEligibility) IsEligible(_ context.Context, studentID, examID string) (Eligibility, error) {
	if f.err != nil {
		return Eligibility{}, f.err
	}
	if reason, ok := f.denied[studentID]; ok {
		return Eligibility{Eligible: false, Reason: reason}, nil
	}
	return Eligibility{Eligible: true, AvailableExamID: examID}, nil
}

type fakeRealizer struct {
	clock     *fakeClock
	templates map[string]*model.ExamTemplate
}

func (f *fakeRealizer) Realize(_ context.Context, ref string, serial int64) (*model.PresentedExam, error) {
	t, ok := f.templates[ref]
	if !ok {
		return nil, fmt.Errorf("template %s not found", ref)
	}
	return t.Realize(serial, f.clock.Now())
}

type fakeSerials struct {
	mu   sync.Mutex
	next int64
}

func (f *fakeSerials) NextSerial(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return 1000 + f.next, nil
}

type memJournal struct {
	mu       sync.Mutex
	pending  map[string]model.PendingExam
	answers  map[string]map[string]string
	saveAlls int
}

func newMemJournal() *memJournal {
	return &memJournal{
		pending: make(map[string]model.PendingExam),
		answers: make(map[string]map[string]string),
	}
}

func (j *memJournal) MarkPending(_ context.Context, p model.PendingExam) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending[p.StudentID] = p
	return nil
}

func (j *memJournal) SaveAnswer(_ context.Context, studentID string, _ *model.PresentedExam, problemID, raw string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.answers[studentID] == nil {
		j.answers[studentID] = make(map[string]string)
	}
	j.answers[studentID][problemID] = raw
	return nil
}

func (j *memJournal) SaveAnswers(_ context.Context, studentID string, _ *model.PresentedExam, answers map[string]string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saveAlls++
	j.answers[studentID] = make(map[string]string, len(answers))
	for k, v := range answers {
		j.answers[studentID][k] = v
	}
	return nil
}

func (j *memJournal) ClearPending(_ context.Context, studentID, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.pending, studentID)
	return nil
}

func (j *memJournal) isPending(studentID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.pending[studentID]
	return ok
}

type memLog struct {
	mu      sync.Mutex
	records [][]byte
	failAll bool
}

func (l *memLog) WriteAll(_ context.Context, records [][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll {
		return errors.New("disk full")
	}
	l.records = append([][]byte(nil), records...)
	return nil
}

func (l *memLog) ReadAll(context.Context) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.records...), nil
}

func (l *memLog) Append(_ context.Context, record []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

func (l *memLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// lockWatchGrader records whether the store's registry lock was held while
// grading.
type lockWatchGrader struct {
	Grader
	store           *Store
	calls           int
	heldDuringGrade bool
}

func (g *lockWatchGrader) Grade(ctx context.Context, studentID string, exam *model.PresentedExam, answers map[string]string) (model.GradeResult, error) {
	g.calls++
	if g.store.mu.TryLock() {
		g.store.mu.Unlock()
	} else {
		g.heldDuringGrade = true
	}
	return g.Grader.Grade(ctx, studentID, exam, answers)
}

const (
	testPurgeWindow = 2 * time.Hour
	testGrace       = 10 * time.Minute
)

type harness struct {
	clock       *fakeClock
	eligibility *fakeEligibility
	journal     *memJournal
	results     *grading.MemoryResults
	recovery    *memLog
	deps        Deps
	store       *Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := newFakeClock()
	h := &harness{
		clock:       clock,
		eligibility: &fakeEligibility{denied: map[string]string{}},
		journal:     newMemJournal(),
		results:     grading.NewMemoryResults(),
		recovery:    &memLog{},
	}
	h.deps = Deps{
		Eligibility: h.eligibility,
		Realizer: &fakeRealizer{clock: clock, templates: map[string]*model.ExamTemplate{
			"algebra":  testTemplate(t, "algebra", 3600),
			"untimed":  testTemplate(t, "untimed", 0),
			"no-items": {ID: "no-items", Title: "Empty"},
		}},
		Serials:     &fakeSerials{},
		Journal:     h.journal,
		Grader:      grading.NewEngine(grading.NewExprEvaluator(), h.results, zerolog.Nop()),
		Log:         zerolog.Nop(),
		Now:         clock.Now,
		PurgeWindow: testPurgeWindow,
		GracePeriod: testGrace,
	}
	h.store = NewStore(h.deps, h.recovery)
	return h
}

func variant(t *testing.T, inst model.ProblemInstance) json.RawMessage {
	t.Helper()
	raw, err := model.Variant(inst)
	if err != nil {
		t.Fatalf("variant: %v", err)
	}
	return raw
}

// testTemplate has two sections: q1 (choice, B), q2 (numeric, 4) and q3
// (text, paris). Each correct answer is worth 10 towards "score"; mastery
// is 20 and passing awards credit for MATH101.
func testTemplate(t *testing.T, id string, limit int) *model.ExamTemplate {
	t.Helper()
	mastery := 20.0
	return &model.ExamTemplate{
		ID:               id,
		Title:            "Placement " + id,
		TimeLimitSeconds: limit,
		MasteryScore:     &mastery,
		Sections: []model.TemplateSection{
			{ID: "s1", Title: "Basics", Problems: []model.TemplateProblem{
				{ID: "q1", Variants: []json.RawMessage{variant(t, &model.ChoiceProblem{Options: []string{"A", "B", "C"}, Correct: "B", Points: 1})}},
				{ID: "q2", Variants: []json.RawMessage{variant(t, &model.NumericProblem{Correct: 4, Points: 1})}},
			}},
			{ID: "s2", Title: "Geography", Problems: []model.TemplateProblem{
				{ID: "q3", Variants: []json.RawMessage{variant(t, &model.TextProblem{Accepted: []string{"Paris"}, Points: 1})}},
			}},
		},
		Subtests: []model.Subtest{{
			Name: model.ScoreSubtestName,
			Members: []model.SubtestMember{
				{ProblemID: "q1", Weight: 10},
				{ProblemID: "q2", Weight: 10},
				{ProblemID: "q3", Weight: 10},
			},
		}},
		Outcomes: []model.Outcome{{
			Name:      "math-credit",
			Condition: "passed",
			Actions:   []model.Action{{Kind: model.ActionAwardCredit, Course: "MATH101"}},
		}},
	}
}

// openSession creates and initializes a session through the store.
func (h *harness) openSession(t *testing.T, studentID, templateRef string) *ExamSession {
	t.Helper()
	s, resumed, err := h.store.Open(context.Background(), studentID, templateRef, templateRef)
	if err != nil {
		t.Fatalf("Open(%s): %v", studentID, err)
	}
	if resumed {
		t.Fatalf("Open(%s): unexpectedly resumed", studentID)
	}
	return s
}

// startedSession is an initialized session that has begun and answered q1.
func (h *harness) startedSession(t *testing.T, studentID, templateRef string) *ExamSession {
	t.Helper()
	ctx := context.Background()
	s := h.openSession(t, studentID, templateRef)
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.RecordAnswer(ctx, 0, 0, "B"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	return s
}
