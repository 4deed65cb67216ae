package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func mustVariant(t *testing.T, inst ProblemInstance) json.RawMessage {
	t.Helper()
	raw, err := Variant(inst)
	if err != nil {
		t.Fatalf("Variant: %v", err)
	}
	return raw
}

func sampleTemplate(t *testing.T) *ExamTemplate {
	t.Helper()
	var variants []json.RawMessage
	for _, correct := range []string{"A", "B", "C", "D"} {
		variants = append(variants, mustVariant(t, &ChoiceProblem{Options: []string{"A", "B", "C", "D"}, Correct: correct, Points: 1}))
	}
	return &ExamTemplate{
		ID:               "chem-101",
		Title:            "Chemistry placement",
		TimeLimitSeconds: 1800,
		Sections: []TemplateSection{
			{ID: "s1", Problems: []TemplateProblem{
				{ID: "q1", Variants: variants},
				{ID: "q2", Variants: variants},
			}},
			{ID: "s2", Problems: []TemplateProblem{
				{ID: "q3", Variants: []json.RawMessage{mustVariant(t, &NumericProblem{Correct: 7, Points: 1})}},
			}},
		},
		Subtests: []Subtest{{Name: ScoreSubtestName, Members: []SubtestMember{
			{ProblemID: "q1"}, {ProblemID: "q2"}, {ProblemID: "q3"},
		}}},
	}
}

func correctKeys(exam *PresentedExam) []string {
	var keys []string
	for _, s := range exam.Sections {
		for _, p := range s.Problems {
			if c, ok := p.Selected.(*ChoiceProblem); ok {
				keys = append(keys, c.Correct)
			}
		}
	}
	return keys
}

func TestRealizeDeterministicPerSerial(t *testing.T) {
	tpl := sampleTemplate(t)
	at := time.Date(2026, 1, 10, 8, 30, 0, 123456789, time.UTC)

	a, err := tpl.Realize(7, at)
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	b, err := tpl.Realize(7, at)
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}

	ka, kb := correctKeys(a), correctKeys(b)
	if len(ka) != 2 || ka[0] != kb[0] || ka[1] != kb[1] {
		t.Fatalf("same serial produced different exams: %v vs %v", ka, kb)
	}
	if a.SerialNumber != 7 || a.ExamID != "chem-101" || a.TimeLimit() != 30*time.Minute {
		t.Errorf("unexpected exam header %+v", a)
	}
	if a.RealizedAt.Nanosecond()%1000 != 0 {
		t.Errorf("realization time not truncated to microseconds: %v", a.RealizedAt)
	}
}

func TestRealizeInstancesNotShared(t *testing.T) {
	tpl := sampleTemplate(t)
	a, err := tpl.Realize(1, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	b, err := tpl.Realize(1, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	pa, _ := a.ItemAt(0, 0)
	pb, _ := b.ItemAt(0, 0)
	if err := pa.Selected.RecordAnswer("A"); err != nil {
		t.Fatal(err)
	}
	if pb.Selected.Answered() {
		t.Fatal("answer leaked between realized exams")
	}
	if got := a.Answers(); got["q1"] != "A" || len(got) != 1 {
		t.Errorf("unexpected answers %v", got)
	}
}

func TestRealizeRejectsBrokenTemplates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tpl *ExamTemplate)
	}{
		{name: "no sections", mutate: func(tpl *ExamTemplate) { tpl.Sections = nil }},
		{name: "empty section", mutate: func(tpl *ExamTemplate) { tpl.Sections[1].Problems = nil }},
		{name: "no variants", mutate: func(tpl *ExamTemplate) { tpl.Sections[1].Problems[0].Variants = nil }},
		{name: "duplicate id", mutate: func(tpl *ExamTemplate) { tpl.Sections[1].Problems[0].ID = "q1" }},
		{name: "bad variant", mutate: func(tpl *ExamTemplate) {
			tpl.Sections[1].Problems[0].Variants = []json.RawMessage{json.RawMessage(`{"kind":"essay"}`)}
		}},
		{name: "unknown subtest member", mutate: func(tpl *ExamTemplate) {
			tpl.Subtests[0].Members = append(tpl.Subtests[0].Members, SubtestMember{ProblemID: "q9"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := sampleTemplate(t)
			tt.mutate(tpl)
			if _, err := tpl.Realize(1, time.Now()); !errors.Is(err, ErrTemplateInvalid) {
				t.Fatalf("expected ErrTemplateInvalid, got %v", err)
			}
		})
	}
}

func TestPresentedExamLookup(t *testing.T) {
	exam, err := sampleTemplate(t).Realize(3, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if p, ok := exam.ItemAt(1, 0); !ok || p.ID != "q3" {
		t.Errorf("ItemAt(1,0) = %v, %v", p, ok)
	}
	for _, idx := range [][2]int{{-1, 0}, {0, 2}, {2, 0}} {
		if _, ok := exam.ItemAt(idx[0], idx[1]); ok {
			t.Errorf("ItemAt(%d,%d) should be out of range", idx[0], idx[1])
		}
	}
	if _, ok := exam.Problem("q2"); !ok {
		t.Error("Problem(q2) not found")
	}
	if _, ok := exam.Problem("nope"); ok {
		t.Error("Problem(nope) should not exist")
	}

	k1 := exam.ResultKey("s1").String()
	k2 := exam.ResultKey("s2").String()
	if k1 == k2 {
		t.Error("result keys must differ per student")
	}
}
