package model

import (
	"errors"
	"os"
	"testing"
	"time"
)

const chemistryYAML = `
id: chem-101
title: Chemistry placement
time_limit_seconds: 1800
mastery_score: 60
sections:
  - id: s1
    title: Basics
    problems:
      - id: q1
        variants:
          - kind: choice
            data: {options: [A, B, C], correct: B, points: 2}
      - id: q2
        variants:
          - kind: numeric
            data: {correct: 7, tolerance: 0.5, points: 1}
subtests:
  - name: score
    members:
      - {problem_id: q1, weight: 1}
      - {problem_id: q2, weight: 1}
outcomes:
  - name: placement
    condition: score >= 2
    actions:
      - {kind: award_placement, course: CHEM-201}
`

func TestParseTemplateYAML(t *testing.T) {
	tpl, err := ParseTemplateYAML([]byte(chemistryYAML))
	if err != nil {
		t.Fatalf("ParseTemplateYAML: %v", err)
	}
	if tpl.ID != "chem-101" || tpl.TimeLimitSeconds != 1800 {
		t.Errorf("unexpected header %+v", tpl)
	}
	if tpl.MasteryScore == nil || *tpl.MasteryScore != 60 {
		t.Errorf("mastery score not decoded: %v", tpl.MasteryScore)
	}
	if len(tpl.Outcomes) != 1 || tpl.Outcomes[0].Condition != "score >= 2" {
		t.Errorf("outcomes not decoded: %+v", tpl.Outcomes)
	}

	exam, err := tpl.Realize(1, time.Now())
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	p, ok := exam.Problem("q1")
	if !ok {
		t.Fatal("q1 missing")
	}
	if p.Selected.Kind() != ProblemKindChoice {
		t.Errorf("q1 kind %s", p.Selected.Kind())
	}
}

func TestParseTemplateYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "malformed", doc: "id: [unterminated"},
		{name: "missing id", doc: "title: nothing"},
		{name: "wrong shape", doc: "sections: 3\nid: x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTemplateYAML([]byte(tt.doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := ParseTemplateYAML([]byte("title: nothing")); !errors.Is(err, ErrTemplateInvalid) {
		t.Errorf("missing id should wrap ErrTemplateInvalid, got %v", err)
	}
}

func TestSampleTemplateRealizes(t *testing.T) {
	data, err := os.ReadFile("../../templates/sample-quiz.yaml")
	if err != nil {
		t.Fatal(err)
	}
	tpl, err := ParseTemplateYAML(data)
	if err != nil {
		t.Fatalf("ParseTemplateYAML: %v", err)
	}
	for serial := int64(1); serial <= 4; serial++ {
		exam, err := tpl.Realize(serial, time.Now())
		if err != nil {
			t.Fatalf("Realize(%d): %v", serial, err)
		}
		if len(exam.Sections) != 2 {
			t.Fatalf("expected 2 sections, got %d", len(exam.Sections))
		}
	}
}
