package grading

import "testing"

func TestExprEvaluator(t *testing.T) {
	ctx := NewContext()
	ctx.SetReal("score", 82)
	ctx.SetReal("algebra", 12.5)
	ctx.SetBool("passed", true)

	tests := []struct {
		formula string
		kind    ValueKind
		b       bool
		r       float64
	}{
		{formula: "passed", kind: KindBool, b: true},
		{formula: "score >= 70 && algebra > 10", kind: KindBool, b: true},
		{formula: "!passed || score < 50", kind: KindBool, b: false},
		{formula: "score + algebra", kind: KindReal, r: 94.5},
		{formula: "2 * 3", kind: KindReal, r: 6},
		{formula: "   ", kind: KindError},
		{formula: "unknown_subtest > 3", kind: KindError},
		{formula: "score >=", kind: KindError},
		{formula: `"text"`, kind: KindError},
	}

	eval := NewExprEvaluator()
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			v := eval.Evaluate(tt.formula, ctx)
			if v.Kind() != tt.kind {
				t.Fatalf("kind: got %v (%s), want %v", v.Kind(), v, tt.kind)
			}
			switch tt.kind {
			case KindBool:
				if b, _ := v.AsBool(); b != tt.b {
					t.Errorf("got %v, want %v", b, tt.b)
				}
			case KindReal:
				if r, _ := v.AsReal(); r != tt.r {
					t.Errorf("got %v, want %v", r, tt.r)
				}
			case KindError:
				if v.Error() == nil {
					t.Error("expected an error value")
				}
			}
		})
	}
}

func TestValueTruth(t *testing.T) {
	if ok, err := Bool(true).Truth(); err != nil || !ok {
		t.Errorf("Bool(true): %v, %v", ok, err)
	}
	if _, err := Real(1).Truth(); err == nil {
		t.Error("a number is not a condition")
	}
	if _, err := Err(nil).Truth(); err == nil {
		t.Error("error value must report an error")
	}
}

func TestContextNames(t *testing.T) {
	ctx := NewContext()
	ctx.SetReal("b", 1)
	ctx.SetBool("a", false)
	ctx.SetReal("b", 2)

	names := ctx.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names %v", names)
	}
	if v, ok := ctx.Lookup("b"); !ok {
		t.Fatal("b not bound")
	} else if r, _ := v.AsReal(); r != 2 {
		t.Errorf("rebinding should replace, got %v", r)
	}
}
