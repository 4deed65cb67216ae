package grading

import (
	"errors"
	"fmt"
	"strconv"
)

// ValueKind tags a Value.
type ValueKind int

const (
	KindError ValueKind = iota
	KindBool
	KindReal
)

// Value is the result of evaluating a formula: a boolean, a real or an error.
type Value struct {
	kind ValueKind
	b    bool
	r    float64
	err  error
}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Real wraps a number.
func Real(r float64) Value { return Value{kind: KindReal, r: r} }

// Err wraps an evaluation failure.
func Err(err error) Value {
	if err == nil {
		err = errors.New("unknown evaluation error")
	}
	return Value{kind: KindError, err: err}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsError() bool { return v.kind == KindError }

func (v Value) Error() error { return v.err }

// AsBool returns the boolean, or false when the value is not a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsReal returns the number, or false when the value is not a real.
func (v Value) AsReal() (float64, bool) { return v.r, v.kind == KindReal }

// Truth interprets the value as a condition. Only booleans are conditions.
func (v Value) Truth() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindReal:
		return false, fmt.Errorf("formula produced number %v, want boolean", v.r)
	default:
		return false, v.err
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindReal:
		return strconv.FormatFloat(v.r, 'g', -1, 64)
	default:
		return "error: " + v.err.Error()
	}
}
