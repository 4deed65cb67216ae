package grading

import (
	"context"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// MemoryResults is an in-process ResultRecorder keyed by ResultKey.
type MemoryResults struct {
	mu      sync.Mutex
	results map[string]model.GradeResult
}

// NewMemoryResults creates an empty MemoryResults.
func NewMemoryResults() *MemoryResults {
	return &MemoryResults{results: make(map[string]model.GradeResult)}
}

func (m *MemoryResults) HasResult(_ context.Context, key model.ResultKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.results[key.String()]
	return ok, nil
}

func (m *MemoryResults) RecordResult(_ context.Context, res *model.GradeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := res.Key().String()
	if _, ok := m.results[k]; ok {
		return ErrDuplicateSubmission
	}
	m.results[k] = *res
	return nil
}

// Get returns the stored result for key.
func (m *MemoryResults) Get(key model.ResultKey) (model.GradeResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[key.String()]
	return r, ok
}

// Len reports how many results are stored.
func (m *MemoryResults) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}
