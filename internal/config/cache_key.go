package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// PendingExamKey returns the key of a student's write-ahead pending exam marker
func (r *CacheKeyStruct) PendingExamKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:pending", studentID, examID)
}

// StudentAnswersKey returns the hash holding a realized exam's journaled answers
func (r *CacheKeyStruct) StudentAnswersKey(examID, studentID string, serial int64) string {
	return fmt.Sprintf("student:%s:exam:%s:%d:answers", studentID, examID, serial)
}

// SessionSnapshotKey returns the list holding persisted sessions across restarts
func (r *CacheKeyStruct) SessionSnapshotKey() string {
	return "proctor:sessions:snapshot"
}

// SessionRecoveryKey returns the list receiving snapshots of purged sessions
func (r *CacheKeyStruct) SessionRecoveryKey() string {
	return "proctor:sessions:recovery"
}

// StudentRateKey returns the rate limiter counter of a student for a window
func (r *CacheKeyStruct) StudentRateKey(studentID string, window int64) string {
	return fmt.Sprintf("ratelimit:student:%s:%d", studentID, window)
}

var CacheKey = NewCacheKeyStruct()
