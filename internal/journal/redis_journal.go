package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswersTTL bounds how long journaled answers stay in Redis once written.
const AnswersTTL = 48 * time.Hour

// AnswerPayload is one queued answer for the autosave worker.
type AnswerPayload struct {
	StudentID    string `json:"student_id"`
	ExamID       string `json:"exam_id"`
	SerialNumber int64  `json:"serial_number"`
	RealizedAt   int64  `json:"realized_at"`
	ProblemID    string `json:"problem_id"`
	Answer       string `json:"answer"`
	RecordedAt   int64  `json:"recorded_at"`
}

// RedisJournal keeps the write-ahead pending marker and answers in Redis and
// queues every answer for durable storage.
type RedisJournal struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisJournal creates a new RedisJournal.
func NewRedisJournal(rdb *redis.Client, log zerolog.Logger) *RedisJournal {
	return &RedisJournal{
		rdb: rdb,
		log: log.With().Str("component", "journal").Logger(),
	}
}

// MarkPending records that the student holds a realized, ungraded exam.
func (j *RedisJournal) MarkPending(ctx context.Context, p model.PendingExam) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending exam: %w", err)
	}
	if err := j.rdb.Set(ctx, config.CacheKey.PendingExamKey(p.ExamID, p.StudentID), data, 0).Err(); err != nil {
		return fmt.Errorf("mark pending exam: %w", err)
	}
	return nil
}

// Pending returns the student's pending exam marker, nil when there is none.
func (j *RedisJournal) Pending(ctx context.Context, studentID, examID string) (*model.PendingExam, error) {
	raw, err := j.rdb.Get(ctx, config.CacheKey.PendingExamKey(examID, studentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pending exam: %w", err)
	}
	var p model.PendingExam
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pending exam: %w", err)
	}
	return &p, nil
}

// SaveAnswer journals one answer and queues it for the autosave worker.
func (j *RedisJournal) SaveAnswer(ctx context.Context, studentID string, exam *model.PresentedExam, problemID, raw string) error {
	return j.SaveAnswers(ctx, studentID, exam, map[string]string{problemID: raw})
}

// SaveAnswers journals a set of answers atomically.
func (j *RedisJournal) SaveAnswers(ctx context.Context, studentID string, exam *model.PresentedExam, answers map[string]string) error {
	if len(answers) == 0 {
		return nil
	}

	key := config.CacheKey.StudentAnswersKey(exam.ExamID, studentID, exam.SerialNumber)
	now := time.Now().UnixMilli()

	fields := make(map[string]any, len(answers))
	queued := make([]any, 0, len(answers))
	for problemID, raw := range answers {
		fields[problemID] = raw
		data, err := json.Marshal(AnswerPayload{
			StudentID:    studentID,
			ExamID:       exam.ExamID,
			SerialNumber: exam.SerialNumber,
			RealizedAt:   exam.RealizedAt.UnixMicro(),
			ProblemID:    problemID,
			Answer:       raw,
			RecordedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("encode answer %s: %w", problemID, err)
		}
		queued = append(queued, data)
	}

	pipe := j.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, AnswersTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, queued...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal answers: %w", err)
	}
	j.log.Debug().
		Str("student_id", studentID).
		Int64("serial", exam.SerialNumber).
		Int("count", len(answers)).
		Msg("Answers journaled")
	return nil
}

// ClearPending removes the student's pending exam marker.
func (j *RedisJournal) ClearPending(ctx context.Context, studentID, examID string) error {
	if err := j.rdb.Del(ctx, config.CacheKey.PendingExamKey(examID, studentID)).Err(); err != nil {
		return fmt.Errorf("clear pending exam: %w", err)
	}
	return nil
}
