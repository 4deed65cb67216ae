package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/journal"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

const upsertAnswerSQL = `
	INSERT INTO student_answers (student_id, exam_id, serial_number, realized_at, problem_id, answer, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (student_id, serial_number, problem_id) DO UPDATE
	SET answer = EXCLUDED.answer, recorded_at = EXCLUDED.recorded_at
	WHERE student_answers.recorded_at <= EXCLUDED.recorded_at`

// AutosaveWorker consumes persist_answers_queue and upserts journaled answers
// into PostgreSQL in batches.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]*journal.AnswerPayload, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		payload, err := decodeAnswer([]byte(result[1]))
		if err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed answer payload")
			continue
		}
		buffer = append(buffer, payload)
	}
}

var errIncompleteAnswer = errors.New("answer payload is missing student, serial or problem")

func decodeAnswer(data []byte) (*journal.AnswerPayload, error) {
	var p journal.AnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.StudentID == "" || p.ProblemID == "" || p.SerialNumber == 0 {
		return nil, errIncompleteAnswer
	}
	return &p, nil
}

// coalesce keeps only the latest answer per student, serial and problem,
// preserving first-seen order.
func coalesce(batch []*journal.AnswerPayload) []*journal.AnswerPayload {
	type answerKey struct {
		student string
		serial  int64
		problem string
	}
	index := make(map[answerKey]int, len(batch))
	out := make([]*journal.AnswerPayload, 0, len(batch))
	for _, p := range batch {
		k := answerKey{p.StudentID, p.SerialNumber, p.ProblemID}
		if i, ok := index[k]; ok {
			if p.RecordedAt >= out[i].RecordedAt {
				out[i] = p
			}
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}

// flushSafe attempts a batched upsert, then row-by-row, then requeue.
func (w *AutosaveWorker) flushSafe(ctx context.Context, batch []*journal.AnswerPayload) {
	latest := coalesce(batch)
	if err := w.batchUpsert(ctx, latest); err != nil {
		w.log.Warn().Err(err).Int("count", len(latest)).Msg("Batch upsert failed, attempting row-by-row recovery")
		w.fallbackUpsert(ctx, latest)
		return
	}
	w.log.Debug().Int("count", len(latest)).Msg("Answers persisted")
}

func answerArgs(p *journal.AnswerPayload) []any {
	return []any{
		p.StudentID, p.ExamID, p.SerialNumber, time.UnixMicro(p.RealizedAt).UTC(),
		p.ProblemID, p.Answer, time.UnixMilli(p.RecordedAt).UTC(),
	}
}

func (w *AutosaveWorker) batchUpsert(ctx context.Context, batch []*journal.AnswerPayload) error {
	b := &pgx.Batch{}
	for _, p := range batch {
		b.Queue(upsertAnswerSQL, answerArgs(p)...)
	}

	br := w.pool.SendBatch(ctx, b)
	for range batch {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func (w *AutosaveWorker) fallbackUpsert(ctx context.Context, batch []*journal.AnswerPayload) {
	requeueList := make([]*journal.AnswerPayload, 0)

	for _, p := range batch {
		if _, err := w.pool.Exec(ctx, upsertAnswerSQL, answerArgs(p)...); err != nil {
			w.log.Error().Err(err).
				Str("student_id", p.StudentID).
				Str("problem_id", p.ProblemID).
				Msg("Upsert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *AutosaveWorker) requeue(ctx context.Context, items []*journal.AnswerPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue answers to Redis")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed answers back to Redis")
	time.Sleep(2 * time.Second)
}

func (w *AutosaveWorker) shutdown(buffer []*journal.AnswerPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}
