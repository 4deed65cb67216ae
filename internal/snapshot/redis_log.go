package snapshot

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLog stores records in a Redis list.
type RedisLog struct {
	rdb *redis.Client
	key string
}

// NewRedisLog creates a RedisLog on the list at key.
func NewRedisLog(rdb *redis.Client, key string) *RedisLog {
	return &RedisLog{rdb: rdb, key: key}
}

// WriteAll replaces the list in one transaction.
func (l *RedisLog) WriteAll(ctx context.Context, records [][]byte) error {
	pipe := l.rdb.TxPipeline()
	pipe.Del(ctx, l.key)
	if len(records) > 0 {
		values := make([]any, len(records))
		for i, r := range records {
			values[i] = r
		}
		pipe.RPush(ctx, l.key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write snapshot %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLog) ReadAll(ctx context.Context) ([][]byte, error) {
	vals, err := l.rdb.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", l.key, err)
	}
	records := make([][]byte, len(vals))
	for i, v := range vals {
		records[i] = []byte(v)
	}
	return records, nil
}

func (l *RedisLog) Append(ctx context.Context, record []byte) error {
	if err := l.rdb.RPush(ctx, l.key, record).Err(); err != nil {
		return fmt.Errorf("append snapshot %s: %w", l.key, err)
	}
	return nil
}
