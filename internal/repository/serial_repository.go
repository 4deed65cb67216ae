package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SerialRepository hands out exam serial numbers from a Postgres sequence.
type SerialRepository struct {
	pool *pgxpool.Pool
}

// NewSerialRepository creates a new SerialRepository.
func NewSerialRepository(pool *pgxpool.Pool) *SerialRepository {
	return &SerialRepository{pool: pool}
}

// NextSerial returns a serial number never handed out before.
func (r *SerialRepository) NextSerial(ctx context.Context) (int64, error) {
	var serial int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('exam_serial_seq')`).Scan(&serial); err != nil {
		return 0, fmt.Errorf("next exam serial: %w", err)
	}
	return serial, nil
}
