package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DedupeService maintains the shared seen-table used by the dedupe guard.
// Writers append; readers use windowed lookups. Duplicate inserts on the
// hash column are tolerated — either row winning is fine.
type DedupeService struct {
	pool *pgxpool.Pool
}

// NewDedupeService creates a new DedupeService.
func NewDedupeService(pool *pgxpool.Pool) *DedupeService {
	return &DedupeService{pool: pool}
}

// Seen reports whether hash was recorded within the trailing window.
func (s *DedupeService) Seen(httpCtx context.Context, hash string, window time.Duration) (bool, error) {
	if hash == "" {
		return false, NewValidationError("hash", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-window)
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM dedupe_records WHERE hash = $1 AND created_at > $2`,
		hash, cutoff).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query dedupe record: %w", err)
	}
	return true, nil
}

// Insert records a hash at the current time. A conflicting insert moves the
// existing row's timestamp forward to now.
func (s *DedupeService) Insert(httpCtx context.Context, hash string) error {
	if hash == "" {
		return NewValidationError("hash", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO dedupe_records (hash, created_at) VALUES ($1, now())
		 ON CONFLICT (hash) DO UPDATE SET created_at = EXCLUDED.created_at`, hash); err != nil {
		return fmt.Errorf("failed to insert dedupe record: %w", err)
	}
	return nil
}

// Purge deletes records older than the cutoff and returns the count removed.
func (s *DedupeService) Purge(httpCtx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 30*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM dedupe_records WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dedupe records: %w", err)
	}
	return tag.RowsAffected(), nil
}
