package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/advisorkit/maestro/pkg/models"
)

// CheckpointService persists suspended-run snapshots.
type CheckpointService struct {
	pool *pgxpool.Pool
}

// NewCheckpointService creates a new CheckpointService.
func NewCheckpointService(pool *pgxpool.Pool) *CheckpointService {
	return &CheckpointService{pool: pool}
}

// Put stores a checkpoint, replacing any previous checkpoint for the run.
func (s *CheckpointService) Put(httpCtx context.Context, cp *models.Checkpoint) error {
	if cp.RunID == "" {
		return NewValidationError("run_id", "required")
	}
	if cp.ThreadID == "" {
		return NewValidationError("thread_id", "required")
	}
	if cp.NodeID == "" {
		return NewValidationError("node_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	var interruptJSON []byte
	if cp.Interrupt != nil {
		data, err := json.Marshal(cp.Interrupt)
		if err != nil {
			return fmt.Errorf("failed to marshal interrupt: %w", err)
		}
		interruptJSON = data
	}

	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (run_id, thread_id, domain, node_id, channels, interrupt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			domain = EXCLUDED.domain,
			node_id = EXCLUDED.node_id,
			channels = EXCLUDED.channels,
			interrupt = EXCLUDED.interrupt,
			created_at = EXCLUDED.created_at`,
		cp.RunID, cp.ThreadID, string(cp.Domain), cp.NodeID,
		[]byte(cp.Channels), interruptJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

// Get returns the checkpoint for a run ID.
func (s *CheckpointService) Get(httpCtx context.Context, runID string) (*models.Checkpoint, error) {
	if runID == "" {
		return nil, NewValidationError("run_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT run_id, thread_id, domain, node_id, channels, interrupt, created_at
		FROM checkpoints WHERE run_id = $1`, runID)
	return scanCheckpoint(row)
}

// GetLatestByThread returns the most recent checkpoint for a thread.
func (s *CheckpointService) GetLatestByThread(httpCtx context.Context, threadID string) (*models.Checkpoint, error) {
	if threadID == "" {
		return nil, NewValidationError("thread_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT run_id, thread_id, domain, node_id, channels, interrupt, created_at
		FROM checkpoints WHERE thread_id = $1
		ORDER BY created_at DESC LIMIT 1`, threadID)
	return scanCheckpoint(row)
}

// Delete removes the checkpoint for a run ID. Deleting a missing checkpoint
// is not an error.
func (s *CheckpointService) Delete(httpCtx context.Context, runID string) error {
	if runID == "" {
		return NewValidationError("run_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var (
		cp            models.Checkpoint
		domain        string
		channels      []byte
		interruptJSON []byte
	)
	err := row.Scan(&cp.RunID, &cp.ThreadID, &domain, &cp.NodeID, &channels, &interruptJSON, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}

	cp.Domain = models.Domain(domain)
	cp.Channels = json.RawMessage(channels)
	if len(interruptJSON) > 0 {
		var intr models.Interrupt
		if err := json.Unmarshal(interruptJSON, &intr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal interrupt: %w", err)
		}
		cp.Interrupt = &intr
	}
	return &cp, nil
}
