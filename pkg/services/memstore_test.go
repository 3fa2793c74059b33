package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/models"
)

func TestMemCheckpointService_PutGetDelete(t *testing.T) {
	s := NewMemCheckpointService()
	ctx := context.Background()

	cp := &models.Checkpoint{
		RunID:    "run-1",
		ThreadID: "thread-1",
		Domain:   models.DomainCalendar,
		NodeID:   "approval",
		Channels: json.RawMessage(`{"query":"hi"}`),
		Interrupt: &models.Interrupt{
			Type: models.InterruptApprovalRequired,
		},
	}
	require.NoError(t, s.Put(ctx, cp))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "approval", got.NodeID)
	assert.Equal(t, models.InterruptApprovalRequired, got.Interrupt.Type)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.Delete(ctx, "run-1"))
	_, err = s.Get(ctx, "run-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemCheckpointService_GetLatestByThread(t *testing.T) {
	s := NewMemCheckpointService()
	ctx := context.Background()

	old := &models.Checkpoint{RunID: "run-1", ThreadID: "t1", NodeID: "a", CreatedAt: time.Now().Add(-time.Hour)}
	fresh := &models.Checkpoint{RunID: "run-2", ThreadID: "t1", NodeID: "b", CreatedAt: time.Now()}
	other := &models.Checkpoint{RunID: "run-3", ThreadID: "t2", NodeID: "c", CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, old))
	require.NoError(t, s.Put(ctx, fresh))
	require.NoError(t, s.Put(ctx, other))

	got, err := s.GetLatestByThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.RunID)

	_, err = s.GetLatestByThread(ctx, "t3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemCheckpointService_ValidatesRunID(t *testing.T) {
	s := NewMemCheckpointService()
	err := s.Put(context.Background(), &models.Checkpoint{})
	assert.True(t, IsValidationError(err))
}

func TestMemDedupeService_WindowedSeen(t *testing.T) {
	s := NewMemDedupeService()
	now := time.Now()
	s.Now = func() time.Time { return now }
	ctx := context.Background()

	seen, err := s.Seen(ctx, "h1", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Insert(ctx, "h1"))

	seen, err = s.Seen(ctx, "h1", time.Minute)
	require.NoError(t, err)
	assert.True(t, seen)

	// Outside the window the record no longer matches.
	now = now.Add(2 * time.Minute)
	seen, err = s.Seen(ctx, "h1", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemDedupeService_Purge(t *testing.T) {
	s := NewMemDedupeService()
	now := time.Now()
	s.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "h1"))
	now = now.Add(time.Hour)
	require.NoError(t, s.Insert(ctx, "h2"))

	n, err := s.Purge(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seen, _ := s.Seen(ctx, "h2", 2*time.Hour)
	assert.True(t, seen)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("subject", "required")
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "subject")
	assert.False(t, IsValidationError(ErrNotFound))
}
