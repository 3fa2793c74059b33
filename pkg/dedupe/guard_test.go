package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/services"
)

func TestHashPayload_Deterministic(t *testing.T) {
	a, err := HashPayload(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := HashPayload(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashPayload_DistinguishesPayloads(t *testing.T) {
	a, err := HashPayload(map[string]any{"a": 1})
	require.NoError(t, err)
	b, err := HashPayload(map[string]any{"a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPayload_StructAndMapEquivalence(t *testing.T) {
	type spec struct {
		Subject string `json:"Subject"`
	}
	a, err := HashPayload(spec{Subject: "review"})
	require.NoError(t, err)
	b, err := HashPayload(map[string]any{"Subject": "review"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWithDedupe_ExecutesOnce(t *testing.T) {
	guard := NewGuard(services.NewMemDedupeService())
	payload := map[string]any{"Subject": "meeting"}

	calls := 0
	fn := func() (any, error) {
		calls++
		return "created", nil
	}

	out1, err := guard.WithDedupe(context.Background(), payload, 5*time.Minute, fn)
	require.NoError(t, err)
	assert.True(t, out1.Executed)
	assert.Equal(t, "created", out1.Result)

	out2, err := guard.WithDedupe(context.Background(), payload, 5*time.Minute, fn)
	require.NoError(t, err)
	assert.True(t, out2.Skipped)
	assert.False(t, out2.Executed)

	assert.Equal(t, 1, calls)
}

func TestWithDedupe_DifferentPayloadsBothExecute(t *testing.T) {
	guard := NewGuard(services.NewMemDedupeService())

	calls := 0
	fn := func() (any, error) {
		calls++
		return nil, nil
	}

	_, err := guard.WithDedupe(context.Background(), map[string]any{"a": 1}, time.Minute, fn)
	require.NoError(t, err)
	_, err = guard.WithDedupe(context.Background(), map[string]any{"a": 2}, time.Minute, fn)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestWithDedupe_WindowExpiry(t *testing.T) {
	store := services.NewMemDedupeService()
	now := time.Now()
	store.Now = func() time.Time { return now }
	guard := NewGuard(store)
	payload := map[string]any{"Subject": "meeting"}

	calls := 0
	fn := func() (any, error) {
		calls++
		return nil, nil
	}

	_, err := guard.WithDedupe(context.Background(), payload, time.Minute, fn)
	require.NoError(t, err)

	// Move past the window: the record no longer dedupes.
	now = now.Add(2 * time.Minute)
	out, err := guard.WithDedupe(context.Background(), payload, time.Minute, fn)
	require.NoError(t, err)
	assert.True(t, out.Executed)
	assert.Equal(t, 2, calls)
}

// failingStore simulates seen-table outages.
type failingStore struct {
	seenErr   error
	insertErr error
}

func (f *failingStore) Seen(context.Context, string, time.Duration) (bool, error) {
	return false, f.seenErr
}

func (f *failingStore) Insert(context.Context, string) error {
	return f.insertErr
}

func TestWithDedupe_StoreFailuresDoNotBlockExecution(t *testing.T) {
	guard := NewGuard(&failingStore{
		seenErr:   errors.New("db down"),
		insertErr: errors.New("db down"),
	})

	out, err := guard.WithDedupe(context.Background(), map[string]any{"x": 1}, time.Minute, func() (any, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.True(t, out.Executed)
	assert.Equal(t, "done", out.Result)
}

func TestWithDedupe_FnErrorPropagates(t *testing.T) {
	guard := NewGuard(services.NewMemDedupeService())

	boom := errors.New("boom")
	_, err := guard.WithDedupe(context.Background(), map[string]any{"x": 1}, time.Minute, func() (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
