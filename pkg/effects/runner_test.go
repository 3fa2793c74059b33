package effects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/dedupe"
	"github.com/advisorkit/maestro/pkg/resilience"
	"github.com/advisorkit/maestro/pkg/services"
)

func testRunner() *Runner {
	executor := resilience.NewExecutor(resilience.Settings{
		MaxRetries:       2,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Millisecond,
		Multiplier:       2,
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
		HalfOpenMax:      3,
	})
	return NewRunner(dedupe.NewGuard(services.NewMemDedupeService()), executor, 5*time.Minute)
}

func TestWrite_DedupesIdenticalPayloads(t *testing.T) {
	r := testRunner()
	payload := map[string]any{"Subject": "review"}

	calls := 0
	fn := func() (any, error) {
		calls++
		return "ok", nil
	}

	out, err := r.Write(context.Background(), "create", "key", payload, fn)
	require.NoError(t, err)
	assert.True(t, out.Executed)

	out, err = r.Write(context.Background(), "create", "key", payload, fn)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, 1, calls)
}

func TestWrite_TransientFailureRetriesWithoutSelfDedupe(t *testing.T) {
	r := testRunner()
	payload := map[string]any{"Subject": "review"}

	calls := 0
	fn := func() (any, error) {
		calls++
		if calls == 1 {
			return nil, &bsa.NetworkError{Code: 503}
		}
		return "ok", nil
	}

	// The retry happens inside the dedupe decision, so the second attempt
	// must not collide with the hash the write inserted.
	out, err := r.Write(context.Background(), "create", "key", payload, fn)
	require.NoError(t, err)
	assert.True(t, out.Executed)
	assert.Equal(t, 2, calls)
}

func TestRead_BypassesDedupe(t *testing.T) {
	r := testRunner()

	calls := 0
	fn := func() (any, error) {
		calls++
		return []string{"a"}, nil
	}

	for i := 0; i < 3; i++ {
		res, err := r.Read(context.Background(), "list", "key", fn)
		require.NoError(t, err)
		assert.NotNil(t, res)
	}
	assert.Equal(t, 3, calls)
}

func TestWrite_NonRetryableErrorSurfaces(t *testing.T) {
	r := testRunner()

	_, err := r.Write(context.Background(), "create", "key", map[string]any{"x": 1}, func() (any, error) {
		return nil, &bsa.ExternalError{Kind: "invalid_response", Message: "rejected"}
	})
	require.Error(t, err)

	var extErr *bsa.ExternalError
	assert.ErrorAs(t, err, &extErr)
}
