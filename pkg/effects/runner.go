// Package effects is the single composition point for outbound side
// effects: every CRM write flows through dedupe + retry; reads flow through
// retry only. Domain graphs hold a Runner and never call the gateway
// directly.
package effects

import (
	"context"
	"time"

	"github.com/advisorkit/maestro/pkg/dedupe"
	"github.com/advisorkit/maestro/pkg/resilience"
)

// Runner executes gateway calls under the standard effect policy.
type Runner struct {
	guard    *dedupe.Guard
	executor *resilience.Executor
	window   time.Duration
}

// NewRunner composes the dedupe guard and retry executor.
func NewRunner(guard *dedupe.Guard, executor *resilience.Executor, window time.Duration) *Runner {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Runner{guard: guard, executor: executor, window: window}
}

// Write runs a mutating call. The guard decides once whether the payload is
// a duplicate; the actual call retries inside that decision, so a transient
// failure never collides with the hash its own attempt inserted.
func (r *Runner) Write(ctx context.Context, op string, circuitKey string, payload any, fn func() (any, error)) (*dedupe.Outcome, error) {
	return r.guard.WithDedupe(ctx, payload, r.window, func() (any, error) {
		return r.executor.Execute(ctx, fn, resilience.Options{
			Operation:         op,
			CircuitBreakerKey: circuitKey,
		})
	})
}

// Read runs a non-mutating call with retry only.
func (r *Runner) Read(ctx context.Context, op string, circuitKey string, fn func() (any, error)) (any, error) {
	return r.executor.Execute(ctx, fn, resilience.Options{
		Operation:         op,
		CircuitBreakerKey: circuitKey,
	})
}
