package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is surfaced when the keyed circuit rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryError wraps the final error after retry exhaustion with the context
// the coordinator reports upward.
type RetryError struct {
	Operation    string
	Attempts     int
	Class        Class
	CircuitState string
	Err          error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("operation %s failed after %d attempt(s) (%s): %v",
		e.Operation, e.Attempts, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *RetryError) Unwrap() error {
	return e.Err
}

// Settings tunes the retry loop and the per-key breakers.
type Settings struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	FailureThreshold uint32
	ResetTimeout     time.Duration
	HalfOpenMax      uint32
}

// DefaultSettings mirrors the production defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:       3,
		InitialDelay:     time.Second,
		MaxDelay:         30 * time.Second,
		Multiplier:       2,
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMax:      3,
	}
}

// Options customizes one Execute call.
type Options struct {
	Operation string
	// MaxRetries overrides the executor default when > 0.
	MaxRetries int
	// Retryable overrides the default predicate when non-nil.
	Retryable func(error) bool
	// CircuitBreakerKey enables the keyed breaker when non-empty.
	CircuitBreakerKey string
}

// Executor runs functions with retry and circuit breaking. One Executor —
// and therefore one breaker table — exists per process.
type Executor struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewExecutor creates an executor with the given settings.
func NewExecutor(settings Settings) *Executor {
	if settings.Multiplier < 1 {
		settings.Multiplier = 2
	}
	return &Executor{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breaker returns (creating if needed) the circuit breaker for a key.
func (e *Executor) breaker(key string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[key]; ok {
		return cb
	}
	threshold := e.settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: e.settings.HalfOpenMax,
		Timeout:     e.settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	e.breakers[key] = cb
	return cb
}

// States returns a snapshot of every breaker's state, keyed by operation
// class. Used by the health endpoint.
func (e *Executor) States() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.breakers))
	for key, cb := range e.breakers {
		out[key] = cb.State().String()
	}
	return out
}

// Execute runs fn with exponential-backoff retry; retryable errors are
// retried up to the attempt cap, everything else fails immediately. When a
// circuit key is set, each attempt passes through the keyed breaker.
func (e *Executor) Execute(ctx context.Context, fn func() (any, error), opts Options) (any, error) {
	maxRetries := e.settings.MaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}
	retryable := opts.Retryable
	if retryable == nil {
		retryable = Retryable
	}

	var cb *gobreaker.CircuitBreaker
	if opts.CircuitBreakerKey != "" {
		cb = e.breaker(opts.CircuitBreakerKey)
	}

	attempts := 0
	attempt := func() (any, error) {
		attempts++
		if cb == nil {
			return fn()
		}
		return cb.Execute(fn)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.settings.InitialDelay
	eb.Multiplier = e.settings.Multiplier
	eb.MaxInterval = e.settings.MaxDelay
	eb.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
	eb.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxRetries)), ctx)

	var result any
	operation := func() error {
		res, err := attempt()
		if err == nil {
			result = res
			return nil
		}
		// Breaker rejections must not burn retry attempts with calls that
		// cannot go through.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCircuitOpen, opts.Operation))
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, policy)
	if err == nil {
		return result, nil
	}

	state := ""
	if cb != nil {
		state = cb.State().String()
	}
	retryErr := &RetryError{
		Operation:    opts.Operation,
		Attempts:     attempts,
		Class:        Classify(err),
		CircuitState: state,
		Err:          err,
	}
	if errors.Is(err, ErrCircuitOpen) {
		retryErr.Class = ClassServer
	}
	slog.Warn("Operation failed",
		"operation", opts.Operation,
		"attempts", attempts,
		"class", retryErr.Class,
		"circuit_state", state,
		"error", err)
	return nil, retryErr
}
