// Package dedupe prevents duplicate external side effects: identical write
// payloads within the window execute at most once. The guard is advisory —
// the CRM itself is the source of truth; a seen-table write failure never
// blocks execution.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Store is the seen-table contract (backed by Postgres in production).
type Store interface {
	Seen(ctx context.Context, hash string, window time.Duration) (bool, error)
	Insert(ctx context.Context, hash string) error
}

// Outcome reports what the guard did with a payload.
type Outcome struct {
	Executed bool
	Skipped  bool
	Reason   string
	Result   any
}

// Guard wraps side effects with windowed payload deduplication.
type Guard struct {
	store Store
}

// NewGuard creates a guard over the given seen-table.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// WithDedupe hashes the payload, consults the seen-table, and either skips
// (already seen within window) or records the hash and invokes fn.
//
// The guarantee is at-most-one execution per identical payload within the
// window, absent seen-table write failures. Two concurrent calls racing
// between the read and the insert may both execute; that is acceptable.
func (g *Guard) WithDedupe(ctx context.Context, payload any, window time.Duration, fn func() (any, error)) (*Outcome, error) {
	hash, err := HashPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to hash payload: %w", err)
	}

	seen, err := g.store.Seen(ctx, hash, window)
	if err != nil {
		// A read failure downgrades to executing: dedupe is advisory.
		slog.Warn("Dedupe lookup failed, executing anyway", "hash", hash, "error", err)
	} else if seen {
		return &Outcome{Skipped: true, Reason: "duplicate payload within window"}, nil
	}

	// Insert before executing so a concurrent duplicate observes the hash
	// as early as possible.
	if err := g.store.Insert(ctx, hash); err != nil {
		slog.Warn("Dedupe insert failed, continuing", "hash", hash, "error", err)
	}

	result, err := fn()
	if err != nil {
		return nil, err
	}
	return &Outcome{Executed: true, Result: result}, nil
}

// HashPayload computes the sha256 hex digest of the canonical JSON encoding
// of payload. canonicalJSON re-encodes the payload through a generic value,
// so object keys come out sorted whether the payload is a map or a struct;
// a struct and a map with the same fields and values hash identically.
func HashPayload(payload any) (string, error) {
	data, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
