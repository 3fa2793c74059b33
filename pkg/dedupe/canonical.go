package dedupe

import (
	"encoding/json"
	"fmt"
)

// canonicalJSON produces a deterministic encoding: the payload is first
// round-tripped through encoding/json so that structs, maps, and primitives
// all reduce to the same normalized form (sorted map keys, string-normalized
// numbers), then re-encoded.
func canonicalJSON(payload any) ([]byte, error) {
	first, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var normalized any
	if err := json.Unmarshal(first, &normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize payload: %w", err)
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode payload: %w", err)
	}
	return out, nil
}
