package models

import (
	"encoding/json"
	"time"
)

// Checkpoint is the durable snapshot of a suspended run, sufficient to
// resume it with a user decision.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	ThreadID  string          `json:"thread_id"`
	Domain    Domain          `json:"domain"`
	NodeID    string          `json:"node_id"`
	Channels  json.RawMessage `json:"channels"`
	Interrupt *Interrupt      `json:"interrupt,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResumeRequest continues a suspended run.
type ResumeRequest struct {
	CheckpointID string         `json:"checkpoint_id"`
	Payload      *ResumePayload `json:"payload"`
}
