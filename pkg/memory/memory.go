// Package memory is the session recall/synthesis boundary. Both operations
// are non-fatal: the core never depends on memory availability.
package memory

import (
	"context"
	"time"

	"github.com/advisorkit/maestro/pkg/models"
)

// Memory is one recalled item with its relevance score.
type Memory struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Kind       string         `json:"kind"`
	Importance float64        `json:"importance"`
	CreatedAt  time.Time      `json:"created_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RecallOptions bound a recall query.
type RecallOptions struct {
	Limit     int
	Threshold float64
}

// Service is the memory provider contract. Recall may be called from any
// node; Synthesize only from terminal nodes after a successful commit.
type Service interface {
	Recall(ctx context.Context, query, orgID, userID string, opts RecallOptions) []Memory
	Synthesize(ctx context.Context, messages []models.Message, orgID, userID string, metadata map[string]any)
}

// NopService is the disabled-provider implementation.
type NopService struct{}

// Recall returns nothing.
func (NopService) Recall(context.Context, string, string, string, RecallOptions) []Memory {
	return nil
}

// Synthesize does nothing.
func (NopService) Synthesize(context.Context, []models.Message, string, string, map[string]any) {
}
