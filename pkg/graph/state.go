// Package graph is the typed-channel state machine runtime the domain
// subgraphs are built on: a directed node graph with conditional edges,
// explicit suspension values, and resume-at-node semantics.
package graph

import (
	"github.com/advisorkit/maestro/pkg/entity"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
)

// CoreState is the channel bundle shared by every domain graph. Scalar
// channels carry last-non-zero-wins semantics; slice channels accumulate.
// Domain states embed CoreState and add their own channels; the whole
// struct round-trips through JSON for checkpointing.
type CoreState struct {
	Query     string `json:"query"`
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
	Timezone  string `json:"timezone"`

	Messages      []models.Message `json:"messages,omitempty"`
	MemoryContext []memory.Memory  `json:"memory_context,omitempty"`
	Entities      *entity.Graph    `json:"entities,omitempty"`

	Response string   `json:"response,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	RequiresApproval bool                    `json:"requires_approval,omitempty"`
	Approved         bool                    `json:"approved,omitempty"`
	Rejected         bool                    `json:"rejected,omitempty"`
	ApprovalRequest  *models.ApprovalRequest `json:"approval_request,omitempty"`
	ApprovalDecision models.ApprovalDecision `json:"approval_decision,omitempty"`

	// Resume channels for resolver suspensions.
	SelectionID    string `json:"selection_id,omitempty"`
	ClarifiedName  string `json:"clarified_name,omitempty"`
	SkipUnresolved bool   `json:"skip_unresolved,omitempty"`
}

// Core returns the embedded channel bundle.
func (s *CoreState) Core() *CoreState { return s }

// SetError writes the error channel (last wins).
func (s *CoreState) SetError(msg string) { s.Error = msg }

// AddWarning appends to the warnings accumulator.
func (s *CoreState) AddWarning(w string) { s.Warnings = append(s.Warnings, w) }

// StoreEntity folds an entity into the entities channel (object-union
// semantics: same (type, id) updates in place).
func (s *CoreState) StoreEntity(e models.EntityRef) {
	if s.Entities == nil {
		s.Entities = entity.NewGraph(0)
	}
	s.Entities.Store(e)
}

// HasCore is implemented by every domain state (via embedding CoreState).
type HasCore interface {
	Core() *CoreState
}

// Keep implements the scalar channel reducer: new wins unless zero.
func Keep[T comparable](old, new T) T {
	var zero T
	if new == zero {
		return old
	}
	return new
}
