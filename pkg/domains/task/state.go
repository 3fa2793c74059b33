// Package task implements the task domain state machine: priority
// assignment, assignee resolution, duplicate detection, and previewed,
// approved mutations.
package task

import (
	"time"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/models"
)

// Action is what the user asked the task domain to do.
type Action string

// Task actions.
const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionComplete Action = "complete"
	ActionList     Action = "list"
)

// Priority levels, lowest to highest.
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
	PriorityUrgent = "Urgent"
)

// State is the task channel bundle.
type State struct {
	graph.CoreState

	Action   Action     `json:"action,omitempty"`
	Subject  string     `json:"subject,omitempty"`
	Priority string     `json:"priority,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	TargetID string     `json:"target_id,omitempty"`

	PendingAssignee string            `json:"pending_assignee,omitempty"`
	Assignee        *models.EntityRef `json:"assignee,omitempty"`

	RecentTasks []bsa.Task `json:"recent_tasks,omitempty"`
	DuplicateOf string     `json:"duplicate_of,omitempty"`

	Preview *models.Preview   `json:"preview,omitempty"`
	Applied *models.EntityRef `json:"applied,omitempty"`
	Skipped bool              `json:"skipped,omitempty"`

	LinkedContacts []string `json:"linked_contacts,omitempty"`
}
