// Package calendar implements the appointment domain state machine:
// intent parsing, attendee resolution, conflict checking, previewed and
// approved mutations, and attendee linking.
package calendar

import (
	"time"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/models"
)

// Intent classifies what the user asked the calendar domain to do.
type Intent string

// Calendar intents.
const (
	IntentView       Intent = "view"
	IntentCreate     Intent = "create"
	IntentUpdate     Intent = "update"
	IntentDelete     Intent = "delete"
	IntentCorrection Intent = "correction"
)

// Sketch is the appointment draft assembled from the query.
type Sketch struct {
	Subject   string    `json:"subject"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  string    `json:"location,omitempty"`
	// Attendees holds the raw name references extracted from the query.
	Attendees []string `json:"attendees,omitempty"`
}

// State is the calendar channel bundle.
type State struct {
	graph.CoreState

	Intent Intent `json:"intent,omitempty"`
	// DateQuery preserves the user's phrasing verbatim.
	DateQuery string  `json:"date_query,omitempty"`
	Sketch    *Sketch `json:"sketch,omitempty"`
	TargetID  string  `json:"target_id,omitempty"`

	// Resolution progress. Pending names shrink as they resolve so a
	// resume replays only the unresolved remainder.
	PendingContacts  []string           `json:"pending_contacts,omitempty"`
	PendingUsers     []string           `json:"pending_users,omitempty"`
	ResolvedContacts []models.EntityRef `json:"resolved_contacts,omitempty"`
	ResolvedUsers    []models.EntityRef `json:"resolved_users,omitempty"`
	SkippedAttendees []string           `json:"skipped_attendees,omitempty"`

	// UserCandidates preserves the scored set behind a pending user
	// disambiguation so the resume selection can be applied without a
	// fresh search.
	UserCandidates []models.ScoredCandidate `json:"user_candidates,omitempty"`

	Appointments []bsa.Appointment `json:"appointments,omitempty"`
	Conflicts    []string          `json:"conflicts,omitempty"`

	Preview *models.Preview   `json:"preview,omitempty"`
	Applied *models.EntityRef `json:"applied,omitempty"`
	Skipped bool              `json:"skipped,omitempty"`

	LinkedContacts []string `json:"linked_contacts,omitempty"`
	LinkedUsers    []string `json:"linked_users,omitempty"`
}
