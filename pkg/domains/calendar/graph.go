package calendar

import (
	"time"

	"github.com/google/uuid"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/dates"
	"github.com/advisorkit/maestro/pkg/effects"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/resolver"
)

// Node ids.
const (
	nodeParseRequest     = "parse_request"
	nodeResolveContacts  = "resolve_contacts"
	nodeResolveUsers     = "resolve_users"
	nodeFetch            = "fetch_appointments"
	nodeCheckConflicts   = "check_conflicts"
	nodeGeneratePreview  = "generate_preview"
	nodeApproval         = "approval"
	nodeApply            = "apply"
	nodeLinkAttendees    = "link_attendees"
	nodeSynthesizeMemory = "synthesize_memory"
	nodeFormatResponse   = "format_response"
)

// Circuit-breaker keys for calendar effects.
const (
	circuitAppointments = "bsa_appointments"
	circuitLinking      = "contact_linking"
)

// Deps are the collaborators the calendar graph needs.
type Deps struct {
	Gateway  bsa.Gateway
	Runner   *effects.Runner
	Contacts *resolver.ContactResolver
	Users    *resolver.UserResolver
	Memory   memory.Service
	Dates    *dates.Parser

	// Now and NewID exist for tests; nil values use the real clock and
	// random UUIDs.
	Now   func() time.Time
	NewID func() string
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

// Build compiles the calendar graph.
func Build(deps *Deps) *graph.Graph[*State] {
	g := graph.New[*State]("calendar", nodeParseRequest, nodeFormatResponse)

	g.AddNode(nodeParseRequest, deps.parseRequest)
	g.AddNode(nodeResolveContacts, deps.resolveContacts)
	g.AddNode(nodeResolveUsers, deps.resolveUsers)
	g.AddNode(nodeFetch, deps.fetchAppointments)
	g.AddNode(nodeCheckConflicts, deps.checkConflicts)
	g.AddNode(nodeGeneratePreview, deps.generatePreview)
	g.AddNode(nodeApproval, deps.approval)
	g.AddNode(nodeApply, deps.apply)
	g.AddNode(nodeLinkAttendees, deps.linkAttendees)
	g.AddNode(nodeSynthesizeMemory, deps.synthesizeMemory)
	g.AddNode(nodeFormatResponse, deps.formatResponse)

	g.SetRouter(nodeParseRequest, func(s *State) string {
		if s.Intent == IntentView {
			return nodeFetch
		}
		return nodeResolveContacts
	})
	g.SetNext(nodeResolveContacts, nodeResolveUsers)
	g.SetRouter(nodeResolveUsers, func(s *State) string {
		if s.Intent == IntentCreate || s.Intent == IntentCorrection {
			return nodeCheckConflicts
		}
		return nodeGeneratePreview
	})
	g.SetRouter(nodeFetch, func(s *State) string {
		if s.Intent == IntentView {
			return nodeFormatResponse
		}
		return nodeCheckConflicts
	})
	g.SetNext(nodeCheckConflicts, nodeGeneratePreview)
	g.SetNext(nodeGeneratePreview, nodeApproval)
	g.SetRouter(nodeApproval, func(s *State) string {
		if s.Rejected {
			return nodeFormatResponse
		}
		return nodeApply
	})
	g.SetRouter(nodeApply, func(s *State) string {
		if s.Intent == IntentDelete || s.Skipped {
			return nodeSynthesizeMemory
		}
		return nodeLinkAttendees
	})
	g.SetNext(nodeLinkAttendees, nodeSynthesizeMemory)
	g.SetNext(nodeSynthesizeMemory, nodeFormatResponse)
	g.SetFailFast(bsa.IsAuthError)

	return g
}
