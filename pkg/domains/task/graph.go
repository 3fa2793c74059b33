package task

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
	nodeSetPriority      = "set_priority"
	nodeResolveAssignee  = "resolve_assignee"
	nodeFetchTasks       = "fetch_tasks"
	nodeCheckDuplicates  = "check_duplicates"
	nodeGeneratePreview  = "generate_preview"
	nodeApproval         = "approval"
	nodeApply            = "apply"
	nodeLinkContacts     = "link_contacts"
	nodeSynthesizeMemory = "synthesize_memory"
	nodeFormatResponse   = "format_response"
)

// Circuit-breaker keys for task effects.
const (
	circuitTasks   = "bsa_tasks"
	circuitLinking = "contact_linking"
)

// Deps are the collaborators the task graph needs.
type Deps struct {
	Gateway  bsa.Gateway
	Runner   *effects.Runner
	Contacts *resolver.ContactResolver
	Memory   memory.Service
	Dates    *dates.Parser

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

// Build compiles the task graph.
func Build(deps *Deps) *graph.Graph[*State] {
	g := graph.New[*State]("task", nodeParseRequest, nodeFormatResponse)

	g.AddNode(nodeParseRequest, deps.parseRequest)
	g.AddNode(nodeSetPriority, deps.setPriority)
	g.AddNode(nodeResolveAssignee, deps.resolveAssignee)
	g.AddNode(nodeFetchTasks, deps.fetchTasks)
	g.AddNode(nodeCheckDuplicates, deps.checkDuplicates)
	g.AddNode(nodeGeneratePreview, deps.generatePreview)
	g.AddNode(nodeApproval, deps.approval)
	g.AddNode(nodeApply, deps.apply)
	g.AddNode(nodeLinkContacts, deps.linkContacts)
	g.AddNode(nodeSynthesizeMemory, deps.synthesizeMemory)
	g.AddNode(nodeFormatResponse, deps.formatResponse)

	g.SetNext(nodeParseRequest, nodeSetPriority)
	g.SetNext(nodeSetPriority, nodeResolveAssignee)
	g.SetNext(nodeResolveAssignee, nodeFetchTasks)
	g.SetRouter(nodeFetchTasks, func(s *State) string {
		if s.Action == ActionList {
			return nodeFormatResponse
		}
		return nodeCheckDuplicates
	})
	g.SetNext(nodeCheckDuplicates, nodeGeneratePreview)
	g.SetNext(nodeGeneratePreview, nodeApproval)
	g.SetRouter(nodeApproval, func(s *State) string {
		if s.Rejected {
			return nodeFormatResponse
		}
		return nodeApply
	})
	g.SetRouter(nodeApply, func(s *State) string {
		if s.Skipped || s.Applied == nil {
			return nodeSynthesizeMemory
		}
		return nodeLinkContacts
	})
	g.SetNext(nodeLinkContacts, nodeSynthesizeMemory)
	g.SetNext(nodeSynthesizeMemory, nodeFormatResponse)
	g.SetFailFast(bsa.IsAuthError)

	return g
}
