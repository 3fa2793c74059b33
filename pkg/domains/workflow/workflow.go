// Package workflow implements the multi-step workflow domain: generation,
// validation, previewed approval, and sequential step creation.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/effects"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
)

// Step limits.
const (
	MinSteps = 1
	MaxSteps = 22
)

// Step types.
const (
	StepTask        = "task"
	StepAppointment = "appointment"
)

// Assignees.
const (
	AssigneeAdvisor   = "Advisor"
	AssigneeAssistant = "Assistant"
)

// Step is one generated workflow step.
type Step struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Assignee    string `json:"assignee"`
	DayOffset   int    `json:"day_offset"`
}

// Draft is the generated workflow before creation.
type Draft struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// Generator produces a workflow draft from the user query. The default is
// template-based; an LLM-backed generator can be swapped in.
type Generator interface {
	Generate(ctx context.Context, query string) (*Draft, error)
}

// State is the workflow channel bundle.
type State struct {
	graph.CoreState

	Draft       *Draft   `json:"draft,omitempty"`
	WorkflowID  string   `json:"workflow_id,omitempty"`
	StepsAdded  int      `json:"steps_added,omitempty"`
	StepFailures []string `json:"step_failures,omitempty"`
	Preview     *models.Preview `json:"preview,omitempty"`
	Skipped     bool     `json:"skipped,omitempty"`
}

// Node ids.
const (
	nodeGenerate       = "generate_workflow"
	nodeValidate       = "validate"
	nodePreview        = "generate_preview"
	nodeWaitApproval   = "wait_approval"
	nodeCreate         = "create_workflow"
	nodeFormatResponse = "format_response"
)

// circuitWorkflow is the breaker key for all workflow effects.
const circuitWorkflow = "bsa_workflow"

// Deps are the collaborators the workflow graph needs.
type Deps struct {
	Gateway   bsa.Gateway
	Runner    *effects.Runner
	Memory    memory.Service
	Generator Generator
	MaxSteps  int

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

func (d *Deps) maxSteps() int {
	if d.MaxSteps > 0 {
		return d.MaxSteps
	}
	return MaxSteps
}

// Build compiles the workflow graph.
func Build(deps *Deps) *graph.Graph[*State] {
	if deps.Generator == nil {
		deps.Generator = TemplateGenerator{}
	}

	g := graph.New[*State]("workflow", nodeGenerate, nodeFormatResponse)

	g.AddNode(nodeGenerate, deps.generate)
	g.AddNode(nodeValidate, deps.validate)
	g.AddNode(nodePreview, deps.generatePreview)
	g.AddNode(nodeWaitApproval, deps.waitApproval)
	g.AddNode(nodeCreate, deps.createWorkflow)
	g.AddNode(nodeFormatResponse, deps.formatResponse)

	g.SetNext(nodeGenerate, nodeValidate)
	g.SetNext(nodeValidate, nodePreview)
	g.SetNext(nodePreview, nodeWaitApproval)
	g.SetRouter(nodeWaitApproval, func(s *State) string {
		if s.Rejected {
			return nodeFormatResponse
		}
		return nodeCreate
	})
	g.SetNext(nodeCreate, nodeFormatResponse)
	g.SetFailFast(bsa.IsAuthError)

	return g
}

// TemplateGenerator builds drafts from built-in playbooks keyed on query
// keywords.
type TemplateGenerator struct{}

// Generate picks the closest playbook for the query.
func (TemplateGenerator) Generate(_ context.Context, query string) (*Draft, error) {
	name := "Client Workflow"
	if m := namePattern.FindStringSubmatch(query); m != nil {
		name = strings.TrimSpace(m[1]) + " Workflow"
	}

	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "onboard"):
		return onboardingDraft(name), nil
	case strings.Contains(q, "review"):
		return reviewDraft(name), nil
	default:
		return planningDraft(name), nil
	}
}
