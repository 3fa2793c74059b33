package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/advisorkit/maestro/pkg/domains/calendar"
	"github.com/advisorkit/maestro/pkg/domains/contact"
	"github.com/advisorkit/maestro/pkg/domains/task"
	"github.com/advisorkit/maestro/pkg/domains/workflow"
	"github.com/advisorkit/maestro/pkg/entity"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/models"
)

// runEnvelope is the checkpointed shape of a suspended run: enough to
// re-enter the suspended domain graph and then finish the remaining plan
// steps.
type runEnvelope struct {
	Query     string `json:"query"`
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
	Timezone  string `json:"timezone"`

	Plan            *models.ExecutionPlan  `json:"plan"`
	Outcomes        []models.DomainOutcome `json:"outcomes,omitempty"`
	PendingSteps    []models.DomainStep    `json:"pending_steps,omitempty"`
	SuspendedStep   models.DomainStep      `json:"suspended_step"`
	SuspendedNodeID string                 `json:"suspended_node_id"`
	DomainState     json.RawMessage        `json:"domain_state"`
	Entities        json.RawMessage        `json:"entities,omitempty"`
}

// suspension captures a domain graph pause.
type suspension struct {
	NodeID    string
	Interrupt *models.Interrupt
	State     json.RawMessage
}

// stepResult is the outcome of one plan step.
type stepResult struct {
	Outcome   models.DomainOutcome
	Suspended *suspension
	Entities  *entity.Graph
}

// coreState builds the shared channel bundle for a step.
func (c *Coordinator) coreState(ctx context.Context, req models.QueryRequest, step models.DomainStep, entities *entity.Graph) graph.CoreState {
	mem := c.memory.Recall(ctx, req.Query, req.OrgID, req.UserID, c.recallOpts())

	return graph.CoreState{
		Query:         step.Query,
		OrgID:         req.OrgID,
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		ThreadID:      req.ThreadID,
		Timezone:      req.Timezone,
		Messages:      []models.Message{{Role: models.RoleUser, Content: req.Query, Timestamp: c.now()}},
		MemoryContext: mem,
		Entities:      entities,
	}
}

// runStep dispatches one plan step to its domain graph.
func (c *Coordinator) runStep(ctx context.Context, sess *session, req models.QueryRequest, step models.DomainStep, entities *entity.Graph) (*stepResult, error) {
	core := c.coreState(ctx, req, step, entities)

	switch step.Domain {
	case models.DomainCalendar:
		state := &calendar.State{CoreState: core}
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return calendar.Build(c.calendarDeps(sess)).Run(ctx, state)
		})

	case models.DomainTask:
		state := &task.State{CoreState: core}
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return task.Build(c.taskDeps(sess)).Run(ctx, state)
		})

	case models.DomainWorkflow:
		state := &workflow.State{CoreState: core}
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return workflow.Build(c.workflowDeps(sess)).Run(ctx, state)
		})

	case models.DomainContact:
		state := &contact.State{CoreState: core}
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return contact.Build(&contact.Deps{Resolver: sess.contacts}).Run(ctx, state)
		})

	case models.DomainUser:
		// The planner emits a user step only for self-references; resolution
		// is a direct lookup of the bound user.
		res, err := sess.users.ResolveMe(ctx)
		if err != nil {
			return nil, err
		}
		core.Entities.Store(*res.Entity)
		return &stepResult{
			Outcome: models.DomainOutcome{
				Domain:   models.DomainUser,
				Success:  true,
				Response: fmt.Sprintf("Acting as %s.", res.Entity.Name),
			},
			Entities: core.Entities,
		}, nil

	case models.DomainGeneral:
		return &stepResult{
			Outcome: models.DomainOutcome{
				Domain:   models.DomainGeneral,
				Success:  true,
				Response: "I can help with appointments, tasks, workflows, and contacts. What would you like to do?",
			},
			Entities: core.Entities,
		}, nil

	default:
		return nil, fmt.Errorf("no graph registered for domain %q", step.Domain)
	}
}

// resumeStep re-enters a suspended domain graph at its paused node.
func (c *Coordinator) resumeStep(ctx context.Context, sess *session, env *runEnvelope, payload *models.ResumePayload, entities *entity.Graph) (*stepResult, error) {
	req := models.QueryRequest{
		Query: env.Query, OrgID: env.OrgID, UserID: env.UserID,
		SessionID: env.SessionID, ThreadID: env.ThreadID, Timezone: env.Timezone,
	}
	step := env.SuspendedStep

	switch step.Domain {
	case models.DomainCalendar:
		state := &calendar.State{}
		if err := json.Unmarshal(env.DomainState, state); err != nil {
			return nil, fmt.Errorf("failed to restore calendar state: %w", err)
		}
		restoreCore(&state.CoreState, req, entities, payload)
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return calendar.Build(c.calendarDeps(sess)).Resume(ctx, state, env.SuspendedNodeID)
		})

	case models.DomainTask:
		state := &task.State{}
		if err := json.Unmarshal(env.DomainState, state); err != nil {
			return nil, fmt.Errorf("failed to restore task state: %w", err)
		}
		restoreCore(&state.CoreState, req, entities, payload)
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return task.Build(c.taskDeps(sess)).Resume(ctx, state, env.SuspendedNodeID)
		})

	case models.DomainWorkflow:
		state := &workflow.State{}
		if err := json.Unmarshal(env.DomainState, state); err != nil {
			return nil, fmt.Errorf("failed to restore workflow state: %w", err)
		}
		restoreCore(&state.CoreState, req, entities, payload)
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return workflow.Build(c.workflowDeps(sess)).Resume(ctx, state, env.SuspendedNodeID)
		})

	case models.DomainContact, models.DomainUser:
		state := &contact.State{}
		if err := json.Unmarshal(env.DomainState, state); err != nil {
			return nil, fmt.Errorf("failed to restore contact state: %w", err)
		}
		restoreCore(&state.CoreState, req, entities, payload)
		return finishStep(step, state, func() (*graph.Outcome, error) {
			return contact.Build(&contact.Deps{Resolver: sess.contacts}).Resume(ctx, state, env.SuspendedNodeID)
		})

	default:
		return nil, fmt.Errorf("no graph registered for domain %q", step.Domain)
	}
}

// restoreCore refreshes the restored state's session bindings and threads
// the user decision into the matching channel.
func restoreCore(core *graph.CoreState, req models.QueryRequest, entities *entity.Graph, payload *models.ResumePayload) {
	if entities != nil {
		core.Entities = entities
	}
	if payload == nil {
		return
	}
	switch payload.Type {
	case models.InterruptApprovalRequired:
		core.ApprovalDecision = payload.Decision
	case models.InterruptContactDisambiguation, models.InterruptUserDisambiguation:
		if payload.Selection != nil {
			core.SelectionID = payload.Selection.ID
		}
	case models.InterruptContactClarification, models.InterruptUserClarification:
		if payload.Skip {
			core.SkipUnresolved = true
		} else {
			core.ClarifiedName = payload.ClarifiedName
		}
	}
}

// finishStep executes the graph callback and folds the result into a
// stepResult, serializing the domain state when suspended.
func finishStep[S graph.HasCore](step models.DomainStep, state S, run func() (*graph.Outcome, error)) (*stepResult, error) {
	outcome, err := run()
	if err != nil {
		return nil, err
	}

	core := state.Core()
	if outcome.Suspended {
		raw, merr := json.Marshal(state)
		if merr != nil {
			return nil, fmt.Errorf("failed to serialize suspended state: %w", merr)
		}
		return &stepResult{
			Outcome: models.DomainOutcome{Domain: step.Domain},
			Suspended: &suspension{
				NodeID:    outcome.NodeID,
				Interrupt: outcome.Interrupt,
				State:     raw,
			},
			Entities: core.Entities,
		}, nil
	}

	return &stepResult{
		Outcome: models.DomainOutcome{
			Domain:   step.Domain,
			Success:  core.Error == "",
			Response: core.Response,
			Error:    core.Error,
		},
		Entities: core.Entities,
	}, nil
}
