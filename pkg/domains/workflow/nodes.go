package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/services"
)

// generate produces the workflow draft.
func (d *Deps) generate(ctx context.Context, s *State) (*graph.Result, error) {
	draft, err := d.Generator.Generate(ctx, s.Query)
	if err != nil {
		return nil, fmt.Errorf("workflow generation failed: %w", err)
	}
	s.Draft = draft
	return graph.Continue(), nil
}

// validate enforces the draft invariants: step count within bounds, every
// step named and carrying a known type and assignee, offsets non-negative.
func (d *Deps) validate(_ context.Context, s *State) (*graph.Result, error) {
	if err := ValidateDraft(s.Draft, d.maxSteps()); err != nil {
		return nil, err
	}
	return graph.Continue(), nil
}

// ValidateDraft checks a draft against the workflow invariants.
func ValidateDraft(draft *Draft, maxSteps int) error {
	if draft == nil {
		return services.NewValidationError("workflow", "no draft generated")
	}
	if draft.Name == "" {
		return services.NewValidationError("name", "required")
	}
	if len(draft.Steps) < MinSteps {
		return services.NewValidationError("steps", fmt.Sprintf("must have at least %d step", MinSteps))
	}
	if len(draft.Steps) > maxSteps {
		return services.NewValidationError("steps", fmt.Sprintf("must have at most %d steps", maxSteps))
	}
	for i, step := range draft.Steps {
		if step.Name == "" {
			return services.NewValidationError(fmt.Sprintf("steps[%d].name", i), "required")
		}
		if step.Type != StepTask && step.Type != StepAppointment {
			return services.NewValidationError(fmt.Sprintf("steps[%d].type", i), fmt.Sprintf("invalid: %q", step.Type))
		}
		if step.Assignee != AssigneeAdvisor && step.Assignee != AssigneeAssistant {
			return services.NewValidationError(fmt.Sprintf("steps[%d].assignee", i), fmt.Sprintf("invalid: %q", step.Assignee))
		}
		if step.DayOffset < 0 {
			return services.NewValidationError(fmt.Sprintf("steps[%d].day_offset", i), "must be non-negative")
		}
	}
	return nil
}

// generatePreview assembles the approval artifact listing every step.
func (d *Deps) generatePreview(_ context.Context, s *State) (*graph.Result, error) {
	preview := &models.Preview{
		Type:   "workflow",
		Action: "create",
		Title:  s.Draft.Name,
	}
	for _, step := range s.Draft.Steps {
		preview.Details = append(preview.Details, models.PreviewDetail{
			Label: fmt.Sprintf("Day %d", step.DayOffset),
			Value: fmt.Sprintf("%s (%s, %s)", step.Name, step.Type, step.Assignee),
		})
	}
	s.Preview = preview
	return graph.Continue(), nil
}

// waitApproval suspends for a human decision on the full workflow.
func (d *Deps) waitApproval(_ context.Context, s *State) (*graph.Result, error) {
	switch s.ApprovalDecision {
	case models.DecisionApprove:
		s.Approved = true
		s.RequiresApproval = false
		return graph.Continue(), nil
	case models.DecisionReject:
		s.Rejected = true
		s.RequiresApproval = false
		return graph.Continue(), nil
	}

	req := &models.ApprovalRequest{
		ActionID: d.newID(),
		Domain:   models.DomainWorkflow,
		Type:     models.InterruptApprovalRequired,
		Preview:  s.Preview,
		Message:  fmt.Sprintf("Please confirm: create workflow %q with %d steps", s.Draft.Name, len(s.Draft.Steps)),
		ThreadID: s.ThreadID,
	}
	s.RequiresApproval = true
	s.ApprovalRequest = req
	return graph.Suspend(&models.Interrupt{
		Type:     models.InterruptApprovalRequired,
		Approval: req,
	}), nil
}

// createWorkflow creates the shell, then adds steps sequentially in the
// declared order. Per-step failures are collected and reported without
// aborting the workflow.
func (d *Deps) createWorkflow(ctx context.Context, s *State) (*graph.Result, error) {
	if s.WorkflowID == "" {
		shellPayload := map[string]any{"name": s.Draft.Name, "description": s.Draft.Description}
		outcome, err := d.Runner.Write(ctx, "create_workflow", circuitWorkflow, shellPayload, func() (any, error) {
			return d.Gateway.CreateWorkflow(ctx, s.Draft.Name, s.Draft.Description)
		})
		if err != nil {
			return nil, err
		}
		if outcome.Skipped {
			s.Skipped = true
			return graph.Continue(), nil
		}
		wf := outcome.Result.(*bsa.Workflow)
		s.WorkflowID = wf.ID
	}

	for i := s.StepsAdded; i < len(s.Draft.Steps); i++ {
		step := s.Draft.Steps[i]
		spec := bsa.WorkflowStepSpec{
			Name:        step.Name,
			Description: step.Description,
			Type:        step.Type,
			Assignee:    step.Assignee,
			DayOffset:   step.DayOffset,
		}
		payload := map[string]any{"workflow_id": s.WorkflowID, "step": spec, "index": i}
		_, err := d.Runner.Write(ctx, "add_workflow_step", circuitWorkflow, payload, func() (any, error) {
			return d.Gateway.AddWorkflowStep(ctx, s.WorkflowID, spec)
		})
		if err != nil {
			s.StepFailures = append(s.StepFailures, fmt.Sprintf("%s: %v", step.Name, err))
		}
		s.StepsAdded++
	}

	entity := models.EntityRef{
		Type:      models.EntityWorkflow,
		ID:        s.WorkflowID,
		Name:      s.Draft.Name,
		StepCount: len(s.Draft.Steps),
	}
	for _, step := range s.Draft.Steps {
		entity.Steps = append(entity.Steps, step.Name)
	}
	s.StoreEntity(entity)

	d.Memory.Synthesize(ctx, []models.Message{
		{Role: models.RoleUser, Content: s.Query, Timestamp: d.now()},
		{Role: models.RoleAssistant, Content: fmt.Sprintf("Created workflow %q with %d steps", s.Draft.Name, s.StepsAdded), Timestamp: d.now()},
	}, s.OrgID, s.UserID, map[string]any{
		"domain": "workflow",
		"action": "create",
	})

	return graph.Continue(), nil
}

// formatResponse writes the final per-domain response.
func (d *Deps) formatResponse(_ context.Context, s *State) (*graph.Result, error) {
	switch {
	case strings.Contains(s.Error, "circuit breaker open"):
		s.Response = "This subsystem is temporarily unavailable; please retry in about a minute."
	case s.Error != "":
		s.Response = "Error: " + s.Error
	case s.Rejected:
		s.Response = "Action cancelled."
	case s.Skipped:
		s.Response = "An identical workflow was just created; skipped the duplicate."
	case s.WorkflowID != "":
		created := len(s.Draft.Steps) - len(s.StepFailures)
		s.Response = fmt.Sprintf("Successfully created workflow %q with %d of %d steps.",
			s.Draft.Name, created, len(s.Draft.Steps))
		for _, f := range s.StepFailures {
			s.Response += "\n⚠ Step failed: " + f
		}
	default:
		s.Response = "No workflow action taken."
	}
	return graph.Continue(), nil
}
