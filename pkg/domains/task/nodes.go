package task

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/resolver"
	"github.com/advisorkit/maestro/pkg/services"
)

var (
	completeWords = regexp.MustCompile(`(?i)\b(complete|done|finish|mark off)\b`)
	updateWords   = regexp.MustCompile(`(?i)\b(update|change|edit)\b`)
	listWords     = regexp.MustCompile(`(?i)\b(show|list|what)\b`)

	assigneePattern = regexp.MustCompile(`\bfor\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

	urgentWords   = regexp.MustCompile(`(?i)\b(urgent|asap)\b`)
	highWords     = regexp.MustCompile(`(?i)\b(important|today)\b`)
	wheneverWords = regexp.MustCompile(`(?i)\bwhenever\b`)

	subjectPattern = regexp.MustCompile(`(?i)(?:task|todo|to-do|remind me)\s+(?:to\s+|about\s+|called\s+)?(.+)`)
)

// parseRequest classifies the action and extracts the subject, due date,
// and assignee reference.
func (d *Deps) parseRequest(_ context.Context, s *State) (*graph.Result, error) {
	switch {
	case completeWords.MatchString(s.Query):
		s.Action = ActionComplete
	case listWords.MatchString(s.Query):
		s.Action = ActionList
	case updateWords.MatchString(s.Query):
		s.Action = ActionUpdate
	default:
		s.Action = ActionCreate
	}

	if m := subjectPattern.FindStringSubmatch(s.Query); m != nil {
		s.Subject = strings.TrimSpace(m[1])
	} else {
		s.Subject = s.Query
	}

	if m := assigneePattern.FindStringSubmatch(s.Query); m != nil {
		s.PendingAssignee = m[1]
		// Trim the assignee clause out of a subject that swallowed it.
		s.Subject = strings.TrimSpace(strings.Split(s.Subject, " for "+m[1])[0])
	}

	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	r, err := d.Dates.ParseDateQuery(s.Query, tz, d.now())
	if err == nil && r != nil {
		due := r.Start
		if !r.HasTime {
			// Date-only due dates land at end of business day.
			due = due.Add(17 * time.Hour)
		}
		s.DueDate = &due
	}

	return graph.Continue(), nil
}

// setPriority applies the priority ladder in order; the last matching rule
// wins. Urgency keywords first, due-date proximity second.
func (d *Deps) setPriority(_ context.Context, s *State) (*graph.Result, error) {
	s.Priority = PriorityMedium

	switch {
	case urgentWords.MatchString(s.Query):
		s.Priority = PriorityUrgent
	case highWords.MatchString(s.Query):
		s.Priority = PriorityHigh
	case wheneverWords.MatchString(s.Query):
		s.Priority = PriorityLow
	}

	if s.DueDate != nil {
		until := s.DueDate.Sub(d.now())
		switch {
		case until <= 24*time.Hour:
			s.Priority = PriorityUrgent
		case until <= 72*time.Hour:
			s.Priority = PriorityHigh
		}
	}
	return graph.Continue(), nil
}

// resolveAssignee resolves the "for X" reference when present.
func (d *Deps) resolveAssignee(ctx context.Context, s *State) (*graph.Result, error) {
	if s.PendingAssignee == "" || s.Assignee != nil {
		return graph.Continue(), nil
	}

	// Consume a resume decision first.
	switch {
	case s.SelectionID != "":
		entity, err := d.Contacts.ResolveByID(ctx, s.SelectionID)
		s.SelectionID = ""
		if err != nil {
			s.AddWarning(fmt.Sprintf("Could not load selected contact: %v", err))
			s.PendingAssignee = ""
			return graph.Continue(), nil
		}
		d.Contacts.CacheResult(s.PendingAssignee, *entity)
		s.Assignee = entity
		s.StoreEntity(*entity)
		return graph.Continue(), nil
	case s.SkipUnresolved:
		s.SkipUnresolved = false
		s.AddWarning(fmt.Sprintf("Could not find %q; creating the task unassigned", s.PendingAssignee))
		s.PendingAssignee = ""
		return graph.Continue(), nil
	case s.ClarifiedName != "":
		s.PendingAssignee = s.ClarifiedName
		s.ClarifiedName = ""
	}

	res, err := d.Contacts.Resolve(ctx, s.PendingAssignee, s.MemoryContext)
	if errors.Is(err, resolver.ErrNoMatches) {
		return graph.Suspend(&models.Interrupt{
			Type:          models.InterruptContactClarification,
			OriginalQuery: s.PendingAssignee,
			AllowSkip:     true,
		}), nil
	}
	if err != nil {
		return nil, err
	}
	if res.Interrupt != nil {
		return graph.Suspend(res.Interrupt), nil
	}
	s.Assignee = res.Entity
	s.StoreEntity(*res.Entity)
	return graph.Continue(), nil
}

// fetchTasks loads recent tasks for duplicate checks, list responses, and
// update/complete target selection.
func (d *Deps) fetchTasks(ctx context.Context, s *State) (*graph.Result, error) {
	res, err := d.Runner.Read(ctx, "list_tasks", circuitTasks, func() (any, error) {
		return d.Gateway.ListTasks(ctx, bsa.TaskFilter{Limit: 25})
	})
	if err != nil {
		if s.Action == ActionList {
			return nil, err
		}
		// Duplicate detection is advisory; keep going without the list.
		s.AddWarning(fmt.Sprintf("Could not fetch recent tasks: %v", err))
		return graph.Continue(), nil
	}
	s.RecentTasks = res.([]bsa.Task)
	return graph.Continue(), nil
}

// checkDuplicates flags an existing task whose subject contains (or is
// contained by) the new subject, case-insensitively. A hit adds a warning;
// it never blocks.
func (d *Deps) checkDuplicates(_ context.Context, s *State) (*graph.Result, error) {
	if s.Action != ActionCreate {
		return graph.Continue(), nil
	}
	subject := strings.ToLower(s.Subject)
	for _, t := range s.RecentTasks {
		existing := strings.ToLower(t.Subject)
		if strings.Contains(existing, subject) || strings.Contains(subject, existing) {
			s.DuplicateOf = t.Subject
			s.AddWarning(fmt.Sprintf("A similar task already exists: %q", t.Subject))
			break
		}
	}
	return graph.Continue(), nil
}

// generatePreview assembles the approval artifact.
func (d *Deps) generatePreview(_ context.Context, s *State) (*graph.Result, error) {
	preview := &models.Preview{
		Type:   "task",
		Action: string(s.Action),
		Title:  s.Subject,
		Details: []models.PreviewDetail{
			{Label: "Priority", Value: s.Priority},
		},
	}
	if s.DueDate != nil {
		preview.Details = append(preview.Details, models.PreviewDetail{
			Label: "Due", Value: s.DueDate.Format("Mon Jan 2, 3:04 PM"),
		})
	}
	if s.Assignee != nil {
		preview.Details = append(preview.Details, models.PreviewDetail{
			Label: "For", Value: s.Assignee.Name,
		})
	}
	preview.Warnings = append(preview.Warnings, s.Warnings...)
	s.Preview = preview
	return graph.Continue(), nil
}

// approval suspends for a human decision. Every create/update/complete
// passes through here; there is no auto-approval path.
func (d *Deps) approval(_ context.Context, s *State) (*graph.Result, error) {
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
		Domain:   models.DomainTask,
		Type:     models.InterruptApprovalRequired,
		Preview:  s.Preview,
		Message:  fmt.Sprintf("Please confirm: %s task %q", s.Action, s.Subject),
		ThreadID: s.ThreadID,
	}
	s.RequiresApproval = true
	s.ApprovalRequest = req
	return graph.Suspend(&models.Interrupt{
		Type:     models.InterruptApprovalRequired,
		Approval: req,
	}), nil
}

// apply issues the approved mutation through the effect runner.
func (d *Deps) apply(ctx context.Context, s *State) (*graph.Result, error) {
	spec := bsa.TaskSpec{Subject: s.Subject, Priority: s.Priority, DueDate: s.DueDate}

	switch s.Action {
	case ActionCreate:
		outcome, err := d.Runner.Write(ctx, "create_task", circuitTasks, spec, func() (any, error) {
			return d.Gateway.CreateTask(ctx, spec)
		})
		if err != nil {
			return nil, err
		}
		if outcome.Skipped {
			s.Skipped = true
			return graph.Continue(), nil
		}
		t := outcome.Result.(*bsa.Task)
		e := t.EntityRef()
		s.Applied = &e
		s.StoreEntity(e)

	case ActionUpdate:
		id := s.targetID()
		if id == "" {
			return nil, services.NewValidationError("task", "no task to update")
		}
		payload := map[string]any{"id": id, "spec": spec}
		outcome, err := d.Runner.Write(ctx, "update_task", circuitTasks, payload, func() (any, error) {
			return d.Gateway.UpdateTask(ctx, id, spec)
		})
		if err != nil {
			return nil, err
		}
		if outcome.Skipped {
			s.Skipped = true
			return graph.Continue(), nil
		}
		t := outcome.Result.(*bsa.Task)
		e := t.EntityRef()
		s.Applied = &e
		s.StoreEntity(e)

	case ActionComplete:
		id := s.targetID()
		if id == "" {
			return nil, services.NewValidationError("task", "no task to complete")
		}
		payload := map[string]any{"complete": id}
		outcome, err := d.Runner.Write(ctx, "complete_task", circuitTasks, payload, func() (any, error) {
			return d.Gateway.CompleteTask(ctx, id)
		})
		if err != nil {
			return nil, err
		}
		if outcome.Skipped {
			s.Skipped = true
			return graph.Continue(), nil
		}
		t := outcome.Result.(*bsa.Task)
		e := t.EntityRef()
		s.Applied = &e
		s.StoreEntity(e)

	default:
		return nil, services.NewValidationError("action", "unsupported")
	}
	return graph.Continue(), nil
}

// targetID picks the task a mutation acts on: a recent task whose subject
// matches the query, else the session's latest task reference.
func (s *State) targetID() string {
	if s.TargetID != "" {
		return s.TargetID
	}
	subject := strings.ToLower(s.Subject)
	for _, t := range s.RecentTasks {
		if strings.Contains(strings.ToLower(t.Subject), subject) ||
			strings.Contains(subject, strings.ToLower(t.Subject)) {
			return t.ID
		}
	}
	if s.Entities != nil {
		if latest, ok := s.Entities.GetLatest(models.EntityTask); ok {
			return latest.ID
		}
	}
	return ""
}

// linkContacts links the assignee to the created task. Failures are
// non-fatal.
func (d *Deps) linkContacts(ctx context.Context, s *State) (*graph.Result, error) {
	if s.Applied == nil || s.Assignee == nil {
		return graph.Continue(), nil
	}
	l := bsa.Link{
		Left: bsa.LinkTask, LeftID: s.Applied.ID,
		Right: bsa.LinkContact, RightID: s.Assignee.ID,
	}
	if _, err := d.Runner.Write(ctx, "link_relation", circuitLinking, l, func() (any, error) {
		return nil, d.Gateway.LinkRelation(ctx, l)
	}); err != nil {
		s.AddWarning(fmt.Sprintf("Could not link %s to the task: %v", s.Assignee.Name, err))
		return graph.Continue(), nil
	}
	s.LinkedContacts = append(s.LinkedContacts, s.Assignee.Name)
	return graph.Continue(), nil
}

// synthesizeMemory records the completed action for future recall.
func (d *Deps) synthesizeMemory(ctx context.Context, s *State) (*graph.Result, error) {
	if s.Applied == nil {
		return graph.Continue(), nil
	}
	summary := fmt.Sprintf("Task %q %sd (priority %s)", s.Subject, s.Action, s.Priority)
	d.Memory.Synthesize(ctx, []models.Message{
		{Role: models.RoleUser, Content: s.Query, Timestamp: d.now()},
		{Role: models.RoleAssistant, Content: summary, Timestamp: d.now()},
	}, s.OrgID, s.UserID, map[string]any{
		"domain": "task",
		"action": string(s.Action),
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
	case s.Action == ActionList:
		s.Response = formatListResponse(s)
	case s.Skipped:
		s.Response = "An identical task was just created; skipped the duplicate."
	case s.Applied != nil:
		verb := map[Action]string{
			ActionCreate:   "created",
			ActionUpdate:   "updated",
			ActionComplete: "completed",
		}[s.Action]
		s.Response = fmt.Sprintf("Successfully %s task %q (priority %s).", verb, s.Subject, s.Priority)
		if s.Assignee != nil {
			s.Response += fmt.Sprintf(" Assigned to %s.", s.Assignee.Name)
		}
	default:
		s.Response = "No task action taken."
	}

	for _, w := range s.Warnings {
		s.Response += "\n⚠ " + w
	}
	return graph.Continue(), nil
}

func formatListResponse(s *State) string {
	if len(s.RecentTasks) == 0 {
		return "You have no tasks."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d task(s):", len(s.RecentTasks))
	for _, t := range s.RecentTasks {
		fmt.Fprintf(&b, "\n• %s [%s, %s]", t.Subject, t.Priority, t.Status)
	}
	return b.String()
}
