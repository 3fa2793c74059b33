package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/dates"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/resolver"
)

// parseRequest classifies the intent, captures the date query verbatim,
// and drafts the appointment sketch.
func (d *Deps) parseRequest(_ context.Context, s *State) (*graph.Result, error) {
	s.Intent = classifyIntent(s.Query, s.MemoryContext)
	s.DateQuery = extractDateQuery(s.Query)

	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	var dateRange *dates.DateRange
	if s.DateQuery != "" || s.Intent == IntentView {
		r, err := d.Dates.ParseDateQuery(s.Query, tz, d.now())
		if err != nil {
			return nil, err
		}
		dateRange = r
	}

	contacts, users := extractAttendees(s.Query)
	if s.Intent == IntentCorrection {
		// A correction replaces the attendee that failed to resolve; the
		// whole follow-up is the corrected name.
		contacts = []string{strings.TrimSpace(s.Query)}
	}

	switch s.Intent {
	case IntentView:
		if dateRange == nil {
			start, end := dates.DayBounds(d.now())
			dateRange = &dates.DateRange{Start: start, End: end}
		}
		s.Sketch = &Sketch{StartTime: dateRange.Start, EndTime: dateRange.End}
	default:
		if dateRange == nil {
			// Scheduling without a date lands on tomorrow's business hours.
			start, _ := dates.DayBounds(d.now().Add(24 * time.Hour))
			dateRange = &dates.DateRange{Start: start, End: start.Add(24 * time.Hour)}
		}
		s.Sketch = buildSketch(s.Query, dateRange, contacts, users)
		s.PendingContacts = contacts
		s.PendingUsers = users
	}

	return graph.Continue(), nil
}

// resolveContacts resolves each pending contact reference, persisting
// partial progress before any suspension so a resume replays only the
// unresolved remainder.
func (d *Deps) resolveContacts(ctx context.Context, s *State) (*graph.Result, error) {
	d.consumeContactDecision(ctx, s)

	for len(s.PendingContacts) > 0 {
		name := s.PendingContacts[0]
		res, err := d.Contacts.Resolve(ctx, name, s.MemoryContext)
		if errors.Is(err, resolver.ErrNoMatches) {
			return graph.Suspend(&models.Interrupt{
				Type:          models.InterruptContactClarification,
				Suggestions:   suggestionNames(res),
				OriginalQuery: name,
				AllowSkip:     true,
			}), nil
		}
		if err != nil {
			return nil, err
		}
		if res.Interrupt != nil {
			return graph.Suspend(res.Interrupt), nil
		}
		s.ResolvedContacts = append(s.ResolvedContacts, *res.Entity)
		s.StoreEntity(*res.Entity)
		s.PendingContacts = s.PendingContacts[1:]
	}
	return graph.Continue(), nil
}

// consumeContactDecision applies a disambiguation or clarification answer
// to the head of the pending list. A clarified name stays pending so the
// main loop re-resolves it.
func (d *Deps) consumeContactDecision(ctx context.Context, s *State) {
	if len(s.PendingContacts) == 0 {
		return
	}

	switch {
	case s.SelectionID != "":
		entity, err := d.Contacts.ResolveByID(ctx, s.SelectionID)
		s.SelectionID = ""
		if err != nil {
			s.AddWarning(fmt.Sprintf("Could not load selected contact: %v", err))
			s.SkippedAttendees = append(s.SkippedAttendees, s.PendingContacts[0])
		} else {
			d.Contacts.CacheResult(s.PendingContacts[0], *entity)
			s.ResolvedContacts = append(s.ResolvedContacts, *entity)
			s.StoreEntity(*entity)
		}
		s.PendingContacts = s.PendingContacts[1:]

	case s.SkipUnresolved:
		s.SkipUnresolved = false
		s.SkippedAttendees = append(s.SkippedAttendees, s.PendingContacts[0])
		s.PendingContacts = s.PendingContacts[1:]

	case s.ClarifiedName != "":
		// Swap in the corrected name; the main loop resolves it.
		s.PendingContacts[0] = s.ClarifiedName
		s.ClarifiedName = ""
	}
}

// resolveUsers resolves pending internal-user references.
func (d *Deps) resolveUsers(ctx context.Context, s *State) (*graph.Result, error) {
	d.consumeUserDecision(s)

	for len(s.PendingUsers) > 0 {
		name := s.PendingUsers[0]
		res, err := d.Users.Resolve(ctx, name, s.MemoryContext)
		if errors.Is(err, resolver.ErrNoMatches) {
			return graph.Suspend(&models.Interrupt{
				Type:          models.InterruptUserClarification,
				Suggestions:   suggestionNames(res),
				OriginalQuery: name,
				AllowSkip:     true,
			}), nil
		}
		if err != nil {
			return nil, err
		}
		if res.Interrupt != nil {
			s.UserCandidates = res.Interrupt.Candidates
			return graph.Suspend(res.Interrupt), nil
		}
		s.ResolvedUsers = append(s.ResolvedUsers, *res.Entity)
		s.StoreEntity(*res.Entity)
		s.PendingUsers = s.PendingUsers[1:]
	}
	return graph.Continue(), nil
}

// consumeUserDecision applies a user disambiguation or clarification
// answer to the head of the pending user list.
func (d *Deps) consumeUserDecision(s *State) {
	if len(s.PendingUsers) == 0 {
		return
	}
	switch {
	case s.SelectionID != "":
		id := s.SelectionID
		s.SelectionID = ""
		for _, c := range s.UserCandidates {
			if c.Entity.ID == id {
				s.ResolvedUsers = append(s.ResolvedUsers, c.Entity)
				s.StoreEntity(c.Entity)
				break
			}
		}
		s.PendingUsers = s.PendingUsers[1:]
		s.UserCandidates = nil
	case s.SkipUnresolved:
		s.SkipUnresolved = false
		s.SkippedAttendees = append(s.SkippedAttendees, s.PendingUsers[0])
		s.PendingUsers = s.PendingUsers[1:]
	case s.ClarifiedName != "":
		s.PendingUsers[0] = s.ClarifiedName
		s.ClarifiedName = ""
	}
}

func suggestionNames(res *resolver.Resolution) []string {
	if res == nil {
		return nil
	}
	var names []string
	for _, c := range res.Candidates {
		names = append(names, c.Entity.Name)
	}
	return names
}

// fetchAppointments loads the requested window for view intents.
func (d *Deps) fetchAppointments(ctx context.Context, s *State) (*graph.Result, error) {
	res, err := d.Runner.Read(ctx, "list_appointments", circuitAppointments, func() (any, error) {
		return d.Gateway.ListAppointments(ctx, bsa.ListAppointmentsParams{
			From:             s.Sketch.StartTime,
			To:               s.Sketch.EndTime,
			IncludeAttendees: true,
		})
	})
	if err != nil {
		return nil, err
	}
	s.Appointments = res.([]bsa.Appointment)
	for _, a := range s.Appointments {
		s.StoreEntity(a.EntityRef())
	}
	return graph.Continue(), nil
}

// checkConflicts reports existing appointments overlapping the draft slot.
// Touching endpoints do not conflict.
func (d *Deps) checkConflicts(ctx context.Context, s *State) (*graph.Result, error) {
	dayStart, dayEnd := dates.DayBounds(s.Sketch.StartTime)
	res, err := d.Runner.Read(ctx, "list_appointments", circuitAppointments, func() (any, error) {
		return d.Gateway.ListAppointments(ctx, bsa.ListAppointmentsParams{From: dayStart, To: dayEnd})
	})
	if err != nil {
		// Conflict checking is best-effort; scheduling proceeds with a
		// warning rather than failing the run.
		s.AddWarning(fmt.Sprintf("Could not check for conflicts: %v", err))
		return graph.Continue(), nil
	}

	for _, existing := range res.([]bsa.Appointment) {
		if Overlaps(s.Sketch.StartTime, s.Sketch.EndTime, existing.StartTime, existing.EndTime) {
			s.Conflicts = append(s.Conflicts, fmt.Sprintf("%s (%s – %s)",
				existing.Subject,
				existing.StartTime.Format("3:04 PM"),
				existing.EndTime.Format("3:04 PM")))
		}
	}
	return graph.Continue(), nil
}

// Overlaps implements the interval conflict rule: strict overlap only, so
// back-to-back appointments do not conflict.
func Overlaps(newStart, newEnd, existingStart, existingEnd time.Time) bool {
	return newStart.Before(existingEnd) && newEnd.After(existingStart)
}

// generatePreview assembles the approval artifact.
func (d *Deps) generatePreview(_ context.Context, s *State) (*graph.Result, error) {
	preview := &models.Preview{
		Type:   "appointment",
		Action: string(s.Intent),
		Title:  s.Sketch.Subject,
		Details: []models.PreviewDetail{
			{Label: "When", Value: fmt.Sprintf("%s – %s",
				s.Sketch.StartTime.Format("Mon Jan 2, 3:04 PM"),
				s.Sketch.EndTime.Format("3:04 PM"))},
		},
	}
	if s.Sketch.Location != "" {
		preview.Details = append(preview.Details, models.PreviewDetail{Label: "Where", Value: s.Sketch.Location})
	}
	if len(s.ResolvedContacts) > 0 || len(s.ResolvedUsers) > 0 {
		var names []string
		for _, c := range s.ResolvedContacts {
			names = append(names, c.Name)
		}
		for _, u := range s.ResolvedUsers {
			names = append(names, u.Name)
		}
		preview.Details = append(preview.Details, models.PreviewDetail{Label: "With", Value: strings.Join(names, ", ")})
	}
	for _, c := range s.Conflicts {
		preview.Warnings = append(preview.Warnings, "Conflicts with "+c)
	}
	for _, skipped := range s.SkippedAttendees {
		preview.Warnings = append(preview.Warnings, fmt.Sprintf("Could not find %q; creating without them", skipped))
	}
	s.Preview = preview
	return graph.Continue(), nil
}

// approval suspends the run for a human decision; a resume with the
// decision channel set passes straight through.
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
		Domain:   models.DomainCalendar,
		Type:     models.InterruptApprovalRequired,
		Preview:  s.Preview,
		Message:  fmt.Sprintf("Please confirm: %s %s", s.Intent, s.Preview.Title),
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
	spec := bsa.AppointmentSpec{
		Subject:   s.Sketch.Subject,
		StartTime: s.Sketch.StartTime,
		EndTime:   s.Sketch.EndTime,
		Location:  s.Sketch.Location,
	}

	switch s.Intent {
	case IntentCreate, IntentCorrection:
		outcome, err := d.Runner.Write(ctx, "create_appointment", circuitAppointments, spec, func() (any, error) {
			return d.Gateway.CreateAppointment(ctx, spec)
		})
		if err != nil {
			return nil, err
		}
		if outcome.Skipped {
			s.Skipped = true
			return graph.Continue(), nil
		}
		appt := outcome.Result.(*bsa.Appointment)
		e := appt.EntityRef()
		s.Applied = &e
		s.StoreEntity(e)

	case IntentUpdate:
		id := s.targetID()
		if id == "" {
			return nil, fmt.Errorf("no appointment to update")
		}
		payload := map[string]any{"id": id, "spec": spec}
		outcome, err := d.Runner.Write(ctx, "update_appointment", circuitAppointments, payload, func() (any, error) {
			return d.Gateway.UpdateAppointment(ctx, id, spec)
		})
		if err != nil {
			return nil, err
		}
		if outcome.Skipped {
			s.Skipped = true
			return graph.Continue(), nil
		}
		appt := outcome.Result.(*bsa.Appointment)
		e := appt.EntityRef()
		s.Applied = &e
		s.StoreEntity(e)

	case IntentDelete:
		id := s.targetID()
		if id == "" {
			return nil, fmt.Errorf("no appointment to delete")
		}
		payload := map[string]any{"delete": id}
		outcome, err := d.Runner.Write(ctx, "delete_appointment", circuitAppointments, payload, func() (any, error) {
			return nil, d.Gateway.DeleteAppointment(ctx, id)
		})
		if err != nil {
			return nil, err
		}
		s.Skipped = outcome.Skipped
		s.TargetID = id
	}
	return graph.Continue(), nil
}

// targetID picks the appointment a mutation acts on: the explicit target
// if set, otherwise the session's latest appointment reference.
func (s *State) targetID() string {
	if s.TargetID != "" {
		return s.TargetID
	}
	if s.Entities != nil {
		if latest, ok := s.Entities.GetLatest(models.EntityAppointment); ok {
			return latest.ID
		}
	}
	return ""
}

// linkAttendees links each resolved contact and user to the created
// appointment through their distinct relations. Failures are non-fatal and
// surface as warnings.
func (d *Deps) linkAttendees(ctx context.Context, s *State) (*graph.Result, error) {
	if s.Applied == nil {
		return graph.Continue(), nil
	}
	apptID := s.Applied.ID

	link := func(right bsa.Linkable, rightID, name string) {
		l := bsa.Link{Left: bsa.LinkAppointment, LeftID: apptID, Right: right, RightID: rightID}
		_, err := d.Runner.Write(ctx, "link_relation", circuitLinking, l, func() (any, error) {
			return nil, d.Gateway.LinkRelation(ctx, l)
		})
		if err != nil {
			s.AddWarning(fmt.Sprintf("Could not link %s to the appointment: %v", name, err))
			return
		}
		switch right {
		case bsa.LinkContact:
			s.LinkedContacts = append(s.LinkedContacts, name)
		case bsa.LinkUser:
			s.LinkedUsers = append(s.LinkedUsers, name)
		}
	}

	for _, c := range s.ResolvedContacts {
		link(bsa.LinkContact, c.ID, c.Name)
	}
	for _, u := range s.ResolvedUsers {
		link(bsa.LinkUser, u.ID, u.Name)
	}
	return graph.Continue(), nil
}

// synthesizeMemory records the completed action for future recall.
func (d *Deps) synthesizeMemory(ctx context.Context, s *State) (*graph.Result, error) {
	if s.Applied == nil && s.Intent != IntentDelete {
		return graph.Continue(), nil
	}

	action := "Created"
	switch s.Intent {
	case IntentUpdate:
		action = "Updated"
	case IntentDelete:
		action = "Deleted"
	}
	summary := fmt.Sprintf("%s appointment %q", action, s.Sketch.Subject)
	if len(s.LinkedContacts) > 0 {
		summary += " with " + strings.Join(s.LinkedContacts, ", ")
	}
	d.Memory.Synthesize(ctx, []models.Message{
		{Role: models.RoleUser, Content: s.Query, Timestamp: d.now()},
		{Role: models.RoleAssistant, Content: summary, Timestamp: d.now()},
	}, s.OrgID, s.UserID, map[string]any{
		"domain": "calendar",
		"action": string(s.Intent),
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
	case s.Intent == IntentView:
		s.Response = formatViewResponse(s)
	case s.Skipped:
		s.Response = "An identical appointment was just created; skipped the duplicate."
	case s.Intent == IntentDelete:
		s.Response = "Appointment deleted."
	case s.Applied != nil && (s.Intent == IntentCreate || s.Intent == IntentCorrection):
		s.Response = formatCreateResponse(s)
	case s.Applied != nil:
		s.Response = fmt.Sprintf("Successfully updated appointment %q.", s.Applied.Subject)
	default:
		s.Response = "No calendar action taken."
	}

	for _, w := range s.Warnings {
		s.Response += "\n⚠ " + w
	}
	return graph.Continue(), nil
}

func formatViewResponse(s *State) string {
	if len(s.Appointments) == 0 {
		return "You have no appointments in that period."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d appointment(s):", len(s.Appointments))
	for _, a := range s.Appointments {
		fmt.Fprintf(&b, "\n• %s (%s – %s)", a.Subject,
			a.StartTime.Format("Mon Jan 2, 3:04 PM"), a.EndTime.Format("3:04 PM"))
	}
	return b.String()
}

func formatCreateResponse(s *State) string {
	msg := fmt.Sprintf("Successfully created appointment %q for %s.",
		s.Applied.Subject, s.Applied.StartTime.Format("Mon Jan 2, 3:04 PM"))
	var names []string
	names = append(names, s.LinkedContacts...)
	names = append(names, s.LinkedUsers...)
	if len(names) > 0 {
		msg += " Attendees: " + strings.Join(names, ", ") + "."
	}
	return msg
}
