package calendar

import (
	"regexp"
	"strings"
	"time"

	"github.com/advisorkit/maestro/pkg/dates"
	"github.com/advisorkit/maestro/pkg/memory"
)

var (
	viewWords   = regexp.MustCompile(`(?i)\b(what'?s on|show|view|list|do i have)\b`)
	deleteWords = regexp.MustCompile(`(?i)\b(cancel|delete|remove)\b`)
	updateWords = regexp.MustCompile(`(?i)\b(reschedule|move|change|update)\b`)

	attendeePattern = regexp.MustCompile(`\b(?:with|and)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	selfPattern     = regexp.MustCompile(`(?i)\b(me|myself)\b`)

	dateQueryPattern = regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday|next\s+\w+|this\s+\w+|on\s+\w+day|monday|tuesday|wednesday|thursday|friday|saturday|sunday|at\s+\d{1,2}(:\d{2})?\s*(am|pm)?|\d{1,2}(:\d{2})?\s*(am|pm))\b`)

	durationPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`)
	locationPattern = regexp.MustCompile(`(?i)\b(?:at|in)\s+(?:the\s+)?(office|zoom|teams|conference room\s*\w*)\b`)
)

// couldNotFind is the memory marker that flags a correction follow-up.
const couldNotFind = "Could not find"

// classifyIntent maps the query to a calendar intent. A short follow-up
// after a failed resolution reads as a correction.
func classifyIntent(query string, recent []memory.Memory) Intent {
	if isCorrection(query, recent) {
		return IntentCorrection
	}
	switch {
	case viewWords.MatchString(query):
		return IntentView
	case deleteWords.MatchString(query):
		return IntentDelete
	case updateWords.MatchString(query):
		return IntentUpdate
	default:
		return IntentCreate
	}
}

func isCorrection(query string, recent []memory.Memory) bool {
	if len(strings.Fields(query)) > 4 {
		return false
	}
	for _, m := range recent {
		if strings.Contains(m.Text, couldNotFind) {
			return true
		}
	}
	return false
}

// extractDateQuery returns the date expression verbatim, preserving the
// user's phrasing.
func extractDateQuery(query string) string {
	return dateQueryPattern.FindString(query)
}

// extractAttendees splits person references into contact names and
// self-references.
func extractAttendees(query string) (contacts, users []string) {
	for _, m := range attendeePattern.FindAllStringSubmatch(query, -1) {
		contacts = append(contacts, m[1])
	}
	if selfPattern.MatchString(query) {
		users = append(users, "me")
	}
	return contacts, users
}

// parseDuration returns the requested meeting length, defaulting to one
// hour.
func parseDuration(query string) time.Duration {
	m := durationPattern.FindStringSubmatch(query)
	if m == nil {
		return time.Hour
	}
	n := 0
	for _, c := range m[1] {
		n = n*10 + int(c-'0')
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "h") {
		return time.Duration(n) * time.Hour
	}
	return time.Duration(n) * time.Minute
}

// buildSketch assembles the appointment draft from the query and the
// parsed date range.
func buildSketch(query string, r *dates.DateRange, contacts []string, users []string) *Sketch {
	sketch := &Sketch{Attendees: append(append([]string{}, contacts...), users...)}

	if r != nil {
		sketch.StartTime = dates.SchedulingStart(r)
		sketch.EndTime = sketch.StartTime.Add(parseDuration(query))
	}

	if m := locationPattern.FindStringSubmatch(query); m != nil {
		sketch.Location = m[1]
	}

	switch {
	case len(contacts) > 0:
		sketch.Subject = "Meeting with " + strings.Join(contacts, ", ")
	default:
		sketch.Subject = "Appointment"
	}
	return sketch
}
