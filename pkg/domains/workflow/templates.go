package workflow

import "regexp"

var namePattern = regexp.MustCompile(`(?i)(?:create|start|set up)\s+(?:an?\s+)?(.+?)\s+workflow`)

func planningDraft(name string) *Draft {
	return &Draft{
		Name:        name,
		Description: "Plan and execute the engagement",
		Steps: []Step{
			{Name: "Gather requirements", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 0},
			{Name: "Prepare planning documents", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 2},
			{Name: "Planning meeting", Type: StepAppointment, Assignee: AssigneeAdvisor, DayOffset: 5},
			{Name: "Send follow-up summary", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 6},
			{Name: "Confirm next steps", Type: StepTask, Assignee: AssigneeAdvisor, DayOffset: 9},
		},
	}
}

func onboardingDraft(name string) *Draft {
	return &Draft{
		Name:        name,
		Description: "Onboard a new client relationship",
		Steps: []Step{
			{Name: "Collect client profile", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 0},
			{Name: "Set up accounts", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 1},
			{Name: "Welcome call", Type: StepAppointment, Assignee: AssigneeAdvisor, DayOffset: 3},
			{Name: "Document delivery", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 5},
			{Name: "First review meeting", Type: StepAppointment, Assignee: AssigneeAdvisor, DayOffset: 14},
		},
	}
}

func reviewDraft(name string) *Draft {
	return &Draft{
		Name:        name,
		Description: "Periodic account review",
		Steps: []Step{
			{Name: "Pull account statements", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 0},
			{Name: "Prepare review packet", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 2},
			{Name: "Review meeting", Type: StepAppointment, Assignee: AssigneeAdvisor, DayOffset: 7},
			{Name: "Log meeting outcomes", Type: StepTask, Assignee: AssigneeAssistant, DayOffset: 8},
		},
	}
}
