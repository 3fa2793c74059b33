package models

import "time"

// EntityType discriminates the EntityRef variants.
type EntityType string

// Entity types tracked in the session graph.
const (
	EntityContact     EntityType = "contact"
	EntityUser        EntityType = "user"
	EntityAppointment EntityType = "appointment"
	EntityTask        EntityType = "task"
	EntityWorkflow    EntityType = "workflow"
)

// EntityRef is a resolved reference to a CRM entity. Type selects which
// field group is populated; the zero values of the other groups are ignored.
type EntityRef struct {
	Type      EntityType `json:"type"`
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`

	// Contact / User
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Title   string `json:"title,omitempty"`

	// Appointment
	Subject      string    `json:"subject,omitempty"`
	StartTime    time.Time `json:"start_time,omitzero"`
	EndTime      time.Time `json:"end_time,omitzero"`
	Location     string    `json:"location,omitempty"`
	Participants []string  `json:"participants,omitempty"`

	// Task
	Priority string     `json:"priority,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Status   string     `json:"status,omitempty"`

	// Workflow
	StepCount int      `json:"step_count,omitempty"`
	Steps     []string `json:"steps,omitempty"`
}
