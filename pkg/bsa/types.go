package bsa

import (
	"time"

	"github.com/advisorkit/maestro/pkg/models"
)

// Contact is a CRM contact record.
type Contact struct {
	ID      string `json:"Id"`
	Name    string `json:"FullName"`
	Email   string `json:"EMailAddress1,omitempty"`
	Phone   string `json:"Telephone1,omitempty"`
	Company string `json:"CompanyName,omitempty"`
	Title   string `json:"JobTitle,omitempty"`
}

// User is an internal CRM user (advisor or assistant).
type User struct {
	ID    string `json:"Id"`
	Name  string `json:"FullName"`
	Email string `json:"EMailAddress1,omitempty"`
}

// Appointment is a CRM calendar appointment.
type Appointment struct {
	ID           string    `json:"Id"`
	Subject      string    `json:"Subject"`
	StartTime    time.Time `json:"StartTime"`
	EndTime      time.Time `json:"EndTime"`
	Location     string    `json:"Location,omitempty"`
	Participants []string  `json:"Participants,omitempty"`
}

// AppointmentSpec is the payload for creating or updating an appointment.
type AppointmentSpec struct {
	Subject   string    `json:"Subject"`
	StartTime time.Time `json:"StartTime"`
	EndTime   time.Time `json:"EndTime"`
	Location  string    `json:"Location,omitempty"`
}

// ListAppointmentsParams filters an appointment listing.
type ListAppointmentsParams struct {
	From             time.Time `json:"From"`
	To               time.Time `json:"To"`
	IncludeAttendees bool      `json:"IncludeAttendees"`
	IncludeExtended  bool      `json:"IncludeExtended"`
}

// Task is a CRM task record.
type Task struct {
	ID       string     `json:"Id"`
	Subject  string     `json:"Subject"`
	Priority string     `json:"Priority"`
	DueDate  *time.Time `json:"DueDate,omitempty"`
	Status   string     `json:"Status"`
}

// TaskSpec is the payload for creating or updating a task.
type TaskSpec struct {
	Subject  string     `json:"Subject"`
	Priority string     `json:"Priority"`
	DueDate  *time.Time `json:"DueDate,omitempty"`
}

// TaskFilter filters a task listing.
type TaskFilter struct {
	Status string `json:"Status,omitempty"`
	Limit  int    `json:"Limit,omitempty"`
}

// Workflow is a CRM multi-step workflow (shell plus steps).
type Workflow struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	Description string `json:"Description,omitempty"`
}

// WorkflowStepSpec is the payload for adding one workflow step.
type WorkflowStepSpec struct {
	Name        string `json:"Name"`
	Description string `json:"Description,omitempty"`
	Type        string `json:"Type"`     // task | appointment
	Assignee    string `json:"Assignee"` // Advisor | Assistant
	DayOffset   int    `json:"DayOffset"`
}

// WorkflowStep is a created workflow step.
type WorkflowStep struct {
	ID         string `json:"Id"`
	WorkflowID string `json:"WorkflowId"`
	Name       string `json:"Name"`
	Sequence   int    `json:"Sequence"`
}

// EntityRef converts a contact into the session entity representation.
func (c Contact) EntityRef() models.EntityRef {
	return models.EntityRef{
		Type:    models.EntityContact,
		ID:      c.ID,
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Company: c.Company,
		Title:   c.Title,
	}
}

// EntityRef converts a user into the session entity representation.
func (u User) EntityRef() models.EntityRef {
	return models.EntityRef{
		Type:  models.EntityUser,
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}

// EntityRef converts an appointment into the session entity representation.
func (a Appointment) EntityRef() models.EntityRef {
	return models.EntityRef{
		Type:         models.EntityAppointment,
		ID:           a.ID,
		Subject:      a.Subject,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Location:     a.Location,
		Participants: a.Participants,
	}
}

// EntityRef converts a task into the session entity representation.
func (t Task) EntityRef() models.EntityRef {
	return models.EntityRef{
		Type:     models.EntityTask,
		ID:       t.ID,
		Subject:  t.Subject,
		Priority: t.Priority,
		DueDate:  t.DueDate,
		Status:   t.Status,
	}
}
