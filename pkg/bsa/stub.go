package bsa

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// StubGateway is an in-memory Gateway for local development and tests.
// It records every mutation so callers can assert on issued effects.
type StubGateway struct {
	mu     sync.Mutex
	nextID int

	Contacts     []Contact
	Users        []User
	Appointments []Appointment
	Tasks        []Task
	Workflows    []Workflow
	Steps        []WorkflowStep
	Links        []Link

	// Me is the bound user returned by GetCurrentUser.
	Me User

	// Fail, when set, is returned by every operation. Used to exercise
	// retry and circuit-breaker paths.
	Fail error

	// Calls counts operations by name.
	Calls map[string]int
}

// NewStubGateway creates an empty stub with a default bound user.
func NewStubGateway() *StubGateway {
	return &StubGateway{
		Me:    User{ID: "U-me", Name: "Current Advisor"},
		Calls: make(map[string]int),
	}
}

func (s *StubGateway) record(op string) error {
	s.Calls[op]++
	return s.Fail
}

func (s *StubGateway) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// CallCount returns how many times op was invoked.
func (s *StubGateway) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[op]
}

func (s *StubGateway) ListAppointments(_ context.Context, params ListAppointmentsParams) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("list_appointments"); err != nil {
		return nil, err
	}
	var out []Appointment
	for _, a := range s.Appointments {
		if a.StartTime.Before(params.To) && a.EndTime.After(params.From) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *StubGateway) CreateAppointment(_ context.Context, spec AppointmentSpec) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("create_appointment"); err != nil {
		return nil, err
	}
	appt := Appointment{
		ID:        s.id("A"),
		Subject:   spec.Subject,
		StartTime: spec.StartTime,
		EndTime:   spec.EndTime,
		Location:  spec.Location,
	}
	s.Appointments = append(s.Appointments, appt)
	return &appt, nil
}

func (s *StubGateway) UpdateAppointment(_ context.Context, id string, spec AppointmentSpec) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("update_appointment"); err != nil {
		return nil, err
	}
	for i := range s.Appointments {
		if s.Appointments[i].ID == id {
			s.Appointments[i].Subject = spec.Subject
			s.Appointments[i].StartTime = spec.StartTime
			s.Appointments[i].EndTime = spec.EndTime
			s.Appointments[i].Location = spec.Location
			appt := s.Appointments[i]
			return &appt, nil
		}
	}
	return nil, ErrNotFound
}

func (s *StubGateway) DeleteAppointment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete_appointment"); err != nil {
		return err
	}
	for i := range s.Appointments {
		if s.Appointments[i].ID == id {
			s.Appointments = append(s.Appointments[:i], s.Appointments[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *StubGateway) GetAppointmentByID(_ context.Context, id string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("get_appointment"); err != nil {
		return nil, err
	}
	for _, a := range s.Appointments {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *StubGateway) CreateTask(_ context.Context, spec TaskSpec) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("create_task"); err != nil {
		return nil, err
	}
	task := Task{
		ID:       s.id("T"),
		Subject:  spec.Subject,
		Priority: spec.Priority,
		DueDate:  spec.DueDate,
		Status:   "open",
	}
	s.Tasks = append(s.Tasks, task)
	return &task, nil
}

func (s *StubGateway) UpdateTask(_ context.Context, id string, spec TaskSpec) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("update_task"); err != nil {
		return nil, err
	}
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			s.Tasks[i].Subject = spec.Subject
			s.Tasks[i].Priority = spec.Priority
			s.Tasks[i].DueDate = spec.DueDate
			task := s.Tasks[i]
			return &task, nil
		}
	}
	return nil, ErrNotFound
}

func (s *StubGateway) CompleteTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("complete_task"); err != nil {
		return nil, err
	}
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			s.Tasks[i].Status = "completed"
			task := s.Tasks[i]
			return &task, nil
		}
	}
	return nil, ErrNotFound
}

func (s *StubGateway) ListTasks(_ context.Context, filter TaskFilter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("list_tasks"); err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range s.Tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *StubGateway) CreateWorkflow(_ context.Context, name, description string) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("create_workflow"); err != nil {
		return nil, err
	}
	wf := Workflow{ID: s.id("W"), Name: name, Description: description}
	s.Workflows = append(s.Workflows, wf)
	return &wf, nil
}

func (s *StubGateway) AddWorkflowStep(_ context.Context, workflowID string, spec WorkflowStepSpec) (*WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("add_workflow_step"); err != nil {
		return nil, err
	}
	seq := 0
	for _, st := range s.Steps {
		if st.WorkflowID == workflowID {
			seq++
		}
	}
	step := WorkflowStep{
		ID:         s.id("WS"),
		WorkflowID: workflowID,
		Name:       spec.Name,
		Sequence:   seq + 1,
	}
	s.Steps = append(s.Steps, step)
	return &step, nil
}

func (s *StubGateway) SearchContacts(_ context.Context, query string, limit int) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("search_contacts"); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []Contact
	for _, c := range s.Contacts {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *StubGateway) GetContact(_ context.Context, id string) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("get_contact"); err != nil {
		return nil, err
	}
	for _, c := range s.Contacts {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *StubGateway) LinkRelation(_ context.Context, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("link_relation"); err != nil {
		return err
	}
	if _, err := link.Relation(); err != nil {
		return err
	}
	s.Links = append(s.Links, link)
	return nil
}

func (s *StubGateway) SearchUsers(_ context.Context, query string, limit int) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("search_users"); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []User
	for _, u := range s.Users {
		if strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, u)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *StubGateway) GetCurrentUser(_ context.Context) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("get_current_user"); err != nil {
		return nil, err
	}
	me := s.Me
	return &me, nil
}

// AddConflict seeds an appointment overlapping the given interval.
func (s *StubGateway) AddConflict(subject string, start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Appointments = append(s.Appointments, Appointment{
		ID:        s.id("A"),
		Subject:   subject,
		StartTime: start,
		EndTime:   end,
	})
}
