package bsa

import (
	"context"
	"time"
)

// Gateway is the typed operation surface consumed by the domain graphs.
// A Gateway is bound to one (organization, credential source) pair for the
// lifetime of a run.
type Gateway interface {
	ListAppointments(ctx context.Context, params ListAppointmentsParams) ([]Appointment, error)
	CreateAppointment(ctx context.Context, spec AppointmentSpec) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id string, spec AppointmentSpec) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	GetAppointmentByID(ctx context.Context, id string) (*Appointment, error)

	CreateTask(ctx context.Context, spec TaskSpec) (*Task, error)
	UpdateTask(ctx context.Context, id string, spec TaskSpec) (*Task, error)
	CompleteTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)

	CreateWorkflow(ctx context.Context, name, description string) (*Workflow, error)
	AddWorkflowStep(ctx context.Context, workflowID string, spec WorkflowStepSpec) (*WorkflowStep, error)

	SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error)
	GetContact(ctx context.Context, id string) (*Contact, error)
	LinkRelation(ctx context.Context, link Link) error

	SearchUsers(ctx context.Context, query string, limit int) ([]User, error)
	GetCurrentUser(ctx context.Context) (*User, error)
}

// Bind returns a Gateway whose calls all carry the given auth envelope.
func (c *Client) Bind(auth Auth) Gateway {
	return &boundGateway{c: c, auth: auth}
}

type boundGateway struct {
	c    *Client
	auth Auth
}

func (g *boundGateway) ListAppointments(ctx context.Context, params ListAppointmentsParams) ([]Appointment, error) {
	env, err := g.c.Post(ctx, g.auth, "calendar/appointments/list", map[string]any{
		"From":             params.From.Format(time.RFC3339),
		"To":               params.To.Format(time.RFC3339),
		"IncludeAttendees": params.IncludeAttendees,
		"IncludeExtended":  params.IncludeExtended,
	})
	if err != nil {
		return nil, err
	}
	return decode[[]Appointment](env)
}

func (g *boundGateway) CreateAppointment(ctx context.Context, spec AppointmentSpec) (*Appointment, error) {
	env, err := g.c.Post(ctx, g.auth, "calendar/appointments/create", map[string]any{
		"Subject":   spec.Subject,
		"StartTime": spec.StartTime.Format(time.RFC3339),
		"EndTime":   spec.EndTime.Format(time.RFC3339),
		"Location":  spec.Location,
	})
	if err != nil {
		return nil, err
	}
	appt, err := decode[Appointment](env)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (g *boundGateway) UpdateAppointment(ctx context.Context, id string, spec AppointmentSpec) (*Appointment, error) {
	env, err := g.c.Post(ctx, g.auth, "calendar/appointments/update", map[string]any{
		"Id":        id,
		"Subject":   spec.Subject,
		"StartTime": spec.StartTime.Format(time.RFC3339),
		"EndTime":   spec.EndTime.Format(time.RFC3339),
		"Location":  spec.Location,
	})
	if err != nil {
		return nil, err
	}
	appt, err := decode[Appointment](env)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (g *boundGateway) DeleteAppointment(ctx context.Context, id string) error {
	_, err := g.c.Post(ctx, g.auth, "calendar/appointments/delete", map[string]any{"Id": id})
	return err
}

func (g *boundGateway) GetAppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	env, err := g.c.Post(ctx, g.auth, "calendar/appointments/get", map[string]any{"Id": id})
	if err != nil {
		return nil, err
	}
	appt, err := decode[Appointment](env)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (g *boundGateway) CreateTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	payload := map[string]any{
		"Subject":  spec.Subject,
		"Priority": spec.Priority,
	}
	if spec.DueDate != nil {
		payload["DueDate"] = spec.DueDate.Format(time.RFC3339)
	}
	env, err := g.c.Post(ctx, g.auth, "tasks/create", payload)
	if err != nil {
		return nil, err
	}
	task, err := decode[Task](env)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (g *boundGateway) UpdateTask(ctx context.Context, id string, spec TaskSpec) (*Task, error) {
	payload := map[string]any{
		"Id":       id,
		"Subject":  spec.Subject,
		"Priority": spec.Priority,
	}
	if spec.DueDate != nil {
		payload["DueDate"] = spec.DueDate.Format(time.RFC3339)
	}
	env, err := g.c.Post(ctx, g.auth, "tasks/update", payload)
	if err != nil {
		return nil, err
	}
	task, err := decode[Task](env)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (g *boundGateway) CompleteTask(ctx context.Context, id string) (*Task, error) {
	env, err := g.c.Post(ctx, g.auth, "tasks/complete", map[string]any{"Id": id})
	if err != nil {
		return nil, err
	}
	task, err := decode[Task](env)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (g *boundGateway) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	env, err := g.c.Post(ctx, g.auth, "tasks/list", map[string]any{
		"Status": filter.Status,
		"Limit":  filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	return decode[[]Task](env)
}

func (g *boundGateway) CreateWorkflow(ctx context.Context, name, description string) (*Workflow, error) {
	env, err := g.c.Post(ctx, g.auth, "workflows/create", map[string]any{
		"Name":        name,
		"Description": description,
	})
	if err != nil {
		return nil, err
	}
	wf, err := decode[Workflow](env)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (g *boundGateway) AddWorkflowStep(ctx context.Context, workflowID string, spec WorkflowStepSpec) (*WorkflowStep, error) {
	env, err := g.c.Post(ctx, g.auth, "workflows/steps/add", map[string]any{
		"WorkflowId":  workflowID,
		"Name":        spec.Name,
		"Description": spec.Description,
		"Type":        spec.Type,
		"Assignee":    spec.Assignee,
		"DayOffset":   spec.DayOffset,
	})
	if err != nil {
		return nil, err
	}
	step, err := decode[WorkflowStep](env)
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (g *boundGateway) SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error) {
	env, err := g.c.Post(ctx, g.auth, "contacts/search", map[string]any{
		"Query": query,
		"Limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return decode[[]Contact](env)
}

func (g *boundGateway) GetContact(ctx context.Context, id string) (*Contact, error) {
	env, err := g.c.Post(ctx, g.auth, "contacts/get", map[string]any{"Id": id})
	if err != nil {
		return nil, err
	}
	contact, err := decode[Contact](env)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (g *boundGateway) LinkRelation(ctx context.Context, link Link) error {
	relation, err := link.Relation()
	if err != nil {
		return err
	}
	_, err = g.c.Post(ctx, g.auth, "links/create", map[string]any{
		"LeftType":  string(link.Left),
		"LeftId":    link.LeftID,
		"Relation":  relation,
		"RightType": string(link.Right),
		"RightId":   link.RightID,
	})
	return err
}

func (g *boundGateway) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	env, err := g.c.Post(ctx, g.auth, "users/search", map[string]any{
		"Query": query,
		"Limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return decode[[]User](env)
}

func (g *boundGateway) GetCurrentUser(ctx context.Context) (*User, error) {
	env, err := g.c.Post(ctx, g.auth, "users/current", map[string]any{})
	if err != nil {
		return nil, err
	}
	user, err := decode[User](env)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
