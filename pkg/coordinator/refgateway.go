package coordinator

import (
	"context"

	"github.com/advisorkit/maestro/pkg/bsa"
)

// refGateway delegates every operation to the session's current gateway.
type refGateway struct {
	ref *gatewayRef
}

func (g *refGateway) ListAppointments(ctx context.Context, p bsa.ListAppointmentsParams) ([]bsa.Appointment, error) {
	return g.ref.get().ListAppointments(ctx, p)
}

func (g *refGateway) CreateAppointment(ctx context.Context, spec bsa.AppointmentSpec) (*bsa.Appointment, error) {
	return g.ref.get().CreateAppointment(ctx, spec)
}

func (g *refGateway) UpdateAppointment(ctx context.Context, id string, spec bsa.AppointmentSpec) (*bsa.Appointment, error) {
	return g.ref.get().UpdateAppointment(ctx, id, spec)
}

func (g *refGateway) DeleteAppointment(ctx context.Context, id string) error {
	return g.ref.get().DeleteAppointment(ctx, id)
}

func (g *refGateway) GetAppointmentByID(ctx context.Context, id string) (*bsa.Appointment, error) {
	return g.ref.get().GetAppointmentByID(ctx, id)
}

func (g *refGateway) CreateTask(ctx context.Context, spec bsa.TaskSpec) (*bsa.Task, error) {
	return g.ref.get().CreateTask(ctx, spec)
}

func (g *refGateway) UpdateTask(ctx context.Context, id string, spec bsa.TaskSpec) (*bsa.Task, error) {
	return g.ref.get().UpdateTask(ctx, id, spec)
}

func (g *refGateway) CompleteTask(ctx context.Context, id string) (*bsa.Task, error) {
	return g.ref.get().CompleteTask(ctx, id)
}

func (g *refGateway) ListTasks(ctx context.Context, filter bsa.TaskFilter) ([]bsa.Task, error) {
	return g.ref.get().ListTasks(ctx, filter)
}

func (g *refGateway) CreateWorkflow(ctx context.Context, name, description string) (*bsa.Workflow, error) {
	return g.ref.get().CreateWorkflow(ctx, name, description)
}

func (g *refGateway) AddWorkflowStep(ctx context.Context, workflowID string, spec bsa.WorkflowStepSpec) (*bsa.WorkflowStep, error) {
	return g.ref.get().AddWorkflowStep(ctx, workflowID, spec)
}

func (g *refGateway) SearchContacts(ctx context.Context, query string, limit int) ([]bsa.Contact, error) {
	return g.ref.get().SearchContacts(ctx, query, limit)
}

func (g *refGateway) GetContact(ctx context.Context, id string) (*bsa.Contact, error) {
	return g.ref.get().GetContact(ctx, id)
}

func (g *refGateway) LinkRelation(ctx context.Context, link bsa.Link) error {
	return g.ref.get().LinkRelation(ctx, link)
}

func (g *refGateway) SearchUsers(ctx context.Context, query string, limit int) ([]bsa.User, error) {
	return g.ref.get().SearchUsers(ctx, query, limit)
}

func (g *refGateway) GetCurrentUser(ctx context.Context) (*bsa.User, error) {
	return g.ref.get().GetCurrentUser(ctx)
}
