package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/config"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/planner"
	"github.com/advisorkit/maestro/pkg/resilience"
	"github.com/advisorkit/maestro/pkg/services"
)

type fakeCreds struct{}

func (fakeCreds) GetCredential(context.Context) (string, error) {
	return "pk-test", nil
}

type fixture struct {
	coord       *Coordinator
	stub        *bsa.StubGateway
	checkpoints *services.MemCheckpointService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stub := bsa.NewStubGateway()
	checkpoints := services.NewMemCheckpointService()

	cfg := config.Default()
	cfg.BSA.Stub = true

	executor := resilience.NewExecutor(resilience.Settings{
		MaxRetries:       1,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Millisecond,
		Multiplier:       2,
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
		HalfOpenMax:      3,
	})

	coord := New(Options{
		Config:      cfg,
		Checkpoints: checkpoints,
		DedupeStore: services.NewMemDedupeService(),
		Executor:    executor,
		Planner:     planner.New(nil),
		Gateway:     func(bsa.Auth) bsa.Gateway { return stub },
	})
	coord.Now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	nextID := 0
	coord.NewID = func() string {
		nextID++
		return fmt.Sprintf("run-%d", nextID)
	}

	return &fixture{coord: coord, stub: stub, checkpoints: checkpoints}
}

func queryReq(query string) models.QueryRequest {
	return models.QueryRequest{
		Query:     query,
		OrgID:     "org-1",
		UserID:    "user-1",
		SessionID: "sess-1",
		ThreadID:  "thread-1",
		Timezone:  "UTC",
	}
}

func TestCoordinator_SimpleView(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.ProcessQuery(context.Background(), queryReq("What's on my calendar today?"), fakeCreds{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Interrupts)
	assert.Contains(t, res.Response, "appointments")
	require.NotNil(t, res.ExecutionPlan)
	require.Len(t, res.ExecutionPlan.Parallel, 1)
	assert.Equal(t, models.DomainCalendar, res.ExecutionPlan.Parallel[0].Domain)
}

func TestCoordinator_CreateWithDisambiguationAndApproval(t *testing.T) {
	f := newFixture(t)
	f.stub.Contacts = []bsa.Contact{
		{ID: "J1", Name: "John Smith"},
		{ID: "J2", Name: "John Smythe"},
	}

	// Step 1: the query plans contact → calendar and suspends on the
	// ambiguous contact.
	res, err := f.coord.ProcessQuery(context.Background(), queryReq("create an appointment with John for 8am tomorrow"), fakeCreds{})
	require.NoError(t, err)

	require.Len(t, res.Interrupts, 1)
	assert.Equal(t, models.InterruptContactDisambiguation, res.Interrupts[0].Type)
	assert.GreaterOrEqual(t, len(res.Interrupts[0].Candidates), 2)
	require.NotEmpty(t, res.CheckpointID)

	// Step 2: selecting J1 resumes; the calendar step then suspends for
	// approval.
	res, err = f.coord.Resume(context.Background(), models.ResumeRequest{
		CheckpointID: res.CheckpointID,
		Payload: &models.ResumePayload{
			Type:      models.InterruptContactDisambiguation,
			Selection: &models.ResumeSelection{ID: "J1"},
		},
	}, fakeCreds{})
	require.NoError(t, err)

	require.Len(t, res.Interrupts, 1)
	assert.Equal(t, models.InterruptApprovalRequired, res.Interrupts[0].Type)
	require.NotEmpty(t, res.CheckpointID)
	assert.Equal(t, 0, f.stub.CallCount("create_appointment"))

	// Step 3: approval issues exactly one create and one link.
	res, err = f.coord.Resume(context.Background(), models.ResumeRequest{
		CheckpointID: res.CheckpointID,
		Payload: &models.ResumePayload{
			Type:     models.InterruptApprovalRequired,
			Decision: models.DecisionApprove,
		},
	}, fakeCreds{})
	require.NoError(t, err)

	assert.Empty(t, res.Interrupts)
	assert.Equal(t, 1, f.stub.CallCount("create_appointment"))
	assert.Equal(t, 1, f.stub.CallCount("link_relation"))
	assert.Contains(t, res.Response, "Successfully created appointment")
	assert.Contains(t, res.Response, "John Smith")
}

func TestCoordinator_RejectConsumesCheckpointWithoutWrites(t *testing.T) {
	f := newFixture(t)
	f.stub.Contacts = []bsa.Contact{{ID: "J1", Name: "John Smith"}}

	res, err := f.coord.ProcessQuery(context.Background(), queryReq("create an appointment with John for 8am tomorrow"), fakeCreds{})
	require.NoError(t, err)
	require.Len(t, res.Interrupts, 1)
	assert.Equal(t, models.InterruptApprovalRequired, res.Interrupts[0].Type)
	checkpointID := res.CheckpointID

	res, err = f.coord.Resume(context.Background(), models.ResumeRequest{
		CheckpointID: checkpointID,
		Payload: &models.ResumePayload{
			Type:     models.InterruptApprovalRequired,
			Decision: models.DecisionReject,
		},
	}, fakeCreds{})
	require.NoError(t, err)

	assert.Contains(t, res.Response, "cancelled")
	assert.Equal(t, 0, f.stub.CallCount("create_appointment"))
	assert.Equal(t, 0, f.stub.CallCount("link_relation"))

	// The checkpoint is consumed: a second resume fails.
	_, err = f.coord.Resume(context.Background(), models.ResumeRequest{
		CheckpointID: checkpointID,
		Payload: &models.ResumePayload{
			Type:     models.InterruptApprovalRequired,
			Decision: models.DecisionApprove,
		},
	}, fakeCreds{})
	assert.Error(t, err)
	assert.Equal(t, 0, f.stub.CallCount("create_appointment"))
}

func TestCoordinator_ApproveConsumesCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.stub.Contacts = []bsa.Contact{{ID: "J1", Name: "John Smith"}}

	res, err := f.coord.ProcessQuery(context.Background(), queryReq("create an appointment with John for 8am tomorrow"), fakeCreds{})
	require.NoError(t, err)
	checkpointID := res.CheckpointID
	require.NotEmpty(t, checkpointID)

	_, err = f.coord.Resume(context.Background(), models.ResumeRequest{
		CheckpointID: checkpointID,
		Payload: &models.ResumePayload{
			Type:     models.InterruptApprovalRequired,
			Decision: models.DecisionApprove,
		},
	}, fakeCreds{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.stub.CallCount("create_appointment"))

	// Replaying the same approval cannot double-create.
	_, err = f.coord.Resume(context.Background(), models.ResumeRequest{
		CheckpointID: checkpointID,
		Payload: &models.ResumePayload{
			Type:     models.InterruptApprovalRequired,
			Decision: models.DecisionApprove,
		},
	}, fakeCreds{})
	assert.Error(t, err)
	assert.Equal(t, 1, f.stub.CallCount("create_appointment"))
}

func TestCoordinator_MultiDomain(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.ProcessQuery(context.Background(), queryReq("Create a planning workflow and schedule a meeting to discuss it"), fakeCreds{})
	require.NoError(t, err)

	require.NotNil(t, res.ExecutionPlan)
	assert.Contains(t, res.ExecutionPlan.Analysis.Domains, models.DomainWorkflow)
	assert.Contains(t, res.ExecutionPlan.Analysis.Domains, models.DomainCalendar)

	// Both domains stage mutations; approvals arrive one at a time.
	approvals := 0
	for len(res.Interrupts) > 0 && approvals < 4 {
		require.Equal(t, models.InterruptApprovalRequired, res.Interrupts[0].Type)
		approvals++
		res, err = f.coord.Resume(context.Background(), models.ResumeRequest{
			CheckpointID: res.CheckpointID,
			Payload: &models.ResumePayload{
				Type:     models.InterruptApprovalRequired,
				Decision: models.DecisionApprove,
			},
		}, fakeCreds{})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, approvals)
	assert.Equal(t, 1, f.stub.CallCount("create_workflow"))
	assert.Equal(t, 1, f.stub.CallCount("create_appointment"))
	assert.Contains(t, res.Response, "Successfully created workflow")
	assert.Contains(t, res.Response, "Successfully created appointment")

	// The entity graph carries both results.
	types := map[models.EntityType]bool{}
	for _, e := range res.Entities {
		types[e.Type] = true
	}
	assert.True(t, types[models.EntityWorkflow])
	assert.True(t, types[models.EntityAppointment])
}

func TestCoordinator_EmptyQueryRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.ProcessQuery(context.Background(), queryReq("   "), fakeCreds{})
	assert.True(t, services.IsValidationError(err))
}

func TestCoordinator_GeneralFallback(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.ProcessQuery(context.Background(), queryReq("how do you work?"), fakeCreds{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Response, "appointments, tasks, workflows")
}

func TestCoordinator_StepFailureDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t)
	// Tasks listing fails, calendar still answers.
	f.stub.Tasks = nil
	failing := &failingTaskGateway{Gateway: f.stub}
	f.coord.newGateway = func(bsa.Auth) bsa.Gateway { return failing }
	f.coord.sessions = newSessions()

	res, err := f.coord.ProcessQuery(context.Background(), queryReq("show my calendar and list my tasks today"), fakeCreds{})
	require.NoError(t, err)

	require.Len(t, res.Domains, 2)
	var calendarOK, taskFailed bool
	for _, d := range res.Domains {
		if d.Domain == models.DomainCalendar && d.Success {
			calendarOK = true
		}
		if d.Domain == models.DomainTask && !d.Success {
			taskFailed = true
		}
	}
	assert.True(t, calendarOK, "calendar step should succeed")
	assert.True(t, taskFailed, "task step should fail in isolation")
	assert.False(t, res.Success)
}

type failingTaskGateway struct {
	bsa.Gateway
}

func (g *failingTaskGateway) ListTasks(context.Context, bsa.TaskFilter) ([]bsa.Task, error) {
	return nil, &bsa.NetworkError{Code: 500}
}

func TestCoordinator_EntitySurvivesCheckpointRestore(t *testing.T) {
	f := newFixture(t)
	f.stub.Contacts = []bsa.Contact{{ID: "J1", Name: "John Smith"}}

	res, err := f.coord.ProcessQuery(context.Background(), queryReq("create an appointment with John for 8am tomorrow"), fakeCreds{})
	require.NoError(t, err)
	require.NotEmpty(t, res.CheckpointID)

	// Simulate a process restart: session state is gone, only the
	// checkpoint survives.
	f.coord.sessions = newSessions()

	res, err = f.coord.Resume(context.Background(), models.ResumeRequest{
		CheckpointID: res.CheckpointID,
		Payload: &models.ResumePayload{
			Type:     models.InterruptApprovalRequired,
			Decision: models.DecisionApprove,
		},
	}, fakeCreds{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.stub.CallCount("create_appointment"))
	// The contact resolved before the suspension is still attached.
	var contactSeen bool
	for _, e := range res.Entities {
		if e.Type == models.EntityContact && e.ID == "J1" {
			contactSeen = true
		}
	}
	assert.True(t, contactSeen)
}
