package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/dedupe"
	"github.com/advisorkit/maestro/pkg/effects"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/resilience"
	"github.com/advisorkit/maestro/pkg/services"
)

func testDeps(stub *bsa.StubGateway) *Deps {
	executor := resilience.NewExecutor(resilience.Settings{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2,
	})
	guard := dedupe.NewGuard(services.NewMemDedupeService())

	nextID := 0
	return &Deps{
		Gateway: stub,
		Runner:  effects.NewRunner(guard, executor, 5*time.Minute),
		Memory:  memory.NopService{},
		NewID: func() string {
			nextID++
			return fmt.Sprintf("action-%d", nextID)
		},
	}
}

func newState(query string) *State {
	return &State{CoreState: graph.CoreState{
		Query:    query,
		OrgID:    "org-1",
		UserID:   "user-1",
		ThreadID: "thread-1",
	}}
}

func draftWithSteps(n int) *Draft {
	d := &Draft{Name: "Test Workflow"}
	for i := 0; i < n; i++ {
		d.Steps = append(d.Steps, Step{
			Name: fmt.Sprintf("Step %d", i+1), Type: StepTask, Assignee: AssigneeAssistant,
		})
	}
	return d
}

func TestValidateDraft_StepCountBoundaries(t *testing.T) {
	// 0 and 23 fail; 1 and 22 pass.
	assert.Error(t, ValidateDraft(draftWithSteps(0), MaxSteps))
	assert.NoError(t, ValidateDraft(draftWithSteps(1), MaxSteps))
	assert.NoError(t, ValidateDraft(draftWithSteps(22), MaxSteps))
	assert.Error(t, ValidateDraft(draftWithSteps(23), MaxSteps))
}

func TestValidateDraft_RejectsBadSteps(t *testing.T) {
	d := draftWithSteps(2)
	d.Steps[1].Name = ""
	assert.Error(t, ValidateDraft(d, MaxSteps))

	d = draftWithSteps(2)
	d.Steps[0].Type = "email"
	assert.Error(t, ValidateDraft(d, MaxSteps))

	d = draftWithSteps(2)
	d.Steps[0].Assignee = "Manager"
	assert.Error(t, ValidateDraft(d, MaxSteps))

	d = draftWithSteps(2)
	d.Steps[0].DayOffset = -1
	assert.Error(t, ValidateDraft(d, MaxSteps))
}

func TestWorkflow_CreateFlow(t *testing.T) {
	stub := bsa.NewStubGateway()
	deps := testDeps(stub)

	s := newState("Create a planning workflow for the Hendersons")
	out, err := Build(deps).Run(context.Background(), s)
	require.NoError(t, err)

	require.True(t, out.Suspended)
	assert.Equal(t, models.InterruptApprovalRequired, out.Interrupt.Type)
	assert.Equal(t, 0, stub.CallCount("create_workflow"), "no write before approval")

	s.ApprovalDecision = models.DecisionApprove
	out, err = Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)
	assert.False(t, out.Suspended)

	assert.Equal(t, 1, stub.CallCount("create_workflow"))
	assert.Equal(t, len(s.Draft.Steps), stub.CallCount("add_workflow_step"))
	assert.Contains(t, s.Response, "Successfully created workflow")

	// Steps were added sequentially in declared order.
	require.Len(t, stub.Steps, len(s.Draft.Steps))
	for i, step := range stub.Steps {
		assert.Equal(t, s.Draft.Steps[i].Name, step.Name)
		assert.Equal(t, i+1, step.Sequence)
	}

	// The workflow lands in the entity channel.
	latest, ok := s.Entities.GetLatest(models.EntityWorkflow)
	require.True(t, ok)
	assert.Equal(t, s.Draft.Name, latest.Name)
	assert.Equal(t, len(s.Draft.Steps), latest.StepCount)
}

func TestWorkflow_RejectCreatesNothing(t *testing.T) {
	stub := bsa.NewStubGateway()
	deps := testDeps(stub)

	s := newState("Create a planning workflow")
	out, err := Build(deps).Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, out.Suspended)

	s.ApprovalDecision = models.DecisionReject
	out, err = Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)

	assert.Equal(t, 0, stub.CallCount("create_workflow"))
	assert.Equal(t, 0, stub.CallCount("add_workflow_step"))
	assert.Contains(t, s.Response, "cancelled")
}

// stepFailingGateway fails AddWorkflowStep for one step name.
type stepFailingGateway struct {
	bsa.Gateway
	failName string
}

func (g *stepFailingGateway) AddWorkflowStep(ctx context.Context, id string, spec bsa.WorkflowStepSpec) (*bsa.WorkflowStep, error) {
	if spec.Name == g.failName {
		return nil, &bsa.ExternalError{Kind: "invalid_response", Message: "step rejected"}
	}
	return g.Gateway.AddWorkflowStep(ctx, id, spec)
}

func TestWorkflow_StepFailuresAreCollectedNotFatal(t *testing.T) {
	stub := bsa.NewStubGateway()
	deps := testDeps(stub)
	deps.Gateway = &stepFailingGateway{Gateway: stub, failName: "Planning meeting"}

	s := newState("Create a planning workflow")
	out, err := Build(deps).Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, out.Suspended)

	s.ApprovalDecision = models.DecisionApprove
	out, err = Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)
	assert.False(t, out.Suspended)

	assert.Empty(t, s.Error)
	require.Len(t, s.StepFailures, 1)
	assert.Contains(t, s.StepFailures[0], "Planning meeting")
	assert.Contains(t, s.Response, "4 of 5 steps")
	assert.Contains(t, s.Response, "Step failed")
}

func TestWorkflow_GeneratorPicksTemplateByKeyword(t *testing.T) {
	gen := TemplateGenerator{}

	d, err := gen.Generate(context.Background(), "set up an onboarding workflow")
	require.NoError(t, err)
	assert.Contains(t, d.Description, "Onboard")

	d, err = gen.Generate(context.Background(), "create a review workflow")
	require.NoError(t, err)
	assert.Contains(t, d.Description, "review")

	// Every template validates.
	for _, q := range []string{"onboarding workflow", "review workflow", "planning workflow"} {
		d, err := gen.Generate(context.Background(), q)
		require.NoError(t, err)
		assert.NoError(t, ValidateDraft(d, MaxSteps))
	}
}

func TestWorkflow_ValidationFailureRoutesToResponse(t *testing.T) {
	deps := testDeps(bsa.NewStubGateway())
	deps.Generator = badGenerator{}

	s := newState("create a workflow")
	out, err := Build(deps).Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, out.Suspended)
	assert.NotEmpty(t, s.Error)
	assert.Contains(t, s.Response, "Error:")
}

type badGenerator struct{}

func (badGenerator) Generate(context.Context, string) (*Draft, error) {
	return &Draft{Name: "Empty"}, nil
}
