package task

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/dates"
	"github.com/advisorkit/maestro/pkg/dedupe"
	"github.com/advisorkit/maestro/pkg/effects"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/resilience"
	"github.com/advisorkit/maestro/pkg/resolver"
	"github.com/advisorkit/maestro/pkg/services"
)

var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

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
		Gateway:  stub,
		Runner:   effects.NewRunner(guard, executor, 5*time.Minute),
		Contacts: resolver.NewContactResolver(stub, resolver.Options{}),
		Memory:   memory.NopService{},
		Dates:    dates.NewParser(),
		Now:      func() time.Time { return testNow },
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
		Timezone: "UTC",
	}}
}

func runToApproval(t *testing.T, deps *Deps, s *State) *graph.Outcome {
	t.Helper()
	out, err := Build(deps).Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, out.Suspended)
	require.Equal(t, models.InterruptApprovalRequired, out.Interrupt.Type)
	return out
}

func TestPriority_UrgencyKeywords(t *testing.T) {
	deps := testDeps(bsa.NewStubGateway())

	tests := []struct {
		query string
		want  string
	}{
		{"create a task to file the report asap", PriorityUrgent},
		{"urgent task: call the custodian", PriorityUrgent},
		{"add an important task to review the ledger", PriorityHigh},
		{"add a task to clean the archive whenever", PriorityLow},
		{"add a task to send the letter", PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := newState(tt.query)
			_, err := deps.parseRequest(context.Background(), s)
			require.NoError(t, err)
			_, err = deps.setPriority(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Priority)
		})
	}
}

func TestPriority_DueDateProximityWinsLast(t *testing.T) {
	deps := testDeps(bsa.NewStubGateway())

	// "whenever" says Low, but a due date within a day forces Urgent.
	s := newState("add a task to file the report whenever")
	due := testNow.Add(6 * time.Hour)
	s.DueDate = &due
	_, err := deps.setPriority(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, s.Priority)

	// Within three days: High.
	s = newState("add a task to file the report")
	due = testNow.Add(48 * time.Hour)
	s.DueDate = &due
	_, err = deps.setPriority(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, s.Priority)
}

func TestTask_CreateRequiresApproval(t *testing.T) {
	stub := bsa.NewStubGateway()
	deps := testDeps(stub)

	s := newState("add a task to prepare the quarterly report")
	out := runToApproval(t, deps, s)
	assert.Equal(t, 0, stub.CallCount("create_task"), "no write before approval")

	s.ApprovalDecision = models.DecisionApprove
	out2, err := Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)
	assert.False(t, out2.Suspended)

	assert.Equal(t, 1, stub.CallCount("create_task"))
	assert.Contains(t, s.Response, "Successfully created task")
}

func TestTask_RejectCreatesNothing(t *testing.T) {
	stub := bsa.NewStubGateway()
	deps := testDeps(stub)

	s := newState("add a task to prepare the quarterly report")
	out := runToApproval(t, deps, s)

	s.ApprovalDecision = models.DecisionReject
	_, err := Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)

	assert.Equal(t, 0, stub.CallCount("create_task"))
	assert.Contains(t, s.Response, "cancelled")
}

func TestTask_DuplicateWarningDoesNotBlock(t *testing.T) {
	stub := bsa.NewStubGateway()
	stub.Tasks = []bsa.Task{{ID: "T0", Subject: "Prepare the quarterly report", Status: "open"}}
	deps := testDeps(stub)

	s := newState("add a task to prepare the quarterly report")
	out := runToApproval(t, deps, s)

	require.NotNil(t, out.Interrupt.Approval)
	require.NotEmpty(t, out.Interrupt.Approval.Preview.Warnings)
	assert.Contains(t, out.Interrupt.Approval.Preview.Warnings[0], "similar task")

	s.ApprovalDecision = models.DecisionApprove
	_, err := Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.CallCount("create_task"))
}

func TestTask_CompleteFlow(t *testing.T) {
	stub := bsa.NewStubGateway()
	stub.Tasks = []bsa.Task{{ID: "T1", Subject: "Send the letter", Status: "open"}}
	deps := testDeps(stub)

	s := newState("complete the task to send the letter")
	out := runToApproval(t, deps, s)
	assert.Equal(t, ActionComplete, s.Action)

	s.ApprovalDecision = models.DecisionApprove
	_, err := Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.CallCount("complete_task"))
	assert.Equal(t, "completed", stub.Tasks[0].Status)
	assert.Contains(t, s.Response, "Successfully completed task")
}

func TestTask_AssigneeResolutionAndLinking(t *testing.T) {
	stub := bsa.NewStubGateway()
	stub.Contacts = []bsa.Contact{{ID: "C1", Name: "Jane Doe"}}
	deps := testDeps(stub)

	s := newState("create a task to send documents for Jane Doe")
	out := runToApproval(t, deps, s)

	s.ApprovalDecision = models.DecisionApprove
	_, err := Build(deps).Resume(context.Background(), s, out.NodeID)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.CallCount("create_task"))
	require.Len(t, stub.Links, 1)
	assert.Equal(t, bsa.LinkTask, stub.Links[0].Left)
	assert.Equal(t, "C1", stub.Links[0].RightID)
	assert.Contains(t, s.Response, "Jane Doe")
}

func TestTask_ListDoesNotRequireApproval(t *testing.T) {
	stub := bsa.NewStubGateway()
	stub.Tasks = []bsa.Task{{ID: "T1", Subject: "Send the letter", Priority: "High", Status: "open"}}
	deps := testDeps(stub)

	s := newState("show my tasks")
	out, err := Build(deps).Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, out.Suspended)
	assert.Contains(t, s.Response, "Send the letter")
}

func TestTask_DueDateParsedFromQuery(t *testing.T) {
	deps := testDeps(bsa.NewStubGateway())

	s := newState("add a task to file the 13F due tomorrow")
	_, err := deps.parseRequest(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, s.DueDate)
	assert.Equal(t, 3, s.DueDate.Day())
}
