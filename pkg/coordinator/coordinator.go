// Package coordinator owns the run lifecycle: load context, plan, dispatch
// domain graphs, handle interrupts, merge entity updates, and format the
// final response.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/config"
	"github.com/advisorkit/maestro/pkg/dates"
	"github.com/advisorkit/maestro/pkg/dedupe"
	"github.com/advisorkit/maestro/pkg/domains/calendar"
	"github.com/advisorkit/maestro/pkg/domains/task"
	"github.com/advisorkit/maestro/pkg/domains/workflow"
	"github.com/advisorkit/maestro/pkg/effects"
	"github.com/advisorkit/maestro/pkg/entity"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/planner"
	"github.com/advisorkit/maestro/pkg/resilience"
	"github.com/advisorkit/maestro/pkg/resolver"
	"github.com/advisorkit/maestro/pkg/services"
)

// CheckpointStore is the durable checkpoint contract.
type CheckpointStore interface {
	Put(ctx context.Context, cp *models.Checkpoint) error
	Get(ctx context.Context, runID string) (*models.Checkpoint, error)
	GetLatestByThread(ctx context.Context, threadID string) (*models.Checkpoint, error)
	Delete(ctx context.Context, runID string) error
}

// GatewayFactory binds a gateway to one run's auth context.
type GatewayFactory func(auth bsa.Auth) bsa.Gateway

// Coordinator runs queries end to end.
type Coordinator struct {
	cfg         *config.Config
	checkpoints CheckpointStore
	runner      *effects.Runner
	executor    *resilience.Executor
	memory      memory.Service
	planner     *planner.Planner
	dates       *dates.Parser
	newGateway  GatewayFactory
	sessions    *sessions

	// Now and NewID exist for tests.
	Now   func() time.Time
	NewID func() string
}

// Options assemble a coordinator.
type Options struct {
	Config      *config.Config
	Checkpoints CheckpointStore
	DedupeStore dedupe.Store
	Executor    *resilience.Executor
	Memory      memory.Service
	Planner     *planner.Planner
	Gateway     GatewayFactory
}

// New creates a coordinator. One coordinator — one breaker table and one
// dedupe guard — exists per process; resolver caches live in the per-thread
// sessions.
func New(opts Options) *Coordinator {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	mem := opts.Memory
	if mem == nil {
		mem = memory.NopService{}
	}
	executor := opts.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultSettings())
	}

	guard := dedupe.NewGuard(opts.DedupeStore)
	return &Coordinator{
		cfg:         cfg,
		checkpoints: opts.Checkpoints,
		runner:      effects.NewRunner(guard, executor, cfg.Dedupe.Window.Std()),
		executor:    executor,
		memory:      mem,
		planner:     opts.Planner,
		dates:       dates.NewParser(),
		newGateway:  opts.Gateway,
		sessions:    newSessions(),
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func (c *Coordinator) recallOpts() memory.RecallOptions {
	return memory.RecallOptions{
		Limit:     c.cfg.Memory.RecallLimit,
		Threshold: c.cfg.Memory.Threshold,
	}
}

func (c *Coordinator) resolverOpts() resolver.Options {
	return resolver.Options{
		SearchLimit:    c.cfg.Resolver.SearchLimit,
		FuzzyThreshold: c.cfg.Resolver.FuzzyThreshold,
		CacheSize:      c.cfg.Resolver.CacheSize,
		CacheTTL:       c.cfg.Resolver.CacheTTL.Std(),
	}
}

func (c *Coordinator) calendarDeps(sess *session) *calendar.Deps {
	return &calendar.Deps{
		Gateway:  &refGateway{ref: sess.gateway},
		Runner:   c.runner,
		Contacts: sess.contacts,
		Users:    sess.users,
		Memory:   c.memory,
		Dates:    c.dates,
		Now:      c.Now,
		NewID:    c.NewID,
	}
}

func (c *Coordinator) taskDeps(sess *session) *task.Deps {
	return &task.Deps{
		Gateway:  &refGateway{ref: sess.gateway},
		Runner:   c.runner,
		Contacts: sess.contacts,
		Memory:   c.memory,
		Dates:    c.dates,
		Now:      c.Now,
		NewID:    c.NewID,
	}
}

func (c *Coordinator) workflowDeps(sess *session) *workflow.Deps {
	return &workflow.Deps{
		Gateway:  &refGateway{ref: sess.gateway},
		Runner:   c.runner,
		Memory:   c.memory,
		MaxSteps: c.cfg.Workflow.MaxSteps,
		Now:      c.Now,
		NewID:    c.NewID,
	}
}

// ProcessQuery handles a fresh user query: plan, dispatch, and either
// complete or suspend on the first interrupt.
func (c *Coordinator) ProcessQuery(ctx context.Context, req models.QueryRequest, creds bsa.CredentialProvider) (result *models.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Run panicked", "thread_id", req.ThreadID, "panic", r)
			result = nil
			err = fmt.Errorf("run failed: %v", r)
		}
	}()

	if strings.TrimSpace(req.Query) == "" {
		return nil, services.NewValidationError("query", "required")
	}

	log := slog.With("thread_id", req.ThreadID, "session_id", req.SessionID)
	log.Info("Processing query")

	gw := c.newGateway(bsa.Auth{OrgID: req.OrgID, Creds: creds})
	sess := c.sessions.get(req.ThreadID, gw, c.resolverOpts(), c.cfg.Entity.MaxHistoryPerType)

	// After a restart the in-memory session is empty; the thread's most
	// recent checkpoint still carries the entity graph.
	if len(sess.entities.All()) == 0 {
		c.restoreEntitiesFromThread(ctx, req.ThreadID, sess)
	}

	plan, err := c.planner.Plan(ctx, req.Query, planner.Context{Timezone: req.Timezone})
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	log.Info("Plan ready",
		"parallel", len(plan.Parallel),
		"sequential", len(plan.Sequential),
		"domains", plan.Analysis.Domains)

	return c.execute(ctx, sess, req, plan, plan.Parallel, plan.Sequential, nil)
}

// restoreEntitiesFromThread rebuilds the session entity graph from the
// thread's latest checkpoint, when one exists. Best-effort: failures leave
// the graph empty.
func (c *Coordinator) restoreEntitiesFromThread(ctx context.Context, threadID string, sess *session) {
	cp, err := c.checkpoints.GetLatestByThread(ctx, threadID)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			slog.Warn("Could not load thread checkpoint", "thread_id", threadID, "error", err)
		}
		return
	}

	var env runEnvelope
	if err := json.Unmarshal(cp.Channels, &env); err != nil || len(env.Entities) == 0 {
		return
	}
	restored := entity.NewGraph(c.cfg.Entity.MaxHistoryPerType)
	if err := json.Unmarshal(env.Entities, restored); err != nil {
		return
	}
	sess.entities = restored
}

// execute dispatches parallel steps concurrently, then sequential steps in
// order, checkpointing on the first suspension.
func (c *Coordinator) execute(
	ctx context.Context,
	sess *session,
	req models.QueryRequest,
	plan *models.ExecutionPlan,
	parallelSteps, sequentialSteps []models.DomainStep,
	prior []models.DomainOutcome,
) (*models.RunResult, error) {
	outcomes := append([]models.DomainOutcome{}, prior...)
	var pendingAfterSuspend []models.DomainStep
	var suspended *suspension
	var suspendedStep models.DomainStep

	// Parallel group: each step works on its own clone of the session
	// graph; updates merge after the join.
	if len(parallelSteps) > 0 {
		results := make([]*stepResult, len(parallelSteps))
		g, gctx := errgroup.WithContext(ctx)
		for i, step := range parallelSteps {
			g.Go(func() error {
				clone := entity.Merge(sess.entities, entity.NewGraph(0))
				res, err := c.runStep(gctx, sess, req, step, clone)
				if err != nil {
					res = &stepResult{Outcome: models.DomainOutcome{
						Domain: step.Domain, Error: err.Error(),
						Response: "Error: " + err.Error(),
					}}
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()

		for i, res := range results {
			if res.Entities != nil {
				sess.entities = entity.Merge(sess.entities, res.Entities)
			}
			if res.Suspended != nil {
				if suspended == nil {
					suspended = res.Suspended
					suspendedStep = parallelSteps[i]
				} else {
					// Later simultaneous suspensions re-run after resume.
					pendingAfterSuspend = append(pendingAfterSuspend, parallelSteps[i])
				}
				continue
			}
			outcomes = append(outcomes, res.Outcome)
		}
	}

	// Sequential chain: earlier entity updates are fully visible to later
	// steps.
	for i, step := range sequentialSteps {
		if suspended != nil {
			pendingAfterSuspend = append(pendingAfterSuspend, sequentialSteps[i:]...)
			break
		}
		res, err := c.runStep(ctx, sess, req, step, sess.entities)
		if err != nil {
			var authErr *bsa.AuthError
			if errors.As(err, &authErr) {
				// Credentials are gone; no step can proceed.
				return &models.RunResult{
					Success:    false,
					Response:   "Your session has expired. Please sign in again.",
					Domains:    outcomes,
					Interrupts: []models.Interrupt{{Type: models.InterruptAuthRequired}},
				}, nil
			}
			outcomes = append(outcomes, models.DomainOutcome{
				Domain: step.Domain, Error: err.Error(),
				Response: "Error: " + err.Error(),
			})
			continue
		}
		if res.Entities != nil {
			sess.entities = entity.Merge(sess.entities, res.Entities)
		}
		if res.Suspended != nil {
			suspended = res.Suspended
			suspendedStep = step
			continue
		}
		outcomes = append(outcomes, res.Outcome)
	}

	if suspended != nil {
		return c.checkpointAndReturn(ctx, sess, req, plan, outcomes, pendingAfterSuspend, suspendedStep, suspended)
	}

	return c.respond(req, plan, outcomes, sess), nil
}

// checkpointAndReturn persists the suspension and surfaces the interrupt.
func (c *Coordinator) checkpointAndReturn(
	ctx context.Context,
	sess *session,
	req models.QueryRequest,
	plan *models.ExecutionPlan,
	outcomes []models.DomainOutcome,
	pending []models.DomainStep,
	step models.DomainStep,
	susp *suspension,
) (*models.RunResult, error) {
	runID := c.newID()

	entitiesJSON, err := json.Marshal(sess.entities)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize entities: %w", err)
	}

	env := &runEnvelope{
		Query:     req.Query,
		OrgID:     req.OrgID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		ThreadID:  req.ThreadID,
		Timezone:  req.Timezone,

		Plan:            plan,
		Outcomes:        outcomes,
		PendingSteps:    pending,
		SuspendedStep:   step,
		SuspendedNodeID: susp.NodeID,
		DomainState:     susp.State,
		Entities:        entitiesJSON,
	}
	channels, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize run envelope: %w", err)
	}

	cp := &models.Checkpoint{
		RunID:     runID,
		ThreadID:  req.ThreadID,
		Domain:    step.Domain,
		NodeID:    susp.NodeID,
		Channels:  channels,
		Interrupt: susp.Interrupt,
		CreatedAt: c.now(),
	}
	if err := c.checkpoints.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	slog.Info("Run suspended",
		"thread_id", req.ThreadID,
		"run_id", runID,
		"domain", step.Domain,
		"node", susp.NodeID,
		"interrupt", susp.Interrupt.Type)

	return &models.RunResult{
		Success:       true,
		Response:      susp.Interrupt.Message(),
		Domains:       outcomes,
		Interrupts:    []models.Interrupt{*susp.Interrupt},
		ExecutionPlan: plan,
		CheckpointID:  runID,
	}, nil
}

// Resume continues a suspended run with the user's decision.
func (c *Coordinator) Resume(ctx context.Context, req models.ResumeRequest, creds bsa.CredentialProvider) (result *models.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Resume panicked", "checkpoint_id", req.CheckpointID, "panic", r)
			result = nil
			err = fmt.Errorf("resume failed: %v", r)
		}
	}()

	if req.CheckpointID == "" {
		return nil, services.NewValidationError("checkpoint_id", "required")
	}
	if req.Payload == nil {
		return nil, services.NewValidationError("payload", "required")
	}

	cp, err := c.checkpoints.Get(ctx, req.CheckpointID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, fmt.Errorf("checkpoint %s not found: %w", req.CheckpointID, err)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var env runEnvelope
	if err := json.Unmarshal(cp.Channels, &env); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	log := slog.With("thread_id", env.ThreadID, "run_id", cp.RunID)
	log.Info("Resuming run", "domain", env.SuspendedStep.Domain, "node", env.SuspendedNodeID)

	gw := c.newGateway(bsa.Auth{OrgID: env.OrgID, Creds: creds})
	sess := c.sessions.get(env.ThreadID, gw, c.resolverOpts(), c.cfg.Entity.MaxHistoryPerType)

	// Restore the session graph from the checkpoint so references survive
	// process restarts between suspension and resume.
	if len(env.Entities) > 0 {
		restored := entity.NewGraph(c.cfg.Entity.MaxHistoryPerType)
		if err := json.Unmarshal(env.Entities, restored); err == nil {
			sess.entities = entity.Merge(restored, sess.entities)
		}
	}

	// Each resume consumes exactly one checkpoint.
	if err := c.checkpoints.Delete(ctx, cp.RunID); err != nil {
		log.Warn("Failed to delete consumed checkpoint", "error", err)
	}

	runReq := models.QueryRequest{
		Query: env.Query, OrgID: env.OrgID, UserID: env.UserID,
		SessionID: env.SessionID, ThreadID: env.ThreadID, Timezone: env.Timezone,
	}

	res, err := c.resumeStep(ctx, sess, &env, req.Payload, sess.entities)
	if err != nil {
		env.Outcomes = append(env.Outcomes, models.DomainOutcome{
			Domain: env.SuspendedStep.Domain, Error: err.Error(),
			Response: "Error: " + err.Error(),
		})
		return c.execute(ctx, sess, runReq, env.Plan, nil, env.PendingSteps, env.Outcomes)
	}

	if res.Entities != nil {
		sess.entities = entity.Merge(sess.entities, res.Entities)
	}
	if res.Suspended != nil {
		// The same step suspended again (e.g. disambiguation then
		// approval); checkpoint and surface the new interrupt.
		return c.checkpointAndReturn(ctx, sess, runReq, env.Plan, env.Outcomes, env.PendingSteps, env.SuspendedStep, res.Suspended)
	}

	env.Outcomes = append(env.Outcomes, res.Outcome)

	// A rejection cancels the run: the checkpoint is consumed, no CRM
	// writes happen, and pending steps are abandoned.
	if req.Payload.Type == models.InterruptApprovalRequired && req.Payload.Decision == models.DecisionReject {
		return c.respond(runReq, env.Plan, env.Outcomes, sess), nil
	}

	return c.execute(ctx, sess, runReq, env.Plan, nil, env.PendingSteps, env.Outcomes)
}

// respond assembles the final result: domain responses concatenated in
// plan order, merged entities attached.
func (c *Coordinator) respond(req models.QueryRequest, plan *models.ExecutionPlan, outcomes []models.DomainOutcome, sess *session) *models.RunResult {
	ordered := orderOutcomes(plan, outcomes)

	var parts []string
	success := true
	for _, o := range ordered {
		if o.Response != "" {
			parts = append(parts, o.Response)
		}
		if o.Error != "" {
			success = false
		}
	}

	return &models.RunResult{
		Success:       success,
		Response:      strings.Join(parts, "\n\n"),
		Domains:       ordered,
		Entities:      sess.entities.All(),
		ExecutionPlan: plan,
	}
}

// orderOutcomes sorts outcomes into plan order.
func orderOutcomes(plan *models.ExecutionPlan, outcomes []models.DomainOutcome) []models.DomainOutcome {
	rank := make(map[models.Domain]int)
	for i, step := range plan.Steps() {
		if _, ok := rank[step.Domain]; !ok {
			rank[step.Domain] = i
		}
	}

	ordered := append([]models.DomainOutcome{}, outcomes...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank[ordered[j].Domain] < rank[ordered[j-1].Domain]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// EndThread discards a thread's session state (entity graph and resolver
// caches).
func (c *Coordinator) EndThread(threadID string) {
	c.sessions.drop(threadID)
}

// BreakerStates exposes the circuit table snapshot for health reporting.
func (c *Coordinator) BreakerStates() map[string]string {
	return c.executor.States()
}
