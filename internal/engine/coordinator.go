package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dario.cat/mergo"

	"github.com/rendis/stepflow/internal/logging"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/internal/validation"
	"github.com/rendis/stepflow/pkg/schema"
)

// Coordinator owns the definition registry and the lifecycle of executions.
// Starting an execution snapshots the named definition and hands the run to
// the scheduler on a detached goroutine; Cancel flips a flag the scheduler
// polls at round boundaries.
type Coordinator struct {
	store     store.Store
	scheduler *Scheduler
	validator *validation.JSONSchemaValidator
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]*runHandle
	wg      sync.WaitGroup
}

// runHandle tracks a single in-flight execution. The preempted flag marks
// that Cancel already persisted the terminal record, so the run goroutine
// must not write its own.
type runHandle struct {
	executionID string
	cancelled   atomic.Bool
	preempted   atomic.Bool
}

// NewCoordinator creates a coordinator using the given store and scheduler.
func NewCoordinator(st store.Store, scheduler *Scheduler, logger *slog.Logger) (*Coordinator, error) {
	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     st,
		scheduler: scheduler,
		validator: validator,
		logger:    logger,
		running:   make(map[string]*runHandle),
	}, nil
}

// --- Definitions ---

// SaveDefinition validates and stores a definition under its name,
// replacing any previous version.
func (c *Coordinator) SaveDefinition(ctx context.Context, def *schema.WorkflowDefinition) error {
	if err := c.validator.ValidateDocument(def); err != nil {
		return err
	}
	if err := validation.ValidateDefinition(def); err != nil {
		return err
	}
	return c.store.SaveDefinition(ctx, &store.Definition{Name: def.Name, Definition: *def})
}

// GetDefinition returns the stored definition with the given name.
func (c *Coordinator) GetDefinition(ctx context.Context, name string) (*schema.WorkflowDefinition, error) {
	rec, err := c.store.GetDefinition(ctx, name)
	if err != nil {
		return nil, err
	}
	return &rec.Definition, nil
}

// ListDefinitions returns all stored definitions.
func (c *Coordinator) ListDefinitions(ctx context.Context) ([]*schema.WorkflowDefinition, error) {
	recs, err := c.store.ListDefinitions(ctx, store.DefinitionFilter{})
	if err != nil {
		return nil, err
	}
	defs := make([]*schema.WorkflowDefinition, 0, len(recs))
	for _, r := range recs {
		d := r.Definition
		defs = append(defs, &d)
	}
	return defs, nil
}

// DeleteDefinition removes a definition. The store refuses while executions
// of it are still active.
func (c *Coordinator) DeleteDefinition(ctx context.Context, name string) error {
	return c.store.DeleteDefinition(ctx, name)
}

// --- Executions ---

// Start snapshots the named definition and launches a new execution.
// The variable scope is seeded in three layers: the definition's declared
// variables, then the caller's input, then the caller's runtime overrides.
// Input is recorded on the execution record as given; runtime values only
// land in the scope. The returned record reflects the running state;
// progress is observed via Get.
func (c *Coordinator) Start(ctx context.Context, workflowName string, input, runtime map[string]any) (*store.Execution, error) {
	rec, err := c.store.GetDefinition(ctx, workflowName)
	if err != nil {
		return nil, err
	}

	variables := make(map[string]any)
	for _, layer := range []map[string]any{rec.Definition.Variables, input, runtime} {
		if len(layer) == 0 {
			continue
		}
		if err := mergo.Merge(&variables, layer, mergo.WithOverride); err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "seed variable scope").WithCause(err)
		}
	}

	stepResults := make(map[string]*schema.StepResult, len(rec.Definition.Steps))
	for i := range rec.Definition.Steps {
		id := rec.Definition.Steps[i].ID
		stepResults[id] = &schema.StepResult{StepID: id, Status: schema.StepStatusPending}
	}

	now := time.Now().UTC()
	exec := &store.Execution{
		ID:           uuid.New().String(),
		WorkflowName: workflowName,
		Definition:   rec.Definition,
		Status:       schema.ExecutionStatusPending,
		Input:        input,
		Variables:    variables,
		StepResults:  stepResults,
		CreatedAt:    now,
	}
	if err := c.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	handle := &runHandle{executionID: exec.ID}
	c.mu.Lock()
	c.running[exec.ID] = handle
	c.mu.Unlock()

	started := time.Now().UTC()
	running := schema.ExecutionStatusRunning
	if err := c.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{Status: &running, StartedAt: &started}); err != nil {
		c.release(exec.ID)
		return nil, err
	}
	exec.Status = running
	exec.StartedAt = &started

	c.wg.Add(1)
	go c.runExecution(exec, handle)

	return exec, nil
}

// runExecution drives the scheduler and persists the terminal state.
// Detached from the caller's context: a client going away must not abort
// the run, only Cancel does.
func (c *Coordinator) runExecution(exec *store.Execution, handle *runHandle) {
	defer c.wg.Done()
	defer c.release(exec.ID)

	ctx := logging.WithIDs(context.Background(), exec.WorkflowName, exec.ID, "")
	logger := logging.LogWith(ctx, c.logger)
	logger.InfoContext(ctx, "execution started", slog.Int("steps", len(exec.Definition.Steps)))

	outcome := c.scheduler.Run(ctx, exec, &handle.cancelled)

	if err := ValidateExecutionTransition(schema.ExecutionStatusRunning, outcome.Status); err != nil {
		logger.ErrorContext(ctx, "scheduler returned invalid terminal status",
			slog.String("status", string(outcome.Status)))
		outcome.Status = schema.ExecutionStatusFailed
	}

	update := store.ExecutionUpdate{
		Variables:   exec.Variables,
		StepResults: exec.StepResults,
	}
	// When Cancel already wrote the terminal record, only the final
	// variables and step results still need persisting.
	if !(outcome.Status == schema.ExecutionStatusCancelled && handle.preempted.Load()) {
		completed := time.Now().UTC()
		update.Status = &outcome.Status
		update.CompletedAt = &completed
		if outcome.Error != "" {
			update.Error = &outcome.Error
		}
	}
	if err := c.store.UpdateExecution(ctx, exec.ID, update); err != nil {
		logger.ErrorContext(ctx, "persist terminal state failed", slog.String("error", err.Error()))
	}
	logger.InfoContext(ctx, "execution finished", slog.String("status", string(outcome.Status)))
}

// Cancel cancels an execution. The record is marked Cancelled with a
// completion time right away; a running scheduler observes the flag at its
// next round boundary and winds down without writing a second terminal
// state. Terminal executions yield a conflict.
func (c *Coordinator) Cancel(ctx context.Context, executionID string) error {
	c.mu.Lock()
	handle := c.running[executionID]
	c.mu.Unlock()
	if handle != nil {
		handle.cancelled.Store(true)
	}

	exec, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"execution %q already %s", executionID, exec.Status)
	}
	if err := ValidateExecutionTransition(exec.Status, schema.ExecutionStatusCancelled); err != nil {
		return err
	}

	cancelled := schema.ExecutionStatusCancelled
	completed := time.Now().UTC()
	reason := "cancelled by request"
	if err := c.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{
		Status:      &cancelled,
		Error:       &reason,
		CompletedAt: &completed,
	}); err != nil {
		return err
	}
	if handle != nil {
		handle.preempted.Store(true)
	}
	return nil
}

// Get returns the execution record with the given id.
func (c *Coordinator) Get(ctx context.Context, executionID string) (*store.Execution, error) {
	return c.store.GetExecution(ctx, executionID)
}

// List returns executions matching the filter.
func (c *Coordinator) List(ctx context.Context, filter store.ExecutionFilter) ([]*store.Execution, error) {
	return c.store.ListExecutions(ctx, filter)
}

// Wait blocks until all in-flight executions have finished. Used during
// shutdown after cancelling what should not keep running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// CancelAll flags every in-flight execution for cancellation.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.running {
		h.cancelled.Store(true)
	}
}

func (c *Coordinator) release(executionID string) {
	c.mu.Lock()
	delete(c.running, executionID)
	c.mu.Unlock()
}
