package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rendis/stepflow/internal/executors"
	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/internal/logging"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

// DefaultPoolSize is the default worker pool concurrency.
const DefaultPoolSize = 10

// SchedulerConfig holds tunables for the round scheduler.
type SchedulerConfig struct {
	PoolSize int // max concurrent step goroutines
}

// Scheduler drives a single execution through scheduling rounds. Each round
// it collects the steps whose dependencies are satisfied, runs them
// concurrently on the worker pool, then merges their variable deltas before
// computing the next round. Cancellation and the run-level deadline are only
// observed at round boundaries; attempts already in flight finish on their own.
type Scheduler struct {
	registry *executors.Registry
	cel      *expressions.CELEngine
	store    store.Store
	pool     *WorkerPool
	logger   *slog.Logger
}

// NewScheduler creates a scheduler backed by the given executor registry.
func NewScheduler(registry *executors.Registry, cel *expressions.CELEngine, st store.Store, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		registry: registry,
		cel:      cel,
		store:    st,
		pool:     NewWorkerPool(size),
		logger:   logger,
	}
}

// Shutdown stops the underlying worker pool after in-flight work completes.
func (s *Scheduler) Shutdown() {
	s.pool.Shutdown()
}

// Outcome is the terminal result of a run.
type Outcome struct {
	Status schema.ExecutionStatus
	Error  string
}

// stepOutcome carries one step's result and variable delta out of a round.
type stepOutcome struct {
	stepID string
	result *schema.StepResult
	delta  map[string]any
}

// Run executes the definition snapshotted in exec until a terminal status is
// reached. It mutates exec.Variables and exec.StepResults in place; the caller
// persists the final record. The cancelled flag is polled at round boundaries.
func (s *Scheduler) Run(ctx context.Context, exec *store.Execution, cancelled *atomic.Bool) Outcome {
	ctx = logging.WithIDs(ctx, exec.WorkflowName, exec.ID, "")
	logger := logging.LogWith(ctx, s.logger)

	def := &exec.Definition
	if exec.Variables == nil {
		exec.Variables = make(map[string]any)
	}
	if exec.StepResults == nil {
		exec.StepResults = make(map[string]*schema.StepResult, len(def.Steps))
	}
	for i := range def.Steps {
		id := def.Steps[i].ID
		if _, ok := exec.StepResults[id]; !ok {
			exec.StepResults[id] = &schema.StepResult{StepID: id, Status: schema.StepStatusPending}
		}
	}

	var deadline time.Time
	if def.Timeout != "" {
		if d, err := time.ParseDuration(def.Timeout); err == nil {
			deadline = time.Now().Add(d)
		}
	}

	round := 0
	for {
		if cancelled.Load() {
			logger.InfoContext(ctx, "execution cancelled", slog.Int("round", round))
			return Outcome{Status: schema.ExecutionStatusCancelled, Error: "cancelled by request"}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			logger.WarnContext(ctx, "execution deadline exceeded", slog.Int("round", round))
			return Outcome{
				Status: schema.ExecutionStatusFailed,
				Error:  schema.NewErrorf(schema.ErrCodeTimeout, "execution exceeded timeout %s", def.Timeout).Error(),
			}
		}

		ready := readySteps(def, exec.StepResults)
		if len(ready) == 0 {
			return s.terminalOutcome(ctx, logger, def, exec.StepResults)
		}

		logger.DebugContext(ctx, "scheduling round", slog.Int("round", round), slog.Int("ready", len(ready)))

		outcomes := s.runRound(ctx, exec, ready)

		// Deltas apply sequentially in ready-set order, each key as a whole
		// binding assignment. A later step's delta wins on collisions within
		// the same round, and re-assigning a map-valued variable replaces it
		// rather than merging into the old value.
		for _, oc := range outcomes {
			exec.StepResults[oc.stepID] = oc.result
			for k, v := range oc.delta {
				exec.Variables[k] = v
			}
		}

		s.persistSnapshot(ctx, logger, exec)
		round++
	}
}

// runRound dispatches every ready step and blocks until the round completes.
// Steps whose condition evaluates false are recorded as skipped without
// touching the pool. Results come back in ready-set order.
func (s *Scheduler) runRound(ctx context.Context, exec *store.Execution, ready []*schema.WorkflowStep) []*stepOutcome {
	// Variables are read-only for the duration of a round; every step sees
	// the same pre-round snapshot.
	roundVars := exec.Variables

	outcomes := make([]*stepOutcome, len(ready))
	var tasks []func(ctx context.Context) error
	var taskSlot []int

	for i, step := range ready {
		if step.Condition != "" && !s.cel.EvaluateCondition(ctx, step.Condition, roundVars) {
			now := time.Now().UTC()
			outcomes[i] = &stepOutcome{
				stepID: step.ID,
				result: &schema.StepResult{StepID: step.ID, Status: schema.StepStatusSkipped, CompletedAt: &now},
			}
			continue
		}

		i, step := i, step
		tasks = append(tasks, func(ctx context.Context) error {
			result, delta := s.runStep(ctx, exec, step, roundVars)
			outcomes[i] = &stepOutcome{stepID: step.ID, result: result, delta: delta}
			if result.Status == schema.StepStatusFailed {
				return errors.New(result.Error)
			}
			return nil
		})
		taskSlot = append(taskSlot, i)
	}

	for j, err := range s.pool.Dispatch(ctx, tasks) {
		if err == nil {
			continue
		}
		i := taskSlot[j]
		now := time.Now().UTC()
		outcomes[i] = &stepOutcome{
			stepID: ready[i].ID,
			result: &schema.StepResult{
				StepID:      ready[i].ID,
				Status:      schema.StepStatusFailed,
				Error:       err.Error(),
				CompletedAt: &now,
			},
		}
	}
	return outcomes
}

// runStep executes one step through its attempt loop and returns the result
// plus the variable delta from the last successful attempt.
func (s *Scheduler) runStep(ctx context.Context, exec *store.Execution, step *schema.WorkflowStep, vars map[string]any) (*schema.StepResult, map[string]any) {
	ctx = logging.WithStepID(ctx, step.ID)
	logger := logging.LogWith(ctx, s.logger)

	started := time.Now().UTC()
	result := &schema.StepResult{
		StepID:    step.ID,
		Status:    schema.StepStatusRunning,
		StartedAt: &started,
	}

	executor, err := s.registry.Get(step.Kind)
	if err != nil {
		finishStep(result, started, err)
		return result, nil
	}

	config := expressions.SubstituteMap(step.Config, vars)

	var attemptTimeout time.Duration
	if step.Timeout != "" {
		attemptTimeout, _ = time.ParseDuration(step.Timeout)
	}

	maxAttempts := MaxAttempts(step.Retry)
	var delta map[string]any
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		attemptCtx := ctx
		cancel := func() {}
		if attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, attemptTimeout)
		}
		out, execErr := executor.Execute(attemptCtx, executors.Input{
			ExecutionID: exec.ID,
			StepID:      step.ID,
			Config:      config,
			Variables:   vars,
		})
		cancel()

		if execErr == nil {
			result.Status = schema.StepStatusCompleted
			result.Result = out.Result
			delta = out.Delta
			lastErr = nil
			break
		}
		if errors.Is(execErr, context.DeadlineExceeded) {
			execErr = schema.NewErrorf(schema.ErrCodeTimeout,
				"step attempt exceeded timeout %s", step.Timeout).WithStep(step.ID).WithCause(execErr)
		}
		lastErr = execErr
		logger.WarnContext(ctx, "step attempt failed",
			slog.Int("attempt", attempt), slog.String("error", execErr.Error()))

		if attempt < maxAttempts && IsRetryableError(execErr) {
			if waitErr := WaitForRetry(ctx, RetryDelay(step.Retry)); waitErr != nil {
				lastErr = waitErr
				break
			}
			continue
		}
		break
	}

	finishStep(result, started, lastErr)
	return result, delta
}

func finishStep(result *schema.StepResult, started time.Time, err error) {
	completed := time.Now().UTC()
	result.CompletedAt = &completed
	result.ExecutionTimeMs = completed.Sub(started).Milliseconds()
	if err != nil {
		result.Status = schema.StepStatusFailed
		result.Error = err.Error()
	} else if result.Status == schema.StepStatusRunning {
		result.Status = schema.StepStatusCompleted
	}
}

// readySteps returns pending steps whose dependencies are all satisfied, in
// definition order so round composition is deterministic.
func readySteps(def *schema.WorkflowDefinition, results map[string]*schema.StepResult) []*schema.WorkflowStep {
	var ready []*schema.WorkflowStep
	for i := range def.Steps {
		step := &def.Steps[i]
		res := results[step.ID]
		if res == nil || res.Status != schema.StepStatusPending {
			continue
		}
		ok := true
		for _, dep := range step.DependsOn {
			depRes := results[dep]
			if depRes == nil || !depRes.Status.Satisfies() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step)
		}
	}
	return ready
}

// terminalOutcome computes the final status once no step is runnable.
// Failed steps take precedence; otherwise pending steps that can never run
// indicate a dependency deadlock, typically a cycle in the graph.
func (s *Scheduler) terminalOutcome(ctx context.Context, logger *slog.Logger, def *schema.WorkflowDefinition, results map[string]*schema.StepResult) Outcome {
	var failed, pending []string
	for i := range def.Steps {
		res := results[def.Steps[i].ID]
		if res == nil {
			continue
		}
		switch res.Status {
		case schema.StepStatusFailed:
			failed = append(failed, res.StepID)
		case schema.StepStatusPending:
			pending = append(pending, res.StepID)
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		logger.InfoContext(ctx, "execution failed",
			slog.String("failed_steps", strings.Join(failed, ",")))
		return Outcome{
			Status: schema.ExecutionStatusFailed,
			Error: schema.NewErrorf(schema.ErrCodeStepFailed,
				"steps failed: %s", strings.Join(failed, ", ")).Error(),
		}
	}

	if len(pending) > 0 {
		diag := deadlockDiagnostic(def, results, pending)
		logger.WarnContext(ctx, "execution deadlocked", slog.String("diagnostic", diag))
		return Outcome{
			Status: schema.ExecutionStatusFailed,
			Error:  schema.NewError(schema.ErrCodeDeadlock, diag).Error(),
		}
	}

	logger.InfoContext(ctx, "execution completed")
	return Outcome{Status: schema.ExecutionStatusCompleted}
}

// deadlockDiagnostic names each stuck step together with its unmet dependencies.
func deadlockDiagnostic(def *schema.WorkflowDefinition, results map[string]*schema.StepResult, pending []string) string {
	var parts []string
	for _, id := range pending {
		step := def.StepByID(id)
		if step == nil {
			continue
		}
		var unmet []string
		for _, dep := range step.DependsOn {
			if res := results[dep]; res == nil || !res.Status.Satisfies() {
				unmet = append(unmet, dep)
			}
		}
		parts = append(parts, fmt.Sprintf("%s waits on [%s]", id, strings.Join(unmet, ", ")))
	}
	return "no runnable steps, dependency deadlock: " + strings.Join(parts, "; ")
}

// persistSnapshot writes the current variables and step results after a
// round. Failures are logged and tolerated; the in-memory state stays
// authoritative until the run finishes. The status field is left untouched
// so an eagerly persisted cancellation is not reverted mid-round.
func (s *Scheduler) persistSnapshot(ctx context.Context, logger *slog.Logger, exec *store.Execution) {
	err := s.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		Variables:   exec.Variables,
		StepResults: exec.StepResults,
	})
	if err != nil {
		logger.WarnContext(ctx, "snapshot persist failed", slog.String("error", err.Error()))
	}
}
