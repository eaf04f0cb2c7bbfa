package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// MemoryStore is an in-memory Store implementation. It backs tests and
// ephemeral deployments where persistence across restarts is not needed.
type MemoryStore struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	executions  map[string]*Execution
	jobs        map[string]*ScheduledJob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions: make(map[string]*Definition),
		executions:  make(map[string]*Execution),
		jobs:        make(map[string]*ScheduledJob),
	}
}

// --- Definitions ---

func (s *MemoryStore) SaveDefinition(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneDefinition(def)
	if existing, ok := s.definitions[def.Name]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.definitions[def.Name] = cp
	return nil
}

func (s *MemoryStore) GetDefinition(_ context.Context, name string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[name]
	if !ok {
		return nil, storeNotFound("definition", name)
	}
	return cloneDefinition(def), nil
}

func (s *MemoryStore) ListDefinitions(_ context.Context, filter DefinitionFilter) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defs := make([]*Definition, 0, len(s.definitions))
	for _, d := range s.definitions {
		defs = append(defs, cloneDefinition(d))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return paginate(defs, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) DeleteDefinition(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[name]; !ok {
		return storeNotFound("definition", name)
	}
	active := 0
	for _, e := range s.executions {
		if e.WorkflowName == name && !e.Status.IsTerminal() {
			active++
		}
	}
	if active > 0 {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"definition %q has %d active executions", name, active)
	}
	delete(s.definitions, name)
	return nil
}

// --- Executions ---

func (s *MemoryStore) CreateExecution(_ context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %q already exists", exec.ID)
	}
	cp := cloneExecution(exec)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.executions[exec.ID] = cp
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, id string, update ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return storeNotFound("execution", id)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.Variables != nil {
		exec.Variables = cloneMap(update.Variables)
	}
	if update.StepResults != nil {
		exec.StepResults = cloneResults(update.StepResults)
	}
	if update.Error != nil {
		exec.Error = *update.Error
	}
	if update.StartedAt != nil {
		t := *update.StartedAt
		exec.StartedAt = &t
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		exec.CompletedAt = &t
	}
	exec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var execs []*Execution
	for _, e := range s.executions {
		if filter.WorkflowName != "" && e.WorkflowName != filter.WorkflowName {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
			continue
		}
		execs = append(execs, cloneExecution(e))
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].CreatedAt.After(execs[j].CreatedAt) })
	return paginate(execs, filter.Limit, filter.Offset), nil
}

// --- Scheduled Jobs ---

func (s *MemoryStore) CreateScheduledJob(_ context.Context, job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %q already exists", job.ID)
	}
	cp := *job
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) GetScheduledJob(_ context.Context, id string) (*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, storeNotFound("scheduled_job", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateScheduledJob(_ context.Context, id string, update ScheduledJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return storeNotFound("scheduled_job", id)
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		t := *update.LastRunAt
		job.LastRunAt = &t
	}
	if update.NextRunAt != nil {
		t := *update.NextRunAt
		job.NextRunAt = &t
	}
	if update.LastRunStatus != "" {
		job.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledJobs(_ context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*ScheduledJob
	for _, j := range s.jobs {
		if filter.WorkflowName != "" && j.WorkflowName != filter.WorkflowName {
			continue
		}
		if filter.Enabled != nil && j.Enabled != *filter.Enabled {
			continue
		}
		cp := *j
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func (s *MemoryStore) DeleteScheduledJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return storeNotFound("scheduled_job", id)
	}
	delete(s.jobs, id)
	return nil
}

// --- Maintenance ---

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Vacuum(context.Context) error  { return nil }
func (s *MemoryStore) Close() error                  { return nil }

// --- Helpers ---

func cloneDefinition(d *Definition) *Definition {
	cp := *d
	raw, _ := json.Marshal(d.Definition)
	_ = json.Unmarshal(raw, &cp.Definition)
	return &cp
}

func cloneExecution(e *Execution) *Execution {
	cp := *e
	raw, _ := json.Marshal(e.Definition)
	_ = json.Unmarshal(raw, &cp.Definition)
	cp.Input = cloneMap(e.Input)
	cp.Variables = cloneMap(e.Variables)
	cp.StepResults = cloneResults(e.StepResults)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	raw, _ := json.Marshal(m)
	_ = json.Unmarshal(raw, &cp)
	return cp
}

func cloneResults(m map[string]*schema.StepResult) map[string]*schema.StepResult {
	if m == nil {
		return nil
	}
	cp := make(map[string]*schema.StepResult, len(m))
	for k, v := range m {
		r := *v
		cp[k] = &r
	}
	return cp
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
