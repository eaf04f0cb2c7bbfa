package executors

import (
	"sync"

	"github.com/rendis/stepflow/pkg/schema"
)

// Registry is a thread-safe step-kind to executor lookup.
type Registry struct {
	mu        sync.RWMutex
	executors map[schema.StepKind]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[schema.StepKind]Executor),
	}
}

// Register adds an executor to the registry. Returns error on duplicate kind.
func (r *Registry) Register(exec Executor) error {
	if exec == nil {
		return schema.NewError(schema.ErrCodeValidation, "executor is nil")
	}
	kind := exec.Kind()
	if kind == "" {
		return schema.NewError(schema.ErrCodeValidation, "executor kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "executor for kind %q already registered", kind)
	}

	r.executors[kind] = exec
	return nil
}

// Get retrieves the executor for a step kind.
func (r *Registry) Get(kind schema.StepKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no executor registered for step kind %q", kind)
	}
	return exec, nil
}

// Has checks if an executor is registered for a kind.
func (r *Registry) Has(kind schema.StepKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[kind]
	return ok
}

// Kinds returns the registered step kinds.
func (r *Registry) Kinds() []schema.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]schema.StepKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	return kinds
}
