// Package registry implements the Task Registry (spec §4.1): the
// startup-time, immutable-after-init mapping from task name to its kind,
// queue, priority, retry policy, and service label — the source of truth
// every other orchestrator component (broker, worker, lifecycle) dispatches
// against.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// Body is a registered task's executable implementation. args/kwargs mirror
// spec §4.2's broker envelope shape; the return value is either a
// *core.ResultEnvelope (success) or an error (failure, possibly retryable).
type Body func(ctx *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error)

// Entry is a task's full registered configuration: its fixed kind config
// plus the body the Worker Runtime invokes.
type Entry struct {
	Name   string
	Kind   core.TaskKind
	Config core.KindConfig
	Body   Body
}

// Registry is the Task Registry (C1). Safe for concurrent reads after
// startup; registration is expected to happen from init-time call sites
// before any worker pool starts consuming queues.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  core.ComponentAwareLogger
}

// New returns an empty Registry. logger may be nil.
func New(logger core.ComponentAwareLogger) *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Register attaches body to name under kind, using cfg as the kind's fixed
// dispatch configuration (queue, priority, retry policy, service label).
// Re-registering an existing name is a startup error (spec §4.1), as is an
// invalid kind or a nil body.
func (r *Registry) Register(name string, kind core.TaskKind, cfg core.KindConfig, body Body) error {
	if name == "" {
		return fmt.Errorf("register task: name cannot be empty: %w", core.ErrInvalidTaskKind)
	}
	if !kind.Valid() {
		return fmt.Errorf("register task %q: invalid kind %q: %w", name, kind, core.ErrInvalidTaskKind)
	}
	if body == nil {
		return fmt.Errorf("register task %q: body cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register task %q: %w", name, core.ErrTaskAlreadyRegistered)
	}

	r.entries[name] = Entry{Name: name, Kind: kind, Config: cfg, Body: body}

	if r.logger != nil {
		r.logger.Info("task registered", map[string]interface{}{
			"operation": "task_register",
			"task_name": name,
			"kind":      string(kind),
			"queue":     cfg.Queue,
			"service":   cfg.Service,
			"priority":  int(cfg.Priority),
		})
	}
	telemetry.Counter("registry.tasks.registered", "kind", string(kind))

	return nil
}

// MustRegister registers a task and panics on error, for call sites where a
// registration failure is a programmer error that should fail fast at
// startup rather than surface at dispatch time. pkg/tasks.Register uses
// Register and returns the error instead.
func (r *Registry) MustRegister(name string, kind core.TaskKind, cfg core.KindConfig, body Body) {
	if err := r.Register(name, kind, cfg, body); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
}

// Get returns the registered entry for name. It never mutates the registry
// (spec §4.1's "never mutates after startup" contract).
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("task %q: %w", name, core.ErrTaskNotRegistered)
	}
	return entry, nil
}

// ListByQueue returns the names of every task registered against queue,
// sorted (spec §4.1, §5).
func (r *Registry) ListByQueue(queue string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, entry := range r.entries {
		if entry.Config.Queue == queue {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Queues returns the distinct set of queues declared across all registered
// tasks, sorted.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, entry := range r.entries {
		seen[entry.Config.Queue] = true
	}

	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}

// Names returns every registered task name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
