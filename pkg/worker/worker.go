// Package worker implements the Worker Runtime (C3, spec §4.3): a pool of
// goroutines consuming one broker queue, each constructing a TaskContext per
// delivered message, invoking the registered task body, and handing the
// outcome to the Task Lifecycle Manager for exactly one terminal call per
// attempt.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/lifecycle"
	"github.com/grievanceplatform/orchestrator/pkg/registry"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// ChordNotifier reports one chord member's terminal result, triggering the
// chord's aggregating callback once every member has reported (spec §4.7's
// chord primitive). Defined narrowly here, satisfied by *broker.Broker's
// NotifyChordMember, so the worker depends on the capability it needs
// rather than importing pkg/pipeline.
type ChordNotifier interface {
	NotifyChordMember(ctx context.Context, chordID string, result *core.ResultEnvelope) (bool, error)
}

// PoolConfig configures a worker Pool.
type PoolConfig struct {
	// WorkerCount is the number of concurrent goroutines consuming the pool's
	// queue.
	WorkerCount int
	// DequeueTimeout bounds each worker's blocking wait for the next envelope.
	DequeueTimeout time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight attempts.
	ShutdownTimeout time.Duration
	// DefaultTaskTimeout bounds a single task body invocation.
	DefaultTaskTimeout time.Duration
}

// DefaultPoolConfig returns sensible worker pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkerCount:        5,
		DequeueTimeout:     30 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		DefaultTaskTimeout: 30 * time.Minute,
	}
}

// Pool is the Worker Runtime bound to a single broker queue (spec §5's
// scheduling model: "parallel worker processes consume from named queues").
// Run one Pool per queue a deployment wants dedicated capacity for.
type Pool struct {
	queue     string
	broker    *broker.Broker
	registry  *registry.Registry
	lifecycle *lifecycle.Manager
	status    core.StatusPublisher
	chord     ChordNotifier
	logger    core.ComponentAwareLogger
	config    PoolConfig

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     atomic.Bool
	activeCount atomic.Int32
	workerIDCtr atomic.Int32
}

// New returns a Pool consuming queue. config's zero values are replaced with
// DefaultPoolConfig's.
func New(queue string, brk *broker.Broker, reg *registry.Registry, lifecycleMgr *lifecycle.Manager, status core.StatusPublisher, logger core.ComponentAwareLogger, config PoolConfig) *Pool {
	defaults := DefaultPoolConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = defaults.DequeueTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.DefaultTaskTimeout <= 0 {
		config.DefaultTaskTimeout = defaults.DefaultTaskTimeout
	}

	return &Pool{
		queue:     queue,
		broker:    brk,
		registry:  reg,
		lifecycle: lifecycleMgr,
		status:    status,
		logger:    logger,
		config:    config,
	}
}

// SetChordNotifier wires chord-completion reporting into the pool. A Pool
// with no notifier set (the default) simply never reports chord membership,
// which is correct for queues that never run chord members.
func (p *Pool) SetChordNotifier(chord ChordNotifier) {
	p.chord = chord
}

// Start launches the pool's worker goroutines and blocks until ctx is
// canceled or Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return fmt.Errorf("worker pool for queue %q already running", p.queue)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if p.logger != nil {
		p.logger.Info("starting worker pool", map[string]interface{}{
			"operation":    "worker_pool_start",
			"queue":        p.queue,
			"worker_count": p.config.WorkerCount,
		})
	}

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.queue, p.workerIDCtr.Add(1))
		p.wg.Add(1)
		go p.runWorker(workerCtx, workerID)
	}

	p.wg.Wait()
	p.running.Store(false)
	return nil
}

// Stop gracefully stops the pool, waiting up to ShutdownTimeout for
// in-flight attempts to finish.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.running.Load() {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		return fmt.Errorf("worker pool %q: shutdown timeout exceeded", p.queue)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	p.activeCount.Add(1)
	defer p.activeCount.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := p.broker.Dequeue(ctx, p.queue, p.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Dequeue timeout or transient broker error: loop and retry.
			continue
		}
		if env == nil {
			continue
		}

		p.processEnvelope(ctx, workerID, *env)
	}
}

func (p *Pool) processEnvelope(parentCtx context.Context, workerID string, env broker.Envelope) {
	entry, err := p.registry.Get(env.TaskName)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("dropping envelope for unregistered task", map[string]interface{}{
				"operation": "worker_unregistered_task",
				"task_name": env.TaskName,
				"task_id":   env.TaskID,
				"worker_id": workerID,
			})
		}
		return
	}

	taskCtx, cancel := context.WithTimeout(context.Background(), p.config.DefaultTaskTimeout)
	defer cancel()
	taskCtx = telemetry.WithBaggage(taskCtx,
		"task_id", env.TaskID,
		"task_name", env.TaskName,
		"grievance_id", stringKwarg(env.Kwargs, "grievance_id"),
	)

	tc := &core.TaskContext{
		Context:     taskCtx,
		TaskID:      env.TaskID,
		TaskName:    env.TaskName,
		Service:     entry.Config.Service,
		Queue:       entry.Config.Queue,
		Attempt:     env.Attempt,
		GrievanceID: stringKwarg(env.Kwargs, "grievance_id"),
		SessionID:   stringKwarg(env.Kwargs, "session_id"),
		Status:      p.status,
	}
	if p.logger != nil {
		tc.Logger = p.logger.WithComponent(entry.Config.Service)
	}

	if err := p.lifecycle.Start(parentCtx, tc); err != nil && p.logger != nil {
		p.logger.Error("failed to emit STARTED frame", map[string]interface{}{
			"operation": "worker_start_emit_failed",
			"task_id":   tc.TaskID,
			"error":     err.Error(),
		})
	}

	start := time.Now()
	result, bodyErr := p.invoke(entry.Body, tc, env.Args, env.Kwargs)
	durationMs := float64(time.Since(start).Milliseconds())

	if bodyErr != nil {
		telemetry.RecordTaskAttempt(telemetry.ComponentWorker, env.TaskName, durationMs, "failed")
		telemetry.RecordTaskError(telemetry.ComponentWorker, env.TaskName, classifyTaskError(bodyErr))
		decision, err := p.lifecycle.Retry(parentCtx, tc, env, entry.Config.RetryPolicy, bodyErr)
		if err != nil && p.logger != nil {
			p.logger.Error("lifecycle retry handling failed", map[string]interface{}{
				"operation": "worker_retry_failed",
				"task_id":   tc.TaskID,
				"error":     err.Error(),
			})
		}
		if !decision.Retry {
			p.notifyChord(parentCtx, env, &core.ResultEnvelope{
				Status: core.TaskStatusFailed,
				TaskID: tc.TaskID,
				Error:  bodyErr.Error(),
			})
		}
		return
	}

	if err := p.lifecycle.Complete(parentCtx, tc, result); err != nil && p.logger != nil {
		p.logger.Error("failed to emit SUCCESS frame", map[string]interface{}{
			"operation": "worker_complete_emit_failed",
			"task_id":   tc.TaskID,
			"error":     err.Error(),
		})
	}
	telemetry.RecordTaskAttempt(telemetry.ComponentWorker, env.TaskName, durationMs, "succeeded")
	p.notifyChord(parentCtx, env, result)
}

// classifyTaskError buckets bodyErr into a low-cardinality error_kind label
// for RecordTaskError, distinguishing a panicking task body (worker bug)
// from an ordinary task-level failure (external dependency, bad input).
func classifyTaskError(err error) string {
	if strings.Contains(err.Error(), "panicked") {
		return "panic"
	}
	return "task_error"
}

// notifyChord reports env's terminal result to its chord, if it belongs to
// one (spec §4.7: "invokes callback(results) after all group members
// complete"). A no-op for non-chord envelopes or pools with no notifier set.
func (p *Pool) notifyChord(ctx context.Context, env broker.Envelope, result *core.ResultEnvelope) {
	if env.ChordID == "" || p.chord == nil {
		return
	}
	if _, err := p.chord.NotifyChordMember(ctx, env.ChordID, result); err != nil && p.logger != nil {
		p.logger.Error("chord member notification failed", map[string]interface{}{
			"operation": "worker_chord_notify_failed",
			"task_id":   env.TaskID,
			"chord_id":  env.ChordID,
			"error":     err.Error(),
		})
	}
}

// invoke runs body with panic recovery, turning a panic into an error so a
// misbehaving task body cannot take down the worker goroutine (spec §4.3's
// "always ensure exactly one terminal lifecycle call per attempt" — a panic
// must still resolve to FAILED/RETRYING, not a crashed worker).
func (p *Pool) invoke(body registry.Body, tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (result *core.ResultEnvelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err = fmt.Errorf("task %q panicked: %v", tc.TaskName, r)
			if p.logger != nil {
				p.logger.Error("task body panicked", map[string]interface{}{
					"operation": "worker_task_panic",
					"task_id":   tc.TaskID,
					"task_name": tc.TaskName,
					"panic":     fmt.Sprintf("%v", r),
					"stack":     stack,
				})
			}
		}
	}()

	return body(tc, args, kwargs)
}

func stringKwarg(kwargs map[string]interface{}, key string) string {
	if kwargs == nil {
		return ""
	}
	if v, ok := kwargs[key].(string); ok {
		return v
	}
	return ""
}
