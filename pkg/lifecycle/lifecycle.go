// Package lifecycle implements the Task Lifecycle Manager (C4, spec §4.4):
// the per-attempt state machine STARTED → SUCCESS|FAILED|RETRYING, driving
// structured log events and Status Bus frames, and scheduling retries with
// exponential backoff plus jitter.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/retry"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// RetryRecorder appends a retry attempt to a task's persisted retry_history
// (spec §3, §4.5). It is satisfied by pkg/dbtask; lifecycle depends only on
// this narrow interface so it never imports the database layer. A recorder
// call for a task row that does not exist yet (the retroactive-creation
// ordering problem, spec §4.5) is expected to return core.ErrTaskNotFound,
// which Retry tolerates rather than treating as a lifecycle failure.
type RetryRecorder interface {
	RecordRetry(ctx context.Context, taskID string, attempt core.RetryAttempt, inv core.Invocation) error
}

// Scheduler defers a function call, abstracting time.AfterFunc so tests can
// run retry scheduling synchronously instead of racing a real timer.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// realScheduler defers to the standard library.
type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

// Manager is the Task Lifecycle Manager (C4).
type Manager struct {
	broker    *broker.Broker
	scheduler Scheduler
	recorder  RetryRecorder
	logger    core.ComponentAwareLogger
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithScheduler overrides the default time.AfterFunc-backed scheduler.
func WithScheduler(s Scheduler) Option { return func(m *Manager) { m.scheduler = s } }

// WithRetryRecorder attaches the Database Task Manager's retry_history writer.
func WithRetryRecorder(r RetryRecorder) Option { return func(m *Manager) { m.recorder = r } }

// New returns a Manager that re-enqueues retries through brk.
func New(brk *broker.Broker, logger core.ComponentAwareLogger, opts ...Option) *Manager {
	m := &Manager{broker: brk, scheduler: realScheduler{}, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start logs and publishes STARTED. It never writes to the database — the
// target entity may not exist yet (spec §4.4's explicit "does not write to
// the database" contract, the chicken-and-egg ordering problem §4.5 solves).
func (m *Manager) Start(ctx context.Context, tc *core.TaskContext) error {
	m.log(ctx, "task started", tc, map[string]interface{}{"operation": "task_start"})
	m.transition(tc, "", core.TaskStatusStarted)
	return tc.EmitStatus(core.TaskStatusStarted, nil)
}

// Complete logs and publishes SUCCESS with the task body's result values.
func (m *Manager) Complete(ctx context.Context, tc *core.TaskContext, result *core.ResultEnvelope) error {
	m.log(ctx, "task succeeded", tc, map[string]interface{}{"operation": "task_complete"})
	m.transition(tc, core.TaskStatusStarted, core.TaskStatusSuccess)

	var data map[string]interface{}
	if result != nil {
		data = result.Values
	}
	return tc.EmitStatus(core.TaskStatusSuccess, data)
}

// Fail logs and publishes FAILED with the error's message.
func (m *Manager) Fail(ctx context.Context, tc *core.TaskContext, taskErr error) error {
	m.log(ctx, "task failed", tc, map[string]interface{}{
		"operation": "task_fail",
		"error":     taskErr.Error(),
	})
	m.transition(tc, core.TaskStatusStarted, core.TaskStatusFailed)

	return tc.EmitStatus(core.TaskStatusFailed, map[string]interface{}{"error": taskErr.Error()})
}

// transition records a unified lifecycle state-transition metric. from is
// "" when the prior state isn't meaningful (Start has no predecessor state
// to report).
func (m *Manager) transition(tc *core.TaskContext, from, to core.TaskStatusCode) {
	telemetry.Counter(telemetry.MetricLifecycleTransitions,
		"task_name", tc.TaskName,
		"from_status", string(from),
		"to_status", string(to),
	)
}

// Retry classifies taskErr against policy and either schedules a re-delivery
// of env after the computed backoff-plus-jitter delay (publishing RETRYING),
// or calls Fail (spec §4.4 retry_task). The returned Decision lets callers
// inspect the classification without re-deriving it.
func (m *Manager) Retry(ctx context.Context, tc *core.TaskContext, env broker.Envelope, policy core.RetryPolicy, taskErr error) (retry.Decision, error) {
	classifier := retry.New(policy)
	decision := classifier.Decide(tc.Attempt, taskErr)

	retryDecisionLabel := "retry"
	if !decision.Retry {
		retryDecisionLabel = "exhausted"
	}
	telemetry.Counter(telemetry.MetricLifecycleRetries,
		"task_name", tc.TaskName,
		"error_kind", string(decision.ErrorKind),
		"decision", retryDecisionLabel,
	)

	if !decision.Retry {
		return decision, m.Fail(ctx, tc, taskErr)
	}
	telemetry.Histogram(telemetry.MetricLifecycleRetryDelay, decision.Delay.Seconds(), "task_name", tc.TaskName)
	m.transition(tc, core.TaskStatusStarted, core.TaskStatusRetrying)

	if m.recorder != nil {
		attempt := core.RetryAttempt{
			Attempt:      tc.Attempt,
			ErrorKind:    decision.ErrorKind,
			ErrorMessage: taskErr.Error(),
			Timestamp:    time.Now(),
			NextDelayS:   decision.Delay.Seconds(),
		}
		inv := core.Invocation{TaskName: env.TaskName, Args: env.Args, Kwargs: env.Kwargs}
		if err := m.recorder.RecordRetry(ctx, tc.TaskID, attempt, inv); err != nil && err != core.ErrTaskNotFound {
			m.log(ctx, "failed to record retry attempt", tc, map[string]interface{}{
				"operation": "retry_record_failed",
				"error":     err.Error(),
			})
		}
	}

	m.log(ctx, "task retrying", tc, map[string]interface{}{
		"operation":    "task_retry",
		"error_kind":   string(decision.ErrorKind),
		"next_delay_s": decision.Delay.Seconds(),
		"attempt":      tc.Attempt,
	})

	if err := tc.EmitStatus(core.TaskStatusRetrying, map[string]interface{}{
		"error":        taskErr.Error(),
		"next_delay_s": decision.Delay.Seconds(),
	}); err != nil {
		return decision, fmt.Errorf("retry %q: emit status: %w", tc.TaskName, err)
	}

	m.scheduler.AfterFunc(decision.Delay, func() {
		if err := m.broker.EnqueueRetry(context.Background(), env); err != nil && m.logger != nil {
			m.logger.Error("failed to re-enqueue retry", map[string]interface{}{
				"operation": "retry_enqueue_failed",
				"task_name": env.TaskName,
				"task_id":   env.TaskID,
				"error":     err.Error(),
			})
		}
	})

	return decision, nil
}

func (m *Manager) log(ctx context.Context, msg string, tc *core.TaskContext, fields map[string]interface{}) {
	fields["task_id"] = tc.TaskID
	fields["task_name"] = tc.TaskName
	fields["attempt"] = tc.Attempt

	if tc.Logger != nil {
		tc.Logger.InfoWithContext(ctx, msg, fields)
		return
	}
	if m.logger != nil {
		m.logger.InfoWithContext(ctx, msg, fields)
	}
}
