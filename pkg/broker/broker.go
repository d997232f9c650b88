// Package broker implements the Queue Broker Adapter (C2, spec §4.2): a
// Redis-list-backed, at-least-once task queue with group fan-out and chord
// fan-out/fan-in, keyed against the Task Registry's declared queues.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/registry"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// Envelope is the broker's own wire message: the application-level payload
// (task_name, positional_args, keyword_args), plus the delivery metadata a
// worker needs to construct a TaskContext and the chord/group bookkeeping
// this package needs to fan results back in (spec §4.2, §6).
type Envelope struct {
	TaskID   string                 `json:"task_id"`
	TaskName string                 `json:"task_name"`
	Args     []interface{}          `json:"args"`
	Kwargs   map[string]interface{} `json:"kwargs"`
	Attempt  int                    `json:"attempt"`
	GroupID  string                 `json:"group_id,omitempty"`
	ChordID  string                 `json:"chord_id,omitempty"`
}

// GroupHandle identifies a fan-out batch (spec §4.2 enqueue_group).
type GroupHandle struct {
	GroupID string
	TaskIDs []string
}

// ChordHandle identifies a fan-out-fan-in aggregation (spec §4.2 enqueue_chord).
type ChordHandle struct {
	ChordID      string
	GroupID      string
	CallbackName string
}

// chordState is the Redis-hash-persisted bookkeeping for one chord: how many
// group members are expected, how many have reported a terminal result, and
// the callback to enqueue once every member has (spec §4.2's "invoked with
// the list of results after all group members terminate, success or failure").
type chordState struct {
	GroupID      string `json:"group_id"`
	CallbackName string `json:"callback_name"`
	CallbackArgs string `json:"callback_args"` // json-encoded []interface{}
	Expected     int    `json:"expected"`
}

func queueKey(queue string) string { return fmt.Sprintf("queue:%s", queue) }
func chordKey(chordID string) string { return fmt.Sprintf("chord:%s:meta", chordID) }
func chordResultsKey(chordID string) string { return fmt.Sprintf("chord:%s:results", chordID) }

// Broker is the Redis-backed Queue Broker Adapter.
type Broker struct {
	redis    *core.RedisClient
	registry *registry.Registry
	logger   core.ComponentAwareLogger
	breaker  core.CircuitBreaker
}

// New returns a Broker that dispatches against reg's declared queues.
// breaker protects every Redis round-trip from a broker outage stalling the
// callers that enqueue/dequeue through it; a nil breaker (the zero value
// every existing caller and test already passes) runs calls directly.
func New(redisClient *core.RedisClient, reg *registry.Registry, logger core.ComponentAwareLogger, breaker core.CircuitBreaker) *Broker {
	return &Broker{redis: redisClient, registry: reg, logger: logger, breaker: breaker}
}

// protect runs fn through b.breaker when one is configured, otherwise runs
// it directly.
func (b *Broker) protect(ctx context.Context, fn func() error) error {
	if b.breaker == nil {
		return fn()
	}
	return b.breaker.Execute(ctx, fn)
}

// Enqueue pushes a new, attempt-0 envelope onto name's declared queue and
// returns a broker-assigned unique task id (spec §4.2).
func (b *Broker) Enqueue(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}) (string, error) {
	entry, err := b.registry.Get(name)
	if err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	env := Envelope{TaskID: taskID, TaskName: name, Args: args, Kwargs: kwargs, Attempt: 0}

	if err := b.push(ctx, entry.Config.Queue, env); err != nil {
		return "", err
	}
	telemetry.Counter(telemetry.MetricBrokerEnqueued, "task", name, "queue", entry.Config.Queue)
	return taskID, nil
}

// EnqueueRetry re-delivers env on its original queue with Attempt
// incremented, used by the Task Lifecycle Manager to schedule a retry
// (spec §4.4 retry_task). The caller is responsible for having already
// waited out the computed backoff delay.
func (b *Broker) EnqueueRetry(ctx context.Context, env Envelope) error {
	entry, err := b.registry.Get(env.TaskName)
	if err != nil {
		return err
	}
	env.Attempt++
	return b.push(ctx, entry.Config.Queue, env)
}

// EnqueueGroup enqueues one envelope per element of argList, all tagged with
// a shared group id, for parallel fan-out (spec §4.2 enqueue_group).
func (b *Broker) EnqueueGroup(ctx context.Context, name string, argList [][]interface{}) (*GroupHandle, error) {
	entry, err := b.registry.Get(name)
	if err != nil {
		return nil, err
	}

	groupID := uuid.New().String()
	taskIDs := make([]string, 0, len(argList))

	for _, args := range argList {
		taskID := uuid.New().String()
		env := Envelope{TaskID: taskID, TaskName: name, Args: args, Attempt: 0, GroupID: groupID}
		if err := b.push(ctx, entry.Config.Queue, env); err != nil {
			return nil, err
		}
		taskIDs = append(taskIDs, taskID)
	}

	telemetry.Gauge(telemetry.MetricBrokerGroupMember, float64(len(taskIDs)), "group_id", groupID)

	if b.logger != nil {
		b.logger.Info("group enqueued", map[string]interface{}{
			"operation": "enqueue_group",
			"task_name": name,
			"group_id":  groupID,
			"size":      len(taskIDs),
		})
	}

	return &GroupHandle{GroupID: groupID, TaskIDs: taskIDs}, nil
}

// EnqueueChord registers callbackName to run once every member of group has
// reached a terminal state, then returns a handle workers use to report
// completion via NotifyChordMember (spec §4.2 enqueue_chord).
func (b *Broker) EnqueueChord(ctx context.Context, group *GroupHandle, callbackName string, callbackArgs []interface{}) (*ChordHandle, error) {
	if _, err := b.registry.Get(callbackName); err != nil {
		return nil, err
	}

	chordID := uuid.New().String()
	argsJSON, err := json.Marshal(callbackArgs)
	if err != nil {
		return nil, fmt.Errorf("enqueue chord %q: encode callback args: %w", callbackName, err)
	}

	state := chordState{
		GroupID:      group.GroupID,
		CallbackName: callbackName,
		CallbackArgs: string(argsJSON),
		Expected:     len(group.TaskIDs),
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("enqueue chord %q: encode state: %w", callbackName, err)
	}

	if err := b.redis.Set(ctx, chordKey(chordID), stateJSON, 24*time.Hour); err != nil {
		return nil, fmt.Errorf("enqueue chord %q: persist state: %w", callbackName, err)
	}

	return &ChordHandle{ChordID: chordID, GroupID: group.GroupID, CallbackName: callbackName}, nil
}

// NotifyChordMember records one group member's terminal result against
// chordID. Once every expected member has reported, it enqueues the chord's
// callback with the accumulated result list and returns triggered=true.
// Safe to call once per member; a member calling twice double-counts and is
// the caller's responsibility to avoid (the Worker Runtime's "exactly one
// terminal lifecycle call per attempt" invariant, spec §4.3, covers this).
func (b *Broker) NotifyChordMember(ctx context.Context, chordID string, result *core.ResultEnvelope) (triggered bool, err error) {
	raw, err := b.redis.Get(ctx, chordKey(chordID))
	if err != nil {
		return false, fmt.Errorf("notify chord %q: load state: %w", chordID, err)
	}
	var state chordState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return false, fmt.Errorf("notify chord %q: decode state: %w", chordID, err)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("notify chord %q: encode member result: %w", chordID, err)
	}
	if err := b.redis.RPush(ctx, chordResultsKey(chordID), resultJSON); err != nil {
		return false, fmt.Errorf("notify chord %q: store member result: %w", chordID, err)
	}

	count, err := b.redis.LLen(ctx, chordResultsKey(chordID))
	if err != nil {
		return false, fmt.Errorf("notify chord %q: count member results: %w", chordID, err)
	}
	if int(count) < state.Expected {
		return false, nil
	}

	var callbackArgs []interface{}
	if err := json.Unmarshal([]byte(state.CallbackArgs), &callbackArgs); err != nil {
		return false, fmt.Errorf("notify chord %q: decode callback args: %w", chordID, err)
	}

	if _, err := b.Enqueue(ctx, state.CallbackName, callbackArgs, map[string]interface{}{"chord_id": chordID}); err != nil {
		telemetry.RecordPipelineCallback("enqueue_failed")
		return false, fmt.Errorf("notify chord %q: enqueue callback: %w", chordID, err)
	}
	telemetry.RecordPipelineCallback("triggered")

	if b.logger != nil {
		b.logger.Info("chord callback triggered", map[string]interface{}{
			"operation": "chord_callback",
			"chord_id":  chordID,
			"callback":  state.CallbackName,
			"members":   state.Expected,
		})
	}

	return true, nil
}

// ChordResults returns every member result recorded against chordID so far,
// in report order. aggregate_batch_results_task (pkg/tasks) calls this from
// inside the callback body to learn which of the batch's uploads actually
// succeeded — the callback's own args only carry what EnqueueChord was given
// at launch time (spec §4.2 enqueue_chord), not the member results
// themselves.
func (b *Broker) ChordResults(ctx context.Context, chordID string) ([]*core.ResultEnvelope, error) {
	raw, err := b.redis.LRange(ctx, chordResultsKey(chordID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("chord %q: load member results: %w", chordID, err)
	}
	results := make([]*core.ResultEnvelope, 0, len(raw))
	for _, r := range raw {
		var env core.ResultEnvelope
		if err := json.Unmarshal([]byte(r), &env); err != nil {
			return nil, fmt.Errorf("chord %q: decode member result: %w", chordID, err)
		}
		results = append(results, &env)
	}
	return results, nil
}

// Dequeue blocks up to timeout for the next envelope on queue, used by the
// Worker Runtime's consume loop (spec §4.3, §5).
func (b *Broker) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Envelope, error) {
	var result []string
	if err := b.protect(ctx, func() error {
		var err error
		result, err = b.redis.BLPop(ctx, timeout, queueKey(queue))
		return err
	}); err != nil {
		return nil, err
	}
	// BLPop returns [key, value]; value is the second element.
	if len(result) < 2 {
		return nil, fmt.Errorf("dequeue %q: unexpected BLPop result shape", queue)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
		return nil, fmt.Errorf("dequeue %q: decode envelope: %w", queue, err)
	}
	telemetry.Counter(telemetry.MetricBrokerDequeued, "task", env.TaskName, "queue", queue)
	return &env, nil
}

func (b *Broker) push(ctx context.Context, queue string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("enqueue %q: encode envelope: %w", env.TaskName, err)
	}
	if err := b.protect(ctx, func() error { return b.redis.RPush(ctx, queueKey(queue), payload) }); err != nil {
		return fmt.Errorf("enqueue %q: %w", env.TaskName, core.ErrBrokerUnavailable)
	}
	return nil
}
