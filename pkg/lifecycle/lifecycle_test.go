package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/registry"
)

func noopBody(_ *core.TaskContext, _ []interface{}, _ map[string]interface{}) (*core.ResultEnvelope, error) {
	return &core.ResultEnvelope{Status: core.TaskStatusSuccess}, nil
}

type fakePublisher struct {
	frames []core.StatusFrame
}

func (p *fakePublisher) Publish(_ context.Context, frame core.StatusFrame) error {
	p.frames = append(p.frames, frame)
	return nil
}

// immediateScheduler runs the deferred function synchronously so retry tests
// don't need to race a real timer.
type immediateScheduler struct{}

func (immediateScheduler) AfterFunc(_ time.Duration, f func()) { f() }

type fakeRecorder struct {
	recorded []core.RetryAttempt
	err      error
}

func (r *fakeRecorder) RecordRetry(_ context.Context, _ string, attempt core.RetryAttempt, _ core.Invocation) error {
	r.recorded = append(r.recorded, attempt)
	return r.err
}

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBBroker,
		Namespace: "orchestrator:broker",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	reg := registry.New(nil)
	require.NoError(t, reg.Register("transcribe_audio_file_task", core.TaskKindLLM, core.KindConfig{
		Kind: core.TaskKindLLM, Queue: "llm_queue", Service: "llm_service",
	}, noopBody))

	return broker.New(client, reg, nil, nil)
}

func newTaskContext(pub core.StatusPublisher) *core.TaskContext {
	return &core.TaskContext{
		Context:     context.Background(),
		TaskID:      "task-1",
		TaskName:    "transcribe_audio_file_task",
		GrievanceID: "GR-20250101-KOJH-ABCD-A",
		SessionID:   "session-1",
		Status:      pub,
	}
}

func TestManager_Start(t *testing.T) {
	pub := &fakePublisher{}
	m := New(newTestBroker(t), nil)

	require.NoError(t, m.Start(context.Background(), newTaskContext(pub)))
	require.Len(t, pub.frames, 1)
	assert.Equal(t, core.TaskStatusStarted, pub.frames[0].Status)
}

func TestManager_Complete(t *testing.T) {
	pub := &fakePublisher{}
	m := New(newTestBroker(t), nil)

	result := &core.ResultEnvelope{Status: core.TaskStatusSuccess, Values: map[string]interface{}{"automated_transcript": "hello"}}
	require.NoError(t, m.Complete(context.Background(), newTaskContext(pub), result))
	require.Len(t, pub.frames, 1)
	assert.Equal(t, core.TaskStatusSuccess, pub.frames[0].Status)
	assert.Equal(t, "hello", pub.frames[0].Data["automated_transcript"])
}

func TestManager_Fail(t *testing.T) {
	pub := &fakePublisher{}
	m := New(newTestBroker(t), nil)

	require.NoError(t, m.Fail(context.Background(), newTaskContext(pub), errors.New("boom")))
	require.Len(t, pub.frames, 1)
	assert.Equal(t, core.TaskStatusFailed, pub.frames[0].Status)
	assert.Equal(t, "boom", pub.frames[0].Data["error"])
}

func TestManager_Retry_SchedulesReenqueueAndEmitsRetrying(t *testing.T) {
	brk := newTestBroker(t)
	pub := &fakePublisher{}
	recorder := &fakeRecorder{}
	m := New(brk, nil, WithScheduler(immediateScheduler{}), WithRetryRecorder(recorder))

	tc := newTaskContext(pub)
	env := broker.Envelope{TaskID: tc.TaskID, TaskName: tc.TaskName, Attempt: 0}

	policy := core.DefaultRetryTable()[core.TaskKindLLM]
	decision, err := m.Retry(context.Background(), tc, env, policy, core.ErrConnectionFailed)
	require.NoError(t, err)
	assert.True(t, decision.Retry)

	require.Len(t, pub.frames, 1)
	assert.Equal(t, core.TaskStatusRetrying, pub.frames[0].Status)

	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, core.ErrorKindConnection, recorder.recorded[0].ErrorKind)

	redelivered, err := brk.Dequeue(context.Background(), "llm_queue", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, redelivered.Attempt)
}

func TestManager_Retry_FailsWhenNotRetryable(t *testing.T) {
	brk := newTestBroker(t)
	pub := &fakePublisher{}
	m := New(brk, nil, WithScheduler(immediateScheduler{}))

	tc := newTaskContext(pub)
	env := broker.Envelope{TaskID: tc.TaskID, TaskName: tc.TaskName, Attempt: 0}

	policy := core.DefaultRetryTable()[core.TaskKindLLM]
	decision, err := m.Retry(context.Background(), tc, env, policy, core.ErrFileNotFound)
	require.NoError(t, err)
	assert.False(t, decision.Retry)

	require.Len(t, pub.frames, 1)
	assert.Equal(t, core.TaskStatusFailed, pub.frames[0].Status)
}

func TestManager_Retry_ToleratesMissingTaskRow(t *testing.T) {
	brk := newTestBroker(t)
	pub := &fakePublisher{}
	recorder := &fakeRecorder{err: core.ErrTaskNotFound}
	m := New(brk, nil, WithScheduler(immediateScheduler{}), WithRetryRecorder(recorder))

	tc := newTaskContext(pub)
	env := broker.Envelope{TaskID: tc.TaskID, TaskName: tc.TaskName, Attempt: 0}

	policy := core.DefaultRetryTable()[core.TaskKindLLM]
	_, err := m.Retry(context.Background(), tc, env, policy, core.ErrConnectionFailed)
	require.NoError(t, err)
}
