package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/dbtask"
)

type fakeFinder struct {
	stuck     []dbtask.StuckRetry
	findErr   error
	prunedN   int64
	pruneErr  error
	pruneTTL  time.Duration
	findGrace time.Duration
}

func (f *fakeFinder) FindStuckRetrying(_ context.Context, grace time.Duration) ([]dbtask.StuckRetry, error) {
	f.findGrace = grace
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.stuck, nil
}

func (f *fakeFinder) PruneOldResults(_ context.Context, ttl time.Duration) (int64, error) {
	f.pruneTTL = ttl
	if f.pruneErr != nil {
		return 0, f.pruneErr
	}
	return f.prunedN, nil
}

type fakeRequeuer struct {
	enqueued []broker.Envelope
	err      error
}

func (f *fakeRequeuer) EnqueueRetry(_ context.Context, env broker.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, env)
	return nil
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	_, err := New(Config{Schedule: "not a cron expression"})
	assert.Error(t, err)
}

func TestNew_AppliesDefaults(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, s.stuckGrace)
	assert.Equal(t, 720*time.Hour, s.resultTTL)
}

func TestSweep_RequeuesStuckTaskAtRecoveredAttempt(t *testing.T) {
	finder := &fakeFinder{stuck: []dbtask.StuckRetry{
		{
			TaskID:  "task-1",
			Attempt: 2,
			Invocation: core.Invocation{
				TaskName: "translate_grievance_task",
				Kwargs:   map[string]interface{}{"grievance_id": "g-1"},
			},
		},
	}}
	requeuer := &fakeRequeuer{}
	s, err := New(Config{DB: finder, Broker: requeuer, StuckGrace: time.Minute})
	require.NoError(t, err)

	s.Sweep(context.Background())

	require.Len(t, requeuer.enqueued, 1)
	env := requeuer.enqueued[0]
	assert.Equal(t, "task-1", env.TaskID)
	assert.Equal(t, "translate_grievance_task", env.TaskName)
	assert.Equal(t, "g-1", env.Kwargs["grievance_id"])
	assert.Equal(t, 1, env.Attempt) // task.Attempt-1; EnqueueRetry itself would advance this to 2
	assert.Equal(t, time.Minute, finder.findGrace)
}

func TestSweep_ClampsRecoveredAttemptToZero(t *testing.T) {
	finder := &fakeFinder{stuck: []dbtask.StuckRetry{
		{TaskID: "task-1", Attempt: 0, Invocation: core.Invocation{TaskName: "transcribe_audio_file_task"}},
	}}
	requeuer := &fakeRequeuer{}
	s, err := New(Config{DB: finder, Broker: requeuer})
	require.NoError(t, err)

	s.Sweep(context.Background())

	require.Len(t, requeuer.enqueued, 1)
	assert.Equal(t, 0, requeuer.enqueued[0].Attempt)
}

func TestSweep_ContinuesPastRequeueFailure(t *testing.T) {
	finder := &fakeFinder{stuck: []dbtask.StuckRetry{
		{TaskID: "task-1", Attempt: 1, Invocation: core.Invocation{TaskName: "notify_office_task"}},
	}}
	requeuer := &fakeRequeuer{err: errors.New("broker unavailable")}
	s, err := New(Config{DB: finder, Broker: requeuer})
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Sweep(context.Background()) })
	assert.Empty(t, requeuer.enqueued)
}

func TestSweep_PrunesOldResultsWithConfiguredTTL(t *testing.T) {
	finder := &fakeFinder{prunedN: 7}
	s, err := New(Config{DB: finder, Broker: &fakeRequeuer{}, ResultTTL: 48 * time.Hour})
	require.NoError(t, err)

	s.Sweep(context.Background())

	assert.Equal(t, 48*time.Hour, finder.pruneTTL)
}

func TestSweep_ToleratesFinderErrors(t *testing.T) {
	finder := &fakeFinder{findErr: errors.New("db down"), pruneErr: errors.New("db down")}
	s, err := New(Config{DB: finder, Broker: &fakeRequeuer{}})
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Sweep(context.Background()) })
}
