package pipeline

import (
	"context"
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

func newTestComposer(t *testing.T) (*Composer, *broker.Broker) {
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
	require.NoError(t, reg.Register(TaskProcessFileUpload, core.TaskKindFileUpload, core.KindConfig{
		Kind: core.TaskKindFileUpload, Queue: "fileupload_queue", Service: "fileupload_service",
	}, noopBody))
	require.NoError(t, reg.Register(TaskAggregateBatch, core.TaskKindDatabase, core.KindConfig{
		Kind: core.TaskKindDatabase, Queue: "db_queue", Service: "db_service",
	}, noopBody))

	brk := broker.New(client, reg, nil, nil)
	return New(brk, nil), brk
}

func TestBatchFileUpload_LaunchesGroupAndChord(t *testing.T) {
	c, brk := newTestComposer(t)
	ctx := context.Background()

	chord, err := c.BatchFileUpload(ctx, "GR-20250101-KOJH-ABCD-A", "CM-20250101-KOJH-ABCD-A",
		[]string{"/tmp/f1.wav", "/tmp/f2.wav", "/tmp/f3_bad.wav"})
	require.NoError(t, err)
	assert.NotEmpty(t, chord.ChordID)
	assert.Equal(t, TaskAggregateBatch, chord.CallbackName)

	for i := 0; i < 3; i++ {
		env, err := brk.Dequeue(ctx, "fileupload_queue", time.Second)
		require.NoError(t, err)
		assert.Equal(t, chord.GroupID, env.GroupID)
		assert.Equal(t, chord.ChordID, env.ChordID)
	}
}

func TestBatchFileUpload_RejectsEmptyFileList(t *testing.T) {
	c, _ := newTestComposer(t)
	_, err := c.BatchFileUpload(context.Background(), "GR-1-A", "CM-1-A", nil)
	require.Error(t, err)
}

func TestChord_TriggersCallbackAfterAllMembersReport(t *testing.T) {
	c, brk := newTestComposer(t)
	ctx := context.Background()

	group, err := c.Group(ctx, TaskProcessFileUpload, [][]interface{}{{"f1"}, {"f2"}})
	require.NoError(t, err)

	chord, err := c.Chord(ctx, group, TaskAggregateBatch, []interface{}{"GR-1-A"})
	require.NoError(t, err)

	triggered, err := brk.NotifyChordMember(ctx, chord.ChordID, &core.ResultEnvelope{Status: core.TaskStatusSuccess})
	require.NoError(t, err)
	assert.False(t, triggered)

	triggered, err = brk.NotifyChordMember(ctx, chord.ChordID, &core.ResultEnvelope{Status: core.TaskStatusFailed})
	require.NoError(t, err)
	assert.True(t, triggered)

	env, err := brk.Dequeue(ctx, "db_queue", time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskAggregateBatch, env.TaskName)
}
