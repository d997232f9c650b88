package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievanceplatform/orchestrator/core"
)

func noopBody(_ *core.TaskContext, _ []interface{}, _ map[string]interface{}) (*core.ResultEnvelope, error) {
	return &core.ResultEnvelope{Status: core.TaskStatusSuccess}, nil
}

func llmConfig(queue string) core.KindConfig {
	return core.KindConfig{
		Kind:        core.TaskKindLLM,
		Service:     "llm_service",
		Queue:       queue,
		Priority:    core.PriorityHigh,
		RetryPolicy: core.DefaultRetryTable()[core.TaskKindLLM],
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name      string
		taskName  string
		kind      core.TaskKind
		body      Body
		wantError error
	}{
		{"valid registration", "transcribe_audio_file_task", core.TaskKindLLM, noopBody, nil},
		{"empty name", "", core.TaskKindLLM, noopBody, core.ErrInvalidTaskKind},
		{"invalid kind", "bad_task", core.TaskKind("Unknown"), noopBody, core.ErrInvalidTaskKind},
		{"nil body", "nil_body_task", core.TaskKindLLM, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil)
			err := r.Register(tt.taskName, tt.kind, llmConfig("llm_queue"), tt.body)
			if tt.name == "nil body" {
				require.Error(t, err)
				return
			}
			if tt.wantError != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantError))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("transcribe_audio_file_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))

	err := r.Register("transcribe_audio_file_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTaskAlreadyRegistered))
}

func TestMustRegister_PanicsOnDuplicate(t *testing.T) {
	r := New(nil)
	r.MustRegister("task_a", core.TaskKindLLM, llmConfig("llm_queue"), noopBody)

	assert.Panics(t, func() {
		r.MustRegister("task_a", core.TaskKindLLM, llmConfig("llm_queue"), noopBody)
	})
}

func TestGet(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("transcribe_audio_file_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))

	entry, err := r.Get("transcribe_audio_file_task")
	require.NoError(t, err)
	assert.Equal(t, core.TaskKindLLM, entry.Kind)
	assert.Equal(t, "llm_queue", entry.Config.Queue)

	_, err = r.Get("missing_task")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTaskNotRegistered))
}

func TestListByQueue(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("transcribe_audio_file_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))
	require.NoError(t, r.Register("classify_grievance_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))
	require.NoError(t, r.Register("upload_file_task", core.TaskKindFileUpload, llmConfig("file_queue"), noopBody))

	names := r.ListByQueue("llm_queue")
	assert.Equal(t, []string{"classify_grievance_task", "transcribe_audio_file_task"}, names)

	assert.Empty(t, r.ListByQueue("nonexistent_queue"))
}

func TestQueues(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("a_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))
	require.NoError(t, r.Register("b_task", core.TaskKindFileUpload, llmConfig("file_queue"), noopBody))
	require.NoError(t, r.Register("c_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))

	assert.Equal(t, []string{"file_queue", "llm_queue"}, r.Queues())
}

func TestNames(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("b_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))
	require.NoError(t, r.Register("a_task", core.TaskKindLLM, llmConfig("llm_queue"), noopBody))

	assert.Equal(t, []string{"a_task", "b_task"}, r.Names())
}
