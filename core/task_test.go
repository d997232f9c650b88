package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskKind_Valid(t *testing.T) {
	tests := []struct {
		kind  TaskKind
		valid bool
	}{
		{TaskKindLLM, true},
		{TaskKindFileUpload, true},
		{TaskKindMessaging, true},
		{TaskKindDatabase, true},
		{TaskKindDefault, true},
		{TaskKind("Unknown"), false},
		{TaskKind(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.kind.Valid())
		})
	}
}

func TestRetryPolicy_Retryable(t *testing.T) {
	llm := DefaultRetryTable()[TaskKindLLM]
	assert.True(t, llm.Retryable(ErrorKindConnection))
	assert.True(t, llm.Retryable(ErrorKindTimeout))
	assert.True(t, llm.Retryable(ErrorKindRateLimit))
	assert.False(t, llm.Retryable(ErrorKindIO))

	def := DefaultRetryTable()[TaskKindDefault]
	assert.True(t, def.Retryable(ErrorKindConnection))
	assert.True(t, def.Retryable(ErrorKindIO))
	assert.True(t, def.Retryable(ErrorKind("anything")))
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := DefaultRetryTable()[TaskKindLLM]

	// attempt 0, no jitter: initial delay unchanged.
	assert.Equal(t, 2*time.Second, policy.NextDelay(0, 0))

	// attempt 1: initial * backoff^1 = 4s.
	assert.Equal(t, 4*time.Second, policy.NextDelay(1, 0))

	// attempt 3 stays under the cap (2 * 2^3 = 16s < 30s);
	// attempt 5 (2 * 2^5 = 64s) exceeds it and is clamped to MaxDelay before jitter.
	d := policy.NextDelay(5, 0)
	assert.Equal(t, policy.MaxDelay, d)

	// jitter adds up to 10% of the (possibly capped) base.
	withJitter := policy.NextDelay(0, 1.0)
	assert.Equal(t, 2*time.Second+200*time.Millisecond, withJitter)
}

func TestDefaultRetryTable(t *testing.T) {
	table := DefaultRetryTable()

	fileUpload := table[TaskKindFileUpload]
	assert.Equal(t, 2, fileUpload.MaxRetries)
	assert.Equal(t, 1*time.Second, fileUpload.InitialDelay)
	assert.Equal(t, 10*time.Second, fileUpload.MaxDelay)
	assert.Contains(t, fileUpload.RetryOn, ErrorKindIO)
	assert.Contains(t, fileUpload.RetryOn, ErrorKindFileNotFound)

	database := table[TaskKindDatabase]
	assert.Equal(t, 3, database.MaxRetries)
	assert.Contains(t, database.RetryOn, ErrorKindDeadlock)

	messaging := table[TaskKindMessaging]
	assert.Equal(t, 2, messaging.MaxRetries)
	assert.Equal(t, 2*time.Second, messaging.InitialDelay)

	def := table[TaskKindDefault]
	assert.Equal(t, []ErrorKind{ErrorKindAny}, def.RetryOn)
}

func TestDefaultPriority(t *testing.T) {
	priorities := DefaultPriority()
	assert.Equal(t, PriorityHigh, priorities[TaskKindLLM])
	assert.Equal(t, PriorityHigh, priorities[TaskKindDatabase])
	assert.Equal(t, PriorityMedium, priorities[TaskKindFileUpload])
	assert.Equal(t, PriorityMedium, priorities[TaskKindMessaging])
	assert.Equal(t, PriorityLow, priorities[TaskKindDefault])
}

func TestTaskStatusCode_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatusCode
		terminal bool
	}{
		{TaskStatusStarted, false},
		{TaskStatusInProgress, false},
		{TaskStatusRetrying, false},
		{TaskStatusSuccess, true},
		{TaskStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestTaskRecord_AppendRetry(t *testing.T) {
	record := &TaskRecord{
		TaskID:     "task-1",
		TaskName:   "transcribe_audio_file_task",
		StatusCode: TaskStatusStarted,
	}

	assert.Equal(t, 0, record.RetryCount)
	assert.Empty(t, record.RetryHistory)

	now := time.Now()
	record.AppendRetry(RetryAttempt{
		Attempt:      0,
		ErrorKind:    ErrorKindRateLimit,
		ErrorMessage: "rate limited",
		Timestamp:    now,
		NextDelayS:   2.1,
	})

	assert.Equal(t, 1, record.RetryCount)
	assert.Len(t, record.RetryHistory, 1)
	assert.Equal(t, record.RetryCount, len(record.RetryHistory)) // I2

	record.AppendRetry(RetryAttempt{Attempt: 1, ErrorKind: ErrorKindRateLimit, Timestamp: now})
	assert.Equal(t, 2, record.RetryCount)
	assert.Equal(t, record.RetryCount, len(record.RetryHistory)) // I2
}

func TestEntityKey_Valid(t *testing.T) {
	tests := []struct {
		key   EntityKey
		valid bool
	}{
		{EntityKeyGrievance, true},
		{EntityKeyComplainant, true},
		{EntityKeyRecording, true},
		{EntityKeyTranscription, true},
		{EntityKeyTranslation, true},
		{EntityKey("unknown_id"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.key.Valid())
		})
	}
}

func TestTaskEntityLink(t *testing.T) {
	link := TaskEntityLink{
		TaskID:    "task-1",
		EntityKey: EntityKeyTranscription,
		EntityID:  "TR-20250101-KOJH-ABCD-A",
	}

	assert.Equal(t, "task-1", link.TaskID)
	assert.True(t, link.EntityKey.Valid())
}

func TestErrTaskNotFound(t *testing.T) {
	assert.EqualError(t, ErrTaskNotFound, "task not found")
}
