package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/grievanceplatform/orchestrator/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind core.ErrorKind
	}{
		{"connection", fmt.Errorf("wrap: %w", core.ErrConnectionFailed), core.ErrorKindConnection},
		{"timeout", core.ErrTimeout, core.ErrorKindTimeout},
		{"rate limit", core.ErrRateLimited, core.ErrorKindRateLimit},
		{"deadlock", core.ErrDeadlock, core.ErrorKindDeadlock},
		{"file not found", core.ErrFileNotFound, core.ErrorKindFileNotFound},
		{"io failure", core.ErrIOFailure, core.ErrorKindIO},
		{"unclassified", errors.New("something else"), core.ErrorKindAny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Classify(tt.err))
		})
	}
}

func TestClassifier_Decide_RetryableUnderMax(t *testing.T) {
	c := New(core.DefaultRetryTable()[core.TaskKindLLM])
	c.rand = func() float64 { return 0 }

	decision := c.Decide(0, core.ErrConnectionFailed)
	assert.True(t, decision.Retry)
	assert.Equal(t, core.ErrorKindConnection, decision.ErrorKind)
	assert.Equal(t, 2*time.Second, decision.Delay)
}

func TestClassifier_Decide_NotInRetryOn(t *testing.T) {
	c := New(core.DefaultRetryTable()[core.TaskKindLLM])

	decision := c.Decide(0, core.ErrFileNotFound)
	assert.False(t, decision.Retry)
	assert.Equal(t, core.ErrorKindFileNotFound, decision.ErrorKind)
}

func TestClassifier_Decide_MaxRetriesExceeded(t *testing.T) {
	policy := core.DefaultRetryTable()[core.TaskKindLLM]
	c := New(policy)

	decision := c.Decide(policy.MaxRetries, core.ErrConnectionFailed)
	assert.False(t, decision.Retry)
}

func TestClassifier_Decide_DefaultKindAnyMatchesEverything(t *testing.T) {
	c := New(core.DefaultRetryTable()[core.TaskKindDefault])

	decision := c.Decide(0, errors.New("totally unclassified"))
	assert.True(t, decision.Retry)
	assert.Equal(t, core.ErrorKindAny, decision.ErrorKind)
}

func TestTable_For(t *testing.T) {
	table := NewTable(core.DefaultRetryTable())

	llmClassifier := table.For(core.TaskKindLLM)
	decision := llmClassifier.Decide(0, core.ErrRateLimited)
	assert.True(t, decision.Retry)

	unknownClassifier := table.For(core.TaskKind("Unregistered"))
	decision = unknownClassifier.Decide(0, errors.New("anything"))
	assert.True(t, decision.Retry) // falls back to Default's "any"
}
