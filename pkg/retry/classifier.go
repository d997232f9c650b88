// Package retry implements the Retry & Error Classifier (C8, spec §4.8):
// classify a task body's error into an ErrorKind, decide whether the
// owning task kind's retry_on table covers it, and compute the next
// exponential-backoff-plus-jitter delay.
package retry

import (
	"errors"
	"math/rand"
	"time"

	"github.com/grievanceplatform/orchestrator/core"
)

// Classifier decides retry outcomes for one task kind's policy.
type Classifier struct {
	policy core.RetryPolicy
	rand   func() float64
}

// New returns a Classifier bound to policy. rand defaults to
// math/rand.Float64 and is overridable for deterministic tests.
func New(policy core.RetryPolicy) *Classifier {
	return &Classifier{policy: policy, rand: rand.Float64}
}

// Classify maps err onto the closed ErrorKind set (spec §4.8) by walking
// the taxonomy sentinels in core/errors.go with errors.Is. An error that
// matches none of them classifies as ErrorKindAny, which only a Default-kind
// policy's catch-all retry_on entry matches (spec's Default/any tie-break).
func Classify(err error) core.ErrorKind {
	switch {
	case errors.Is(err, core.ErrConnectionFailed):
		return core.ErrorKindConnection
	case errors.Is(err, core.ErrTimeout):
		return core.ErrorKindTimeout
	case errors.Is(err, core.ErrRateLimited):
		return core.ErrorKindRateLimit
	case errors.Is(err, core.ErrDeadlock):
		return core.ErrorKindDeadlock
	case errors.Is(err, core.ErrFileNotFound):
		return core.ErrorKindFileNotFound
	case errors.Is(err, core.ErrIOFailure):
		return core.ErrorKindIO
	default:
		return core.ErrorKindAny
	}
}

// Decision is the outcome of classifying one task attempt's error.
type Decision struct {
	Retry     bool
	Delay     time.Duration
	ErrorKind core.ErrorKind
}

// Decide classifies err and, if the policy's retry_on covers that kind and
// attempt is still under MaxRetries, returns Retry=true with the next
// backoff-plus-jitter delay (spec §4.4's retry_task / §4.8's policy).
// attempt is zero-indexed, matching core.TaskContext.Attempt.
func (c *Classifier) Decide(attempt int, err error) Decision {
	kind := Classify(err)

	if attempt >= c.policy.MaxRetries || !c.policy.Retryable(kind) {
		return Decision{Retry: false, ErrorKind: kind}
	}

	jitter := 0.0
	if c.rand != nil {
		jitter = c.rand()
	}

	return Decision{
		Retry:     true,
		Delay:     c.policy.NextDelay(attempt, jitter),
		ErrorKind: kind,
	}
}

// Table resolves a Classifier per task kind from a shared retry table,
// letting the Worker Runtime look up the right policy for the kind of the
// task it is about to run.
type Table struct {
	policies map[core.TaskKind]core.RetryPolicy
}

// NewTable wraps a per-kind retry policy map (typically core.DefaultRetryTable()).
func NewTable(policies map[core.TaskKind]core.RetryPolicy) *Table {
	return &Table{policies: policies}
}

// For returns a Classifier for kind, falling back to the Default policy if
// kind has no specific entry.
func (t *Table) For(kind core.TaskKind) *Classifier {
	if policy, ok := t.policies[kind]; ok {
		return New(policy)
	}
	return New(t.policies[core.TaskKindDefault])
}
