// Package core provides the orchestrator's data model, configuration,
// logging, and error taxonomy shared by every component of the task
// orchestration subsystem.
//
// This file defines the task kind, priority, retry policy, and task-record
// types that the Task Registry (pkg/registry), Worker Runtime (pkg/worker),
// Task Lifecycle Manager (pkg/lifecycle), and Database Task Manager
// (pkg/dbtask) all share. The Worker Runtime tags each attempt's context with
// the task's identifying fields, read from the dequeued envelope, via
// telemetry.WithBaggage so they show up on every metric the attempt emits;
// neither baggage nor trace context crosses the broker hop itself.
package core

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrTaskNotFound is returned when a task record cannot be located by id.
var ErrTaskNotFound = errors.New("task not found")

// TaskKind is the closed set of task categories a task name is registered
// under (spec §3). Each kind carries a fixed queue, priority, and retry
// policy via KindConfig.
type TaskKind string

const (
	TaskKindLLM        TaskKind = "LLM"
	TaskKindFileUpload TaskKind = "FileUpload"
	TaskKindMessaging  TaskKind = "Messaging"
	TaskKindDatabase   TaskKind = "Database"
	TaskKindDefault    TaskKind = "Default"
)

// Valid reports whether k is one of the closed set of task kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskKindLLM, TaskKindFileUpload, TaskKindMessaging, TaskKindDatabase, TaskKindDefault:
		return true
	}
	return false
}

// Priority is the fixed task-kind priority scale (spec §3).
type Priority int

const (
	PriorityLow      Priority = 3
	PriorityMedium   Priority = 5
	PriorityHigh     Priority = 7
	PriorityCritical Priority = 9
)

// ErrorKind names a class of error a retry policy's retry_on set matches
// against (spec §4.8). These are data, not Go error values: a broker
// message and a persisted retry_history entry both carry an ErrorKind by
// name, so classification must survive serialization.
type ErrorKind string

const (
	ErrorKindConnection   ErrorKind = "ConnectionError"
	ErrorKindTimeout      ErrorKind = "TimeoutError"
	ErrorKindRateLimit    ErrorKind = "RateLimitError"
	ErrorKindIO           ErrorKind = "IOError"
	ErrorKindFileNotFound ErrorKind = "FileNotFoundError"
	ErrorKindDeadlock     ErrorKind = "DeadlockError"
	// ErrorKindAny is the Default kind's catch-all retry_on entry.
	ErrorKindAny ErrorKind = "any"
)

// RetryPolicy governs how a task kind's attempts back off and when they
// stop (spec §4.8).
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	RetryOn       []ErrorKind
}

// Retryable reports whether kind appears in the policy's retry_on set.
// A specific kind's retry_on always governs its own tasks; Default's "any"
// entry only applies to tasks actually registered under TaskKindDefault
// (spec §4.8 tie-break: a specific kind's retry_on wins over Default's).
func (p RetryPolicy) Retryable(kind ErrorKind) bool {
	for _, k := range p.RetryOn {
		if k == ErrorKindAny || k == kind {
			return true
		}
	}
	return false
}

// NextDelay computes the exponential-backoff-plus-jitter delay for the
// given zero-indexed attempt, per spec §4.8:
// delay = min(initial * backoff^attempt, max) + U(0, 0.1*delay).
// jitter must be a uniform random value in [0,1); callers supply it so the
// formula stays deterministic and testable.
func (p RetryPolicy) NextDelay(attempt int, jitter float64) time.Duration {
	base := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		base *= p.BackoffFactor
	}
	if max := float64(p.MaxDelay); base > max {
		base = max
	}
	return time.Duration(base + jitter*0.1*base)
}

// KindConfig is the fixed per-task-kind configuration the Task Registry
// attaches at registration time (spec §3, §4.1).
type KindConfig struct {
	Kind        TaskKind
	Service     string
	Queue       string
	Priority    Priority
	RetryPolicy RetryPolicy
}

// DefaultRetryTable returns the illustrative per-kind retry policies from
// spec §4.8. Queue names are left to the caller (pkg/registry), which binds
// them from BrokerConfig so an operator can relocate a kind's queue without
// a code change.
func DefaultRetryTable() map[TaskKind]RetryPolicy {
	return map[TaskKind]RetryPolicy{
		TaskKindLLM: {
			MaxRetries: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2,
			RetryOn: []ErrorKind{ErrorKindConnection, ErrorKindTimeout, ErrorKindRateLimit},
		},
		TaskKindFileUpload: {
			MaxRetries: 2, InitialDelay: 1 * time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2,
			RetryOn: []ErrorKind{ErrorKindIO, ErrorKindFileNotFound},
		},
		TaskKindDatabase: {
			MaxRetries: 3, InitialDelay: 1 * time.Second, MaxDelay: 20 * time.Second, BackoffFactor: 2,
			RetryOn: []ErrorKind{ErrorKindConnection, ErrorKindTimeout, ErrorKindDeadlock},
		},
		TaskKindMessaging: {
			MaxRetries: 2, InitialDelay: 2 * time.Second, MaxDelay: 15 * time.Second, BackoffFactor: 2,
			RetryOn: []ErrorKind{ErrorKindConnection, ErrorKindTimeout},
		},
		TaskKindDefault: {
			MaxRetries: 2, InitialDelay: 1 * time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2,
			RetryOn: []ErrorKind{ErrorKindAny},
		},
	}
}

// DefaultPriority returns the illustrative priority spec §4.8's table
// implies for each kind: LLM and Database tasks run ahead of file uploads
// and messaging, which in turn run ahead of the Default catch-all.
func DefaultPriority() map[TaskKind]Priority {
	return map[TaskKind]Priority{
		TaskKindLLM:        PriorityHigh,
		TaskKindDatabase:   PriorityHigh,
		TaskKindFileUpload: PriorityMedium,
		TaskKindMessaging:  PriorityMedium,
		TaskKindDefault:    PriorityLow,
	}
}

// TaskStatusCode is the task record's persisted lifecycle state (spec §3).
type TaskStatusCode string

const (
	TaskStatusStarted    TaskStatusCode = "STARTED"
	TaskStatusSuccess    TaskStatusCode = "SUCCESS"
	TaskStatusFailed     TaskStatusCode = "FAILED"
	TaskStatusRetrying   TaskStatusCode = "RETRYING"
	TaskStatusInProgress TaskStatusCode = "IN_PROGRESS"
)

// IsTerminal reports whether the status is SUCCESS or FAILED. Per I3, once
// terminal, no further transitions may occur.
func (s TaskStatusCode) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

// Invocation is the re-deliverable shape of a task envelope: just enough to
// reconstruct a broker envelope for re-enqueue (task name, positional args,
// keyword args) without this package needing to import pkg/broker. On each
// recorded retry the Database Task Manager overwrites the task row's
// last_envelope with the latest one, so a
// maintenance sweep can recover a task whose in-process retry timer was lost
// to a worker restart.
type Invocation struct {
	TaskName string                 `json:"task_name"`
	Args     []interface{}          `json:"args"`
	Kwargs   map[string]interface{} `json:"kwargs"`
}

// RetryAttempt is one entry of a task record's retry_history (spec §3).
type RetryAttempt struct {
	Attempt      int       `json:"attempt"`
	ErrorKind    ErrorKind `json:"error_kind"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
	NextDelayS   float64   `json:"next_delay_s"`
}

// TaskRecord is the persisted task row (spec §3). Callers must keep
// RetryCount equal to len(RetryHistory) at all times (I2) — AppendRetry
// maintains this invariant; direct field assignment does not.
type TaskRecord struct {
	TaskID       string          `json:"task_id"`
	TaskName     string          `json:"task_name"`
	StatusCode   TaskStatusCode  `json:"status_code"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	RetryCount   int             `json:"retry_count"`
	RetryHistory []RetryAttempt  `json:"retry_history"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AppendRetry records a retry attempt and advances RetryCount to match,
// preserving I2. It is the caller's responsibility to only call this
// before the record reaches a terminal status (I3).
func (t *TaskRecord) AppendRetry(attempt RetryAttempt) {
	t.RetryHistory = append(t.RetryHistory, attempt)
	t.RetryCount = len(t.RetryHistory)
}

// EntityKey is the closed set of entity-link keys a task row may point at
// (spec §3 task_entities).
type EntityKey string

const (
	EntityKeyGrievance     EntityKey = "grievance_id"
	EntityKeyComplainant   EntityKey = "complainant_id"
	EntityKeyRecording     EntityKey = "recording_id"
	EntityKeyTranscription EntityKey = "transcription_id"
	EntityKeyTranslation   EntityKey = "translation_id"
)

// Valid reports whether k is one of the closed set of entity keys.
func (k EntityKey) Valid() bool {
	switch k {
	case EntityKeyGrievance, EntityKeyComplainant, EntityKeyRecording, EntityKeyTranscription, EntityKeyTranslation:
		return true
	}
	return false
}

// TaskEntityLink is one row of task_entities (spec §3). A single task may
// link to several entities — e.g. a transcription task links both
// transcription_id and, indirectly, grievance_id — so TaskID is not unique
// across this table; the composite primary key is (TaskID, EntityKey, EntityID).
type TaskEntityLink struct {
	TaskID    string    `json:"task_id"`
	EntityKey EntityKey `json:"entity_key"`
	EntityID  string    `json:"entity_id"`
}
