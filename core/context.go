package core

import (
	"context"
	"time"
)

// StatusPublisher is the narrow interface the Worker Runtime needs from the
// Status Bus (pkg/statusbus) to emit per-attempt status frames without core
// importing that package (spec §4.3's "accessors to the Status Bus").
type StatusPublisher interface {
	Publish(ctx context.Context, frame StatusFrame) error
}

// TaskContext is constructed by the Worker Runtime for each delivered
// message (spec §4.3) and passed to the registered task body. It carries
// the broker-assigned identity of the current attempt, a logger already
// scoped to the task's service label, and a handle to the Status Bus so a
// body can emit intermediate progress without reaching for a global.
type TaskContext struct {
	Context context.Context

	TaskID   string
	TaskName string
	Service  string
	Queue    string
	// Attempt is zero-indexed; 0 on first run (spec §4.2 current_attempt()).
	Attempt int

	GrievanceID string
	SessionID   string

	Logger Logger
	Status StatusPublisher
}

// EmitStatus publishes a status frame for the current task attempt, folding
// in the context's task name/grievance/session so callers only supply the
// status and operation-specific data. A nil Status is tolerated so task
// bodies can run in tests without a live bus.
func (tc *TaskContext) EmitStatus(status TaskStatusCode, data map[string]interface{}) error {
	if tc.Status == nil {
		return nil
	}
	return tc.Status.Publish(tc.Context, StatusFrame{
		TaskName:    tc.TaskName,
		Status:      status,
		GrievanceID: tc.GrievanceID,
		SessionID:   tc.SessionID,
		Data:        data,
		Timestamp:   time.Now(),
	})
}
