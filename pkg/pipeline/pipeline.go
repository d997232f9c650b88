// Package pipeline implements the Pipeline Composer (C7, spec §4.7): two
// primitives for composing task graphs — group (parallel fan-out) and chord
// (fan-out with a single aggregating callback) — built directly on the
// Queue Broker Adapter's own group/chord mechanics (pkg/broker already
// implements EnqueueGroup/EnqueueChord/NotifyChordMember; this package is
// the narrow, domain-named facade task bodies and HTTP handlers call).
//
// The third canonical shape, chain (transcribe → classify_and_summarize →
// translate → store_result_to_db), needs no composer support: each task
// body simply enqueues the next task with its own result as input (spec
// §4.7's "by having each task enqueue the next with the previous task's
// result as input"). That enqueue is a plain broker.Enqueue call made from
// inside the task body (pkg/tasks), not a separate primitive here.
package pipeline

import (
	"context"
	"fmt"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// Canonical task names the two seed pipelines (spec §4.7, §8 S2) are built
// from. Declared here so the composer's constructors and pkg/tasks's
// registrations refer to the same literals instead of drifting apart.
const (
	TaskProcessFileUpload = "process_file_upload_task"
	TaskAggregateBatch    = "aggregate_batch_results_task"
	TaskStoreResultToDB   = "store_result_to_db_task"
)

// Composer is the Pipeline Composer (C7): a thin, domain-named wrapper over
// the broker's group/chord primitives.
type Composer struct {
	broker *broker.Broker
	logger core.ComponentAwareLogger
}

// New returns a Composer issuing group/chord enqueues through brk.
func New(brk *broker.Broker, logger core.ComponentAwareLogger) *Composer {
	return &Composer{broker: brk, logger: logger}
}

// Group launches one taskName invocation per element of argList in parallel
// (spec §4.7's "group([T(args_i) for i in N])").
func (c *Composer) Group(ctx context.Context, taskName string, argList [][]interface{}) (*broker.GroupHandle, error) {
	handle, err := c.broker.EnqueueGroup(ctx, taskName, argList)
	if err == nil {
		telemetry.RecordPipelineFanout("group", len(argList))
	}
	return handle, err
}

// Chord registers callbackName to run once with the accumulated list of
// member results after every member of group reaches a terminal state
// (spec §4.7's "chord(group, callback)"). The Worker Runtime reports each
// member's terminal result via NotifyChordMember as it finishes (pkg/worker's
// ChordNotifier hook); this call only sets up the bookkeeping.
func (c *Composer) Chord(ctx context.Context, group *broker.GroupHandle, callbackName string, callbackArgs []interface{}) (*broker.ChordHandle, error) {
	return c.broker.EnqueueChord(ctx, group, callbackName, callbackArgs)
}

// EnqueueNext enqueues the next stage of a chain with taskArgs, typically
// the previous stage's result values reshaped into the next task's
// positional arguments (spec §4.7's chain pattern). kwargs commonly carries
// grievance_id/session_id so the next stage's TaskContext is populated the
// same way the root enqueue's was.
func (c *Composer) EnqueueNext(ctx context.Context, taskName string, args []interface{}, kwargs map[string]interface{}) (string, error) {
	return c.broker.Enqueue(ctx, taskName, args, kwargs)
}

// ChordResults returns every member result recorded against chordID so far,
// letting an aggregate_batch_results_task callback (pkg/tasks) learn how
// each of the batch's uploads actually terminated.
func (c *Composer) ChordResults(ctx context.Context, chordID string) ([]*core.ResultEnvelope, error) {
	return c.broker.ChordResults(ctx, chordID)
}

// BatchFileUpload launches the canonical batch-upload pipeline (spec §4.7,
// §8 S2): one process_file_upload_task per file, chorded to a single
// aggregate_batch_results_task invoked with grievanceID and every file's
// result once all uploads have terminated.
func (c *Composer) BatchFileUpload(ctx context.Context, grievanceID, complainantID string, filePaths []string) (*broker.ChordHandle, error) {
	if len(filePaths) == 0 {
		return nil, fmt.Errorf("pipeline: batch file upload requires at least one file")
	}

	argList := make([][]interface{}, 0, len(filePaths))
	for _, path := range filePaths {
		argList = append(argList, []interface{}{grievanceID, complainantID, path})
	}

	group, err := c.Group(ctx, TaskProcessFileUpload, argList)
	if err != nil {
		return nil, fmt.Errorf("pipeline: batch file upload group: %w", err)
	}

	chord, err := c.Chord(ctx, group, TaskAggregateBatch, []interface{}{grievanceID, complainantID})
	if err != nil {
		return nil, fmt.Errorf("pipeline: batch file upload chord: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("batch file upload pipeline launched", map[string]interface{}{
			"operation":    "pipeline_batch_file_upload",
			"grievance_id": grievanceID,
			"file_count":   len(filePaths),
			"chord_id":     chord.ChordID,
		})
	}
	return chord, nil
}
