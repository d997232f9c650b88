package tasks

import (
	"fmt"

	"github.com/grievanceplatform/orchestrator/core"
)

// aggregateBatchResults implements aggregate_batch_results_task, the chord
// callback BatchFileUpload registers (spec §4.7, §8 S2): publish one
// SUCCESS frame if every member of the batch succeeded, FAILED otherwise.
// args: [grievanceID, complainantID] — the callback args BatchFileUpload
// fixed at chord-launch time (pkg/pipeline.Composer.BatchFileUpload); the
// per-file results themselves are read back from the broker's chord
// bookkeeping via chord_id (kwargs), since EnqueueChord's callback args
// never carry them (pkg/broker.Broker.ChordResults's doc comment).
func (d Deps) aggregateBatchResults(tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error) {
	grievanceID, _ := args[0].(string)
	complainantID, _ := args[1].(string)
	chordID := stringKwarg(kwargs, "chord_id")

	results, err := d.Pipeline.ChordResults(tc.Context, chordID)
	if err != nil {
		return nil, fmt.Errorf("aggregate_batch_results_task: %w", err)
	}

	allSucceeded := len(results) > 0
	fileCount := len(results)
	for _, r := range results {
		if r.Status != core.TaskStatusSuccess {
			allSucceeded = false
		}
	}

	status := core.TaskStatusFailed
	if allSucceeded {
		status = core.TaskStatusSuccess
	}

	env := &core.ResultEnvelope{
		Status:        status,
		Operation:     "file_upload",
		EntityKey:     core.EntityKeyGrievance,
		ID:            grievanceID,
		TaskID:        tc.TaskID,
		GrievanceID:   grievanceID,
		ComplainantID: complainantID,
		Values: map[string]interface{}{
			"file_count": fileCount,
		},
	}

	if err := tc.EmitStatus(status, map[string]interface{}{"file_count": fileCount}); err != nil && d.Logger != nil {
		d.Logger.Error("emit status failed", map[string]interface{}{"operation": "file_upload", "error": err.Error()})
	}

	return env, nil
}
