package tasks

import (
	"fmt"

	"github.com/grievanceplatform/orchestrator/core"
)

// storeResultToDB implements store_result_to_db_task, the sink every
// producing task in both pipelines fire-and-forgets to (spec §4.7's "delay=0,
// so persistence and downstream LLM work proceed concurrently"). It
// unpacks the ResultEnvelope carried in kwargs (see envelope.go) and hands
// it straight to the Database Task Manager, which is the only component
// allowed to write grievance-domain tables (spec §4.5).
//
// An input-class failure (missing required fields, unknown entity key —
// spec §8 S3) is never retried: it's folded into a FAILED result envelope
// here rather than propagated as a Go error, so the Worker Runtime records
// one terminal FAILED frame instead of cycling the retry table against an
// envelope that can never become valid.
func (d Deps) storeResultToDB(tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error) {
	env, sourceAttempt := envelopeFromKwargs(kwargs)

	result, err := d.DB.HandleDBOperation(tc.Context, env, sourceAttempt)
	if err != nil {
		if core.IsInputError(err) {
			failed := &core.ResultEnvelope{
				Status:      core.TaskStatusFailed,
				Operation:   env.Operation,
				GrievanceID: env.GrievanceID,
				Error:       err.Error(),
			}
			if emitErr := tc.EmitStatus(core.TaskStatusFailed, map[string]interface{}{"error": err.Error()}); emitErr != nil && d.Logger != nil {
				d.Logger.Error("emit status failed", map[string]interface{}{"operation": "store_result", "error": emitErr.Error()})
			}
			return failed, nil
		}
		return nil, fmt.Errorf("store_result_to_db_task: %w", err)
	}

	if err := tc.EmitStatus(core.TaskStatusSuccess, map[string]interface{}{
		"entity_key": string(result.EntityKey),
		"id":         result.ID,
	}); err != nil && d.Logger != nil {
		d.Logger.Error("emit status failed", map[string]interface{}{"operation": "store_result", "error": err.Error()})
	}

	return result, nil
}
