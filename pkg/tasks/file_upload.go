package tasks

import (
	"fmt"
	"os"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/entity"
)

// processFileUpload implements process_file_upload_task (spec §4.7, §8 S2):
// one invocation per uploaded file, run as a group member of a
// BatchFileUpload chord. args: [grievanceID, complainantID, filePath].
func (d Deps) processFileUpload(tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error) {
	grievanceID, _ := args[0].(string)
	complainantID, _ := args[1].(string)
	filePath, _ := args[2].(string)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("process_file_upload_task: %s: %w", filePath, core.ErrFileNotFound)
		}
		return nil, fmt.Errorf("process_file_upload_task: stat %s: %w", filePath, core.ErrIOFailure)
	}

	recordingID, err := entity.Generate(core.EntityKeyRecording, genOptionsFor(grievanceID))
	if err != nil {
		return nil, fmt.Errorf("process_file_upload_task: generate recording id: %w", err)
	}

	env := &core.ResultEnvelope{
		Status:        core.TaskStatusSuccess,
		Operation:     "file_upload",
		EntityKey:     core.EntityKeyRecording,
		ID:            recordingID,
		TaskID:        tc.TaskID,
		TaskName:      tc.TaskName,
		GrievanceID:   grievanceID,
		ComplainantID: complainantID,
		Values: map[string]interface{}{
			"file_path": filePath,
			"file_size": info.Size(),
		},
	}

	if err := tc.EmitStatus(core.TaskStatusSuccess, map[string]interface{}{
		"recording_id": recordingID,
		"file_path":    filePath,
	}); err != nil && d.Logger != nil {
		d.Logger.Error("emit status failed", map[string]interface{}{"operation": "file_upload", "error": err.Error()})
	}

	if _, err := d.Pipeline.EnqueueNext(tc.Context, TaskStoreResultToDB, nil, envelopeToKwargs(*env, tc.Attempt)); err != nil {
		return nil, fmt.Errorf("process_file_upload_task: enqueue store_result_to_db_task: %w", err)
	}

	return env, nil
}
