package tasks

import (
	"fmt"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/entity"
)

// transcribeAudioFile implements transcribe_audio_file_task, the first link
// of the voice-to-structured chain (spec §4.7, §8 S1): transcribe an audio
// file, persist the result fire-and-forget, and enqueue the next link
// (classify_and_summarize_grievance_task) with the transcript as input.
// Invoked with grievance_id, complainant_id, field_name, file_path, and
// language_code in kwargs (spec §8 S1's enqueue example).
func (d Deps) transcribeAudioFile(tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error) {
	grievanceID := stringKwarg(kwargs, "grievance_id")
	complainantID := stringKwarg(kwargs, "complainant_id")
	fieldName := stringKwarg(kwargs, "field_name")
	filePath := stringKwarg(kwargs, "file_path")
	languageCode := stringKwarg(kwargs, "language_code")
	if fieldName == "" {
		fieldName = "grievance_description"
	}

	resp, err := d.LLM.Transcribe(tc.Context, filePath)
	if err != nil {
		return nil, fmt.Errorf("transcribe_audio_file_task: %w", err)
	}

	transcriptionID, err := entity.Generate(core.EntityKeyTranscription, genOptionsFor(grievanceID))
	if err != nil {
		return nil, fmt.Errorf("transcribe_audio_file_task: generate transcription id: %w", err)
	}

	env := &core.ResultEnvelope{
		Status:        core.TaskStatusSuccess,
		Operation:     "transcription",
		EntityKey:     core.EntityKeyTranscription,
		ID:            transcriptionID,
		TaskID:        tc.TaskID,
		TaskName:      tc.TaskName,
		GrievanceID:   grievanceID,
		ComplainantID: complainantID,
		FieldName:     fieldName,
		LanguageCode:  languageCode,
		Values:        map[string]interface{}{fieldName: resp.Content},
	}

	if err := tc.EmitStatus(core.TaskStatusSuccess, map[string]interface{}{fieldName: resp.Content}); err != nil && d.Logger != nil {
		d.Logger.Error("emit status failed", map[string]interface{}{"operation": "transcription", "error": err.Error()})
	}

	if _, err := d.Pipeline.EnqueueNext(tc.Context, TaskStoreResultToDB, nil, envelopeToKwargs(*env, tc.Attempt)); err != nil {
		return nil, fmt.Errorf("transcribe_audio_file_task: enqueue store_result_to_db_task: %w", err)
	}

	if _, err := d.Pipeline.EnqueueNext(tc.Context, TaskClassify, nil, map[string]interface{}{
		"grievance_id":   grievanceID,
		"complainant_id": complainantID,
		"text":           resp.Content,
		"language_code":  languageCode,
	}); err != nil {
		return nil, fmt.Errorf("transcribe_audio_file_task: enqueue classify_and_summarize_grievance_task: %w", err)
	}

	return env, nil
}

// genOptionsFor derives GenerateOptions for an entity produced in the
// course of processing grievanceID: same office segment, same source suffix
// (spec §4.6's room-routing rule applies per grievance, so every entity a
// chain link or file-upload member produces for it should route the same
// way). Falls back to accessible/no-office when grievanceID doesn't parse.
func genOptionsFor(grievanceID string) entity.GenerateOptions {
	parsed, err := entity.Parse(grievanceID)
	if err != nil {
		return entity.GenerateOptions{Source: entity.SourceAccessible}
	}
	return entity.GenerateOptions{Source: parsed.Source, Office: parsed.Office}
}
