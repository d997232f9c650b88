package tasks

import (
	"fmt"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/entity"
)

// translateGrievance implements translate_grievance_task, the final LLM
// chain link (spec §4.7, §8 S1): translate the classified summary into
// target_language and persist the result. Nothing further is chained —
// store_result_to_db_task is the chain's terminal fire-and-forget step.
func (d Deps) translateGrievance(tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error) {
	grievanceID := stringKwarg(kwargs, "grievance_id")
	complainantID := stringKwarg(kwargs, "complainant_id")
	text := stringKwarg(kwargs, "text")
	languageCode := stringKwarg(kwargs, "language_code")
	targetLanguage := stringKwarg(kwargs, "target_language")
	if targetLanguage == "" {
		targetLanguage = defaultTargetLanguage
	}

	resp, err := d.LLM.Translate(tc.Context, text, targetLanguage)
	if err != nil {
		return nil, fmt.Errorf("translate_grievance_task: %w", err)
	}

	translationID, err := entity.Generate(core.EntityKeyTranslation, genOptionsFor(grievanceID))
	if err != nil {
		return nil, fmt.Errorf("translate_grievance_task: generate translation id: %w", err)
	}

	env := &core.ResultEnvelope{
		Status:        core.TaskStatusSuccess,
		Operation:     "translation",
		EntityKey:     core.EntityKeyTranslation,
		ID:            translationID,
		TaskID:        tc.TaskID,
		TaskName:      tc.TaskName,
		GrievanceID:   grievanceID,
		ComplainantID: complainantID,
		LanguageCode:  languageCode,
		Values: map[string]interface{}{
			"translated_text": resp.Content,
			"target_language": targetLanguage,
		},
	}

	if err := tc.EmitStatus(core.TaskStatusSuccess, map[string]interface{}{
		"translated_text": resp.Content,
	}); err != nil && d.Logger != nil {
		d.Logger.Error("emit status failed", map[string]interface{}{"operation": "translation", "error": err.Error()})
	}

	if _, err := d.Pipeline.EnqueueNext(tc.Context, TaskStoreResultToDB, nil, envelopeToKwargs(*env, tc.Attempt)); err != nil {
		return nil, fmt.Errorf("translate_grievance_task: enqueue store_result_to_db_task: %w", err)
	}

	return env, nil
}
