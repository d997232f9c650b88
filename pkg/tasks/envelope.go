package tasks

import "github.com/grievanceplatform/orchestrator/core"

// envelopeToKwargs flattens env plus the attempt count of the task that
// produced it into the kwargs of a store_result_to_db_task enqueue. The
// broker's kwargs are a flat map[string]interface{} (spec §4.2), so each
// ResultEnvelope field gets its own key rather than a nested "envelope"
// value — consistent with how the Worker Runtime already reads grievance_id/
// session_id straight out of kwargs (pkg/worker's processEnvelope).
func envelopeToKwargs(env core.ResultEnvelope, sourceAttempt int) map[string]interface{} {
	return map[string]interface{}{
		"grievance_id":        env.GrievanceID,
		"session_id":          "",
		"env_status":          string(env.Status),
		"env_operation":       env.Operation,
		"env_entity_key":      string(env.EntityKey),
		"env_id":              env.ID,
		"env_task_id":         env.TaskID,
		"env_task_name":       env.TaskName,
		"env_grievance_id":    env.GrievanceID,
		"env_complainant_id":  env.ComplainantID,
		"env_values":          env.Values,
		"env_language_code":   env.LanguageCode,
		"env_field_name":      env.FieldName,
		"env_error":           env.Error,
		"env_source_attempt":  sourceAttempt,
	}
}

// envelopeFromKwargs reconstructs the ResultEnvelope and producing attempt
// count envelopeToKwargs packed into kwargs. Absent or mistyped fields
// decode to zero values rather than erroring — store_result_to_db_task's own
// MissingFields check (via dbtask.Manager.HandleDBOperation) is the single
// place that rejects an incomplete envelope.
func envelopeFromKwargs(kwargs map[string]interface{}) (core.ResultEnvelope, int) {
	env := core.ResultEnvelope{
		Status:        core.TaskStatusCode(stringKwarg(kwargs, "env_status")),
		Operation:     stringKwarg(kwargs, "env_operation"),
		EntityKey:     core.EntityKey(stringKwarg(kwargs, "env_entity_key")),
		ID:            stringKwarg(kwargs, "env_id"),
		TaskID:        stringKwarg(kwargs, "env_task_id"),
		TaskName:      stringKwarg(kwargs, "env_task_name"),
		GrievanceID:   stringKwarg(kwargs, "env_grievance_id"),
		ComplainantID: stringKwarg(kwargs, "env_complainant_id"),
		LanguageCode:  stringKwarg(kwargs, "env_language_code"),
		FieldName:     stringKwarg(kwargs, "env_field_name"),
		Error:         stringKwarg(kwargs, "env_error"),
	}
	if v, ok := kwargs["env_values"].(map[string]interface{}); ok {
		env.Values = v
	}
	attempt, _ := kwargs["env_source_attempt"].(int)
	// After the broker's JSON round trip the number arrives as a float64.
	if f, ok := kwargs["env_source_attempt"].(float64); ok {
		attempt = int(f)
	}
	return env, attempt
}

func stringKwarg(kwargs map[string]interface{}, key string) string {
	if kwargs == nil {
		return ""
	}
	if v, ok := kwargs[key].(string); ok {
		return v
	}
	return ""
}
