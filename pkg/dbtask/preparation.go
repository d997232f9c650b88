package dbtask

import (
	"strings"

	"github.com/grievanceplatform/orchestrator/core"
)

// prepareTranscription implements §4.5's transcription preparation rule:
// rename values[field_name] to automated_transcript, drop the original key,
// and carry language_code and grievance_id alongside for the upsert.
func prepareTranscription(env core.ResultEnvelope) map[string]interface{} {
	out := make(map[string]interface{}, len(env.Values)+2)
	for k, v := range env.Values {
		if k == env.FieldName {
			continue
		}
		out[k] = v
	}
	if v, ok := env.Values[env.FieldName]; ok {
		out["automated_transcript"] = v
	}
	out["field_name"] = env.FieldName
	out["language_code"] = env.LanguageCode
	out["grievance_id"] = env.GrievanceID
	return out
}

// prepareTranslation implements §4.5's translation preparation rule: rename
// language_code to source_language and set translation_method to "LLM".
func prepareTranslation(env core.ResultEnvelope) map[string]interface{} {
	out := make(map[string]interface{}, len(env.Values)+2)
	for k, v := range env.Values {
		out[k] = v
	}
	out["source_language"] = env.LanguageCode
	delete(out, "language_code")
	out["translation_method"] = "LLM"
	out["grievance_id"] = env.GrievanceID
	return out
}

// splitGrievanceFields implements §4.5's grievance preparation rule: split
// the flat field set into complainant_-prefixed fields (prefix stripped,
// routed to the complainant upsert) and everything else (routed to the
// grievance upsert), per original_source's flat intake-form payload shape.
func splitGrievanceFields(values map[string]interface{}) (complainant, grievance map[string]interface{}) {
	complainant = make(map[string]interface{})
	grievance = make(map[string]interface{})
	for k, v := range values {
		if rest, ok := strings.CutPrefix(k, "complainant_"); ok {
			complainant[rest] = v
			continue
		}
		grievance[k] = v
	}
	return complainant, grievance
}
