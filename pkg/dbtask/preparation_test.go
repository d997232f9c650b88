package dbtask

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grievanceplatform/orchestrator/core"
)

func TestPrepareTranscription_RenamesFieldAndCarriesLanguage(t *testing.T) {
	env := core.ResultEnvelope{
		FieldName:    "grievance_description_audio",
		LanguageCode: "ne",
		GrievanceID:  "GR-20250101-KOJH-ABCD-A",
		Values: map[string]interface{}{
			"grievance_description_audio": "transcribed text",
			"recording_id":                "REC-20250101-KOJH-ABCD-A",
		},
	}

	out := prepareTranscription(env)

	assert.Equal(t, "transcribed text", out["automated_transcript"])
	assert.NotContains(t, out, "grievance_description_audio")
	assert.Equal(t, "ne", out["language_code"])
	assert.Equal(t, env.GrievanceID, out["grievance_id"])
	assert.Equal(t, "REC-20250101-KOJH-ABCD-A", out["recording_id"])
}

func TestPrepareTranslation_RenamesLanguageAndSetsMethod(t *testing.T) {
	env := core.ResultEnvelope{
		LanguageCode: "ne",
		GrievanceID:  "GR-20250101-KOJH-ABCD-A",
		Values: map[string]interface{}{
			"grievance_summary_en": "summary",
		},
	}

	out := prepareTranslation(env)

	assert.Equal(t, "ne", out["source_language"])
	assert.NotContains(t, out, "language_code")
	assert.Equal(t, "LLM", out["translation_method"])
	assert.Equal(t, "summary", out["grievance_summary_en"])
}

func TestSplitGrievanceFields(t *testing.T) {
	values := map[string]interface{}{
		"complainant_full_name": "Ram Thapa",
		"complainant_phone":     "9800000000",
		"grievance_summary":     "road damage",
		"grievance_location":    "Kathmandu",
	}

	complainant, grievance := splitGrievanceFields(values)

	assert.Equal(t, "Ram Thapa", complainant["full_name"])
	assert.Equal(t, "9800000000", complainant["phone"])
	assert.Len(t, complainant, 2)

	assert.Equal(t, "road damage", grievance["grievance_summary"])
	assert.Equal(t, "Kathmandu", grievance["grievance_location"])
	assert.Len(t, grievance, 2)
}
