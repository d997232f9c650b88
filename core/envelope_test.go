package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultEnvelope_MissingFields(t *testing.T) {
	t.Run("all required fields present", func(t *testing.T) {
		env := &ResultEnvelope{
			Status:        TaskStatusSuccess,
			EntityKey:     EntityKeyTranscription,
			ID:            "TR-20250101-KOJH-ABCD-A",
			Values:        map[string]interface{}{"automated_transcript": "hello"},
			GrievanceID:   "GR-20250101-KOJH-ABCD-A",
			ComplainantID: "CM-20250101-KOJH-ABCD-A",
		}
		assert.Empty(t, env.MissingFields())
	})

	// S4: status/entity_key/values present, id/grievance_id/complainant_id missing.
	t.Run("S4 missing id and context ids", func(t *testing.T) {
		env := &ResultEnvelope{
			Status:    TaskStatusSuccess,
			EntityKey: EntityKeyGrievance,
			Values:    map[string]interface{}{"field": "value"},
		}
		assert.Equal(t, []string{"id", "grievance_id", "complainant_id"}, env.MissingFields())
	})

	t.Run("everything missing preserves fixed order", func(t *testing.T) {
		env := &ResultEnvelope{}
		assert.Equal(t,
			[]string{"status", "entity_key", "id", "values", "grievance_id", "complainant_id"},
			env.MissingFields())
	})
}

func TestStatusChannel(t *testing.T) {
	tests := []struct {
		operation string
		expected  string
	}{
		{"file_upload", "status_update:file_upload"},
		{"transcription", "status_update:transcription"},
		{"classification", "status_update:classification"},
		{"contact_info", "status_update:contact_info"},
		{"translation", "status_update:translation"},
		{"store_result", "status_update:store_result"},
		{"unrecognized_operation", "status_update"},
		{"", "status_update"},
	}

	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusChannel(tt.operation))
		})
	}
}

func TestRoutesToBus(t *testing.T) {
	tests := []struct {
		grievanceID string
		routes      bool
	}{
		{"GR-20250101-KOJH-ABCD-A", true},
		{"GR-20250101-KOJH-ABCD-B", false},
		{"session-only-id", false},
	}

	for _, tt := range tests {
		t.Run(tt.grievanceID, func(t *testing.T) {
			assert.Equal(t, tt.routes, RoutesToBus(tt.grievanceID))
		})
	}
}

func TestStatusFrame(t *testing.T) {
	now := time.Now()
	frame := StatusFrame{
		TaskName:    "transcribe_audio_file_task",
		Status:      TaskStatusSuccess,
		GrievanceID: "GR-20250101-KOJH-ABCD-A",
		SessionID:   "session-1",
		Data:        map[string]interface{}{"grievance_description": "text"},
		Timestamp:   now,
	}

	assert.Equal(t, TaskStatusSuccess, frame.Status)
	assert.True(t, frame.Status.IsTerminal())
	assert.Equal(t, now, frame.Timestamp)
}
