package core

import (
	"strings"
	"time"
)

// StatusFrame is the transient message published on the Status Bus (spec
// §3). Frames are best-effort and at-least-once: subscribers must tolerate
// duplicates, and ordering is only guaranteed per task attempt (I5).
type StatusFrame struct {
	TaskName    string                 `json:"task_name"`
	Status      TaskStatusCode         `json:"status"`
	GrievanceID string                 `json:"grievance_id"`
	SessionID   string                 `json:"session_id"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// ResultEnvelope is the structured result a task body returns, consumed by
// the Database Task Manager (pkg/dbtask) and by downstream pipeline tasks
// (spec §3). Values is the authoritative data payload; EntityKey and ID
// tell the persistence layer which table to upsert.
type ResultEnvelope struct {
	Status        TaskStatusCode         `json:"status"`
	Operation     string                 `json:"operation,omitempty"`
	EntityKey     EntityKey              `json:"entity_key,omitempty"`
	ID            string                 `json:"id,omitempty"`
	TaskID        string                 `json:"task_id,omitempty"`
	TaskName      string                 `json:"task_name,omitempty"`
	GrievanceID   string                 `json:"grievance_id,omitempty"`
	ComplainantID string                 `json:"complainant_id,omitempty"`
	Values        map[string]interface{} `json:"values,omitempty"`
	LanguageCode  string                 `json:"language_code,omitempty"`
	FieldName     string                 `json:"field_name,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// MissingFields reports which fields the Database Task Manager requires
// (spec §4.5 step 1) are absent from the envelope, in the fixed order
// status, entity_key, id, values, grievance_id, complainant_id — matching
// the "Task result missing required fields: [...]" message shape.
func (e *ResultEnvelope) MissingFields() []string {
	var missing []string
	if e.Status == "" {
		missing = append(missing, "status")
	}
	if e.EntityKey == "" {
		missing = append(missing, "entity_key")
	}
	if e.ID == "" {
		missing = append(missing, "id")
	}
	if e.Values == nil {
		missing = append(missing, "values")
	}
	if e.GrievanceID == "" {
		missing = append(missing, "grievance_id")
	}
	if e.ComplainantID == "" {
		missing = append(missing, "complainant_id")
	}
	return missing
}

// recognizedOperations is the set of operations with a specialized status
// bus channel (spec §6): status_update:{operation}.
var recognizedOperations = map[string]bool{
	"file_upload":    true,
	"transcription":  true,
	"classification": true,
	"contact_info":   true,
	"translation":    true,
	"store_result":   true,
}

// StatusChannel derives the status-bus channel for the given operation,
// falling back to DefaultStatusChannel when the operation is empty or
// unrecognized (spec §4.6, §6).
func StatusChannel(operation string) string {
	if recognizedOperations[operation] {
		return DefaultStatusChannel + ":" + operation
	}
	return DefaultStatusChannel
}

// RoutesToBus reports whether grievanceID's trailing source suffix selects
// the accessible interface. Only accessible rooms receive status frames;
// bot sessions poll task status by other means and skip the bus call
// (spec §4.6 routing rule).
func RoutesToBus(grievanceID string) bool {
	return strings.HasSuffix(grievanceID, RoomSuffixAccessible)
}
