package dbtask

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the narrow pgx surface the entity upserts need, satisfied by
// both a pooled connection and a transaction so the same upsert code runs
// standalone or inside the single transaction §5 requires ("every
// multi-statement update ... executes inside a single transaction with
// commit-on-success, rollback-on-error").
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Tx is the transaction surface HandleDBOperation needs.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Pool opens transactions against the orchestrator's Postgres database.
type Pool interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
}

// upsertComplainant persists complainant fields (original_source/backend/
// services/database_services/complainant_manager.py's ALLOWED_UPDATE_FIELDS),
// encrypting PII columns and storing a phone hash for equality lookup.
func (m *Manager) upsertComplainant(ctx context.Context, q Querier, complainantID string, fields map[string]interface{}) error {
	fullName, _ := fields["full_name"].(string)
	phone, _ := fields["phone"].(string)
	email, _ := fields["email"].(string)
	address, _ := fields["address"].(string)

	encFullName, err := m.encryptor.EncryptField(fullName)
	if err != nil {
		return fmt.Errorf("encrypt complainant full_name: %w", err)
	}
	encPhone, err := m.encryptor.EncryptField(phone)
	if err != nil {
		return fmt.Errorf("encrypt complainant phone: %w", err)
	}
	encEmail, err := m.encryptor.EncryptField(email)
	if err != nil {
		return fmt.Errorf("encrypt complainant email: %w", err)
	}
	encAddress, err := m.encryptor.EncryptField(address)
	if err != nil {
		return fmt.Errorf("encrypt complainant address: %w", err)
	}
	phoneHash := m.encryptor.HashPhone(phone)

	_, err = q.Exec(ctx, `
		INSERT INTO complainants (
			complainant_id, complainant_full_name, complainant_phone, complainant_phone_hash,
			complainant_email, complainant_province, complainant_district, complainant_municipality,
			complainant_ward, complainant_village, complainant_address
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (complainant_id) DO UPDATE SET
			complainant_full_name = EXCLUDED.complainant_full_name,
			complainant_phone = EXCLUDED.complainant_phone,
			complainant_phone_hash = EXCLUDED.complainant_phone_hash,
			complainant_email = EXCLUDED.complainant_email,
			complainant_province = EXCLUDED.complainant_province,
			complainant_district = EXCLUDED.complainant_district,
			complainant_municipality = EXCLUDED.complainant_municipality,
			complainant_ward = EXCLUDED.complainant_ward,
			complainant_village = EXCLUDED.complainant_village,
			complainant_address = EXCLUDED.complainant_address,
			updated_at = now()
	`, complainantID, encFullName, encPhone, phoneHash, encEmail,
		fields["province"], fields["district"], fields["municipality"],
		fields["ward"], fields["village"], encAddress)
	if err != nil {
		return fmt.Errorf("upsert complainant %s: %w", complainantID, err)
	}
	return nil
}

// upsertGrievance persists grievance fields (grievance_manager.py's
// GrievanceDbManager), reporting whether the row was newly created so the
// caller can decide whether this is the first full submission.
func (m *Manager) upsertGrievance(ctx context.Context, q Querier, grievanceID, complainantID string, fields map[string]interface{}) (isNew bool, err error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM grievances WHERE grievance_id = $1)`, grievanceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check grievance %s exists: %w", grievanceID, err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO grievances (
			grievance_id, complainant_id, grievance_categories, grievance_summary,
			grievance_description, grievance_claimed_amount, grievance_location,
			language_code, source
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (grievance_id) DO UPDATE SET
			grievance_categories = EXCLUDED.grievance_categories,
			grievance_summary = EXCLUDED.grievance_summary,
			grievance_description = EXCLUDED.grievance_description,
			grievance_claimed_amount = EXCLUDED.grievance_claimed_amount,
			grievance_location = EXCLUDED.grievance_location,
			language_code = EXCLUDED.language_code,
			grievance_modification_date = now()
	`, grievanceID, complainantID, toStringSlice(fields["categories"]), fields["summary"], fields["description"],
		fields["claimed_amount"], fields["location"], orDefault(fields["language_code"], "ne"), fields["source"])
	if err != nil {
		return false, fmt.Errorf("upsert grievance %s: %w", grievanceID, err)
	}
	return !exists, nil
}

// upsertRecording persists grievance_voice_recordings rows.
func (m *Manager) upsertRecording(ctx context.Context, q Querier, recordingID string, fields map[string]interface{}) error {
	_, err := q.Exec(ctx, `
		INSERT INTO grievance_voice_recordings (
			recording_id, grievance_id, file_path, field_name, file_size,
			duration_seconds, processing_status, language_code
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (recording_id) DO UPDATE SET
			file_path = EXCLUDED.file_path,
			field_name = EXCLUDED.field_name,
			file_size = EXCLUDED.file_size,
			duration_seconds = EXCLUDED.duration_seconds,
			processing_status = EXCLUDED.processing_status,
			language_code = EXCLUDED.language_code,
			updated_at = now()
	`, recordingID, fields["grievance_id"], fields["file_path"], fields["field_name"],
		fields["file_size"], fields["duration_seconds"],
		orDefault(fields["processing_status"], "pending"), orDefault(fields["language_code"], "ne"))
	if err != nil {
		return fmt.Errorf("upsert recording %s: %w", recordingID, err)
	}
	return nil
}

// upsertTranscription persists grievance_transcriptions rows, fields already
// translated by prepareTranscription.
func (m *Manager) upsertTranscription(ctx context.Context, q Querier, transcriptionID, taskID string, fields map[string]interface{}) error {
	_, err := q.Exec(ctx, `
		INSERT INTO grievance_transcriptions (
			transcription_id, recording_id, grievance_id, field_name, automated_transcript,
			verification_status, language_code, task_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (transcription_id) DO UPDATE SET
			automated_transcript = EXCLUDED.automated_transcript,
			language_code = EXCLUDED.language_code,
			task_id = EXCLUDED.task_id,
			updated_at = now()
	`, transcriptionID, fields["recording_id"], fields["grievance_id"], fields["field_name"],
		fields["automated_transcript"], "PENDING", orDefault(fields["language_code"], "ne"), taskID)
	if err != nil {
		return fmt.Errorf("upsert transcription %s: %w", transcriptionID, err)
	}
	return nil
}

// upsertTranslation persists grievance_translations rows, fields already
// translated by prepareTranslation.
func (m *Manager) upsertTranslation(ctx context.Context, q Querier, translationID, taskID string, fields map[string]interface{}) error {
	_, err := q.Exec(ctx, `
		INSERT INTO grievance_translations (
			translation_id, grievance_id, task_id, grievance_description_en,
			grievance_summary_en, grievance_categories_en, source_language, translation_method
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (translation_id) DO UPDATE SET
			grievance_description_en = EXCLUDED.grievance_description_en,
			grievance_summary_en = EXCLUDED.grievance_summary_en,
			grievance_categories_en = EXCLUDED.grievance_categories_en,
			source_language = EXCLUDED.source_language,
			translation_method = EXCLUDED.translation_method,
			updated_at = now()
	`, translationID, fields["grievance_id"], taskID, fields["grievance_description_en"],
		fields["grievance_summary_en"], toStringSlice(fields["grievance_categories_en"]),
		orDefault(fields["source_language"], "ne"), fields["translation_method"])
	if err != nil {
		return fmt.Errorf("upsert translation %s: %w", translationID, err)
	}
	return nil
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func orDefault(v interface{}, def string) interface{} {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
