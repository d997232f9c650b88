package dbtask

// Schema is the orchestrator's Postgres DDL, grounded on original_source/
// scripts/database's table-creation scripts (create_office_management_table.py
// and the field lists embedded in complainant_manager.py/grievance_manager.py).
// cmd/orchestratorctl's "schema-init" subcommand executes this against a
// fresh database.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
    task_id        TEXT PRIMARY KEY,
    task_name      TEXT,
    status_code    TEXT NOT NULL,
    started_at     TIMESTAMPTZ,
    completed_at   TIMESTAMPTZ,
    retry_count    INTEGER NOT NULL DEFAULT 0,
    retry_history  JSONB NOT NULL DEFAULT '[]'::jsonb,
    last_envelope  JSONB,
    error_message  TEXT,
    result         JSONB,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_code ON tasks(status_code);

CREATE TABLE IF NOT EXISTS task_entities (
    task_id    TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
    entity_key TEXT NOT NULL,
    entity_id  TEXT NOT NULL,
    PRIMARY KEY (task_id, entity_key, entity_id)
);

CREATE TABLE IF NOT EXISTS complainants (
    complainant_id           TEXT PRIMARY KEY,
    complainant_full_name    TEXT,
    complainant_phone        TEXT,
    complainant_phone_hash   TEXT,
    complainant_email        TEXT,
    complainant_province     TEXT,
    complainant_district     TEXT,
    complainant_municipality TEXT,
    complainant_ward         TEXT,
    complainant_village      TEXT,
    complainant_address      TEXT,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_complainants_phone_hash ON complainants(complainant_phone_hash);

CREATE TABLE IF NOT EXISTS grievances (
    grievance_id                TEXT PRIMARY KEY,
    complainant_id              TEXT REFERENCES complainants(complainant_id),
    grievance_categories        TEXT[],
    grievance_summary           TEXT,
    grievance_description       TEXT,
    grievance_claimed_amount    NUMERIC,
    grievance_location          TEXT,
    language_code               TEXT DEFAULT 'ne',
    source                      TEXT,
    classification_status       TEXT,
    grievance_modification_date TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS grievance_statuses (
    status_code     TEXT PRIMARY KEY,
    status_name_en  TEXT NOT NULL,
    status_name_ne  TEXT,
    description_en  TEXT,
    description_ne  TEXT,
    sort_order      INTEGER NOT NULL DEFAULT 0,
    is_active       BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS grievance_status_history (
    id           BIGSERIAL PRIMARY KEY,
    grievance_id TEXT NOT NULL REFERENCES grievances(grievance_id) ON DELETE CASCADE,
    status_code  TEXT NOT NULL,
    assigned_to  TEXT,
    notes        TEXT,
    created_by   TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS grievance_voice_recordings (
    recording_id      TEXT PRIMARY KEY,
    grievance_id      TEXT NOT NULL REFERENCES grievances(grievance_id) ON DELETE CASCADE,
    file_path         TEXT,
    field_name        TEXT,
    file_size         BIGINT,
    duration_seconds  NUMERIC,
    processing_status TEXT DEFAULT 'pending',
    language_code     TEXT DEFAULT 'ne',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS grievance_transcriptions (
    transcription_id     TEXT PRIMARY KEY,
    recording_id         TEXT REFERENCES grievance_voice_recordings(recording_id) ON DELETE CASCADE,
    grievance_id         TEXT NOT NULL REFERENCES grievances(grievance_id) ON DELETE CASCADE,
    field_name           TEXT,
    automated_transcript TEXT,
    verified_transcript  TEXT,
    verification_status  TEXT DEFAULT 'PENDING',
    confidence_score     NUMERIC,
    verification_notes   TEXT,
    verified_by          TEXT,
    verified_at          TIMESTAMPTZ,
    language_code        TEXT DEFAULT 'ne',
    task_id              TEXT,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS grievance_translations (
    translation_id           TEXT PRIMARY KEY,
    grievance_id             TEXT NOT NULL REFERENCES grievances(grievance_id) ON DELETE CASCADE,
    task_id                  TEXT,
    grievance_description_en TEXT,
    grievance_summary_en     TEXT,
    grievance_categories_en  TEXT[],
    source_language          TEXT DEFAULT 'ne',
    translation_method       TEXT,
    confidence_score         NUMERIC,
    verified_by              TEXT,
    verified_at              TIMESTAMPTZ,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS office_management (
    office_id       TEXT PRIMARY KEY,
    office_name     TEXT NOT NULL,
    office_address  TEXT,
    office_email    TEXT,
    office_pic_name TEXT,
    office_phone    TEXT,
    district        TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS office_municipality_ward (
    office_id  TEXT NOT NULL REFERENCES office_management(office_id) ON DELETE CASCADE,
    municipality TEXT NOT NULL,
    ward         TEXT NOT NULL,
    village      TEXT,
    PRIMARY KEY (office_id, municipality, ward)
);
`
