// Package dbtask implements the Database Task Manager (C5, spec §4.5): the
// single subsystem allowed to write grievance-domain tables. It translates
// a task's ResultEnvelope into entity-specific upserts, creates or updates
// the task row retroactively (a task row may only exist once the entity it
// points at exists, I1), and links task_entities — all inside one
// transaction per §5's single-transaction requirement.
package dbtask

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// Manager is the Database Task Manager (C5).
type Manager struct {
	pool      Pool
	encryptor *Encryptor
	logger    core.ComponentAwareLogger
	breaker   core.CircuitBreaker
}

// New returns a Manager backed by pool. breaker protects every Manager
// operation that reaches Postgres from cascading into every worker blocking
// on a database outage — a failing connection pool otherwise ties up one
// worker goroutine per in-flight task until its own context deadline fires.
func New(pool *pgxpool.Pool, encryptor *Encryptor, logger core.ComponentAwareLogger, breaker core.CircuitBreaker) *Manager {
	return &Manager{pool: pgxPoolAdapter{pool}, encryptor: encryptor, logger: logger, breaker: breaker}
}

// protect runs fn through m.breaker when one is configured, otherwise runs
// it directly — mirrors pkg/llm.Service.protect's nil-safe pattern.
func (m *Manager) protect(ctx context.Context, fn func() error) error {
	if m.breaker == nil {
		return fn()
	}
	return m.breaker.Execute(ctx, fn)
}

// NewPoolConfig parses dsn into a pgxpool configuration with
// DefaultQueryExecMode explicitly set to QueryExecModeDescribeExec rather
// than the driver default of QueryExecModeCacheStatement. CacheStatement
// caches a query's result shape by its prepared-statement fingerprint; a
// schema migration that runs while the pool is still serving traffic leaves
// that cache stale and subsequent queries fail with SQLSTATE 0A000 until
// every connection recycles. DescribeExec re-describes each statement on
// every execution, trading a small amount of round-trip latency for
// correctness across in-place migrations.
func NewPoolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("dbtask: parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	return cfg, nil
}

// NewPool opens a connection pool against dsn and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := NewPoolConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dbtask: connect: %w: %w", core.ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbtask: ping: %w: %w", core.ErrConnectionFailed, err)
	}
	return pool, nil
}

// pgxPoolAdapter narrows *pgxpool.Pool to the Pool interface so Manager's
// own tests can substitute a fake Pool without touching a live database.
type pgxPoolAdapter struct{ pool *pgxpool.Pool }

func (a pgxPoolAdapter) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return a.pool.Exec(ctx, sql, args...)
}

func (a pgxPoolAdapter) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return a.pool.QueryRow(ctx, sql, args...)
}

func (a pgxPoolAdapter) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return a.pool.Query(ctx, sql, args...)
}

func (a pgxPoolAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// HandleDBOperation implements §4.5's handle_db_operation protocol:
//  1. validate the envelope carries every required field;
//  2. translate it per the entity-specific preparation rule;
//  3. upsert the entity, keyed on its natural id (idempotent);
//  4. on the originating task's first attempt, insert its task row
//     (status IN_PROGRESS) and link task_entities — entity before task row,
//     satisfying I1;
//  5. set the task row's terminal status and result/error_message.
//
// attempt is the attempt count of the task that PRODUCED env (not of
// whichever task is currently invoking HandleDBOperation) — the caller
// reads it from the originating TaskContext and passes it through, since
// the envelope alone doesn't carry it.
func (m *Manager) HandleDBOperation(ctx context.Context, env core.ResultEnvelope, attempt int) (result *core.ResultEnvelope, err error) {
	start := time.Now()
	defer func() {
		telemetry.Histogram(telemetry.MetricDBTaskUpsertDuration, float64(time.Since(start).Milliseconds()), "entity_key", string(env.EntityKey))
		if err != nil {
			telemetry.Counter(telemetry.MetricDBTaskUpsertErrors, "entity_key", string(env.EntityKey))
		}
	}()

	if missing := env.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrMissingEnvelopeField, strings.Join(missing, ", "))
	}
	if env.TaskID == "" {
		return nil, fmt.Errorf("%w: task_id", core.ErrMissingEnvelopeField)
	}
	if !env.EntityKey.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownEntityKey, env.EntityKey)
	}

	var tx Tx
	if beginErr := m.protect(ctx, func() error {
		var err error
		tx, err = m.pool.Begin(ctx)
		return err
	}); beginErr != nil {
		return nil, fmt.Errorf("dbtask: begin transaction: %w", core.ErrConnectionFailed)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once Commit has succeeded

	entityID, err := m.upsertByKey(ctx, tx, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrEntityUpsertFailed, err)
	}

	if attempt == 0 {
		if err := m.insertTaskRow(ctx, tx, env.TaskID, env.TaskName); err != nil {
			return nil, fmt.Errorf("%w: %s", core.ErrTaskRowConflict, err)
		}
		telemetry.Counter(telemetry.MetricDBTaskRowsCreated, "entity_key", string(env.EntityKey))
		if err := m.linkTaskEntity(ctx, tx, env.TaskID, env.EntityKey, entityID); err != nil {
			return nil, fmt.Errorf("%w: %s", core.ErrEntityUpsertFailed, err)
		}
		if env.EntityKey != core.EntityKeyGrievance && env.GrievanceID != "" {
			if err := m.linkTaskEntity(ctx, tx, env.TaskID, core.EntityKeyGrievance, env.GrievanceID); err != nil {
				return nil, fmt.Errorf("%w: %s", core.ErrEntityUpsertFailed, err)
			}
		}
	}

	status := env.Status
	if status == "" {
		status = core.TaskStatusSuccess
	}
	if err := m.finalizeTaskRow(ctx, tx, env.TaskID, status, env); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrTaskRowConflict, err)
	}

	if commitErr := m.protect(ctx, func() error { return tx.Commit(ctx) }); commitErr != nil {
		return nil, fmt.Errorf("%w: dbtask commit: %s", core.ErrEntityUpsertFailed, commitErr)
	}

	if m.logger != nil {
		m.logger.InfoWithContext(ctx, "db operation committed", map[string]interface{}{
			"operation":  "dbtask_handle_db_operation",
			"task_id":    env.TaskID,
			"entity_key": string(env.EntityKey),
			"entity_id":  entityID,
		})
	}

	return &core.ResultEnvelope{
		Status:        core.TaskStatusSuccess,
		Operation:     env.Operation,
		EntityKey:     env.EntityKey,
		ID:            entityID,
		TaskID:        env.TaskID,
		GrievanceID:   env.GrievanceID,
		ComplainantID: env.ComplainantID,
		Values:        map[string]interface{}{"retry_count": attempt},
	}, nil
}

func (m *Manager) upsertByKey(ctx context.Context, tx Tx, env core.ResultEnvelope) (string, error) {
	switch env.EntityKey {
	case core.EntityKeyComplainant:
		if err := m.upsertComplainant(ctx, tx, env.ID, env.Values); err != nil {
			return "", err
		}
		return env.ID, nil
	case core.EntityKeyGrievance:
		return m.upsertGrievanceSplit(ctx, tx, env)
	case core.EntityKeyRecording:
		if err := m.upsertRecording(ctx, tx, env.ID, env.Values); err != nil {
			return "", err
		}
		return env.ID, nil
	case core.EntityKeyTranscription:
		if err := m.upsertTranscription(ctx, tx, env.ID, env.TaskID, prepareTranscription(env)); err != nil {
			return "", err
		}
		return env.ID, nil
	case core.EntityKeyTranslation:
		if err := m.upsertTranslation(ctx, tx, env.ID, env.TaskID, prepareTranslation(env)); err != nil {
			return "", err
		}
		return env.ID, nil
	default:
		return "", fmt.Errorf("%w: %q", core.ErrUnknownEntityKey, env.EntityKey)
	}
}

// upsertGrievanceSplit implements the grievance preparation rule: split the
// envelope's flat values into complainant and grievance fields, upsert the
// complainant first (I1 within this entity pair), then the grievance, and
// append a grievance_status_history row on every status-bearing submission —
// SUBMITTED on first creation, whatever status the caller supplied
// otherwise (a status transition the distilled spec's "first submission
// only" rule didn't anticipate but original_source's grievance_manager.py
// records unconditionally).
func (m *Manager) upsertGrievanceSplit(ctx context.Context, tx Tx, env core.ResultEnvelope) (string, error) {
	complainantFields, grievanceFields := splitGrievanceFields(env.Values)

	if env.ComplainantID != "" {
		if err := m.upsertComplainant(ctx, tx, env.ComplainantID, complainantFields); err != nil {
			return "", err
		}
	}

	grievanceID := env.ID
	isNew, err := m.upsertGrievance(ctx, tx, grievanceID, env.ComplainantID, grievanceFields)
	if err != nil {
		return "", err
	}

	status, hasStatus := grievanceFields["status"].(string)
	if isNew {
		status, hasStatus = "SUBMITTED", true
	}
	if hasStatus {
		if err := m.appendStatusHistory(ctx, tx, grievanceID, status); err != nil {
			return "", err
		}
	}

	return grievanceID, nil
}

func (m *Manager) appendStatusHistory(ctx context.Context, q Querier, grievanceID, status string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO grievance_status_history (grievance_id, status_code, created_by)
		VALUES ($1, $2, 'orchestrator')
	`, grievanceID, status)
	if err != nil {
		return fmt.Errorf("append status history for %s: %w", grievanceID, err)
	}
	return nil
}

func (m *Manager) insertTaskRow(ctx context.Context, q Querier, taskID, taskName string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO tasks (task_id, task_name, status_code, started_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (task_id) DO NOTHING
	`, taskID, nullIfEmpty(taskName), core.TaskStatusInProgress)
	if err != nil {
		return fmt.Errorf("insert task row %s: %w", taskID, err)
	}
	return nil
}

func (m *Manager) linkTaskEntity(ctx context.Context, q Querier, taskID string, key core.EntityKey, entityID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO task_entities (task_id, entity_key, entity_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, entity_key, entity_id) DO NOTHING
	`, taskID, string(key), entityID)
	if err != nil {
		return fmt.Errorf("link task %s to %s=%s: %w", taskID, key, entityID, err)
	}
	return nil
}

func (m *Manager) finalizeTaskRow(ctx context.Context, q Querier, taskID string, status core.TaskStatusCode, env core.ResultEnvelope) error {
	var result []byte
	if env.Values != nil {
		b, err := json.Marshal(env.Values)
		if err != nil {
			return fmt.Errorf("marshal result for %s: %w", taskID, err)
		}
		result = b
	}

	var errMsg *string
	if env.Error != "" {
		errMsg = &env.Error
	}

	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	_, err := q.Exec(ctx, `
		UPDATE tasks SET
			status_code = $2,
			result = $3,
			error_message = $4,
			completed_at = COALESCE($5, completed_at),
			updated_at = now()
		WHERE task_id = $1
	`, taskID, string(status), result, errMsg, completedAt)
	if err != nil {
		return fmt.Errorf("finalize task row %s: %w", taskID, err)
	}
	return nil
}

// RecordRetry implements lifecycle.RetryRecorder: it appends attempt to the
// task row's retry_history, advances retry_count, and snapshots inv as
// last_envelope so a maintenance sweep can rebuild a re-deliverable envelope
// for this task without ever having seen it enqueued itself. It tolerates a
// task row that doesn't exist yet by returning core.ErrTaskNotFound — the
// row is only created once HandleDBOperation upserts the entity it points
// at (I1), and a task can be retried before it ever reaches that point.
func (m *Manager) RecordRetry(ctx context.Context, taskID string, attempt core.RetryAttempt, inv core.Invocation) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("dbtask: marshal retry attempt: %w", err)
	}
	envelope, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("dbtask: marshal retry invocation: %w", err)
	}

	tag, err := m.pool.Exec(ctx, `
		UPDATE tasks SET
			retry_history = retry_history || $2::jsonb,
			retry_count = retry_count + 1,
			status_code = $3,
			last_envelope = $4::jsonb,
			task_name = COALESCE(task_name, $5),
			updated_at = now()
		WHERE task_id = $1
	`, taskID, "["+string(payload)+"]", string(core.TaskStatusRetrying), envelope, nullIfEmpty(inv.TaskName))
	if err != nil {
		return fmt.Errorf("dbtask: record retry for %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// StuckRetry is a task row found stuck in RETRYING past its own scheduled
// delay (plus grace), with enough of its original invocation recovered to
// re-enqueue it.
type StuckRetry struct {
	TaskID     string
	Attempt    int
	Invocation core.Invocation
}

// FindStuckRetrying returns every task row whose status is RETRYING and
// whose last recorded delay (retry_history's last next_delay_s, relative to
// updated_at) plus grace has already elapsed — the in-process retry timer
// that should have re-enqueued it (pkg/lifecycle's time.AfterFunc) never
// fired, most likely because the worker holding it restarted mid-wait.
// Rows without a last_envelope (pre-dating this snapshot, or never
// retried) are skipped since there is nothing to rebuild an envelope from.
func (m *Manager) FindStuckRetrying(ctx context.Context, grace time.Duration) ([]StuckRetry, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT task_id, retry_count, last_envelope
		FROM tasks
		WHERE status_code = $1
		  AND last_envelope IS NOT NULL
		  AND updated_at
		      + make_interval(secs => COALESCE((retry_history->-1->>'next_delay_s')::float8, 0))
		      + $2::interval
		      < now()
	`, string(core.TaskStatusRetrying), intervalLiteral(grace))
	if err != nil {
		return nil, fmt.Errorf("dbtask: query stuck retrying tasks: %w", err)
	}
	defer rows.Close()

	var stuck []StuckRetry
	for rows.Next() {
		var s StuckRetry
		var raw []byte
		if err := rows.Scan(&s.TaskID, &s.Attempt, &raw); err != nil {
			return nil, fmt.Errorf("dbtask: scan stuck retrying task: %w", err)
		}
		if err := json.Unmarshal(raw, &s.Invocation); err != nil {
			return nil, fmt.Errorf("dbtask: decode last_envelope for %s: %w", s.TaskID, err)
		}
		stuck = append(stuck, s)
	}
	return stuck, rows.Err()
}

// PruneOldResults deletes terminal (SUCCESS or FAILED) task rows whose
// completed_at predates ttl, taking their retry_history and task_entities
// links with them (ON DELETE CASCADE) — the sweep's result-retention half.
func (m *Manager) PruneOldResults(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := m.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE status_code IN ($1, $2)
		  AND completed_at IS NOT NULL
		  AND completed_at < now() - $3::interval
	`, string(core.TaskStatusSuccess), string(core.TaskStatusFailed), intervalLiteral(ttl))
	if err != nil {
		return 0, fmt.Errorf("dbtask: prune old task results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// intervalLiteral formats d as a Postgres interval literal; pgx has no
// direct time.Duration-to-interval binding, so this is passed as ::interval
// text rather than a native parameter type.
func intervalLiteral(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}
