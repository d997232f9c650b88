package dbtask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievanceplatform/orchestrator/core"
)

// fakeRow is a minimal pgx.Row double: pgx.Row is just an interface with a
// single Scan(dest ...any) error method, so a plain function value is
// enough — no need to fake pgx's real row-scanning machinery.
type fakeRow struct {
	scan func(dest ...interface{}) error
}

func (r fakeRow) Scan(dest ...interface{}) error { return r.scan(dest...) }

type execCall struct {
	sql  string
	args []interface{}
}

// fakeTx is an in-memory double for the Tx interface so HandleDBOperation's
// transaction orchestration (upsert-then-task-row, commit-on-success,
// rollback-on-error) is testable without a live Postgres instance — there
// is no in-memory Postgres fake in the reference pack, unlike miniredis for
// pkg/broker and pkg/lifecycle.
type fakeTx struct {
	execs           []execCall
	grievanceExists bool
	execErrOn       string // substring of a query that should fail, if set
	committed       bool
	rolledBack      bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, execCall{sql, args})
	if tx.execErrOn != "" && strings.Contains(sql, tx.execErrOn) {
		return pgconn.CommandTag{}, errors.New("simulated exec failure")
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (tx *fakeTx) QueryRow(_ context.Context, _ string, _ ...interface{}) pgx.Row {
	exists := tx.grievanceExists
	return fakeRow{scan: func(dest ...interface{}) error {
		if p, ok := dest[0].(*bool); ok {
			*p = exists
		}
		return nil
	}}
}

func (tx *fakeTx) Query(_ context.Context, _ string, _ ...interface{}) (pgx.Rows, error) {
	return &fakeRows{}, nil
}

func (tx *fakeTx) Commit(_ context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(_ context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakePool struct {
	tx                *fakeTx
	retryRowsAffected int64
	poolExecs         []execCall
	queryRows         [][]interface{}
	queryErr          error
}

func (p *fakePool) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	p.poolExecs = append(p.poolExecs, execCall{sql, args})
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", p.retryRowsAffected)), nil
}

func (p *fakePool) QueryRow(_ context.Context, _ string, _ ...interface{}) pgx.Row {
	return fakeRow{scan: func(_ ...interface{}) error { return nil }}
}

func (p *fakePool) Query(_ context.Context, _ string, _ ...interface{}) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return &fakeRows{rows: p.queryRows}, nil
}

func (p *fakePool) Begin(_ context.Context) (Tx, error) {
	return p.tx, nil
}

// fakeRows is a minimal pgx.Rows double backed by a slice of pre-built
// column values, enough for FindStuckRetrying's scan-and-decode loop
// without a live Postgres instance.
type fakeRows struct {
	rows [][]interface{}
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                               { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]interface{}, error) {
	return r.rows[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.rows[r.idx-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p, _ = row[i].(string)
		case *int:
			*p, _ = row[i].(int)
		case *[]byte:
			*p, _ = row[i].([]byte)
		}
	}
	return nil
}

func newTestManager(t *testing.T, tx *fakeTx) (*Manager, *fakePool) {
	t.Helper()
	enc, err := NewEncryptor(testKey())
	require.NoError(t, err)
	pool := &fakePool{tx: tx, retryRowsAffected: 1}
	return &Manager{pool: pool, encryptor: enc}, pool
}

func execsContaining(execs []execCall, substr string) []execCall {
	var out []execCall
	for _, e := range execs {
		if strings.Contains(e.sql, substr) {
			out = append(out, e)
		}
	}
	return out
}

func validGrievanceEnvelope() core.ResultEnvelope {
	return core.ResultEnvelope{
		Status:        core.TaskStatusSuccess,
		Operation:     "classification",
		EntityKey:     core.EntityKeyGrievance,
		ID:            "GR-20250101-KOJH-ABCD-A",
		TaskID:        "task-1",
		GrievanceID:   "GR-20250101-KOJH-ABCD-A",
		ComplainantID: "CM-20250101-KOJH-ABCD-A",
		Values: map[string]interface{}{
			"complainant_full_name": "Ram Thapa",
			"complainant_phone":     "9800000000",
			"grievance_summary":     "road damage",
		},
	}
}

func TestHandleDBOperation_MissingFields(t *testing.T) {
	m, _ := newTestManager(t, &fakeTx{})
	_, err := m.HandleDBOperation(context.Background(), core.ResultEnvelope{}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingEnvelopeField)
}

func TestHandleDBOperation_UnknownEntityKey(t *testing.T) {
	m, _ := newTestManager(t, &fakeTx{})
	env := validGrievanceEnvelope()
	env.EntityKey = "bogus_id"
	_, err := m.HandleDBOperation(context.Background(), env, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownEntityKey)
}

func TestHandleDBOperation_FirstAttemptInsertsTaskRowAndLinksEntities(t *testing.T) {
	tx := &fakeTx{grievanceExists: false}
	m, _ := newTestManager(t, tx)

	result, err := m.HandleDBOperation(context.Background(), validGrievanceEnvelope(), 0)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusSuccess, result.Status)
	assert.Equal(t, "GR-20250101-KOJH-ABCD-A", result.ID)

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)

	assert.Len(t, execsContaining(tx.execs, "INSERT INTO complainants"), 1)
	assert.Len(t, execsContaining(tx.execs, "INSERT INTO grievances"), 1)
	assert.Len(t, execsContaining(tx.execs, "INSERT INTO tasks"), 1)
	assert.Len(t, execsContaining(tx.execs, "INSERT INTO task_entities"), 1)

	history := execsContaining(tx.execs, "grievance_status_history")
	require.Len(t, history, 1)
	assert.Equal(t, "SUBMITTED", history[0].args[1])
}

func TestHandleDBOperation_RetryAttemptSkipsTaskRowInsert(t *testing.T) {
	tx := &fakeTx{grievanceExists: true}
	m, _ := newTestManager(t, tx)

	env := validGrievanceEnvelope()
	_, err := m.HandleDBOperation(context.Background(), env, 1)
	require.NoError(t, err)

	assert.Empty(t, execsContaining(tx.execs, "INSERT INTO tasks"))
	assert.Empty(t, execsContaining(tx.execs, "INSERT INTO task_entities"))
	// An existing grievance with no explicit status field appends no history row.
	assert.Empty(t, execsContaining(tx.execs, "grievance_status_history"))
}

func TestHandleDBOperation_TranscriptionLinksBothEntityAndGrievance(t *testing.T) {
	tx := &fakeTx{}
	m, _ := newTestManager(t, tx)

	env := core.ResultEnvelope{
		Status:        core.TaskStatusSuccess,
		EntityKey:     core.EntityKeyTranscription,
		ID:            "TR-20250101-KOJH-ABCD-A",
		TaskID:        "task-2",
		GrievanceID:   "GR-20250101-KOJH-ABCD-A",
		ComplainantID: "CM-20250101-KOJH-ABCD-A",
		FieldName:     "grievance_description_audio",
		LanguageCode:  "ne",
		Values: map[string]interface{}{
			"grievance_description_audio": "spoken text",
			"recording_id":                "REC-20250101-KOJH-ABCD-A",
		},
	}

	_, err := m.HandleDBOperation(context.Background(), env, 0)
	require.NoError(t, err)

	links := execsContaining(tx.execs, "INSERT INTO task_entities")
	require.Len(t, links, 2)
	assert.Equal(t, string(core.EntityKeyTranscription), links[0].args[1])
	assert.Equal(t, string(core.EntityKeyGrievance), links[1].args[1])
}

func TestHandleDBOperation_RollsBackOnEntityUpsertFailure(t *testing.T) {
	tx := &fakeTx{execErrOn: "INSERT INTO grievances"}
	m, _ := newTestManager(t, tx)

	_, err := m.HandleDBOperation(context.Background(), validGrievanceEnvelope(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEntityUpsertFailed)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestRecordRetry_Success(t *testing.T) {
	pool := &fakePool{retryRowsAffected: 1}
	m := &Manager{pool: pool}

	inv := core.Invocation{TaskName: "transcribe_audio_file_task", Args: nil, Kwargs: map[string]interface{}{"grievance_id": "g-1"}}
	err := m.RecordRetry(context.Background(), "task-1", core.RetryAttempt{Attempt: 0, ErrorKind: core.ErrorKindConnection}, inv)
	require.NoError(t, err)
	require.Len(t, pool.poolExecs, 1)
	assert.Contains(t, pool.poolExecs[0].sql, "retry_history")
	assert.Contains(t, pool.poolExecs[0].sql, "last_envelope")
}

func TestRecordRetry_TolerantOfMissingTaskRow(t *testing.T) {
	pool := &fakePool{retryRowsAffected: 0}
	m := &Manager{pool: pool}

	err := m.RecordRetry(context.Background(), "ghost-task", core.RetryAttempt{Attempt: 0}, core.Invocation{})
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestFindStuckRetrying_DecodesRecoveredInvocation(t *testing.T) {
	inv := core.Invocation{TaskName: "translate_grievance_task", Kwargs: map[string]interface{}{"grievance_id": "g-1"}}
	raw, err := json.Marshal(inv)
	require.NoError(t, err)

	pool := &fakePool{queryRows: [][]interface{}{{"task-1", 2, raw}}}
	m := &Manager{pool: pool}

	stuck, err := m.FindStuckRetrying(context.Background(), 30*time.Second)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "task-1", stuck[0].TaskID)
	assert.Equal(t, 2, stuck[0].Attempt)
	assert.Equal(t, "translate_grievance_task", stuck[0].Invocation.TaskName)
	assert.Equal(t, "g-1", stuck[0].Invocation.Kwargs["grievance_id"])
}

func TestFindStuckRetrying_NoneDue(t *testing.T) {
	pool := &fakePool{}
	m := &Manager{pool: pool}

	stuck, err := m.FindStuckRetrying(context.Background(), 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestPruneOldResults_ReportsRowsAffected(t *testing.T) {
	pool := &fakePool{retryRowsAffected: 3}
	m := &Manager{pool: pool}

	n, err := m.PruneOldResults(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.Len(t, pool.poolExecs, 1)
	assert.Contains(t, pool.poolExecs[0].sql, "DELETE FROM tasks")
}
