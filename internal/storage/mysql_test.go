package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/storage/models"
	"resume-analyzer/internal/types"
)

func newMockMySQL(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := NewMySQLWithConn(conn, "resume_analyzer")
	require.NoError(t, err)
	return db, mock
}

var requestColumns = []string{"request_id", "user_id", "query", "status", "resultado", "failed_files", "timestamp", "created_at", "updated_at"}

func TestMySQL_AppendLog_Upserts(t *testing.T) {
	db, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `analysis_requests`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.AppendLog(context.Background(), types.AnalysisLogRecord{
		RequestID: "1b4e28ba-2fa1-41d2-883f-0016d3cca427",
		UserID:    "user-1",
		Status:    types.StatusCompleted,
		Results:   []types.FileOutcome{types.SuccessOutcome("a.pdf", 8.5, "good")},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQL_AppendLog_ExecError(t *testing.T) {
	db, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `analysis_requests`").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := db.AppendLog(context.Background(), types.AnalysisLogRecord{
		RequestID: "1b4e28ba-2fa1-41d2-883f-0016d3cca427",
		UserID:    "user-1",
		Status:    types.StatusTotalFailure,
		Timestamp: time.Now(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMySQL_FindLog(t *testing.T) {
	db, mock := newMockMySQL(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(requestColumns).AddRow(
		"req-1", "user-1", "golang", types.StatusCompleted,
		[]byte(`[{"filename":"a.pdf","score":7.5,"summary":"ok"}]`), nil,
		ts, ts, ts,
	)
	mock.ExpectQuery("SELECT \\* FROM `analysis_requests` WHERE request_id = \\?").WillReturnRows(rows)

	rec, err := db.FindLog(context.Background(), "req-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "user-1", rec.UserID)
	require.NotNil(t, rec.Query)
	assert.Equal(t, "golang", *rec.Query)
	require.Len(t, rec.Results, 1)
	assert.Equal(t, "a.pdf", rec.Results[0].Filename)
	assert.Equal(t, 7.5, rec.Results[0].Score)
	assert.True(t, rec.Results[0].Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQL_FindLog_TotalFailure(t *testing.T) {
	db, mock := newMockMySQL(t)
	ts := time.Now()

	rows := sqlmock.NewRows(requestColumns).AddRow(
		"req-2", "user-1", nil, types.StatusTotalFailure,
		[]byte(`"falha_total"`), []byte(`["a.pdf","b.png"]`),
		ts, ts, ts,
	)
	mock.ExpectQuery("SELECT \\* FROM `analysis_requests`").WillReturnRows(rows)

	rec, err := db.FindLog(context.Background(), "req-2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.Query)
	assert.Empty(t, rec.Results)
	assert.Equal(t, []string{"a.pdf", "b.png"}, rec.FailedFiles)
}

func TestMySQL_FindLog_NotFound(t *testing.T) {
	db, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT \\* FROM `analysis_requests`").WillReturnRows(sqlmock.NewRows(requestColumns))

	rec, err := db.FindLog(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMySQL_EnqueueOutbox(t *testing.T) {
	db, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `outbox_messages`").WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	msg, err := models.NewOutboxMessage("req-1", EventAnalysisCompleted, "ex", "analysis.completed", map[string]string{"a": "b"})
	require.NoError(t, err)
	require.NoError(t, db.EnqueueOutbox(context.Background(), msg))
	assert.Equal(t, uint64(42), msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToAnalysisRequestModel(t *testing.T) {
	q := "go"
	row := toAnalysisRequestModel(types.AnalysisLogRecord{
		RequestID:   "r",
		Query:       &q,
		Status:      types.StatusTotalFailure,
		FailedFiles: []string{"x.pdf"},
	})
	assert.JSONEq(t, `"falha_total"`, string(row.Resultado))
	assert.JSONEq(t, `["x.pdf"]`, string(row.FailedFiles))

	queued := toAnalysisRequestModel(types.AnalysisLogRecord{RequestID: "r", Status: types.StatusQueued})
	assert.Nil(t, queued.Resultado)
}
