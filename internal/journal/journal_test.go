package journal

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var columns = []string{
	"session_id", "patient_id", "kind", "activity_id", "started_at", "stopped_at",
	"stop_reason", "sample_count", "avg_bpm", "min_bpm", "max_bpm",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Repository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, New(db, zap.NewNop())
}

func ptr(n int) *int { return &n }

func TestRecordStart(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT OR REPLACE INTO monitoring_sessions`).
		WithArgs("42", "7", "activity", sql.NullString{String: "3", Valid: true}, "2024-05-01T10:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordStart(context.Background(), Entry{
		SessionID: "42", PatientID: "7", Kind: "activity", ActivityID: "3", StartedAt: started,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStop(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE monitoring_sessions SET stopped_at`).
		WithArgs(sqlmock.AnyArg(), "duration", 60,
			sql.NullInt64{Int64: 88, Valid: true},
			sql.NullInt64{Int64: 70, Valid: true},
			sql.NullInt64{Int64: 120, Valid: true},
			"42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordStop(context.Background(), "42", time.Now(), "duration", Stats{
		SampleCount: 60, Avg: ptr(88), Min: ptr(70), Max: ptr(120),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStop_NoData(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE monitoring_sessions`).
		WithArgs(sqlmock.AnyArg(), "manual", 0, sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, "42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordStop(context.Background(), "42", time.Now(), "manual", Stats{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStop_UnknownSession(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE monitoring_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordStop(context.Background(), "nope", time.Now(), "manual", Stats{})
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByPatient(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(columns).
		AddRow("43", "7", "free", nil, "2024-05-01T11:00:00Z", nil, nil, 0, nil, nil, nil).
		AddRow("42", "7", "activity", "3", "2024-05-01T10:00:00Z", "2024-05-01T10:15:00Z", "duration", 60, 88, 70, 120).
		AddRow("41", "7", "free", nil, "garbage", nil, nil, 0, nil, nil, nil)

	mock.ExpectQuery(`SELECT session_id`).
		WithArgs("7", 10).
		WillReturnRows(rows)

	entries, err := repo.ListByPatient(context.Background(), "7", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "43", entries[0].SessionID)
	assert.Nil(t, entries[0].StoppedAt)
	assert.Nil(t, entries[0].AvgBPM)

	e := entries[1]
	assert.Equal(t, "3", e.ActivityID)
	assert.Equal(t, "duration", e.StopReason)
	require.NotNil(t, e.StoppedAt)
	assert.Equal(t, 15*time.Minute, e.StoppedAt.Sub(e.StartedAt))
	require.NotNil(t, e.MaxBPM)
	assert.Equal(t, 120, *e.MaxBPM)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByPatient_QueryError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT session_id`).
		WithArgs("7").
		WillReturnError(errors.New("disk I/O error"))

	_, err := repo.ListByPatient(context.Background(), "7", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestInitSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS monitoring_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	repo, err := Open(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite3 driver needs cgo")
	}
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	start := time.Now().Add(-time.Minute)
	require.NoError(t, repo.RecordStart(ctx, Entry{SessionID: "s1", PatientID: "7", Kind: "free", StartedAt: start}))
	require.NoError(t, repo.RecordStop(ctx, "s1", time.Now(), "manual", Stats{SampleCount: 3, Avg: ptr(80), Min: ptr(75), Max: ptr(85)}))

	entries, err := repo.ListByPatient(ctx, "7", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "manual", entries[0].StopReason)
	assert.Equal(t, 3, entries[0].SampleCount)
	require.NotNil(t, entries[0].AvgBPM)
	assert.Equal(t, 80, *entries[0].AvgBPM)
}
