// Package journal keeps a local sqlite record of the monitoring sessions
// started through this gateway, with the rolling-window statistics captured
// when each session stopped.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no journal row matches a session id.
var ErrNotFound = errors.New("journal entry not found")

// Entry is one row of monitoring_sessions.
type Entry struct {
	SessionID   string     `json:"sessionId"`
	PatientID   string     `json:"patientId"`
	Kind        string     `json:"kind"`
	ActivityID  string     `json:"activityId,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`
	StopReason  string     `json:"stopReason,omitempty"`
	SampleCount int        `json:"sampleCount"`
	AvgBPM      *int       `json:"avgBpm,omitempty"`
	MinBPM      *int       `json:"minBpm,omitempty"`
	MaxBPM      *int       `json:"maxBpm,omitempty"`
}

// Stats are the window aggregates recorded at stop. Nil means no data.
type Stats struct {
	SampleCount int
	Avg         *int
	Min         *int
	Max         *int
}

// Repository reads and writes the journal.
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string, logger *zap.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	repo := New(db, logger)
	if err := repo.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an existing database handle.
func New(db *sql.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// InitSchema creates the table and index if they do not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	const schema = `
    CREATE TABLE IF NOT EXISTS monitoring_sessions (
        session_id TEXT PRIMARY KEY,
        patient_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        activity_id TEXT,
        started_at TEXT NOT NULL,
        stopped_at TEXT,
        stop_reason TEXT,
        sample_count INTEGER NOT NULL DEFAULT 0,
        avg_bpm INTEGER,
        min_bpm INTEGER,
        max_bpm INTEGER
    );
    CREATE INDEX IF NOT EXISTS idx_monitoring_sessions_patient
        ON monitoring_sessions (patient_id, started_at);`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init journal schema: %w", err)
	}
	return nil
}

// RecordStart inserts a started session. A row with the same session id is
// replaced.
func (r *Repository) RecordStart(ctx context.Context, e Entry) error {
	const query = `INSERT OR REPLACE INTO monitoring_sessions (session_id, patient_id, kind, activity_id, started_at, stopped_at, stop_reason, sample_count, avg_bpm, min_bpm, max_bpm) VALUES (?, ?, ?, ?, ?, NULL, NULL, 0, NULL, NULL, NULL)`
	_, err := r.db.ExecContext(ctx, query,
		e.SessionID, e.PatientID, e.Kind, nullString(e.ActivityID), formatTime(e.StartedAt))
	if err != nil {
		return fmt.Errorf("record start of %s: %w", e.SessionID, err)
	}
	return nil
}

// RecordStop closes a session row with its reason and window statistics.
func (r *Repository) RecordStop(ctx context.Context, sessionID string, stoppedAt time.Time, reason string, stats Stats) error {
	const query = `UPDATE monitoring_sessions SET stopped_at = ?, stop_reason = ?, sample_count = ?, avg_bpm = ?, min_bpm = ?, max_bpm = ? WHERE session_id = ?`
	res, err := r.db.ExecContext(ctx, query,
		formatTime(stoppedAt), reason, stats.SampleCount,
		nullInt(stats.Avg), nullInt(stats.Min), nullInt(stats.Max),
		sessionID)
	if err != nil {
		return fmt.Errorf("record stop of %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record stop of %s: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("record stop of %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// ListByPatient returns a patient's sessions, newest first. limit <= 0 means
// no limit.
func (r *Repository) ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	query := `SELECT session_id, patient_id, kind, activity_id, started_at, stopped_at, stop_reason, sample_count, avg_bpm, min_bpm, max_bpm FROM monitoring_sessions WHERE patient_id = ? ORDER BY started_at DESC`
	args := []any{patientID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal for %s: %w", patientID, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                   Entry
			activityID          sql.NullString
			startedAt           string
			stoppedAt, reason   sql.NullString
			avg, minBPM, maxBPM sql.NullInt64
		)
		if err := rows.Scan(&e.SessionID, &e.PatientID, &e.Kind, &activityID, &startedAt,
			&stoppedAt, &reason, &e.SampleCount, &avg, &minBPM, &maxBPM); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		t, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			r.logger.Warn("Skipping journal row with bad started_at",
				zap.String("session_id", e.SessionID),
				zap.String("started_at", startedAt),
			)
			continue
		}
		e.StartedAt = t
		e.ActivityID = activityID.String
		e.StopReason = reason.String
		if stoppedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, stoppedAt.String); err == nil {
				e.StoppedAt = &t
			}
		}
		e.AvgBPM = intPtr(avg)
		e.MinBPM = intPtr(minBPM)
		e.MaxBPM = intPtr(maxBPM)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list journal for %s: %w", patientID, err)
	}
	return entries, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
