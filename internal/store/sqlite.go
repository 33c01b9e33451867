// Package store provides storage backends for IntakeFlow.
//
// This file implements an SQLite-backed store for flow snapshots and intake
// records.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/NovaFertility/IntakeFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists snapshots and intakes in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the database file; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.SQLiteDSN != "")

	dsn := cfg.SQLiteDSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveSnapshot stores or overwrites the snapshot for its session.
func (s *SQLiteStore) SaveSnapshot(snapshot models.Snapshot) error {
	answers, err := marshalAnswers(snapshot.Answers)
	if err != nil {
		return err
	}
	transcript, err := marshalTranscript(snapshot.Transcript)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO flow_snapshots (session_id, variant, state, position, answers, transcript, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			variant = excluded.variant,
			state = excluded.state,
			position = excluded.position,
			answers = excluded.answers,
			transcript = excluded.transcript,
			completed = excluded.completed,
			updated_at = excluded.updated_at`,
		snapshot.SessionID, snapshot.Variant, string(snapshot.State), snapshot.Position,
		answers, transcript, snapshot.Completed, snapshot.CreatedAt, snapshot.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSnapshot failed", "error", err, "sessionID", snapshot.SessionID)
		return fmt.Errorf("failed to save snapshot for %s: %w", snapshot.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveSnapshot succeeded", "sessionID", snapshot.SessionID, "state", snapshot.State)
	return nil
}

// GetSnapshot retrieves the snapshot for a session, or nil if none exists.
func (s *SQLiteStore) GetSnapshot(sessionID string) (*models.Snapshot, error) {
	var (
		snapshot   models.Snapshot
		state      string
		answers    string
		transcript string
	)
	err := s.db.QueryRow(`SELECT session_id, variant, state, position, answers, transcript, completed, created_at, updated_at
		FROM flow_snapshots WHERE session_id = ?`, sessionID).Scan(
		&snapshot.SessionID, &snapshot.Variant, &state, &snapshot.Position,
		&answers, &transcript, &snapshot.Completed, &snapshot.CreatedAt, &snapshot.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSnapshot failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get snapshot for %s: %w", sessionID, err)
	}

	snapshot.State = models.EngineState(state)
	if snapshot.Answers, err = unmarshalAnswers(answers); err != nil {
		return nil, err
	}
	if snapshot.Transcript, err = unmarshalTranscript(transcript); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// DeleteSnapshot removes the snapshot for a session.
func (s *SQLiteStore) DeleteSnapshot(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSnapshot failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete snapshot for %s: %w", sessionID, err)
	}
	return nil
}

// AddIntake appends a record to the triage board.
func (s *SQLiteStore) AddIntake(record models.IntakeRecord) error {
	_, err := s.db.Exec(`INSERT INTO intakes (id, session_id, variant, patient_name, email, phone, reason, outcome, escalation_reason, status, note, answers_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.Variant, record.PatientName, record.Email,
		record.Phone, record.Reason, string(record.Outcome), record.EscalationReason,
		string(record.Status), record.Note, record.AnswersJSON, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddIntake failed", "error", err, "id", record.ID)
		return fmt.Errorf("failed to insert intake %s: %w", record.ID, err)
	}
	slog.Debug("SQLiteStore AddIntake succeeded", "id", record.ID, "outcome", record.Outcome)
	return nil
}

// GetIntake retrieves one intake record by id.
func (s *SQLiteStore) GetIntake(id string) (*models.IntakeRecord, error) {
	record, err := scanIntake(s.db.QueryRow(`SELECT id, session_id, variant, patient_name, email, phone, reason, outcome, escalation_reason, status, note, answers_json, created_at, updated_at
		FROM intakes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrIntakeNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetIntake failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get intake %s: %w", id, err)
	}
	return record, nil
}

// ListIntakes returns records newest-first, honoring the filter.
func (s *SQLiteStore) ListIntakes(filter models.IntakeFilter) ([]models.IntakeRecord, error) {
	query := `SELECT id, session_id, variant, patient_name, email, phone, reason, outcome, escalation_reason, status, note, answers_json, created_at, updated_at
		FROM intakes`
	args := []interface{}{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, clampLimit(filter.Limit), offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListIntakes query failed", "error", err)
		return nil, fmt.Errorf("failed to query intakes: %w", err)
	}
	defer rows.Close()

	records := []models.IntakeRecord{}
	for rows.Next() {
		record, err := scanIntake(rows)
		if err != nil {
			slog.Error("SQLiteStore ListIntakes scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan intake row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intake rows: %w", err)
	}
	slog.Debug("SQLiteStore ListIntakes succeeded", "count", len(records))
	return records, nil
}

// UpdateIntakeStatus moves a record across the board.
func (s *SQLiteStore) UpdateIntakeStatus(id string, update models.TriageStatusUpdate) error {
	var (
		result sql.Result
		err    error
	)
	if update.Note != "" {
		result, err = s.db.Exec(`UPDATE intakes SET status = ?, note = ?, updated_at = ? WHERE id = ?`,
			string(update.Status), update.Note, nowFunc(), id)
	} else {
		result, err = s.db.Exec(`UPDATE intakes SET status = ?, updated_at = ? WHERE id = ?`,
			string(update.Status), nowFunc(), id)
	}
	if err != nil {
		slog.Error("SQLiteStore UpdateIntakeStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update intake %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of intake %s: %w", id, err)
	}
	if affected == 0 {
		return ErrIntakeNotFound
	}
	return nil
}

// GetTriageStats aggregates the board for the dashboard header.
func (s *SQLiteStore) GetTriageStats() (*models.TriageStats, error) {
	return aggregateStats(s.db)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
