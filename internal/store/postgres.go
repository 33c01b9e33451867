// Package store provides storage backends for IntakeFlow.
//
// This file implements a PostgreSQL-backed store for flow snapshots and
// intake records.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/NovaFertility/IntakeFlow/internal/models"
	_ "github.com/lib/pq"
)

// Connection pool settings for the PostgreSQL store.
const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists snapshots and intakes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.PostgresDSN != "")

	dsn := cfg.PostgresDSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveSnapshot stores or overwrites the snapshot for its session.
func (s *PostgresStore) SaveSnapshot(snapshot models.Snapshot) error {
	answers, err := marshalAnswers(snapshot.Answers)
	if err != nil {
		return err
	}
	transcript, err := marshalTranscript(snapshot.Transcript)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO flow_snapshots (session_id, variant, state, position, answers, transcript, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(session_id) DO UPDATE SET
			variant = EXCLUDED.variant,
			state = EXCLUDED.state,
			position = EXCLUDED.position,
			answers = EXCLUDED.answers,
			transcript = EXCLUDED.transcript,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at`,
		snapshot.SessionID, snapshot.Variant, string(snapshot.State), snapshot.Position,
		answers, transcript, snapshot.Completed, snapshot.CreatedAt, snapshot.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSnapshot failed", "error", err, "sessionID", snapshot.SessionID)
		return fmt.Errorf("failed to save snapshot for %s: %w", snapshot.SessionID, err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot for a session, or nil if none exists.
func (s *PostgresStore) GetSnapshot(sessionID string) (*models.Snapshot, error) {
	var (
		snapshot   models.Snapshot
		state      string
		answers    string
		transcript string
	)
	err := s.db.QueryRow(`SELECT session_id, variant, state, position, answers, transcript, completed, created_at, updated_at
		FROM flow_snapshots WHERE session_id = $1`, sessionID).Scan(
		&snapshot.SessionID, &snapshot.Variant, &state, &snapshot.Position,
		&answers, &transcript, &snapshot.Completed, &snapshot.CreatedAt, &snapshot.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSnapshot failed", "error", err, "sessionID", sessionID)
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
func (s *PostgresStore) DeleteSnapshot(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_snapshots WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore DeleteSnapshot failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete snapshot for %s: %w", sessionID, err)
	}
	return nil
}

// AddIntake appends a record to the triage board.
func (s *PostgresStore) AddIntake(record models.IntakeRecord) error {
	_, err := s.db.Exec(`INSERT INTO intakes (id, session_id, variant, patient_name, email, phone, reason, outcome, escalation_reason, status, note, answers_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		record.ID, record.SessionID, record.Variant, record.PatientName, record.Email,
		record.Phone, record.Reason, string(record.Outcome), record.EscalationReason,
		string(record.Status), record.Note, record.AnswersJSON, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore AddIntake failed", "error", err, "id", record.ID)
		return fmt.Errorf("failed to insert intake %s: %w", record.ID, err)
	}
	return nil
}

// GetIntake retrieves one intake record by id.
func (s *PostgresStore) GetIntake(id string) (*models.IntakeRecord, error) {
	record, err := scanIntake(s.db.QueryRow(`SELECT id, session_id, variant, patient_name, email, phone, reason, outcome, escalation_reason, status, note, answers_json, created_at, updated_at
		FROM intakes WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrIntakeNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetIntake failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get intake %s: %w", id, err)
	}
	return record, nil
}

// ListIntakes returns records newest-first, honoring the filter.
func (s *PostgresStore) ListIntakes(filter models.IntakeFilter) ([]models.IntakeRecord, error) {
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = s.db.Query(`SELECT id, session_id, variant, patient_name, email, phone, reason, outcome, escalation_reason, status, note, answers_json, created_at, updated_at
			FROM intakes WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(filter.Status), clampLimit(filter.Limit), offset)
	} else {
		rows, err = s.db.Query(`SELECT id, session_id, variant, patient_name, email, phone, reason, outcome, escalation_reason, status, note, answers_json, created_at, updated_at
			FROM intakes ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			clampLimit(filter.Limit), offset)
	}
	if err != nil {
		slog.Error("PostgresStore ListIntakes query failed", "error", err)
		return nil, fmt.Errorf("failed to query intakes: %w", err)
	}
	defer rows.Close()

	records := []models.IntakeRecord{}
	for rows.Next() {
		record, err := scanIntake(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intake row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intake rows: %w", err)
	}
	return records, nil
}

// UpdateIntakeStatus moves a record across the board.
func (s *PostgresStore) UpdateIntakeStatus(id string, update models.TriageStatusUpdate) error {
	var (
		result sql.Result
		err    error
	)
	if update.Note != "" {
		result, err = s.db.Exec(`UPDATE intakes SET status = $1, note = $2, updated_at = $3 WHERE id = $4`,
			string(update.Status), update.Note, nowFunc(), id)
	} else {
		result, err = s.db.Exec(`UPDATE intakes SET status = $1, updated_at = $2 WHERE id = $3`,
			string(update.Status), nowFunc(), id)
	}
	if err != nil {
		slog.Error("PostgresStore UpdateIntakeStatus failed", "error", err, "id", id)
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
func (s *PostgresStore) GetTriageStats() (*models.TriageStats, error) {
	return aggregateStats(s.db)
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
