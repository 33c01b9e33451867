package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// nowFunc is a test hook for timestamps.
var nowFunc = time.Now

// marshalAnswers serializes an answer set for a JSON column.
func marshalAnswers(answers models.AnswerSet) (string, error) {
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to marshal answers: %w", err)
	}
	return string(data), nil
}

// unmarshalAnswers deserializes an answer set from a JSON column. An empty
// column yields an empty set, never nil.
func unmarshalAnswers(data string) (models.AnswerSet, error) {
	answers := models.AnswerSet{}
	if data == "" {
		return answers, nil
	}
	if err := json.Unmarshal([]byte(data), &answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	return answers, nil
}

// marshalTranscript serializes a transcript for a JSON column.
func marshalTranscript(transcript []models.TranscriptEntry) (string, error) {
	data, err := json.Marshal(transcript)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return string(data), nil
}

// unmarshalTranscript deserializes a transcript from a JSON column.
func unmarshalTranscript(data string) ([]models.TranscriptEntry, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var transcript []models.TranscriptEntry
	if err := json.Unmarshal([]byte(data), &transcript); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return transcript, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanIntake reads one intake row in canonical column order.
func scanIntake(row rowScanner) (*models.IntakeRecord, error) {
	var (
		record  models.IntakeRecord
		outcome string
		status  string
	)
	err := row.Scan(&record.ID, &record.SessionID, &record.Variant, &record.PatientName,
		&record.Email, &record.Phone, &record.Reason, &outcome, &record.EscalationReason,
		&status, &record.Note, &record.AnswersJSON, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	record.Outcome = models.IntakeOutcome(outcome)
	record.Status = models.TriageStatus(status)
	return &record, nil
}

// aggregateStats computes triage board counts with plain GROUP BY queries that
// run unchanged on SQLite and PostgreSQL.
func aggregateStats(db *sql.DB) (*models.TriageStats, error) {
	stats := &models.TriageStats{
		ByStatus:  make(map[models.TriageStatus]int),
		ByVariant: make(map[string]int),
		ByOutcome: make(map[models.IntakeOutcome]int),
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM intakes`).Scan(&stats.TotalIntakes); err != nil {
		return nil, fmt.Errorf("failed to count intakes: %w", err)
	}

	if err := countGroups(db, `SELECT status, COUNT(*) FROM intakes GROUP BY status`, func(key string, n int) {
		stats.ByStatus[models.TriageStatus(key)] = n
	}); err != nil {
		return nil, err
	}
	if err := countGroups(db, `SELECT variant, COUNT(*) FROM intakes GROUP BY variant`, func(key string, n int) {
		stats.ByVariant[key] = n
	}); err != nil {
		return nil, err
	}
	escalated := 0
	if err := countGroups(db, `SELECT outcome, COUNT(*) FROM intakes GROUP BY outcome`, func(key string, n int) {
		stats.ByOutcome[models.IntakeOutcome(key)] = n
		if models.IntakeOutcome(key) == models.OutcomeEscalated {
			escalated = n
		}
	}); err != nil {
		return nil, err
	}

	if stats.TotalIntakes > 0 {
		stats.EscalationRate = float64(escalated) / float64(stats.TotalIntakes)
	}
	return stats, nil
}

func countGroups(db *sql.DB, query string, collect func(key string, n int)) error {
	rows, err := db.Query(query)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan stats row: %w", err)
		}
		collect(key, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate stats rows: %w", err)
	}
	return nil
}
