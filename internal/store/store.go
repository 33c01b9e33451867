// Package store provides persistence for flow snapshots and intake records,
// with in-memory, SQLite, and PostgreSQL implementations.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// ErrIntakeNotFound is returned when an intake record id does not exist.
var ErrIntakeNotFound = errors.New("intake record not found")

// List defaults keep unbounded triage queries off the hot path.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Store is the interface for snapshot and intake persistence.
type Store interface {
	// SaveSnapshot stores or overwrites the flow snapshot for its session.
	SaveSnapshot(snapshot models.Snapshot) error
	// GetSnapshot retrieves the snapshot for a session, or nil if none exists.
	GetSnapshot(sessionID string) (*models.Snapshot, error)
	// DeleteSnapshot removes the snapshot for a session.
	DeleteSnapshot(sessionID string) error

	// AddIntake appends a record to the triage board.
	AddIntake(record models.IntakeRecord) error
	// GetIntake retrieves one intake record by id.
	GetIntake(id string) (*models.IntakeRecord, error)
	// ListIntakes returns records newest-first, honoring the filter.
	ListIntakes(filter models.IntakeFilter) ([]models.IntakeRecord, error)
	// UpdateIntakeStatus moves a record across the board.
	UpdateIntakeStatus(id string, update models.TriageStatusUpdate) error
	// GetTriageStats aggregates the board for the dashboard header.
	GetTriageStats() (*models.TriageStats, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	SQLiteDSN   string
	PostgresDSN string
}

// Option configures store options.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.SQLiteDSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.PostgresDSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a lightweight Store for development and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]models.Snapshot
	intakes   map[string]models.IntakeRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[string]models.Snapshot),
		intakes:   make(map[string]models.IntakeRecord),
	}
}

// SaveSnapshot stores or overwrites the snapshot for its session.
func (s *InMemoryStore) SaveSnapshot(snapshot models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.Answers = snapshot.Answers.Clone()
	snapshot.Transcript = append([]models.TranscriptEntry(nil), snapshot.Transcript...)
	s.snapshots[snapshot.SessionID] = snapshot
	return nil
}

// GetSnapshot retrieves the snapshot for a session, or nil if none exists.
func (s *InMemoryStore) GetSnapshot(sessionID string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[sessionID]
	if !ok {
		return nil, nil
	}
	snapshot.Answers = snapshot.Answers.Clone()
	snapshot.Transcript = append([]models.TranscriptEntry(nil), snapshot.Transcript...)
	return &snapshot, nil
}

// DeleteSnapshot removes the snapshot for a session.
func (s *InMemoryStore) DeleteSnapshot(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

// AddIntake appends a record to the triage board.
func (s *InMemoryStore) AddIntake(record models.IntakeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intakes[record.ID] = record
	return nil
}

// GetIntake retrieves one intake record by id.
func (s *InMemoryStore) GetIntake(id string) (*models.IntakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.intakes[id]
	if !ok {
		return nil, ErrIntakeNotFound
	}
	return &record, nil
}

// ListIntakes returns records newest-first, honoring the filter.
func (s *InMemoryStore) ListIntakes(filter models.IntakeFilter) ([]models.IntakeRecord, error) {
	s.mu.RLock()
	records := make([]models.IntakeRecord, 0, len(s.intakes))
	for _, record := range s.intakes {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		records = append(records, record)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	limit := clampLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []models.IntakeRecord{}, nil
	}
	records = records[offset:]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// UpdateIntakeStatus moves a record across the board.
func (s *InMemoryStore) UpdateIntakeStatus(id string, update models.TriageStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.intakes[id]
	if !ok {
		return ErrIntakeNotFound
	}
	record.Status = update.Status
	if update.Note != "" {
		record.Note = update.Note
	}
	record.UpdatedAt = nowFunc()
	s.intakes[id] = record
	return nil
}

// GetTriageStats aggregates the board for the dashboard header.
func (s *InMemoryStore) GetTriageStats() (*models.TriageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.TriageStats{
		ByStatus:  make(map[models.TriageStatus]int),
		ByVariant: make(map[string]int),
		ByOutcome: make(map[models.IntakeOutcome]int),
	}
	escalated := 0
	for _, record := range s.intakes {
		stats.TotalIntakes++
		stats.ByStatus[record.Status]++
		stats.ByVariant[record.Variant]++
		stats.ByOutcome[record.Outcome]++
		if record.Outcome == models.OutcomeEscalated {
			escalated++
		}
	}
	if stats.TotalIntakes > 0 {
		stats.EscalationRate = float64(escalated) / float64(stats.TotalIntakes)
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
