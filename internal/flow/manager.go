package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
	"github.com/NovaFertility/IntakeFlow/internal/util"
)

// Manager owns the live engines, one per session. Engines are created on
// demand and rebuilt lazily from persisted snapshots after a restart.
type Manager struct {
	mu      sync.Mutex
	engines map[string]*Engine
	deps    Dependencies
}

// NewManager creates a session manager with the given shared dependencies.
func NewManager(deps Dependencies) *Manager {
	return &Manager{
		engines: make(map[string]*Engine),
		deps:    deps,
	}
}

// Create starts a new session on the named variant and returns its engine.
func (m *Manager) Create(ctx context.Context, variantName string) (*Engine, error) {
	variant, ok := catalog.Get(variantName)
	if !ok {
		return nil, fmt.Errorf("failed to create session: %w: %s", models.ErrUnknownVariant, variantName)
	}

	sessionID := util.GenerateSessionID()
	engine := NewEngine(sessionID, variant, m.deps)
	if err := engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	m.engines[sessionID] = engine
	m.mu.Unlock()

	slog.Info("Manager.Create: session created", "sessionID", sessionID, "variant", variantName)
	return engine, nil
}

// Get returns the live engine for a session, rebuilding it from the persisted
// snapshot if the process restarted since the session began.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Engine, error) {
	m.mu.Lock()
	if engine, ok := m.engines[sessionID]; ok {
		m.mu.Unlock()
		return engine, nil
	}
	m.mu.Unlock()

	if m.deps.Snapshots == nil {
		return nil, models.ErrSessionNotFound
	}

	snapshot, err := m.deps.Snapshots.GetSnapshot(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if snapshot == nil {
		return nil, models.ErrSessionNotFound
	}

	variant, ok := catalog.Get(snapshot.Variant)
	if !ok {
		return nil, fmt.Errorf("failed to restore session %s: %w: %s", sessionID, models.ErrUnknownVariant, snapshot.Variant)
	}

	engine := NewEngine(sessionID, variant, m.deps)
	if err := engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	// Another request may have restored the session concurrently; keep the
	// first engine so there is only ever one per session.
	if existing, ok := m.engines[sessionID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.engines[sessionID] = engine
	m.mu.Unlock()

	slog.Info("Manager.Get: session restored from snapshot", "sessionID", sessionID, "variant", snapshot.Variant)
	return engine, nil
}

// Remove drops a session: its timers stop, its file cache clears, and the
// persisted snapshot is deleted.
func (m *Manager) Remove(sessionID string) error {
	m.mu.Lock()
	engine, ok := m.engines[sessionID]
	delete(m.engines, sessionID)
	m.mu.Unlock()

	if engine != nil {
		engine.timer.Stop()
		engine.files.Clear()
	}

	if m.deps.Snapshots != nil {
		if err := m.deps.Snapshots.DeleteSnapshot(sessionID); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
		}
	}

	if !ok && m.deps.Snapshots == nil {
		return models.ErrSessionNotFound
	}
	slog.Info("Manager.Remove: session removed", "sessionID", sessionID)
	return nil
}

// ActiveSessions returns the number of live engines.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}
