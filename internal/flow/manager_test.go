package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
	"github.com/NovaFertility/IntakeFlow/internal/store"
)

func TestManagerCreateUnknownVariant(t *testing.T) {
	mgr := NewManager(Dependencies{})
	if _, err := mgr.Create(context.Background(), "no-such-flow"); !errors.Is(err, models.ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestManagerCreateAndGet(t *testing.T) {
	mgr := NewManager(Dependencies{})
	engine, err := mgr.Create(context.Background(), catalog.ClassicVariantName)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := mgr.Get(context.Background(), engine.SessionID())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != engine {
		t.Error("Get should return the same engine instance")
	}
	if mgr.ActiveSessions() != 1 {
		t.Errorf("expected 1 active session, got %d", mgr.ActiveSessions())
	}
}

func TestManagerGetUnknownSession(t *testing.T) {
	mgr := NewManager(Dependencies{Snapshots: store.NewInMemoryStore()})
	if _, err := mgr.Get(context.Background(), "s_missing"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerRestoresAfterRestart(t *testing.T) {
	st := store.NewInMemoryStore()
	deps := Dependencies{Snapshots: st, Intakes: st}

	first := NewManager(deps)
	engine, err := first.Create(context.Background(), catalog.ClassicVariantName)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mustAnswer(t, engine, true)
	mustAnswer(t, engine, "Jane Roe")
	sessionID := engine.SessionID()

	// A fresh manager over the same store simulates a process restart.
	second := NewManager(deps)
	restored, err := second.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := restored.answers.GetString("full_name"); got != "Jane Roe" {
		t.Errorf("restored session lost answers, full_name=%q", got)
	}
	if restored.Variant() != catalog.ClassicVariantName {
		t.Errorf("restored session has wrong variant %s", restored.Variant())
	}
}

func TestManagerRemoveDeletesSnapshot(t *testing.T) {
	st := store.NewInMemoryStore()
	mgr := NewManager(Dependencies{Snapshots: st, Intakes: st})
	engine, err := mgr.Create(context.Background(), catalog.ClassicVariantName)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sessionID := engine.SessionID()

	if err := mgr.Remove(sessionID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mgr.ActiveSessions() != 0 {
		t.Errorf("expected 0 active sessions, got %d", mgr.ActiveSessions())
	}
	snapshot, err := st.GetSnapshot(sessionID)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snapshot != nil {
		t.Error("Remove should delete the persisted snapshot")
	}
}
