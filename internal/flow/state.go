// Package flow implements the question-flow state machine driving the intake chatbot.
package flow

import (
	"context"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// SnapshotStore persists flow snapshots for resumable sessions.
type SnapshotStore interface {
	// SaveSnapshot stores or overwrites the snapshot for its session.
	SaveSnapshot(snapshot models.Snapshot) error

	// GetSnapshot retrieves the snapshot for a session, or nil if none exists.
	GetSnapshot(sessionID string) (*models.Snapshot, error)

	// DeleteSnapshot removes the snapshot for a session.
	DeleteSnapshot(sessionID string) error
}

// IntakeStore records completed or escalated intakes for the triage board.
type IntakeStore interface {
	AddIntake(record models.IntakeRecord) error
}

// Submitter delivers the final payload to the clinic registration endpoint.
type Submitter interface {
	Submit(ctx context.Context, payload models.SubmissionPayload) error
}

// Notifier alerts human staff when a session escalates.
type Notifier interface {
	NotifyEscalation(ctx context.Context, sessionID, reason, detail string) error
}

// Dependencies holds everything injected into a flow engine.
type Dependencies struct {
	Snapshots SnapshotStore
	Intakes   IntakeStore
	Submitter Submitter
	Notifier  Notifier

	// TypingDelay paces bot messages: each message appears as a typing
	// placeholder for this long before the real entry replaces it. Zero makes
	// the swap synchronous, which tests rely on.
	TypingDelay time.Duration
}
