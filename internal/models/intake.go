// Package models defines triage dashboard structures for IntakeFlow.
package models

import (
	"errors"
	"time"
)

// TriageStatus represents where an intake record sits on the staff triage board.
type TriageStatus string

const (
	// TriageStatusNew indicates the record has not been reviewed yet.
	TriageStatusNew TriageStatus = "new"
	// TriageStatusInReview indicates a staff member is working the record.
	TriageStatusInReview TriageStatus = "in-review"
	// TriageStatusScheduled indicates an appointment was booked.
	TriageStatusScheduled TriageStatus = "scheduled"
	// TriageStatusClosed indicates no further action is needed.
	TriageStatusClosed TriageStatus = "closed"
)

// IsValidTriageStatus checks if the given triage status is valid.
func IsValidTriageStatus(s TriageStatus) bool {
	switch s {
	case TriageStatusNew, TriageStatusInReview, TriageStatusScheduled, TriageStatusClosed:
		return true
	default:
		return false
	}
}

// IntakeOutcome records how the chatbot session ended.
type IntakeOutcome string

const (
	// OutcomeCompleted indicates the intake finished and was submitted.
	OutcomeCompleted IntakeOutcome = "completed"
	// OutcomeEscalated indicates the session was handed to human staff.
	OutcomeEscalated IntakeOutcome = "escalated"
	// OutcomeSubmissionFailed indicates the intake finished but the registration
	// submission failed; staff review backstops the automated path.
	OutcomeSubmissionFailed IntakeOutcome = "submission_failed"
)

// IntakeRecord is one row on the administrative triage board.
type IntakeRecord struct {
	ID               string        `json:"id"`
	SessionID        string        `json:"session_id"`
	Variant          string        `json:"variant"`
	PatientName      string        `json:"patient_name,omitempty"`
	Email            string        `json:"email,omitempty"`
	Phone            string        `json:"phone,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	Outcome          IntakeOutcome `json:"outcome"`
	EscalationReason string        `json:"escalation_reason,omitempty"`
	Status           TriageStatus  `json:"status"`
	Note             string        `json:"note,omitempty"`
	AnswersJSON      string        `json:"answers_json,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TriageStatusUpdate is the payload for moving a record across the board.
type TriageStatusUpdate struct {
	Status TriageStatus `json:"status"`
	Note   string       `json:"note,omitempty"`
}

// Validate validates a TriageStatusUpdate.
func (u *TriageStatusUpdate) Validate() error {
	if u.Status == "" {
		return errors.New("status is required")
	}
	if !IsValidTriageStatus(u.Status) {
		return errors.New("invalid triage status")
	}
	return nil
}

// IntakeFilter narrows triage board listings.
type IntakeFilter struct {
	Status TriageStatus
	Limit  int
	Offset int
}

// TriageStats aggregates the board for the dashboard header.
type TriageStats struct {
	TotalIntakes   int                   `json:"total_intakes"`
	ByStatus       map[TriageStatus]int  `json:"by_status"`
	ByVariant      map[string]int        `json:"by_variant"`
	ByOutcome      map[IntakeOutcome]int `json:"by_outcome"`
	EscalationRate float64               `json:"escalation_rate"`
}
