package audit

import (
	"context"
	"time"

	"regsync/pkg/domain"
)

// DecidedBy distinguishes the two kinds of resolution in the compliance
// trail: "the system decided X because grade/priority/time" versus "a human
// decided X because Y".
type DecidedBy string

const (
	DecidedAutomatic DecidedBy = "automatic"
	DecidedManual    DecidedBy = "manual"
)

// Candidate is one competing value captured in the trail, losing candidates
// included.
type Candidate struct {
	SourceKey      string               `json:"source_key"`
	Value          string               `json:"value"`
	EvidenceGrade  domain.EvidenceGrade `json:"evidence_grade"`
	SourcePriority int                  `json:"source_priority"`
	ObservedAt     time.Time            `json:"observed_at"`
}

// Event records one resolution decision over one field. Keep it
// transport-agnostic so stores and sinks can fan out; nothing in this
// engine ever updates or deletes an event.
type Event struct {
	ID             domain.AuditID
	RegistrationNo string
	FieldName      string
	DecidedBy      DecidedBy
	WinnerSource   string
	WinnerValue    string
	Basis          string // which policy comparison won, or "manual_resolution"
	Reason         string // human-supplied justification for manual decisions
	Candidates     []Candidate
	Timestamp      time.Time
}

// Store persists audit events. The postgres implementation writes the event
// row and an outbox row inside the caller's transaction.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRegistration(ctx context.Context, registrationNo string) ([]Event, error)
}
