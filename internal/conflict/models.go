package conflict

import (
	"time"

	"regsync/pkg/domain"
)

// Status is the lifecycle state of a queue entry. The only transitions are
// open→resolved and open→ignored; both are terminal. A fresh contradictory
// observation after closure opens a new entry.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusIgnored  Status = "ignored"
)

// Candidate is one disputed value with its full provenance, surfaced so a
// human resolver can make an informed decision.
type Candidate struct {
	SourceKey      string               `json:"source_key"`
	Value          string               `json:"value"`
	EvidenceGrade  domain.EvidenceGrade `json:"evidence_grade"`
	SourcePriority int                  `json:"source_priority"`
	ObservedAt     time.Time            `json:"observed_at"`
}

// Entry is one open field-level dispute for one registration. At most one
// open entry exists per (registration_no, field_name); later contradictory
// observations fold into the candidate list.
type Entry struct {
	ID             domain.ConflictID
	RegistrationNo string
	FieldName      string
	Candidates     []Candidate
	Status         Status
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	WinnerValue    string
	Reason         string
}

// AddCandidate folds a candidate into the entry, deduplicating on
// (source_key, value). A resubmitted candidate with a newer observation time
// refreshes the existing slot instead of duplicating it. Returns true when
// the list changed.
func (e *Entry) AddCandidate(c Candidate) bool {
	for i, existing := range e.Candidates {
		if existing.SourceKey == c.SourceKey && existing.Value == c.Value {
			if c.ObservedAt.After(existing.ObservedAt) {
				e.Candidates[i].ObservedAt = c.ObservedAt
				return true
			}
			return false
		}
	}
	e.Candidates = append(e.Candidates, c)
	return true
}

// Clone returns a deep copy for memory stores.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Candidates = append([]Candidate(nil), e.Candidates...)
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// RegistrationCount is one row of the open-conflicts-per-registration
// report.
type RegistrationCount struct {
	RegistrationNo string
	Open           int
}

// FieldCount is one row of the conflicts-per-field report.
type FieldCount struct {
	FieldName string
	Count     int
}
