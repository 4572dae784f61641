package reconcile

import (
	"time"

	"regsync/pkg/domain"
)

// FieldProvenance is the stored justification for a field's current value.
// Every field value this engine has ever written carries one; a field with
// no provenance has never been written.
type FieldProvenance struct {
	SourceKey      string               `json:"source_key"`
	EvidenceGrade  domain.EvidenceGrade `json:"evidence_grade"`
	SourcePriority int                  `json:"source_priority"`
	ObservedAt     time.Time            `json:"observed_at"`
	RawValue       string               `json:"raw_value"`
}

// Observation is one incoming claim about one field. Observations are
// immutable inputs to the policy; they are never mutated after submission.
type Observation struct {
	FieldName      string
	Value          string
	SourceKey      string
	EvidenceGrade  domain.EvidenceGrade
	SourcePriority int
	ObservedAt     time.Time
}

// Provenance converts the observation into the provenance record written
// when it wins.
func (o Observation) Provenance() FieldProvenance {
	return FieldProvenance{
		SourceKey:      o.SourceKey,
		EvidenceGrade:  o.EvidenceGrade,
		SourcePriority: o.SourcePriority,
		ObservedAt:     o.ObservedAt,
		RawValue:       o.Value,
	}
}

// CanonicalEntity is the single merged record for one registration
// identity, keyed by the normalized registration number. Provenance is
// embedded per field so one read returns value and justification together.
type CanonicalEntity struct {
	ID             domain.RegistrationID
	RegistrationNo string
	Fields         map[string]string
	Provenance     map[string]FieldProvenance
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so memory stores never hand out aliased maps.
func (e *CanonicalEntity) Clone() *CanonicalEntity {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Fields = make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Provenance = make(map[string]FieldProvenance, len(e.Provenance))
	for k, v := range e.Provenance {
		cp.Provenance[k] = v
	}
	return &cp
}

// FieldChange is one before/after pair inside a change-log entry.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// ChangeLogEntry is the append-only record of one applied mutation. One
// entry covers every field changed by a single upsert call; replaying a
// registration's entries in order reconstructs its full field history.
type ChangeLogEntry struct {
	ID             domain.ChangeID
	RegistrationID domain.RegistrationID
	RegistrationNo string
	SourceKey      string
	SourceRunID    string
	Changes        []FieldChange
	CreatedAt      time.Time
}

// UpsertRequest carries one raw source record's claims about one
// registration.
type UpsertRequest struct {
	RawRegistrationNo string
	Fields            map[string]string
	SourceKey         string
	SourceRunID       string
	EvidenceGrade     domain.EvidenceGrade
	SourcePriority    int
	ObservedAt        time.Time
	RawPayload        string
}

// FieldOutcome reports what the policy decided for one field.
type FieldOutcome string

const (
	FieldApplied    FieldOutcome = "applied"
	FieldRejected   FieldOutcome = "rejected"
	FieldConflicted FieldOutcome = "conflicted"
)

// UpsertResult summarizes one reconciliation call for ingestion reporting.
// Conflicts are a successful outcome here, not an error.
type UpsertResult struct {
	RegistrationID domain.RegistrationID
	RegistrationNo string
	Created        bool
	ChangedFields  []string
	Outcomes       map[string]FieldOutcome
	Applied        int
	Rejected       int
	Conflicted     int
}
