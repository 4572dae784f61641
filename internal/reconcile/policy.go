package reconcile

import "regsync/pkg/domain"

// GradeScale maps evidence grades onto their ordinal rank; higher rank beats
// lower. The scale is injected configuration so the evaluator itself holds
// no policy constants.
type GradeScale map[domain.EvidenceGrade]int

// DefaultGradeScale ranks the built-in grades. GradeManual sits above every
// feed grade so a human resolution is never silently overwritten by a feed.
func DefaultGradeScale() GradeScale {
	return GradeScale{
		domain.GradeD:      1,
		domain.GradeC:      2,
		domain.GradeB:      3,
		domain.GradeA:      4,
		domain.GradeManual: 5,
	}
}

// Rank returns the ordinal for a grade; unknown grades rank below every
// known one.
func (s GradeScale) Rank(g domain.EvidenceGrade) int {
	return s[g]
}

// Outcome is the policy's verdict for one observation against one field.
type Outcome string

const (
	OutcomeApply    Outcome = "apply"
	OutcomeReject   Outcome = "reject"
	OutcomeConflict Outcome = "conflict"
)

// Basis names which comparison produced the verdict; it feeds the audit
// trail's "system decided X because ..." record.
type Basis string

const (
	BasisFirstWrite Basis = "first_write"
	BasisGrade      Basis = "evidence_grade"
	BasisPriority   Basis = "source_priority"
	BasisRecency    Basis = "observed_at"
	BasisIdentical  Basis = "identical_value"
	BasisTie        Basis = "unresolvable_tie"
)

// Decision is the policy output. Conflict decisions leave the stored value
// untouched; the tie goes to the conflict queue for a human.
type Decision struct {
	Outcome Outcome
	Basis   Basis
}

// Policy is the pure field-level conflict-resolution evaluator. It receives
// fully formed provenance snapshots and returns a decision; it never touches
// a store.
type Policy struct {
	scale GradeScale
}

// NewPolicy builds an evaluator over the given grade scale; a nil scale
// uses the default.
func NewPolicy(scale GradeScale) *Policy {
	if scale == nil {
		scale = DefaultGradeScale()
	}
	return &Policy{scale: scale}
}

// Decide evaluates one incoming observation against the field's current
// provenance and stored value. The comparison is a total order: each key
// only applies when every earlier key ties.
//
//  1. no existing provenance: apply
//  2. evidence grade: higher rank wins outright
//  3. source priority: lower numeric rank wins
//  4. observed time: strictly newer wins
//  5. full tie, differing value: conflict
//  6. full tie, identical value: reject (no-op, not an error)
func (p *Policy) Decide(existing *FieldProvenance, storedValue string, incoming Observation) Decision {
	if existing == nil {
		return Decision{Outcome: OutcomeApply, Basis: BasisFirstWrite}
	}

	incomingRank := p.scale.Rank(incoming.EvidenceGrade)
	existingRank := p.scale.Rank(existing.EvidenceGrade)
	if incomingRank != existingRank {
		if incomingRank > existingRank {
			return Decision{Outcome: OutcomeApply, Basis: BasisGrade}
		}
		return Decision{Outcome: OutcomeReject, Basis: BasisGrade}
	}

	if incoming.SourcePriority != existing.SourcePriority {
		if incoming.SourcePriority < existing.SourcePriority {
			return Decision{Outcome: OutcomeApply, Basis: BasisPriority}
		}
		return Decision{Outcome: OutcomeReject, Basis: BasisPriority}
	}

	if !incoming.ObservedAt.Equal(existing.ObservedAt) {
		if incoming.ObservedAt.After(existing.ObservedAt) {
			return Decision{Outcome: OutcomeApply, Basis: BasisRecency}
		}
		return Decision{Outcome: OutcomeReject, Basis: BasisRecency}
	}

	if incoming.Value == storedValue {
		return Decision{Outcome: OutcomeReject, Basis: BasisIdentical}
	}
	return Decision{Outcome: OutcomeConflict, Basis: BasisTie}
}
