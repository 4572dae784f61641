package domain

import dErrors "regsync/pkg/domain-errors"

// EvidenceGrade is the ordinal reliability tier of a source's reporting
// format. GradeManual is reserved for human resolutions and outranks every
// feed grade. The ordinal ranking itself is configuration (see
// reconcile.GradeScale); this type only guards the allowed values.
type EvidenceGrade string

const (
	GradeA      EvidenceGrade = "A" // structured primary registry feed
	GradeB      EvidenceGrade = "B" // structured auxiliary index
	GradeC      EvidenceGrade = "C" // semi-structured procurement catalog
	GradeD      EvidenceGrade = "D" // free-text offline dump
	GradeManual EvidenceGrade = "MANUAL"
)

var validEvidenceGrades = map[EvidenceGrade]bool{
	GradeA:      true,
	GradeB:      true,
	GradeC:      true,
	GradeD:      true,
	GradeManual: true,
}

// ParseEvidenceGrade constructs an EvidenceGrade from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseEvidenceGrade(s string) (EvidenceGrade, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "evidence grade cannot be empty")
	}
	g := EvidenceGrade(s)
	if !g.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid evidence grade")
	}
	return g, nil
}

// IsValid checks if the grade is one of the supported values.
func (g EvidenceGrade) IsValid() bool {
	return validEvidenceGrades[g]
}

// String returns the string representation of the grade.
func (g EvidenceGrade) String() string {
	return string(g)
}
