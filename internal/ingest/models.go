package ingest

import (
	"time"

	"regsync/pkg/domain"
)

// SourceRecord is one raw upstream record about one registration, already
// decoded from whatever feed format the source uses.
type SourceRecord struct {
	RegistrationNo string            `json:"registration_no"`
	Fields         map[string]string `json:"fields"`
	ObservedAt     time.Time         `json:"observed_at"`
	RawPayload     string            `json:"raw_payload,omitempty"`
}

// SourceConfig carries the per-source reconciliation inputs: which source
// this is, the reliability tier of its format, and its rank among sources
// of the same tier.
type SourceConfig struct {
	SourceKey      string
	EvidenceGrade  domain.EvidenceGrade
	SourcePriority int
}

// Report summarizes one ingestion run for operators. Conflicted records are
// a successful outcome; Invalid counts records whose identifier normalized
// to nothing.
type Report struct {
	RunID      string
	Total      int
	Applied    int
	Rejected   int
	Conflicted int
	Invalid    int
	Skipped    int
}

func (r *Report) add(other Report) {
	r.Total += other.Total
	r.Applied += other.Applied
	r.Rejected += other.Rejected
	r.Conflicted += other.Conflicted
	r.Invalid += other.Invalid
	r.Skipped += other.Skipped
}
