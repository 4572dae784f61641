package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"regsync/internal/audit"
	"regsync/internal/conflict"
	"regsync/internal/identifier"
	"regsync/internal/reconcile/metrics"
	"regsync/pkg/domain"
	dErrors "regsync/pkg/domain-errors"
)

// AuditPublisher records resolution decisions. Emitted events ride the
// caller's transaction, so they commit or abort with the field mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ManualSourceKey is the provenance source written by human resolutions.
const ManualSourceKey = "manual_resolution"

// Service is the reconciliation upsert orchestrator: the only writer of
// canonical entity field values and change-log entries. Each call runs one
// read-decide-write sequence under an exclusive per-registration hold.
type Service struct {
	entities  EntityStore
	changelog ChangeLogStore
	conflicts conflict.Store
	txRunner  TxRunner
	policy    *Policy
	auditor   AuditPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     func() time.Time
}

type Option func(*Service)

func WithPolicy(p *Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(entities EntityStore, changelog ChangeLogStore, conflicts conflict.Store, txRunner TxRunner, opts ...Option) (*Service, error) {
	if entities == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	if changelog == nil {
		return nil, fmt.Errorf("change-log store is required")
	}
	if conflicts == nil {
		return nil, fmt.Errorf("conflict store is required")
	}
	if txRunner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}

	svc := &Service{
		entities:  entities,
		changelog: changelog,
		conflicts: conflicts,
		txRunner:  txRunner,
		policy:    NewPolicy(nil),
		logger:    slog.Default(),
		tracer:    otel.Tracer("regsync/reconcile"),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Upsert reconciles one raw source record into the canonical entity for its
// registration number. The whole call is one atomic unit: every accepted
// field mutation, the single change-log entry, conflict-queue writes, and
// audit rows commit together or not at all. Re-running the identical call
// is a no-op with respect to the change log.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (*UpsertResult, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.Upsert")
	defer span.End()

	key, ok := identifier.Normalize(req.RawRegistrationNo)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidIdentifier,
			"registration number normalizes to nothing usable")
	}
	span.SetAttributes(attribute.String("registration_no", key))

	start := s.clock()
	var result *UpsertResult
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.upsertLocked(ctx, key, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	s.metrics.ObserveUpsertLatency(s.clock().Sub(start))
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "upsert reconciled",
		"registration_no", key,
		"source", req.SourceKey,
		"applied", result.Applied,
		"rejected", result.Rejected,
		"conflicted", result.Conflicted,
	)
	return result, nil
}

// upsertLocked runs inside the per-registration transaction.
func (s *Service) upsertLocked(ctx context.Context, key string, req UpsertRequest) (*UpsertResult, error) {
	entity, err := s.entities.GetForUpdate(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lock entity row")
	}

	created := false
	if entity == nil {
		now := s.clock().UTC()
		entity = &CanonicalEntity{
			ID:             domain.NewRegistrationID(),
			RegistrationNo: key,
			Fields:         make(map[string]string),
			Provenance:     make(map[string]FieldProvenance),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.entities.Create(ctx, entity); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create entity stub")
		}
		created = true
	}

	result := &UpsertResult{
		RegistrationID: entity.ID,
		RegistrationNo: key,
		Created:        created,
		Outcomes:       make(map[string]FieldOutcome, len(req.Fields)),
	}

	var changes []FieldChange
	applied := 0
	for _, field := range sortedFields(req.Fields) {
		obs := Observation{
			FieldName:      field,
			Value:          req.Fields[field],
			SourceKey:      req.SourceKey,
			EvidenceGrade:  req.EvidenceGrade,
			SourcePriority: req.SourcePriority,
			ObservedAt:     req.ObservedAt,
		}

		var existing *FieldProvenance
		if prov, ok := entity.Provenance[field]; ok {
			prov := prov
			existing = &prov
		}
		stored := entity.Fields[field]

		decision := s.policy.Decide(existing, stored, obs)
		s.metrics.ObserveDecision(string(decision.Outcome), string(decision.Basis))

		switch decision.Outcome {
		case OutcomeApply:
			if stored != obs.Value {
				changes = append(changes, FieldChange{Field: field, Before: stored, After: obs.Value})
				result.ChangedFields = append(result.ChangedFields, field)
				if existing != nil {
					if err := s.emitAutomaticWin(ctx, key, obs, *existing, stored, decision.Basis); err != nil {
						return nil, err
					}
				}
			}
			entity.Fields[field] = obs.Value
			entity.Provenance[field] = obs.Provenance()
			applied++
			result.Applied++
			result.Outcomes[field] = FieldApplied

		case OutcomeReject:
			result.Rejected++
			result.Outcomes[field] = FieldRejected

		case OutcomeConflict:
			if err := s.queueConflict(ctx, key, obs, existing, stored); err != nil {
				return nil, err
			}
			result.Conflicted++
			result.Outcomes[field] = FieldConflicted
		}
	}

	if applied > 0 {
		entity.UpdatedAt = s.clock().UTC()
		if err := s.entities.Update(ctx, entity); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update entity")
		}
	}
	if len(changes) > 0 {
		entry := ChangeLogEntry{
			ID:             domain.NewChangeID(),
			RegistrationID: entity.ID,
			RegistrationNo: key,
			SourceKey:      req.SourceKey,
			SourceRunID:    req.SourceRunID,
			Changes:        changes,
			CreatedAt:      s.clock().UTC(),
		}
		if err := s.changelog.Append(ctx, entry); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append change log")
		}
	}
	return result, nil
}

// queueConflict upserts the open queue entry for (registration_no, field):
// created on first tie, folded into on later ones. Runs under the same
// per-registration lock as the field mutations, so two concurrent ties
// cannot both create an open entry.
func (s *Service) queueConflict(ctx context.Context, key string, obs Observation, existing *FieldProvenance, stored string) error {
	incoming := conflict.Candidate{
		SourceKey:      obs.SourceKey,
		Value:          obs.Value,
		EvidenceGrade:  obs.EvidenceGrade,
		SourcePriority: obs.SourcePriority,
		ObservedAt:     obs.ObservedAt,
	}

	entry, err := s.conflicts.FindOpen(ctx, key, obs.FieldName)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "find open conflict")
	}
	if entry != nil {
		if entry.AddCandidate(incoming) {
			if err := s.conflicts.Update(ctx, entry); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "fold conflict candidate")
			}
		}
		s.metrics.ObserveConflictQueue("folded")
		return nil
	}

	entry = &conflict.Entry{
		ID:             domain.NewConflictID(),
		RegistrationNo: key,
		FieldName:      obs.FieldName,
		Status:         conflict.StatusOpen,
		CreatedAt:      s.clock().UTC(),
	}
	if existing != nil {
		entry.AddCandidate(conflict.Candidate{
			SourceKey:      existing.SourceKey,
			Value:          stored,
			EvidenceGrade:  existing.EvidenceGrade,
			SourcePriority: existing.SourcePriority,
			ObservedAt:     existing.ObservedAt,
		})
	}
	entry.AddCandidate(incoming)
	if err := s.conflicts.Create(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create conflict entry")
	}
	s.metrics.ObserveConflictQueue("opened")
	return nil
}

func (s *Service) emitAutomaticWin(ctx context.Context, key string, obs Observation, loser FieldProvenance, loserValue string, basis Basis) error {
	if s.auditor == nil {
		return nil
	}
	event := audit.Event{
		RegistrationNo: key,
		FieldName:      obs.FieldName,
		DecidedBy:      audit.DecidedAutomatic,
		WinnerSource:   obs.SourceKey,
		WinnerValue:    obs.Value,
		Basis:          string(basis),
		Candidates: []audit.Candidate{
			{
				SourceKey:      loser.SourceKey,
				Value:          loserValue,
				EvidenceGrade:  loser.EvidenceGrade,
				SourcePriority: loser.SourcePriority,
				ObservedAt:     loser.ObservedAt,
			},
			{
				SourceKey:      obs.SourceKey,
				Value:          obs.Value,
				EvidenceGrade:  obs.EvidenceGrade,
				SourcePriority: obs.SourcePriority,
				ObservedAt:     obs.ObservedAt,
			},
		},
		Timestamp: s.clock().UTC(),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "emit automatic-win audit")
	}
	return nil
}

// ManualWrite is a human resolution applied through the same field-mutation
// path as automatic wins.
type ManualWrite struct {
	RegistrationNo string // normalized key
	FieldName      string
	Value          string
	Reason         string
	Candidates     []audit.Candidate // full disputed set for the audit trail
}

// ApplyManualWrite rewrites one field under manual provenance. It expects
// to run inside a transaction already holding the per-registration lock
// context (the resolver owns that boundary); it must not be called from
// outside a TxRunner callback.
func (s *Service) ApplyManualWrite(ctx context.Context, w ManualWrite) error {
	entity, err := s.entities.GetForUpdate(ctx, w.RegistrationNo)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "lock entity row")
	}
	if entity == nil {
		return dErrors.New(dErrors.CodeNotFound, "entity missing for conflict resolution")
	}

	now := s.clock().UTC()
	before := entity.Fields[w.FieldName]
	entity.Fields[w.FieldName] = w.Value
	entity.Provenance[w.FieldName] = FieldProvenance{
		SourceKey:      ManualSourceKey,
		EvidenceGrade:  domain.GradeManual,
		SourcePriority: 0,
		ObservedAt:     now,
		RawValue:       w.Value,
	}
	entity.UpdatedAt = now
	if err := s.entities.Update(ctx, entity); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update entity")
	}

	if before != w.Value {
		entry := ChangeLogEntry{
			ID:             domain.NewChangeID(),
			RegistrationID: entity.ID,
			RegistrationNo: w.RegistrationNo,
			SourceKey:      ManualSourceKey,
			Changes:        []FieldChange{{Field: w.FieldName, Before: before, After: w.Value}},
			CreatedAt:      now,
		}
		if err := s.changelog.Append(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append change log")
		}
	}

	if s.auditor != nil {
		event := audit.Event{
			RegistrationNo: w.RegistrationNo,
			FieldName:      w.FieldName,
			DecidedBy:      audit.DecidedManual,
			WinnerSource:   ManualSourceKey,
			WinnerValue:    w.Value,
			Basis:          "manual_resolution",
			Reason:         w.Reason,
			Candidates:     w.Candidates,
			Timestamp:      now,
		}
		if err := s.auditor.Emit(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "emit manual audit")
		}
	}
	return nil
}

// TxRunner exposes the service's transaction boundary to the conflict
// resolver so manual resolutions share it.
func (s *Service) Tx() TxRunner {
	return s.txRunner
}

// Entity returns the canonical record with embedded provenance; read-only.
func (s *Service) Entity(ctx context.Context, registrationNo string) (*CanonicalEntity, error) {
	key, ok := identifier.Normalize(registrationNo)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidIdentifier,
			"registration number normalizes to nothing usable")
	}
	entity, err := s.entities.Get(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read entity")
	}
	if entity == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no entity for registration number")
	}
	return entity, nil
}

// History returns the entity's change-log entries in commit order.
func (s *Service) History(ctx context.Context, id domain.RegistrationID) ([]ChangeLogEntry, error) {
	return s.changelog.ListByRegistration(ctx, id)
}

func sortedFields(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
