package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"regsync/internal/audit"
	"regsync/internal/conflict"
	"regsync/internal/reconcile"
	"regsync/pkg/domain"
	dErrors "regsync/pkg/domain-errors"
)

// Service drains the conflict queue. It is the only writer that transitions
// an entry out of open; both transitions are terminal and a closed entry is
// never reopened — a fresh contradictory observation after closure opens a
// new entry through the orchestrator.
type Service struct {
	store     conflict.Store
	reconcile *reconcile.Service
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
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

func New(store conflict.Store, reconciler *reconcile.Service, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("conflict store is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconcile service is required")
	}
	svc := &Service{
		store:     store,
		reconcile: reconciler,
		logger:    slog.Default(),
		tracer:    otel.Tracer("regsync/conflict"),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ResolutionResult reports one closed entry.
type ResolutionResult struct {
	ConflictID     domain.ConflictID
	RegistrationNo string
	FieldName      string
	Status         conflict.Status
	WinnerValue    string
}

// Resolve closes an open entry with an explicit winner. The winner is
// written through the same field-mutation path as an automatic win, under
// manual provenance, and the audit row carries the human reason plus the
// full candidate set.
//
// Errors: CodeReasonRequired on a blank reason, CodeNotFound when no such
// entry exists, CodeAlreadyClosed when the entry is terminal.
func (s *Service) Resolve(ctx context.Context, conflictID domain.ConflictID, winnerValue, reason string) (*ResolutionResult, error) {
	ctx, span := s.tracer.Start(ctx, "conflict.Resolve")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeReasonRequired, "manual resolution requires a reason")
	}

	var result *ResolutionResult
	err := s.reconcile.Tx().RunInTx(ctx, func(ctx context.Context) error {
		entry, err := s.openEntry(ctx, conflictID)
		if err != nil {
			return err
		}

		if err := s.reconcile.ApplyManualWrite(ctx, reconcile.ManualWrite{
			RegistrationNo: entry.RegistrationNo,
			FieldName:      entry.FieldName,
			Value:          winnerValue,
			Reason:         reason,
			Candidates:     auditCandidates(entry.Candidates),
		}); err != nil {
			return err
		}

		now := s.clock().UTC()
		entry.Status = conflict.StatusResolved
		entry.ResolvedAt = &now
		entry.WinnerValue = winnerValue
		entry.Reason = reason
		if err := s.store.Update(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "close conflict entry")
		}

		result = &ResolutionResult{
			ConflictID:     entry.ID,
			RegistrationNo: entry.RegistrationNo,
			FieldName:      entry.FieldName,
			Status:         entry.Status,
			WinnerValue:    winnerValue,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "conflict resolved",
		"conflict_id", result.ConflictID.String(),
		"registration_no", result.RegistrationNo,
		"field", result.FieldName,
	)
	return result, nil
}

// Ignore closes an open entry without touching the entity's stored value.
// Same validation contract as Resolve.
func (s *Service) Ignore(ctx context.Context, conflictID domain.ConflictID, reason string) (*ResolutionResult, error) {
	ctx, span := s.tracer.Start(ctx, "conflict.Ignore")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeReasonRequired, "ignoring a conflict requires a reason")
	}

	var result *ResolutionResult
	err := s.reconcile.Tx().RunInTx(ctx, func(ctx context.Context) error {
		entry, err := s.openEntry(ctx, conflictID)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		entry.Status = conflict.StatusIgnored
		entry.ResolvedAt = &now
		entry.Reason = reason
		if err := s.store.Update(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "close conflict entry")
		}

		result = &ResolutionResult{
			ConflictID:     entry.ID,
			RegistrationNo: entry.RegistrationNo,
			FieldName:      entry.FieldName,
			Status:         entry.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) openEntry(ctx context.Context, conflictID domain.ConflictID) (*conflict.Entry, error) {
	entry, err := s.store.Get(ctx, conflictID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load conflict entry")
	}
	if entry == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "conflict entry not found")
	}
	if entry.Status != conflict.StatusOpen {
		return nil, dErrors.New(dErrors.CodeAlreadyClosed, "conflict entry already closed")
	}
	return entry, nil
}

// ListOpen returns every open dispute, oldest first.
func (s *Service) ListOpen(ctx context.Context) ([]conflict.Entry, error) {
	return s.store.ListOpen(ctx)
}

// ListOpenByRegistration returns one registration's open disputes.
func (s *Service) ListOpenByRegistration(ctx context.Context, registrationNo string) ([]conflict.Entry, error) {
	return s.store.ListOpenByRegistration(ctx, registrationNo)
}

// OpenCountsByRegistration reports open disputes per registration, most
// disputed first.
func (s *Service) OpenCountsByRegistration(ctx context.Context) ([]conflict.RegistrationCount, error) {
	return s.store.OpenCountsByRegistration(ctx)
}

// TopFieldsSince reports which fields generated the most conflicts inside
// the window.
func (s *Service) TopFieldsSince(ctx context.Context, since time.Time, limit int) ([]conflict.FieldCount, error) {
	return s.store.TopFieldsSince(ctx, since, limit)
}

func auditCandidates(candidates []conflict.Candidate) []audit.Candidate {
	out := make([]audit.Candidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, audit.Candidate{
			SourceKey:      c.SourceKey,
			Value:          c.Value,
			EvidenceGrade:  c.EvidenceGrade,
			SourcePriority: c.SourcePriority,
			ObservedAt:     c.ObservedAt,
		})
	}
	return out
}
