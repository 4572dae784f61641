package audit

import (
	"context"
	"time"

	"regsync/pkg/domain"
)

// Publisher captures structured audit events. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit persists one event, assigning id and timestamp when unset. It runs
// inside whatever transaction the context carries, so an aborted upsert
// leaves no orphan audit rows.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID.IsNil() {
		event.ID = domain.NewAuditID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.store.Append(ctx, event)
}

// List returns the resolution history for one registration.
func (p *Publisher) List(ctx context.Context, registrationNo string) ([]Event, error) {
	return p.store.ListByRegistration(ctx, registrationNo)
}
