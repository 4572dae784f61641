package reconcile

import (
	"context"

	"regsync/pkg/domain"
)

// EntityStore persists canonical entities. Implementations must honor the
// locking contract: GetForUpdate holds an exclusive per-row lock for the
// rest of the enclosing transaction, which is the only thing that keeps two
// concurrent upserts for one registration from both reading a stale
// provenance snapshot.
type EntityStore interface {
	// Get returns nil when no entity exists for the key. Read-only, no lock.
	Get(ctx context.Context, registrationNo string) (*CanonicalEntity, error)

	// GetForUpdate locks and returns the entity row, or nil when absent.
	GetForUpdate(ctx context.Context, registrationNo string) (*CanonicalEntity, error)

	Create(ctx context.Context, entity *CanonicalEntity) error
	Update(ctx context.Context, entity *CanonicalEntity) error
}

// ChangeLogStore is the append-only mutation history. Entries are never
// updated or deleted by this engine.
type ChangeLogStore interface {
	Append(ctx context.Context, entry ChangeLogEntry) error
	ListByRegistration(ctx context.Context, id domain.RegistrationID) ([]ChangeLogEntry, error)
}

// TxRunner scopes one reconciliation call to one transaction. The postgres
// implementation carries the *sql.Tx through context so every store in the
// call writes the same boundary; the memory implementation serializes calls
// outright.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
