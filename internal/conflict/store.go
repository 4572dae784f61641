package conflict

import (
	"context"
	"time"
)

// Store persists the conflict queue. FindOpen and the mutating methods are
// called under the same per-registration transaction as the field-mutation
// path, so two concurrent contradictory observations cannot each create an
// open entry for the same field.
type Store interface {
	// Get returns nil when the entry does not exist.
	Get(ctx context.Context, id string) (*Entry, error)

	// FindOpen returns the single open entry for (registration_no,
	// field_name), or nil.
	FindOpen(ctx context.Context, registrationNo, fieldName string) (*Entry, error)

	Create(ctx context.Context, entry *Entry) error
	Update(ctx context.Context, entry *Entry) error

	// ListOpen returns all open entries ordered by creation time.
	ListOpen(ctx context.Context) ([]Entry, error)

	// ListOpenByRegistration returns the open entries for one registration.
	ListOpenByRegistration(ctx context.Context, registrationNo string) ([]Entry, error)

	// OpenCountsByRegistration reports how many disputes each registration
	// has open, most disputed first.
	OpenCountsByRegistration(ctx context.Context) ([]RegistrationCount, error)

	// TopFieldsSince reports which fields generated the most conflicts in
	// the window, regardless of current status.
	TopFieldsSince(ctx context.Context, since time.Time, limit int) ([]FieldCount, error)
}
