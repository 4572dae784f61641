package domain

import (
	"github.com/google/uuid"

	dErrors "regsync/pkg/domain-errors"
)

// Typed IDs keep registration, conflict, and audit identifiers from being
// assigned across each other. Construct via New* or Parse* at trust
// boundaries; direct casting bypasses validation.
type (
	RegistrationID uuid.UUID
	ConflictID     uuid.UUID
	AuditID        uuid.UUID
	ChangeID       uuid.UUID
)

func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func NewConflictID() ConflictID         { return ConflictID(uuid.New()) }
func NewAuditID() AuditID               { return AuditID(uuid.New()) }
func NewChangeID() ChangeID             { return ChangeID(uuid.New()) }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "nil id")
	}
	return u, nil
}

// ParseRegistrationID validates and converts an external id string.
func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s)
	return RegistrationID(u), err
}

// ParseConflictID validates and converts an external id string.
func ParseConflictID(s string) (ConflictID, error) {
	u, err := parseUUID(s)
	return ConflictID(u), err
}

func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id RegistrationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ConflictID) String() string { return uuid.UUID(id).String() }
func (id ConflictID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id AuditID) String() string { return uuid.UUID(id).String() }
func (id AuditID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ChangeID) String() string { return uuid.UUID(id).String() }
func (id ChangeID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
