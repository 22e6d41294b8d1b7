// Package domain holds the typed identifiers shared across the pointer,
// receipt and audit modules.
//
// Typed IDs prevent cross-type assignment at compile time: a ReceiptID can
// never be passed where a PointerID is expected. Construct them from external
// input only through the Parse* functions, which reject empty, malformed and
// nil UUIDs with CodeInvalidInput.
package domain

import (
	"github.com/google/uuid"

	dErrors "veto/pkg/domain-errors"
)

type (
	OrgID     uuid.UUID
	DataID    uuid.UUID
	PointerID uuid.UUID
	ReceiptID uuid.UUID
	EventID   uuid.UUID
)

func (id OrgID) String() string     { return uuid.UUID(id).String() }
func (id DataID) String() string    { return uuid.UUID(id).String() }
func (id PointerID) String() string { return uuid.UUID(id).String() }
func (id ReceiptID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string   { return uuid.UUID(id).String() }

func (id OrgID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DataID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PointerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ReceiptID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func (id OrgID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id DataID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id PointerID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ReceiptID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func NewOrgID() OrgID         { return OrgID(uuid.New()) }
func NewDataID() DataID       { return DataID(uuid.New()) }
func NewPointerID() PointerID { return PointerID(uuid.New()) }
func NewReceiptID() ReceiptID { return ReceiptID(uuid.New()) }
func NewEventID() EventID     { return EventID(uuid.New()) }

// ParseOrgID parses an organization ID from external input.
func ParseOrgID(s string) (OrgID, error) {
	u, err := parseID(s, "organization")
	return OrgID(u), err
}

// ParseDataID parses a data object ID from external input.
func ParseDataID(s string) (DataID, error) {
	u, err := parseID(s, "data")
	return DataID(u), err
}

// ParsePointerID parses a pointer ID from external input.
func ParsePointerID(s string) (PointerID, error) {
	u, err := parseID(s, "pointer")
	return PointerID(u), err
}

// ParseReceiptID parses a receipt ID from external input.
func ParseReceiptID(s string) (ReceiptID, error) {
	u, err := parseID(s, "receipt")
	return ReceiptID(u), err
}

// ParseEventID parses an audit event ID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := parseID(s, "event")
	return EventID(u), err
}

func parseID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be nil")
	}
	return u, nil
}
