package domain

import (
	"github.com/google/uuid"

	dErrors "transferdesk/pkg/domain-errors"
)

// Typed identifiers keep case, clearance, deed and audit IDs from being
// swapped at call sites. All are UUIDs underneath.
type (
	CaseID       uuid.UUID
	ClearanceID  uuid.UUID
	AttachmentID uuid.UUID
	BreakdownID  uuid.UUID
	DeedID       uuid.UUID
	AuditEntryID uuid.UUID
)

func NewCaseID() CaseID             { return CaseID(uuid.New()) }
func NewClearanceID() ClearanceID   { return ClearanceID(uuid.New()) }
func NewAttachmentID() AttachmentID { return AttachmentID(uuid.New()) }
func NewBreakdownID() BreakdownID   { return BreakdownID(uuid.New()) }
func NewDeedID() DeedID             { return DeedID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

func (id CaseID) String() string       { return uuid.UUID(id).String() }
func (id ClearanceID) String() string  { return uuid.UUID(id).String() }
func (id AttachmentID) String() string { return uuid.UUID(id).String() }
func (id BreakdownID) String() string  { return uuid.UUID(id).String() }
func (id DeedID) String() string       { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }

func (id CaseID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ClearanceID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AttachmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BreakdownID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DeedID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id CaseID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *CaseID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }

func (id ClearanceID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id AttachmentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id BreakdownID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id DeedID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id AuditEntryID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ClearanceID) UnmarshalText(b []byte) error  { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *AttachmentID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *BreakdownID) UnmarshalText(b []byte) error  { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *DeedID) UnmarshalText(b []byte) error       { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *AuditEntryID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }

// unmarshalUUID accepts the nil UUID; Parse* functions reject it.
func unmarshalUUID(b []byte, dst *uuid.UUID) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid identifier")
	}
	*dst = u
	return nil
}

// ParseCaseID parses a non-nil case identifier.
func ParseCaseID(s string) (CaseID, error) {
	u, err := parseUUID(s, "case ID")
	return CaseID(u), err
}

func ParseClearanceID(s string) (ClearanceID, error) {
	u, err := parseUUID(s, "clearance ID")
	return ClearanceID(u), err
}

func ParseAttachmentID(s string) (AttachmentID, error) {
	u, err := parseUUID(s, "attachment ID")
	return AttachmentID(u), err
}

func ParseBreakdownID(s string) (BreakdownID, error) {
	u, err := parseUUID(s, "breakdown ID")
	return BreakdownID(u), err
}

func ParseDeedID(s string) (DeedID, error) {
	u, err := parseUUID(s, "deed ID")
	return DeedID(u), err
}

func ParseAuditEntryID(s string) (AuditEntryID, error) {
	u, err := parseUUID(s, "audit entry ID")
	return AuditEntryID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
