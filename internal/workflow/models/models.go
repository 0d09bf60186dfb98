package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
)

// StageCode identifies a stage in the case lifecycle.
type StageCode string

// Section is a department that independently records a clearance.
type Section string

const (
	SectionBCA      Section = "BCA"
	SectionHousing  Section = "HOUSING"
	SectionAccounts Section = "ACCOUNTS"
	SectionWater    Section = "WATER"
	// SectionOWO is the approving officer; its clearance is the approval decision.
	SectionOWO Section = "OWO"
)

var knownSections = map[Section]struct{}{
	SectionBCA:      {},
	SectionHousing:  {},
	SectionAccounts: {},
	SectionWater:    {},
	SectionOWO:      {},
}

// Sections lists every registered department in display order.
func Sections() []Section {
	return []Section{SectionBCA, SectionHousing, SectionAccounts, SectionWater, SectionOWO}
}

// ParseSection normalizes and validates a section code.
func ParseSection(s string) (Section, error) {
	sec := Section(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownSections[sec]; !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown section %q", s)
	}
	return sec, nil
}

// IsKnown reports whether the section is one of the registered departments.
func (s Section) IsKnown() bool {
	_, ok := knownSections[s]
	return ok
}

// ClearanceStatus is a section's recorded decision.
type ClearanceStatus string

const (
	ClearancePending   ClearanceStatus = "PENDING"
	ClearanceClear     ClearanceStatus = "CLEAR"
	ClearanceObjection ClearanceStatus = "OBJECTION"
)

// ParseClearanceStatus normalizes and validates a clearance status.
func ParseClearanceStatus(s string) (ClearanceStatus, error) {
	st := ClearanceStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case ClearancePending, ClearanceClear, ClearanceObjection:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown clearance status %q", s)
}

// SectionGroup is a named set of sections that must jointly clear.
type SectionGroup struct {
	Name     string
	Sections []Section
}

// Contains reports whether sec is a member of the group.
func (g SectionGroup) Contains(sec Section) bool {
	for _, s := range g.Sections {
		if s == sec {
			return true
		}
	}
	return false
}

// Case is the transfer application aggregate.
//
// Invariants:
//   - CurrentStage changes only through a committed transition
//   - Version increases by one with every committed change
//   - CreatedAt is immutable after construction
type Case struct {
	ID           id.CaseID
	CurrentStage StageCode
	Version      int64
	PropertyRef  string
	SellerRef    string
	BuyerRef     string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCase builds a case in its initial stage.
func NewCase(caseID id.CaseID, initial StageCode, propertyRef, sellerRef, buyerRef, createdBy string, now time.Time) (*Case, error) {
	if caseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "case ID is required")
	}
	if initial == "" {
		return nil, dErrors.New(dErrors.CodeConfiguration, "initial stage is not configured")
	}
	if strings.TrimSpace(propertyRef) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "property reference is required")
	}
	return &Case{
		ID:           caseID,
		CurrentStage: initial,
		Version:      1,
		PropertyRef:  strings.TrimSpace(propertyRef),
		SellerRef:    strings.TrimSpace(sellerRef),
		BuyerRef:     strings.TrimSpace(buyerRef),
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Clearance is one immutable decision record. Re-submission appends a new
// record; the latest per section is the current decision.
type Clearance struct {
	ID                id.ClearanceID
	CaseID            id.CaseID
	Section           Section
	Status            ClearanceStatus
	Remarks           string
	SignedDocumentRef string
	RecordedBy        string
	CreatedAt         time.Time
}

// Attachment is metadata for a document held by external file storage.
type Attachment struct {
	ID          id.AttachmentID
	CaseID      id.CaseID
	Type        string
	DocumentRef string
	UploadedBy  string
	UploadedAt  time.Time
}

// AccountsBreakdown is the per-case fee record maintained by the accounts
// section. Exactly one exists per case once accounts have been computed.
type AccountsBreakdown struct {
	ID           id.BreakdownID
	CaseID       id.CaseID
	FeeHeads     map[string]decimal.Decimal
	Total        decimal.Decimal
	PaidAmount   decimal.Decimal
	ChallanRef   string
	CalculatedAt time.Time
	PaidAt       *time.Time
}

// IsCalculated reports whether a total has been computed.
func (b *AccountsBreakdown) IsCalculated() bool {
	return b != nil && !b.CalculatedAt.IsZero()
}

// Clone returns a deep copy so callers cannot mutate stored fee heads.
func (b *AccountsBreakdown) Clone() *AccountsBreakdown {
	if b == nil {
		return nil
	}
	out := *b
	out.FeeHeads = make(map[string]decimal.Decimal, len(b.FeeHeads))
	for k, v := range b.FeeHeads {
		out.FeeHeads[k] = v
	}
	if b.PaidAt != nil {
		t := *b.PaidAt
		out.PaidAt = &t
	}
	return &out
}

// DeedStatus is the lifecycle state of a transfer deed.
type DeedStatus string

const (
	DeedDraft     DeedStatus = "DRAFT"
	DeedFinalized DeedStatus = "FINALIZED"
)

// TransferDeed is the per-case deed. Finalized is terminal.
type TransferDeed struct {
	ID          id.DeedID
	CaseID      id.CaseID
	Witness1    string
	Witness2    string
	Content     string
	Status      DeedStatus
	Signature1  string
	Signature2  string
	DocumentRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinalizedAt *time.Time
}

// IsFinalized reports whether the deed reached its terminal state.
func (d *TransferDeed) IsFinalized() bool {
	return d != nil && d.Status == DeedFinalized
}

// Clone returns a copy safe to mutate.
func (d *TransferDeed) Clone() *TransferDeed {
	if d == nil {
		return nil
	}
	out := *d
	if d.FinalizedAt != nil {
		t := *d.FinalizedAt
		out.FinalizedAt = &t
	}
	return &out
}

// AuditEntry records one committed transition. Never mutated or deleted.
type AuditEntry struct {
	ID         id.AuditEntryID
	CaseID     id.CaseID
	FromStage  StageCode
	ToStage    StageCode
	ActingUser string
	Timestamp  time.Time
	Remarks    string
}
