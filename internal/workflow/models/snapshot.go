package models

import "time"

// Snapshot is the pre-loaded, read-only view of a case handed to guards.
// Guards never reach past it for data.
type Snapshot struct {
	Case        Case
	Clearances  []Clearance
	Accounts    *AccountsBreakdown
	Deed        *TransferDeed
	Attachments []Attachment
	AuditLog    []AuditEntry
	// Remarks are those supplied with the transition being evaluated. Empty
	// in dry-run previews.
	Remarks string
}

// WithRemarks returns a shallow copy carrying the request remarks.
func (s *Snapshot) WithRemarks(remarks string) *Snapshot {
	out := *s
	out.Remarks = remarks
	return &out
}

// AttachmentTypes returns the set of attachment types present on the case.
func (s *Snapshot) AttachmentTypes() map[string]struct{} {
	types := make(map[string]struct{}, len(s.Attachments))
	for _, a := range s.Attachments {
		types[a.Type] = struct{}{}
	}
	return types
}

// Change is everything one commit writes for a case. Nil fields are left
// untouched. Stores apply a Change atomically and bump the case version.
type Change struct {
	// At becomes the case's UpdatedAt.
	At         time.Time
	NewStage   *StageCode
	Audit      *AuditEntry
	Clearance  *Clearance
	Attachment *Attachment
	Accounts   *AccountsBreakdown
	Deed       *TransferDeed
}

// IsEmpty reports whether the change writes nothing.
func (c Change) IsEmpty() bool {
	return c.NewStage == nil && c.Audit == nil && c.Clearance == nil &&
		c.Attachment == nil && c.Accounts == nil && c.Deed == nil
}

// Clone returns a deep copy so stores can hand out snapshots safely.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Case:        s.Case,
		Clearances:  append([]Clearance(nil), s.Clearances...),
		Accounts:    s.Accounts.Clone(),
		Deed:        s.Deed.Clone(),
		Attachments: append([]Attachment(nil), s.Attachments...),
		AuditLog:    append([]AuditEntry(nil), s.AuditLog...),
		Remarks:     s.Remarks,
	}
	return out
}

// Apply writes change into the snapshot and bumps the case version. Callers
// check the expected version first.
func (s *Snapshot) Apply(change Change) {
	if change.NewStage != nil {
		s.Case.CurrentStage = *change.NewStage
	}
	if change.Audit != nil {
		s.AuditLog = append(s.AuditLog, *change.Audit)
	}
	if change.Clearance != nil {
		s.Clearances = append(s.Clearances, *change.Clearance)
	}
	if change.Attachment != nil {
		s.Attachments = append(s.Attachments, *change.Attachment)
	}
	if change.Accounts != nil {
		s.Accounts = change.Accounts.Clone()
	}
	if change.Deed != nil {
		s.Deed = change.Deed.Clone()
	}
	s.Case.Version++
	if !change.At.IsZero() {
		s.Case.UpdatedAt = change.At
	}
}
