package guard

import (
	"fmt"
	"strings"

	"transferdesk/internal/workflow/accounts"
	"transferdesk/internal/workflow/clearance"
	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/stage"
	pstrings "transferdesk/pkg/platform/strings"
)

// Names of the fixed guards. Per-section and per-group guards are derived
// with SectionClear, SectionObjection, SectionResolved and GroupClear.
const (
	IntakeComplete     = "GUARD_INTAKE_COMPLETE"
	ScrutinyComplete   = "GUARD_SCRUTINY_COMPLETE"
	AccountsCalculated = "GUARD_ACCOUNTS_CALCULATED"
	PaymentVerified    = "GUARD_PAYMENT_VERIFIED"
	ApprovalGranted    = "GUARD_APPROVAL_GRANTED"
	ApprovalDenied     = "GUARD_APPROVAL_DENIED"
	DeedFinalized      = "GUARD_DEED_FINALIZED"
	RejectionNoted     = "GUARD_REJECTION_NOTED"
)

func SectionClear(sec models.Section) string     { return "GUARD_" + string(sec) + "_CLEAR" }
func SectionObjection(sec models.Section) string { return "GUARD_" + string(sec) + "_OBJECTION" }
func SectionResolved(sec models.Section) string  { return "GUARD_" + string(sec) + "_RESOLVED" }
func GroupClear(group string) string             { return "GUARD_" + strings.ToUpper(group) + "_CLEAR" }

// NewDefaultRegistry registers the full catalogue for the graph's mandatory
// attachments and section groups.
func NewDefaultRegistry(g *stage.Graph) (*Registry, error) {
	r := NewRegistry()
	register := func(name string, guard Guard) error { return r.Register(name, guard) }

	fixed := map[string]Guard{
		IntakeComplete:     Intake(g.MandatoryAttachments()),
		ScrutinyComplete:   Func(scrutinyComplete),
		AccountsCalculated: Func(accountsCalculated),
		PaymentVerified:    Func(paymentVerified),
		ApprovalGranted:    Func(approvalGranted),
		ApprovalDenied:     Func(approvalDenied),
		DeedFinalized:      Func(deedFinalized),
		RejectionNoted:     Func(rejectionNoted),
	}
	for name, guard := range fixed {
		if err := register(name, guard); err != nil {
			return nil, err
		}
	}

	for _, sec := range models.Sections() {
		if err := register(SectionClear(sec), sectionIs(sec, models.ClearanceClear)); err != nil {
			return nil, err
		}
		if err := register(SectionObjection(sec), sectionIs(sec, models.ClearanceObjection)); err != nil {
			return nil, err
		}
		if err := register(SectionResolved(sec), sectionResolved(sec)); err != nil {
			return nil, err
		}
	}

	for _, group := range g.Groups() {
		// a group named after a section collides with the section guard
		if err := register(GroupClear(group.Name), Group(group)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Intake passes when every required attachment type is present.
func Intake(required []string) Guard {
	req := append([]string(nil), required...)
	return Func(func(snap *models.Snapshot) Decision {
		missing := pstrings.Missing(req, snap.AttachmentTypes())
		if len(missing) > 0 {
			return Deny("Missing required documents: " + joinComma(missing))
		}
		return Allow()
	})
}

func scrutinyComplete(snap *models.Snapshot) Decision {
	c := snap.Case
	var missing []string
	if strings.TrimSpace(c.PropertyRef) == "" {
		missing = append(missing, "property reference")
	}
	if strings.TrimSpace(c.SellerRef) == "" {
		missing = append(missing, "seller reference")
	}
	if strings.TrimSpace(c.BuyerRef) == "" {
		missing = append(missing, "buyer reference")
	}
	if len(missing) > 0 {
		return Deny("Missing case details: " + joinComma(missing))
	}
	if strings.EqualFold(strings.TrimSpace(c.SellerRef), strings.TrimSpace(c.BuyerRef)) {
		return Deny("Seller and buyer must be different parties")
	}
	return Allow()
}

func sectionIs(sec models.Section, want models.ClearanceStatus) Guard {
	return Func(func(snap *models.Snapshot) Decision {
		latest, ok := clearance.Ledger(snap.Clearances).Latest()[sec]
		if !ok {
			return Deny(fmt.Sprintf("No %s clearance recorded", sec))
		}
		if latest.Status != want {
			return Deny(fmt.Sprintf("%s clearance is %s, not %s", sec, latest.Status, want))
		}
		return Allow()
	})
}

func sectionResolved(sec models.Section) Guard {
	return Func(func(snap *models.Snapshot) Decision {
		latest, ok := clearance.Ledger(snap.Clearances).Latest()[sec]
		if !ok {
			return Deny(fmt.Sprintf("No %s clearance recorded", sec))
		}
		if latest.Status == models.ClearanceObjection {
			return Deny(fmt.Sprintf("%s objection is unresolved: %s", sec, orDash(latest.Remarks)))
		}
		return Allow()
	})
}

// Group passes when the group's aggregated status is Clear.
func Group(group models.SectionGroup) Guard {
	return Func(func(snap *models.Snapshot) Decision {
		v := clearance.Explain(clearance.Ledger(snap.Clearances).Latest(), group)
		switch v.Status {
		case models.ClearanceClear:
			return Allow()
		case models.ClearanceObjection:
			return Deny(fmt.Sprintf("%s has objections from: %s", group.Name, joinSections(v.Objections)))
		default:
			return Deny(fmt.Sprintf("%s awaiting clearance from: %s", group.Name, joinSections(v.Pending)))
		}
	})
}

func accountsCalculated(snap *models.Snapshot) Decision {
	if !snap.Accounts.IsCalculated() {
		return Deny("Accounts have not been calculated")
	}
	return Allow()
}

func paymentVerified(snap *models.Snapshot) Decision {
	p := accounts.Check(snap.Accounts)
	if !p.Sufficient {
		return Deny(p.Reason)
	}
	return Allow()
}

func approvalGranted(snap *models.Snapshot) Decision {
	latest, ok := clearance.Ledger(snap.Clearances).Latest()[models.SectionOWO]
	if !ok || latest.Status == models.ClearancePending {
		return Deny("Approval decision is pending")
	}
	if latest.Status != models.ClearanceClear {
		return Deny("Approval was denied: " + orDash(latest.Remarks))
	}
	return Allow()
}

func approvalDenied(snap *models.Snapshot) Decision {
	latest, ok := clearance.Ledger(snap.Clearances).Latest()[models.SectionOWO]
	if !ok || latest.Status != models.ClearanceObjection {
		return Deny("Approval has not been denied")
	}
	return Allow()
}

func deedFinalized(snap *models.Snapshot) Decision {
	switch {
	case snap.Deed == nil:
		return Deny("No transfer deed drafted")
	case !snap.Deed.IsFinalized():
		return Deny("Transfer deed is not finalized")
	}
	return Allow()
}

func rejectionNoted(snap *models.Snapshot) Decision {
	if strings.TrimSpace(snap.Remarks) == "" {
		return Deny("Remarks are required to reject a case")
	}
	return Allow()
}

func joinComma(items []string) string { return strings.Join(items, ", ") }

func joinSections(secs []models.Section) string {
	out := make([]string, len(secs))
	for i, s := range secs {
		out[i] = string(s)
	}
	return joinComma(out)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
