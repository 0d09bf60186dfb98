// Package deed enforces the two-witness protocol of the transfer deed.
// A deed moves from draft to finalized once; finalized deeds are never edited.
package deed

import (
	"errors"
	"strings"
	"time"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
)

// ErrAlreadyFinalized is wrapped with CodeTerminalState whenever a finalized
// deed would be changed.
var ErrAlreadyFinalized = errors.New("DeedAlreadyFinalized")

func alreadyFinalized() error {
	return dErrors.Wrap(ErrAlreadyFinalized, dErrors.CodeTerminalState, "deed is already finalized")
}

func sameIdentity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CreateDraft starts a draft or replaces the witnesses of an existing draft.
func CreateDraft(caseID id.CaseID, existing *models.TransferDeed, witness1, witness2, content string, now time.Time) (*models.TransferDeed, error) {
	if existing.IsFinalized() {
		return nil, alreadyFinalized()
	}
	w1, w2 := strings.TrimSpace(witness1), strings.TrimSpace(witness2)
	if w1 == "" || w2 == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "both witnesses are required")
	}

	if existing == nil {
		return &models.TransferDeed{
			ID:        id.NewDeedID(),
			CaseID:    caseID,
			Witness1:  w1,
			Witness2:  w2,
			Content:   content,
			Status:    models.DeedDraft,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	out := existing.Clone()
	out.Witness1, out.Witness2 = w1, w2
	out.Content = content
	// signatures belong to the previous witnesses
	out.Signature1, out.Signature2 = "", ""
	out.UpdatedAt = now
	return out, nil
}

// Update replaces the draft content.
func Update(existing *models.TransferDeed, content string, now time.Time) (*models.TransferDeed, error) {
	if existing == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no deed draft exists for this case")
	}
	if existing.IsFinalized() {
		return nil, alreadyFinalized()
	}
	out := existing.Clone()
	out.Content = content
	out.UpdatedAt = now
	return out, nil
}

// Finalize signs the deed. Witnesses must be distinct identities and both
// signatures present; the check on witnesses runs first so a deed with one
// person in both roles never finalizes whatever the signatures say.
func Finalize(existing *models.TransferDeed, sig1, sig2, documentRef string, now time.Time) (*models.TransferDeed, error) {
	if existing == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no deed draft exists for this case")
	}
	if existing.IsFinalized() {
		return nil, alreadyFinalized()
	}
	if err := CheckFinalizable(existing, sig1, sig2); err != nil {
		return nil, err
	}

	out := existing.Clone()
	out.Signature1 = strings.TrimSpace(sig1)
	out.Signature2 = strings.TrimSpace(sig2)
	out.DocumentRef = documentRef
	out.Status = models.DeedFinalized
	out.FinalizedAt = &now
	out.UpdatedAt = now
	return out, nil
}

// CheckFinalizable validates witnesses and signatures without changing the deed.
func CheckFinalizable(d *models.TransferDeed, sig1, sig2 string) error {
	if strings.TrimSpace(d.Witness1) == "" || strings.TrimSpace(d.Witness2) == "" {
		return dErrors.New(dErrors.CodeValidation, "both witnesses are required")
	}
	if sameIdentity(d.Witness1, d.Witness2) {
		return dErrors.New(dErrors.CodeValidation, "witnesses must be two different people")
	}
	if strings.TrimSpace(sig1) == "" || strings.TrimSpace(sig2) == "" {
		return dErrors.New(dErrors.CodeValidation, "both witness signatures are required")
	}
	return nil
}
