package handler

import (
	"strings"

	dErrors "transferdesk/pkg/domain-errors"
)

const (
	maxRefLength     = 256
	maxRemarksLength = 4000
	maxDeedLength    = 200_000
)

// CreateCaseRequest is the body of POST /cases.
type CreateCaseRequest struct {
	PropertyRef string `json:"property_ref"`
	SellerRef   string `json:"seller_ref"`
	BuyerRef    string `json:"buyer_ref"`
}

func (r *CreateCaseRequest) Normalize() {
	r.PropertyRef = strings.TrimSpace(r.PropertyRef)
	r.SellerRef = strings.TrimSpace(r.SellerRef)
	r.BuyerRef = strings.TrimSpace(r.BuyerRef)
}

func (r *CreateCaseRequest) Validate() error {
	if r.PropertyRef == "" {
		return dErrors.New(dErrors.CodeValidation, "property_ref is required")
	}
	return checkLengths(maxRefLength, map[string]string{
		"property_ref": r.PropertyRef,
		"seller_ref":   r.SellerRef,
		"buyer_ref":    r.BuyerRef,
	})
}

// AttachDocumentRequest is the body of POST /cases/{caseID}/attachments.
type AttachDocumentRequest struct {
	Type        string `json:"type"`
	DocumentRef string `json:"document_ref"`
}

func (r *AttachDocumentRequest) Normalize() {
	r.Type = strings.ToUpper(strings.TrimSpace(r.Type))
	r.DocumentRef = strings.TrimSpace(r.DocumentRef)
}

func (r *AttachDocumentRequest) Validate() error {
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if r.DocumentRef == "" {
		return dErrors.New(dErrors.CodeValidation, "document_ref is required")
	}
	return checkLengths(maxRefLength, map[string]string{"type": r.Type, "document_ref": r.DocumentRef})
}

// TransitionRequest is the body of POST /cases/{caseID}/transitions.
type TransitionRequest struct {
	To      string `json:"to"`
	Remarks string `json:"remarks"`
}

func (r *TransitionRequest) Normalize() {
	r.To = strings.ToUpper(strings.TrimSpace(r.To))
	r.Remarks = strings.TrimSpace(r.Remarks)
}

func (r *TransitionRequest) Validate() error {
	if r.To == "" {
		return dErrors.New(dErrors.CodeValidation, "to is required")
	}
	return checkLengths(maxRemarksLength, map[string]string{"remarks": r.Remarks})
}

// ClearanceRequest is the body of POST /cases/{caseID}/clearances.
type ClearanceRequest struct {
	Section           string `json:"section"`
	Status            string `json:"status"`
	Remarks           string `json:"remarks"`
	SignedDocumentRef string `json:"signed_document_ref"`
}

func (r *ClearanceRequest) Normalize() {
	r.Section = strings.ToUpper(strings.TrimSpace(r.Section))
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	r.Remarks = strings.TrimSpace(r.Remarks)
	r.SignedDocumentRef = strings.TrimSpace(r.SignedDocumentRef)
}

func (r *ClearanceRequest) Validate() error {
	if r.Section == "" {
		return dErrors.New(dErrors.CodeValidation, "section is required")
	}
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	if err := checkLengths(maxRemarksLength, map[string]string{"remarks": r.Remarks}); err != nil {
		return err
	}
	return checkLengths(maxRefLength, map[string]string{"signed_document_ref": r.SignedDocumentRef})
}

// AccountsRequest is the body of POST /cases/{caseID}/accounts. Amounts are
// decimal strings so no precision is lost in transit.
type AccountsRequest struct {
	FeeHeads map[string]string `json:"fee_heads"`
}

func (r *AccountsRequest) Normalize() {
	out := make(map[string]string, len(r.FeeHeads))
	for k, v := range r.FeeHeads {
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	r.FeeHeads = out
}

func (r *AccountsRequest) Validate() error {
	if len(r.FeeHeads) == 0 {
		return dErrors.New(dErrors.CodeValidation, "fee_heads is required")
	}
	return nil
}

// PaymentRequest is the body of POST /cases/{caseID}/payment.
type PaymentRequest struct {
	PaidAmount string `json:"paid_amount"`
	ChallanRef string `json:"challan_ref"`
}

func (r *PaymentRequest) Normalize() {
	r.PaidAmount = strings.TrimSpace(r.PaidAmount)
	r.ChallanRef = strings.TrimSpace(r.ChallanRef)
}

func (r *PaymentRequest) Validate() error {
	if r.PaidAmount == "" {
		return dErrors.New(dErrors.CodeValidation, "paid_amount is required")
	}
	if r.ChallanRef == "" {
		return dErrors.New(dErrors.CodeValidation, "challan_ref is required")
	}
	return checkLengths(maxRefLength, map[string]string{"challan_ref": r.ChallanRef})
}

// DeedDraftRequest is the body of POST /cases/{caseID}/deed.
type DeedDraftRequest struct {
	Witness1 string `json:"witness1"`
	Witness2 string `json:"witness2"`
	Content  string `json:"content"`
}

func (r *DeedDraftRequest) Normalize() {
	r.Witness1 = strings.TrimSpace(r.Witness1)
	r.Witness2 = strings.TrimSpace(r.Witness2)
}

func (r *DeedDraftRequest) Validate() error {
	if err := checkLengths(maxRefLength, map[string]string{"witness1": r.Witness1, "witness2": r.Witness2}); err != nil {
		return err
	}
	return checkLengths(maxDeedLength, map[string]string{"content": r.Content})
}

// DeedUpdateRequest is the body of PUT /cases/{caseID}/deed.
type DeedUpdateRequest struct {
	Content string `json:"content"`
}

func (r *DeedUpdateRequest) Normalize() {}

func (r *DeedUpdateRequest) Validate() error {
	return checkLengths(maxDeedLength, map[string]string{"content": r.Content})
}

// FinalizeDeedRequest is the body of POST /cases/{caseID}/deed/finalize.
type FinalizeDeedRequest struct {
	Signature1 string `json:"signature1"`
	Signature2 string `json:"signature2"`
}

func (r *FinalizeDeedRequest) Normalize() {
	r.Signature1 = strings.TrimSpace(r.Signature1)
	r.Signature2 = strings.TrimSpace(r.Signature2)
}

func (r *FinalizeDeedRequest) Validate() error {
	return checkLengths(maxRefLength, map[string]string{"signature1": r.Signature1, "signature2": r.Signature2})
}

func checkLengths(limit int, fields map[string]string) error {
	for name, v := range fields {
		if len(v) > limit {
			return dErrors.Newf(dErrors.CodeValidation, "%s must be at most %d characters", name, limit)
		}
	}
	return nil
}
