package handler

import (
	"time"

	"transferdesk/internal/workflow/accounts"
	"transferdesk/internal/workflow/clearance"
	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/service"
	"transferdesk/internal/workflow/stage"
)

// CaseResponse is the summary view of a case.
type CaseResponse struct {
	ID           string    `json:"id"`
	CurrentStage string    `json:"current_stage"`
	Version      int64     `json:"version"`
	PropertyRef  string    `json:"property_ref"`
	SellerRef    string    `json:"seller_ref"`
	BuyerRef     string    `json:"buyer_ref"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toCase(c models.Case) CaseResponse {
	return CaseResponse{
		ID:           c.ID.String(),
		CurrentStage: string(c.CurrentStage),
		Version:      c.Version,
		PropertyRef:  c.PropertyRef,
		SellerRef:    c.SellerRef,
		BuyerRef:     c.BuyerRef,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// CaseDetailResponse is GET /cases/{caseID}.
type CaseDetailResponse struct {
	CaseResponse
	Clearances  []ClearanceResponse  `json:"clearances"`
	Attachments []AttachmentResponse `json:"attachments"`
	Accounts    *AccountsResponse    `json:"accounts,omitempty"`
	Deed        *DeedResponse        `json:"deed,omitempty"`
}

func toCaseDetail(snap *models.Snapshot) CaseDetailResponse {
	out := CaseDetailResponse{
		CaseResponse: toCase(snap.Case),
		Clearances:   make([]ClearanceResponse, 0, len(snap.Clearances)),
		Attachments:  make([]AttachmentResponse, 0, len(snap.Attachments)),
	}
	for _, c := range snap.Clearances {
		out.Clearances = append(out.Clearances, toClearance(c))
	}
	for _, a := range snap.Attachments {
		out.Attachments = append(out.Attachments, toAttachment(a))
	}
	if snap.Accounts != nil {
		acc := toAccounts(snap.Accounts)
		out.Accounts = &acc
	}
	if snap.Deed != nil {
		d := toDeed(snap.Deed)
		out.Deed = &d
	}
	return out
}

type ClearanceResponse struct {
	ID                string    `json:"id"`
	Section           string    `json:"section"`
	Status            string    `json:"status"`
	Remarks           string    `json:"remarks,omitempty"`
	SignedDocumentRef string    `json:"signed_document_ref,omitempty"`
	RecordedBy        string    `json:"recorded_by"`
	CreatedAt         time.Time `json:"created_at"`
}

func toClearance(c models.Clearance) ClearanceResponse {
	return ClearanceResponse{
		ID:                c.ID.String(),
		Section:           string(c.Section),
		Status:            string(c.Status),
		Remarks:           c.Remarks,
		SignedDocumentRef: c.SignedDocumentRef,
		RecordedBy:        c.RecordedBy,
		CreatedAt:         c.CreatedAt,
	}
}

type AttachmentResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	DocumentRef string    `json:"document_ref"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func toAttachment(a models.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:          a.ID.String(),
		Type:        a.Type,
		DocumentRef: a.DocumentRef,
		UploadedBy:  a.UploadedBy,
		UploadedAt:  a.UploadedAt,
	}
}

// AccountsResponse renders money as fixed two-decimal strings.
type AccountsResponse struct {
	ID           string            `json:"id"`
	FeeHeads     map[string]string `json:"fee_heads"`
	Total        string            `json:"total"`
	PaidAmount   string            `json:"paid_amount"`
	ChallanRef   string            `json:"challan_ref,omitempty"`
	CalculatedAt time.Time         `json:"calculated_at"`
	PaidAt       *time.Time        `json:"paid_at,omitempty"`
}

func toAccounts(b *models.AccountsBreakdown) AccountsResponse {
	heads := make(map[string]string, len(b.FeeHeads))
	for k, v := range b.FeeHeads {
		heads[k] = v.StringFixed(2)
	}
	return AccountsResponse{
		ID:           b.ID.String(),
		FeeHeads:     heads,
		Total:        b.Total.StringFixed(2),
		PaidAmount:   b.PaidAmount.StringFixed(2),
		ChallanRef:   b.ChallanRef,
		CalculatedAt: b.CalculatedAt,
		PaidAt:       b.PaidAt,
	}
}

type PaymentResponse struct {
	Total      string `json:"total"`
	Paid       string `json:"paid"`
	Shortfall  string `json:"shortfall"`
	ChallanRef string `json:"challan_ref"`
	Sufficient bool   `json:"sufficient"`
	Reason     string `json:"reason,omitempty"`
}

func toPayment(p *accounts.Payment) PaymentResponse {
	return PaymentResponse{
		Total:      p.Total.StringFixed(2),
		Paid:       p.Paid.StringFixed(2),
		Shortfall:  p.Shortfall.StringFixed(2),
		ChallanRef: p.ChallanRef,
		Sufficient: p.Sufficient,
		Reason:     p.Reason,
	}
}

type DeedResponse struct {
	ID          string     `json:"id"`
	Witness1    string     `json:"witness1"`
	Witness2    string     `json:"witness2"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	DocumentRef string     `json:"document_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

func toDeed(d *models.TransferDeed) DeedResponse {
	return DeedResponse{
		ID:          d.ID.String(),
		Witness1:    d.Witness1,
		Witness2:    d.Witness2,
		Content:     d.Content,
		Status:      string(d.Status),
		DocumentRef: d.DocumentRef,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		FinalizedAt: d.FinalizedAt,
	}
}

type AuditEntryResponse struct {
	ID         string    `json:"id"`
	FromStage  string    `json:"from_stage"`
	ToStage    string    `json:"to_stage"`
	ActingUser string    `json:"acting_user"`
	Timestamp  time.Time `json:"timestamp"`
	Remarks    string    `json:"remarks,omitempty"`
}

func toAuditEntries(entries []models.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:         e.ID.String(),
			FromStage:  string(e.FromStage),
			ToStage:    string(e.ToStage),
			ActingUser: e.ActingUser,
			Timestamp:  e.Timestamp,
			Remarks:    e.Remarks,
		})
	}
	return out
}

type TransitionOptionResponse struct {
	To        string `json:"to"`
	ToName    string `json:"to_name"`
	Guard     string `json:"guard"`
	Evaluated bool   `json:"evaluated"`
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
}

func toOptions(opts []service.TransitionOption) []TransitionOptionResponse {
	out := make([]TransitionOptionResponse, 0, len(opts))
	for _, o := range opts {
		out = append(out, TransitionOptionResponse{
			To:        string(o.To),
			ToName:    o.ToName,
			Guard:     o.Guard,
			Evaluated: o.Evaluated,
			Allowed:   o.Allowed,
			Reason:    o.Reason,
		})
	}
	return out
}

type TransitionResponse struct {
	NewStage   string             `json:"new_stage"`
	Version    int64              `json:"version"`
	AuditEntry AuditEntryResponse `json:"audit_entry"`
}

func toTransition(r *service.TransitionResult) TransitionResponse {
	return TransitionResponse{
		NewStage:   string(r.NewStage),
		Version:    r.Version,
		AuditEntry: toAuditEntries([]models.AuditEntry{r.AuditEntry})[0],
	}
}

type GroupStatusResponse struct {
	Group      string            `json:"group"`
	Status     string            `json:"status"`
	Objections []string          `json:"objections"`
	Pending    []string          `json:"pending"`
	Sections   map[string]string `json:"sections"`
}

func toGroupStatus(v *clearance.Verdict) GroupStatusResponse {
	out := GroupStatusResponse{
		Group:      v.Group,
		Status:     string(v.Status),
		Objections: sectionStrings(v.Objections),
		Pending:    sectionStrings(v.Pending),
		Sections:   make(map[string]string, len(v.Sections)),
	}
	for sec, st := range v.Sections {
		out.Sections[string(sec)] = string(st)
	}
	return out
}

func sectionStrings(secs []models.Section) []string {
	out := make([]string, 0, len(secs))
	for _, s := range secs {
		out = append(out, string(s))
	}
	return out
}

type StageResponse struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Terminal bool     `json:"terminal"`
	Sections []string `json:"sections,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}

func toStages(stages []stage.Stage) []StageResponse {
	out := make([]StageResponse, 0, len(stages))
	for _, st := range stages {
		actions := make([]string, 0, len(st.Actions))
		for _, a := range st.Actions {
			actions = append(actions, string(a))
		}
		out = append(out, StageResponse{
			Code:     string(st.Code),
			Name:     st.Name,
			Terminal: st.Terminal,
			Sections: sectionStrings(st.Sections),
			Actions:  actions,
		})
	}
	return out
}
