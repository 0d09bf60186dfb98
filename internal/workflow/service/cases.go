package service

import (
	"context"
	"strings"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
	audit "transferdesk/pkg/platform/audit"
	"transferdesk/pkg/requestcontext"
)

// CreateCaseInput carries the parties and property of a new application.
type CreateCaseInput struct {
	PropertyRef string
	SellerRef   string
	BuyerRef    string
}

// CreateCase opens a case at the graph's initial stage.
func (s *Service) CreateCase(ctx context.Context, in CreateCaseInput) (out *models.Case, err error) {
	ctx, span := s.startSpan(ctx, "workflow.CreateCase", id.CaseID{})
	defer func() { endSpan(span, err) }()

	c, err := models.NewCase(id.NewCaseID(), s.graph.Initial(), in.PropertyRef, in.SellerRef, in.BuyerRef,
		requestcontext.ActingUser(ctx), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateCase(txCtx, c); err != nil {
			return s.wrapStoreErr(err, "failed to create case")
		}
		return s.emit(txCtx, audit.Event{
			Action:  audit.ActionCaseCreated,
			CaseID:  c.ID,
			ToStage: string(c.CurrentStage),
			Subject: c.PropertyRef,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "case created",
		"case_id", c.ID,
		"stage", c.CurrentStage,
		"property_ref", c.PropertyRef,
	)
	return c, nil
}

// AttachDocument registers an uploaded document on the case. The file itself
// lives in external storage; only its type and reference are kept.
func (s *Service) AttachDocument(ctx context.Context, caseID id.CaseID, docType, documentRef string) (out *models.Attachment, err error) {
	ctx, span := s.startSpan(ctx, "workflow.AttachDocument", caseID)
	defer func() { endSpan(span, err) }()

	docType = strings.ToUpper(strings.TrimSpace(docType))
	documentRef = strings.TrimSpace(documentRef)
	if docType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "attachment type is required")
	}
	if documentRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "document reference is required")
	}

	snap, st, err := s.loadActive(ctx, caseID)
	if err != nil {
		return nil, err
	}
	a := &models.Attachment{
		ID:          id.NewAttachmentID(),
		CaseID:      caseID,
		Type:        docType,
		DocumentRef: documentRef,
		UploadedBy:  requestcontext.ActingUser(ctx),
		UploadedAt:  requestcontext.Now(ctx),
	}
	if _, err := s.commit(ctx, snap, models.Change{Attachment: a}, audit.Event{
		Action:    audit.ActionAttachmentAdded,
		CaseID:    caseID,
		FromStage: string(st.Code),
		Subject:   docType,
	}); err != nil {
		return nil, err
	}
	return a, nil
}

// GetCase returns the full snapshot of a case.
func (s *Service) GetCase(ctx context.Context, caseID id.CaseID) (*models.Snapshot, error) {
	return s.load(ctx, caseID)
}

// AuditLog returns the committed transitions of a case, oldest first.
func (s *Service) AuditLog(ctx context.Context, caseID id.CaseID) ([]models.AuditEntry, error) {
	snap, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return snap.AuditLog, nil
}
