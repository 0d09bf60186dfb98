package service

import (
	"context"
	"strings"

	"transferdesk/internal/workflow/clearance"
	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
	audit "transferdesk/pkg/platform/audit"
	"transferdesk/pkg/requestcontext"
)

// ClearanceInput is a section's decision as submitted.
type ClearanceInput struct {
	Section           string
	Status            string
	Remarks           string
	SignedDocumentRef string
}

// RecordClearance appends a clearance for a section. Earlier records of the
// section stay in the ledger and are superseded, never overwritten. Decisions
// without a supplied document reference get one from the DocumentIssuer.
func (s *Service) RecordClearance(ctx context.Context, caseID id.CaseID, in ClearanceInput) (clearanceID id.ClearanceID, err error) {
	ctx, span := s.startSpan(ctx, "workflow.RecordClearance", caseID)
	defer func() { endSpan(span, err) }()

	sec, err := models.ParseSection(in.Section)
	if err != nil {
		return id.ClearanceID{}, err
	}
	status, err := models.ParseClearanceStatus(in.Status)
	if err != nil {
		return id.ClearanceID{}, err
	}
	remarks := strings.TrimSpace(in.Remarks)
	if status == models.ClearanceObjection && remarks == "" {
		return id.ClearanceID{}, dErrors.New(dErrors.CodeValidation, "remarks are required when raising an objection")
	}

	snap, st, err := s.loadActive(ctx, caseID)
	if err != nil {
		return id.ClearanceID{}, err
	}
	if !st.AcceptsSection(sec) {
		return id.ClearanceID{}, dErrors.Newf(dErrors.CodeValidation, "%s cannot record a clearance while the case is at %s", sec, st.Code)
	}

	c := models.Clearance{
		ID:                id.NewClearanceID(),
		CaseID:            caseID,
		Section:           sec,
		Status:            status,
		Remarks:           remarks,
		SignedDocumentRef: strings.TrimSpace(in.SignedDocumentRef),
		RecordedBy:        requestcontext.ActingUser(ctx),
		CreatedAt:         requestcontext.Now(ctx),
	}
	if c.SignedDocumentRef == "" && status != models.ClearancePending {
		ref, err := s.issuer.IssueClearance(ctx, c)
		if err != nil {
			return id.ClearanceID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue clearance document")
		}
		c.SignedDocumentRef = ref
	}

	if _, err := s.commit(ctx, snap, models.Change{Clearance: &c}, audit.Event{
		Action:    audit.ActionClearanceRecorded,
		CaseID:    caseID,
		FromStage: string(st.Code),
		Subject:   string(sec),
		Decision:  string(status),
		Remarks:   remarks,
	}); err != nil {
		return id.ClearanceID{}, err
	}

	if s.metrics != nil {
		s.metrics.IncrementClearance(string(sec), string(status))
	}
	s.logger.InfoContext(ctx, "clearance recorded",
		"case_id", caseID,
		"section", sec,
		"status", status,
		"stage", st.Code,
	)
	return c.ID, nil
}

// GroupStatus reports the aggregated verdict of a configured section group.
func (s *Service) GroupStatus(ctx context.Context, caseID id.CaseID, group string) (*clearance.Verdict, error) {
	g, ok := s.graph.Group(group)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "section group %s is not configured", group)
	}
	snap, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	v := clearance.Explain(clearance.Ledger(snap.Clearances).Latest(), g)
	return &v, nil
}
