package service

import (
	"context"

	"transferdesk/internal/workflow/deed"
	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/stage"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
	audit "transferdesk/pkg/platform/audit"
	"transferdesk/pkg/requestcontext"
)

// loadForDeed loads an active case whose stage permits deed work. A finalized
// deed is reported before the stage check so callers see the terminal error.
func (s *Service) loadForDeed(ctx context.Context, caseID id.CaseID) (*models.Snapshot, stage.Stage, error) {
	snap, st, err := s.loadActive(ctx, caseID)
	if err != nil {
		return nil, stage.Stage{}, err
	}
	if snap.Deed.IsFinalized() {
		return nil, stage.Stage{}, dErrors.Wrap(deed.ErrAlreadyFinalized, dErrors.CodeTerminalState, "deed is already finalized")
	}
	if !st.Allows(stage.ActionDeed) {
		return nil, stage.Stage{}, dErrors.Newf(dErrors.CodeValidation, "the deed cannot be prepared while the case is at %s", st.Code)
	}
	return snap, st, nil
}

// CreateDeedDraft starts the deed or replaces the witnesses of the draft.
func (s *Service) CreateDeedDraft(ctx context.Context, caseID id.CaseID, witness1, witness2, content string) (out *models.TransferDeed, err error) {
	ctx, span := s.startSpan(ctx, "workflow.CreateDeedDraft", caseID)
	defer func() { endSpan(span, err) }()

	snap, st, err := s.loadForDeed(ctx, caseID)
	if err != nil {
		return nil, err
	}
	d, err := deed.CreateDraft(caseID, snap.Deed, witness1, witness2, content, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if _, err := s.commit(ctx, snap, models.Change{Deed: d}, audit.Event{
		Action:    audit.ActionDeedDrafted,
		CaseID:    caseID,
		FromStage: string(st.Code),
		Subject:   d.ID.String(),
	}); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// UpdateDeed replaces the draft content.
func (s *Service) UpdateDeed(ctx context.Context, caseID id.CaseID, content string) (out *models.TransferDeed, err error) {
	ctx, span := s.startSpan(ctx, "workflow.UpdateDeed", caseID)
	defer func() { endSpan(span, err) }()

	snap, st, err := s.loadForDeed(ctx, caseID)
	if err != nil {
		return nil, err
	}
	d, err := deed.Update(snap.Deed, content, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if _, err := s.commit(ctx, snap, models.Change{Deed: d}, audit.Event{
		Action:    audit.ActionDeedDrafted,
		CaseID:    caseID,
		FromStage: string(st.Code),
		Subject:   d.ID.String(),
	}); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// FinalizeDeed signs the deed with both witness signatures. It succeeds at
// most once per case.
func (s *Service) FinalizeDeed(ctx context.Context, caseID id.CaseID, sig1, sig2 string) (deedID id.DeedID, err error) {
	ctx, span := s.startSpan(ctx, "workflow.FinalizeDeed", caseID)
	defer func() { endSpan(span, err) }()

	snap, st, err := s.loadForDeed(ctx, caseID)
	if err != nil {
		return id.DeedID{}, err
	}
	if snap.Deed == nil {
		return id.DeedID{}, dErrors.New(dErrors.CodeNotFound, "no deed draft exists for this case")
	}
	if err := deed.CheckFinalizable(snap.Deed, sig1, sig2); err != nil {
		return id.DeedID{}, err
	}

	ref, err := s.issuer.IssueDeed(ctx, *snap.Deed)
	if err != nil {
		return id.DeedID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue deed document")
	}
	d, err := deed.Finalize(snap.Deed, sig1, sig2, ref, requestcontext.Now(ctx))
	if err != nil {
		return id.DeedID{}, err
	}
	if _, err := s.commit(ctx, snap, models.Change{Deed: d}, audit.Event{
		Action:    audit.ActionDeedFinalized,
		CaseID:    caseID,
		FromStage: string(st.Code),
		Subject:   d.DocumentRef,
	}); err != nil {
		return id.DeedID{}, err
	}

	s.logger.InfoContext(ctx, "deed finalized",
		"case_id", caseID,
		"deed_id", d.ID,
		"document_ref", d.DocumentRef,
	)
	return d.ID, nil
}
