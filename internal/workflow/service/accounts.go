package service

import (
	"context"

	"transferdesk/internal/workflow/accounts"
	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/stage"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
	audit "transferdesk/pkg/platform/audit"
	"transferdesk/pkg/requestcontext"
)

// ComputeAccounts parses the fee heads and stores the breakdown of the case.
func (s *Service) ComputeAccounts(ctx context.Context, caseID id.CaseID, feeHeads map[string]string) (out *models.AccountsBreakdown, err error) {
	ctx, span := s.startSpan(ctx, "workflow.ComputeAccounts", caseID)
	defer func() { endSpan(span, err) }()

	heads, err := accounts.ParseFeeHeads(feeHeads)
	if err != nil {
		return nil, err
	}
	snap, st, err := s.loadActive(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !st.Allows(stage.ActionComputeAccounts) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "accounts cannot be computed while the case is at %s", st.Code)
	}

	b, err := accounts.Compute(caseID, snap.Accounts, heads, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if _, err := s.commit(ctx, snap, models.Change{Accounts: b}, audit.Event{
		Action:    audit.ActionAccountsComputed,
		CaseID:    caseID,
		FromStage: string(st.Code),
		Decision:  b.Total.StringFixed(2),
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "accounts computed",
		"case_id", caseID,
		"total", b.Total.StringFixed(2),
		"fee_heads", len(b.FeeHeads),
	)
	return b.Clone(), nil
}

// VerifyPayment records a payment against the computed total. A shortfall is
// recorded too and reported in the result; the payment guard keeps the case
// where it is until the total is covered.
func (s *Service) VerifyPayment(ctx context.Context, caseID id.CaseID, paidAmount, challanRef string) (result *accounts.Payment, err error) {
	ctx, span := s.startSpan(ctx, "workflow.VerifyPayment", caseID)
	defer func() { endSpan(span, err) }()

	snap, st, err := s.loadActive(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !st.Allows(stage.ActionVerifyPayment) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "payments cannot be verified while the case is at %s", st.Code)
	}

	b, payment, err := accounts.VerifyPayment(snap.Accounts, paidAmount, challanRef, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	decision := "sufficient"
	if !payment.Sufficient {
		decision = "short"
	}
	if _, err := s.commit(ctx, snap, models.Change{Accounts: b}, audit.Event{
		Action:    audit.ActionPaymentRecorded,
		CaseID:    caseID,
		FromStage: string(st.Code),
		Subject:   b.ChallanRef,
		Decision:  decision,
		Remarks:   payment.Reason,
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment recorded",
		"case_id", caseID,
		"challan", b.ChallanRef,
		"sufficient", payment.Sufficient,
		"shortfall", payment.Shortfall.StringFixed(2),
	)
	return &payment, nil
}
