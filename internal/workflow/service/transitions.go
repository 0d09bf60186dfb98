package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
	audit "transferdesk/pkg/platform/audit"
	"transferdesk/pkg/requestcontext"
)

// TransitionOption is one outgoing edge of a stage. Allowed and Reason are
// meaningful only when Evaluated.
type TransitionOption struct {
	To        models.StageCode
	ToName    string
	Guard     string
	Evaluated bool
	Allowed   bool
	Reason    string
}

// TransitionResult is a committed transition.
type TransitionResult struct {
	NewStage   models.StageCode
	AuditEntry models.AuditEntry
	Version    int64
}

func normalizeStage(code models.StageCode) models.StageCode {
	return models.StageCode(strings.ToUpper(strings.TrimSpace(string(code))))
}

// ListTransitions enumerates the outgoing edges of from. With a case and
// dryRun each edge's guard is evaluated against the case without committing;
// a case sitting at another stage gets every edge denied.
func (s *Service) ListTransitions(ctx context.Context, from models.StageCode, caseID *id.CaseID, dryRun bool) ([]TransitionOption, error) {
	from = normalizeStage(from)
	if _, err := s.graph.Stage(from); err != nil {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown stage %s", from)
	}
	edges, err := s.graph.Edges(from)
	if err != nil {
		return nil, err
	}

	options := make([]TransitionOption, 0, len(edges))
	for _, e := range edges {
		to, err := s.graph.Stage(e.To)
		if err != nil {
			return nil, err
		}
		options = append(options, TransitionOption{To: e.To, ToName: to.Name, Guard: e.Guard})
	}
	if caseID == nil || !dryRun {
		return options, nil
	}

	snap, err := s.load(ctx, *caseID)
	if err != nil {
		return nil, err
	}
	for i := range options {
		options[i].Evaluated = true
		if snap.Case.CurrentStage != from {
			options[i].Reason = fmt.Sprintf("Case is at stage %s, not %s", snap.Case.CurrentStage, from)
			continue
		}
		d, err := s.guards.Evaluate(options[i].Guard, snap)
		if err != nil {
			return nil, err
		}
		options[i].Allowed = d.Allowed
		options[i].Reason = d.Reason
	}
	return options, nil
}

// RequestTransition moves a case to stage to when the edge exists and its
// guard passes. The stage change and its audit entry commit together.
func (s *Service) RequestTransition(ctx context.Context, caseID id.CaseID, to models.StageCode, remarks string) (result *TransitionResult, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "workflow.RequestTransition", caseID)
	defer func() { endSpan(span, err) }()
	if s.metrics != nil {
		defer s.metrics.ObserveTransition(start)
	}

	to = normalizeStage(to)
	remarks = strings.TrimSpace(remarks)

	snap, _, err := s.loadActive(ctx, caseID)
	if err != nil {
		return nil, err
	}
	from := snap.Case.CurrentStage
	span.SetAttributes(attribute.String("stage.from", string(from)), attribute.String("stage.to", string(to)))

	edge, ok := s.graph.Edge(from, to)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNoSuchTransition, "no transition from %s to %s", from, to)
	}

	decision, err := s.guards.Evaluate(edge.Guard, snap.WithRemarks(remarks))
	if err != nil {
		s.logger.ErrorContext(ctx, "guard not registered",
			"guard", edge.Guard,
			"case_id", caseID,
			"error", err,
		)
		return nil, err
	}
	if !decision.Allowed {
		if s.metrics != nil {
			s.metrics.IncrementGuardRejected(edge.Guard)
		}
		s.logger.InfoContext(ctx, "transition rejected by guard",
			"case_id", caseID,
			"from_stage", from,
			"to_stage", to,
			"guard", edge.Guard,
			"reason", decision.Reason,
		)
		return nil, dErrors.New(dErrors.CodeGuardRejected, decision.Reason)
	}

	entry := models.AuditEntry{
		ID:         id.NewAuditEntryID(),
		CaseID:     caseID,
		FromStage:  from,
		ToStage:    to,
		ActingUser: requestcontext.ActingUser(ctx),
		Timestamp:  requestcontext.Now(ctx),
		Remarks:    remarks,
	}
	updated, err := s.commit(ctx, snap, models.Change{NewStage: &to, Audit: &entry}, audit.Event{
		Action:    audit.ActionTransitionCommitted,
		CaseID:    caseID,
		ActorID:   entry.ActingUser,
		Timestamp: entry.Timestamp,
		FromStage: string(from),
		ToStage:   string(to),
		Subject:   edge.Guard,
		Remarks:   remarks,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConcurrentModification) {
			s.logger.InfoContext(ctx, "transition lost concurrent race",
				"case_id", caseID,
				"from_stage", from,
				"to_stage", to,
			)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCommitted(string(from), string(to))
	}
	s.logger.InfoContext(ctx, "transition committed",
		"case_id", caseID,
		"from_stage", from,
		"to_stage", to,
		"acting_user", entry.ActingUser,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &TransitionResult{NewStage: updated.CurrentStage, AuditEntry: entry, Version: updated.Version}, nil
}
