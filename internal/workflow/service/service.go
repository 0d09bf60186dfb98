// Package service is the single entry point of the workflow engine. It loads a
// case snapshot, runs the guard of the requested edge and commits the change
// with an optimistic version check, appending the audit entry in the same
// commit.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transferdesk/internal/workflow/guard"
	workflowmetrics "transferdesk/internal/workflow/metrics"
	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/stage"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
	audit "transferdesk/pkg/platform/audit"
	"transferdesk/pkg/platform/sentinel"
	"transferdesk/pkg/platform/tx"
	"transferdesk/pkg/requestcontext"
)

const tracerName = "transferdesk/workflow"

// Service orchestrates case transitions and the section sub-flows.
type Service struct {
	graph          *stage.Graph
	guards         *guard.Registry
	store          Store
	tx             Tx
	issuer         DocumentIssuer
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *workflowmetrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *workflowmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithDocumentIssuer(issuer DocumentIssuer) Option {
	return func(s *Service) {
		s.issuer = issuer
	}
}

// WithTx makes commits and audit writes share a transaction.
func WithTx(t Tx) Option {
	return func(s *Service) {
		s.tx = t
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service. The registry must already have been validated
// against the graph.
func New(graph *stage.Graph, guards *guard.Registry, store Store, opts ...Option) *Service {
	s := &Service{
		graph:  graph,
		guards: guards,
		store:  store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.Passthrough{}
	}
	if s.issuer == nil {
		s.issuer = ReferenceIssuer{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Graph returns the stage graph the service runs on.
func (s *Service) Graph() *stage.Graph {
	return s.graph
}

func (s *Service) startSpan(ctx context.Context, name string, caseID id.CaseID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if !caseID.IsNil() {
		span.SetAttributes(attribute.String("case.id", caseID.String()))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, dErrors.Message(err))
	}
	span.End()
}

func requireCaseID(caseID id.CaseID) error {
	if caseID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "case ID required")
	}
	return nil
}

// load fetches the snapshot and translates store facts into domain errors.
func (s *Service) load(ctx context.Context, caseID id.CaseID) (*models.Snapshot, error) {
	if err := requireCaseID(caseID); err != nil {
		return nil, err
	}
	snap, err := s.store.LoadSnapshot(ctx, caseID)
	if err != nil {
		return nil, s.wrapStoreErr(err, "failed to load case")
	}
	return snap, nil
}

// loadActive additionally rejects cases in a terminal stage.
func (s *Service) loadActive(ctx context.Context, caseID id.CaseID) (*models.Snapshot, stage.Stage, error) {
	snap, err := s.load(ctx, caseID)
	if err != nil {
		return nil, stage.Stage{}, err
	}
	st, err := s.graph.Stage(snap.Case.CurrentStage)
	if err != nil {
		return nil, stage.Stage{}, err
	}
	if st.Terminal {
		return nil, stage.Stage{}, dErrors.Newf(dErrors.CodeTerminalState, "case is %s and can no longer change", st.Code)
	}
	return snap, st, nil
}

// commit writes change at the snapshot's version and emits its audit events,
// both inside one transaction.
func (s *Service) commit(ctx context.Context, snap *models.Snapshot, change models.Change, events ...audit.Event) (*models.Case, error) {
	change.At = requestcontext.Now(ctx)
	var updated *models.Case
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.store.Commit(txCtx, snap.Case.ID, snap.Case.Version, change)
		if err != nil {
			return s.wrapStoreErr(err, "failed to commit case change")
		}
		for _, e := range events {
			if err := s.emit(txCtx, e); err != nil {
				return err
			}
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.ActingUser(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	case errors.Is(err, sentinel.ErrConflict):
		if s.metrics != nil {
			s.metrics.IncrementConflict()
		}
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "case was modified concurrently; reload and retry")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
