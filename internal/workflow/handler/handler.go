package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"transferdesk/internal/workflow/accounts"
	"transferdesk/internal/workflow/clearance"
	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/service"
	"transferdesk/internal/workflow/stage"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
	"transferdesk/pkg/platform/httputil"
	"transferdesk/pkg/requestcontext"
)

// Service is the workflow surface the HTTP layer drives.
type Service interface {
	Graph() *stage.Graph
	CreateCase(ctx context.Context, in service.CreateCaseInput) (*models.Case, error)
	GetCase(ctx context.Context, caseID id.CaseID) (*models.Snapshot, error)
	AuditLog(ctx context.Context, caseID id.CaseID) ([]models.AuditEntry, error)
	AttachDocument(ctx context.Context, caseID id.CaseID, docType, documentRef string) (*models.Attachment, error)
	ListTransitions(ctx context.Context, from models.StageCode, caseID *id.CaseID, dryRun bool) ([]service.TransitionOption, error)
	RequestTransition(ctx context.Context, caseID id.CaseID, to models.StageCode, remarks string) (*service.TransitionResult, error)
	RecordClearance(ctx context.Context, caseID id.CaseID, in service.ClearanceInput) (id.ClearanceID, error)
	GroupStatus(ctx context.Context, caseID id.CaseID, group string) (*clearance.Verdict, error)
	ComputeAccounts(ctx context.Context, caseID id.CaseID, feeHeads map[string]string) (*models.AccountsBreakdown, error)
	VerifyPayment(ctx context.Context, caseID id.CaseID, paidAmount, challanRef string) (*accounts.Payment, error)
	CreateDeedDraft(ctx context.Context, caseID id.CaseID, witness1, witness2, content string) (*models.TransferDeed, error)
	UpdateDeed(ctx context.Context, caseID id.CaseID, content string) (*models.TransferDeed, error)
	FinalizeDeed(ctx context.Context, caseID id.CaseID, sig1, sig2 string) (id.DeedID, error)
}

// Handler exposes the workflow service over JSON HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, logger: logger}
}

// Register mounts workflow endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/stages", h.HandleListStages)
	r.Get("/transitions", h.HandleListTransitions)

	r.Post("/cases", h.HandleCreateCase)
	r.Route("/cases/{caseID}", func(r chi.Router) {
		r.Get("/", h.HandleGetCase)
		r.Get("/audit", h.HandleAuditLog)
		r.Post("/attachments", h.HandleAttachDocument)
		r.Get("/transitions", h.HandleCaseTransitions)
		r.Post("/transitions", h.HandleRequestTransition)
		r.Post("/clearances", h.HandleRecordClearance)
		r.Get("/groups/{group}", h.HandleGroupStatus)
		r.Post("/accounts", h.HandleComputeAccounts)
		r.Post("/payment", h.HandleVerifyPayment)
		r.Post("/deed", h.HandleCreateDeed)
		r.Put("/deed", h.HandleUpdateDeed)
		r.Post("/deed/finalize", h.HandleFinalizeDeed)
	})
}

// HandleListStages handles GET /stages.
func (h *Handler) HandleListStages(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"initial": string(h.service.Graph().Initial()),
		"stages":  toStages(h.service.Graph().Stages()),
	})
}

// HandleListTransitions handles GET /transitions?from=STAGE[&case_id=ID&dry_run=true].
func (h *Handler) HandleListTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	if from == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "from is required"))
		return
	}
	dryRun, err := parseBool(q.Get("dry_run"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var caseID *id.CaseID
	if raw := strings.TrimSpace(q.Get("case_id")); raw != "" {
		parsed, err := id.ParseCaseID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		caseID = &parsed
	}

	opts, err := h.service.ListTransitions(ctx, models.StageCode(from), caseID, dryRun)
	if err != nil {
		h.fail(ctx, w, "list transitions failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"from": strings.ToUpper(from), "transitions": toOptions(opts)})
}

// HandleCaseTransitions handles GET /cases/{caseID}/transitions: the edges
// out of the case's current stage, evaluated unless dry_run=false.
func (h *Handler) HandleCaseTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	dryRun := true
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := parseBool(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		dryRun = v
	}

	snap, err := h.service.GetCase(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "load case failed", err)
		return
	}
	opts, err := h.service.ListTransitions(ctx, snap.Case.CurrentStage, &caseID, dryRun)
	if err != nil {
		h.fail(ctx, w, "list transitions failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"from": string(snap.Case.CurrentStage), "transitions": toOptions(opts)})
}

// HandleCreateCase handles POST /cases.
func (h *Handler) HandleCreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateCaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.CreateCase(ctx, service.CreateCaseInput{
		PropertyRef: req.PropertyRef,
		SellerRef:   req.SellerRef,
		BuyerRef:    req.BuyerRef,
	})
	if err != nil {
		h.fail(ctx, w, "create case failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCase(*c))
}

// HandleGetCase handles GET /cases/{caseID}.
func (h *Handler) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.GetCase(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "load case failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseDetail(snap))
}

// HandleAuditLog handles GET /cases/{caseID}/audit.
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.AuditLog(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "load audit log failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": toAuditEntries(entries)})
}

// HandleAttachDocument handles POST /cases/{caseID}/attachments.
func (h *Handler) HandleAttachDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttachDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	att, err := h.service.AttachDocument(ctx, caseID, req.Type, req.DocumentRef)
	if err != nil {
		h.fail(ctx, w, "attach document failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAttachment(*att))
}

// HandleRequestTransition handles POST /cases/{caseID}/transitions.
func (h *Handler) HandleRequestTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.service.RequestTransition(ctx, caseID, models.StageCode(req.To), req.Remarks)
	if err != nil {
		h.fail(ctx, w, "transition rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransition(result))
}

// HandleRecordClearance handles POST /cases/{caseID}/clearances.
func (h *Handler) HandleRecordClearance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClearanceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	clearanceID, err := h.service.RecordClearance(ctx, caseID, service.ClearanceInput{
		Section:           req.Section,
		Status:            req.Status,
		Remarks:           req.Remarks,
		SignedDocumentRef: req.SignedDocumentRef,
	})
	if err != nil {
		h.fail(ctx, w, "record clearance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"clearance_id": clearanceID.String()})
}

// HandleGroupStatus handles GET /cases/{caseID}/groups/{group}.
func (h *Handler) HandleGroupStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	verdict, err := h.service.GroupStatus(ctx, caseID, chi.URLParam(r, "group"))
	if err != nil {
		h.fail(ctx, w, "group status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGroupStatus(verdict))
}

// HandleComputeAccounts handles POST /cases/{caseID}/accounts.
func (h *Handler) HandleComputeAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AccountsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.ComputeAccounts(ctx, caseID, req.FeeHeads)
	if err != nil {
		h.fail(ctx, w, "compute accounts failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccounts(b))
}

// HandleVerifyPayment handles POST /cases/{caseID}/payment.
func (h *Handler) HandleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PaymentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.VerifyPayment(ctx, caseID, req.PaidAmount, req.ChallanRef)
	if err != nil {
		h.fail(ctx, w, "verify payment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPayment(p))
}

// HandleCreateDeed handles POST /cases/{caseID}/deed.
func (h *Handler) HandleCreateDeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeedDraftRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.CreateDeedDraft(ctx, caseID, req.Witness1, req.Witness2, req.Content)
	if err != nil {
		h.fail(ctx, w, "create deed draft failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDeed(d))
}

// HandleUpdateDeed handles PUT /cases/{caseID}/deed.
func (h *Handler) HandleUpdateDeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeedUpdateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.UpdateDeed(ctx, caseID, req.Content)
	if err != nil {
		h.fail(ctx, w, "update deed failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDeed(d))
}

// HandleFinalizeDeed handles POST /cases/{caseID}/deed/finalize.
func (h *Handler) HandleFinalizeDeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FinalizeDeedRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	deedID, err := h.service.FinalizeDeed(ctx, caseID, req.Signature1, req.Signature2)
	if err != nil {
		h.fail(ctx, w, "finalize deed failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"deed_id": deedID.String()})
}

func (h *Handler) caseID(w http.ResponseWriter, r *http.Request) (id.CaseID, bool) {
	caseID, err := id.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.CaseID{}, false
	}
	return caseID, true
}

// fail logs rejections at warn and infrastructure failures at error, then
// writes the mapped response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"acting_user", requestcontext.ActingUser(ctx),
		"error", err,
	}
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.Newf(dErrors.CodeBadRequest, "invalid boolean %q", raw)
	}
	return v, nil
}
