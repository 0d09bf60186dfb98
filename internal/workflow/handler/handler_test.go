package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"transferdesk/internal/workflow/guard"
	"transferdesk/internal/workflow/service"
	"transferdesk/internal/workflow/stage"
	"transferdesk/internal/workflow/store/memory"
	"transferdesk/pkg/platform/audit/publishers/compliance"
	auditmemory "transferdesk/pkg/platform/audit/store/memory"
	"transferdesk/pkg/platform/middleware/requestmeta"
)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	audits *auditmemory.InMemoryStore
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	g, err := stage.Default()
	s.Require().NoError(err)
	reg, err := guard.NewDefaultRegistry(g)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.audits = auditmemory.NewInMemoryStore()
	svc := service.New(g, reg, memory.NewInMemoryCaseStore(),
		service.WithLogger(logger),
		service.WithAuditPublisher(compliance.New(s.audits)),
	)

	r := chi.NewRouter()
	r.Use(requestmeta.Middleware)
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestmeta.HeaderActingUser, "officer.scrutiny")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *HandlerSuite) createCase() string {
	rec := s.do(http.MethodPost, "/cases", map[string]string{"property_ref": " PLOT-7 ", "seller_ref": "S-1", "buyer_ref": "B-1"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var c CaseResponse
	s.decode(rec, &c)
	s.Equal("PLOT-7", c.PropertyRef)
	s.Equal("SUBMITTED", c.CurrentStage)
	s.Equal("officer.scrutiny", c.CreatedBy)
	return c.ID
}

func (s *HandlerSuite) attachAll(caseID string) {
	for _, doc := range []string{"sale_agreement", "SELLER_CNIC", "BUYER_CNIC", "ALLOTMENT_LETTER"} {
		rec := s.do(http.MethodPost, "/cases/"+caseID+"/attachments", map[string]string{"type": doc, "document_ref": "files://" + doc})
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func (s *HandlerSuite) TestIntakeGuardThenTransition() {
	caseID := s.createCase()

	rec := s.do(http.MethodPost, "/cases/"+caseID+"/transitions", map[string]string{"to": "under_scrutiny"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	var errBody map[string]string
	s.decode(rec, &errBody)
	s.Equal("guard_rejected", errBody["error"])
	s.Contains(errBody["error_description"], "Missing required documents")

	s.attachAll(caseID)

	rec = s.do(http.MethodGet, "/cases/"+caseID+"/transitions", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var listing struct {
		From        string                     `json:"from"`
		Transitions []TransitionOptionResponse `json:"transitions"`
	}
	s.decode(rec, &listing)
	s.Equal("SUBMITTED", listing.From)
	s.Require().NotEmpty(listing.Transitions)
	for _, opt := range listing.Transitions {
		s.True(opt.Evaluated)
		if opt.To == "UNDER_SCRUTINY" {
			s.True(opt.Allowed, opt.Reason)
		}
	}

	rec = s.do(http.MethodPost, "/cases/"+caseID+"/transitions", map[string]string{"to": "UNDER_SCRUTINY", "remarks": "documents checked"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var moved TransitionResponse
	s.decode(rec, &moved)
	s.Equal("UNDER_SCRUTINY", moved.NewStage)
	s.Equal("SUBMITTED", moved.AuditEntry.FromStage)
	s.Equal("officer.scrutiny", moved.AuditEntry.ActingUser)

	rec = s.do(http.MethodGet, "/cases/"+caseID+"/audit", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var log struct {
		Entries []AuditEntryResponse `json:"entries"`
	}
	s.decode(rec, &log)
	s.Require().Len(log.Entries, 1)
	s.Equal("documents checked", log.Entries[0].Remarks)
}

func (s *HandlerSuite) TestUnknownEdgeIsConflict() {
	caseID := s.createCase()
	rec := s.do(http.MethodPost, "/cases/"+caseID+"/transitions", map[string]string{"to": "APPROVED"})
	s.Equal(http.StatusConflict, rec.Code)
	var errBody map[string]string
	s.decode(rec, &errBody)
	s.Equal("no_such_transition", errBody["error"])
}

func (s *HandlerSuite) TestStaticTransitionListing() {
	rec := s.do(http.MethodGet, "/transitions?from=submitted", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var listing struct {
		From        string                     `json:"from"`
		Transitions []TransitionOptionResponse `json:"transitions"`
	}
	s.decode(rec, &listing)
	s.Equal("SUBMITTED", listing.From)
	for _, opt := range listing.Transitions {
		s.False(opt.Evaluated)
	}

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/transitions", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/transitions?from=NOWHERE", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/transitions?from=SUBMITTED&dry_run=maybe", nil).Code)
}

func (s *HandlerSuite) TestClearanceAndGroupStatus() {
	caseID := s.createCase()
	s.attachAll(caseID)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/cases/"+caseID+"/transitions", map[string]string{"to": "UNDER_SCRUTINY"}).Code)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/cases/"+caseID+"/transitions", map[string]string{"to": "SENT_TO_BCA_HOUSING"}).Code)

	rec := s.do(http.MethodPost, "/cases/"+caseID+"/clearances", map[string]string{"section": "bca", "status": "objection"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code, "objection without remarks")

	rec = s.do(http.MethodPost, "/cases/"+caseID+"/clearances", map[string]string{"section": "bca", "status": "objection", "remarks": "setback violation"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/cases/"+caseID+"/clearances", map[string]string{"section": "HOUSING", "status": "CLEAR"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/cases/"+caseID+"/groups/BCA_HOUSING", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var group GroupStatusResponse
	s.decode(rec, &group)
	s.Equal("OBJECTION", group.Status)
	s.Equal([]string{"BCA"}, group.Objections)
	s.Equal("CLEAR", group.Sections["HOUSING"])

	rec = s.do(http.MethodGet, "/cases/"+caseID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var detail CaseDetailResponse
	s.decode(rec, &detail)
	s.Len(detail.Clearances, 2)
	s.Len(detail.Attachments, 4)
	s.Nil(detail.Accounts)
}

func (s *HandlerSuite) TestAccountsOutsideStageIsRejected() {
	caseID := s.createCase()
	rec := s.do(http.MethodPost, "/cases/"+caseID+"/accounts", map[string]any{"fee_heads": map[string]string{"transfer_fee": "500"}})
	s.Equal(http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/cases/"+caseID+"/accounts", map[string]any{"fee_heads": map[string]string{}})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *HandlerSuite) TestBadInput() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/cases/not-a-uuid", nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/cases/"+uuid.NewString(), nil).Code)
	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodPost, "/cases", map[string]string{"seller_ref": "S"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/cases", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestStagesListing() {
	rec := s.do(http.MethodGet, "/stages", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var body struct {
		Initial string          `json:"initial"`
		Stages  []StageResponse `json:"stages"`
	}
	s.decode(rec, &body)
	s.Equal("SUBMITTED", body.Initial)
	s.NotEmpty(body.Stages)
}

func (s *HandlerSuite) TestRequestIDEchoedAndAudited() {
	req := httptest.NewRequest(http.MethodPost, "/cases", bytes.NewBufferString(`{"property_ref":"PLOT-8"}`))
	req.Header.Set(requestmeta.HeaderRequestID, "req-handler-1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusCreated, rec.Code)
	s.Equal("req-handler-1", rec.Header().Get(requestmeta.HeaderRequestID))

	events, err := s.audits.ListRecent(req.Context(), 10)
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal("req-handler-1", events[len(events)-1].RequestID)
}
