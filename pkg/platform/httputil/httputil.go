// Package httputil holds JSON response helpers and the mapping from domain
// error codes to HTTP status codes.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "transferdesk/pkg/domain-errors"
)

// Preparable is implemented by request DTOs that trim and validate themselves
// after decoding.
type Preparable interface {
	Normalize()
	Validate() error
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:             http.StatusBadRequest,
	dErrors.CodeInvalidInput:           http.StatusBadRequest,
	dErrors.CodeValidation:             http.StatusUnprocessableEntity,
	dErrors.CodeGuardRejected:          http.StatusUnprocessableEntity,
	dErrors.CodeNoSuchTransition:       http.StatusConflict,
	dErrors.CodeConcurrentModification: http.StatusConflict,
	dErrors.CodeTerminalState:          http.StatusConflict,
	dErrors.CodeNotFound:               http.StatusNotFound,
	dErrors.CodeTimeout:                http.StatusGatewayTimeout,
	dErrors.CodeConfiguration:          http.StatusInternalServerError,
	dErrors.CodeInternal:               http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a domain error.
func StatusFor(err error) int {
	if status, ok := statusByCode[dErrors.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": code, "error_description": message}. The
// description is omitted for internal failures.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(err)
	body := map[string]string{"error": string(code)}
	if status < http.StatusInternalServerError {
		body["error_description"] = dErrors.Message(err)
	}
	WriteJSON(w, status, body)
}

// DecodeAndPrepare decodes the JSON body into T, normalizes and validates it.
// On failure the error response is already written and ok is false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Preparable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}
	p := PT(&req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
