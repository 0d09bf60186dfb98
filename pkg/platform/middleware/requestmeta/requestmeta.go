// Package requestmeta populates requestcontext from incoming HTTP requests.
// All operations within a single request share one "now", one request ID and
// one acting user, so audit entries and clearance timestamps line up.
package requestmeta

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"transferdesk/pkg/requestcontext"
)

const (
	HeaderActingUser = "X-User-ID"
	HeaderRequestID  = "X-Request-ID"
)

// Middleware captures the request time, request ID and acting user.
// A missing request ID is generated and echoed back in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())

		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		w.Header().Set(HeaderRequestID, requestID)

		if user := strings.TrimSpace(r.Header.Get(HeaderActingUser)); user != "" {
			ctx = requestcontext.WithActingUser(ctx, user)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
