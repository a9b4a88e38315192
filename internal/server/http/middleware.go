package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/observability"
)

type contextKey string

const ctxKeyProjectID contextKey = "project_id"

// projectContextMiddleware parses the projectID URL param into the request
// context. Requests with a malformed project id never reach a handler.
func projectContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "project_id must be a valid UUID")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyProjectID, projectID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// correlationIDMiddleware propagates the caller's X-Correlation-ID, falling
// back to the chi request id, and echoes it on the response so callers can
// tie log lines to their requests. The id travels down through
// observability.WithRequestID so the coordinator can stamp it too.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = middleware.GetReqID(r.Context())
		}
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := observability.WithRequestID(r.Context(), correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func projectIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(ctxKeyProjectID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
