package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/llamawrapper/sitepanel/internal/probe"
)

// RequestIDHeader is read from clients and echoed on every response.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 64

// RequestID tags each request with an id. A client-supplied id is kept when
// it is short and printable; otherwise a fresh uuid replaces it. The id rides
// the request context into upstream probes, so the llm and rag logs carry it too.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !usableRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(probe.ContextWithRequestID(r.Context(), id)))
	})
}

// GetRequestID returns the id RequestID stored, or "".
func GetRequestID(ctx context.Context) string {
	return probe.RequestIDFromContext(ctx)
}

func usableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}
