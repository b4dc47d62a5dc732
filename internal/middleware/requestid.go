package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"clinic-portal/internal/backend"
)

// RequestID reuses an incoming X-Request-ID or mints one, echoes it on the
// response and hands it to the backend client through the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(backend.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(backend.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(backend.WithRequestID(r.Context(), id)))
	})
}

func RequestIDFrom(ctx context.Context) string {
	return backend.RequestID(ctx)
}
