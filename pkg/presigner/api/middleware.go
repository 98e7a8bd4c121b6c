package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

// RequestIDMiddleware reuses the caller's X-Request-ID or assigns a uuid.
// The ID is echoed in the response and stored under chi's request ID key,
// so middleware.GetReqID and RequestIDFromContext both see it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request ID, or an empty string
func RequestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// CORSMiddleware allows any origin to read every response
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware turns a handler panic into the JSON error shape
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("PANIC while handling request",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, ErrorResponse{
					Error:            "internal server error",
					Status:           StatusError,
					ProcessingTimeMS: elapsedMillis(start),
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
