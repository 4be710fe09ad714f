package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/tomyedwab/d1lite/auth"
)

type contextKey string

// TraceIDKey holds the per-request trace id set by LogRequests.
const TraceIDKey contextKey = "traceID"

// TraceID returns the trace id of the request, or "" outside LogRequests.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// BearerRequired only calls next when the Authorization header matches the
// gate. Otherwise reject writes the response and next is never reached.
func BearerRequired(gate *auth.Gate, reject http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !gate.Authorize(r.Header.Get("Authorization")) {
				slog.Info("rejected request with invalid authorization",
					"traceID", TraceID(r.Context()),
					"path", r.URL.Path,
				)
				reject(w, r)
				return
			}
			next(w, r)
		}
	}
}

func LogRequests(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := uuid.NewString()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), TraceIDKey, traceID)))

		slog.Info("request",
			"traceID", traceID,
			"remoteAddr", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"proto", r.Proto,
			"status", rec.status,
			"duration", time.Since(start),
		)
	}
}

// SecureHeaders sets the default hardening headers on every response.
func SecureHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self';base-uri 'self';frame-ancestors 'self';object-src 'none'")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		h.Set("X-XSS-Protection", "0")
		next(w, r)
	}
}

// EnableCrossOrigin allows browser clients from any origin. When disabled it
// is a pass-through.
func EnableCrossOrigin(enabled bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if !enabled {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				// Preflight requests never reach the handler
				return
			}
			next(w, r)
		}
	}
}

// Compress gzips responses for clients that accept it.
func Compress(enabled bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if !enabled {
			return next
		}
		return gzhttp.GzipHandler(next)
	}
}

// Combine multiple middleware functions. The last one listed runs first.
func Chain(h http.HandlerFunc, middleware ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}
