package api

import (
	"context"
	"net/http"
	"time"

	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Middleware func(http.Handler) http.Handler

const traceHeader = "X-Request-Id"

// TraceID reuses the caller's request id when present and echoes it back.
func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid := r.Header.Get(traceHeader)
			if tid == "" || len(tid) > 64 {
				tid = uuid.NewString()
			}
			w.Header().Set(traceHeader, tid)
			ctx := logging.WithTraceID(r.Context(), tid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLog(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))

			l := logging.With(r.Context(), logger)
			ev := l.Info()
			if ww.status >= http.StatusInternalServerError {
				ev = l.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("http_request")
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func Recover(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l := logging.With(r.Context(), logger)
					l.Error().Interface("panic", rec).Msg("panic recovered")
					writeErrorBody(w, http.StatusInternalServerError, "internal", "internal error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
