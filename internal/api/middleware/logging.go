package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type tagsKey struct{}

// Tag attaches a key/value pair to the current request's access-log line.
// The router only sees method and path; webhook handlers use Tag to surface
// what the delivery actually carried (event_type, call_control_id, the
// failover flag) once the body has been parsed.
func Tag(ctx context.Context, key string, value any) {
	if tags, ok := ctx.Value(tagsKey{}).(*[]slog.Attr); ok {
		*tags = append(*tags, slog.Any(key, value))
	}
}

// statusWriter captures the response status code. The first WriteHeader
// wins, matching net/http's superfluous-call behavior.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// RequestLogger returns middleware that writes one access-log line per
// request to logger: request ID (set by chi's RequestID middleware), method,
// path, status, duration, remote address, plus any fields the handler
// attached with Tag.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			tags := make([]slog.Attr, 0, 4)
			ctx := context.WithValue(r.Context(), tagsKey{}, &tags)

			next.ServeHTTP(sw, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("request_id", chimw.GetReqID(ctx)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("remote_addr", r.RemoteAddr),
			}
			attrs = append(attrs, tags...)
			logger.LogAttrs(ctx, slog.LevelInfo, "http request", attrs...)
		})
	}
}
