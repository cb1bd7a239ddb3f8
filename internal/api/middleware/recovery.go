package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// errorBody is the minimal JSON error shape emitted from middleware.
type errorBody struct {
	Error string `json:"error"`
}

// Recoverer returns middleware that turns a handler panic into a logged
// error response instead of a dropped connection. onPanic, when non-nil,
// writes that response; the webhook routes use it to hold the always-200
// acknowledgement contract even when processing panics, since anything but
// a 200 makes the provider redeliver. A nil onPanic yields a generic 500.
func Recoverer(logger *slog.Logger, onPanic http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					"request_id", chimw.GetReqID(r.Context()),
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				if onPanic != nil {
					onPanic(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(errorBody{Error: "internal server error"}) //nolint:errcheck
			}()

			next.ServeHTTP(w, r)
		})
	}
}
