package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// pagination bounds for list endpoints.
const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// pagination holds validated limit/offset query parameters.
type pagination struct {
	Limit  int
	Offset int
}

// parsePagination extracts limit and offset from the query string. The
// returned string is non-empty when a parameter is invalid.
func parsePagination(r *http.Request) (pagination, string) {
	pg := pagination{Limit: defaultPageLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return pg, "limit must be a positive integer"
		}
		if v > maxPageLimit {
			v = maxPageLimit
		}
		pg.Limit = v
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return pg, "offset must be a non-negative integer"
		}
		pg.Offset = v
	}

	return pg, ""
}

// PaginatedResponse wraps a page of results with the total row count.
type PaginatedResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
