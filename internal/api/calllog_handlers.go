package api

import (
	"net/http"
	"time"

	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/models"
)

// callLogView is the JSON shape a call log takes on the wire.
type callLogView struct {
	ID            int64      `json:"id"`
	CallControlID string     `json:"call_control_id"`
	UserID        string     `json:"user_id,omitempty"`
	Direction     string     `json:"direction"`
	PhoneNumber   string     `json:"phone_number"`
	FromNumber    string     `json:"from_number"`
	ContactName   string     `json:"contact_name"`
	Outcome       string     `json:"outcome"`
	EndReason     string     `json:"end_reason"`
	Duration      int        `json:"duration_seconds"`
	AnsweredBy    string     `json:"answered_by,omitempty"`
	RecordingURL  string     `json:"recording_url,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toCallLogView(l models.CallLog) callLogView {
	return callLogView{
		ID:            l.ID,
		CallControlID: l.CallControlID,
		UserID:        l.UserID,
		Direction:     l.Direction,
		PhoneNumber:   l.PhoneNumber,
		FromNumber:    l.FromNumber,
		ContactName:   l.ContactName,
		Outcome:       l.Outcome,
		EndReason:     l.EndReason,
		Duration:      l.Duration,
		AnsweredBy:    l.AnsweredBy,
		RecordingURL:  l.RecordingURL,
		StartTime:     l.StartTime,
		EndTime:       l.EndTime,
		CreatedAt:     l.CreatedAt,
	}
}

// handleListCallLogs returns a filtered, paginated page of call logs.
func (s *Server) handleListCallLogs(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	q := r.URL.Query()
	filter := database.CallLogFilter{
		Limit:     pg.Limit,
		Offset:    pg.Offset,
		Search:    q.Get("search"),
		Direction: q.Get("direction"),
		Outcome:   q.Get("outcome"),
		UserID:    q.Get("user_id"),
	}

	logs, total, err := s.callLogs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing call logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list call logs")
		return
	}

	views := make([]callLogView, 0, len(logs))
	for _, l := range logs {
		views = append(views, toCallLogView(l))
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  views,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleListSessions returns every live session in the registry.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
