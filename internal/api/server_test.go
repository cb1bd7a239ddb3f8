package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/callforge/callforge/internal/config"
	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/models"
	"github.com/callforge/callforge/internal/engine"
	"github.com/callforge/callforge/internal/session"
	"github.com/callforge/callforge/internal/timing"
)

// stubCallLogs is a minimal in-memory CallLogRepository.
type stubCallLogs struct {
	logs        []models.CallLog
	panicUpsert bool
}

func (s *stubCallLogs) Upsert(ctx context.Context, log *models.CallLog) error {
	if s.panicUpsert {
		panic("durable store unavailable")
	}
	s.logs = append(s.logs, *log)
	return nil
}

func (s *stubCallLogs) AttachRecording(ctx context.Context, callControlID, url string) (int64, error) {
	return 1, nil
}

func (s *stubCallLogs) GetByCallControlID(ctx context.Context, callControlID string) (*models.CallLog, error) {
	return nil, nil
}

func (s *stubCallLogs) List(ctx context.Context, filter database.CallLogFilter) ([]models.CallLog, int, error) {
	return s.logs, len(s.logs), nil
}

func (s *stubCallLogs) CountByDirection(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

// stubReconciler satisfies both the dispatcher handoff and the health
// endpoint's pending count.
type stubReconciler struct {
	submitted int
}

func (s *stubReconciler) Submit(ctx context.Context, callControlID, recordingID, recordingURL string) {
	s.submitted++
}

func (s *stubReconciler) Pending() int { return s.submitted }

type stubAutomation struct{}

func (stubAutomation) HandleMachineDetected(ctx context.Context, sess *session.CallSession) {}

type stubControl struct{}

func (stubControl) StartRecording(ctx context.Context, callControlID, channels string) error {
	return nil
}

type apiHarness struct {
	server     *Server
	registry   *session.Registry
	callLogs   *stubCallLogs
	reconciler *stubReconciler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := timing.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry := session.NewRegistry(session.NewMemoryStore(), clock, logger)
	callLogs := &stubCallLogs{}
	reconciler := &stubReconciler{}
	dispatcher := engine.NewDispatcher(registry, reconciler, stubAutomation{}, stubControl{}, callLogs, logger)
	cfg := &config.Config{TelnyxAPIKey: "key", TelnyxAPIURL: "https://api.telnyx.com"}

	return &apiHarness{
		server:     NewServer(cfg, dispatcher, registry, reconciler, callLogs, nil, logger),
		registry:   registry,
		callLogs:   callLogs,
		reconciler: reconciler,
	}
}

func webhookBody(eventType, callControlID string, extra map[string]any) string {
	payload := map[string]any{"call_control_id": callControlID}
	for k, v := range extra {
		payload[k] = v
	}
	b, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"event_type":  eventType,
			"occurred_at": "2026-03-01T12:00:05Z",
			"payload":     payload,
		},
	})
	return string(b)
}

func TestWebhookAlwaysAcks(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name string
		body string
	}{
		{"valid initiated", webhookBody("call.initiated", "cc-1", map[string]any{"direction": "incoming", "from": "+15551234567"})},
		{"unknown event type", webhookBody("call.fork.started", "cc-2", nil)},
		{"malformed json", `{"data": `},
		{"empty envelope", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.server.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			var ack map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
				t.Fatalf("decoding ack: %v", err)
			}
			if ack["received"] != true {
				t.Errorf("received = %v, want true", ack["received"])
			}
			if _, ok := ack["failover"]; ok {
				t.Error("primary ack must not carry the failover flag")
			}
		})
	}
}

func TestWebhookCreatesSession(t *testing.T) {
	h := newAPIHarness(t)

	body := webhookBody("call.initiated", "cc-sess", map[string]any{"direction": "incoming", "from": "+15551234567", "to": "+15550000001"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	sess, err := h.registry.Get(context.Background(), "cc-sess")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if sess == nil {
		t.Fatal("session not created from webhook")
	}
	if sess.Status != session.StatusWaitingForAgent {
		t.Errorf("status = %s, want waiting_for_agent", sess.Status)
	}
}

func TestWebhookPanicStillAcks(t *testing.T) {
	h := newAPIHarness(t)
	h.callLogs.panicUpsert = true

	// A hangup delivery reaches the durable write, which blows up.
	body := webhookBody("call.hangup", "cc-panic", map[string]any{
		"direction":    "incoming",
		"from":         "+15551234567",
		"hangup_cause": "normal_clearing",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite handler panic", rr.Code)
	}
	var ack map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if ack["received"] != true {
		t.Errorf("received = %v, want true", ack["received"])
	}

	// The failover route keeps its flag in the panic path too.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/failover", strings.NewReader(body))
	rr = httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decoding failover ack: %v", err)
	}
	if ack["received"] != true || ack["failover"] != true {
		t.Errorf("ack = %v, want received and failover true", ack)
	}
}

func TestFailoverAckCarriesFlag(t *testing.T) {
	h := newAPIHarness(t)

	body := webhookBody("call.initiated", "cc-fo", map[string]any{"direction": "incoming", "from": "+15551234567"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/failover", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var ack map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if ack["received"] != true || ack["failover"] != true {
		t.Errorf("ack = %v, want received and failover true", ack)
	}

	// Re-delivering the same event through the failover route is safe.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/failover", strings.NewReader(body))
	h.server.ServeHTTP(httptest.NewRecorder(), req)

	sessions, err := h.registry.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("sessions = %d, want 1 after duplicate delivery", len(sessions))
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	// Seed one live session and one pending artifact.
	body := webhookBody("call.initiated", "cc-h", map[string]any{"direction": "incoming", "from": "+15551234567"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(body))
	h.server.ServeHTTP(httptest.NewRecorder(), req)
	h.reconciler.submitted = 2

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if resp.Data["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp.Data["status"])
	}
	if resp.Data["live_sessions"] != float64(1) {
		t.Errorf("live_sessions = %v, want 1", resp.Data["live_sessions"])
	}
	if resp.Data["pending_artifacts"] != float64(2) {
		t.Errorf("pending_artifacts = %v, want 2", resp.Data["pending_artifacts"])
	}
	if resp.Data["provider_configured"] != true {
		t.Errorf("provider_configured = %v, want true", resp.Data["provider_configured"])
	}
}

func TestListCallLogs(t *testing.T) {
	h := newAPIHarness(t)
	h.callLogs.logs = []models.CallLog{
		{ID: 1, CallControlID: "cc-1", Direction: "inbound", Outcome: models.OutcomeConnected},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/call-logs?limit=10", nil)
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Data PaginatedResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if resp.Data.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Data.Total)
	}
}

func TestListCallLogsBadPagination(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/call-logs?limit=abc", nil)
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestListSessions(t *testing.T) {
	h := newAPIHarness(t)

	body := webhookBody("call.initiated", "cc-list", map[string]any{"direction": "outgoing", "from": "+15559998888", "to": "+15550001234"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(body))
	h.server.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Data struct {
			Count    int                   `json:"count"`
			Sessions []session.CallSession `json:"sessions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding sessions: %v", err)
	}
	if resp.Data.Count != 1 || len(resp.Data.Sessions) != 1 {
		t.Fatalf("count = %d, sessions = %d, want 1/1", resp.Data.Count, len(resp.Data.Sessions))
	}
	if resp.Data.Sessions[0].CallControlID != "cc-list" {
		t.Errorf("session id = %q", resp.Data.Sessions[0].CallControlID)
	}
}
