package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/models"
	"github.com/callforge/callforge/internal/event"
	"github.com/callforge/callforge/internal/session"
	"github.com/callforge/callforge/internal/timing"
)

// fakeCallLogs implements database.CallLogRepository in memory.
type fakeCallLogs struct {
	mu   sync.Mutex
	logs map[string]*models.CallLog
}

func newFakeCallLogs() *fakeCallLogs {
	return &fakeCallLogs{logs: make(map[string]*models.CallLog)}
}

func (f *fakeCallLogs) Upsert(ctx context.Context, log *models.CallLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[log.CallControlID] = log
	return nil
}

func (f *fakeCallLogs) AttachRecording(ctx context.Context, callControlID, url string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[callControlID]
	if !ok {
		return 0, nil
	}
	log.RecordingURL = url
	return 1, nil
}

func (f *fakeCallLogs) GetByCallControlID(ctx context.Context, callControlID string) (*models.CallLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[callControlID], nil
}

func (f *fakeCallLogs) List(ctx context.Context, filter database.CallLogFilter) ([]models.CallLog, int, error) {
	return nil, 0, nil
}

func (f *fakeCallLogs) CountByDirection(ctx context.Context) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeCallLogs) get(callControlID string) *models.CallLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[callControlID]
}

// fakeReconciler records submitted artifacts.
type fakeReconciler struct {
	mu        sync.Mutex
	submitted []string
}

func (f *fakeReconciler) Submit(ctx context.Context, callControlID, recordingID, recordingURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, recordingURL)
}

// fakeAutomation records machine-detection handoffs.
type fakeAutomation struct {
	mu       sync.Mutex
	handoffs []*session.CallSession
}

func (f *fakeAutomation) HandleMachineDetected(ctx context.Context, sess *session.CallSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handoffs = append(f.handoffs, sess)
}

// fakeControl records recording starts.
type fakeControl struct {
	mu     sync.Mutex
	starts []string
	err    error
}

func (f *fakeControl) StartRecording(ctx context.Context, callControlID, channels string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, callControlID)
	return f.err
}

type testHarness struct {
	dispatcher *Dispatcher
	registry   *session.Registry
	clock      *timing.FakeClock
	callLogs   *fakeCallLogs
	reconciler *fakeReconciler
	automation *fakeAutomation
	control    *fakeControl
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := timing.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry := session.NewRegistry(session.NewMemoryStore(), clock, logger)
	callLogs := newFakeCallLogs()
	reconciler := &fakeReconciler{}
	automation := &fakeAutomation{}
	control := &fakeControl{}
	return &testHarness{
		dispatcher: NewDispatcher(registry, reconciler, automation, control, callLogs, logger),
		registry:   registry,
		clock:      clock,
		callLogs:   callLogs,
		reconciler: reconciler,
		automation: automation,
		control:    control,
	}
}

func (h *testHarness) session(t *testing.T, id string) *session.CallSession {
	t.Helper()
	s, err := h.registry.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error: %v", id, err)
	}
	return s
}

func at(h, m, s int) time.Time {
	return time.Date(2026, 3, 1, h, m, s, 0, time.UTC)
}

func TestIdempotentAnsweredMerge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := event.Event{Type: event.TypeAnswered, CallControlID: "cc-1", OccurredAt: at(12, 0, 5)}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("first Dispatch() error: %v", err)
	}
	// Duplicate delivery with a later receipt timestamp.
	ev.OccurredAt = at(12, 0, 9)
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("second Dispatch() error: %v", err)
	}

	sess := h.session(t, "cc-1")
	if sess.AnsweredAt == nil || !sess.AnsweredAt.Equal(at(12, 0, 5)) {
		t.Errorf("AnsweredAt = %v, want first delivery's timestamp", sess.AnsweredAt)
	}
}

func TestOrderIndependenceHangupBeforeAnswered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hangup := event.Event{
		Type:          event.TypeHangup,
		CallControlID: "cc-1",
		OccurredAt:    at(12, 1, 0),
		HangupCause:   "normal_clearing",
	}
	if err := h.dispatcher.Dispatch(ctx, hangup); err != nil {
		t.Fatalf("Dispatch(hangup) error: %v", err)
	}

	answered := event.Event{Type: event.TypeAnswered, CallControlID: "cc-1", OccurredAt: at(12, 0, 30)}
	if err := h.dispatcher.Dispatch(ctx, answered); err != nil {
		t.Fatalf("Dispatch(late answered) error: %v", err)
	}

	sess := h.session(t, "cc-1")
	if sess.Status != session.StatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}
}

func TestHangupWithoutTimestampsHasZeroDuration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// No initiated event arrived, so the session has no start time, and
	// the hangup itself carries none either.
	ev := event.Event{Type: event.TypeHangup, CallControlID: "cc-1", HangupCause: "whatever_new_cause"}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	sess := h.session(t, "cc-1")
	if sess.Duration != 0 {
		t.Errorf("duration = %d, want 0", sess.Duration)
	}
	if sess.EndReason != "unknown" {
		t.Errorf("end reason = %q, want unknown for unmapped cause", sess.EndReason)
	}
}

func TestAnsweredStartsRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := event.Event{Type: event.TypeAnswered, CallControlID: "cc-1", OccurredAt: at(12, 0, 5)}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(h.control.starts) != 1 || h.control.starts[0] != "cc-1" {
		t.Errorf("recording starts = %v, want [cc-1]", h.control.starts)
	}
}

func TestRecordingStartFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.control.err = context.DeadlineExceeded
	ctx := context.Background()

	ev := event.Event{Type: event.TypeAnswered, CallControlID: "cc-1", OccurredAt: at(12, 0, 5)}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch() error: %v, recording failure must not propagate", err)
	}

	sess := h.session(t, "cc-1")
	if sess.Status != session.StatusAnswered {
		t.Errorf("status = %s, want answered", sess.Status)
	}
}

func TestRecordingSavedHandsOffToReconciler(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := event.Event{
		Type:          event.TypeRecordingSaved,
		CallControlID: "cc-1",
		RecordingURL:  "https://rec.example.com/1.wav",
	}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if len(h.reconciler.submitted) != 1 {
		t.Fatalf("submitted = %d artifacts, want 1", len(h.reconciler.submitted))
	}
	sess := h.session(t, "cc-1")
	if sess.RecordingURL != "https://rec.example.com/1.wav" {
		t.Errorf("session recording url = %q", sess.RecordingURL)
	}
}

func TestMachineDetectionHandoff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		result      string
		wantHandoff bool
	}{
		{"human", false},
		{"not_sure", false},
		{"machine", true},
		{"machine_end_beep", true},
	}
	for i, tt := range tests {
		before := len(h.automation.handoffs)
		ev := event.Event{
			Type:          event.TypeMachineDetectionEnded,
			CallControlID: "cc-amd",
			Result:        tt.result,
		}
		if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
			t.Fatalf("Dispatch(%s) error: %v", tt.result, err)
		}
		got := len(h.automation.handoffs) > before
		if got != tt.wantHandoff {
			t.Errorf("case %d (%s): handoff = %v, want %v", i, tt.result, got, tt.wantHandoff)
		}
	}

	sess := h.session(t, "cc-amd")
	if sess.AnsweredBy != "machine_end_beep" {
		t.Errorf("answered_by = %q, want last result", sess.AnsweredBy)
	}
}

func TestUnknownEventTypeIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := event.Event{Type: event.TypeUnknown, RawType: "call.fork.started", CallControlID: "cc-1"}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	// Unknown events must not create sessions.
	if sess := h.session(t, "cc-1"); sess != nil {
		t.Errorf("session created for unknown event: %+v", sess)
	}
}

func TestInboundEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	start := at(12, 0, 0)
	end := start.Add(42 * time.Second)

	events := []event.Event{
		{Type: event.TypeInitiated, CallControlID: "CC1", OccurredAt: start,
			Direction: session.DirectionInbound, From: "+15551234567", To: "+15559990000"},
		{Type: event.TypeAnswered, CallControlID: "CC1", OccurredAt: start.Add(4 * time.Second)},
		{Type: event.TypeBridged, CallControlID: "CC1", OccurredAt: start.Add(5 * time.Second)},
		{Type: event.TypeMachineDetectionEnded, CallControlID: "CC1", Result: "machine_end_beep"},
		{Type: event.TypeRecordingSaved, CallControlID: "CC1",
			RecordingURL: "https://rec.example.com/cc1.wav"},
		{Type: event.TypeHangup, CallControlID: "CC1", OccurredAt: end,
			HangupCause: "normal_clearing", StartTime: start, EndTime: end},
	}
	for _, ev := range events {
		if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
			t.Fatalf("Dispatch(%s) error: %v", ev.Type, err)
		}
	}

	// After the queue promotion, answer, and bridge, the hangup wins.
	sess := h.session(t, "CC1")
	if sess.Status != session.StatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}

	log := h.callLogs.get("CC1")
	if log == nil {
		t.Fatal("no durable call log written for inbound hangup")
	}
	if log.Direction != session.DirectionInbound {
		t.Errorf("direction = %q, want inbound", log.Direction)
	}
	if log.Outcome != models.OutcomeConnected {
		t.Errorf("outcome = %q, want Connected", log.Outcome)
	}
	if log.EndReason != "customer_hangup" {
		t.Errorf("end reason = %q, want customer_hangup", log.EndReason)
	}
	if log.Duration != 42 {
		t.Errorf("duration = %d, want 42", log.Duration)
	}
	if log.ContactName != "Inbound Caller (+15551234567)" {
		t.Errorf("contact name = %q", log.ContactName)
	}
	if log.PhoneNumber != "+15551234567" || log.FromNumber != "+15551234567" {
		t.Errorf("numbers = %q/%q, want the caller's number for both", log.PhoneNumber, log.FromNumber)
	}
	if log.AnsweredBy != "machine_end_beep" {
		t.Errorf("answered_by = %q", log.AnsweredBy)
	}

	// The machine detection handed off to automation once.
	if len(h.automation.handoffs) != 1 {
		t.Errorf("automation handoffs = %d, want 1", len(h.automation.handoffs))
	}
	// And the recording artifact reached the reconciler.
	if len(h.reconciler.submitted) != 1 {
		t.Errorf("reconciler submissions = %d, want 1", len(h.reconciler.submitted))
	}

	// The session is evicted five minutes after completion.
	h.clock.Advance(session.CompletedRetention)
	if sess := h.session(t, "CC1"); sess != nil {
		t.Errorf("session still present after retention window: %+v", sess)
	}
}

func TestInboundNoAnswerOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	start := at(12, 0, 0)
	events := []event.Event{
		{Type: event.TypeInitiated, CallControlID: "cc-na", OccurredAt: start,
			Direction: session.DirectionInbound, From: "+15557654321"},
		{Type: event.TypeHangup, CallControlID: "cc-na", OccurredAt: start.Add(30 * time.Second),
			HangupCause: "originator_cancel"},
	}
	for _, ev := range events {
		if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
			t.Fatalf("Dispatch(%s) error: %v", ev.Type, err)
		}
	}

	log := h.callLogs.get("cc-na")
	if log == nil {
		t.Fatal("no durable call log written")
	}
	if log.Outcome != models.OutcomeNoAnswer {
		t.Errorf("outcome = %q, want No Answer", log.Outcome)
	}
	if log.EndReason != "caller_cancelled" {
		t.Errorf("end reason = %q, want caller_cancelled", log.EndReason)
	}
}

func TestInboundInitiatedEntersAgentQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := event.Event{Type: event.TypeInitiated, CallControlID: "cc-q",
		Direction: session.DirectionInbound, From: "+15550001111", OccurredAt: at(12, 0, 0)}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	sess := h.session(t, "cc-q")
	if sess.Status != session.StatusWaitingForAgent {
		t.Errorf("status = %s, want waiting_for_agent", sess.Status)
	}
}
