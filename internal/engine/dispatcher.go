// Package engine maps normalized call-control events onto session
// mutations, durable writes, and downstream handoffs. Handlers are
// written to be correct under duplicate and out-of-order delivery:
// every mutation is a merge that only contributes the fields its event
// owns, and a terminal status is never regressed by a late event.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/models"
	"github.com/callforge/callforge/internal/event"
	"github.com/callforge/callforge/internal/session"
)

// ControlClient is the slice of the provider client the dispatcher
// issues commands through.
type ControlClient interface {
	StartRecording(ctx context.Context, callControlID, channels string) error
}

// Reconciler receives recording artifacts for durable attachment.
type Reconciler interface {
	Submit(ctx context.Context, callControlID, recordingID, recordingURL string)
}

// MachineHandler receives sessions answered by a machine.
type MachineHandler interface {
	HandleMachineDetected(ctx context.Context, sess *session.CallSession)
}

// statusRank orders lifecycle states so a late earlier-stage event never
// regresses the session. Terminal completed outranks everything.
var statusRank = map[session.Status]int{
	session.StatusInitiated:       1,
	session.StatusRinging:         1,
	session.StatusWaitingForAgent: 2,
	session.StatusAnswered:        3,
	session.StatusInProgress:      4,
	session.StatusCompleted:       5,
}

// advanceStatus moves the session forward; it is a no-op when the session
// already sits at or past the proposed state.
func advanceStatus(s *session.CallSession, next session.Status) {
	if statusRank[next] > statusRank[s.Status] {
		s.Status = next
	}
}

// Dispatcher applies normalized events to the session registry and fans
// out to the reconciler, the automation orchestrator, and the provider.
type Dispatcher struct {
	registry   *session.Registry
	reconciler Reconciler
	automation MachineHandler
	control    ControlClient
	callLogs   database.CallLogRepository
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	registry *session.Registry,
	reconciler Reconciler,
	automation MachineHandler,
	control ControlClient,
	callLogs database.CallLogRepository,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		reconciler: reconciler,
		automation: automation,
		control:    control,
		callLogs:   callLogs,
		logger:     logger,
	}
}

// Dispatch routes one event to its handler. Errors are returned for
// logging only; the ingress acknowledges the delivery regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) error {
	switch ev.Type {
	case event.TypeInitiated:
		return d.handleInitiated(ctx, ev)
	case event.TypeAnswered:
		return d.handleAnswered(ctx, ev)
	case event.TypeBridged:
		return d.handleBridged(ctx, ev)
	case event.TypeHangup:
		return d.handleHangup(ctx, ev)
	case event.TypeRecordingSaved:
		return d.handleRecordingSaved(ctx, ev)
	case event.TypeMachineDetectionEnded:
		return d.handleMachineDetection(ctx, ev)
	case event.TypeDTMFReceived:
		d.logger.Info("dtmf received",
			"call_control_id", ev.CallControlID,
			"digit", ev.Digit,
		)
		return nil
	case event.TypeUnknown:
		// Forward compatibility: drop, never reject.
		d.logger.Info("unhandled event type dropped",
			"event_type", ev.RawType,
			"call_control_id", ev.CallControlID,
		)
		return nil
	default:
		d.logger.Warn("event type missing from dispatch table", "event_type", ev.Type)
		return nil
	}
}

func (d *Dispatcher) handleInitiated(ctx context.Context, ev event.Event) error {
	_, err := d.registry.Mutate(ctx, ev.CallControlID, func(s *session.CallSession) {
		s.Direction = ev.Direction
		s.From = ev.From
		s.To = ev.To
		if ev.UserID != "" {
			s.UserID = ev.UserID
		}
		if s.StartTime.IsZero() {
			s.StartTime = ev.OccurredAt
		}
		// Inbound legs go straight to the answerable queue.
		if ev.Direction == session.DirectionInbound {
			advanceStatus(s, session.StatusWaitingForAgent)
		} else {
			advanceStatus(s, session.StatusInitiated)
		}
	})
	if err != nil {
		return fmt.Errorf("initiated: %w", err)
	}

	d.logger.Info("call initiated",
		"call_control_id", ev.CallControlID,
		"direction", ev.Direction,
		"from", ev.From,
		"to", ev.To,
	)
	return nil
}

func (d *Dispatcher) handleAnswered(ctx context.Context, ev event.Event) error {
	_, err := d.registry.Mutate(ctx, ev.CallControlID, func(s *session.CallSession) {
		advanceStatus(s, session.StatusAnswered)
		if s.AnsweredAt == nil {
			at := ev.OccurredAt
			s.AnsweredAt = &at
		}
		if ev.UserID != "" && s.UserID == "" {
			s.UserID = ev.UserID
		}
	})
	if err != nil {
		return fmt.Errorf("answered: %w", err)
	}

	// Recording is best-effort: a call must never fail because recording
	// could not start.
	if err := d.control.StartRecording(ctx, ev.CallControlID, "dual"); err != nil {
		d.logger.Error("starting recording",
			"call_control_id", ev.CallControlID,
			"error", err,
		)
	}
	return nil
}

func (d *Dispatcher) handleBridged(ctx context.Context, ev event.Event) error {
	_, err := d.registry.Mutate(ctx, ev.CallControlID, func(s *session.CallSession) {
		advanceStatus(s, session.StatusInProgress)
		if s.BridgedAt == nil {
			at := ev.OccurredAt
			s.BridgedAt = &at
		}
	})
	if err != nil {
		return fmt.Errorf("bridged: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleHangup(ctx context.Context, ev event.Event) error {
	sess, err := d.registry.Mutate(ctx, ev.CallControlID, func(s *session.CallSession) {
		s.Status = session.StatusCompleted
		if s.StartTime.IsZero() && !ev.StartTime.IsZero() {
			s.StartTime = ev.StartTime
		}
		if s.EndTime == nil {
			end := ev.EndTime
			if end.IsZero() {
				end = ev.OccurredAt
			}
			if !end.IsZero() {
				s.EndTime = &end
			}
		}
		s.HangupCause = ev.HangupCause
		s.EndReason = endReason(ev.HangupCause)
		if s.Direction == "" {
			s.Direction = ev.Direction
		}
		if s.From == "" {
			s.From = ev.From
		}

		// Duration needs both timestamps; anything less is zero.
		if !s.StartTime.IsZero() && s.EndTime != nil {
			s.Duration = int(s.EndTime.Sub(s.StartTime).Seconds())
			if s.Duration < 0 {
				s.Duration = 0
			}
		} else {
			s.Duration = 0
		}
	})
	if err != nil {
		return fmt.Errorf("hangup: %w", err)
	}

	d.logger.Info("call completed",
		"call_control_id", ev.CallControlID,
		"end_reason", sess.EndReason,
		"duration_seconds", sess.Duration,
	)

	// Inbound calls have no client-side write path, so the engine
	// synthesizes their durable record here.
	if sess.Direction == session.DirectionInbound {
		if err := d.persistInboundLog(ctx, sess); err != nil {
			d.logger.Error("persisting inbound call log",
				"call_control_id", ev.CallControlID,
				"error", err,
			)
		}
	}

	d.registry.ScheduleEviction(ev.CallControlID, session.CompletedRetention)
	return nil
}

// persistInboundLog writes the synthesized call log for an inbound call.
// Outcome is inferred from whether the call was ever answered.
func (d *Dispatcher) persistInboundLog(ctx context.Context, sess *session.CallSession) error {
	outcome := models.OutcomeNoAnswer
	if sess.AnsweredAt != nil {
		outcome = models.OutcomeConnected
	}

	log := &models.CallLog{
		CallControlID: sess.CallControlID,
		UserID:        sess.UserID,
		Direction:     session.DirectionInbound,
		PhoneNumber:   sess.From,
		FromNumber:    sess.From,
		ContactName:   fmt.Sprintf("Inbound Caller (%s)", sess.From),
		Outcome:       outcome,
		EndReason:     sess.EndReason,
		Duration:      sess.Duration,
		AnsweredBy:    sess.AnsweredBy,
		RecordingURL:  sess.RecordingURL,
	}
	if !sess.StartTime.IsZero() {
		st := sess.StartTime
		log.StartTime = &st
	}
	if sess.EndTime != nil {
		et := *sess.EndTime
		log.EndTime = &et
	}
	return d.callLogs.Upsert(ctx, log)
}

func (d *Dispatcher) handleRecordingSaved(ctx context.Context, ev event.Event) error {
	_, err := d.registry.Mutate(ctx, ev.CallControlID, func(s *session.CallSession) {
		if ev.RecordingURL != "" {
			s.RecordingURL = ev.RecordingURL
		}
	})
	if err != nil {
		return fmt.Errorf("recording saved: %w", err)
	}

	if ev.RecordingURL == "" {
		d.logger.Warn("recording saved without a url", "call_control_id", ev.CallControlID)
		return nil
	}

	d.reconciler.Submit(ctx, ev.CallControlID, ev.RecordingID, ev.RecordingURL)
	return nil
}

func (d *Dispatcher) handleMachineDetection(ctx context.Context, ev event.Event) error {
	sess, err := d.registry.Mutate(ctx, ev.CallControlID, func(s *session.CallSession) {
		s.AnsweredBy = ev.Result
		if ev.UserID != "" && s.UserID == "" {
			s.UserID = ev.UserID
		}
	})
	if err != nil {
		return fmt.Errorf("machine detection: %w", err)
	}

	d.logger.Info("machine detection ended",
		"call_control_id", ev.CallControlID,
		"result", ev.Result,
	)

	if ev.Result == "machine" || ev.Result == "machine_end_beep" {
		d.automation.HandleMachineDetected(ctx, sess)
	}
	return nil
}
