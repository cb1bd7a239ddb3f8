// Package session maintains the ephemeral, authoritative view of every
// in-flight call, keyed by the provider-assigned call-control identifier.
// The registry is built from out-of-order webhook deliveries: every
// mutation is a read-merge-write of the full record, atomic per key.
package session

import "time"

// CompletedRetention is how long a session stays in the registry after
// reaching StatusCompleted before it is evicted.
const CompletedRetention = 5 * time.Minute

// Status is the lifecycle state of a call session.
type Status string

const (
	StatusInitiated       Status = "initiated"
	StatusRinging         Status = "ringing"
	StatusWaitingForAgent Status = "waiting_for_agent"
	StatusAnswered        Status = "answered"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
)

// Terminal reports whether the status is an end state. Late events for a
// completed call may still merge fields but never regress the status.
func (s Status) Terminal() bool { return s == StatusCompleted }

// Direction values for a call leg.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// CallSession is the per-call state derived purely from webhook events.
// Each event contributes the fields it owns and never resets fields owned
// by other events, so two deliveries for the same call can merge in either
// order.
type CallSession struct {
	CallControlID string     `json:"call_control_id"`
	Direction     string     `json:"direction,omitempty"`
	From          string     `json:"from,omitempty"`
	To            string     `json:"to,omitempty"`
	Status        Status     `json:"status,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	StartTime     time.Time  `json:"start_time,omitzero"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
	BridgedAt     *time.Time `json:"bridged_at,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	HangupCause   string     `json:"hangup_cause,omitempty"`
	EndReason     string     `json:"end_reason,omitempty"`
	Duration      int        `json:"duration_seconds,omitempty"`

	// AnsweredBy holds the answering-machine detection result ("human",
	// "machine", "machine_end_beep", "not_sure") or an agent user id.
	AnsweredBy string `json:"answered_by,omitempty"`

	// RecordingURL is attached for observability when the recording-saved
	// event arrives; the durable copy lives on the call log row.
	RecordingURL string `json:"recording_url,omitempty"`
}

// Clone returns a deep copy so callers outside a mutation cannot alias
// registry-held state.
func (s *CallSession) Clone() *CallSession {
	if s == nil {
		return nil
	}
	c := *s
	c.AnsweredAt = cloneTime(s.AnsweredAt)
	c.BridgedAt = cloneTime(s.BridgedAt)
	c.EndTime = cloneTime(s.EndTime)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
