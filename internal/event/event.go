// Package event parses raw provider webhook bodies into typed call-control
// events. Both the primary and failover ingress feed the same normalizer,
// so parsing rules live here and nowhere else.
package event

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned when a webhook body lacks a recognizable event
// envelope. Callers must still acknowledge receipt to the provider;
// retrying a permanently malformed delivery only amplifies traffic.
var ErrMalformed = errors.New("malformed webhook event")

// Type identifies a call-control event. The set is closed; deliveries with
// an unlisted event_type normalize to TypeUnknown and are handled by the
// dispatcher's explicit unhandled arm.
type Type string

const (
	TypeInitiated             Type = "call.initiated"
	TypeAnswered              Type = "call.answered"
	TypeBridged               Type = "call.bridged"
	TypeHangup                Type = "call.hangup"
	TypeRecordingSaved        Type = "call.recording.saved"
	TypeMachineDetectionEnded Type = "call.machine.detection.ended"
	TypeDTMFReceived          Type = "call.dtmf.received"
	TypeUnknown               Type = "unknown"
)

// ParseType maps a provider event_type string onto the closed Type set.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeInitiated, TypeAnswered, TypeBridged, TypeHangup,
		TypeRecordingSaved, TypeMachineDetectionEnded, TypeDTMFReceived:
		return Type(s)
	default:
		return TypeUnknown
	}
}

// Event is a normalized call-control event. Fields beyond Type and
// CallControlID are populated only when the originating payload carries
// them; zero values mean "not present in this delivery".
type Event struct {
	Type          Type
	RawType       string // provider event_type verbatim, kept for logging
	CallControlID string
	OccurredAt    time.Time

	Direction string // "inbound" or "outbound"
	From      string
	To        string

	// Hangup fields.
	HangupCause string
	StartTime   time.Time
	EndTime     time.Time

	// Recording fields.
	RecordingID  string
	RecordingURL string

	// Answering machine detection result: "human", "machine",
	// "machine_end_beep", "not_sure".
	Result string

	// DTMF digit.
	Digit string

	// UserID is the owning user carried through the provider's opaque
	// client_state, when the originating command attached one.
	UserID string
}

// envelope matches the provider webhook body shape:
// { "data": { "event_type": "...", "occurred_at": "...", "payload": {...} } }.
type envelope struct {
	Data struct {
		EventType  string          `json:"event_type"`
		OccurredAt string          `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	} `json:"data"`
}

// payload is the superset of payload fields across all event types.
type payload struct {
	CallControlID string `json:"call_control_id"`
	Direction     string `json:"direction"`
	From          string `json:"from"`
	To            string `json:"to"`
	HangupCause   string `json:"hangup_cause"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	RecordingID   string `json:"recording_id"`
	RecordingURLs struct {
		WAV string `json:"wav"`
		MP3 string `json:"mp3"`
	} `json:"recording_urls"`
	PublicRecordingURLs struct {
		WAV string `json:"wav"`
		MP3 string `json:"mp3"`
	} `json:"public_recording_urls"`
	Result      string `json:"result"`
	Digit       string `json:"digit"`
	ClientState string `json:"client_state"`
}

// Normalize validates a raw webhook body and extracts a typed Event.
// It fails with ErrMalformed when the envelope, event_type, or
// call_control_id is missing. Unrecognized event types are NOT an error:
// they normalize to TypeUnknown so the pipeline stays forward-compatible
// with provider schema additions.
func Normalize(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Data.EventType == "" {
		return Event{}, fmt.Errorf("%w: missing data.event_type", ErrMalformed)
	}
	if len(env.Data.Payload) == 0 {
		return Event{}, fmt.Errorf("%w: missing data.payload", ErrMalformed)
	}

	var p payload
	if err := json.Unmarshal(env.Data.Payload, &p); err != nil {
		return Event{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if p.CallControlID == "" {
		return Event{}, fmt.Errorf("%w: missing payload.call_control_id", ErrMalformed)
	}

	ev := Event{
		Type:          ParseType(env.Data.EventType),
		RawType:       env.Data.EventType,
		CallControlID: p.CallControlID,
		OccurredAt:    parseTime(env.Data.OccurredAt),
		Direction:     normalizeDirection(p.Direction),
		From:          p.From,
		To:            p.To,
		HangupCause:   p.HangupCause,
		StartTime:     parseTime(p.StartTime),
		EndTime:       parseTime(p.EndTime),
		RecordingID:   p.RecordingID,
		RecordingURL:  pickRecordingURL(p),
		Result:        p.Result,
		Digit:         p.Digit,
		UserID:        decodeClientState(p.ClientState),
	}
	return ev, nil
}

// clientState is the JSON this service base64-encodes into the provider's
// opaque client_state when placing calls. Other callers may encode
// anything, so decoding failures yield an empty user id, not an error.
type clientState struct {
	UserID string `json:"user_id"`
}

func decodeClientState(s string) string {
	if s == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	var cs clientState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return ""
	}
	return cs.UserID
}

// normalizeDirection maps the provider's leg direction onto the internal
// vocabulary. Unknown values pass through unchanged.
func normalizeDirection(d string) string {
	switch d {
	case "incoming":
		return "inbound"
	case "outgoing":
		return "outbound"
	default:
		return d
	}
}

// pickRecordingURL prefers the public WAV URL, then falls through the
// remaining variants the provider may include.
func pickRecordingURL(p payload) string {
	for _, u := range []string{
		p.PublicRecordingURLs.WAV,
		p.PublicRecordingURLs.MP3,
		p.RecordingURLs.WAV,
		p.RecordingURLs.MP3,
	} {
		if u != "" {
			return u
		}
	}
	return ""
}

// parseTime parses an RFC 3339 timestamp, returning the zero time when the
// field is absent or unparseable. Handlers treat zero as "not supplied".
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
