package models

import "time"

// Call outcome values inferred at hangup time.
const (
	OutcomeConnected = "Connected"
	OutcomeNoAnswer  = "No Answer"
)

// CallLog is the durable record of one completed (or completing) call.
// Rows are keyed by the provider call-control id so replayed webhook
// deliveries upsert rather than duplicate.
type CallLog struct {
	ID            int64
	CallControlID string
	UserID        string
	Direction     string
	PhoneNumber   string
	FromNumber    string
	ContactName   string
	Outcome       string
	EndReason     string
	Duration      int
	AnsweredBy    string
	RecordingURL  string
	StartTime     *time.Time
	EndTime       *time.Time
	CreatedAt     time.Time
}

// AutomationSettings is the per-user configuration consumed by the
// automation orchestrator. Read-only to this service.
type AutomationSettings struct {
	UserID               string
	AutoVoicemailDrop    bool
	DefaultVoicemailID   *int64
	AutoSMSFollowup      bool
	DefaultSMSTemplateID *int64
	SMSDelaySeconds      int
	AutoCallback         bool
	CallbackDelayHours   int
	UpdatedAt            time.Time
}

// Voicemail is a pre-recorded voicemail audio asset.
type Voicemail struct {
	ID         int64
	UserID     string
	Name       string
	AudioURL   string
	UsageCount int
	CreatedAt  time.Time
}

// VoicemailDrop records one automated voicemail delivery. SMSLogID links
// the follow-up SMS this drop caused, forming the causal chain from
// detection event to side effect.
type VoicemailDrop struct {
	ID            int64
	CallControlID string
	VoicemailID   int64
	UserID        string
	Status        string
	SMSLogID      *int64
	CreatedAt     time.Time
}

// SMSTemplate is a message body with {{placeholder}} variables.
type SMSTemplate struct {
	ID        int64
	UserID    string
	Name      string
	Body      string
	CreatedAt time.Time
}

// SMSLog records one outbound SMS send attempt.
type SMSLog struct {
	ID                int64
	UserID            string
	ToNumber          string
	Body              string
	TemplateID        *int64
	Status            string
	ProviderMessageID string
	CreatedAt         time.Time
}

// ScheduledCallback is a future dial-back created by the orchestrator.
type ScheduledCallback struct {
	ID           int64
	UserID       string
	ProspectID   *int64
	PhoneNumber  string
	ScheduledFor time.Time
	Notes        string
	CreatedAt    time.Time
}

// Prospect is a contact record, read here only to resolve template
// variables and callback identity.
type Prospect struct {
	ID        int64
	UserID    string
	FirstName string
	LastName  string
	Company   string
	Phone     string
	CreatedAt time.Time
}
