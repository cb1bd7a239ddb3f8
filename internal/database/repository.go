package database

import (
	"context"

	"github.com/callforge/callforge/internal/database/models"
)

// CallLogFilter specifies filtering and pagination for call-log list queries.
type CallLogFilter struct {
	Limit     int
	Offset    int
	Search    string // matches contact_name, phone_number, or from_number
	Direction string // "inbound", "outbound", or "" for all
	Outcome   string // "Connected", "No Answer", or "" for all
	UserID    string
}

// CallLogRepository manages durable call records. Upsert is keyed by
// call_control_id so a replayed webhook delivery updates in place.
// AttachRecording returns the affected-row count; zero signals the call
// log has not been persisted yet, which is the reconciliation trigger.
type CallLogRepository interface {
	Upsert(ctx context.Context, log *models.CallLog) error
	AttachRecording(ctx context.Context, callControlID, recordingURL string) (int64, error)
	GetByCallControlID(ctx context.Context, callControlID string) (*models.CallLog, error)
	List(ctx context.Context, filter CallLogFilter) ([]models.CallLog, int, error)
	CountByDirection(ctx context.Context) (map[string]int64, error)
}

// AutomationSettingsRepository reads per-user automation configuration.
type AutomationSettingsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.AutomationSettings, error)
}

// VoicemailRepository manages pre-recorded voicemail assets.
type VoicemailRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Voicemail, error)
	IncrementUsage(ctx context.Context, id int64) error
}

// VoicemailDropRepository records automated voicemail deliveries.
type VoicemailDropRepository interface {
	Create(ctx context.Context, drop *models.VoicemailDrop) error
	LinkSMS(ctx context.Context, dropID, smsLogID int64) error
	Count(ctx context.Context) (int64, error)
}

// SMSTemplateRepository reads SMS follow-up templates.
type SMSTemplateRepository interface {
	GetByID(ctx context.Context, id int64) (*models.SMSTemplate, error)
}

// SMSLogRepository records outbound SMS sends.
type SMSLogRepository interface {
	Create(ctx context.Context, log *models.SMSLog) error
}

// ScheduledCallbackRepository records future dial-backs.
type ScheduledCallbackRepository interface {
	Create(ctx context.Context, cb *models.ScheduledCallback) error
}

// ProspectRepository resolves contacts by phone number for template
// variables and callback identity.
type ProspectRepository interface {
	GetByPhone(ctx context.Context, userID, phone string) (*models.Prospect, error)
}
