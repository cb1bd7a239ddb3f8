package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/callforge/callforge/internal/database/models"
)

// automationSettingsRepo implements AutomationSettingsRepository.
type automationSettingsRepo struct {
	db *DB
}

// NewAutomationSettingsRepository creates a new AutomationSettingsRepository.
func NewAutomationSettingsRepository(db *DB) AutomationSettingsRepository {
	return &automationSettingsRepo{db: db}
}

// GetByUserID returns the automation settings for a user, or nil if the
// user has never configured automation.
func (r *automationSettingsRepo) GetByUserID(ctx context.Context, userID string) (*models.AutomationSettings, error) {
	var s models.AutomationSettings
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, auto_voicemail_drop, default_voicemail_id,
		 auto_sms_followup, default_sms_template_id, sms_delay_seconds,
		 auto_callback, callback_delay_hours, updated_at
		 FROM automation_settings WHERE user_id = ?`, userID,
	).Scan(&s.UserID, &s.AutoVoicemailDrop, &s.DefaultVoicemailID,
		&s.AutoSMSFollowup, &s.DefaultSMSTemplateID, &s.SMSDelaySeconds,
		&s.AutoCallback, &s.CallbackDelayHours, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting automation settings: %w", err)
	}
	return &s, nil
}
