package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/models"
)

// callLogRepo implements database.CallLogRepository on PostgreSQL.
type callLogRepo struct {
	db Querier
}

// NewCallLogRepository creates a new CallLogRepository backed by the store.
func NewCallLogRepository(s *Store) database.CallLogRepository {
	return &callLogRepo{db: s.db}
}

// Upsert inserts or replaces the call log keyed by call_control_id.
func (r *callLogRepo) Upsert(ctx context.Context, log *models.CallLog) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO call_logs (call_control_id, user_id, direction, phone_number,
		 from_number, contact_name, outcome, end_reason, duration_seconds,
		 answered_by, recording_url, start_time, end_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (call_control_id) DO UPDATE SET
		 user_id = EXCLUDED.user_id,
		 direction = EXCLUDED.direction,
		 phone_number = EXCLUDED.phone_number,
		 from_number = EXCLUDED.from_number,
		 contact_name = EXCLUDED.contact_name,
		 outcome = EXCLUDED.outcome,
		 end_reason = EXCLUDED.end_reason,
		 duration_seconds = EXCLUDED.duration_seconds,
		 answered_by = EXCLUDED.answered_by,
		 recording_url = CASE WHEN EXCLUDED.recording_url <> ''
			THEN EXCLUDED.recording_url ELSE call_logs.recording_url END,
		 start_time = EXCLUDED.start_time,
		 end_time = EXCLUDED.end_time
		 RETURNING id`,
		log.CallControlID, log.UserID, log.Direction, log.PhoneNumber,
		log.FromNumber, log.ContactName, log.Outcome, log.EndReason,
		log.Duration, log.AnsweredBy, log.RecordingURL, log.StartTime,
		log.EndTime,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("upserting call log: %w", err)
	}
	return nil
}

// AttachRecording sets the recording URL and returns the affected-row
// count. Zero rows means the call log has not been written yet and the
// caller should retry.
func (r *callLogRepo) AttachRecording(ctx context.Context, callControlID, recordingURL string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE call_logs SET recording_url = $1 WHERE call_control_id = $2`,
		recordingURL, callControlID,
	)
	if err != nil {
		return 0, fmt.Errorf("attaching recording: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByCallControlID returns the call log for a call-control id, or nil
// if none exists.
func (r *callLogRepo) GetByCallControlID(ctx context.Context, callControlID string) (*models.CallLog, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT id, call_control_id, user_id, direction, phone_number,
		 from_number, contact_name, outcome, end_reason, duration_seconds,
		 answered_by, recording_url, start_time, end_time, created_at
		 FROM call_logs WHERE call_control_id = $1`, callControlID,
	))
}

// List returns call logs matching the filter, along with the total count.
func (r *callLogRepo) List(ctx context.Context, filter database.CallLogFilter) ([]models.CallLog, int, error) {
	where := "1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		where += " AND user_id = " + arg(filter.UserID)
	}
	if filter.Direction != "" {
		where += " AND direction = " + arg(filter.Direction)
	}
	if filter.Outcome != "" {
		where += " AND outcome = " + arg(filter.Outcome)
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where += fmt.Sprintf(" AND (contact_name ILIKE %s OR phone_number ILIKE %s OR from_number ILIKE %s)", p, p, p)
	}

	// Count total matching rows.
	var total int
	countQuery := "SELECT COUNT(*) FROM call_logs WHERE " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting call logs: %w", err)
	}

	// Fetch the page of results.
	query := `SELECT id, call_control_id, user_id, direction, phone_number,
		 from_number, contact_name, outcome, end_reason, duration_seconds,
		 answered_by, recording_url, start_time, end_time, created_at
		 FROM call_logs WHERE ` + where +
		" ORDER BY start_time DESC LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing call logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CallLog
	for rows.Next() {
		var l models.CallLog
		if err := rows.Scan(&l.ID, &l.CallControlID, &l.UserID, &l.Direction,
			&l.PhoneNumber, &l.FromNumber, &l.ContactName, &l.Outcome,
			&l.EndReason, &l.Duration, &l.AnsweredBy, &l.RecordingURL,
			&l.StartTime, &l.EndTime, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning call log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating call log rows: %w", err)
	}

	return logs, total, nil
}

// CountByDirection returns the number of call logs per direction value.
func (r *callLogRepo) CountByDirection(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT direction, COUNT(*) FROM call_logs GROUP BY direction`)
	if err != nil {
		return nil, fmt.Errorf("counting call logs by direction: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var direction string
		var n int64
		if err := rows.Scan(&direction, &n); err != nil {
			return nil, fmt.Errorf("scanning direction count: %w", err)
		}
		counts[direction] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating direction counts: %w", err)
	}

	return counts, nil
}

func (r *callLogRepo) scanOne(row pgx.Row) (*models.CallLog, error) {
	var l models.CallLog
	err := row.Scan(&l.ID, &l.CallControlID, &l.UserID, &l.Direction,
		&l.PhoneNumber, &l.FromNumber, &l.ContactName, &l.Outcome,
		&l.EndReason, &l.Duration, &l.AnsweredBy, &l.RecordingURL,
		&l.StartTime, &l.EndTime, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call log: %w", err)
	}
	return &l, nil
}

// automationSettingsRepo implements database.AutomationSettingsRepository.
type automationSettingsRepo struct {
	db Querier
}

// NewAutomationSettingsRepository creates a new AutomationSettingsRepository.
func NewAutomationSettingsRepository(s *Store) database.AutomationSettingsRepository {
	return &automationSettingsRepo{db: s.db}
}

// GetByUserID returns the automation settings for a user, or nil if the
// user has never configured automation.
func (r *automationSettingsRepo) GetByUserID(ctx context.Context, userID string) (*models.AutomationSettings, error) {
	var set models.AutomationSettings
	err := r.db.QueryRow(ctx,
		`SELECT user_id, auto_voicemail_drop, default_voicemail_id,
		 auto_sms_followup, default_sms_template_id, sms_delay_seconds,
		 auto_callback, callback_delay_hours, updated_at
		 FROM automation_settings WHERE user_id = $1`, userID,
	).Scan(&set.UserID, &set.AutoVoicemailDrop, &set.DefaultVoicemailID,
		&set.AutoSMSFollowup, &set.DefaultSMSTemplateID, &set.SMSDelaySeconds,
		&set.AutoCallback, &set.CallbackDelayHours, &set.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting automation settings: %w", err)
	}
	return &set, nil
}

// voicemailRepo implements database.VoicemailRepository.
type voicemailRepo struct {
	db Querier
}

// NewVoicemailRepository creates a new VoicemailRepository.
func NewVoicemailRepository(s *Store) database.VoicemailRepository {
	return &voicemailRepo{db: s.db}
}

// GetByID returns the voicemail asset, or nil if none exists.
func (r *voicemailRepo) GetByID(ctx context.Context, id int64) (*models.Voicemail, error) {
	var v models.Voicemail
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, name, audio_url, usage_count, created_at
		 FROM voicemails WHERE id = $1`, id,
	).Scan(&v.ID, &v.UserID, &v.Name, &v.AudioURL, &v.UsageCount, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting voicemail: %w", err)
	}
	return &v, nil
}

// IncrementUsage bumps the usage counter on a voicemail asset.
func (r *voicemailRepo) IncrementUsage(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE voicemails SET usage_count = usage_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("incrementing voicemail usage: %w", err)
	}
	return nil
}

// voicemailDropRepo implements database.VoicemailDropRepository.
type voicemailDropRepo struct {
	db Querier
}

// NewVoicemailDropRepository creates a new VoicemailDropRepository.
func NewVoicemailDropRepository(s *Store) database.VoicemailDropRepository {
	return &voicemailDropRepo{db: s.db}
}

// Create inserts a voicemail drop record.
func (r *voicemailDropRepo) Create(ctx context.Context, drop *models.VoicemailDrop) error {
	if drop.Status == "" {
		drop.Status = "dropped"
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO voicemail_drops (call_control_id, voicemail_id, user_id, status, sms_log_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		drop.CallControlID, drop.VoicemailID, drop.UserID, drop.Status, drop.SMSLogID,
	).Scan(&drop.ID)
	if err != nil {
		return fmt.Errorf("inserting voicemail drop: %w", err)
	}
	return nil
}

// LinkSMS records the follow-up SMS triggered by a voicemail drop.
func (r *voicemailDropRepo) LinkSMS(ctx context.Context, dropID, smsLogID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE voicemail_drops SET sms_log_id = $1 WHERE id = $2`, smsLogID, dropID)
	if err != nil {
		return fmt.Errorf("linking sms to voicemail drop: %w", err)
	}
	return nil
}

// Count returns the total number of voicemail drops recorded.
func (r *voicemailDropRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM voicemail_drops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting voicemail drops: %w", err)
	}
	return n, nil
}

// smsTemplateRepo implements database.SMSTemplateRepository.
type smsTemplateRepo struct {
	db Querier
}

// NewSMSTemplateRepository creates a new SMSTemplateRepository.
func NewSMSTemplateRepository(s *Store) database.SMSTemplateRepository {
	return &smsTemplateRepo{db: s.db}
}

// GetByID returns the SMS template, or nil if none exists.
func (r *smsTemplateRepo) GetByID(ctx context.Context, id int64) (*models.SMSTemplate, error) {
	var t models.SMSTemplate
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, name, body, created_at
		 FROM sms_templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Body, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sms template: %w", err)
	}
	return &t, nil
}

// smsLogRepo implements database.SMSLogRepository.
type smsLogRepo struct {
	db Querier
}

// NewSMSLogRepository creates a new SMSLogRepository.
func NewSMSLogRepository(s *Store) database.SMSLogRepository {
	return &smsLogRepo{db: s.db}
}

// Create inserts an SMS send record.
func (r *smsLogRepo) Create(ctx context.Context, log *models.SMSLog) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO sms_logs (user_id, to_number, body, template_id, status, provider_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		log.UserID, log.ToNumber, log.Body, log.TemplateID, log.Status,
		log.ProviderMessageID,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("inserting sms log: %w", err)
	}
	return nil
}

// scheduledCallbackRepo implements database.ScheduledCallbackRepository.
type scheduledCallbackRepo struct {
	db Querier
}

// NewScheduledCallbackRepository creates a new ScheduledCallbackRepository.
func NewScheduledCallbackRepository(s *Store) database.ScheduledCallbackRepository {
	return &scheduledCallbackRepo{db: s.db}
}

// Create inserts a scheduled callback.
func (r *scheduledCallbackRepo) Create(ctx context.Context, cb *models.ScheduledCallback) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO scheduled_callbacks (user_id, prospect_id, phone_number, scheduled_for, notes)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		cb.UserID, cb.ProspectID, cb.PhoneNumber, cb.ScheduledFor, cb.Notes,
	).Scan(&cb.ID)
	if err != nil {
		return fmt.Errorf("inserting scheduled callback: %w", err)
	}
	return nil
}

// prospectRepo implements database.ProspectRepository.
type prospectRepo struct {
	db Querier
}

// NewProspectRepository creates a new ProspectRepository.
func NewProspectRepository(s *Store) database.ProspectRepository {
	return &prospectRepo{db: s.db}
}

// GetByPhone returns the most recently created prospect matching the
// phone number for a user, or nil.
func (r *prospectRepo) GetByPhone(ctx context.Context, userID, phone string) (*models.Prospect, error) {
	var p models.Prospect
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, first_name, last_name, company, phone, created_at
		 FROM prospects WHERE user_id = $1 AND phone = $2
		 ORDER BY created_at DESC LIMIT 1`, userID, phone,
	).Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Company,
		&p.Phone, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting prospect: %w", err)
	}
	return &p, nil
}
