package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/callforge/callforge/internal/database/models"
)

// voicemailRepo implements VoicemailRepository.
type voicemailRepo struct {
	db *DB
}

// NewVoicemailRepository creates a new VoicemailRepository.
func NewVoicemailRepository(db *DB) VoicemailRepository {
	return &voicemailRepo{db: db}
}

// GetByID returns a voicemail asset by ID, or nil if it does not exist.
func (r *voicemailRepo) GetByID(ctx context.Context, id int64) (*models.Voicemail, error) {
	var v models.Voicemail
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, audio_url, usage_count, created_at
		 FROM voicemails WHERE id = ?`, id,
	).Scan(&v.ID, &v.UserID, &v.Name, &v.AudioURL, &v.UsageCount, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting voicemail: %w", err)
	}
	return &v, nil
}

// IncrementUsage bumps the usage counter on a voicemail asset.
func (r *voicemailRepo) IncrementUsage(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE voicemails SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing voicemail usage: %w", err)
	}
	return nil
}

// voicemailDropRepo implements VoicemailDropRepository.
type voicemailDropRepo struct {
	db *DB
}

// NewVoicemailDropRepository creates a new VoicemailDropRepository.
func NewVoicemailDropRepository(db *DB) VoicemailDropRepository {
	return &voicemailDropRepo{db: db}
}

// Create inserts a voicemail drop record.
func (r *voicemailDropRepo) Create(ctx context.Context, drop *models.VoicemailDrop) error {
	if drop.Status == "" {
		drop.Status = "dropped"
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO voicemail_drops (call_control_id, voicemail_id, user_id, status, sms_log_id)
		 VALUES (?, ?, ?, ?, ?)`,
		drop.CallControlID, drop.VoicemailID, drop.UserID, drop.Status, drop.SMSLogID,
	)
	if err != nil {
		return fmt.Errorf("inserting voicemail drop: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	drop.ID = id
	return nil
}

// LinkSMS records the follow-up SMS triggered by a voicemail drop.
func (r *voicemailDropRepo) LinkSMS(ctx context.Context, dropID, smsLogID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE voicemail_drops SET sms_log_id = ? WHERE id = ?`, smsLogID, dropID)
	if err != nil {
		return fmt.Errorf("linking sms to voicemail drop: %w", err)
	}
	return nil
}

// Count returns the total number of voicemail drops recorded.
func (r *voicemailDropRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM voicemail_drops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting voicemail drops: %w", err)
	}
	return n, nil
}
