package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/callforge/callforge/internal/database/models"
)

// smsTemplateRepo implements SMSTemplateRepository.
type smsTemplateRepo struct {
	db *DB
}

// NewSMSTemplateRepository creates a new SMSTemplateRepository.
func NewSMSTemplateRepository(db *DB) SMSTemplateRepository {
	return &smsTemplateRepo{db: db}
}

// GetByID returns an SMS template by ID, or nil if it does not exist.
func (r *smsTemplateRepo) GetByID(ctx context.Context, id int64) (*models.SMSTemplate, error) {
	var t models.SMSTemplate
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, body, created_at
		 FROM sms_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Body, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sms template: %w", err)
	}
	return &t, nil
}

// smsLogRepo implements SMSLogRepository.
type smsLogRepo struct {
	db *DB
}

// NewSMSLogRepository creates a new SMSLogRepository.
func NewSMSLogRepository(db *DB) SMSLogRepository {
	return &smsLogRepo{db: db}
}

// Create inserts an SMS send record.
func (r *smsLogRepo) Create(ctx context.Context, log *models.SMSLog) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sms_logs (user_id, to_number, body, template_id, status, provider_message_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.UserID, log.ToNumber, log.Body, log.TemplateID, log.Status,
		log.ProviderMessageID,
	)
	if err != nil {
		return fmt.Errorf("inserting sms log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	log.ID = id
	return nil
}
