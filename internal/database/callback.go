package database

import (
	"context"
	"fmt"

	"github.com/callforge/callforge/internal/database/models"
)

// scheduledCallbackRepo implements ScheduledCallbackRepository.
type scheduledCallbackRepo struct {
	db *DB
}

// NewScheduledCallbackRepository creates a new ScheduledCallbackRepository.
func NewScheduledCallbackRepository(db *DB) ScheduledCallbackRepository {
	return &scheduledCallbackRepo{db: db}
}

// Create inserts a scheduled callback.
func (r *scheduledCallbackRepo) Create(ctx context.Context, cb *models.ScheduledCallback) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO scheduled_callbacks (user_id, prospect_id, phone_number, scheduled_for, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		cb.UserID, cb.ProspectID, cb.PhoneNumber, cb.ScheduledFor, cb.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting scheduled callback: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	cb.ID = id
	return nil
}
