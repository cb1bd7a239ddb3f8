package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/callforge/callforge/internal/database/models"
)

// prospectRepo implements ProspectRepository.
type prospectRepo struct {
	db *DB
}

// NewProspectRepository creates a new ProspectRepository.
func NewProspectRepository(db *DB) ProspectRepository {
	return &prospectRepo{db: db}
}

// GetByPhone returns the most recently created prospect matching the
// phone number for a user, or nil if none matches.
func (r *prospectRepo) GetByPhone(ctx context.Context, userID, phone string) (*models.Prospect, error) {
	var p models.Prospect
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, first_name, last_name, company, phone, created_at
		 FROM prospects WHERE user_id = ? AND phone = ?
		 ORDER BY created_at DESC LIMIT 1`, userID, phone,
	).Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Company,
		&p.Phone, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting prospect: %w", err)
	}
	return &p, nil
}
