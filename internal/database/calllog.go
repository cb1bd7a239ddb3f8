package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/callforge/callforge/internal/database/models"
)

// callLogRepo implements CallLogRepository.
type callLogRepo struct {
	db *DB
}

// NewCallLogRepository creates a new CallLogRepository.
func NewCallLogRepository(db *DB) CallLogRepository {
	return &callLogRepo{db: db}
}

// Upsert inserts or replaces the call log keyed by call_control_id. A
// replayed hangup event for the same call rewrites the existing row
// instead of producing a duplicate.
func (r *callLogRepo) Upsert(ctx context.Context, log *models.CallLog) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_logs (call_control_id, user_id, direction, phone_number,
		 from_number, contact_name, outcome, end_reason, duration_seconds,
		 answered_by, recording_url, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(call_control_id) DO UPDATE SET
		 user_id = excluded.user_id,
		 direction = excluded.direction,
		 phone_number = excluded.phone_number,
		 from_number = excluded.from_number,
		 contact_name = excluded.contact_name,
		 outcome = excluded.outcome,
		 end_reason = excluded.end_reason,
		 duration_seconds = excluded.duration_seconds,
		 answered_by = excluded.answered_by,
		 recording_url = CASE WHEN excluded.recording_url != ''
			THEN excluded.recording_url ELSE call_logs.recording_url END,
		 start_time = excluded.start_time,
		 end_time = excluded.end_time`,
		log.CallControlID, log.UserID, log.Direction, log.PhoneNumber,
		log.FromNumber, log.ContactName, log.Outcome, log.EndReason,
		log.Duration, log.AnsweredBy, log.RecordingURL, log.StartTime,
		log.EndTime,
	)
	if err != nil {
		return fmt.Errorf("upserting call log: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil && id > 0 {
		log.ID = id
	}
	return nil
}

// AttachRecording sets the recording URL on the call log for the given
// call-control id and returns the number of rows updated. Zero rows means
// the call log has not been written yet and the caller should retry.
func (r *callLogRepo) AttachRecording(ctx context.Context, callControlID, recordingURL string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE call_logs SET recording_url = ? WHERE call_control_id = ?`,
		recordingURL, callControlID,
	)
	if err != nil {
		return 0, fmt.Errorf("attaching recording: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting affected rows: %w", err)
	}
	return affected, nil
}

// GetByCallControlID returns the call log for a call-control id, or nil
// if none exists.
func (r *callLogRepo) GetByCallControlID(ctx context.Context, callControlID string) (*models.CallLog, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, call_control_id, user_id, direction, phone_number,
		 from_number, contact_name, outcome, end_reason, duration_seconds,
		 answered_by, recording_url, start_time, end_time, created_at
		 FROM call_logs WHERE call_control_id = ?`, callControlID,
	))
}

// List returns call logs matching the filter, along with the total count.
func (r *callLogRepo) List(ctx context.Context, filter CallLogFilter) ([]models.CallLog, int, error) {
	where := "1=1"
	args := []any{}

	if filter.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Direction != "" {
		where += " AND direction = ?"
		args = append(args, filter.Direction)
	}
	if filter.Outcome != "" {
		where += " AND outcome = ?"
		args = append(args, filter.Outcome)
	}
	if filter.Search != "" {
		where += " AND (contact_name LIKE ? OR phone_number LIKE ? OR from_number LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s, s)
	}

	// Count total matching rows.
	var total int
	countQuery := "SELECT COUNT(*) FROM call_logs WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting call logs: %w", err)
	}

	// Fetch the page of results.
	query := `SELECT id, call_control_id, user_id, direction, phone_number,
		 from_number, contact_name, outcome, end_reason, duration_seconds,
		 answered_by, recording_url, start_time, end_time, created_at
		 FROM call_logs WHERE ` + where + ` ORDER BY start_time DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	rows, err := r.db.QueryContext(ctx,
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

func (r *callLogRepo) scanOne(row *sql.Row) (*models.CallLog, error) {
	var l models.CallLog
	err := row.Scan(&l.ID, &l.CallControlID, &l.UserID, &l.Direction,
		&l.PhoneNumber, &l.FromNumber, &l.ContactName, &l.Outcome,
		&l.EndReason, &l.Duration, &l.AnsweredBy, &l.RecordingURL,
		&l.StartTime, &l.EndTime, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call log: %w", err)
	}
	return &l, nil
}
