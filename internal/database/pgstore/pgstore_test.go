package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/models"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)

	return mock, NewWithQuerier(mock)
}

func TestCallLogUpsertAssignsID(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	repo := NewCallLogRepository(store)

	mock.ExpectQuery(`INSERT INTO call_logs`).
		WithArgs(
			"cc-1",
			"user-1",
			"inbound",
			"+15550001111",
			"+15550001111",
			"Inbound Caller (+15550001111)",
			models.OutcomeConnected,
			"customer_hangup",
			42,
			"human",
			"",
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(42 * time.Second)
	log := &models.CallLog{
		CallControlID: "cc-1",
		UserID:        "user-1",
		Direction:     "inbound",
		PhoneNumber:   "+15550001111",
		FromNumber:    "+15550001111",
		ContactName:   "Inbound Caller (+15550001111)",
		Outcome:       models.OutcomeConnected,
		EndReason:     "customer_hangup",
		Duration:      42,
		AnsweredBy:    "human",
		StartTime:     &start,
		EndTime:       &end,
	}

	if err := repo.Upsert(context.Background(), log); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if log.ID != 7 {
		t.Errorf("log.ID = %d, want 7", log.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAttachRecordingRowCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rows int64
	}{
		{"call log not yet written", 0},
		{"call log present", 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mock, store := newMockStore(t)
			repo := NewCallLogRepository(store)

			mock.ExpectExec(`UPDATE call_logs SET recording_url`).
				WithArgs("https://rec.example/a.mp3", "cc-9").
				WillReturnResult(pgxmock.NewResult("UPDATE", tc.rows))

			affected, err := repo.AttachRecording(context.Background(), "cc-9", "https://rec.example/a.mp3")
			if err != nil {
				t.Fatalf("AttachRecording() error = %v", err)
			}
			if affected != tc.rows {
				t.Errorf("affected = %d, want %d", affected, tc.rows)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestGetByCallControlIDMissingReturnsNil(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	repo := NewCallLogRepository(store)

	mock.ExpectQuery(`SELECT .+ FROM call_logs WHERE call_control_id`).
		WithArgs("cc-missing").
		WillReturnError(pgx.ErrNoRows)

	log, err := repo.GetByCallControlID(context.Background(), "cc-missing")
	if err != nil {
		t.Fatalf("GetByCallControlID() error = %v", err)
	}
	if log != nil {
		t.Errorf("expected nil for missing call log, got %+v", log)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListCountsThenPages(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	repo := NewCallLogRepository(store)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Second)
	created := end.Add(time.Second)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM call_logs`).
		WithArgs("inbound").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	mock.ExpectQuery(`SELECT id, call_control_id, .+ FROM call_logs`).
		WithArgs("inbound", 2, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "call_control_id", "user_id", "direction", "phone_number",
			"from_number", "contact_name", "outcome", "end_reason",
			"duration_seconds", "answered_by", "recording_url",
			"start_time", "end_time", "created_at",
		}).AddRow(
			int64(1), "cc-1", "user-1", "inbound", "+15550001111",
			"+15550001111", "Inbound Caller (+15550001111)",
			models.OutcomeConnected, "customer_hangup",
			30, "human", "", &start, &end, created,
		))

	logs, total, err := repo.List(context.Background(), database.CallLogFilter{
		Direction: "inbound",
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1", len(logs))
	}
	if logs[0].CallControlID != "cc-1" {
		t.Errorf("CallControlID = %q, want cc-1", logs[0].CallControlID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAutomationSettingsMissingReturnsNil(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	repo := NewAutomationSettingsRepository(store)

	mock.ExpectQuery(`SELECT .+ FROM automation_settings`).
		WithArgs("user-ghost").
		WillReturnError(pgx.ErrNoRows)

	set, err := repo.GetByUserID(context.Background(), "user-ghost")
	if err != nil {
		t.Fatalf("GetByUserID() error = %v", err)
	}
	if set != nil {
		t.Errorf("expected nil settings, got %+v", set)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVoicemailDropCreateDefaultsStatus(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	repo := NewVoicemailDropRepository(store)

	mock.ExpectQuery(`INSERT INTO voicemail_drops`).
		WithArgs("cc-5", int64(3), "user-1", "dropped", (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	drop := &models.VoicemailDrop{
		CallControlID: "cc-5",
		VoicemailID:   3,
		UserID:        "user-1",
	}
	if err := repo.Create(context.Background(), drop); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if drop.ID != 11 {
		t.Errorf("drop.ID = %d, want 11", drop.ID)
	}
	if drop.Status != "dropped" {
		t.Errorf("drop.Status = %q, want dropped", drop.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVoicemailDropLinkSMS(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	repo := NewVoicemailDropRepository(store)

	mock.ExpectExec(`UPDATE voicemail_drops SET sms_log_id`).
		WithArgs(int64(44), int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.LinkSMS(context.Background(), 11, 44); err != nil {
		t.Fatalf("LinkSMS() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProspectMissingReturnsNil(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	repo := NewProspectRepository(store)

	mock.ExpectQuery(`SELECT .+ FROM prospects`).
		WithArgs("user-1", "+15550009999").
		WillReturnError(pgx.ErrNoRows)

	p, err := repo.GetByPhone(context.Background(), "user-1", "+15550009999")
	if err != nil {
		t.Fatalf("GetByPhone() error = %v", err)
	}
	if p != nil {
		t.Errorf("expected nil prospect, got %+v", p)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
