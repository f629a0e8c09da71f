package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/schedcore/libs/db"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

// JournalRepository persists write-behind appointment snapshots. The
// in-memory ledger stays the system of record for the active window; the
// journal exists so a restarted process can reload active appointments
// (re-arming reminders) and so terminal appointments survive retention
// archival.
type JournalRepository struct {
	pool *db.Pool
}

func NewJournalRepository(pool *db.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

func (r *JournalRepository) UpsertAppointment(ctx context.Context, a model.Appointment) error {
	offsets := make([]int64, 0, len(a.ReminderOffsets))
	for _, o := range a.ReminderOffsets {
		offsets = append(offsets, int64(o/time.Minute))
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_journal
			(id, professional_id, client_id, start_time, end_time, medium, location,
			 status, cancel_reason, reminder_offsets_minutes, checked_in_at, created_at, last_modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			status = EXCLUDED.status,
			cancel_reason = EXCLUDED.cancel_reason,
			checked_in_at = EXCLUDED.checked_in_at,
			last_modified_at = EXCLUDED.last_modified_at
		WHERE appointment_journal.last_modified_at <= EXCLUDED.last_modified_at
	`, a.ID, a.ProfessionalID, a.ClientID, a.Start, a.End, string(a.Medium), a.Location,
		string(a.Status), a.CancelReason, offsets, a.CheckedInAt, a.CreatedAt, a.LastModifiedAt)
	return err
}

// LoadActive returns unarchived pending/confirmed appointments for ledger
// recovery at startup.
func (r *JournalRepository) LoadActive(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, client_id, start_time, end_time, medium, COALESCE(location, ''),
			status, COALESCE(cancel_reason, ''), reminder_offsets_minutes, checked_in_at, created_at, last_modified_at
		FROM appointment_journal
		WHERE archived_at IS NULL
			AND status IN ('pending', 'confirmed')
		ORDER BY start_time ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var medium, status string
		var offsets []int64
		var checkedInAt *time.Time
		if err := rows.Scan(
			&a.ID,
			&a.ProfessionalID,
			&a.ClientID,
			&a.Start,
			&a.End,
			&medium,
			&a.Location,
			&status,
			&a.CancelReason,
			&offsets,
			&checkedInAt,
			&a.CreatedAt,
			&a.LastModifiedAt,
		); err != nil {
			return nil, err
		}
		a.Medium = model.Medium(medium)
		a.Status = model.Status(status)
		a.CheckedInAt = checkedInAt
		for _, m := range offsets {
			a.ReminderOffsets = append(a.ReminderOffsets, time.Duration(m)*time.Minute)
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// MarkArchived stamps journal rows pruned from the ledger.
func (r *JournalRepository) MarkArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE appointment_journal
		SET archived_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

type Delivery struct {
	AppointmentID string
	ParticipantID string
	Kind          string
	Status        string // sent | failed
	Attempts      int
	ErrorReason   string
}

// RecordDelivery logs a notification delivery outcome. Best-effort: a
// failure here never touches appointment state.
func (r *JournalRepository) RecordDelivery(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries (appointment_id, participant_id, kind, status, attempts, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.AppointmentID, d.ParticipantID, d.Kind, d.Status, d.Attempts, d.ErrorReason)
	return err
}
