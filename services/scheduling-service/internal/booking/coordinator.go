package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/directory"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/ledger"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/notify"
)

// Coordinator orchestrates the booking/reschedule/cancel protocol: request
// validation, policy lookup, slot selection or validation, ledger commit
// inside the per-professional boundary, then reminder arming (via the
// ledger watch) and participant notification. On a lost race it returns
// ErrConflict and never silently substitutes a different slot.
type Coordinator struct {
	ledger    *ledger.Ledger
	allocator *availability.Allocator
	directory directory.Provider
	notifier  notify.Notifier
	logger    *slog.Logger
	defaults  []time.Duration

	idemMu sync.Mutex
	idem   map[string]*idemEntry

	effects sync.WaitGroup
}

// idemEntry serializes replays of one idempotency key without blocking
// bookings under other keys.
type idemEntry struct {
	mu sync.Mutex
	id string // appointment id once the first booking commits
}

func NewCoordinator(
	l *ledger.Ledger,
	allocator *availability.Allocator,
	dir directory.Provider,
	notifier notify.Notifier,
	logger *slog.Logger,
	defaultOffsets []time.Duration,
) *Coordinator {
	return &Coordinator{
		ledger:    l,
		allocator: allocator,
		directory: dir,
		notifier:  notifier,
		logger:    logger,
		defaults:  defaultOffsets,
		idem:      map[string]*idemEntry{},
	}
}

// Wait blocks until in-flight notification side effects have drained.
// Used during shutdown and by tests.
func (c *Coordinator) Wait() {
	c.effects.Wait()
}

type BookRequest struct {
	ProfessionalID string
	ClientID       string
	Medium         model.Medium
	Location       string

	// Exact slot: both set. Alternatively leave them zero and set the
	// search fields below to take the earliest free slot.
	Start time.Time
	End   time.Time

	RangeStart time.Time
	RangeEnd   time.Time
	Duration   time.Duration

	ReminderOffsets []time.Duration
	IdempotencyKey  string
}

func (r *BookRequest) exact() bool { return !r.Start.IsZero() || !r.End.IsZero() }

func (r *BookRequest) validate() error {
	if strings.TrimSpace(r.ProfessionalID) == "" || strings.TrimSpace(r.ClientID) == "" {
		return fmt.Errorf("professional and client ids required: %w", model.ErrNotFound)
	}
	switch r.Medium {
	case model.MediumVideo, model.MediumPhone:
		// location optional
	case model.MediumInPerson:
		if strings.TrimSpace(r.Location) == "" {
			return fmt.Errorf("location required for in-person appointments: %w", model.ErrInvalidRange)
		}
	default:
		return fmt.Errorf("medium %q: %w", r.Medium, model.ErrInvalidRange)
	}
	if r.exact() {
		if !r.End.After(r.Start) {
			return fmt.Errorf("slot %s-%s: %w", r.Start, r.End, model.ErrInvalidRange)
		}
		return nil
	}
	if r.Duration <= 0 {
		return fmt.Errorf("duration %s: %w", r.Duration, model.ErrInvalidDuration)
	}
	if !r.RangeEnd.After(r.RangeStart) {
		return fmt.Errorf("search range %s-%s: %w", r.RangeStart, r.RangeEnd, model.ErrInvalidRange)
	}
	return nil
}

// Book allocates and commits a new appointment. With an exact slot the slot
// is validated against availability and committed; the commit-time overlap
// re-check inside the ledger is what decides races. Without one, the
// earliest free slot in the search range is taken.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if err := req.validate(); err != nil {
		return model.Appointment{}, err
	}

	prof, err := c.directory.GetProfessional(ctx, req.ProfessionalID)
	if err != nil {
		return model.Appointment{}, err
	}
	if _, err := c.directory.GetClient(ctx, req.ClientID); err != nil {
		return model.Appointment{}, err
	}

	if key := c.scopedKey(req.ProfessionalID, req.IdempotencyKey); key != "" {
		entry := c.idemEntry(key)
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.id != "" {
			return c.ledger.Get(entry.id)
		}
		appt, err := c.book(ctx, req, prof)
		if err == nil {
			entry.id = appt.ID
		}
		return appt, err
	}
	return c.book(ctx, req, prof)
}

func (c *Coordinator) book(ctx context.Context, req BookRequest, prof directory.Professional) (model.Appointment, error) {
	start, end := req.Start, req.End
	if req.exact() {
		ok, err := c.allocator.FitsOpenWindow(req.ProfessionalID, start, end)
		if err != nil {
			return model.Appointment{}, err
		}
		if !ok {
			return model.Appointment{}, fmt.Errorf("slot outside availability: %w", model.ErrConflict)
		}
	} else {
		slots, err := c.allocator.FindSlots(req.ProfessionalID, req.RangeStart, req.RangeEnd, req.Duration)
		if err != nil {
			return model.Appointment{}, err
		}
		if len(slots) == 0 {
			return model.Appointment{}, fmt.Errorf("no free slot in range: %w", model.ErrConflict)
		}
		start, end = slots[0].Start, slots[0].End
	}

	status := model.StatusConfirmed
	if prof.ConfirmationPolicy == directory.ConfirmManual {
		status = model.StatusPending
	}
	offsets := req.ReminderOffsets
	if len(offsets) == 0 {
		offsets = c.defaults
	}

	appt, err := c.ledger.Create(ledger.CreateParams{
		ProfessionalID:  req.ProfessionalID,
		ClientID:        req.ClientID,
		Start:           start,
		End:             end,
		Medium:          req.Medium,
		Location:        strings.TrimSpace(req.Location),
		Status:          status,
		ReminderOffsets: offsets,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	if appt.Status == model.StatusConfirmed {
		c.emit(appt, notify.KindConfirmed)
	}
	return appt, nil
}

// Confirm acknowledges a pending appointment on behalf of the professional.
func (c *Coordinator) Confirm(ctx context.Context, appointmentID string) (model.Appointment, error) {
	appt, err := c.ledger.Transition(appointmentID, model.EventConfirm, "")
	if err != nil {
		return appt, err
	}
	c.emit(appt, notify.KindConfirmed)
	return appt, nil
}

// Cancel ends an active appointment. A reason is required; cancellation is
// legal for either party until the start time passes.
func (c *Coordinator) Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	appt, err := c.ledger.Transition(appointmentID, model.EventCancel, reason)
	if err != nil {
		return appt, err
	}
	c.emit(appt, notify.KindCancelled)
	return appt, nil
}

// Reschedule moves an appointment, keeping its identity. Whether a
// confirmed appointment needs re-confirmation is the professional's policy.
func (c *Coordinator) Reschedule(ctx context.Context, appointmentID string, newStart, newEnd time.Time) (model.Appointment, error) {
	current, err := c.ledger.Get(appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	prof, err := c.directory.GetProfessional(ctx, current.ProfessionalID)
	if err != nil {
		return model.Appointment{}, err
	}

	ok, err := c.allocator.FitsOpenWindow(current.ProfessionalID, newStart, newEnd)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, fmt.Errorf("slot outside availability: %w", model.ErrConflict)
	}

	reconfirm := prof.ReschedulePolicy == directory.RescheduleReconfirm
	appt, err := c.ledger.Reschedule(appointmentID, newStart, newEnd, reconfirm)
	if err != nil {
		return appt, err
	}
	c.emit(appt, notify.KindRescheduled)
	return appt, nil
}

// CheckIn records the external check-in signal for an appointment.
func (c *Coordinator) CheckIn(_ context.Context, appointmentID string) (model.Appointment, error) {
	return c.ledger.RecordCheckIn(appointmentID)
}

// ListAppointments is the query surface for rendering layers: ordered by
// start ascending, optionally narrowed by status and date range.
func (c *Coordinator) ListAppointments(participantID string, status model.Status, from, to time.Time) ([]model.Appointment, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, fmt.Errorf("participant id required: %w", model.ErrNotFound)
	}
	return c.ledger.List(ledger.ListFilter{
		ParticipantID: participantID,
		Status:        status,
		From:          from,
		To:            to,
	}), nil
}

func (c *Coordinator) ListSlots(professionalID string, from, to time.Time, duration time.Duration) ([]availability.Slot, error) {
	return c.allocator.FindSlots(professionalID, from, to, duration)
}

// emit notifies the client off the request path. A committed appointment is
// a durable fact: no delivery error ever rolls it back.
func (c *Coordinator) emit(appt model.Appointment, kind notify.Kind) {
	if c.notifier == nil {
		return
	}
	c.effects.Add(1)
	go func() {
		defer c.effects.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		err := c.notifier.Notify(ctx, notify.Notification{
			ParticipantID:  appt.ClientID,
			AppointmentID:  appt.ID,
			ProfessionalID: appt.ProfessionalID,
			Kind:           kind,
			Start:          appt.Start,
			End:            appt.End,
			Detail:         map[string]string{"status": string(appt.Status)},
		})
		if err != nil {
			c.logger.Error("notification gave up", "appointment_id", appt.ID, "kind", string(kind), "err", err)
		}
	}()
}

// idemEntry returns the guard for one scoped key. The map lock is held
// only for the lookup, never across a booking.
func (c *Coordinator) idemEntry(key string) *idemEntry {
	c.idemMu.Lock()
	defer c.idemMu.Unlock()
	e, ok := c.idem[key]
	if !ok {
		e = &idemEntry{}
		c.idem[key] = e
	}
	return e
}

func (c *Coordinator) scopedKey(professionalID, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return professionalID + "\x00" + key
}
