package reminder

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/notify"
)

// Event is an armed reminder for one appointment/offset pair.
type Event struct {
	ID            string
	AppointmentID string
	ClientID      string
	Professional  string
	Start         time.Time
	End           time.Time
	Offset        time.Duration
	FiresAt       time.Time
	Delivered     bool

	cancelled bool
	index     int
}

type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].FiresAt.Before(h[j].FiresAt) }

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	e := x.(*Event)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler maintains a time-ordered queue of reminder events and fires
// each exactly once through the notification collaborator. It observes
// ledger changes: create/confirm arms, reschedule invalidates and re-arms
// against the new start, terminal transitions invalidate. Firing runs on
// its own sweep loop and only ever reads ledger snapshots, so it neither
// blocks nor is blocked by booking operations.
type Scheduler struct {
	clock    clock.Clock
	notifier notify.Notifier
	logger   *slog.Logger
	interval time.Duration

	mu         sync.Mutex
	queue      eventHeap
	byAppt     map[string][]*Event
	armedStart map[string]time.Time
}

func NewScheduler(clk clock.Clock, notifier notify.Notifier, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		clock:      clk,
		notifier:   notifier,
		logger:     logger,
		interval:   interval,
		byAppt:     map[string][]*Event{},
		armedStart: map[string]time.Time{},
	}
}

// Observe is the ledger change listener (registered via Ledger.Watch).
func (s *Scheduler) Observe(a model.Appointment) {
	if a.Status.Active() {
		s.Arm(a)
		return
	}
	s.CancelFor(a.ID)
}

// Arm replaces the appointment's reminder set, re-armed relative to its
// current start. Offsets whose fire time precedes the start are armed even
// if already due; the sweep decides between immediate fire and discard.
// Arming is idempotent for an unchanged start, so unrelated ledger changes
// (check-in, pending->confirmed) never duplicate events.
func (s *Scheduler) Arm(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.armedStart[a.ID]; ok && prev.Equal(a.Start) {
		return
	}
	s.armedStart[a.ID] = a.Start

	s.cancelLocked(a.ID)
	for _, offset := range a.ReminderOffsets {
		if offset <= 0 {
			continue
		}
		e := &Event{
			ID:            uuid.NewString(),
			AppointmentID: a.ID,
			ClientID:      a.ClientID,
			Professional:  a.ProfessionalID,
			Start:         a.Start,
			End:           a.End,
			Offset:        offset,
			FiresAt:       a.Start.Add(-offset),
		}
		heap.Push(&s.queue, e)
		s.byAppt[a.ID] = append(s.byAppt[a.ID], e)
	}
}

// CancelFor invalidates all undelivered events for an appointment.
func (s *Scheduler) CancelFor(appointmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(appointmentID)
	delete(s.armedStart, appointmentID)
}

func (s *Scheduler) cancelLocked(appointmentID string) {
	for _, e := range s.byAppt[appointmentID] {
		e.cancelled = true
	}
	delete(s.byAppt, appointmentID)
}

// Pending reports the number of armed, undelivered events.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.queue {
		if !e.cancelled {
			n++
		}
	}
	return n
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep fires every due event once. Events that became due while the
// process was down fire immediately, unless the appointment's start has
// already passed, in which case they are discarded. Exposed so tests drive
// it against a fake clock.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.clock.Now()

	var due []*Event
	s.mu.Lock()
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.FiresAt.After(now) {
			break
		}
		e := heap.Pop(&s.queue).(*Event)
		if e.cancelled {
			continue
		}
		s.removeFromIndex(e)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		if !now.Before(e.Start) {
			s.logger.Info("reminder discarded, appointment already started",
				"appointment_id", e.AppointmentID, "fires_at", e.FiresAt)
			continue
		}
		err := s.notifier.Notify(ctx, notify.Notification{
			ParticipantID:  e.ClientID,
			AppointmentID:  e.AppointmentID,
			ProfessionalID: e.Professional,
			Kind:           notify.KindReminder,
			Start:          e.Start,
			End:            e.End,
			Detail:         map[string]string{"offset": e.Offset.String()},
		})
		if err != nil {
			// Delivery failures are surfaced by the notifier itself; the
			// event is consumed either way so it cannot double-fire.
			s.logger.Error("reminder delivery gave up", "appointment_id", e.AppointmentID, "err", err)
		}
		e.Delivered = true
	}
}

func (s *Scheduler) removeFromIndex(e *Event) {
	list := s.byAppt[e.AppointmentID]
	for i, x := range list {
		if x == e {
			s.byAppt[e.AppointmentID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.byAppt[e.AppointmentID]) == 0 {
		delete(s.byAppt, e.AppointmentID)
	}
}
