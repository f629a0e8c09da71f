package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

// ChangeFunc is invoked with a snapshot copy after every committed mutation.
// The reminder scheduler subscribes through Watch.
type ChangeFunc func(model.Appointment)

// Ledger is the system of record for appointments. All mutations for one
// professional are serialized behind that professional's mutex; slot
// re-validation and commit happen inside the boundary, which is what keeps
// the no-overlap invariant under concurrent requests. Unrelated
// professionals proceed in parallel. Reads copy under a short RLock and
// never block a booking for longer than the map mutation itself.
type Ledger struct {
	clock clock.Clock

	profMu sync.Mutex
	profs  map[string]*sync.Mutex

	mu     sync.RWMutex
	byID   map[string]*model.Appointment
	byProf map[string][]*model.Appointment

	watchMu  sync.RWMutex
	watchers []ChangeFunc
}

func New(clk clock.Clock) *Ledger {
	return &Ledger{
		clock:  clk,
		profs:  map[string]*sync.Mutex{},
		byID:   map[string]*model.Appointment{},
		byProf: map[string][]*model.Appointment{},
	}
}

// Watch registers a listener for committed changes.
func (l *Ledger) Watch(fn ChangeFunc) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	l.watchers = append(l.watchers, fn)
}

func (l *Ledger) notify(a *model.Appointment) {
	snapshot := a.Clone()
	l.watchMu.RLock()
	defer l.watchMu.RUnlock()
	for _, fn := range l.watchers {
		fn(snapshot)
	}
}

// boundary returns the serialization mutex for a professional.
func (l *Ledger) boundary(professionalID string) *sync.Mutex {
	l.profMu.Lock()
	defer l.profMu.Unlock()
	mu, ok := l.profs[professionalID]
	if !ok {
		mu = &sync.Mutex{}
		l.profs[professionalID] = mu
	}
	return mu
}

// overlapsActive must be called with the professional's boundary held.
// excludeID skips the appointment itself (confirm/reschedule re-checks).
func (l *Ledger) overlapsActive(professionalID string, start, end time.Time, excludeID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, a := range l.byProf[professionalID] {
		if a.ID == excludeID || !a.Status.Active() {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

type CreateParams struct {
	ProfessionalID  string
	ClientID        string
	Start           time.Time
	End             time.Time
	Medium          model.Medium
	Location        string
	Status          model.Status // StatusPending or StatusConfirmed per policy
	ReminderOffsets []time.Duration
}

// Create commits a new appointment. Overlap is re-checked against current
// ledger state at the instant of commit, not at the instant the caller
// computed its candidate slot.
func (l *Ledger) Create(p CreateParams) (model.Appointment, error) {
	if !p.End.After(p.Start) {
		return model.Appointment{}, fmt.Errorf("interval %s-%s: %w", p.Start, p.End, model.ErrInvalidRange)
	}
	if !p.Status.Active() {
		return model.Appointment{}, fmt.Errorf("initial status %s: %w", p.Status, model.ErrInvalidTransition)
	}

	mu := l.boundary(p.ProfessionalID)
	mu.Lock()
	defer mu.Unlock()

	if l.overlapsActive(p.ProfessionalID, p.Start, p.End, "") {
		return model.Appointment{}, fmt.Errorf("professional %s %s-%s: %w", p.ProfessionalID, p.Start, p.End, model.ErrConflict)
	}

	now := l.clock.Now()
	a := &model.Appointment{
		ID:              uuid.NewString(),
		ProfessionalID:  p.ProfessionalID,
		ClientID:        p.ClientID,
		Start:           p.Start,
		End:             p.End,
		Medium:          p.Medium,
		Location:        p.Location,
		Status:          p.Status,
		ReminderOffsets: append([]time.Duration(nil), p.ReminderOffsets...),
		CreatedAt:       now,
		LastModifiedAt:  now,
	}

	l.mu.Lock()
	l.byID[a.ID] = a
	l.byProf[a.ProfessionalID] = append(l.byProf[a.ProfessionalID], a)
	l.mu.Unlock()

	l.notify(a)
	return a.Clone(), nil
}

// Transition applies a state-machine event. Cancel requires a reason.
// Attempts out of a terminal state fail with ErrInvalidTransition and leave
// the appointment unchanged.
func (l *Ledger) Transition(appointmentID string, event model.Event, reason string) (model.Appointment, error) {
	prof, err := l.professionalOf(appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	mu := l.boundary(prof)
	mu.Lock()
	defer mu.Unlock()

	l.mu.RLock()
	a, ok := l.byID[appointmentID]
	l.mu.RUnlock()
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}

	next, err := a.NextStatus(event)
	if err != nil {
		return a.Clone(), err
	}
	if event == model.EventCancel {
		if strings.TrimSpace(reason) == "" {
			return a.Clone(), fmt.Errorf("cancel requires a reason: %w", model.ErrInvalidTransition)
		}
		// Cancellation is open to either party only until the start time.
		if !l.clock.Now().Before(a.Start) {
			return a.Clone(), fmt.Errorf("appointment %s already started: %w", a.ID, model.ErrInvalidTransition)
		}
	}
	// Confirmation re-validates the slot against current ledger state.
	if event == model.EventConfirm && l.overlapsActive(prof, a.Start, a.End, a.ID) {
		return a.Clone(), fmt.Errorf("appointment %s slot lost: %w", a.ID, model.ErrConflict)
	}

	l.mu.Lock()
	a.Status = next
	if event == model.EventCancel {
		a.CancelReason = strings.TrimSpace(reason)
	}
	a.LastModifiedAt = l.clock.Now()
	l.mu.Unlock()

	l.notify(a)
	return a.Clone(), nil
}

// Reschedule moves an active appointment to a new interval, preserving its
// identity. When requireReconfirm is set, a confirmed appointment drops back
// to pending.
func (l *Ledger) Reschedule(appointmentID string, newStart, newEnd time.Time, requireReconfirm bool) (model.Appointment, error) {
	if !newEnd.After(newStart) {
		return model.Appointment{}, fmt.Errorf("interval %s-%s: %w", newStart, newEnd, model.ErrInvalidRange)
	}
	prof, err := l.professionalOf(appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	mu := l.boundary(prof)
	mu.Lock()
	defer mu.Unlock()

	l.mu.RLock()
	a, ok := l.byID[appointmentID]
	l.mu.RUnlock()
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	if a.Status.Terminal() {
		return a.Clone(), fmt.Errorf("appointment %s is %s: %w", a.ID, a.Status, model.ErrInvalidTransition)
	}
	if l.overlapsActive(prof, newStart, newEnd, a.ID) {
		return a.Clone(), fmt.Errorf("professional %s %s-%s: %w", prof, newStart, newEnd, model.ErrConflict)
	}

	l.mu.Lock()
	a.Start = newStart
	a.End = newEnd
	a.CheckedInAt = nil
	if a.Status == model.StatusConfirmed && requireReconfirm {
		a.Status = model.StatusPending
	}
	a.LastModifiedAt = l.clock.Now()
	l.mu.Unlock()

	l.notify(a)
	return a.Clone(), nil
}

// RecordCheckIn notes the external check-in signal. Only meaningful for
// confirmed appointments that have not ended in a terminal state.
func (l *Ledger) RecordCheckIn(appointmentID string) (model.Appointment, error) {
	prof, err := l.professionalOf(appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	mu := l.boundary(prof)
	mu.Lock()
	defer mu.Unlock()

	l.mu.Lock()
	a, ok := l.byID[appointmentID]
	if !ok {
		l.mu.Unlock()
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	if a.Status.Terminal() {
		snapshot := a.Clone()
		l.mu.Unlock()
		return snapshot, fmt.Errorf("appointment %s is %s: %w", a.ID, a.Status, model.ErrInvalidTransition)
	}
	now := l.clock.Now()
	a.CheckedInAt = &now
	a.LastModifiedAt = now
	snapshot := a.Clone()
	l.mu.Unlock()

	l.notify(a)
	return snapshot, nil
}

func (l *Ledger) Get(appointmentID string) (model.Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byID[appointmentID]
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	return a.Clone(), nil
}

func (l *Ledger) professionalOf(appointmentID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byID[appointmentID]
	if !ok {
		return "", fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	return a.ProfessionalID, nil
}

// BusyIntervals implements availability.BusyLister: sorted intervals of
// active appointments overlapping [from, to).
func (l *Ledger) BusyIntervals(professionalID string, from, to time.Time) []availability.Interval {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []availability.Interval
	for _, a := range l.byProf[professionalID] {
		if !a.Status.Active() || !a.Overlaps(from, to) {
			continue
		}
		out = append(out, availability.Interval{Start: a.Start, End: a.End})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	ParticipantID string // matches either side of the appointment
	Status        model.Status
	From          time.Time
	To            time.Time
}

// List returns a consistent snapshot ordered by start ascending.
func (l *Ledger) List(f ListFilter) []model.Appointment {
	l.mu.RLock()
	var out []model.Appointment
	for _, a := range l.byID {
		if f.ParticipantID != "" && a.ProfessionalID != f.ParticipantID && a.ClientID != f.ParticipantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && !a.End.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.Start.Before(f.To) {
			continue
		}
		out = append(out, a.Clone())
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Prune removes terminal appointments whose end is before cutoff and
// returns them for archival. Active appointments are never pruned.
func (l *Ledger) Prune(cutoff time.Time) []model.Appointment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var archived []model.Appointment
	for id, a := range l.byID {
		if !a.Status.Terminal() || !a.End.Before(cutoff) {
			continue
		}
		archived = append(archived, a.Clone())
		delete(l.byID, id)
		list := l.byProf[a.ProfessionalID]
		for i, x := range list {
			if x.ID == id {
				l.byProf[a.ProfessionalID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return archived
}

// Restore loads journaled appointments at startup, bypassing overlap checks
// (they held when the snapshot was written). Watchers are not notified.
func (l *Ledger) Restore(appts []model.Appointment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range appts {
		a := appts[i].Clone()
		if a.ID == "" {
			continue
		}
		if _, ok := l.byID[a.ID]; ok {
			continue
		}
		l.byID[a.ID] = &a
		l.byProf[a.ProfessionalID] = append(l.byProf[a.ProfessionalID], &a)
	}
}
