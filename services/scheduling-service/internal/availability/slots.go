package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

// Slot is a derived value: a bookable candidate interval. Never persisted,
// recomputed per query.
type Slot struct {
	ProfessionalID string
	Start          time.Time
	End            time.Time
	Duration       time.Duration
}

// BusyLister reports the intervals held by active (pending/confirmed)
// appointments, sorted by start.
type BusyLister interface {
	BusyIntervals(professionalID string, from, to time.Time) []Interval
}

// Allocator computes free slots from the availability store minus the
// ledger's busy intervals.
type Allocator struct {
	store *Store
	busy  BusyLister
	step  time.Duration
	clock clock.Clock
}

func NewAllocator(store *Store, busy BusyLister, step time.Duration, clk clock.Clock) *Allocator {
	if step <= 0 {
		step = 15 * time.Minute
	}
	return &Allocator{store: store, busy: busy, step: step, clock: clk}
}

// FindSlots walks the professional's open windows in chronological order,
// subtracts active appointment intervals, and emits every candidate start
// within each maximal free sub-interval that fits duration, clipped to
// exactly duration. Earliest start first. Starts in the past are skipped.
func (a *Allocator) FindSlots(professionalID string, rangeStart, rangeEnd time.Time, duration time.Duration) ([]Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration %s: %w", duration, model.ErrInvalidDuration)
	}
	if !rangeEnd.After(rangeStart) {
		return nil, fmt.Errorf("range %s-%s: %w", rangeStart, rangeEnd, model.ErrInvalidRange)
	}

	windows, err := a.store.OpenWindows(professionalID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	busy := Merge(a.busy.BusyIntervals(professionalID, rangeStart, rangeEnd))
	free := Subtract(windows, busy)

	now := a.clock.Now()
	var slots []Slot
	for _, iv := range free {
		for t := iv.Start; !t.Add(duration).After(iv.End); t = t.Add(a.step) {
			if t.Before(now) {
				continue
			}
			slots = append(slots, Slot{
				ProfessionalID: professionalID,
				Start:          t,
				End:            t.Add(duration),
				Duration:       duration,
			})
		}
	}
	return slots, nil
}

// FitsOpenWindow reports whether [start, end) lies entirely inside one of
// the professional's open windows. Used to validate caller-supplied slots
// before the ledger commit.
func (a *Allocator) FitsOpenWindow(professionalID string, start, end time.Time) (bool, error) {
	if !end.After(start) {
		return false, fmt.Errorf("slot %s-%s: %w", start, end, model.ErrInvalidRange)
	}
	windows, err := a.store.OpenWindows(professionalID, start, end)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			return true, nil
		}
	}
	return false, nil
}
