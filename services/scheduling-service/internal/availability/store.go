package availability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// WeeklyRule is a recurring window on one weekday, expressed as minutes from
// midnight UTC.
type WeeklyRule struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	Blocked     bool
}

// Window is a one-off range. Blocked windows subtract from open ones.
type Window struct {
	Start   time.Time
	End     time.Time
	Blocked bool
}

type calendar struct {
	weekly []WeeklyRule
	oneOff []Window
}

// Store holds per-professional availability. Windows are owned by the
// professional (written through SetWeekly/AddWindow) and consulted read-only
// by the slot allocator. Reads copy under RLock so an in-flight query never
// observes a partial update.
type Store struct {
	mu        sync.RWMutex
	calendars map[string]*calendar
}

func NewStore() *Store {
	return &Store{calendars: map[string]*calendar{}}
}

func (s *Store) Register(professionalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[professionalID]; !ok {
		s.calendars[professionalID] = &calendar{}
	}
}

func (s *Store) Known(professionalID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.calendars[professionalID]
	return ok
}

// SetWeekly replaces the professional's recurring rules.
func (s *Store) SetWeekly(professionalID string, rules []WeeklyRule) error {
	for _, r := range rules {
		if r.StartMinute < 0 || r.EndMinute > 24*60 || r.EndMinute <= r.StartMinute {
			return fmt.Errorf("weekly rule %d-%d on %s: %w", r.StartMinute, r.EndMinute, r.Weekday, model.ErrInvalidRange)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[professionalID]
	if cal == nil {
		cal = &calendar{}
		s.calendars[professionalID] = cal
	}
	cal.weekly = append([]WeeklyRule(nil), rules...)
	return nil
}

// AddWindow appends a one-off open or blocked range.
func (s *Store) AddWindow(professionalID string, w Window) error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("window %s-%s: %w", w.Start, w.End, model.ErrInvalidRange)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[professionalID]
	if cal == nil {
		cal = &calendar{}
		s.calendars[professionalID] = cal
	}
	cal.oneOff = append(cal.oneOff, w)
	return nil
}

// OpenWindows returns the professional's open ranges within [from, to),
// merged, sorted by start, non-overlapping, with blocked ranges subtracted.
func (s *Store) OpenWindows(professionalID string, from, to time.Time) ([]Interval, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("range %s-%s: %w", from, to, model.ErrInvalidRange)
	}

	s.mu.RLock()
	cal, ok := s.calendars[professionalID]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("professional %s: %w", professionalID, model.ErrNotFound)
	}
	weekly := append([]WeeklyRule(nil), cal.weekly...)
	oneOff := append([]Window(nil), cal.oneOff...)
	s.mu.RUnlock()

	var open, blocked []Interval
	for _, iv := range materializeWeekly(weekly, false, from, to) {
		open = append(open, iv)
	}
	for _, iv := range materializeWeekly(weekly, true, from, to) {
		blocked = append(blocked, iv)
	}
	for _, w := range oneOff {
		iv, ok := clip(Interval{Start: w.Start, End: w.End}, from, to)
		if !ok {
			continue
		}
		if w.Blocked {
			blocked = append(blocked, iv)
		} else {
			open = append(open, iv)
		}
	}

	return Subtract(Merge(open), Merge(blocked)), nil
}

func materializeWeekly(rules []WeeklyRule, blocked bool, from, to time.Time) []Interval {
	var out []Interval
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, r := range rules {
			if r.Blocked != blocked || r.Weekday != day.Weekday() {
				continue
			}
			iv := Interval{
				Start: day.Add(time.Duration(r.StartMinute) * time.Minute),
				End:   day.Add(time.Duration(r.EndMinute) * time.Minute),
			}
			if clipped, ok := clip(iv, from, to); ok {
				out = append(out, clipped)
			}
		}
	}
	return out
}

func clip(iv Interval, from, to time.Time) (Interval, bool) {
	if iv.Start.Before(from) {
		iv.Start = from
	}
	if iv.End.After(to) {
		iv.End = to
	}
	if !iv.End.After(iv.Start) {
		return Interval{}, false
	}
	return iv, true
}

// Merge unions intervals into a sorted, non-overlapping set.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := append([]Interval(nil), ivs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes blocked from open. Both inputs must be sorted and
// non-overlapping; the result is too. Single merge pass, O(n+m).
func Subtract(open, blocked []Interval) []Interval {
	var out []Interval
	bi := 0
	for _, iv := range open {
		cur := iv
		for bi < len(blocked) && !blocked[bi].End.After(cur.Start) {
			bi++
		}
		for j := bi; j < len(blocked) && blocked[j].Start.Before(cur.End); j++ {
			b := blocked[j]
			if b.Start.After(cur.Start) {
				out = append(out, Interval{Start: cur.Start, End: b.Start})
			}
			if b.End.After(cur.Start) {
				cur.Start = b.End
			}
			if !cur.End.After(cur.Start) {
				break
			}
		}
		if cur.End.After(cur.Start) {
			out = append(out, cur)
		}
	}
	return out
}
