package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

type busyStub []Interval

func (b busyStub) BusyIntervals(string, time.Time, time.Time) []Interval { return b }

func workdayStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	if err := s.SetWeekly("p1", []WeeklyRule{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}); err != nil {
		t.Fatalf("SetWeekly failed: %v", err)
	}
	return s
}

func TestFindSlots_EarliestFirst(t *testing.T) {
	s := workdayStore(t)
	clk := clock.NewFake(monday)
	alloc := NewAllocator(s, busyStub(nil), 15*time.Minute, clk)

	slots, err := alloc.FindSlots("p1", monday, monday.AddDate(0, 0, 1), time.Hour)
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots in an open workday")
	}
	first := slots[0]
	if !first.Start.Equal(monday.Add(9*time.Hour)) || !first.End.Equal(monday.Add(10*time.Hour)) {
		t.Fatalf("expected first slot 09:00-10:00, got %s-%s", first.Start, first.End)
	}
	// 09:00 through 16:00 inclusive at 15-minute steps.
	if len(slots) != 29 {
		t.Fatalf("expected 29 candidate starts, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].Start.Before(slots[i].Start) {
			t.Fatal("slots not in chronological order")
		}
	}
}

func TestFindSlots_SubtractsBusy(t *testing.T) {
	s := workdayStore(t)
	clk := clock.NewFake(monday)
	busy := busyStub{{Start: monday.Add(9 * time.Hour), End: monday.Add(16 * time.Hour)}}
	alloc := NewAllocator(s, busy, 15*time.Minute, clk)

	slots, err := alloc.FindSlots("p1", monday, monday.AddDate(0, 0, 1), time.Hour)
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected only 16:00-17:00, got %d slots", len(slots))
	}
	if !slots[0].Start.Equal(monday.Add(16 * time.Hour)) {
		t.Fatalf("expected 16:00 start, got %s", slots[0].Start)
	}
}

func TestFindSlots_SkipsPastStarts(t *testing.T) {
	s := workdayStore(t)
	clk := clock.NewFake(monday.Add(16*time.Hour + 1*time.Minute))
	alloc := NewAllocator(s, busyStub(nil), 15*time.Minute, clk)

	slots, err := alloc.FindSlots("p1", monday, monday.AddDate(0, 0, 1), 45*time.Minute)
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected only the 16:15 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(monday.Add(16*time.Hour + 15*time.Minute)) {
		t.Fatalf("expected 16:15 start, got %s", slots[0].Start)
	}
}

func TestFindSlots_NoFitInShortWindow(t *testing.T) {
	s := NewStore()
	if err := s.AddWindow("p1", Window{Start: monday.Add(9 * time.Hour), End: monday.Add(9*time.Hour + 30*time.Minute)}); err != nil {
		t.Fatalf("AddWindow failed: %v", err)
	}
	alloc := NewAllocator(s, busyStub(nil), 15*time.Minute, clock.NewFake(monday))

	slots, err := alloc.FindSlots("p1", monday, monday.AddDate(0, 0, 1), time.Hour)
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("hour slot cannot fit a 30-minute window, got %d slots", len(slots))
	}
}

func TestFindSlots_InvalidInputs(t *testing.T) {
	alloc := NewAllocator(workdayStore(t), busyStub(nil), 15*time.Minute, clock.NewFake(monday))
	if _, err := alloc.FindSlots("p1", monday, monday.AddDate(0, 0, 1), 0); !errors.Is(err, model.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := alloc.FindSlots("p1", monday.AddDate(0, 0, 1), monday, time.Hour); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestFitsOpenWindow(t *testing.T) {
	alloc := NewAllocator(workdayStore(t), busyStub(nil), 15*time.Minute, clock.NewFake(monday))

	ok, err := alloc.FitsOpenWindow("p1", monday.Add(10*time.Hour), monday.Add(11*time.Hour))
	if err != nil || !ok {
		t.Fatalf("10:00-11:00 should fit, got ok=%v err=%v", ok, err)
	}
	ok, err = alloc.FitsOpenWindow("p1", monday.Add(16*time.Hour+30*time.Minute), monday.Add(17*time.Hour+30*time.Minute))
	if err != nil || ok {
		t.Fatalf("slot crossing 17:00 should not fit, got ok=%v err=%v", ok, err)
	}
}
