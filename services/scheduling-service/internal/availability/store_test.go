package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

// Monday 2026-03-02.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestOpenWindows_WeeklyMaterialization(t *testing.T) {
	s := NewStore()
	if err := s.SetWeekly("p1", []WeeklyRule{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}); err != nil {
		t.Fatalf("SetWeekly failed: %v", err)
	}

	windows, err := s.OpenWindows("p1", monday, monday.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("OpenWindows failed: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window in the week, got %d", len(windows))
	}
	if !windows[0].Start.Equal(monday.Add(9*time.Hour)) || !windows[0].End.Equal(monday.Add(17*time.Hour)) {
		t.Fatalf("expected Monday 09:00-17:00, got %s-%s", windows[0].Start, windows[0].End)
	}
}

func TestOpenWindows_BlockedSubtraction(t *testing.T) {
	s := NewStore()
	if err := s.SetWeekly("p1", []WeeklyRule{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}); err != nil {
		t.Fatalf("SetWeekly failed: %v", err)
	}
	// Lunch block splits the day.
	if err := s.AddWindow("p1", Window{
		Start:   monday.Add(12 * time.Hour),
		End:     monday.Add(13 * time.Hour),
		Blocked: true,
	}); err != nil {
		t.Fatalf("AddWindow failed: %v", err)
	}

	windows, err := s.OpenWindows("p1", monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("OpenWindows failed: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows around the block, got %d", len(windows))
	}
	if !windows[0].End.Equal(monday.Add(12 * time.Hour)) {
		t.Fatalf("expected first window to end 12:00, got %s", windows[0].End)
	}
	if !windows[1].Start.Equal(monday.Add(13 * time.Hour)) {
		t.Fatalf("expected second window to start 13:00, got %s", windows[1].Start)
	}
}

func TestOpenWindows_OneOffMergesWithWeekly(t *testing.T) {
	s := NewStore()
	if err := s.SetWeekly("p1", []WeeklyRule{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
	}); err != nil {
		t.Fatalf("SetWeekly failed: %v", err)
	}
	if err := s.AddWindow("p1", Window{
		Start: monday.Add(11 * time.Hour),
		End:   monday.Add(14 * time.Hour),
	}); err != nil {
		t.Fatalf("AddWindow failed: %v", err)
	}

	windows, err := s.OpenWindows("p1", monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("OpenWindows failed: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected merged window, got %d", len(windows))
	}
	if !windows[0].Start.Equal(monday.Add(9*time.Hour)) || !windows[0].End.Equal(monday.Add(14*time.Hour)) {
		t.Fatalf("expected 09:00-14:00, got %s-%s", windows[0].Start, windows[0].End)
	}
}

func TestOpenWindows_UnknownProfessional(t *testing.T) {
	s := NewStore()
	if _, err := s.OpenWindows("nobody", monday, monday.AddDate(0, 0, 1)); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenWindows_InvertedRange(t *testing.T) {
	s := NewStore()
	s.Register("p1")
	if _, err := s.OpenWindows("p1", monday.AddDate(0, 0, 1), monday); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestSetWeekly_RejectsInvertedRule(t *testing.T) {
	s := NewStore()
	err := s.SetWeekly("p1", []WeeklyRule{
		{Weekday: time.Monday, StartMinute: 17 * 60, EndMinute: 9 * 60},
	})
	if !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestSubtract(t *testing.T) {
	open := []Interval{{Start: monday.Add(9 * time.Hour), End: monday.Add(17 * time.Hour)}}
	blocked := []Interval{
		{Start: monday.Add(10 * time.Hour), End: monday.Add(11 * time.Hour)},
		{Start: monday.Add(15 * time.Hour), End: monday.Add(18 * time.Hour)},
	}
	got := Subtract(open, blocked)
	if len(got) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(got))
	}
	if !got[0].Start.Equal(monday.Add(9*time.Hour)) || !got[0].End.Equal(monday.Add(10*time.Hour)) {
		t.Fatalf("unexpected first interval %s-%s", got[0].Start, got[0].End)
	}
	if !got[1].Start.Equal(monday.Add(11*time.Hour)) || !got[1].End.Equal(monday.Add(15*time.Hour)) {
		t.Fatalf("unexpected second interval %s-%s", got[1].Start, got[1].End)
	}
}
