package model

import (
	"errors"
	"testing"
	"time"
)

func TestOverlaps_HalfOpen(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a := Appointment{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}

	// Back-to-back is not an overlap.
	if a.Overlaps(day.Add(10*time.Hour), day.Add(11*time.Hour)) {
		t.Fatal("10:00-11:00 should not overlap 09:00-10:00")
	}
	if a.Overlaps(day.Add(8*time.Hour), day.Add(9*time.Hour)) {
		t.Fatal("08:00-09:00 should not overlap 09:00-10:00")
	}
	if !a.Overlaps(day.Add(9*time.Hour+30*time.Minute), day.Add(10*time.Hour+30*time.Minute)) {
		t.Fatal("09:30-10:30 should overlap 09:00-10:00")
	}
	if !a.Overlaps(day.Add(8*time.Hour), day.Add(11*time.Hour)) {
		t.Fatal("containing interval should overlap")
	}
}

func TestNextStatus_Transitions(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
		want  Status
		ok    bool
	}{
		{StatusPending, EventConfirm, StatusConfirmed, true},
		{StatusPending, EventCancel, StatusCancelled, true},
		{StatusPending, EventComplete, StatusPending, false},
		{StatusConfirmed, EventCancel, StatusCancelled, true},
		{StatusConfirmed, EventComplete, StatusCompleted, true},
		{StatusConfirmed, EventNoShow, StatusNoShow, true},
		{StatusConfirmed, EventConfirm, StatusConfirmed, false},
	}
	for _, tc := range cases {
		a := Appointment{ID: "a1", Status: tc.from}
		got, err := a.NextStatus(tc.event)
		if tc.ok && err != nil {
			t.Fatalf("%s + %s: unexpected error %v", tc.from, tc.event, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s + %s: expected ErrInvalidTransition, got %v", tc.from, tc.event, err)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("%s + %s: expected %s, got %s", tc.from, tc.event, tc.want, got)
		}
	}
}

func TestNextStatus_TerminalRejectsEverything(t *testing.T) {
	for _, from := range []Status{StatusCancelled, StatusCompleted, StatusNoShow} {
		for _, event := range []Event{EventConfirm, EventCancel, EventComplete, EventNoShow} {
			a := Appointment{ID: "a1", Status: from}
			got, err := a.NextStatus(event)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s + %s: expected ErrInvalidTransition, got %v", from, event, err)
			}
			if got != from {
				t.Fatalf("%s + %s: status changed to %s", from, event, got)
			}
		}
	}
}

func TestClone_Isolation(t *testing.T) {
	checkedIn := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	a := Appointment{
		ID:              "a1",
		CheckedInAt:     &checkedIn,
		ReminderOffsets: []time.Duration{time.Hour},
	}
	c := a.Clone()
	*c.CheckedInAt = c.CheckedInAt.Add(time.Hour)
	c.ReminderOffsets[0] = time.Minute
	if !a.CheckedInAt.Equal(checkedIn) {
		t.Fatal("clone shares CheckedInAt pointer")
	}
	if a.ReminderOffsets[0] != time.Hour {
		t.Fatal("clone shares ReminderOffsets slice")
	}
}

func TestParseMedium(t *testing.T) {
	if m, err := ParseMedium(" Video "); err != nil || m != MediumVideo {
		t.Fatalf("expected video, got %q err %v", m, err)
	}
	if _, err := ParseMedium("telepathy"); err == nil {
		t.Fatal("expected error for unknown medium")
	}
}
