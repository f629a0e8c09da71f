package model

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// Active reports whether the appointment holds its interval for the purpose
// of the no-overlap invariant.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func ParseStatus(raw string) (Status, error) {
	switch Status(strings.TrimSpace(strings.ToLower(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusNoShow:
		return StatusNoShow, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

type Medium string

const (
	MediumVideo    Medium = "video"
	MediumPhone    Medium = "phone"
	MediumInPerson Medium = "in_person"
)

func ParseMedium(raw string) (Medium, error) {
	switch Medium(strings.TrimSpace(strings.ToLower(raw))) {
	case MediumVideo:
		return MediumVideo, nil
	case MediumPhone:
		return MediumPhone, nil
	case MediumInPerson:
		return MediumInPerson, nil
	}
	return "", fmt.Errorf("unknown medium %q", raw)
}

// Event is a state-machine input applied via the ledger.
type Event string

const (
	EventConfirm  Event = "confirm"
	EventCancel   Event = "cancel"
	EventComplete Event = "complete"
	EventNoShow   Event = "no_show"
)

type Appointment struct {
	ID              string
	ProfessionalID  string
	ClientID        string
	Start           time.Time
	End             time.Time
	Medium          Medium
	Location        string // required iff Medium == MediumInPerson
	Status          Status
	CancelReason    string
	ReminderOffsets []time.Duration
	CheckedInAt     *time.Time
	CreatedAt       time.Time
	LastModifiedAt  time.Time
}

// Overlaps uses half-open interval semantics: [Start,End) overlaps
// [start,end) iff Start < end && start < End.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && start.Before(a.End)
}

// NextStatus validates event against the current status and returns the
// resulting status. Terminal states reject every event.
func (a *Appointment) NextStatus(event Event) (Status, error) {
	if a.Status.Terminal() {
		return a.Status, fmt.Errorf("appointment %s is %s: %w", a.ID, a.Status, ErrInvalidTransition)
	}
	switch event {
	case EventConfirm:
		if a.Status == StatusPending {
			return StatusConfirmed, nil
		}
	case EventCancel:
		if a.Status.Active() {
			return StatusCancelled, nil
		}
	case EventComplete:
		if a.Status == StatusConfirmed {
			return StatusCompleted, nil
		}
	case EventNoShow:
		if a.Status == StatusConfirmed {
			return StatusNoShow, nil
		}
	}
	return a.Status, fmt.Errorf("%s -> %s: %w", a.Status, event, ErrInvalidTransition)
}

// Clone returns a deep copy so snapshot readers never alias ledger state.
func (a *Appointment) Clone() Appointment {
	out := *a
	if a.CheckedInAt != nil {
		t := *a.CheckedInAt
		out.CheckedInAt = &t
	}
	if a.ReminderOffsets != nil {
		out.ReminderOffsets = append([]time.Duration(nil), a.ReminderOffsets...)
	}
	return out
}
