package notify

import (
	"context"
	"time"
)

// Kind enumerates the notification kinds the engine emits.
type Kind string

const (
	KindReminder    Kind = "reminder"
	KindConfirmed   Kind = "confirmed"
	KindCancelled   Kind = "cancelled"
	KindRescheduled Kind = "rescheduled"
)

// Topic maps a kind to its event topic, one topic per event type as in the
// rest of the platform.
func (k Kind) Topic() string {
	return "scheduling.appointment." + string(k) + ".v1"
}

// Notification is what the engine hands to the external notification
// collaborator. The engine does not own delivery transport.
type Notification struct {
	ParticipantID  string
	AppointmentID  string
	ProfessionalID string
	Kind           Kind
	Start          time.Time
	End            time.Time
	Detail         map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }
