package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

const (
	writerQueueSize   = 256
	writerExecTimeout = 5 * time.Second
)

// AppointmentUpserter is the journal surface the writer needs.
type AppointmentUpserter interface {
	UpsertAppointment(ctx context.Context, a model.Appointment) error
}

// JournalWriter applies write-behind snapshots through a single worker so
// rapid commits on one appointment reach the journal in commit order. A
// create followed by a cancel must never leave the journal showing the
// created row, or restart recovery would resurrect a cancelled appointment.
type JournalWriter struct {
	repo   AppointmentUpserter
	logger *slog.Logger
	queue  chan model.Appointment
}

func NewJournalWriter(repo AppointmentUpserter, logger *slog.Logger) *JournalWriter {
	return &JournalWriter{
		repo:   repo,
		logger: logger,
		queue:  make(chan model.Appointment, writerQueueSize),
	}
}

// Enqueue is a ledger change listener. It never blocks a commit: when the
// queue is full the snapshot is dropped with an error log, and the upsert's
// last_modified_at guard keeps any later snapshot from being clobbered.
func (w *JournalWriter) Enqueue(a model.Appointment) {
	select {
	case w.queue <- a:
	default:
		w.logger.Error("journal queue full; snapshot dropped", "appointment_id", a.ID)
	}
}

// Run drains the queue until ctx is cancelled, then flushes whatever is
// still buffered so a graceful shutdown does not lose tail snapshots.
func (w *JournalWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case a := <-w.queue:
			w.write(a)
		}
	}
}

func (w *JournalWriter) flush() {
	for {
		select {
		case a := <-w.queue:
			w.write(a)
		default:
			return
		}
	}
}

func (w *JournalWriter) write(a model.Appointment) {
	ctx, cancel := context.WithTimeout(context.Background(), writerExecTimeout)
	defer cancel()
	if err := w.repo.UpsertAppointment(ctx, a); err != nil {
		w.logger.Error("journal upsert failed", "err", err, "appointment_id", a.ID)
	}
}
