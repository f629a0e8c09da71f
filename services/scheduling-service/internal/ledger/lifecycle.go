package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

// GraceFunc returns the no-show grace duration for a professional. Grace 0
// disables no-show tracking: the appointment completes at end time.
type GraceFunc func(professionalID string) time.Duration

// Lifecycle drives the automatic transitions out of Confirmed: Completed
// once now >= end (with a check-in recorded or no grace configured), NoShow
// once the grace period elapses with no check-in signal.
type Lifecycle struct {
	ledger   *Ledger
	grace    GraceFunc
	logger   *slog.Logger
	interval time.Duration
}

func NewLifecycle(l *Ledger, grace GraceFunc, logger *slog.Logger, interval time.Duration) *Lifecycle {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Lifecycle{ledger: l, grace: grace, logger: logger, interval: interval}
}

func (lc *Lifecycle) Run(ctx context.Context) {
	ticker := time.NewTicker(lc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lc.Sweep()
		}
	}
}

// Sweep applies due automatic transitions once. Exposed so tests can drive
// it against a fake clock without the ticker.
func (lc *Lifecycle) Sweep() {
	now := lc.ledger.clock.Now()
	for _, a := range lc.ledger.List(ListFilter{Status: model.StatusConfirmed}) {
		if now.Before(a.End) {
			continue
		}
		grace := lc.grace(a.ProfessionalID)
		event := model.EventComplete
		switch {
		case a.CheckedInAt != nil || grace <= 0:
			// complete at end time
		case now.Before(a.End.Add(grace)):
			continue // still inside the grace window
		default:
			event = model.EventNoShow
		}

		if _, err := lc.ledger.Transition(a.ID, event, ""); err != nil {
			// Lost a race with a manual transition; terminal rejections are
			// expected and idempotent.
			if errors.Is(err, model.ErrInvalidTransition) {
				continue
			}
			lc.logger.Error("lifecycle transition failed", "appointment_id", a.ID, "event", string(event), "err", err)
		}
	}
}
