package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/ledger"
)

// Archiver prunes terminal appointments past the retention window out of
// the ledger and stamps their journal rows. Cancellation is a status, not a
// removal; archival is the only way an appointment leaves the ledger.
type Archiver struct {
	ledger    *ledger.Ledger
	repo      *JournalRepository
	clock     clock.Clock
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
}

func NewArchiver(l *ledger.Ledger, repo *JournalRepository, clk clock.Clock, logger *slog.Logger, retention, interval time.Duration) *Archiver {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Archiver{
		ledger:    l,
		repo:      repo,
		clock:     clk,
		logger:    logger,
		retention: retention,
		interval:  interval,
	}
}

func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sweep(ctx); err != nil {
				a.logger.Error("archival sweep failed", "err", err)
			}
		}
	}
}

func (a *Archiver) sweep(ctx context.Context) error {
	cutoff := a.clock.Now().Add(-a.retention)
	archived := a.ledger.Prune(cutoff)
	if len(archived) == 0 {
		return nil
	}

	ids := make([]string, 0, len(archived))
	for _, appt := range archived {
		// Final snapshot first so the archived row reflects the terminal state.
		if err := a.repo.UpsertAppointment(ctx, appt); err != nil {
			return err
		}
		ids = append(ids, appt.ID)
	}
	if err := a.repo.MarkArchived(ctx, ids); err != nil {
		return err
	}
	a.logger.Info("appointments archived", "count", len(ids), "cutoff", cutoff)
	return nil
}
