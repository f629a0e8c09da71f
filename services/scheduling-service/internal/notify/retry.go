package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FailureFunc is called once all delivery attempts are exhausted. Delivery
// failures are surfaced, never propagated into appointment state.
type FailureFunc func(n Notification, attempts int, lastErr error)

// Retrying wraps a Notifier with bounded exponential backoff. Appointment
// durability never depends on delivery: callers fire-and-log.
type Retrying struct {
	next        Notifier
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
	onFailure   FailureFunc
}

type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	OnFailure   FailureFunc
}

func NewRetrying(next Notifier, logger *slog.Logger, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	return &Retrying{
		next:        next,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		onFailure:   cfg.OnFailure,
	}
}

func (r *Retrying) Notify(ctx context.Context, n Notification) error {
	backoff := r.baseBackoff
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		attempts = attempt
		lastErr = r.next.Notify(ctx, n)
		if lastErr == nil {
			return nil
		}
		r.logger.Warn("notification delivery failed",
			"appointment_id", n.AppointmentID,
			"kind", string(n.Kind),
			"attempt", attempt,
			"err", lastErr,
		)
		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			attempt = r.maxAttempts // stop retrying, keep the delivery error
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	if r.onFailure != nil {
		r.onFailure(n, attempts, lastErr)
	}
	return fmt.Errorf("notify %s for appointment %s: %w", n.Kind, n.AppointmentID, lastErr)
}
