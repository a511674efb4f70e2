package worker

import (
	"context"
	"log/slog"
	"time"
)

// Expirer flips overdue pending transactions to expired.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Sweeper periodically enforces the payment window server-side, so a stale
// pending_payment row cannot stay actionable after expires_at has passed.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
}

func NewSweeper(expirer Expirer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{expirer: expirer, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("expiry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			count, err := s.expirer.ExpireOverdue(ctx)
			if err != nil {
				slog.Error("expiry sweep failed", "error", err)
				continue
			}
			if count > 0 {
				slog.Info("expiry sweep completed", "expired", count)
			}
		}
	}
}
