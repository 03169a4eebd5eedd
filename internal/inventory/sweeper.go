package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

type expiredCleaner interface {
	CleanupExpiredReservations(ctx context.Context) ([]domain.Reservation, error)
}

// Sweeper periodically removes expired reservations. It runs until its context
// is cancelled and is started by the owning process.
type Sweeper struct {
	cleaner  expiredCleaner
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(cleaner expiredCleaner, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "reservation sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reservation sweeper stopped")
			return nil
		case <-ticker.C:
			swept, err := s.cleaner.CleanupExpiredReservations(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "reservation sweep failed", "error", err)
				continue
			}
			if len(swept) > 0 {
				s.logger.InfoContext(ctx, "expired reservations swept", "count", len(swept))
			}
		}
	}
}
