package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type expiryCleaner interface {
	CleanupExpiredNotifications(ctx context.Context) (int, error)
}

// Sweeper purges expired notifications on a fixed interval. It satisfies
// suture.Service and returns when ctx is cancelled.
type Sweeper struct {
	cleaner  expiryCleaner
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(cleaner expiryCleaner, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{cleaner: cleaner, interval: interval, logger: logger}
}

func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	count, err := s.cleaner.CleanupExpiredNotifications(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if count > 0 {
		s.logger.Info().Int("swept", count).Msg("expired notifications removed")
	}
}

func (s *Sweeper) String() string { return "notification-expiry-sweeper" }
