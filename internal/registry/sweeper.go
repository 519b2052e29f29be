package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically evicts connections whose last activity exceeds the
// liveness timeout. It runs as one supervised task per process and touches
// only the registry's public surface.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewSweeper(registry *Registry, interval time.Duration, timeout time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	stale := s.registry.ListStale(s.timeout)
	for _, connID := range stale {
		s.logger.Info().
			Str("connection_id", connID).
			Dur("timeout", s.timeout).
			Msg("evicting stale connection")
		s.registry.CloseAndDeregister(connID)
	}
	if len(stale) > 0 {
		s.logger.Info().Int("evicted", len(stale)).Msg("sweep complete")
	}
}
