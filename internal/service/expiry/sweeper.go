// Package expiry periodically looks for licenses about to expire and
// announces them on the live feed. It only reads; stored status is never
// changed here because expiry is evaluated lazily at validation time.
package expiry

import (
	"context"
	"time"

	"license-service/internal/domain/license"
	wstypes "license-service/internal/domain/websocket"
	"license-service/internal/metrics"

	"go.uber.org/zap"
)

type ExpiringLister interface {
	ListExpiring(ctx context.Context, withinDays int) ([]license.License, error)
}

type Publisher interface {
	PublishLicenseEvent(eventType wstypes.EventType, data *wstypes.LicenseEventData)
}

type Sweeper struct {
	licenses  ExpiringLister
	publisher Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
	interval  time.Duration
	warnDays  int
}

func NewSweeper(licenses ExpiringLister, publisher Publisher, collector *metrics.Collector, logger *zap.Logger, interval time.Duration, warnDays int) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if warnDays < 1 {
		warnDays = 7
	}
	return &Sweeper{
		licenses:  licenses,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
		interval:  interval,
		warnDays:  warnDays,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("warn_days", s.warnDays),
	)

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("expiry sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep publishes one license:expiring event per license expiring inside the
// warning window and returns how many there were.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expiring, err := s.licenses.ListExpiring(ctx, s.warnDays)
	if err != nil {
		return 0, err
	}

	for i := range expiring {
		l := &expiring[i]
		s.publisher.PublishLicenseEvent(wstypes.EventTypeLicenseExpiring, &wstypes.LicenseEventData{
			LicenseID:  l.ID,
			LicenseKey: l.LicenseKey,
			UserID:     l.UserID,
			Status:     string(l.Status),
			ExpiresAt:  l.ExpiresAt,
		})
	}

	s.metrics.SetExpiring(len(expiring))
	if len(expiring) > 0 {
		s.logger.Info("licenses expiring soon", zap.Int("count", len(expiring)), zap.Int("within_days", s.warnDays))
	}
	return len(expiring), nil
}
