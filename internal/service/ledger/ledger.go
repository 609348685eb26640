// internal/service/ledger/ledger.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"license-service/internal/domain/license"
	wstypes "license-service/internal/domain/websocket"
	"license-service/internal/metrics"
	xerrors "license-service/internal/pkg/errors"
	"license-service/internal/pkg/hostname"

	"go.uber.org/zap"
)

// Store persists activations. ActivateIfUnderLimit must run the whole
// operation atomically per license (see license.ActivateIfUnderLimit) and
// report lock or constraint contention as xerrors.ErrConcurrencyConflict.
type Store interface {
	ActivateIfUnderLimit(ctx context.Context, op license.ActivateIfUnderLimit) (*license.ActivationOutcome, error)
	DeleteByDomain(ctx context.Context, licenseID int64, domain string) error
	DeleteByID(ctx context.Context, licenseID, activationID int64) (*license.Activation, error)
	CountByLicense(ctx context.Context, licenseID int64) (int, error)
	ListByLicense(ctx context.Context, licenseID int64) ([]license.Activation, error)
}

type Publisher interface {
	PublishLicenseEvent(eventType wstypes.EventType, data *wstypes.LicenseEventData)
}

type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

type Ledger struct {
	store     Store
	publisher Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

func NewLedger(store Store, publisher Publisher, collector *metrics.Collector, logger *zap.Logger, cfg Config) *Ledger {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     store,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// TryActivate claims a domain slot on lic for rawDomain. Re-activating a
// domain that already holds a slot succeeds with Created=false and only
// refreshes last_checked_at. When the license is full the error is a
// *xerrors.DomainLimitReachedError and nothing is written.
func (l *Ledger) TryActivate(ctx context.Context, lic *license.License, rawDomain, ip, userAgent string) (*license.ActivationOutcome, error) {
	domain, err := hostname.Normalize(rawDomain)
	if err != nil {
		return nil, err
	}

	op := license.ActivateIfUnderLimit{
		LicenseID: lic.ID,
		Domain:    domain,
		IPAddress: ip,
		UserAgent: userAgent,
	}

	started := time.Now()
	var outcome *license.ActivationOutcome
	for attempt := 0; ; attempt++ {
		op.At = l.now()
		outcome, err = l.store.ActivateIfUnderLimit(ctx, op)
		if err == nil || !errors.Is(err, xerrors.ErrConcurrencyConflict) || attempt >= l.cfg.MaxRetries {
			break
		}

		l.metrics.RecordLedgerRetry()
		l.logger.Debug("activation contended, retrying",
			zap.Int64("license_id", lic.ID),
			zap.String("domain", domain),
			zap.Int("attempt", attempt+1),
		)
		if waitErr := sleepCtx(ctx, l.cfg.RetryBackoff*time.Duration(attempt+1)); waitErr != nil {
			err = fmt.Errorf("%w: %v", xerrors.ErrConcurrencyConflict, waitErr)
			break
		}
	}
	took := time.Since(started)

	if err != nil {
		if limitErr, ok := xerrors.AsDomainLimit(err); ok {
			l.metrics.RecordActivation("refused", took)
			l.logger.Info("domain limit reached",
				zap.Int64("license_id", lic.ID),
				zap.String("domain", domain),
				zap.Int("limit", limitErr.Limit),
				zap.Int("used", limitErr.Used),
			)
			limit, used := limitErr.Limit, limitErr.Used
			l.publish(wstypes.EventTypeDomainLimitReached, &wstypes.LicenseEventData{
				LicenseID: lic.ID,
				UserID:    lic.UserID,
				Domain:    domain,
				Limit:     &limit,
				Used:      &used,
			})
			return nil, err
		}
		if errors.Is(err, xerrors.ErrConcurrencyConflict) {
			l.metrics.RecordActivation("conflict", took)
			l.logger.Warn("activation gave up after contention",
				zap.Int64("license_id", lic.ID),
				zap.String("domain", domain),
				zap.Error(err),
			)
			return nil, err
		}
		l.metrics.RecordActivation("error", took)
		return nil, fmt.Errorf("failed to activate domain: %w", err)
	}

	if !outcome.Created {
		l.metrics.RecordActivation("existing", took)
		return outcome, nil
	}

	l.metrics.RecordActivation("created", took)
	l.logger.Info("domain activated",
		zap.Int64("license_id", lic.ID),
		zap.String("domain", domain),
		zap.Int("used", outcome.Used),
	)
	used := outcome.Used
	l.publish(wstypes.EventTypeDomainActivated, &wstypes.LicenseEventData{
		LicenseID: lic.ID,
		UserID:    lic.UserID,
		Domain:    domain,
		Used:      &used,
		Limit:     outcome.Limit,
	})
	return outcome, nil
}

// Deactivate frees the slot held by rawDomain on lic. The slot is available
// to the next TryActivate as soon as this returns.
func (l *Ledger) Deactivate(ctx context.Context, lic *license.License, rawDomain string) error {
	domain, err := hostname.Normalize(rawDomain)
	if err != nil {
		return err
	}

	if err := l.store.DeleteByDomain(ctx, lic.ID, domain); err != nil {
		return err
	}

	l.logger.Info("domain deactivated",
		zap.Int64("license_id", lic.ID),
		zap.String("domain", domain),
	)
	l.publish(wstypes.EventTypeDomainDeactivated, &wstypes.LicenseEventData{
		LicenseID: lic.ID,
		UserID:    lic.UserID,
		Domain:    domain,
	})
	return nil
}

// DeactivateByID removes one activation by id (admin).
func (l *Ledger) DeactivateByID(ctx context.Context, lic *license.License, activationID int64) error {
	removed, err := l.store.DeleteByID(ctx, lic.ID, activationID)
	if err != nil {
		return err
	}

	l.logger.Info("activation removed",
		zap.Int64("license_id", lic.ID),
		zap.Int64("activation_id", activationID),
		zap.String("domain", removed.Domain),
	)
	l.publish(wstypes.EventTypeDomainDeactivated, &wstypes.LicenseEventData{
		LicenseID: lic.ID,
		UserID:    lic.UserID,
		Domain:    removed.Domain,
	})
	return nil
}

// ActiveActivations returns the committed number of activations on a license.
func (l *Ledger) ActiveActivations(ctx context.Context, licenseID int64) (int, error) {
	n, err := l.store.CountByLicense(ctx, licenseID)
	if err != nil {
		return 0, fmt.Errorf("failed to count activations: %w", err)
	}
	return n, nil
}

func (l *Ledger) List(ctx context.Context, licenseID int64) ([]license.Activation, error) {
	return l.store.ListByLicense(ctx, licenseID)
}

func (l *Ledger) publish(eventType wstypes.EventType, data *wstypes.LicenseEventData) {
	if l.publisher == nil {
		return
	}
	l.publisher.PublishLicenseEvent(eventType, data)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
