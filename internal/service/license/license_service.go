// internal/service/license/license_service.go
package license

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"license-service/internal/domain/catalog"
	"license-service/internal/domain/license"
	wstypes "license-service/internal/domain/websocket"
	"license-service/internal/metrics"
	xerrors "license-service/internal/pkg/errors"

	"go.uber.org/zap"
)

type Repository interface {
	CreateLicense(ctx context.Context, l *license.License) error
	FindLicenseByID(ctx context.Context, id int64) (*license.License, error)
	FindLicenseByKey(ctx context.Context, key string) (*license.License, error)
	LicenseKeyExists(ctx context.Context, key string) (bool, error)
	ListLicenses(ctx context.Context, filters *license.ListFilters) ([]license.License, int64, error)
	UpdateLicenseStatus(ctx context.Context, id int64, from, to license.Status) error
	RenewLicense(ctx context.Context, id int64, from, to license.Status, expiresAt *time.Time) error
	UpdateLicenseDomainLimit(ctx context.Context, id int64, limit *int) error
	DeleteLicense(ctx context.Context, id int64) error
	ListExpiringLicenses(ctx context.Context, from, to time.Time) ([]license.License, error)
}

// CatalogResolver supplies the product and package a license is issued from.
type CatalogResolver interface {
	ResolveForIssue(ctx context.Context, productID, packageID int64) (*catalog.Product, *catalog.Package, error)
}

type KeyGenerator interface {
	Generate() (string, error)
}

// ActivationReader is the read side of the activation ledger.
type ActivationReader interface {
	List(ctx context.Context, licenseID int64) ([]license.Activation, error)
}

type Publisher interface {
	PublishLicenseEvent(eventType wstypes.EventType, data *wstypes.LicenseEventData)
}

type Config struct {
	KeygenMaxAttempts int
}

type LicenseService struct {
	repo        Repository
	catalog     CatalogResolver
	keys        KeyGenerator
	activations ActivationReader
	publisher   Publisher
	metrics     *metrics.Collector
	logger      *zap.Logger
	cfg         Config
	now         func() time.Time
}

func NewLicenseService(
	repo Repository,
	resolver CatalogResolver,
	keys KeyGenerator,
	activations ActivationReader,
	publisher Publisher,
	collector *metrics.Collector,
	logger *zap.Logger,
	cfg Config,
) *LicenseService {
	if cfg.KeygenMaxAttempts < 1 {
		cfg.KeygenMaxAttempts = 5
	}
	return &LicenseService{
		repo:        repo,
		catalog:     resolver,
		keys:        keys,
		activations: activations,
		publisher:   publisher,
		metrics:     collector,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// ========== Issuance ==========

// Issue creates a license for a product package. The package's domain limit
// (or the request override) is copied onto the license at this point.
func (s *LicenseService) Issue(ctx context.Context, req *license.IssueLicenseRequest) (*license.License, error) {
	product, pkg, err := s.catalog.ResolveForIssue(ctx, req.ProductID, req.PackageID)
	if err != nil {
		return nil, err
	}
	if req.DomainLimit != nil && *req.DomainLimit < 1 {
		return nil, fmt.Errorf("%w: domain limit must be positive", xerrors.ErrInvalidInput)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", xerrors.ErrInvalidInput)
	}

	l := &license.License{
		UserID:         req.UserID,
		ProductID:      product.ID,
		PackageID:      pkg.ID,
		SubscriptionID: req.SubscriptionID,
		Status:         license.StatusActive,
		DomainLimit:    catalog.ResolveDomainLimit(req.DomainLimit, pkg, product),
		ExpiresAt:      req.ExpiresAt,
	}

	if err := s.insertWithUniqueKey(ctx, l); err != nil {
		return nil, err
	}

	s.metrics.RecordIssued()
	s.logger.Info("license issued",
		zap.Int64("license_id", l.ID),
		zap.Int64("user_id", l.UserID),
		zap.Int64("package_id", l.PackageID),
		zap.Any("domain_limit", l.DomainLimit),
	)
	s.publish(wstypes.EventTypeLicenseIssued, l, "")
	return l, nil
}

// insertWithUniqueKey generates keys until the store accepts one. The unique
// constraint on license_key is the arbiter; the pre-check only saves a round
// trip on the rare collision.
func (s *LicenseService) insertWithUniqueKey(ctx context.Context, l *license.License) error {
	for attempt := 1; attempt <= s.cfg.KeygenMaxAttempts; attempt++ {
		key, err := s.keys.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate license key: %w", err)
		}

		exists, err := s.repo.LicenseKeyExists(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to check license key: %w", err)
		}
		if exists {
			s.metrics.RecordKeyCollision()
			s.logger.Warn("license key collision", zap.Int("attempt", attempt))
			continue
		}

		l.LicenseKey = key
		err = s.repo.CreateLicense(ctx, l)
		if err == nil {
			return nil
		}
		if !errors.Is(err, xerrors.ErrDuplicateEntry) {
			s.logger.Error("failed to create license", zap.Error(err))
			return fmt.Errorf("failed to create license: %w", err)
		}
		s.metrics.RecordKeyCollision()
		s.logger.Warn("license key collision on insert", zap.Int("attempt", attempt))
	}
	l.LicenseKey = ""
	return fmt.Errorf("%w after %d attempts", xerrors.ErrKeyspaceExhausted, s.cfg.KeygenMaxAttempts)
}

// ========== Queries ==========

func (s *LicenseService) Get(ctx context.Context, id int64) (*license.License, error) {
	return s.repo.FindLicenseByID(ctx, id)
}

func (s *LicenseService) GetByKey(ctx context.Context, key string) (*license.License, error) {
	return s.repo.FindLicenseByKey(ctx, key)
}

// Details returns the license with its activations and remaining capacity.
func (s *LicenseService) Details(ctx context.Context, id int64) (*license.Details, error) {
	l, err := s.repo.FindLicenseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	acts, err := s.activations.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}
	return &license.Details{
		License:     l,
		Activations: acts,
		Used:        len(acts),
		Remaining:   l.Remaining(len(acts)),
	}, nil
}

func (s *LicenseService) List(ctx context.Context, filters *license.ListFilters) (*license.ListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	for _, st := range filters.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", xerrors.ErrInvalidInput, st)
		}
	}

	items, total, err := s.repo.ListLicenses(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}

	return &license.ListResponse{
		Licenses:   items,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(filters.PageSize))),
	}, nil
}

// ListExpiring returns active licenses whose expiry falls within the next
// withinDays days. Licenses already past their date are not included.
func (s *LicenseService) ListExpiring(ctx context.Context, withinDays int) ([]license.License, error) {
	if withinDays < 1 {
		return nil, fmt.Errorf("%w: days must be positive", xerrors.ErrInvalidInput)
	}
	now := s.now()
	return s.repo.ListExpiringLicenses(ctx, now, now.AddDate(0, 0, withinDays))
}

// ========== State transitions ==========

func (s *LicenseService) Suspend(ctx context.Context, id int64) (*license.License, error) {
	return s.transition(ctx, id, license.StatusSuspended)
}

func (s *LicenseService) Activate(ctx context.Context, id int64) (*license.License, error) {
	return s.transition(ctx, id, license.StatusActive)
}

func (s *LicenseService) Cancel(ctx context.Context, id int64) (*license.License, error) {
	return s.transition(ctx, id, license.StatusCancelled)
}

func (s *LicenseService) Expire(ctx context.Context, id int64) (*license.License, error) {
	return s.transition(ctx, id, license.StatusExpired)
}

// transition applies the state machine and stores the result with a
// compare-and-set on the previous status.
func (s *LicenseService) transition(ctx context.Context, id int64, to license.Status) (*license.License, error) {
	l, err := s.repo.FindLicenseByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := l.Status
	if err := l.Transition(to); err != nil {
		return nil, err
	}
	if l.Status == previous {
		return l, nil
	}

	if err := s.repo.UpdateLicenseStatus(ctx, id, previous, l.Status); err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			return nil, fmt.Errorf("%w: license %d changed status concurrently", xerrors.ErrConcurrencyConflict, id)
		}
		return nil, fmt.Errorf("failed to update license status: %w", err)
	}

	s.statusChanged(l, previous)
	return l, nil
}

// Renew sets a new expiry (nil for never) and reactivates the license.
func (s *LicenseService) Renew(ctx context.Context, id int64, expiresAt *time.Time) (*license.License, error) {
	l, err := s.repo.FindLicenseByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := l.Status
	if err := l.Renew(expiresAt, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.RenewLicense(ctx, id, previous, l.Status, l.ExpiresAt); err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			return nil, fmt.Errorf("%w: license %d changed status concurrently", xerrors.ErrConcurrencyConflict, id)
		}
		return nil, fmt.Errorf("failed to renew license: %w", err)
	}

	s.logger.Info("license renewed", zap.Int64("license_id", id), zap.Timep("expires_at", l.ExpiresAt))
	s.statusChanged(l, previous)
	return l, nil
}

// SetDomainLimit overrides a single license's limit. Lowering it below the
// current number of activations keeps those activations but refuses new ones.
func (s *LicenseService) SetDomainLimit(ctx context.Context, id int64, limit *int) (*license.License, error) {
	if limit != nil && *limit < 1 {
		return nil, fmt.Errorf("%w: domain limit must be positive", xerrors.ErrInvalidInput)
	}
	if err := s.repo.UpdateLicenseDomainLimit(ctx, id, limit); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update domain limit: %w", err)
	}

	l, err := s.repo.FindLicenseByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("license domain limit changed", zap.Int64("license_id", id), zap.Any("domain_limit", limit))
	return l, nil
}

// Delete removes the license and cascades to its activations.
func (s *LicenseService) Delete(ctx context.Context, id int64) error {
	l, err := s.repo.FindLicenseByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteLicense(ctx, id); err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}

	s.logger.Info("license deleted", zap.Int64("license_id", id))
	s.publish(wstypes.EventTypeLicenseDeleted, l, "")
	return nil
}

func (s *LicenseService) statusChanged(l *license.License, previous license.Status) {
	s.metrics.RecordStatusChange(string(l.Status))
	s.logger.Info("license status changed",
		zap.Int64("license_id", l.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(l.Status)),
	)
	s.publish(wstypes.EventTypeLicenseStatusChanged, l, previous)
}

func (s *LicenseService) publish(eventType wstypes.EventType, l *license.License, previous license.Status) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishLicenseEvent(eventType, &wstypes.LicenseEventData{
		LicenseID:  l.ID,
		LicenseKey: l.LicenseKey,
		UserID:     l.UserID,
		Status:     string(l.Status),
		Previous:   string(previous),
		Limit:      l.DomainLimit,
		ExpiresAt:  l.ExpiresAt,
	})
}
