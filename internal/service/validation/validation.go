// internal/service/validation/validation.go
package validation

import (
	"context"
	"errors"
	"strings"
	"time"

	"license-service/internal/domain/catalog"
	"license-service/internal/domain/license"
	"license-service/internal/metrics"
	xerrors "license-service/internal/pkg/errors"
	"license-service/internal/pkg/hostname"
	"license-service/internal/pkg/keygen"

	"go.uber.org/zap"
)

type LicenseFinder interface {
	FindLicenseByKey(ctx context.Context, key string) (*license.License, error)
}

type CatalogReader interface {
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	GetPackage(ctx context.Context, id int64) (*catalog.Package, error)
}

type Ledger interface {
	TryActivate(ctx context.Context, lic *license.License, rawDomain, ip, userAgent string) (*license.ActivationOutcome, error)
	Deactivate(ctx context.Context, lic *license.License, rawDomain string) error
	ActiveActivations(ctx context.Context, licenseID int64) (int, error)
	List(ctx context.Context, licenseID int64) ([]license.Activation, error)
}

// Caller identifies the installation asking for a verdict.
type Caller struct {
	IPAddress string
	UserAgent string
}

// ValidationService answers (license key, domain) questions. Domain-rule
// outcomes (unknown key, inactive license, full license, bad domain) come
// back as a Verdict with Valid=false and a Reason; only infrastructure
// failures and exhausted lock contention are returned as errors.
type ValidationService struct {
	licenses LicenseFinder
	catalog  CatalogReader
	ledger   Ledger
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

func NewValidationService(licenses LicenseFinder, catalogReader CatalogReader, ledger Ledger, collector *metrics.Collector, logger *zap.Logger) *ValidationService {
	return &ValidationService{
		licenses: licenses,
		catalog:  catalogReader,
		ledger:   ledger,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate activates domain against the license (or re-validates an existing
// activation) and returns the verdict.
func (s *ValidationService) Validate(ctx context.Context, key, domain string, caller Caller) (*license.Verdict, error) {
	lic, domain, verdict, err := s.resolve(ctx, key, domain)
	if verdict != nil || err != nil {
		return s.finish(verdict, err)
	}

	now := s.now()
	if !lic.IsActiveAt(now) {
		s.logger.Info("validation refused: license inactive",
			zap.Int64("license_id", lic.ID),
			zap.String("status", string(lic.EffectiveStatus(now))),
		)
		return s.finish(inactiveVerdict(lic, domain, now), nil)
	}

	outcome, err := s.ledger.TryActivate(ctx, lic, domain, caller.IPAddress, caller.UserAgent)
	if err != nil {
		if limitErr, ok := xerrors.AsDomainLimit(err); ok {
			limit := limitErr.Limit
			return s.finish(&license.Verdict{
				Valid:       false,
				Reason:      license.ReasonDomainLimitReached,
				Status:      lic.Status,
				Domain:      domain,
				ExpiresAt:   lic.ExpiresAt,
				Activations: &license.ActivationsInfo{Limit: &limit, Used: limitErr.Used},
			}, nil)
		}
		// the row changed between lookup and lock
		if errors.Is(err, xerrors.ErrLicenseInactive) {
			return s.finish(inactiveVerdict(lic, domain, now), nil)
		}
		if errors.Is(err, xerrors.ErrNotFound) {
			return s.finish(notFoundVerdict(), nil)
		}
		return s.finish(nil, err)
	}

	activated := outcome.Created
	verdict = &license.Verdict{
		Valid:       true,
		Status:      lic.Status,
		Domain:      domain,
		ExpiresAt:   lic.ExpiresAt,
		Activations: &license.ActivationsInfo{Limit: outcome.Limit, Used: outcome.Used},
		Activated:   &activated,
	}
	s.describe(ctx, lic, verdict)
	return s.finish(verdict, nil)
}

// Check reports whether domain currently holds a slot on an active license.
// It never activates anything.
func (s *ValidationService) Check(ctx context.Context, key, domain string) (*license.Verdict, error) {
	lic, domain, verdict, err := s.resolve(ctx, key, domain)
	if verdict != nil || err != nil {
		return s.finish(verdict, err)
	}

	now := s.now()
	if !lic.IsActiveAt(now) {
		return s.finish(inactiveVerdict(lic, domain, now), nil)
	}

	acts, err := s.ledger.List(ctx, lic.ID)
	if err != nil {
		return s.finish(nil, err)
	}
	activated := false
	for _, a := range acts {
		if a.Domain == domain {
			activated = true
			break
		}
	}

	verdict = &license.Verdict{
		Valid:       activated,
		Status:      lic.Status,
		Domain:      domain,
		ExpiresAt:   lic.ExpiresAt,
		Activations: &license.ActivationsInfo{Limit: lic.DomainLimit, Used: len(acts)},
		Activated:   &activated,
	}
	if !activated {
		verdict.Reason = license.ReasonNotActivated
	}
	s.describe(ctx, lic, verdict)
	return s.finish(verdict, nil)
}

// Deactivate frees the slot domain holds on the license. It is allowed on
// inactive licenses too.
func (s *ValidationService) Deactivate(ctx context.Context, key, domain string) (*license.Verdict, error) {
	lic, domain, verdict, err := s.resolve(ctx, key, domain)
	if verdict != nil || err != nil {
		return s.finish(verdict, err)
	}

	now := s.now()
	if err := s.ledger.Deactivate(ctx, lic, domain); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return s.finish(&license.Verdict{
				Valid:     false,
				Reason:    license.ReasonNotActivated,
				Status:    lic.EffectiveStatus(now),
				Domain:    domain,
				ExpiresAt: lic.ExpiresAt,
			}, nil)
		}
		return s.finish(nil, err)
	}

	used, err := s.ledger.ActiveActivations(ctx, lic.ID)
	if err != nil {
		return s.finish(nil, err)
	}
	activated := false
	verdict = &license.Verdict{
		Valid:       lic.IsActiveAt(now),
		Status:      lic.EffectiveStatus(now),
		Domain:      domain,
		ExpiresAt:   lic.ExpiresAt,
		Activations: &license.ActivationsInfo{Limit: lic.DomainLimit, Used: used},
		Activated:   &activated,
	}
	if !verdict.Valid {
		verdict.Reason = license.ReasonInactive
	}
	s.describe(ctx, lic, verdict)
	return s.finish(verdict, nil)
}

// resolve canonicalizes the inputs and looks the license up. A non-nil
// verdict means the request was answered without reaching the license.
// Malformed and unknown keys get the same not_found answer.
func (s *ValidationService) resolve(ctx context.Context, key, domain string) (*license.License, string, *license.Verdict, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if !keygen.Valid(key) {
		return nil, "", notFoundVerdict(), nil
	}

	canonical, err := hostname.Normalize(domain)
	if err != nil {
		return nil, "", &license.Verdict{Valid: false, Reason: license.ReasonInvalidDomain}, nil
	}

	lic, err := s.licenses.FindLicenseByKey(ctx, key)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Debug("validation for unknown license key", zap.String("domain", canonical))
			return nil, "", notFoundVerdict(), nil
		}
		s.logger.Error("failed to look up license", zap.Error(err))
		return nil, "", nil, err
	}
	return lic, canonical, nil, nil
}

// describe fills in product and package names. Catalog lookups are for
// display only and never change the verdict.
func (s *ValidationService) describe(ctx context.Context, lic *license.License, v *license.Verdict) {
	if p, err := s.catalog.GetProduct(ctx, lic.ProductID); err == nil {
		v.Product = p.Name
	} else {
		s.logger.Warn("product lookup failed", zap.Int64("product_id", lic.ProductID), zap.Error(err))
	}
	if p, err := s.catalog.GetPackage(ctx, lic.PackageID); err == nil {
		v.Package = p.Name
	} else {
		s.logger.Warn("package lookup failed", zap.Int64("package_id", lic.PackageID), zap.Error(err))
	}
}

func (s *ValidationService) finish(v *license.Verdict, err error) (*license.Verdict, error) {
	switch {
	case err != nil && errors.Is(err, xerrors.ErrConcurrencyConflict):
		s.metrics.RecordVerdict("conflict")
	case err != nil:
		s.metrics.RecordVerdict("error")
	case v.Valid:
		s.metrics.RecordVerdict("valid")
	default:
		s.metrics.RecordVerdict(string(v.Reason))
	}
	return v, err
}

func notFoundVerdict() *license.Verdict {
	return &license.Verdict{Valid: false, Reason: license.ReasonNotFound}
}

func inactiveVerdict(lic *license.License, domain string, now time.Time) *license.Verdict {
	return &license.Verdict{
		Valid:     false,
		Reason:    license.ReasonInactive,
		Status:    lic.EffectiveStatus(now),
		Domain:    domain,
		ExpiresAt: lic.ExpiresAt,
	}
}
