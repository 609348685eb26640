package memory

import (
	"context"
	"sort"

	"license-service/internal/domain/license"
	xerrors "license-service/internal/pkg/errors"
)

// ActivateIfUnderLimit runs the activation critical section under the
// license's lock.
func (s *Store) ActivateIfUnderLimit(ctx context.Context, op license.ActivateIfUnderLimit) (*license.ActivationOutcome, error) {
	release, err := s.lockLicense(ctx, op.LicenseID)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.RLock()
	lic, ok := s.licenses[op.LicenseID]
	var limit *int
	var active bool
	if ok {
		limit = copyInt(lic.DomainLimit)
		active = lic.IsActiveAt(op.At)
	}
	existing := s.activations[op.LicenseID][op.Domain]
	used := len(s.activations[op.LicenseID])
	s.mu.RUnlock()

	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if !active {
		return nil, xerrors.ErrLicenseInactive
	}

	if existing != nil {
		s.mu.Lock()
		at := op.At
		existing.LastCheckedAt = &at
		out := *existing
		s.mu.Unlock()
		return &license.ActivationOutcome{Activation: &out, Created: false, Used: used, Limit: limit}, nil
	}

	if limit != nil && used >= *limit {
		return nil, &xerrors.DomainLimitReachedError{Limit: *limit, Used: used}
	}

	if hook := s.opts.InsideCriticalSection; hook != nil {
		hook()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := op.NewActivation()
	s.mu.Lock()
	a.ID = s.id()
	if s.activations[op.LicenseID] == nil {
		s.activations[op.LicenseID] = make(map[string]*license.Activation)
	}
	s.activations[op.LicenseID][op.Domain] = a
	used = len(s.activations[op.LicenseID])
	out := *a
	s.mu.Unlock()

	return &license.ActivationOutcome{Activation: &out, Created: true, Used: used, Limit: limit}, nil
}

func (s *Store) DeleteByDomain(ctx context.Context, licenseID int64, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activations[licenseID][domain]; !ok {
		return xerrors.ErrNotFound
	}
	delete(s.activations[licenseID], domain)
	return nil
}

func (s *Store) DeleteByID(ctx context.Context, licenseID, activationID int64) (*license.Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for domain, a := range s.activations[licenseID] {
		if a.ID == activationID {
			delete(s.activations[licenseID], domain)
			out := *a
			return &out, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *Store) CountByLicense(ctx context.Context, licenseID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activations[licenseID]), nil
}

func (s *Store) ListByLicense(ctx context.Context, licenseID int64) ([]license.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]license.Activation, 0, len(s.activations[licenseID]))
	for _, a := range s.activations[licenseID] {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivatedAt.Equal(out[j].ActivatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ActivatedAt.Before(out[j].ActivatedAt)
	})
	return out, nil
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
