package memory

import (
	"context"
	"time"

	"license-service/internal/domain/license"
	xerrors "license-service/internal/pkg/errors"
)

func copyLicense(l *license.License) *license.License {
	out := *l
	out.DomainLimit = copyInt(l.DomainLimit)
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		out.ExpiresAt = &t
	}
	if l.SubscriptionID != nil {
		id := *l.SubscriptionID
		out.SubscriptionID = &id
	}
	return &out
}

func (s *Store) CreateLicense(ctx context.Context, l *license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.keys[l.LicenseKey]; taken {
		return xerrors.ErrDuplicateEntry
	}

	now := time.Now()
	l.ID = s.id()
	l.CreatedAt = now
	l.UpdatedAt = now
	s.licenses[l.ID] = copyLicense(l)
	s.keys[l.LicenseKey] = l.ID
	return nil
}

func (s *Store) FindLicenseByID(ctx context.Context, id int64) (*license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.licenses[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return copyLicense(l), nil
}

func (s *Store) FindLicenseByKey(ctx context.Context, key string) (*license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keys[key]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return copyLicense(s.licenses[id]), nil
}

func (s *Store) LicenseKeyExists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *Store) ListLicenses(ctx context.Context, filters *license.ListFilters) ([]license.License, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[license.Status]bool, len(filters.Statuses))
	for _, st := range filters.Statuses {
		statuses[st] = true
	}

	matched := []license.License{}
	for _, l := range s.licenses {
		if filters.UserID != nil && l.UserID != *filters.UserID {
			continue
		}
		if filters.ProductID != nil && l.ProductID != *filters.ProductID {
			continue
		}
		if filters.PackageID != nil && l.PackageID != *filters.PackageID {
			continue
		}
		if len(statuses) > 0 && !statuses[l.Status] {
			continue
		}
		matched = append(matched, *copyLicense(l))
	}
	// newest first, like the postgres ORDER BY id DESC
	sortByID(matched, func(l license.License) int64 { return -l.ID })

	total := int64(len(matched))
	page, size := filters.Page, filters.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return []license.License{}, total, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// UpdateLicenseStatus moves a license from one status to another. It fails
// with ErrConflict when the stored status is no longer from.
func (s *Store) UpdateLicenseStatus(ctx context.Context, id int64, from, to license.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if l.Status != from {
		return xerrors.ErrConflict
	}
	l.Status = to
	l.UpdatedAt = time.Now()
	return nil
}

// RenewLicense sets expiry and status if the stored status still equals from.
func (s *Store) RenewLicense(ctx context.Context, id int64, from, to license.Status, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.licenses[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if stored.Status != from {
		return xerrors.ErrConflict
	}
	stored.Status = to
	stored.ExpiresAt = nil
	if expiresAt != nil {
		t := *expiresAt
		stored.ExpiresAt = &t
	}
	stored.UpdatedAt = time.Now()
	return nil
}

// UpdateLicenseDomainLimit changes the limit only. It waits for any
// in-flight activation on the license so a limit change cannot interleave
// with a count-and-insert.
func (s *Store) UpdateLicenseDomainLimit(ctx context.Context, id int64, limit *int) error {
	release, err := s.lockLicense(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.licenses[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	stored.DomainLimit = copyInt(limit)
	stored.UpdatedAt = time.Now()
	return nil
}

// DeleteLicense removes a license and, with it, all of its activations.
func (s *Store) DeleteLicense(ctx context.Context, id int64) error {
	release, err := s.lockLicense(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	delete(s.keys, l.LicenseKey)
	delete(s.licenses, id)
	delete(s.activations, id)
	return nil
}

// ListExpiringLicenses returns active licenses whose expiry lies in (from, to].
func (s *Store) ListExpiringLicenses(ctx context.Context, from, to time.Time) ([]license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []license.License{}
	for _, l := range s.licenses {
		if l.Status != license.StatusActive || l.ExpiresAt == nil {
			continue
		}
		if l.ExpiresAt.After(from) && !l.ExpiresAt.After(to) {
			out = append(out, *copyLicense(l))
		}
	}
	sortByID(out, func(l license.License) int64 { return l.ExpiresAt.UnixNano() })
	return out, nil
}
