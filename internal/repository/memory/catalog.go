package memory

import (
	"context"
	"time"

	"license-service/internal/domain/catalog"
	xerrors "license-service/internal/pkg/errors"
)

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.Slug == p.Slug {
			return xerrors.ErrDuplicateEntry
		}
	}
	now := time.Now()
	p.ID = s.id()
	p.CreatedAt, p.UpdatedAt = now, now
	stored := *p
	stored.DomainLimit = copyInt(p.DomainLimit)
	s.products[p.ID] = &stored
	return nil
}

func (s *Store) FindProductByID(ctx context.Context, id int64) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	out := *p
	out.DomainLimit = copyInt(p.DomainLimit)
	return &out, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sortByID(out, func(p catalog.Product) int64 { return p.ID })
	return out, nil
}

func (s *Store) UpdateProductStatus(ctx context.Context, id int64, status catalog.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CreatePackage(ctx context.Context, p *catalog.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ProductID]; !ok {
		return xerrors.ErrNotFound
	}
	for _, existing := range s.packages {
		if existing.ProductID == p.ProductID && existing.Slug == p.Slug {
			return xerrors.ErrDuplicateEntry
		}
	}
	now := time.Now()
	p.ID = s.id()
	p.CreatedAt, p.UpdatedAt = now, now
	stored := *p
	stored.DomainLimit = copyInt(p.DomainLimit)
	s.packages[p.ID] = &stored
	return nil
}

func (s *Store) FindPackageByID(ctx context.Context, id int64) (*catalog.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.packages[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	out := *p
	out.DomainLimit = copyInt(p.DomainLimit)
	return &out, nil
}

func (s *Store) ListPackages(ctx context.Context, productID int64) ([]catalog.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []catalog.Package{}
	for _, p := range s.packages {
		if p.ProductID == productID {
			out = append(out, *p)
		}
	}
	sortByID(out, func(p catalog.Package) int64 { return p.ID })
	return out, nil
}

func (s *Store) UpdatePackageDomainLimit(ctx context.Context, id int64, limit *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	p.DomainLimit = copyInt(limit)
	p.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdatePackageStatus(ctx context.Context, id int64, status catalog.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}
