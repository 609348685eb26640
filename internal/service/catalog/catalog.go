// internal/service/catalog/catalog.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"license-service/internal/domain/catalog"
	xerrors "license-service/internal/pkg/errors"

	"go.uber.org/zap"
)

type Repository interface {
	CreateProduct(ctx context.Context, p *catalog.Product) error
	FindProductByID(ctx context.Context, id int64) (*catalog.Product, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	UpdateProductStatus(ctx context.Context, id int64, status catalog.Status) error
	CreatePackage(ctx context.Context, p *catalog.Package) error
	FindPackageByID(ctx context.Context, id int64) (*catalog.Package, error)
	ListPackages(ctx context.Context, productID int64) ([]catalog.Package, error)
	UpdatePackageDomainLimit(ctx context.Context, id int64, limit *int) error
	UpdatePackageStatus(ctx context.Context, id int64, status catalog.Status) error
}

type CatalogService struct {
	repo   Repository
	logger *zap.Logger
}

func NewCatalogService(repo Repository, logger *zap.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

// ========== Products ==========

func (s *CatalogService) CreateProduct(ctx context.Context, req *catalog.CreateProductRequest) (*catalog.Product, error) {
	p := &catalog.Product{
		Name:        strings.TrimSpace(req.Name),
		Slug:        strings.ToLower(strings.TrimSpace(req.Slug)),
		Description: req.Description,
		DomainLimit: req.DomainLimit,
		Status:      catalog.StatusActive,
	}
	if p.Name == "" || p.Slug == "" {
		return nil, fmt.Errorf("%w: name and slug are required", xerrors.ErrInvalidInput)
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return nil, fmt.Errorf("%w: product slug %q already exists", xerrors.ErrConflict, p.Slug)
		}
		s.logger.Error("failed to create product", zap.Error(err))
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	return s.repo.FindProductByID(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *CatalogService) SetProductStatus(ctx context.Context, id int64, status catalog.Status) error {
	if err := s.repo.UpdateProductStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info("product status changed", zap.Int64("product_id", id), zap.String("status", string(status)))
	return nil
}

// ========== Packages ==========

func (s *CatalogService) CreatePackage(ctx context.Context, req *catalog.CreatePackageRequest) (*catalog.Package, error) {
	if _, err := s.repo.FindProductByID(ctx, req.ProductID); err != nil {
		return nil, err
	}

	p := &catalog.Package{
		ProductID:   req.ProductID,
		Name:        strings.TrimSpace(req.Name),
		Slug:        strings.ToLower(strings.TrimSpace(req.Slug)),
		Price:       req.Price,
		Currency:    strings.ToUpper(req.Currency),
		DomainLimit: req.DomainLimit,
		Status:      catalog.StatusActive,
	}
	if p.Name == "" || p.Slug == "" {
		return nil, fmt.Errorf("%w: name and slug are required", xerrors.ErrInvalidInput)
	}

	if err := s.repo.CreatePackage(ctx, p); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return nil, fmt.Errorf("%w: package slug %q already exists", xerrors.ErrConflict, p.Slug)
		}
		s.logger.Error("failed to create package", zap.Int64("product_id", req.ProductID), zap.Error(err))
		return nil, fmt.Errorf("failed to create package: %w", err)
	}

	s.logger.Info("package created",
		zap.Int64("package_id", p.ID),
		zap.Int64("product_id", p.ProductID),
		zap.String("slug", p.Slug),
	)
	return p, nil
}

func (s *CatalogService) GetPackage(ctx context.Context, id int64) (*catalog.Package, error) {
	return s.repo.FindPackageByID(ctx, id)
}

func (s *CatalogService) ListPackages(ctx context.Context, productID int64) ([]catalog.Package, error) {
	if _, err := s.repo.FindProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListPackages(ctx, productID)
}

// UpdatePackageLimit changes the limit future licenses of the package
// receive. Licenses already issued keep the limit they were created with.
func (s *CatalogService) UpdatePackageLimit(ctx context.Context, id int64, limit *int) (*catalog.Package, error) {
	if limit != nil && *limit < 1 {
		return nil, fmt.Errorf("%w: domain limit must be positive", xerrors.ErrInvalidInput)
	}
	if err := s.repo.UpdatePackageDomainLimit(ctx, id, limit); err != nil {
		return nil, err
	}
	s.logger.Info("package domain limit updated", zap.Int64("package_id", id), zap.Any("domain_limit", limit))
	return s.repo.FindPackageByID(ctx, id)
}

func (s *CatalogService) SetPackageStatus(ctx context.Context, id int64, status catalog.Status) error {
	if err := s.repo.UpdatePackageStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info("package status changed", zap.Int64("package_id", id), zap.String("status", string(status)))
	return nil
}

// ResolveForIssue loads the product and package a license is issued from and
// refuses inactive or mismatched pairs.
func (s *CatalogService) ResolveForIssue(ctx context.Context, productID, packageID int64) (*catalog.Product, *catalog.Package, error) {
	product, err := s.repo.FindProductByID(ctx, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("product %d: %w", productID, err)
	}
	pkg, err := s.repo.FindPackageByID(ctx, packageID)
	if err != nil {
		return nil, nil, fmt.Errorf("package %d: %w", packageID, err)
	}
	if pkg.ProductID != product.ID {
		return nil, nil, fmt.Errorf("%w: package %d does not belong to product %d", xerrors.ErrInvalidInput, packageID, productID)
	}
	if product.Status != catalog.StatusActive || pkg.Status != catalog.StatusActive {
		return nil, nil, fmt.Errorf("%w: product or package is inactive", xerrors.ErrInvalidInput)
	}
	return product, pkg, nil
}
