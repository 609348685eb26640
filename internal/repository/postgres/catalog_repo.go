// internal/repository/postgres/catalog_repo.go
package postgres

import (
	"context"
	"fmt"

	"license-service/internal/domain/catalog"
	xerrors "license-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ========== Products ==========

func scanProduct(row pgx.Row) (*catalog.Product, error) {
	var p catalog.Product
	var status string
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.DomainLimit, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = catalog.Status(status)
	return &p, nil
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	query := `
		INSERT INTO products (name, slug, description, domain_limit, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, p.Name, p.Slug, p.Description, p.DomainLimit, string(p.Status)).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *CatalogRepository) FindProductByID(ctx context.Context, id int64) (*catalog.Product, error) {
	query := `
		SELECT id, name, slug, description, domain_limit, status, created_at, updated_at
		FROM products WHERE id = $1
	`
	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err := classify(err); xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return p, nil
}

func (r *CatalogRepository) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, slug, description, domain_limit, status, created_at, updated_at
		FROM products ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []catalog.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *CatalogRepository) UpdateProductStatus(ctx context.Context, id int64, status catalog.Status) error {
	result, err := r.db.Exec(ctx, `UPDATE products SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update product status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ========== Packages ==========

func scanPackage(row pgx.Row) (*catalog.Package, error) {
	var p catalog.Package
	var status string
	err := row.Scan(&p.ID, &p.ProductID, &p.Name, &p.Slug, &p.Price, &p.Currency,
		&p.DomainLimit, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = catalog.Status(status)
	return &p, nil
}

const packageColumns = `id, product_id, name, slug, price::float8, currency, domain_limit, status, created_at, updated_at`

func (r *CatalogRepository) CreatePackage(ctx context.Context, p *catalog.Package) error {
	query := `
		INSERT INTO packages (product_id, name, slug, price, currency, domain_limit, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ProductID, p.Name, p.Slug, p.Price, p.Currency, p.DomainLimit, string(p.Status),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *CatalogRepository) FindPackageByID(ctx context.Context, id int64) (*catalog.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = $1`
	p, err := scanPackage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err := classify(err); xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find package: %w", err)
	}
	return p, nil
}

func (r *CatalogRepository) ListPackages(ctx context.Context, productID int64) ([]catalog.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE product_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	packages := []catalog.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, *p)
	}
	return packages, rows.Err()
}

// UpdatePackageDomainLimit changes the default for future licenses only;
// issued licenses carry their own copy.
func (r *CatalogRepository) UpdatePackageDomainLimit(ctx context.Context, id int64, limit *int) error {
	result, err := r.db.Exec(ctx, `UPDATE packages SET domain_limit = $1, updated_at = NOW() WHERE id = $2`, limit, id)
	if err != nil {
		return fmt.Errorf("failed to update package limit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *CatalogRepository) UpdatePackageStatus(ctx context.Context, id int64, status catalog.Status) error {
	result, err := r.db.Exec(ctx, `UPDATE packages SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update package status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
