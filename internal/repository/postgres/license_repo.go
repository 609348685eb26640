// internal/repository/postgres/license_repo.go
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"license-service/internal/domain/license"
	xerrors "license-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const licenseColumns = `id, user_id, product_id, package_id, subscription_id, license_key,
	       status, domain_limit, expires_at, created_at, updated_at`

type LicenseRepository struct {
	db *pgxpool.Pool
}

func NewLicenseRepository(db *pgxpool.Pool) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func scanLicense(row pgx.Row) (*license.License, error) {
	var l license.License
	var status string
	err := row.Scan(
		&l.ID, &l.UserID, &l.ProductID, &l.PackageID, &l.SubscriptionID, &l.LicenseKey,
		&status, &l.DomainLimit, &l.ExpiresAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Status = license.Status(status)
	return &l, nil
}

// CreateLicense inserts a license. A taken license_key surfaces as
// xerrors.ErrDuplicateEntry so the issuer can retry with a new key.
func (r *LicenseRepository) CreateLicense(ctx context.Context, l *license.License) error {
	query := `
		INSERT INTO licenses (
			user_id, product_id, package_id, subscription_id, license_key,
			status, domain_limit, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		l.UserID, l.ProductID, l.PackageID, l.SubscriptionID, l.LicenseKey,
		string(l.Status), l.DomainLimit, l.ExpiresAt,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *LicenseRepository) FindLicenseByID(ctx context.Context, id int64) (*license.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = $1`

	l, err := scanLicense(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err := classify(err); xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find license: %w", err)
	}
	return l, nil
}

func (r *LicenseRepository) FindLicenseByKey(ctx context.Context, key string) (*license.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`

	l, err := scanLicense(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if err := classify(err); xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find license: %w", err)
	}
	return l, nil
}

func (r *LicenseRepository) LicenseKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM licenses WHERE license_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check license key: %w", err)
	}
	return exists, nil
}

func (r *LicenseRepository) ListLicenses(ctx context.Context, filters *license.ListFilters) ([]license.License, int64, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if filters.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argPos))
		args = append(args, *filters.UserID)
		argPos++
	}
	if filters.ProductID != nil {
		where = append(where, fmt.Sprintf("product_id = $%d", argPos))
		args = append(args, *filters.ProductID)
		argPos++
	}
	if filters.PackageID != nil {
		where = append(where, fmt.Sprintf("package_id = $%d", argPos))
		args = append(args, *filters.PackageID)
		argPos++
	}
	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", argPos))
		args = append(args, pq.Array(statuses))
		argPos++
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM licenses WHERE " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	page, size := filters.Page, filters.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		licenseColumns, whereClause, argPos, argPos+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	licenses := []license.License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, *l)
	}
	return licenses, total, rows.Err()
}

// UpdateLicenseStatus is a compare-and-set on status: it only applies when
// the stored status still equals from.
func (r *LicenseRepository) UpdateLicenseStatus(ctx context.Context, id int64, from, to license.Status) error {
	query := `
		UPDATE licenses SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", classify(err))
	}
	if result.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// RenewLicense writes the new expiry and status with the same
// compare-and-set on the previous status as UpdateLicenseStatus.
func (r *LicenseRepository) RenewLicense(ctx context.Context, id int64, from, to license.Status, expiresAt *time.Time) error {
	query := `
		UPDATE licenses SET status = $1, expires_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, string(to), expiresAt, id, string(from))
	if err != nil {
		return fmt.Errorf("failed to renew license: %w", classify(err))
	}
	if result.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// UpdateLicenseDomainLimit touches domain_limit only. The row lock it takes
// makes it wait for any activation in flight on the same license.
func (r *LicenseRepository) UpdateLicenseDomainLimit(ctx context.Context, id int64, limit *int) error {
	result, err := r.db.Exec(ctx, `UPDATE licenses SET domain_limit = $1, updated_at = NOW() WHERE id = $2`, limit, id)
	if err != nil {
		return fmt.Errorf("failed to update domain limit: %w", classify(err))
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *LicenseRepository) missingOrConflict(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM licenses WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check license: %w", err)
	}
	if !exists {
		return xerrors.ErrNotFound
	}
	return xerrors.ErrConflict
}

// DeleteLicense removes the license; activations go with it via ON DELETE CASCADE.
func (r *LicenseRepository) DeleteLicense(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", classify(err))
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *LicenseRepository) ListExpiringLicenses(ctx context.Context, from, to time.Time) ([]license.License, error) {
	query := `SELECT ` + licenseColumns + `
		FROM licenses
		WHERE status = 'active' AND expires_at > $1 AND expires_at <= $2
		ORDER BY expires_at ASC`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring licenses: %w", err)
	}
	defer rows.Close()

	licenses := []license.License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, *l)
	}
	return licenses, rows.Err()
}
