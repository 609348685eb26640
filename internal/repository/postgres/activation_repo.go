// internal/repository/postgres/activation_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"license-service/internal/domain/license"
	xerrors "license-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ActivationRepository struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

func NewActivationRepository(db *pgxpool.Pool, lockTimeout time.Duration) *ActivationRepository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &ActivationRepository{db: db, lockTimeout: lockTimeout}
}

// ActivateIfUnderLimit runs the activation critical section in one
// transaction holding the license row lock. lock_timeout bounds the wait;
// hitting it (or losing a unique race) comes back as ErrConcurrencyConflict
// and the transaction is rolled back, so no partial row survives.
func (r *ActivationRepository) ActivateIfUnderLimit(ctx context.Context, op license.ActivateIfUnderLimit) (*license.ActivationOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// SET does not take bind parameters
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}

	var (
		status    string
		expiresAt *time.Time
		limit     *int
	)
	err = tx.QueryRow(ctx, `
		SELECT status, expires_at, domain_limit
		FROM licenses WHERE id = $1
		FOR UPDATE
	`, op.LicenseID).Scan(&status, &expiresAt, &limit)
	if err != nil {
		return nil, classify(err)
	}

	lic := license.License{Status: license.Status(status), ExpiresAt: expiresAt}
	if !lic.IsActiveAt(op.At) {
		return nil, xerrors.ErrLicenseInactive
	}

	existing, err := r.touch(ctx, tx, op)
	if err != nil {
		return nil, err
	}

	var used int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM license_activations WHERE license_id = $1`, op.LicenseID).Scan(&used); err != nil {
		return nil, fmt.Errorf("failed to count activations: %w", err)
	}

	if existing != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, classify(err)
		}
		return &license.ActivationOutcome{Activation: existing, Created: false, Used: used, Limit: limit}, nil
	}

	if limit != nil && used >= *limit {
		return nil, &xerrors.DomainLimitReachedError{Limit: *limit, Used: used}
	}

	a := op.NewActivation()
	err = tx.QueryRow(ctx, `
		INSERT INTO license_activations (license_id, domain, ip_address, user_agent, activated_at, last_checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, a.LicenseID, a.Domain, a.IPAddress, a.UserAgent, a.ActivatedAt, a.LastCheckedAt).Scan(&a.ID)
	if err != nil {
		return nil, classifyInsert(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return &license.ActivationOutcome{Activation: a, Created: true, Used: used + 1, Limit: limit}, nil
}

// classifyInsert treats a unique violation on (license_id, domain) as a lost
// race with another activation of the same domain, so the ledger retries and
// finds the committed row on the next attempt.
func classifyInsert(err error) error {
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("%w: %v", xerrors.ErrConcurrencyConflict, err)
	}
	return classify(err)
}

// touch refreshes last_checked_at on an existing activation and returns it,
// or nil when the domain is not yet activated.
func (r *ActivationRepository) touch(ctx context.Context, tx pgx.Tx, op license.ActivateIfUnderLimit) (*license.Activation, error) {
	a, err := scanActivation(tx.QueryRow(ctx, `
		UPDATE license_activations SET last_checked_at = $3
		WHERE license_id = $1 AND domain = $2
		RETURNING `+activationColumns,
		op.LicenseID, op.Domain, op.At))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return a, nil
}

const activationColumns = `id, license_id, domain, ip_address, user_agent, activated_at, last_checked_at`

func scanActivation(row pgx.Row) (*license.Activation, error) {
	var a license.Activation
	err := row.Scan(&a.ID, &a.LicenseID, &a.Domain, &a.IPAddress, &a.UserAgent, &a.ActivatedAt, &a.LastCheckedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ActivationRepository) DeleteByDomain(ctx context.Context, licenseID int64, domain string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM license_activations WHERE license_id = $1 AND domain = $2`, licenseID, domain)
	if err != nil {
		return fmt.Errorf("failed to delete activation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *ActivationRepository) DeleteByID(ctx context.Context, licenseID, activationID int64) (*license.Activation, error) {
	a, err := scanActivation(r.db.QueryRow(ctx, `
		DELETE FROM license_activations WHERE id = $1 AND license_id = $2
		RETURNING `+activationColumns, activationID, licenseID))
	if err != nil {
		if err := classify(err); xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete activation: %w", err)
	}
	return a, nil
}

// CountByLicense reads committed rows only; an activation rolled back by
// a failed critical section is never counted.
func (r *ActivationRepository) CountByLicense(ctx context.Context, licenseID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM license_activations WHERE license_id = $1`, licenseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activations: %w", err)
	}
	return n, nil
}

func (r *ActivationRepository) ListByLicense(ctx context.Context, licenseID int64) ([]license.Activation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+activationColumns+`
		FROM license_activations WHERE license_id = $1
		ORDER BY activated_at, id
	`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}
	defer rows.Close()

	activations := []license.Activation{}
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activation: %w", err)
		}
		activations = append(activations, *a)
	}
	return activations, rows.Err()
}
