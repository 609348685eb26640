// internal/domain/license/entity.go
package license

import (
	"fmt"
	"time"

	xerrors "license-service/internal/pkg/errors"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

type License struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	ProductID      int64      `json:"product_id" db:"product_id"`
	PackageID      int64      `json:"package_id" db:"package_id"`
	SubscriptionID *int64     `json:"subscription_id,omitempty" db:"subscription_id"`
	LicenseKey     string     `json:"license_key" db:"license_key"`
	Status         Status     `json:"status" db:"status"`
	DomainLimit    *int       `json:"domain_limit" db:"domain_limit"` // nil = unlimited
	ExpiresAt      *time.Time `json:"expires_at" db:"expires_at"`     // nil = never

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ExpiredAt reports whether the license's expiry date has passed at now.
func (l *License) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// IsActiveAt is true only when the stored status is active and the expiry
// date, if any, lies after now. Expiry is evaluated lazily; a stored status
// of active does not make an expired license valid.
func (l *License) IsActiveAt(now time.Time) bool {
	return l.Status == StatusActive && !l.ExpiredAt(now)
}

func (l *License) IsActive() bool {
	return l.IsActiveAt(time.Now())
}

// EffectiveStatus is the status reported to clients: a license whose stored
// status is active but whose expiry date has passed reports expired.
func (l *License) EffectiveStatus(now time.Time) Status {
	if l.Status == StatusActive && l.ExpiredAt(now) {
		return StatusExpired
	}
	return l.Status
}

// Unlimited reports whether the license may activate any number of domains.
func (l *License) Unlimited() bool {
	return l.DomainLimit == nil
}

// Remaining returns how many more domains may be activated given used
// activations, or nil when unlimited.
func (l *License) Remaining(used int) *int {
	if l.DomainLimit == nil {
		return nil
	}
	left := *l.DomainLimit - used
	if left < 0 {
		left = 0
	}
	return &left
}

// ========== State machine ==========
//
//   active    --Suspend--> suspended
//   suspended --Activate-> active
//   expired   --Activate-> active
//   cancelled --Activate-> active
//   *         --Cancel---> cancelled
//   active|suspended --Expire--> expired
//
// Restating the current state is a no-op, never an error.

// Suspend moves an active license to suspended.
func (l *License) Suspend() error {
	switch l.Status {
	case StatusSuspended:
		return nil
	case StatusActive:
		l.Status = StatusSuspended
		return nil
	}
	return transitionError(l.Status, StatusSuspended)
}

// Activate (re)activates a suspended, expired or cancelled license. It does
// not touch expires_at: a license whose date has passed stays invalid until
// it is renewed.
func (l *License) Activate() error {
	if !l.Status.Valid() {
		return transitionError(l.Status, StatusActive)
	}
	l.Status = StatusActive
	return nil
}

// Cancel moves a license in any state to cancelled.
func (l *License) Cancel() error {
	if !l.Status.Valid() {
		return transitionError(l.Status, StatusCancelled)
	}
	l.Status = StatusCancelled
	return nil
}

// Expire stores the expired status explicitly.
func (l *License) Expire() error {
	switch l.Status {
	case StatusExpired:
		return nil
	case StatusActive, StatusSuspended:
		l.Status = StatusExpired
		return nil
	}
	return transitionError(l.Status, StatusExpired)
}

// Renew sets a new expiry date and reactivates the license.
func (l *License) Renew(expiresAt *time.Time, now time.Time) error {
	if expiresAt != nil && !expiresAt.After(now) {
		return fmt.Errorf("%w: expiry must be in the future", xerrors.ErrInvalidInput)
	}
	if err := l.Activate(); err != nil {
		return err
	}
	l.ExpiresAt = expiresAt
	return nil
}

// Transition applies the named target status through the state machine.
func (l *License) Transition(to Status) error {
	switch to {
	case StatusActive:
		return l.Activate()
	case StatusSuspended:
		return l.Suspend()
	case StatusCancelled:
		return l.Cancel()
	case StatusExpired:
		return l.Expire()
	}
	return fmt.Errorf("%w: unknown status %q", xerrors.ErrInvalidInput, to)
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", xerrors.ErrInvalidTransition, from, to)
}
