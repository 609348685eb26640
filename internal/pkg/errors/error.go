package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrRateLimited    = errors.New("too many requests")
	ErrBadRequest     = errors.New("bad request")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Licensing errors
var (
	ErrInvalidDomain       = fmt.Errorf("%w: invalid domain", ErrInvalidInput)
	ErrInvalidKey          = fmt.Errorf("%w: invalid license key", ErrInvalidInput)
	ErrInvalidTransition   = errors.New("invalid license status transition")
	ErrDomainLimitReached  = errors.New("domain limit reached")
	ErrLicenseInactive     = errors.New("license is not active")
	ErrConcurrencyConflict = errors.New("concurrent modification, retry later")
	ErrKeyspaceExhausted   = errors.New("could not generate a unique license key")
)

// DomainLimitReachedError is returned by the activation ledger when a license
// already holds as many domains as it is allowed to.
type DomainLimitReachedError struct {
	Limit int
	Used  int
}

func (e *DomainLimitReachedError) Error() string {
	return fmt.Sprintf("domain limit reached: %d of %d domains in use", e.Used, e.Limit)
}

func (e *DomainLimitReachedError) Is(target error) bool {
	return target == ErrDomainLimitReached
}

// AsDomainLimit extracts a DomainLimitReachedError from err.
func AsDomainLimit(err error) (*DomainLimitReachedError, bool) {
	var limitErr *DomainLimitReachedError
	if errors.As(err, &limitErr) {
		return limitErr, true
	}
	return nil, false
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
