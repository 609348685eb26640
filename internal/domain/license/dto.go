// internal/domain/license/dto.go
package license

import "time"

type IssueLicenseRequest struct {
	UserID         int64      `json:"user_id" binding:"required,min=1"`
	ProductID      int64      `json:"product_id" binding:"required,min=1"`
	PackageID      int64      `json:"package_id" binding:"required,min=1"`
	SubscriptionID *int64     `json:"subscription_id"`
	DomainLimit    *int       `json:"domain_limit" binding:"omitempty,min=1"` // overrides the package limit
	ExpiresAt      *time.Time `json:"expires_at"`
}

type RenewLicenseRequest struct {
	ExpiresAt *time.Time `json:"expires_at"` // nil = never expires
}

type SetDomainLimitRequest struct {
	DomainLimit *int `json:"domain_limit" binding:"omitempty,min=1"` // nil = unlimited
}

type ListFilters struct {
	UserID    *int64   `form:"user_id"`
	ProductID *int64   `form:"product_id"`
	PackageID *int64   `form:"package_id"`
	Statuses  []Status `form:"status"`
	Page      int      `form:"page" binding:"omitempty,min=1"`
	PageSize  int      `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type ListResponse struct {
	Licenses   []License `json:"licenses"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// Details is a license together with its activations, for admin views.
type Details struct {
	License     *License     `json:"license"`
	Activations []Activation `json:"activations"`
	Used        int          `json:"used"`
	Remaining   *int         `json:"remaining"`
}

// ========== Validation wire contract ==========

type Action string

const (
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionCheck      Action = "check"
)

type ValidateRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	Domain     string `json:"domain" binding:"required"`
	Action     Action `json:"action" binding:"omitempty,oneof=activate deactivate check"`
}

type DeactivateRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	Domain     string `json:"domain" binding:"required"`
}

type Reason string

const (
	ReasonNotFound           Reason = "not_found"
	ReasonInactive           Reason = "inactive"
	ReasonDomainLimitReached Reason = "domain_limit_reached"
	ReasonInvalidDomain      Reason = "invalid_domain"
	ReasonNotActivated       Reason = "not_activated"
)

type ActivationsInfo struct {
	Limit *int `json:"limit"`
	Used  int  `json:"used"`
}

// Verdict is the authoritative answer for a (license key, domain) pair.
type Verdict struct {
	Valid       bool             `json:"valid"`
	Reason      Reason           `json:"reason,omitempty"`
	Status      Status           `json:"status,omitempty"`
	Domain      string           `json:"domain,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at"`
	Activations *ActivationsInfo `json:"activations,omitempty"`
	Product     string           `json:"product,omitempty"`
	Package     string           `json:"package,omitempty"`
	Activated   *bool            `json:"activated,omitempty"`
}

// Used returns the activation count carried by the verdict, or 0.
func (v *Verdict) Used() int {
	if v.Activations == nil {
		return 0
	}
	return v.Activations.Used
}
