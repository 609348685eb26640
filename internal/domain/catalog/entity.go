// internal/domain/catalog/entity.go
package catalog

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Product struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description *string   `json:"description,omitempty" db:"description"`
	DomainLimit *int      `json:"domain_limit" db:"domain_limit"` // default for its packages
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Package is a purchasable variant of a product. Its DomainLimit is copied
// onto every license issued from it; later changes do not reach those licenses.
type Package struct {
	ID          int64     `json:"id" db:"id"`
	ProductID   int64     `json:"product_id" db:"product_id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Price       float64   `json:"price" db:"price"`
	Currency    string    `json:"currency" db:"currency"`
	DomainLimit *int      `json:"domain_limit" db:"domain_limit"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ResolveDomainLimit picks the limit a new license gets: an explicit
// override first, then the package, then the product. nil means unlimited.
func ResolveDomainLimit(override *int, pkg *Package, product *Product) *int {
	pick := override
	if pick == nil && pkg != nil {
		pick = pkg.DomainLimit
	}
	if pick == nil && product != nil {
		pick = product.DomainLimit
	}
	if pick == nil {
		return nil
	}
	v := *pick
	return &v
}
