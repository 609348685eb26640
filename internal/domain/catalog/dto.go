// internal/domain/catalog/dto.go
package catalog

type CreateProductRequest struct {
	Name        string  `json:"name" binding:"required"`
	Slug        string  `json:"slug" binding:"required"`
	Description *string `json:"description"`
	DomainLimit *int    `json:"domain_limit" binding:"omitempty,min=1"`
}

type CreatePackageRequest struct {
	ProductID   int64   `json:"product_id" binding:"required,min=1"`
	Name        string  `json:"name" binding:"required"`
	Slug        string  `json:"slug" binding:"required"`
	Price       float64 `json:"price" binding:"min=0"`
	Currency    string  `json:"currency" binding:"required,len=3"`
	DomainLimit *int    `json:"domain_limit" binding:"omitempty,min=1"`
}

type UpdateDomainLimitRequest struct {
	DomainLimit *int `json:"domain_limit" binding:"omitempty,min=1"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required,oneof=active inactive"`
}
