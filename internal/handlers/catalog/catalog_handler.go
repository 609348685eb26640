// internal/handlers/catalog/catalog_handler.go
package catalog

import (
	"net/http"
	"strconv"

	"license-service/internal/domain/catalog"
	"license-service/internal/pkg/response"
	service "license-service/internal/service/catalog"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService *service.CatalogService
}

func NewCatalogHandler(catalogService *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
	}
}

// ========== Products ==========

func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req catalog.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.catalogService.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create product", err)
		return
	}

	response.Success(c, http.StatusCreated, "product created", result)
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.catalogService.GetProduct(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "product not found", err)
		return
	}

	response.Success(c, http.StatusOK, "product retrieved", result)
}

func (h *CatalogHandler) ListProducts(c *gin.Context) {
	result, err := h.catalogService.ListProducts(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to list products", err)
		return
	}

	response.Success(c, http.StatusOK, "products retrieved", result)
}

func (h *CatalogHandler) SetProductStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req catalog.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.catalogService.SetProductStatus(c.Request.Context(), id, req.Status); err != nil {
		response.FromError(c, "failed to update product", err)
		return
	}

	response.Success(c, http.StatusOK, "product status updated", gin.H{"id": id, "status": req.Status})
}

// ========== Packages ==========

func (h *CatalogHandler) CreatePackage(c *gin.Context) {
	var req catalog.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.catalogService.CreatePackage(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create package", err)
		return
	}

	response.Success(c, http.StatusCreated, "package created", result)
}

func (h *CatalogHandler) GetPackage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.catalogService.GetPackage(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "package not found", err)
		return
	}

	response.Success(c, http.StatusOK, "package retrieved", result)
}

// ListPackages lists the packages of the product in the path
func (h *CatalogHandler) ListPackages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.catalogService.ListPackages(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to list packages", err)
		return
	}

	response.Success(c, http.StatusOK, "packages retrieved", result)
}

// UpdatePackageLimit changes the default for licenses issued from now on
func (h *CatalogHandler) UpdatePackageLimit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req catalog.UpdateDomainLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.catalogService.UpdatePackageLimit(c.Request.Context(), id, req.DomainLimit)
	if err != nil {
		response.FromError(c, "failed to update package", err)
		return
	}

	response.Success(c, http.StatusOK, "package limit updated", result)
}

func (h *CatalogHandler) SetPackageStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req catalog.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.catalogService.SetPackageStatus(c.Request.Context(), id, req.Status); err != nil {
		response.FromError(c, "failed to update package", err)
		return
	}

	response.Success(c, http.StatusOK, "package status updated", gin.H{"id": id, "status": req.Status})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		response.ValidationError(c, "invalid "+name, err)
		return 0, false
	}
	return id, true
}
