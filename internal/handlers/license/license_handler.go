// internal/handlers/license/license_handler.go
package license

import (
	"context"
	"net/http"
	"strconv"

	"license-service/internal/domain/license"
	"license-service/internal/middleware"
	"license-service/internal/pkg/response"
	"license-service/internal/service/ledger"
	service "license-service/internal/service/license"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	licenseService *service.LicenseService
	ledger         *ledger.Ledger
	logger         *zap.Logger
}

func NewLicenseHandler(licenseService *service.LicenseService, ledger *ledger.Ledger, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
		ledger:         ledger,
		logger:         logger,
	}
}

// ========== Licenses ==========

// IssueLicense issues a license with a freshly generated key
func (h *LicenseHandler) IssueLicense(c *gin.Context) {
	var req license.IssueLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.licenseService.Issue(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to issue license", err)
		return
	}

	subject, _ := middleware.GetSubject(c)
	h.logger.Info("license issued",
		zap.Int64("license_id", result.ID),
		zap.Int64("user_id", result.UserID),
		zap.String("by", subject))

	response.Success(c, http.StatusCreated, "license issued", result)
}

// GetLicense returns a license with its activations
func (h *LicenseHandler) GetLicense(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.licenseService.Details(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "license not found", err)
		return
	}

	response.Success(c, http.StatusOK, "license retrieved", result)
}

// GetLicenseByKey looks a license up by its key
func (h *LicenseHandler) GetLicenseByKey(c *gin.Context) {
	result, err := h.licenseService.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.FromError(c, "license not found", err)
		return
	}

	response.Success(c, http.StatusOK, "license retrieved", result)
}

func (h *LicenseHandler) ListLicenses(c *gin.Context) {
	var filters license.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.licenseService.List(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to list licenses", err)
		return
	}

	response.Success(c, http.StatusOK, "licenses retrieved", result)
}

// ListExpiring lists active licenses expiring within ?days=N (default 7)
func (h *LicenseHandler) ListExpiring(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 365 {
		response.ValidationError(c, "days must be between 1 and 365", err)
		return
	}

	result, err := h.licenseService.ListExpiring(c.Request.Context(), days)
	if err != nil {
		response.FromError(c, "failed to list expiring licenses", err)
		return
	}

	response.Success(c, http.StatusOK, "expiring licenses retrieved", gin.H{
		"days":     days,
		"licenses": result,
		"count":    len(result),
	})
}

// ========== State transitions ==========

func (h *LicenseHandler) SuspendLicense(c *gin.Context) {
	h.transition(c, "license suspended", h.licenseService.Suspend)
}

func (h *LicenseHandler) ActivateLicense(c *gin.Context) {
	h.transition(c, "license activated", h.licenseService.Activate)
}

func (h *LicenseHandler) CancelLicense(c *gin.Context) {
	h.transition(c, "license cancelled", h.licenseService.Cancel)
}

func (h *LicenseHandler) ExpireLicense(c *gin.Context) {
	h.transition(c, "license expired", h.licenseService.Expire)
}

func (h *LicenseHandler) transition(c *gin.Context, message string, apply func(ctx context.Context, id int64) (*license.License, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := apply(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "status change refused", err)
		return
	}

	response.Success(c, http.StatusOK, message, result)
}

// RenewLicense sets a new expiry and reactivates the license
func (h *LicenseHandler) RenewLicense(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req license.RenewLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.licenseService.Renew(c.Request.Context(), id, req.ExpiresAt)
	if err != nil {
		response.FromError(c, "failed to renew license", err)
		return
	}

	response.Success(c, http.StatusOK, "license renewed", result)
}

// SetDomainLimit overrides the license's domain limit. A null limit means unlimited.
func (h *LicenseHandler) SetDomainLimit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req license.SetDomainLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.licenseService.SetDomainLimit(c.Request.Context(), id, req.DomainLimit)
	if err != nil {
		response.FromError(c, "failed to update domain limit", err)
		return
	}

	response.Success(c, http.StatusOK, "domain limit updated", result)
}

func (h *LicenseHandler) DeleteLicense(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.licenseService.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, "failed to delete license", err)
		return
	}

	response.Success(c, http.StatusOK, "license deleted", nil)
}

// ========== Activations ==========

func (h *LicenseHandler) ListActivations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.licenseService.Get(ctx, id); err != nil {
		response.FromError(c, "license not found", err)
		return
	}

	activations, err := h.ledger.List(ctx, id)
	if err != nil {
		response.FromError(c, "failed to list activations", err)
		return
	}

	response.Success(c, http.StatusOK, "activations retrieved", gin.H{
		"license_id":  id,
		"activations": activations,
		"count":       len(activations),
	})
}

// RemoveActivation frees one activation slot on behalf of the customer
func (h *LicenseHandler) RemoveActivation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	activationID, ok := pathID(c, "activation_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	lic, err := h.licenseService.Get(ctx, id)
	if err != nil {
		response.FromError(c, "license not found", err)
		return
	}

	if err := h.ledger.DeactivateByID(ctx, lic, activationID); err != nil {
		response.FromError(c, "failed to remove activation", err)
		return
	}

	response.Success(c, http.StatusOK, "activation removed", nil)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		response.ValidationError(c, "invalid "+name, err)
		return 0, false
	}
	return id, true
}
