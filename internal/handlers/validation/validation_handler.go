// internal/handlers/validation/validation_handler.go
package validation

import (
	"net/http"

	"license-service/internal/domain/license"
	"license-service/internal/pkg/response"
	service "license-service/internal/service/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ValidationHandler struct {
	validationService *service.ValidationService
	logger            *zap.Logger
}

func NewValidationHandler(validationService *service.ValidationService, logger *zap.Logger) *ValidationHandler {
	return &ValidationHandler{
		validationService: validationService,
		logger:            logger,
	}
}

// Validate answers whether the key may be used on the domain. The action
// field selects activate (default), check or deactivate.
func (h *ValidationHandler) Validate(c *gin.Context) {
	var req license.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if req.Action == license.ActionDeactivate {
		h.deactivate(c, req.LicenseKey, req.Domain)
		return
	}

	ctx := c.Request.Context()
	var (
		verdict *license.Verdict
		err     error
	)
	switch req.Action {
	case license.ActionCheck:
		verdict, err = h.validationService.Check(ctx, req.LicenseKey, req.Domain)
	default:
		verdict, err = h.validationService.Validate(ctx, req.LicenseKey, req.Domain, service.Caller{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
	}
	if err != nil {
		h.logger.Warn("validation failed", zap.String("action", string(req.Action)), zap.Error(err))
		response.FromError(c, "validation unavailable, retry shortly", err)
		return
	}

	h.respond(c, verdict)
}

// Deactivate frees the slot the domain holds on the license.
func (h *ValidationHandler) Deactivate(c *gin.Context) {
	var req license.DeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	h.deactivate(c, req.LicenseKey, req.Domain)
}

func (h *ValidationHandler) deactivate(c *gin.Context, key, domain string) {
	verdict, err := h.validationService.Deactivate(c.Request.Context(), key, domain)
	if err != nil {
		h.logger.Warn("deactivation failed", zap.Error(err))
		response.FromError(c, "deactivation unavailable, retry shortly", err)
		return
	}

	if verdict.Reason == "" || verdict.Reason == license.ReasonInactive {
		// the slot was freed; an inactive license only colours the verdict
		response.Success(c, http.StatusOK, "domain deactivated", verdict)
		return
	}
	h.respond(c, verdict)
}

func (h *ValidationHandler) respond(c *gin.Context, v *license.Verdict) {
	if v.Valid {
		response.Success(c, http.StatusOK, "license valid", v)
		return
	}
	status, message := verdictStatus(v.Reason)
	response.Fail(c, status, string(v.Reason), message, v)
}

func verdictStatus(reason license.Reason) (int, string) {
	switch reason {
	case license.ReasonNotFound:
		return http.StatusNotFound, "license not found"
	case license.ReasonInactive:
		return http.StatusForbidden, "license is not active"
	case license.ReasonDomainLimitReached:
		return http.StatusConflict, "domain limit reached"
	case license.ReasonInvalidDomain:
		return http.StatusUnprocessableEntity, "invalid domain"
	case license.ReasonNotActivated:
		return http.StatusNotFound, "domain is not activated for this license"
	}
	return http.StatusBadRequest, "license invalid"
}
