// internal/app/router.go
package app

import (
	catalogHandler "license-service/internal/handlers/catalog"
	licenseHandler "license-service/internal/handlers/license"
	sessionHandler "license-service/internal/handlers/session"
	validationHandler "license-service/internal/handlers/validation"
	wsHandler "license-service/internal/handlers/websocket"
	"license-service/internal/metrics"
	"license-service/internal/middleware"
	"license-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	ValidationHandler *validationHandler.ValidationHandler
	LicenseHandler    *licenseHandler.LicenseHandler
	CatalogHandler    *catalogHandler.CatalogHandler
	WSHandler         *wsHandler.WebSocketHandler
	SessionHandler    *sessionHandler.SessionHandler
	AuthMiddleware    *middleware.AuthMiddleware
	RateLimit         gin.HandlerFunc
	Metrics           *metrics.Collector
	Health            gin.HandlerFunc
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Ops ====================
	api.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Validation ====================
	public := api.Group("/licenses")
	public.Use(h.RateLimit)
	{
		public.POST("/validate", h.ValidationHandler.Validate)
		public.POST("/deactivate", h.ValidationHandler.Deactivate)
	}

	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)

	// ==================== Catalog (Admin) ====================
	products := admin.Group("/products")
	{
		products.POST("", h.CatalogHandler.CreateProduct)
		products.GET("", h.CatalogHandler.ListProducts)
		products.GET("/:id", h.CatalogHandler.GetProduct)
		products.PUT("/:id/status", h.CatalogHandler.SetProductStatus)
		products.GET("/:id/packages", h.CatalogHandler.ListPackages)
	}

	packages := admin.Group("/packages")
	{
		packages.POST("", h.CatalogHandler.CreatePackage)
		packages.GET("/:id", h.CatalogHandler.GetPackage)
		packages.PUT("/:id/domain-limit", h.CatalogHandler.UpdatePackageLimit)
		packages.PUT("/:id/status", h.CatalogHandler.SetPackageStatus)
	}

	// ==================== Licenses (Admin) ====================
	licenses := admin.Group("/licenses")
	{
		licenses.POST("", h.LicenseHandler.IssueLicense)
		licenses.GET("", h.LicenseHandler.ListLicenses)
		licenses.GET("/expiring", h.LicenseHandler.ListExpiring)
		licenses.GET("/key/:key", h.LicenseHandler.GetLicenseByKey)
		licenses.GET("/:id", h.LicenseHandler.GetLicense)
		licenses.DELETE("/:id", h.LicenseHandler.DeleteLicense)

		licenses.POST("/:id/suspend", h.LicenseHandler.SuspendLicense)
		licenses.POST("/:id/activate", h.LicenseHandler.ActivateLicense)
		licenses.POST("/:id/cancel", h.LicenseHandler.CancelLicense)
		licenses.POST("/:id/expire", h.LicenseHandler.ExpireLicense)
		licenses.POST("/:id/renew", h.LicenseHandler.RenewLicense)
		licenses.PUT("/:id/domain-limit", h.LicenseHandler.SetDomainLimit)

		licenses.GET("/:id/activations", h.LicenseHandler.ListActivations)
		licenses.DELETE("/:id/activations/:activation_id", h.LicenseHandler.RemoveActivation)
	}

	admin.GET("/ws/stats", h.WSHandler.GetStats)

	// ==================== Operator Sessions ====================
	admin.POST("/session/logout", h.SessionHandler.Logout)
	admin.POST("/tokens/revoke", h.AuthMiddleware.RequireRole(jwt.RoleSuperAdmin), h.SessionHandler.RevokeToken)
}
