package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/edu-portal-api/api/swagger"
	"github.com/noah-isme/edu-portal-api/internal/middleware"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/pkg/config"
	"github.com/noah-isme/edu-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-portal-api/pkg/middleware/requestid"
)

// NewRouter registers every HTTP route served by the API.
func NewRouter(c *Container) *gin.Engine {
	if c.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(c.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(c.Metrics, "/health", "/ready", "/metrics"))

	r.GET("/health", c.HealthHandler.Health)
	r.GET("/ready", c.HealthHandler.Ready)
	r.GET("/metrics", c.HealthHandler.Prometheus)

	if c.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	public := r.Group(c.Config.APIPrefix)
	public.GET("/ledger/snapshots/:token", c.SnapshotHandler.Download)

	api := r.Group(c.Config.APIPrefix)
	api.Use(middleware.JWT(c.Auth))

	requests := api.Group("/purchase-requests")
	requests.GET("", c.PurchaseRequestHandler.List)
	requests.GET("/:id", c.PurchaseRequestHandler.Get)
	requests.POST("", middleware.Audit(c.Audit, c.Logger, models.AuditActionRequestCreate, "purchase_request"), c.PurchaseRequestHandler.Create)
	requests.PUT("/:id", middleware.Audit(c.Audit, c.Logger, models.AuditActionRequestUpdate, "purchase_request"), c.PurchaseRequestHandler.Update)
	requests.DELETE("/:id", middleware.Audit(c.Audit, c.Logger, models.AuditActionRequestDelete, "purchase_request"), c.PurchaseRequestHandler.Delete)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/purchase-requests/processed", c.AdminHandler.SetProcessed)
	admin.GET("/purchase-requests/:id/history", c.AdminHandler.History)
	admin.GET("/access-grants", c.AdminHandler.ListAccess)
	admin.POST("/access-grants", c.AdminHandler.GrantAccess)
	admin.DELETE("/access-grants", c.AdminHandler.RevokeAccess)
	admin.POST("/ledger/reconcile", c.LedgerHandler.Reconcile)
	admin.GET("/ledger/export", c.LedgerHandler.Export)
	admin.POST("/ledger/snapshots", c.SnapshotHandler.Create)

	return r
}
