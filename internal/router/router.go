// Package router assembles the gin engine, middleware stack and route table.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/handler"
	"github.com/noah-isme/libratrack-api/internal/middleware"
	"github.com/noah-isme/libratrack-api/internal/models"
	"github.com/noah-isme/libratrack-api/internal/service"
	"github.com/noah-isme/libratrack-api/pkg/config"
	"github.com/noah-isme/libratrack-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/libratrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/libratrack-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler wired into the route table.
type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Books         *handler.BookHandler
	Categories    *handler.CategoryHandler
	Schools       *handler.SchoolHandler
	BorrowReqs    *handler.BorrowRequestHandler
	Loans         *handler.LoanHandler
	Favorites     *handler.FavoriteHandler
	Notifications *handler.NotificationHandler
	Settings      *handler.SettingsHandler
	Logs          *handler.LogHandler
	Reports       *handler.ReportHandler
	Dashboard     *handler.DashboardHandler
}

// New builds the gin engine with the full middleware stack and route table.
// auditLogs backs the audit middleware on mutating routes whose services do
// not write their own domain-level audit entries.
func New(cfg *config.Config, logr *zap.Logger, authSvc *service.AuthService, metricsSvc *service.MetricsService, auditLogs middleware.AuditWriter, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), h.Auth.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), h.Auth.ChangePassword)
	}

	staff := []models.UserRole{models.RoleLibrarian, models.RoleAdmin}

	books := api.Group("/books")
	books.Use(middleware.JWT(authSvc))
	{
		books.GET("", h.Books.List)
		books.GET("/:id", h.Books.Get)
		books.POST("", middleware.RequireRoles(staff...), h.Books.Create)
		books.PUT("/:id", middleware.RequireRoles(staff...), h.Books.Update)
		books.DELETE("/:id", middleware.RequireRoles(staff...), h.Books.Archive)
	}

	categories := api.Group("/categories")
	categories.Use(middleware.JWT(authSvc))
	{
		categories.GET("", h.Categories.List)
		categories.POST("", middleware.RequireRoles(staff...), middleware.Audit(auditLogs, models.AuditActionCategoryCreate, "categories"), h.Categories.Create)
		categories.DELETE("/:id", middleware.RequireRoles(staff...), middleware.Audit(auditLogs, models.AuditActionCategoryDelete, "categories"), h.Categories.Delete)
	}

	schools := api.Group("/schools")
	schools.Use(middleware.JWT(authSvc))
	{
		schools.GET("", h.Schools.List)
		schools.GET("/:id", h.Schools.Get)
		schools.POST("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditLogs, models.AuditActionSchoolCreate, "schools"), h.Schools.Create)
		schools.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditLogs, models.AuditActionSchoolUpdate, "schools"), h.Schools.Update)
		schools.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditLogs, models.AuditActionSchoolDelete, "schools"), h.Schools.Delete)
	}

	borrowRequests := api.Group("/borrow-requests")
	borrowRequests.Use(middleware.JWT(authSvc))
	{
		borrowRequests.GET("", h.BorrowReqs.List)
		borrowRequests.POST("", middleware.RequireRoles(models.RoleStudent), h.BorrowReqs.Submit)
		borrowRequests.POST("/:id/approve", middleware.RequireRoles(staff...), h.BorrowReqs.Approve)
		borrowRequests.POST("/:id/reject", middleware.RequireRoles(staff...), h.BorrowReqs.Reject)
	}

	loans := api.Group("/loans")
	loans.Use(middleware.JWT(authSvc))
	{
		loans.GET("", h.Loans.List)
		loans.GET("/:id", h.Loans.Get)
		loans.POST("/:id/return", middleware.RequireRoles(staff...), h.Loans.Return)
		loans.POST("/:id/extend", middleware.RequireRoles(staff...), h.Loans.Extend)
	}

	favorites := api.Group("/favorites")
	favorites.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
	{
		favorites.GET("", h.Favorites.List)
		favorites.POST("", middleware.Audit(auditLogs, models.AuditActionFavoriteAdd, "favorites"), h.Favorites.Add)
		favorites.DELETE("/:id", middleware.Audit(auditLogs, models.AuditActionFavoriteRemove, "favorites"), h.Favorites.Remove)
	}

	users := api.Group("/users")
	users.Use(middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), h.Users.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), h.Users.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Delete)
	}

	notifications := api.Group("/notifications")
	notifications.Use(middleware.JWT(authSvc))
	{
		notifications.GET("", h.Notifications.List)
		notifications.POST("/:id/read", h.Notifications.MarkRead)
	}

	settings := api.Group("/settings")
	settings.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		settings.GET("", h.Settings.List)
		settings.PUT("", h.Settings.Update)
	}

	logs := api.Group("/logs")
	logs.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		logs.GET("", h.Logs.List)
		logs.GET("/export", h.Logs.Export)
	}

	reports := api.Group("/reports")
	reports.Use(middleware.JWT(authSvc), middleware.RequireRoles(staff...))
	{
		reports.GET("/loans", h.Reports.Loans)
	}

	dashboard := api.Group("/dashboard")
	dashboard.Use(middleware.JWT(authSvc), middleware.RequireRoles(staff...))
	{
		dashboard.GET("", h.Dashboard.Stats)
	}

	return r
}
