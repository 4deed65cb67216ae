package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session      *handler.SessionHandler
	AdminSession *handler.AdminSessionHandler
	WS           *handler.WSHandler
	System       *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.TokenValidator,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Compress(5, middleware.DefaultCompressMinLength))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Student Group (JWT + Rate Limit) ───────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(auth), limiter.Middleware(), middleware.NoStore())
	{
		studentAPI.POST("/exams/:exam_id/session", handlers.Session.StartSession)
		studentAPI.GET("/results", handlers.Session.ListResults)

		sessionGroup := studentAPI.Group("/session")
		{
			sessionGroup.GET("", handlers.Session.GetSession)
			sessionGroup.POST("/begin", handlers.Session.Begin)
			sessionGroup.POST("/navigate", handlers.Session.Navigate)
			sessionGroup.POST("/instructions", handlers.Session.ShowInstructions)
			sessionGroup.PUT("/answer", handlers.Session.RecordAnswer)
			sessionGroup.POST("/submit", handlers.Session.RequestSubmit)
			sessionGroup.POST("/confirm", handlers.Session.ConfirmSubmit)
			sessionGroup.POST("/close", handlers.Session.Close)
			sessionGroup.POST("/release", handlers.Session.Release)
		}
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(auth))
	{
		ws.GET("/student/session", handlers.WS.SessionStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(auth), middleware.NoStore())
	{
		adminAPI.GET("/sessions",
			middleware.RequireAnyPermission(model.PermissionSessionsRead, model.PermissionSessionsOverride),
			handlers.AdminSession.ListSessions,
		)
		adminAPI.GET("/sessions/:student_id",
			middleware.RequireAnyPermission(model.PermissionSessionsRead, model.PermissionSessionsOverride),
			handlers.AdminSession.InspectSession,
		)
		adminAPI.POST("/sessions/:student_id/abort",
			middleware.RequirePermission(model.PermissionSessionsOverride),
			handlers.AdminSession.ForceAbort,
		)
		adminAPI.POST("/sessions/:student_id/submit",
			middleware.RequirePermission(model.PermissionSessionsOverride),
			handlers.AdminSession.ForceSubmit,
		)
		adminAPI.GET("/system/metrics",
			middleware.RequirePermission(model.PermissionSessionsRead),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
