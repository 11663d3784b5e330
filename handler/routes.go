package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendguard/middleware"
	"attendguard/utils"
)

type RouterConfig struct {
	JWTSecretKey   string
	JWTIssuer      string
	AllowedOrigins []string
	SecureCookies  bool
	MaxBodyBytes   int64
}

func SetupRouter(attendance *AttendanceHandler, health *HealthHandler, cfg RouterConfig) *gin.Engine {
	utils.InitValidator()

	router := gin.New()
	router.Use(middleware.EnhancedRecoveryMiddleware())
	router.Use(middleware.RequestTracingMiddleware())
	router.Use(middleware.RequestLoggerMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())

	// Public routes
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/health", health.Health)

	// Protected routes, all tied to the calling device
	protected := router.Group("/api")
	protected.Use(middleware.CacheControlMiddleware("no-store"))
	protected.Use(middleware.RequestSizeLimiter(cfg.MaxBodyBytes))
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecretKey, cfg.JWTIssuer))
	protected.Use(middleware.DeviceMiddleware(cfg.SecureCookies))
	{
		sessions := protected.Group("/sessions")
		sessions.Use(middleware.ValidateSessionID())
		{
			sessions.POST("/:id/attendance", attendance.MarkAttendance)
			sessions.POST("/:id/eligibility", attendance.CheckEligibility)
			sessions.GET("/:id/restrictions", attendance.GetRestrictions)
			sessions.POST("/:id/close", middleware.RequireRole(utils.RoleOrganizer), attendance.CloseSession)
		}

		protected.POST("/geofence/distance", attendance.GetDistance)

		history := protected.Group("/attendance")
		{
			history.GET("/history", attendance.GetHistory)
			history.GET("/stats", attendance.GetStats)
		}
	}

	return router
}
