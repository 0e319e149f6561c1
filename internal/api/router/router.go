package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guard-watch/backend/config"
	"guard-watch/backend/internal/api/handler"
	"guard-watch/backend/internal/api/middleware"
	"guard-watch/backend/pkg/jwt"
	"guard-watch/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(rdb, 10, time.Minute), h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.Me)

			// 班次模块：签到/考勤为保安核心操作，读路径保安/管理员共用
			shifts := authorized.Group("/shifts")
			{
				shifts.GET("/my", h.Shift.ListMine)
				shifts.GET("/:id", h.Shift.Get)
				shifts.GET("/:id/window", h.Shift.GetWindow)
				shifts.POST("/:id/checkin", h.Checkin.Checkin)
				shifts.POST("/:id/attendance", h.Checkin.Attendance)
			}

			// 告警模块：处置/确认仅管理员
			alerts := authorized.Group("/alerts")
			{
				alerts.GET("", middleware.RoleAuth("admin"), h.Alert.List)
				alerts.GET("/:id", middleware.RoleAuth("admin"), h.Alert.Get)
				alerts.POST("/:id/acknowledge", middleware.RoleAuth("admin"), h.Alert.Acknowledge)
				alerts.POST("/:id/resolve", middleware.RoleAuth("admin"), h.Alert.Resolve)
			}
		}
	}

	return r
}
