package app

import (
	"presencia_backend/internal/middleware"
	"presencia_backend/internal/model"
	"presencia_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories) {
	router.Use(func(ctx *gin.Context) {
		ctx.Set("config", a.Config)
		ctx.Next()
	})

	router.GET("/metrics", monitoring.PrometheusHandler())

	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	authGroup := router.Group("/api")
	authGroup.Use(
		middleware.AuthMiddleware(a.services.tokens),
		middleware.ActivityMiddleware(repos.user, repos.session),
	)
	{
		authGroup.POST("/logout", c.auth.Logout)
		authGroup.GET("/profile", c.auth.GetProfile)

		authGroup.PUT("/state", c.state.ChangeState)
		authGroup.GET("/state/current", c.state.CurrentStatus)
		authGroup.GET("/state/history", c.state.History)
		authGroup.GET("/sessions/:id/ledger", c.state.SessionLedger)

		authGroup.POST("/challenge", c.challenge.Issue)
		authGroup.POST("/challenge/:id/respond", c.challenge.Respond)
		authGroup.GET("/challenge/history", c.challenge.History)

		authGroup.GET("/report/daily", c.report.Daily)
		authGroup.GET("/report/weekly", c.report.Weekly)
	}

	admin := router.Group("/api/admin")
	admin.Use(
		middleware.AuthMiddleware(a.services.tokens),
		middleware.RoleMiddleware(model.Admin),
	)
	{
		admin.GET("/team", c.state.TeamOverview)
		admin.POST("/users/:id/deactivate", c.admin.DeactivateUser)
		admin.PUT("/users/:id/state", c.admin.ForceState)
		admin.GET("/users/:id/audit", c.admin.UserAuditLog)
		admin.GET("/users/:id/report/weekly", c.admin.UserWeeklyReport)
		admin.POST("/users/:id/tier/refresh", c.admin.RefreshUserTier)
	}
}
