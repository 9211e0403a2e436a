package rest

import (
	"github.com/duespay/duespay/internal/api/cron"
	v1 "github.com/duespay/duespay/internal/api/v1"
	"github.com/duespay/duespay/internal/config"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	PaymentToken    *v1.PaymentTokenHandler
	BillingSchedule *v1.BillingScheduleHandler
	BillingCron     *cron.BillingCronHandler
}

// NewRouter builds the gin engine with the standard middleware chain.
func NewRouter(cfg *config.Configuration, log *logger.Logger, handlers Handlers) *gin.Engine {
	if cfg.Deployment.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestContextMiddleware())
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiV1 := router.Group("/v1")
	{
		tokens := apiV1.Group("/tokens")
		{
			tokens.POST("", handlers.PaymentToken.CreateToken)
		}

		schedules := apiV1.Group("/schedules")
		{
			schedules.POST("", handlers.BillingSchedule.CreateSchedule)
			schedules.GET("/:id", handlers.BillingSchedule.GetSchedule)
			schedules.GET("/:id/attempts", handlers.BillingSchedule.ListAttempts)
			schedules.POST("/:id/reactivate", handlers.BillingSchedule.Reactivate)
			schedules.POST("/:id/cancel", handlers.BillingSchedule.Cancel)
		}
	}

	cronGroup := router.Group("/cron")
	{
		cronGroup.POST("/billing/run", handlers.BillingCron.TriggerRun)
		cronGroup.GET("/billing/report", handlers.BillingCron.LastReport)
		cronGroup.POST("/billing/suspend", handlers.BillingCron.Suspend)
		cronGroup.POST("/billing/resume", handlers.BillingCron.Resume)
	}

	return router
}
