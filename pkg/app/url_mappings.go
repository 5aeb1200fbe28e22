package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/controllers"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", controllers.NewHealthController(app.Persistence).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1/synth")
	v1.GET("/artifacts/*key", controllers.NewArtifactController(app.Store).Handle)

	user := v1.Group("", middleware.AuthMiddleware(app.Validator))
	{
		user.POST("/datasets", controllers.NewUploadDatasetController(app.Store, app.Config.MaxUploadBytes).Handle)

		user.POST("/generations", middleware.RateLimitSubmit(app.RateLimiter, app.Config), controllers.NewCreateGenerationController(app.Generations).Handle)
		user.GET("/generations", controllers.NewListGenerationsController(app.Generations).Handle)
		user.GET("/generations/:id", controllers.NewGetGenerationController(app.Generations).Handle)
		user.GET("/generations/:id/optimization", controllers.NewGetOptimizationController(app.Generations).Handle)
		user.GET("/generations/:id/download", controllers.NewDownloadController(app.Generations).Handle)
		user.DELETE("/generations/:id", controllers.NewCancelGenerationController(app.Generations).Handle)
		user.POST("/generations/:id/retry", middleware.RateLimitSubmit(app.RateLimiter, app.Config), controllers.NewRetryGenerationController(app.Generations).Handle)

		user.GET("/notifications", controllers.NewListNotificationsController(app.Persistence.NotificationStorage()).Handle)
	}

	admin := v1.Group("/admin", middleware.AuthMiddleware(app.Validator), middleware.RequireAdmin())
	{
		admin.GET("/queue", controllers.NewQueueStatsController(app.Dispatcher, app.Persistence.RequestStorage()).Handle)
	}
}
