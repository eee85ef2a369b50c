package router

import (
	"net/http"

	"github.com/cuongbtq/metrohr-console/internal/api/handler"
	"github.com/cuongbtq/metrohr-console/internal/realtime"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(deps.AllowedOrigins))

	substituteHandler := handler.NewSubstituteHandler(deps)
	overviewHandler := handler.NewOverviewHandler(deps)
	eventsHandler := handler.NewEventsHandler(deps)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler(deps))

		substitute := v1.Group("/substitute")
		{
			substitute.POST("", substituteHandler.Submit)
			substitute.GET("/history", substituteHandler.History)

			current := substitute.Group("/current")
			{
				current.GET("", substituteHandler.Current)
				current.POST("/refresh", substituteHandler.Refresh)
				current.GET("/export.csv", substituteHandler.ExportCSV)
				current.GET("/export.xlsx", substituteHandler.ExportXLSX)

				candidate := current.Group("/candidates/:employee_id")
				{
					candidate.GET("/export.csv", substituteHandler.ExportCandidateCSV)
					candidate.GET("/training", substituteHandler.TrainingDraft)
					candidate.POST("/training", substituteHandler.CreateTraining)
				}
			}
		}

		ov := v1.Group("/overview")
		{
			ov.GET("", overviewHandler.Get)
			ov.POST("/refresh", overviewHandler.Refresh)
			ov.DELETE("/toasts/:toast_id", overviewHandler.DismissToast)
		}

		v1.GET("/analysis/jobs/:job_id", overviewHandler.JobDetail)
		v1.GET("/events", eventsHandler.Stream)
	}

	return r
}

// CloseStreamsOnShutdown closes the hub as soon as srv starts shutting down.
// Shutdown does not cancel active requests, so open event streams would
// otherwise hold it until the deadline.
func CloseStreamsOnShutdown(srv *http.Server, hub *realtime.Hub) {
	if hub == nil {
		return
	}
	srv.RegisterOnShutdown(hub.Close)
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{
			"status":  "healthy",
			"service": "metrohr-console",
		}

		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["database"] = err.Error()
			} else {
				body["database"] = "ok"
			}
		}
		if deps.Hub != nil {
			body["realtime"] = gin.H{
				"subscribers": deps.Hub.Subscribers(),
				"dropped":     deps.Hub.Dropped(),
			}
		}
		if deps.Broker != nil {
			if deps.Broker.IsConnected() {
				body["broker"] = "ok"
			} else {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["broker"] = "disconnected"
			}
		}

		c.JSON(status, body)
	}
}
