package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/brightledger/hashlookup/internal/http/handlers"
	httpMW "github.com/brightledger/hashlookup/internal/http/middleware"
)

type RouterConfig struct {
	JobHandler    *httpH.JobHandler
	HealthHandler *httpH.HealthHandler
}

// NewRouter wires the coordinator's HTTP surface, per §6: no auth
// middleware, since the system does not authenticate clients.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.JobHandler != nil {
			jobs := api.Group("/jobs")
			jobs.POST("", cfg.JobHandler.CreateJob)
			jobs.GET("", cfg.JobHandler.ListCompleted)
			jobs.GET("/:id", cfg.JobHandler.GetJob)
			jobs.GET("/:id/events", cfg.JobHandler.Events)
			jobs.GET("/:id/results", cfg.JobHandler.Artifact)
		}
	}

	return r
}
