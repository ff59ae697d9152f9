package app

import (
	repojobs "github.com/brightledger/hashlookup/internal/data/repos/jobs"
	httpRouter "github.com/brightledger/hashlookup/internal/http"
	httpH "github.com/brightledger/hashlookup/internal/http/handlers"
	"github.com/brightledger/hashlookup/internal/ingest"
	"github.com/brightledger/hashlookup/internal/platform/logger"
	"github.com/brightledger/hashlookup/internal/realtime"
)

type handlerSet struct {
	job    *httpH.JobHandler
	health *httpH.HealthHandler
}

func wireHandlers(ingestSvc *ingest.Service, jobs repojobs.JobRepo, results repojobs.ResultRepo, hub *realtime.SSEHub, log *logger.Logger) handlerSet {
	return handlerSet{
		job:    httpH.NewJobHandler(ingestSvc, jobs, results, hub, log),
		health: httpH.NewHealthHandler(),
	}
}

func wireServer(h handlerSet) *httpRouter.Server {
	return httpRouter.NewServer(httpRouter.RouterConfig{
		JobHandler:    h.job,
		HealthHandler: h.health,
	})
}
