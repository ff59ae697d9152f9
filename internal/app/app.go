// Package app wires the coordinator binary: HTTP API, SSE hub, cross-instance
// event bus, the broker connection, and the in-process aggregator consumer.
package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/brightledger/hashlookup/internal/aggregator"
	"github.com/brightledger/hashlookup/internal/broker"
	"github.com/brightledger/hashlookup/internal/data/db"
	repojobs "github.com/brightledger/hashlookup/internal/data/repos/jobs"
	types "github.com/brightledger/hashlookup/internal/domain"
	httpRouter "github.com/brightledger/hashlookup/internal/http"
	"github.com/brightledger/hashlookup/internal/ingest"
	"github.com/brightledger/hashlookup/internal/platform/envutil"
	"github.com/brightledger/hashlookup/internal/platform/logger"
	"github.com/brightledger/hashlookup/internal/realtime"
	"github.com/brightledger/hashlookup/internal/realtime/bus"
)

// App owns every long-lived dependency the coordinator process needs.
type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Server *httpRouter.Server
	Cfg    Config

	broker *broker.Broker
	bus    bus.Bus
	hub    *realtime.SSEHub
	agg    *aggregator.Aggregator

	cancel context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig()

	log.Info("connecting to postgres")
	pg, err := db.NewPostgresService(context.Background(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	gdb := pg.DB()

	log.Info("connecting to broker", "url", cfg.NATSURL)
	br, err := broker.Connect(cfg.NATSURL, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init broker: %w", err)
	}

	hub := realtime.NewSSEHub(log)

	var eventBus bus.Bus
	if envutil.String("REDIS_ADDR", "") != "" {
		eventBus, err = bus.NewRedisBus(log)
		if err != nil {
			log.Warn("redis job event bus unavailable, running single-instance", "error", err)
			eventBus = nil
		}
	}

	jobRepo := repojobs.NewJobRepo(gdb, log)
	targetRepo := repojobs.NewTargetRepo(gdb, log)
	resultRepo := repojobs.NewResultRepo(gdb, log)

	ingestSvc := ingest.NewService(gdb, jobRepo, targetRepo, br, hub, eventBus, cfg.IngestBatch, log)
	agg := aggregator.New(jobRepo, br, hub, eventBus, log)

	handlers := wireHandlers(ingestSvc, jobRepo, resultRepo, hub, log)
	server := wireServer(handlers)

	a := &App{
		Log:    log,
		DB:     gdb,
		Server: server,
		Cfg:    cfg,
		broker: br,
		bus:    eventBus,
		hub:    hub,
		agg:    agg,
	}
	return a, nil
}

// Start launches the aggregator consumer and, if a cross-instance bus is
// configured, the forwarder that rebroadcasts other instances' events onto
// this process's local SSE hub.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go func() {
		if err := a.agg.Run(ctx); err != nil {
			a.Log.Error("aggregator stopped", "error", err)
		}
	}()

	if a.bus != nil {
		onEvent := func(evt types.JobEvent) {
			a.hub.Broadcast(realtime.SSEMessage{
				Channel: evt.JobID.String(),
				Event:   realtime.SSEEvent(evt.Type),
				Data:    evt.Payload,
			})
		}
		if err := a.bus.StartForwarder(ctx, onEvent); err != nil {
			a.Log.Warn("failed to start job event forwarder", "error", err)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.broker != nil {
		a.broker.Close()
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
