package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/brightledger/hashlookup/internal/broker"
	"github.com/brightledger/hashlookup/internal/data/db"
	repojobs "github.com/brightledger/hashlookup/internal/data/repos/jobs"
	"github.com/brightledger/hashlookup/internal/platform/envutil"
	"github.com/brightledger/hashlookup/internal/platform/logger"
	"github.com/brightledger/hashlookup/internal/platform/shutdown"
	"github.com/brightledger/hashlookup/internal/worker"
)

// Concurrency is how many minions this process runs, each holding its own
// queue-group subscription so JetStream load-balances work units across
// them, per §5's default of 4.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	pg, err := db.NewPostgresService(ctx, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", "error", err)
	}
	defer pg.Close()

	natsURL := envutil.String("NATS_URL", "nats://localhost:4222")
	br, err := broker.Connect(natsURL, log)
	if err != nil {
		log.Fatal("failed to connect to broker", "error", err)
	}
	defer br.Close()

	mapping := repojobs.NewMappingRepo(pg.Pool(), log)
	results := repojobs.NewResultRepo(pg.DB(), log)

	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		minion := worker.NewMinion(pg.DB(), mapping, results, br, log.With("minion", i))
		group.Go(func() error {
			return minion.Run(gctx)
		})
	}

	log.Info("worker started", "concurrency", concurrency)
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		log.Error("worker pool exited with error", "error", err)
		os.Exit(1)
	}
}
