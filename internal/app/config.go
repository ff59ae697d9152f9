package app

import "github.com/brightledger/hashlookup/internal/platform/envutil"

// Config holds the coordinator's environment-derived settings. Every field
// has a workable default so the binary runs against a local docker-compose
// stack with no environment file at all.
type Config struct {
	Port        string
	NATSURL     string
	IngestBatch int
}

func LoadConfig() Config {
	return Config{
		Port:        envutil.String("PORT", "8080"),
		NATSURL:     envutil.String("NATS_URL", "nats://localhost:4222"),
		IngestBatch: envutil.Int("INGEST_BATCH_SIZE", 1000),
	}
}
