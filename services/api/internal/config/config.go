package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"

	"tradeforge/services/worker"
)

// Config holds runtime configuration for the trade-api service.
type Config struct {
	Addr          string        `env:"ADDR,default=:8080"`
	DBDSN         string        `env:"DB_DSN,required"`
	NATSURL       string        `env:"NATS_URL"`
	OTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ArchiveBucket string        `env:"ARCHIVE_BUCKET"`
	LeaseDuration time.Duration `env:"LEASE_DURATION,default=30s"`
	WorkerEnabled bool          `env:"WORKER_ENABLED,default=true"`

	Worker worker.Config
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
