package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tradeforge/pkg/bus"
	"tradeforge/pkg/db"
	gos3 "tradeforge/pkg/s3"
	"tradeforge/pkg/telemetry"
	"tradeforge/services/api"
	"tradeforge/services/api/internal/config"
	"tradeforge/services/archive"
	"tradeforge/services/lifecycle"
	"tradeforge/services/worker"
)

const serviceName = "trade-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	shutdownTelemetry, httpMiddleware, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("init telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	orm, err := db.OpenORM(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect orm")
	}
	defer func() {
		if err := db.CloseORM(orm); err != nil {
			log.Error().Err(err).Msg("close orm")
		}
	}()

	var eventBus *bus.Bus
	if cfg.NATSURL != "" {
		eventBus, err = bus.New(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect nats")
		}
		defer eventBus.Close()
	}

	engine, err := lifecycle.NewEngine(pool)
	if err != nil {
		log.Fatal().Err(err).Msg("init lifecycle engine")
	}

	var archiver api.RunArchiver
	if cfg.ArchiveBucket != "" {
		s3Client, err := gos3.NewClientFromEnv(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("init s3 client")
		}
		archiver, err = archive.New(engine, s3Client, cfg.ArchiveBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("init archiver")
		}
	}

	apiCfg := api.Config{LeaseDuration: cfg.LeaseDuration}
	if eventBus != nil {
		apiCfg.Notifier = eventBus
	}

	app, err := api.New(engine, archiver, func(ctx context.Context) error {
		return db.Ping(ctx, pool)
	}, apiCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init api")
	}

	routes, err := app.Routes()
	if err != nil {
		log.Fatal().Err(err).Msg("build routes")
	}

	if cfg.WorkerEnabled {
		w, err := worker.New(engine, orm, eventBus, cfg.Worker, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("init worker")
		}
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("worker stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpMiddleware(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting trade-api")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
}
