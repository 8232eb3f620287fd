package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nocena/app.nocena-sub001/internal/ingest"
	"github.com/Nocena/app.nocena-sub001/internal/persist"
	"github.com/Nocena/app.nocena-sub001/internal/platform/config"
	"github.com/Nocena/app.nocena-sub001/internal/platform/logger"
	"github.com/Nocena/app.nocena-sub001/internal/platform/metrics"
	"github.com/Nocena/app.nocena-sub001/internal/upload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	log := logger.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "json"))

	cfg := ingest.Config{
		SegmentSize:     config.GetEnvInt("SEGMENT_SIZE", ingest.DefaultSegmentSize),
		PersistEvery:    config.GetEnvInt("PERSIST_EVERY", ingest.DefaultPersistEvery),
		LiveIdleTimeout: config.GetEnvDuration("LIVE_IDLE_TIMEOUT", ingest.DefaultLiveIdleTimeout),
		EndedRetention:  config.GetEnvDuration("ENDED_RETENTION", ingest.DefaultEndedRetention),
	}
	sweepInterval := config.GetEnvDuration("SWEEP_INTERVAL", ingest.DefaultSweepInterval)

	var sink ingest.Sink
	switch backend := config.GetEnv("UPLOAD_BACKEND", "mock"); backend {
	case "s3":
		sink = upload.NewS3Sink(config.GetEnv("S3_REGION", "us-east-1"), config.GetEnv("S3_BUCKET", "nocena-live-segments"))
	default:
		sink = upload.NewMockSink(config.GetEnv("UPLOAD_BASE_URL", ""))
	}

	var persister ingest.Persister
	switch backend := config.GetEnv("PERSIST_BACKEND", "file"); backend {
	case "redis":
		persister = persist.NewRedisStore(
			config.GetEnv("REDIS_ADDR", "localhost:6379"),
			config.GetEnv("REDIS_PASSWORD", ""),
			config.GetEnvInt("REDIS_DB", 0),
			config.GetEnv("REDIS_KEY", "live:sessions"),
		)
	case "none":
		persister = ingest.NopPersister{}
	default:
		persister = persist.NewFileStore(config.GetEnv("PERSIST_FILE", "data/sessions.json"))
	}

	met := metrics.New()
	repo := ingest.NewRepository(cfg.SegmentSize)
	svc := ingest.NewService(repo, sink, persister, log, met, cfg)
	svc.Restore()

	sweeper := ingest.NewSweeper(svc, sweepInterval, log)
	sweeper.Start()

	h := ingest.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveSessions(repo.ActiveCount()) }).ServeHTTP(w, req)
	})
	h.Register(r)

	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"segment_size", cfg.SegmentSize,
		"sweep_interval", sweepInterval.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	sweeper.Stop()
	svc.Persist()

	log.Info("server stopped")
}
