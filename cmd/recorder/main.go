// Command recorder stores the run events published by xmc commands.
//
// It consumes RunEvents from Kafka, writes them to PostgreSQL and serves
// GET /api/v1/runs, /api/v1/runs/{id}, /api/v1/runs/summary, the health
// probes and /metrics.
//
// Usage:
//
//	go run ./cmd/recorder [-config xmc.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/recorder"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const requestTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil && (!cfg.Kafka.Enabled || !cfg.Postgres.Enabled) {
		err = xerrors.New(xerrors.ErrConfig, "the recorder needs kafka.enabled and postgres.enabled")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(xerrors.ExitCode(err))
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting run recorder", "port", cfg.Recorder.Port, "topic", cfg.Kafka.RunsTopic)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := runstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to migrate run store", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Recorder.Port {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, reg)
		if _, err := metricsServer.Start(); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Shutdown(context.Background())
	}

	rec := recorder.New(store, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.RunsTopic, rec.Handler())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
			stop()
		}
	}()

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(store.Ping))
	checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}))
	checker.Register("runstore-circuit", rec.BreakerCheck())

	mux := http.NewServeMux()
	recorder.NewHandler(store).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler(reg))

	var chain http.Handler = mux
	chain = middleware.Timeout(requestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Recorder.Port),
		Handler:      chain,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Recorder.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("run recorder listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
	}

	<-consumerDone
	if err := consumer.Close(); err != nil {
		slog.Warn("closing consumer", "error", err)
	}
	slog.Info("run recorder stopped")
}
