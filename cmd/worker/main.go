package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/tourledger/config"
	"github.com/Domenick1991/tourledger/internal/kafka"
	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/Domenick1991/tourledger/internal/observability"
	"github.com/Domenick1991/tourledger/internal/repository"
	"github.com/Domenick1991/tourledger/internal/settlement"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// The worker drains the settlement failure topic into Postgres.
func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatalf("worker needs kafka.brokers")
	}

	logger, err := observability.NewLogger(cfg.Log, cfg.Telemetry.ServiceName+"-worker")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	recorder := settlement.NewRecorder(
		repository.NewSettlementFailureRepository(pool),
		metrics.New(registry),
		logger.Named("recorder"),
	)

	metricsSrv := &http.Server{
		Addr:              cfg.Worker.MetricsAddress,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.SettlementFailuresTopic, logger.Named("kafka"))
	defer consumer.Close()

	logger.Info("consuming settlement failures", zap.String("topic", cfg.Kafka.SettlementFailuresTopic))
	if err := consumer.Consume(ctx, recorder.Handle); err != nil {
		logger.Error("consumer stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown metrics server", zap.Error(err))
	}
}
