package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Domenick1991/tourledger/api"
	"github.com/Domenick1991/tourledger/config"
	"github.com/Domenick1991/tourledger/internal/bootstrap"
	"github.com/Domenick1991/tourledger/internal/cache"
	"github.com/Domenick1991/tourledger/internal/kafka"
	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/Domenick1991/tourledger/internal/observability"
	"github.com/Domenick1991/tourledger/internal/repository"
	"github.com/Domenick1991/tourledger/internal/repository/memory"
	"github.com/Domenick1991/tourledger/internal/retry"
	"github.com/Domenick1991/tourledger/internal/service/inventory"
	"github.com/Domenick1991/tourledger/internal/service/payment"
	"github.com/Domenick1991/tourledger/internal/settlement"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type stores struct {
	inventory repository.InventoryRepository
	payments  repository.PaymentRepository
	failures  repository.SettlementFailureRepository
}

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

	logger, err := observability.NewLogger(cfg.Log, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	var st stores
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		st = stores{
			inventory: memory.NewInventoryStore(),
			payments:  memory.NewPaymentStore(),
			failures:  memory.NewSettlementFailureStore(),
		}
	default:
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		st = stores{
			inventory: repository.NewInventoryRepository(pool),
			payments:  repository.NewPaymentRepository(pool),
			failures:  repository.NewSettlementFailureRepository(pool),
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	inventoryOpts := []inventory.ServiceOption{inventory.WithMetrics(m), inventory.WithLogger(logger.Named("inventory"))}
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis, cfg.Inventory.StatusCacheTTL())
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, status reads go to storage until it recovers", zap.Error(err))
		}
		inventoryOpts = append(inventoryOpts, inventory.WithCache(redisCache))
	} else {
		inventoryOpts = append(inventoryOpts, inventory.WithCache(cache.NewMemoryCache(cfg.Inventory.StatusCacheTTL())))
	}
	inventoryService := inventory.NewInventoryService(st.inventory, inventoryOpts...)

	collaborator, closeCollaborator, err := newCollaborator(cfg.Settlement)
	if err != nil {
		logger.Fatal("init settlement collaborator", zap.Error(err))
	}
	defer closeCollaborator()

	notifierOpts := []settlement.NotifierOption{
		settlement.WithPaymentSource(st.payments),
		settlement.WithMetrics(m),
		settlement.WithLogger(logger.Named("settlement")),
	}
	paymentOpts := []payment.ServiceOption{payment.WithMetrics(m), payment.WithLogger(logger.Named("payment"))}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, logger.Named("kafka"))
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			logger.Warn("kafka unavailable", zap.Error(err))
		}
		notifierOpts = append(notifierOpts, settlement.WithFailureSink(settlement.NewKafkaFailureSink(producer, cfg.Kafka.SettlementFailuresTopic)))
		if cfg.Kafka.PaymentEventsTopic != "" {
			paymentOpts = append(paymentOpts, payment.WithEvents(producer, cfg.Kafka.PaymentEventsTopic))
		}
	} else {
		notifierOpts = append(notifierOpts, settlement.WithFailureSink(settlement.NewRepositorySink(st.failures)))
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Settlement.MaxAttempts,
		BaseDelay:   cfg.Settlement.BaseDelay,
		Jitter:      cfg.Settlement.Jitter,
	}
	notifier := settlement.NewNotifier(collaborator, policy, cfg.Settlement.AttemptTimeout, notifierOpts...)

	invoices, err := payment.NewInvoiceNumberGenerator(cfg.Payment.SnowflakeNode)
	if err != nil {
		logger.Fatal("init invoice numbers", zap.Error(err))
	}
	paymentService := payment.NewPaymentService(st.payments, invoices, append(paymentOpts, payment.WithNotifier(notifier))...)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	routerCfg := api.RouterConfig{Metrics: m, Gatherer: registry}
	if cfg.HTTP.SwaggerDir != "" {
		routerCfg.SwaggerFile = filepath.Join(cfg.HTTP.SwaggerDir, "openapi.json")
	}
	router := api.NewRouter(routerCfg,
		api.NewInventoryHandler(inventoryService, inventoryService),
		api.NewPaymentHandler(paymentService),
		api.NewSettlementHandler(paymentService, st.failures),
	)

	servers := bootstrap.NewServers(cfg, router, logger)
	if err := servers.Run(ctx, cfg.GRPC.Address); err != nil {
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("waiting for pending settlement notifications")
	paymentService.Wait()
}

func newCollaborator(cfg config.SettlementConfig) (settlement.Collaborator, func(), error) {
	if cfg.Transport == config.TransportGRPC {
		collab, conn, err := settlement.DialGRPCCollaborator(cfg.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		return collab, func() { _ = conn.Close() }, nil
	}
	return settlement.NewHTTPCollaborator(cfg.Endpoint, &http.Client{}), func() {}, nil
}
