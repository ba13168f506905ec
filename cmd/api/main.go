package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ec-checkout/internal/api"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/circuitbreaker"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/lock"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/telemetry"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/settlement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const serviceName = "ec-checkout-api"

func main() {
	hashKey := flag.String("hash-admin-key", "", "print the bcrypt hash of the given admin key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := auth.HashAdminKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	// 1. Storage
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = store.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// 2. Settlement lock
	var locker lock.Locker
	if cfg.RedisAddr != "" {
		rdb, err := lock.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, "checkout:lock:", cfg.LockTTL, logger)
		logger.Info("using redis settlement lock", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = lock.NewKeyedMutex()
	}

	// 3. Events
	var publisher kafka.Publisher = kafka.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:         cfg.KafkaBrokers,
			Topic:           cfg.KafkaTopic,
			RequiredAcks:    cfg.KafkaRequiredAcks,
			AutoCreateTopic: cfg.KafkaAutoCreateTopic,
			BatchTimeout:    cfg.KafkaBatchTimeout,
		})
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = producer
		logger.Info("publishing events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// 4. Payment gateway
	var gateway payment.Gateway
	if cfg.GatewayURL != "" {
		gateway = payment.NewHTTPGateway(cfg.GatewayURL, &http.Client{})
		logger.Info("using payment gateway", zap.String("url", cfg.GatewayURL))
	} else {
		gateway = payment.NewSimulatedGateway(200*time.Millisecond, logger)
		logger.Warn("GATEWAY_URL not set, using simulated gateway")
	}
	gateway = payment.NewBreakerGateway(gateway, circuitbreaker.NewCircuitBreaker(cfg.GatewayMaxFailures, cfg.GatewayResetTimeout))

	// 5. Services
	engine := pricing.Default()
	queryHandler := query.NewHandler(st, engine, logger)
	saga := settlement.NewSaga(st, queryHandler, gateway, publisher, metrics, logger, settlement.Config{
		GatewayTimeout: cfg.GatewayTimeout,
		StaleAfter:     cfg.SettlementStaleAfter,
	})
	queryHandler.SetReconciler(saga)
	cmdHandler := command.NewHandler(product.NewService(st), st, queryHandler, saga, locker, engine, publisher, metrics, logger)
	cmdHandler.LockWait = cfg.LockWait

	jwtService, err := auth.NewJWTService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	router := api.NewRouter(
		api.NewHandlers(cmdHandler, queryHandler, logger),
		api.NewAdminHandlers(jwtService, cfg.AdminKeyHash, logger),
		jwtService,
		metrics,
		registry,
		logger,
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// In-flight settlements finish their bookkeeping before the stores close.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GatewayTimeout+5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
