package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/driver-ledger/internal/ledger"
	"github.com/richxcame/driver-ledger/internal/offers"
	"github.com/richxcame/driver-ledger/internal/payouts"
	"github.com/richxcame/driver-ledger/internal/reconciliation"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/config"
	"github.com/richxcame/driver-ledger/pkg/database"
	appErrors "github.com/richxcame/driver-ledger/pkg/errors"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/logger"
	"github.com/richxcame/driver-ledger/pkg/middleware"
	redisClient "github.com/richxcame/driver-ledger/pkg/redis"
	"go.uber.org/zap"
)

const (
	serviceName = "ledger-service"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting ledger service", zap.String("version", version))

	// Error tracking is optional: without a DSN the service runs without it
	if err := appErrors.InitSentry(appErrors.DefaultSentryConfig()); err != nil {
		log.Warn("Sentry not initialized", zap.Error(err))
	} else {
		defer appErrors.Flush(2 * time.Second)
	}

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	log.Info("Connected to database")

	redis, err := redisClient.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()
	log.Info("Connected to redis")

	var bus *eventbus.Bus
	if cfg.NATS.Enabled {
		bus, err = eventbus.New(eventbus.Config{
			URL:        cfg.NATS.URL,
			Name:       serviceName,
			StreamName: cfg.NATS.StreamName,
		})
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer bus.Close()
		log.Info("Connected to NATS", zap.String("stream", cfg.NATS.StreamName))
	} else {
		log.Warn("Event bus disabled, earnings are only recorded via HTTP")
	}

	if cfg.Stripe.APIKey == "" {
		log.Warn("STRIPE_API_KEY not set, payout submission will fail")
	}

	// Wire services: payouts settle through the ledger so wallet funds and
	// payout state can never drift apart
	var publisher ledger.Publisher
	if bus != nil {
		publisher = bus
	}

	ledgerRepo := ledger.NewRepository(db)
	ledgerService := ledger.NewService(ledgerRepo, publisher, &cfg.Ledger)
	ledgerHandler := ledger.NewHandler(ledgerService)

	payoutRepo := payouts.NewRepository(db)
	processor := payouts.NewResilientProcessorClient(
		payouts.NewStripeClient(cfg.Stripe.APIKey),
		cfg.Ledger.ProcessorTimeout,
	)
	var payoutPublisher payouts.Publisher
	if bus != nil {
		payoutPublisher = bus
	}
	payoutService := payouts.NewService(payoutRepo, ledgerService, processor, payoutPublisher, &cfg.Ledger)
	payoutHandler := payouts.NewHandler(payoutService, cfg.Stripe.WebhookSecret)

	offerRepo := offers.NewRepository(db)
	offerService := offers.NewService(offerRepo, offers.NewStripeChargeClient(cfg.Stripe.APIKey), &cfg.Ledger)
	offerHandler := offers.NewHandler(offerService)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if bus != nil {
		eventHandler := ledger.NewEventHandler(ledgerService)
		if err := eventHandler.RegisterSubscriptions(rootCtx, bus); err != nil {
			log.Fatal("Failed to subscribe to ride events", zap.Error(err))
		}
	}

	reconciler := reconciliation.NewWorker(
		payoutRepo,
		payoutService,
		log,
		cfg.Ledger.ReconcileInterval,
		cfg.Ledger.PayoutStaleness,
	)
	go reconciler.Start(rootCtx)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.Metrics(serviceName))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Idempotency(redis))

	// Health and metrics
	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/readyz", common.ReadinessProbe(serviceName, version, map[string]func() error{
		"postgres": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Ping(ctx)
		},
		"redis": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := redis.Exists(ctx, "readyz")
			return err
		},
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ledgerHandler.RegisterRoutes(router, cfg.JWT.Secret)
	payoutHandler.RegisterRoutes(router, cfg.JWT.Secret)
	offerHandler.RegisterRoutes(router, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.Server.Port), zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	reconciler.Stop()
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
