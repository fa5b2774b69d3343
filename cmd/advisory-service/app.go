package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"agroadvisor/internal/advisory"
	"agroadvisor/internal/config"
	"agroadvisor/internal/constants"
	"agroadvisor/internal/delivery"
	"agroadvisor/internal/logger"
	"agroadvisor/internal/notification"
	"agroadvisor/internal/orchestrator"
	"agroadvisor/internal/rules"
	"agroadvisor/internal/weather"
	"agroadvisor/pkg/bootstrap"
	"agroadvisor/pkg/circuitbreaker"
	"agroadvisor/pkg/health"
	"agroadvisor/pkg/metrics"
	"agroadvisor/pkg/middleware"
	"agroadvisor/pkg/migrations"
	"agroadvisor/pkg/ratelimit"
	"agroadvisor/pkg/retry"
)

const migrationsPath = "file://migrations/postgres"

type App struct {
	config      *config.Config
	logger      logger.Logger
	base        *bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client
	server      *http.Server
	router      *gin.Engine

	ingestor     *weather.Ingestor
	orchestrator *orchestrator.Orchestrator
	scheduler    *orchestrator.Scheduler
	receipts     *notification.ReceiptListener
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.base.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initScheduler(); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("postgres is required, set database.postgres.host")
	}
	a.db = db

	if a.config.Database.RunMigrations {
		if err := migrations.RunPostgres(a.db, migrationsPath); err != nil {
			return fmt.Errorf("postgres migrations failed: %w", err)
		}
		a.logger.InfowCtx(ctx, "PostgreSQL migrations applied")
	}

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "Redis connection failed, snapshot mirror disabled", "error", err)
	} else {
		a.redisClient = redisClient
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	if mongoClient == nil {
		return fmt.Errorf("mongodb is required for delivery logs, set database.mongodb.uri")
	}
	a.mongoClient = mongoClient

	dbName := a.config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	if err := migrations.EnsureDeliveryLogCollection(ctx, mongoClient.Database(dbName)); err != nil {
		return fmt.Errorf("mongodb index setup failed: %w", err)
	}

	return nil
}

func (a *App) initPipeline() error {
	providers := make([]weather.Provider, 0, len(a.config.Weather.Providers))
	for _, pc := range a.config.Weather.Providers {
		var provider weather.Provider = weather.NewAPIProvider(pc)
		if a.config.CircuitBreaker.Enabled {
			provider = weather.NewBreakerProvider(provider, a.breakerConfig(pc.Name))
		}
		providers = append(providers, provider)
	}
	if len(providers) == 0 {
		return fmt.Errorf("no weather providers configured")
	}

	chain := weather.NewChain(providers, retry.DefaultPolicy(), a.logger)

	ttl := a.config.Weather.SnapshotTTL
	if ttl == 0 {
		ttl = time.Duration(constants.DefaultSnapshotTTLSeconds) * time.Second
	}
	store := weather.NewSnapshotStore(a.redisClient, ttl, a.logger)
	detector := weather.NewDetector(a.config.Weather.Thresholds)
	a.ingestor = weather.NewIngestor(chain, store, detector, a.config.Weather.Districts, a.logger)

	return nil
}

func (a *App) breakerConfig(name string) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	cbc := a.config.CircuitBreaker
	if cbc.MaxRequests > 0 {
		cfg.MaxRequests = cbc.MaxRequests
	}
	if cbc.Interval > 0 {
		cfg.Interval = cbc.Interval
	}
	if cbc.Timeout > 0 {
		cfg.Timeout = cbc.Timeout
	}
	if cbc.FailureRatio > 0 && cbc.MinRequests > 0 {
		cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cbc.MinRequests && ratio >= cbc.FailureRatio
		}
	}
	return cfg
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Admin.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.Admin.RateLimit.RPS,
			Burst:           a.config.Admin.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Admin.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Admin.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
		metrics.RegisterRateLimitMetrics()
	}

	ruleRepo := rules.NewRepository(a.db)
	auditRepo := rules.NewAuditRepository(a.db)
	ruleService := rules.NewService(ruleRepo, a.logger, rules.WithAudit(auditRepo))

	directory := advisory.NewPostgresDirectory(a.db)
	builder := advisory.NewContextBuilder(directory, directory, a.ingestor, a.logger)

	dbName := a.config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	deliveryRepo := delivery.NewRepository(a.mongoClient.Database(dbName))
	deliveryService := delivery.NewService(deliveryRepo, a.logger)

	sender := notification.NewKafkaSender(a.base.Producer, a.config.Notification.Topic, a.logger)
	a.receipts = notification.NewReceiptListener(a.base.Consumer, deliveryService, a.config.Notification.ReceiptTopic, a.logger)

	a.orchestrator = orchestrator.New(a.ingestor, builder, ruleService, deliveryService, sender, a.logger)

	rules.NewHandler(ruleService, a.logger).RegisterRoutes(router)
	delivery.NewHandler(deliveryService, a.logger).RegisterRoutes(router)
	orchestrator.NewHandler(a.orchestrator, a.logger).RegisterRoutes(router)

	metrics.RegisterWeatherMetrics()
	metrics.RegisterRuleMetrics()
	metrics.RegisterOrchestratorMetrics()
	metrics.RegisterDeliveryMetrics()
	metrics.RegisterBrokerMetrics()
	if a.config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	healthRegistry.Register(health.NewFuncChecker("weather_providers", func(ctx context.Context) error {
		for _, available := range a.ingestor.ProviderAvailability() {
			if available {
				return nil
			}
		}
		return fmt.Errorf("no weather provider available")
	}))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initScheduler() error {
	scheduler := orchestrator.NewScheduler(a.logger)

	pollSchedule := a.config.Weather.PollSchedule
	if pollSchedule == "" {
		pollSchedule = constants.DefaultPollSchedule
	}
	if err := scheduler.AddJob("weather-poll", pollSchedule, func(ctx context.Context) {
		a.ingestor.PollAll(ctx)
	}); err != nil {
		return err
	}

	if a.config.Orchestrator.Enabled {
		cycleSchedule := a.config.Orchestrator.CycleSchedule
		if cycleSchedule == "" {
			cycleSchedule = constants.DefaultCycleSchedule
		}
		if err := scheduler.AddJob("advisory-cycle", cycleSchedule, func(ctx context.Context) {
			if _, err := a.orchestrator.RunCycle(ctx); err != nil {
				a.logger.WarnwCtx(ctx, "Scheduled cycle did not run", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	a.scheduler = scheduler
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	// Seed the snapshot store before the first scheduled poll fires.
	go a.ingestor.PollAll(ctx)

	a.scheduler.Start()

	if a.config.Notification.ReceiptTopic != "" {
		go func() {
			if err := a.receipts.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.ErrorwCtx(ctx, "Receipt listener stopped", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	errs = append(errs, a.base.ShutdownBroker()...)
	errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
