package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	appintegration "github.com/rosshiga/Catapult-VUSION-Driver/internal/application/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/shared"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/cache"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/config"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/esl"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/logger"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/retry"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/scheduler"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/telemetry"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/handler"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/middleware"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: search ., /etc/vusion-esl-driver, /app)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	logBanner(log, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Metrics: Prometheus always, OTLP push when configured
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Metrics.OTLPEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Metrics.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics exporter", zap.Error(err))
	}
	var meter metric.Meter
	if mp.IsEnabled() {
		meter = mp.Meter(cfg.Telemetry.ServiceName)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Label cloud client
	sink, err := newVusionClient(cfg, log, syncMetrics)
	if err != nil {
		log.Fatal("Invalid VUSION configuration", zap.Error(err))
	}

	stores := integration.NewStoreMap(cfg.StoreTable())
	serviceOpts := []appintegration.ServiceOption{
		appintegration.WithStoreConcurrency(cfg.Delivery.StoreConcurrency),
		appintegration.WithSyncMetrics(syncMetrics),
		appintegration.WithServiceLogger(log),
	}

	// Replay guard
	if cfg.Idempotency.Enabled {
		replay, err := newReplayGuard(cfg, log)
		if err != nil {
			log.Fatal("Failed to create replay guard", zap.Error(err))
		}
		defer func() {
			if err := replay.Close(); err != nil {
				log.Warn("Error closing replay guard", zap.Error(err))
			}
		}()
		serviceOpts = append(serviceOpts, appintegration.WithReplayGuard(replay, cfg.Idempotency.TTL))
	}

	syncService := appintegration.NewLabelSyncService(sink, stores, serviceOpts...)

	// Worker pool
	dispatcher, err := scheduler.NewSyncDispatcher(scheduler.DispatcherConfig{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
	}, log, scheduler.WithQueueMetrics(syncMetrics))
	if err != nil {
		log.Fatal("Invalid dispatcher configuration", zap.Error(err))
	}
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("Failed to start dispatcher", zap.Error(err))
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Configure trusted proxies
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Failed to set trusted proxies", zap.Error(err))
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. Tracing - Server spans (if enabled)
	// 6. Metrics - OTLP HTTP instruments (if enabled)
	// 7. BodyLimit - Limit request body size
	// 8. RateLimit - Per client limit (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	if tp.IsEnabled() {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.TracingAttributeInjector())
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(middleware.HTTPMetrics(meter))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, 0)
		go limiter.Run(ctx)
		engine.Use(middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}

	// Routes
	webhookHandler := handler.NewCatapultWebhookHandler(syncService, dispatcher,
		handler.WithWebhookMetrics(syncMetrics))
	healthHandler := handler.NewHealthHandler(cfg.App.Name, version, stores.Len(), dispatcher)

	var routerOpts []router.RouterOption
	if cfg.Metrics.Enabled {
		routerOpts = append(routerOpts, router.WithMetrics(cfg.Metrics.Path, syncMetrics.Handler()))
	}
	r := router.NewRouter(engine, routerOpts...)
	r.RegisterRoot(router.RouteRegistrarFunc(func(rg *gin.RouterGroup) {
		healthHandler.RegisterHealthRoutes(rg)
		webhookHandler.RegisterWebhookRoutes(rg)
	}))
	r.Register(webhookHandler)
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           cfg.App.ListenAddr(),
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("webhook", "POST /catapult"),
			zap.String("api", "POST "+r.APIPrefix()+"/catapult/items"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdown(log, srv, dispatcher, cfg.Dispatch.ShutdownGrace)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := tp.Shutdown(flushCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := mp.Shutdown(flushCtx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// logBanner reports what the driver will do before it starts listening
func logBanner(log *zap.Logger, cfg *config.Config) {
	log.Info("Starting VUSION ESL driver",
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("listen_addr", cfg.App.ListenAddr()),
		zap.Bool("localhost_only", cfg.App.IsLocalhostOnly()),
		zap.String("vusion_base_url", cfg.Vusion.BaseURL),
		zap.Int("workers", cfg.Dispatch.Workers),
	)

	if len(cfg.Stores) == 0 {
		log.Warn("No store mappings configured. All items will be ignored.")
		return
	}
	for _, s := range cfg.Stores {
		log.Info("Store mapping", zap.String("catapult_store", s.Source), zap.String("vusion_store", s.Target))
	}
}

func newVusionClient(cfg *config.Config, log *zap.Logger, metrics esl.DeliveryMetrics) (*esl.VusionClient, error) {
	vcfg := esl.NewVusionConfig(cfg.Vusion.SubscriptionKey)
	vcfg.BaseURL = cfg.Vusion.BaseURL
	vcfg.TimeoutSeconds = cfg.Vusion.TimeoutSeconds
	vcfg.MaxItemsPerBatch = cfg.Delivery.MaxItemsPerBatch
	vcfg.MaxBytesPerBatch = cfg.Delivery.MaxBytesPerBatch
	vcfg.MaxErrorBodyBytes = cfg.Delivery.MaxErrorBodyBytes
	vcfg.RateLimitQPS = cfg.Vusion.RateLimitQPS
	vcfg.RateLimitBurst = cfg.Vusion.RateLimitBurst
	vcfg.Retry = retry.Policy{
		MaxAttempts: cfg.Delivery.MaxAttempts,
		RetryDelay:  cfg.Delivery.RetryDelay,
		Multiplier:  cfg.Delivery.RetryMultiplier,
		MaxDelay:    cfg.Delivery.MaxRetryDelay,
	}

	return esl.NewVusionClient(vcfg, esl.WithLogger(log), esl.WithMetrics(metrics))
}

func newReplayGuard(cfg *config.Config, log *zap.Logger) (shared.IdempotencyStore, error) {
	factory := cache.NewIdempotencyStoreFactory(cache.RedisConfig{
		Host:      cfg.Redis.Host,
		Port:      cfg.Redis.Port,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, cache.WithLogger(log), cache.WithInMemoryFallback(true))
	return factory.CreateStore(cfg.Idempotency.Backend)
}

// shutdown cancels the dispatcher while the server drains, so syncs waiting in
// backoff end at once and their requests are answered before connections close.
// Both share one grace period; connections still open after it are closed.
func shutdown(log *zap.Logger, srv *http.Server, dispatcher *scheduler.SyncDispatcher, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	stopped := make(chan error, 1)
	go func() {
		stopped <- dispatcher.Stop(ctx)
	}()

	serverErr := srv.Shutdown(ctx)
	if serverErr != nil {
		log.Warn("HTTP server did not drain in time", zap.Error(serverErr))
	}
	if err := <-stopped; err != nil {
		log.Warn("Dispatcher did not stop in time", zap.Error(err))
	}

	if serverErr != nil {
		if err := srv.Close(); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
	}
}
