package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"beacon/internal/config"
	"beacon/internal/constants"
	"beacon/internal/enrich"
	"beacon/internal/enrich/provider"
	"beacon/internal/ingest"
	"beacon/internal/logger"
	"beacon/internal/pipeline"
	"beacon/internal/sink"
	"beacon/internal/webhook"
	"beacon/pkg/circuitbreaker"
	"beacon/pkg/metrics"
	"beacon/pkg/middleware"
	"beacon/pkg/ratelimit"
	"beacon/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	streamSink     *sink.KafkaStreamSink
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := a.initMongoDB(ctx); err != nil {
		return fmt.Errorf("failed to initialize mongodb: %w", err)
	}

	if err := a.initStreamSink(ctx); err != nil {
		return fmt.Errorf("failed to initialize stream sink: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", a.config.Redis.Host, a.config.Redis.Port),
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.WarnwCtx(ctx, "Redis unavailable, geo cache disabled", "error", err)
		client.Close()
		return nil
	}

	a.redisClient = client
	return nil
}

func (a *App) initMongoDB(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(a.config.Warehouse.MongoDB.URI))
	if err != nil {
		return err
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}

	a.mongoClient = client
	return nil
}

// initStreamSink connects to the broker and blocks until the topic exists.
// Startup fails if the broker is unreachable, same as the warehouse.
func (a *App) initStreamSink(ctx context.Context) error {
	streamSink, err := sink.NewKafkaStreamSink(ctx, a.config.Broker.Kafka, a.logger)
	if err != nil {
		return err
	}
	a.streamSink = streamSink
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.DefaultConfig()
		if a.config.RateLimit.RPS > 0 {
			rateLimitConfig.RPS = a.config.RateLimit.RPS
		}
		if a.config.RateLimit.Burst > 0 {
			rateLimitConfig.Burst = a.config.RateLimit.Burst
		}
		router.Use(ratelimit.Middleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	trackingSink := sink.NewHTTPTrackingSink(a.config.Tracking.APIURL, a.config.Tracking.ProjectToken)
	warehouseSink := sink.NewMongoWarehouseSink(a.mongoClient, a.config.Warehouse.MongoDB.Database, a.config.Warehouse.MongoDB.Collection)

	providerTimeout := constants.DefaultProviderTimeout
	if a.config.Providers.TimeoutMs > 0 {
		providerTimeout = time.Duration(a.config.Providers.TimeoutMs) * time.Millisecond
	}

	btcProvider := provider.BalanceProvider(provider.NewHTTPBalanceProvider(constants.FieldBTCBalance, a.config.Providers.BTCBalanceURL, providerTimeout))
	satsProvider := provider.BalanceProvider(provider.NewHTTPBalanceProvider(constants.FieldSats, a.config.Providers.SatsBalanceURL, providerTimeout))
	creatorProvider := provider.CreatorStatusProvider(provider.NewHTTPCreatorStatusProvider(a.config.Providers.CreatorStatusURL, providerTimeout))

	if a.config.CircuitBreaker.Enabled {
		btcProvider = provider.WrapBalanceWithCircuitBreaker(btcProvider, a.breakerConfig("btc_balance"))
		satsProvider = provider.WrapBalanceWithCircuitBreaker(satsProvider, a.breakerConfig("sats_balance"))
		creatorProvider = provider.WrapCreatorWithCircuitBreaker(creatorProvider, a.breakerConfig("creator_status"))
	}

	directResolver := provider.NewHTTPLocationResolver(a.config.Geo.APIURL)
	var resolver provider.LocationResolver = directResolver
	if a.redisClient != nil {
		ttl := constants.DefaultGeoCacheTTL
		if a.config.Geo.CacheTTLSeconds > 0 {
			ttl = time.Duration(a.config.Geo.CacheTTLSeconds) * time.Second
		}
		resolver = provider.NewCachedLocationResolver(directResolver, a.redisClient, ttl, a.logger)
	}

	enrichService := enrich.NewService(
		resolver,
		[]provider.BalanceProvider{btcProvider, satsProvider},
		creatorProvider,
		trackingSink,
		a.logger,
	)

	dispatcher := pipeline.NewDispatcher(trackingSink, a.streamSink, warehouseSink, a.logger)
	pipelineService := pipeline.NewService(enrichService, dispatcher, a.logger)

	chatNotifier := webhook.NewChatNotifier(a.config.Sentry.ChatWebhookURL, a.logger)
	sentryService := webhook.NewSentryService(a.config.Sentry.ClientSecret, chatNotifier, a.logger)

	handler := ingest.NewHandler(
		pipelineService,
		resolver,
		directResolver,
		btcProvider,
		satsProvider,
		creatorProvider,
		sentryService,
		a.config.Server.AccessToken,
		a.logger,
	)
	handler.RegisterRoutes(router)

	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	a.router = router
	return nil
}

func (a *App) breakerConfig(name string) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	if a.config.CircuitBreaker.MaxRequests > 0 {
		cfg.MaxRequests = a.config.CircuitBreaker.MaxRequests
	}
	if a.config.CircuitBreaker.Interval > 0 {
		cfg.Interval = a.config.CircuitBreaker.Interval
	}
	if a.config.CircuitBreaker.Timeout > 0 {
		cfg.Timeout = a.config.CircuitBreaker.Timeout
	}
	return cfg
}

func (a *App) initServer() error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: a.router,
	}
	if a.config.Server.ReadTimeoutSeconds > 0 {
		server.ReadTimeout = time.Duration(a.config.Server.ReadTimeoutSeconds) * time.Second
	}
	if a.config.Server.WriteTimeoutSeconds > 0 {
		server.WriteTimeout = time.Duration(a.config.Server.WriteTimeoutSeconds) * time.Second
	}
	a.server = server
	return nil
}

func (a *App) Run(ctx context.Context) error {
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

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.streamSink != nil {
		if err := a.streamSink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stream sink close error: %w", err))
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
