package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"caribou/internal/cache"
	"caribou/internal/config"
	"caribou/internal/consignment"
	"caribou/internal/constants"
	"caribou/internal/directory"
	"caribou/internal/event"
	"caribou/internal/logger"
	"caribou/internal/notification"
	"caribou/internal/pipeline"
	"caribou/internal/schema"
	"caribou/pkg/bootstrap"
	"caribou/pkg/circuitbreaker"
	"caribou/pkg/health"
	"caribou/pkg/logging"
	"caribou/pkg/metrics"
	"caribou/pkg/models"
	"caribou/pkg/retry"
	"caribou/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	postgresDB     *sql.DB
	pipeline       *pipeline.Pipeline
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("consumer-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	if err := a.initPostgreSQL(ctx); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	if err := a.InitBroker("consumer-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "consumer-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterProvisionerMetrics()
	metrics.RegisterCacheMetrics()
	metrics.RegisterOutboundMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	return nil
}

func (a *App) initPostgreSQL(ctx context.Context) error {
	postgresDB, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.postgresDB = postgresDB
	return nil
}

// initPipeline wires the event→handler chains. TenantCreated runs the
// schema provisioner before onboarding so the welcome notification lands
// in a schema that is guaranteed to exist.
func (a *App) initPipeline(ctx context.Context) error {
	registry := schema.NewRegistry(a.postgresDB)
	if err := registry.EnsureTable(ctx); err != nil {
		return fmt.Errorf("failed to prepare tenant schema registry: %w", err)
	}

	provisioner := schema.NewProvisioner(a.postgresDB, a.Config.Database.Postgres, registry, a.Logger)
	schemaHandler := schema.NewHandler(provisioner, registry, a.Logger)

	var breaker *circuitbreaker.Wrapper
	if a.Config.CircuitBreaker.Enabled {
		breaker = circuitbreaker.NewWrapper(circuitbreaker.Config{
			Name:         "tenant-directory",
			MaxRequests:  a.Config.CircuitBreaker.MaxRequests,
			Interval:     a.Config.CircuitBreaker.Interval,
			Timeout:      a.Config.CircuitBreaker.Timeout,
			FailureRatio: a.Config.CircuitBreaker.FailureRatio,
		})
	}
	directoryClient := directory.NewClient(a.Config.Directory, breaker)

	commandsTopic := a.Config.Broker.Kafka.CommandsTopic
	if commandsTopic == "" {
		commandsTopic = constants.DefaultCommandsTopic
	}

	notificationRepo := notification.NewRepository(a.postgresDB)
	notificationService := notification.NewService(notificationRepo, directoryClient, a.Publisher, commandsTopic, a.Logger)
	notificationHandler := notification.NewHandler(notificationService)

	consignmentHandler := consignment.NewHandler(consignment.NewRepository(a.postgresDB), a.Logger)

	coordinator := cache.NewCoordinator(cache.NewRedisStore(a.redis), cache.DefaultRules(), a.Logger)
	invalidate := func(t event.Type) pipeline.HandlerFunc {
		return func(ctx context.Context, env *models.Envelope) error {
			return coordinator.OnEvent(ctx, t, env)
		}
	}

	handlers := pipeline.NewRegistry()
	handlers.Register(event.TypeTenantCreated, schemaHandler.HandleTenantCreated)
	handlers.Register(event.TypeTenantCreated, notificationHandler.HandleTenantCreated)
	handlers.Register(event.TypeNotificationCreated, notificationHandler.HandleNotificationCreated)
	handlers.Register(event.TypeConsignmentCreated, consignmentHandler.HandleCreated)
	handlers.Register(event.TypeConsignmentStatusChanged, consignmentHandler.HandleStatusChanged)
	handlers.Register(event.TypeConsignmentStatusChanged, invalidate(event.TypeConsignmentStatusChanged))
	handlers.Register(event.TypeLocationUpdated, invalidate(event.TypeLocationUpdated))
	handlers.Register(event.TypeProductUpdated, invalidate(event.TypeProductUpdated))

	policy := retry.Policy{
		MaxAttempts:     a.Config.Consistency.MaxAttempts,
		InitialInterval: a.Config.Consistency.InitialInterval,
		MaxInterval:     a.Config.Consistency.MaxInterval,
		Multiplier:      a.Config.Consistency.Multiplier,
	}

	a.pipeline = pipeline.NewPipeline(handlers, policy, a.Logger)
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.postgresDB != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.postgresDB))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	eventsTopic := a.Config.Broker.Kafka.EventsTopic
	if eventsTopic == "" {
		eventsTopic = constants.DefaultEventsTopic
	}

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Consuming events", "topic", eventsTopic)
		return a.Consumer.Consume(gCtx, eventsTopic, a.pipeline.HandleDelivery)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "consumer-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down consumer service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgresDB)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
