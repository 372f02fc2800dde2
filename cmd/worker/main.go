package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benvon/smart-crm/internal/config"
	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/delivery"
	"github.com/benvon/smart-crm/internal/handlers"
	"github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/metrics"
	"github.com/benvon/smart-crm/internal/queue"
	"github.com/benvon/smart-crm/internal/services/ai"
	"github.com/benvon/smart-crm/internal/services/overview"
	"github.com/benvon/smart-crm/internal/telemetry"
	"github.com/benvon/smart-crm/internal/workers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "smart-crm-worker"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger, debugMode); err != nil {
		zapLogger.Fatal("worker_failed", zap.Error(err))
	}
	zapLogger.Info("worker_stopped")
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger, debugMode bool) error {
	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("delivery_transport", cfg.DeliveryTransport),
		zap.Int("default_cooldown_seconds", cfg.Overview.DefaultCooldownSeconds),
	)

	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(ctx, serviceName, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Warn("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisClient, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()
	zapLogger.Info("connected_to_redis")

	jobQueue, err := queue.NewRabbitMQQueue(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	sink, err := newSink(ctx, cfg, redisClient, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	gateway, err := newGateway(cfg, zapLogger, debugMode)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	jobs := queue.NewUniqueScheduler(jobQueue, queue.NewRedisKeyStore(redisClient), zapLogger)
	states := database.NewWorkerStateRepository(db)

	detector := overview.NewDetector(database.NewChangeRepository(db))
	analyzer := overview.NewAnalyzer(gateway, database.NewForecastRepository(db), overview.AnalyzerConfig{
		Options: ai.CompletionOptions{
			Provider:    cfg.AIProvider,
			Model:       cfg.AIModel,
			Temperature: cfg.Overview.LLMTemperature,
		},
		Timeout: cfg.Overview.LLMTimeout,
	}, zapLogger).WithMetrics(m)
	executor := overview.NewExecutor(database.NewActionItemRepository(db), database.NewNotificationRepository(db), sink, zapLogger)

	cycles := workers.NewOverviewScheduler(states, detector, analyzer, executor, jobs, workers.SchedulerConfig{
		DefaultCooldownSeconds: cfg.Overview.DefaultCooldownSeconds,
		PollInterval:           cfg.Overview.PollInterval,
		UniqueWithin:           cfg.Overview.UniqueWindow,
	}, m, zapLogger)
	processor := workers.NewJobProcessor(cycles, jobQueue, jobs, m, zapLogger)
	sweeper := workers.NewSweeper(states, jobs, workers.SweeperConfig{
		Interval:     cfg.Overview.SweepInterval,
		Grace:        cfg.Overview.SweepGrace,
		UniqueWithin: cfg.Overview.UniqueWindow,
	}, zapLogger)
	dlqGC := queue.NewGarbageCollector(jobQueue, cfg.Overview.DLQGCInterval, cfg.Overview.DLQRetention, zapLogger)

	health := handlers.NewHealthChecker(map[string]handlers.CheckFunc{
		"database": db.HealthCheck,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"rabbitmq": jobQueue.HealthCheck,
	})
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler(reg)).Methods("GET")
	r.HandleFunc("/healthz", health.HealthCheck).Methods("GET")
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("worker_consuming", zap.String("queue", queue.DefaultQueueName))
		return ignoreCanceled(processor.Run(gctx, cfg.RabbitMQPrefetch))
	})
	g.Go(func() error {
		return ignoreCanceled(sweeper.Start(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(dlqGC.Start(gctx))
	})
	g.Go(func() error {
		zapLogger.Info("metrics_server_starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("worker_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSink picks the push transport for notifications
func newSink(ctx context.Context, cfg *config.Config, redisClient *redis.Client, zapLogger *zap.Logger) (delivery.Sink, error) {
	switch cfg.DeliveryTransport {
	case config.DeliveryNATS:
		return delivery.ConnectNATS(ctx, cfg.NATSURL, zapLogger)
	default:
		return delivery.NewRedisSink(redisClient), nil
	}
}

// newGateway builds the language-model gateway from the provider registry
func newGateway(cfg *config.Config, zapLogger *zap.Logger, debugMode bool) (ai.Gateway, error) {
	registry := ai.NewProviderRegistry()
	ai.RegisterOpenAI(registry, zapLogger, debugMode)

	provider, err := registry.GetProvider(cfg.AIProvider, map[string]string{
		"api_key":  cfg.OpenAIKey,
		"model":    cfg.AIModel,
		"base_url": cfg.AIBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider %q (registered: %s): %w",
			cfg.AIProvider, strings.Join(registry.Names(), ", "), err)
	}
	zapLogger.Info("initialized_ai_provider",
		zap.String("provider", cfg.AIProvider),
		zap.String("model", cfg.AIModel),
	)
	return ai.NewRouter(cfg.AIProvider, map[string]ai.Gateway{cfg.AIProvider: provider}), nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
