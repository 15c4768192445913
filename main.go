package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docintake/api"
	"docintake/common"
	"docintake/config"
	"docintake/deduplication"
	"docintake/jobs"
	"docintake/observability"
	"docintake/processor"
	"docintake/queue"
	"docintake/shared/kafka"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := common.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("API server exited", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *common.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, log, tracingConfig(cfg.Tracing))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	metrics := observability.NewMetrics()

	store, closeStore, err := openFingerprintStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open fingerprint store: %w", err)
	}
	defer closeStore()

	detectorOpts := []deduplication.Option{
		deduplication.WithLogger(log),
		deduplication.WithRecorder(metrics),
	}
	if store != nil {
		detectorOpts = append(detectorOpts, deduplication.WithDurableStore(store))
	}
	detector, err := deduplication.NewDetector(cfg.Detection, detectorOpts...)
	if err != nil {
		return fmt.Errorf("build detector: %w", err)
	}

	proc, err := processor.New(ctx, cfg.Processor.Options(), log)
	if err != nil {
		return fmt.Errorf("build processor client: %w", err)
	}

	// backend stays a nil interface when no queue is configured
	var backend queue.Backend
	if cfg.Redis.Addr != "" {
		rb := queue.NewRedisBackend(queue.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Prefix:       cfg.Redis.Prefix,
			ProbeTimeout: cfg.Redis.ProbeTimeout,
		})
		defer rb.Close()
		backend = rb
	} else {
		log.Warn("REDIS_ADDR not set, every job will be processed inline")
	}

	listeners := queue.Listeners{metrics}
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.EventsTopic})
		if err != nil {
			log.Warn("Job events disabled, Kafka producer unavailable", "error", err)
		} else {
			defer producer.Close()
			listeners = append(listeners, jobs.NewEventPublisher(producer, log))
		}
	}

	manager := jobs.NewManager(backend, proc,
		jobs.WithListener(listeners),
		jobs.WithLogger(log),
	)
	if err := metrics.RegisterQueue(manager.QueueStats); err != nil {
		return fmt.Errorf("register queue metrics: %w", err)
	}

	janitor := jobs.NewJanitor(manager, cfg.Maintenance.Retention, log)
	if cfg.Maintenance.Schedule != "" {
		if err := janitor.Start(cfg.Maintenance.Schedule); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
		defer janitor.Stop()
	}

	if cfg.Kafka.Enabled() {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.IntakeTopic,
			GroupID: cfg.Kafka.GroupID,
			Handler: jobs.NewIntakeHandler(manager, log),
			Logger:  log,
		})
		if err != nil {
			log.Warn("Kafka intake disabled", "error", err)
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Kafka intake consumer failed", "error", err)
				}
			}()
		}
	}

	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := api.Deps{
		Jobs:            manager,
		Detector:        detector,
		Metrics:         metrics,
		Logger:          log,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		QueueConfigured: backend != nil,
	}
	if cfg.Tracing.Enabled {
		deps.ServiceName = cfg.Tracing.ServiceName
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting API server", "addr", srv.Addr, "queue", backend != nil, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down API server")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func tracingConfig(c config.TracingConfig) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Enabled,
		ServiceName: c.ServiceName,
		Environment: c.Environment,
		Endpoint:    c.Endpoint,
		Insecure:    c.Insecure,
		SampleRatio: c.SampleRatio,
	}
}
