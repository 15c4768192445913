// Command worker drains the Redis job queue through the extraction service.
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

	"docintake/common"
	"docintake/config"
	"docintake/jobs"
	"docintake/observability"
	"docintake/processor"
	"docintake/queue"
	"docintake/shared/kafka"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Redis.Addr == "" {
		fmt.Fprintln(os.Stderr, "REDIS_ADDR is required to run a worker")
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

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Worker exited", "error", err)
	}
	log.Info("Worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log *common.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, log, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName + "-worker",
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	backend := queue.NewRedisBackend(queue.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		Prefix:       cfg.Redis.Prefix,
		ProbeTimeout: cfg.Redis.ProbeTimeout,
	})
	defer backend.Close()

	proc, err := processor.New(ctx, cfg.Processor.Options(), log)
	if err != nil {
		return fmt.Errorf("build processor client: %w", err)
	}

	metrics := observability.NewMetrics()
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

	if cfg.Worker.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv := &http.Server{Addr: ":" + cfg.Worker.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	worker := queue.NewWorker(backend, proc, listeners, log, queue.WorkerConfig{
		Concurrency:  cfg.Worker.Concurrency,
		JobTimeout:   cfg.Worker.JobTimeout,
		PollInterval: cfg.Worker.PollInterval,
	})
	log.Info("Starting queue worker", "redis", cfg.Redis.Addr, "concurrency", cfg.Worker.Concurrency)
	return worker.Run(ctx)
}
