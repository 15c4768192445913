// Package config loads process configuration from the environment, with
// duplicate-detection tuning optionally read from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"docintake/deduplication"
	"docintake/processor"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogMode     string
	Server      ServerConfig
	Redis       RedisConfig
	Processor   ProcessorConfig
	Worker      WorkerConfig
	Store       StoreConfig
	Detection   deduplication.DetectionConfig
	Kafka       KafkaConfig
	Maintenance MaintenanceConfig
	Tracing     TracingConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// RedisConfig is the queue backend. An empty Addr disables the queue and
// every job runs inline.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	ProbeTimeout time.Duration
}

type ProcessorConfig struct {
	Driver  string // http | documentai
	URL     string
	APIKey  string
	Timeout time.Duration

	DocumentAIProject     string
	DocumentAILocation    string
	DocumentAIProcessorID string
	DocumentAIEndpoint    string
	// GoogleCredentialsFile is a service-account key; empty means ADC.
	GoogleCredentialsFile string
}

type WorkerConfig struct {
	Concurrency  int
	JobTimeout   time.Duration
	PollInterval time.Duration
	// MetricsPort serves the worker's /metrics when set.
	MetricsPort string
}

// Options converts the environment settings into processor.New's config.
func (p ProcessorConfig) Options() processor.Config {
	return processor.Config{
		Driver: p.Driver,
		HTTP: processor.HTTPConfig{
			BaseURL: p.URL,
			APIKey:  p.APIKey,
			Timeout: p.Timeout,
		},
		DocumentAI: processor.DocumentAIConfig{
			ProjectID:       p.DocumentAIProject,
			Location:        p.DocumentAILocation,
			ProcessorID:     p.DocumentAIProcessorID,
			CredentialsFile: p.GoogleCredentialsFile,
			Endpoint:        p.DocumentAIEndpoint,
			Timeout:         p.Timeout,
		},
	}
}

// StoreConfig selects where fingerprints are persisted.
type StoreConfig struct {
	Driver         string // memory | redis | postgres | sqlite | s3
	DSN            string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	RedisTTL       time.Duration
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3Profile      string
	S3Endpoint     string
	S3UsePathStyle bool
}

// KafkaConfig is optional; no brokers means no intake or events.
type KafkaConfig struct {
	Brokers     []string
	IntakeTopic string
	EventsTopic string
	GroupID     string
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type MaintenanceConfig struct {
	Schedule  string
	Retention time.Duration
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

var storeDrivers = map[string]bool{"memory": true, "redis": true, "postgres": true, "sqlite": true, "s3": true}

// Load reads the environment. Call godotenv.Load first to pick up a .env file.
func Load() (*Config, error) {
	detection, err := loadDetection(getEnvOrDefault("DETECTION_CONFIG_FILE", ""))
	if err != nil {
		return nil, err
	}

	redisAddr := getEnvOrDefault("REDIS_ADDR", "")
	redisPassword := getEnvOrDefault("REDIS_PASSWORD", "")
	redisDB := getEnvInt("REDIS_DB", 0)
	cfg := &Config{
		LogMode: getEnvOrDefault("LOG_MODE", "development"),
		Server: ServerConfig{
			Port:            getEnvOrDefault("PORT", "8080"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 20)) << 20,
		},
		Redis: RedisConfig{
			Addr:         redisAddr,
			Password:     redisPassword,
			DB:           redisDB,
			Prefix:       getEnvOrDefault("QUEUE_PREFIX", "docintake:queue"),
			ProbeTimeout: getEnvDuration("QUEUE_PROBE_TIMEOUT", 750*time.Millisecond),
		},
		Processor: ProcessorConfig{
			Driver:                strings.ToLower(getEnvOrDefault("PROCESSOR_DRIVER", "http")),
			URL:                   getEnvOrDefault("PROCESSOR_URL", "http://localhost:8090"),
			APIKey:                getEnvOrDefault("PROCESSOR_API_KEY", ""),
			Timeout:               getEnvDuration("PROCESSOR_TIMEOUT", 2*time.Minute),
			DocumentAIProject:     getEnvOrDefault("DOCUMENTAI_PROJECT_ID", ""),
			DocumentAILocation:    getEnvOrDefault("DOCUMENTAI_LOCATION", "us"),
			DocumentAIProcessorID: getEnvOrDefault("DOCUMENTAI_PROCESSOR_ID", ""),
			DocumentAIEndpoint:    getEnvOrDefault("DOCUMENTAI_ENDPOINT", ""),
			GoogleCredentialsFile: getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
			JobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),
			PollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
			MetricsPort:  getEnvOrDefault("WORKER_METRICS_PORT", ""),
		},
		Store: StoreConfig{
			Driver:         strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory")),
			DSN:            getEnvOrDefault("STORE_DSN", ""),
			RedisAddr:      getEnvOrDefault("STORE_REDIS_ADDR", redisAddr),
			RedisPassword:  getEnvOrDefault("STORE_REDIS_PASSWORD", redisPassword),
			RedisDB:        getEnvInt("STORE_REDIS_DB", redisDB),
			RedisPrefix:    getEnvOrDefault("STORE_REDIS_PREFIX", "docintake:fingerprints"),
			RedisTTL:       getEnvDuration("STORE_REDIS_TTL", 0),
			S3Bucket:       getEnvOrDefault("S3_BUCKET", ""),
			S3Prefix:       getEnvOrDefault("S3_PREFIX", "docintake"),
			S3Region:       getEnvOrDefault("S3_REGION", ""),
			S3Profile:      getEnvOrDefault("S3_PROFILE", ""),
			S3Endpoint:     getEnvOrDefault("S3_ENDPOINT", ""),
			S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		},
		Detection: detection,
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BOOTSTRAP_SERVERS"),
			IntakeTopic: getEnvOrDefault("KAFKA_TOPIC_UPLOADS", "docintake.uploads"),
			EventsTopic: getEnvOrDefault("KAFKA_TOPIC_JOB_EVENTS", "docintake.job-events"),
			GroupID:     getEnvOrDefault("KAFKA_CONSUMER_GROUP_ID", "docintake-intake"),
		},
		Maintenance: MaintenanceConfig{
			Schedule:  getEnvOrDefault("CLEAN_SCHEDULE", "@every 1h"),
			Retention: getEnvDuration("JOB_RETENTION", 24*time.Hour),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", "docintake"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
			Endpoint:    getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: getEnvFloat("OTEL_SAMPLER_RATIO", 0.1),
		},
	}

	applyDetectionEnv(&cfg.Detection)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	switch c.Processor.Driver {
	case "http":
	case "documentai":
		if c.Processor.DocumentAIProject == "" || c.Processor.DocumentAIProcessorID == "" {
			errs = append(errs, errors.New("DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required for processor driver documentai"))
		}
	default:
		errs = append(errs, fmt.Errorf("PROCESSOR_DRIVER %q is not one of http, documentai", c.Processor.Driver))
	}
	if !storeDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of memory, redis, postgres, sqlite, s3", c.Store.Driver))
	}
	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("STORE_DSN is required for driver %s", c.Store.Driver))
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("STORE_REDIS_ADDR or REDIS_ADDR is required for driver redis"))
		}
	case "s3":
		if c.Store.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for driver s3"))
		}
	}
	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Maintenance.Schedule != "" {
		if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("CLEAN_SCHEDULE: %w", err))
		}
	}
	if c.Maintenance.Retention <= 0 {
		errs = append(errs, errors.New("JOB_RETENTION must be positive"))
	}
	return errors.Join(errs...)
}

func loadDetection(path string) (deduplication.DetectionConfig, error) {
	cfg := deduplication.DefaultDetectionConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read detection config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse detection config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDetectionEnv(d *deduplication.DetectionConfig) {
	d.Thresholds.Overall = getEnvFloat("DEDUP_OVERALL_THRESHOLD", d.Thresholds.Overall)
	d.TimeWindowDays = getEnvInt("DEDUP_TIME_WINDOW_DAYS", d.TimeWindowDays)
	d.AmountTolerance = getEnvFloat("DEDUP_AMOUNT_TOLERANCE", d.AmountTolerance)
	d.EnableBinaryHashing = getEnvBool("DEDUP_ENABLE_BINARY_HASHING", d.EnableBinaryHashing)
	d.EnableContentHashing = getEnvBool("DEDUP_ENABLE_CONTENT_HASHING", d.EnableContentHashing)
	d.EnableFuzzyMatching = getEnvBool("DEDUP_ENABLE_FUZZY_MATCHING", d.EnableFuzzyMatching)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
