package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(20<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Redis.ProbeTimeout)
	assert.Equal(t, 0.8, cfg.Detection.Thresholds.Overall)
	assert.Equal(t, 7, cfg.Detection.TimeWindowDays)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.Retention)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("QUEUE_PROBE_TIMEOUT", "300ms")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "k1:9092, k2:9092,")
	t.Setenv("DEDUP_OVERALL_THRESHOLD", "0.7")
	t.Setenv("DEDUP_ENABLE_BINARY_HASHING", "false")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Redis.ProbeTimeout)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 0.7, cfg.Detection.Thresholds.Overall)
	assert.False(t, cfg.Detection.EnableBinaryHashing)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
}

func TestLoadDetectionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detection.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
thresholds:
  overall: 0.9
  merchant: 0.75
timeWindowDays: 14
enableFuzzyMatching: false
amountTolerance: 0.5
`), 0o600))
	t.Setenv("DETECTION_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Detection.Thresholds.Overall)
	assert.Equal(t, 0.75, cfg.Detection.Thresholds.Merchant)
	assert.Equal(t, 0.95, cfg.Detection.Thresholds.Binary)
	assert.Equal(t, 14, cfg.Detection.TimeWindowDays)
	assert.False(t, cfg.Detection.EnableFuzzyMatching)
	assert.True(t, cfg.Detection.EnableContentHashing)
	assert.Equal(t, 0.5, cfg.Detection.AmountTolerance)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DEDUP_OVERALL_THRESHOLD", "1.5")
	t.Setenv("CLEAN_SCHEDULE", "whenever")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "STORE_DSN is required")
	assert.ErrorContains(t, err, "thresholds.overall")
	assert.ErrorContains(t, err, "CLEAN_SCHEDULE")
}

func TestLoadMissingDetectionFile(t *testing.T) {
	t.Setenv("DETECTION_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.ErrorContains(t, err, "read detection config")
}

func TestValidateUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load()
	assert.ErrorContains(t, err, `STORE_DRIVER "mongo"`)
}

func TestStoreRedisCredentialsFallBackToQueue(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "s3cret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("STORE_DRIVER", "redis")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Store.RedisPassword)
	assert.Equal(t, 2, cfg.Store.RedisDB)

	t.Setenv("STORE_REDIS_PASSWORD", "other")
	t.Setenv("STORE_REDIS_DB", "5")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Store.RedisPassword)
	assert.Equal(t, 5, cfg.Store.RedisDB)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
}

func TestProcessorDriver(t *testing.T) {
	t.Setenv("PROCESSOR_DRIVER", "DocumentAI")
	_, err := Load()
	assert.ErrorContains(t, err, "DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required")

	t.Setenv("DOCUMENTAI_PROJECT_ID", "p1")
	t.Setenv("DOCUMENTAI_PROCESSOR_ID", "proc-1")
	t.Setenv("PROCESSOR_TIMEOUT", "30s")
	cfg, err := Load()
	require.NoError(t, err)
	opts := cfg.Processor.Options()
	assert.Equal(t, "documentai", opts.Driver)
	assert.Equal(t, "us", opts.DocumentAI.Location)
	assert.Equal(t, "proc-1", opts.DocumentAI.ProcessorID)
	assert.Equal(t, 30*time.Second, opts.DocumentAI.Timeout)

	t.Setenv("PROCESSOR_DRIVER", "textract")
	_, err = Load()
	assert.ErrorContains(t, err, `PROCESSOR_DRIVER "textract"`)
}
