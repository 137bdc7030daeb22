package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue names are part of the worker contract and never configurable.
const (
	QueuePreprocessorOut      = "preprocessorout"
	QueueEmbedderNotification = "embeddernotification"
	QueueDeadletter           = "deadletter"
)

// MaxQueueBatchSize caps both the per-fetch batch and the per-invocation
// iteration count of the notification consumers.
const MaxQueueBatchSize = 32

// Config holds all configuration for the orchestrator server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Cluster  ClusterConfig
	Pipeline PipelineConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type BlobConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	SourceBucket      string // source asset renditions
	MMRKBucket        string // shared MMRK artifacts
	WatermarkedBucket string // per-code temp renders
	OutputBucket      string // assembled output assets
	TmpBucket         string // archived pod logs and scratch data

	SignedURLTTL time.Duration
}

type ClusterConfig struct {
	APIURL    string
	Token     string
	Namespace string
	Insecure  bool
	JobImage  string
}

type PipelineConfig struct {
	QueueBatchSize    int
	QueueIterations   int
	VisibilityTimeout time.Duration

	AggregationLevel          int
	AggregationLevelOnlyEmbed int

	LockTimeout    time.Duration
	LockRetryDelay time.Duration

	AssemblyMaxAssets int
	AssemblyBudget    time.Duration
	CopyConcurrency   int
	CopyThrottle      time.Duration

	GOPSize              string
	KeepWatermarkedBlobs bool
}

type AuthConfig struct {
	// Bcrypt hash of the shared function key. Empty disables auth.
	APIKeyHash string
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("FORENSIQ_PORT", 8080),
			Env:  envString("FORENSIQ_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Blob: BlobConfig{
			Endpoint:          os.Getenv("BLOB_ENDPOINT"),
			Region:            envString("BLOB_REGION", "auto"),
			AccessKeyID:       os.Getenv("BLOB_ACCESS_KEY_ID"),
			SecretAccessKey:   os.Getenv("BLOB_SECRET_ACCESS_KEY"),
			SourceBucket:      envString("BLOB_SOURCE_BUCKET", "assets"),
			MMRKBucket:        envString("BLOB_MMRK_BUCKET", "mmrkrepo"),
			WatermarkedBucket: envString("BLOB_WATERMARKED_BUCKET", "watermarked"),
			OutputBucket:      envString("BLOB_OUTPUT_BUCKET", "wmassets"),
			TmpBucket:         envString("BLOB_TMP_BUCKET", "watermarktmp"),
			SignedURLTTL:      envDuration("BLOB_SIGNED_URL_TTL", 48*time.Hour),
		},
		Cluster: ClusterConfig{
			APIURL:    os.Getenv("CLUSTER_API_URL"),
			Token:     os.Getenv("CLUSTER_API_TOKEN"),
			Namespace: envString("CLUSTER_NAMESPACE", "default"),
			Insecure:  envBool("CLUSTER_INSECURE_SKIP_VERIFY", false),
			JobImage:  os.Getenv("CLUSTER_JOB_IMAGE"),
		},
		Pipeline: PipelineConfig{
			QueueBatchSize:            envInt("QUEUE_BATCH_SIZE", 10),
			QueueIterations:           envInt("QUEUE_MAX_ITERATIONS", 10),
			VisibilityTimeout:         envDuration("QUEUE_VISIBILITY_TIMEOUT", time.Hour),
			AggregationLevel:          envInt("JOB_AGGREGATION_LEVEL", 3),
			AggregationLevelOnlyEmbed: envInt("JOB_AGGREGATION_LEVEL_ONLY_EMBED", 1),
			LockTimeout:               envDuration("LOCK_TIMEOUT", 30*time.Second),
			LockRetryDelay:            envDuration("LOCK_RETRY_DELAY", time.Second),
			AssemblyMaxAssets:         envInt("ASSEMBLY_MAX_ASSETS", 10),
			AssemblyBudget:            envDuration("ASSEMBLY_BUDGET", 100*time.Second),
			CopyConcurrency:           envInt("COPY_CONCURRENCY", 4),
			CopyThrottle:              envDuration("COPY_THROTTLE", 500*time.Millisecond),
			GOPSize:                   envString("GOP_SIZE", "60"),
			KeepWatermarkedBlobs:      envBool("KEEP_WATERMARKED_BLOBS", false),
		},
		Auth: AuthConfig{
			APIKeyHash: os.Getenv("API_KEY_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Blob.Endpoint == "" {
		return fmt.Errorf("BLOB_ENDPOINT is required")
	}
	if !strings.HasPrefix(c.Blob.Endpoint, "http://") && !strings.HasPrefix(c.Blob.Endpoint, "https://") {
		return fmt.Errorf("BLOB_ENDPOINT must start with http:// or https://, got %q", c.Blob.Endpoint)
	}

	if c.Cluster.APIURL == "" {
		return fmt.Errorf("CLUSTER_API_URL is required")
	}
	if c.Cluster.JobImage == "" {
		return fmt.Errorf("CLUSTER_JOB_IMAGE is required")
	}

	if c.Pipeline.QueueBatchSize < 1 || c.Pipeline.QueueBatchSize > MaxQueueBatchSize {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be between 1 and %d, got %d", MaxQueueBatchSize, c.Pipeline.QueueBatchSize)
	}
	if c.Pipeline.QueueIterations < 1 || c.Pipeline.QueueIterations > MaxQueueBatchSize {
		return fmt.Errorf("QUEUE_MAX_ITERATIONS must be between 1 and %d, got %d", MaxQueueBatchSize, c.Pipeline.QueueIterations)
	}
	if c.Pipeline.AggregationLevel < 1 {
		return fmt.Errorf("JOB_AGGREGATION_LEVEL must be at least 1, got %d", c.Pipeline.AggregationLevel)
	}
	if c.Pipeline.AggregationLevelOnlyEmbed < 1 {
		return fmt.Errorf("JOB_AGGREGATION_LEVEL_ONLY_EMBED must be at least 1, got %d", c.Pipeline.AggregationLevelOnlyEmbed)
	}
	if c.Pipeline.CopyConcurrency < 1 {
		return fmt.Errorf("COPY_CONCURRENCY must be at least 1, got %d", c.Pipeline.CopyConcurrency)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
