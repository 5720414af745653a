package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Sink names accepted in OUTPUT_SINK.
const (
	SinkParquet  = "parquet"
	SinkPostgres = "postgres"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	SongData   string
	LogData    string
	OutputData string

	OutputSink  string
	DatabaseURL string

	KafkaBrokers   []string
	KafkaRunsTopic string

	AWSRegion    string
	S3MaxRetries int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownStr := envOrDefault("SHUTDOWN_TIMEOUT", "10s")
	shutdownTimeout, err := time.ParseDuration(shutdownStr)
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	s3Retries, err := parseS3MaxRetries()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SongData:   os.Getenv("SONG_DATA"),
		LogData:    os.Getenv("LOG_DATA"),
		OutputData: os.Getenv("OUTPUT_DATA"),

		OutputSink:  envOrDefault("OUTPUT_SINK", SinkParquet),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaBrokers:   parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaRunsTopic: envOrDefault("KAFKA_RUNS_TOPIC", "etl-run-reports"),

		AWSRegion:    envOrDefault("AWS_REGION", "us-east-1"),
		S3MaxRetries: s3Retries,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.SongData == "" {
		return nil, errors.New("SONG_DATA is required")
	}
	if cfg.LogData == "" {
		return nil, errors.New("LOG_DATA is required")
	}

	switch cfg.OutputSink {
	case SinkParquet:
		if cfg.OutputData == "" {
			return nil, errors.New("OUTPUT_DATA is required when OUTPUT_SINK is parquet")
		}
	case SinkPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when OUTPUT_SINK is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid OUTPUT_SINK %q: must be %s or %s", cfg.OutputSink, SinkParquet, SinkPostgres)
	}

	return cfg, nil
}

// NotifierEnabled reports whether a run-completion notification should be
// published. Leaving KAFKA_BROKERS unset disables it.
func (c *Config) NotifierEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseS3MaxRetries() (int, error) {
	s := os.Getenv("S3_MAX_RETRIES")
	if s == "" {
		return 3, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 10 {
		return 0, errors.New("invalid S3_MAX_RETRIES: must be 0-10")
	}
	return n, nil
}

func parseBrokers(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
