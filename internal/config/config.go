// Package config holds the collector configuration, loaded through Viper
// from config file, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// Default values applied when neither config file nor environment
// provides a setting.
const (
	DefaultManifestURL        = "http://data.gdeltproject.org/gdeltv2/lastupdate-translation.txt"
	DefaultDownloadDir        = "/tmp/gdelt"
	DefaultCheckInterval      = time.Minute
	DefaultRetryInterval      = 5 * time.Minute
	DefaultHashTTL            = 7 * 24 * time.Hour
	DefaultStatusTTL          = time.Hour
	DefaultHTTPConnectTimeout = 10 * time.Second
	DefaultHTTPReadTimeout    = 2 * time.Minute

	DefaultRetryInitialDelay = time.Second
	DefaultRetryMaxDelay     = 5 * time.Second
	DefaultRetryMaxAttempts  = 3

	DefaultServerAddress = ":8080"
)

// Config is the root configuration for the collector service.
type Config struct {
	Gdelt  GdeltConfig   `yaml:"gdelt"`
	Redis  RedisConfig   `yaml:"redis"`
	Minio  MinioConfig   `yaml:"minio"`
	Kafka  KafkaConfig   `yaml:"kafka"`
	Server ServerConfig  `yaml:"server"`
	Logger logger.Config `yaml:"logger"`
}

// GdeltConfig controls the manifest polling and archive pipeline.
type GdeltConfig struct {
	// ManifestURL is the absolute URL of the lastupdate manifest.
	ManifestURL string `yaml:"manifest_url"`
	// DownloadDir is the local scratch area for archives and extraction.
	DownloadDir string `yaml:"download_dir"`
	// CheckInterval is the period between manifest polls.
	CheckInterval time.Duration `yaml:"check_interval"`
	// RetryInterval is the period between pending-file resend sweeps.
	RetryInterval time.Duration `yaml:"retry_interval"`
	// HashTTL bounds how long a committed archive hash suppresses reprocessing.
	HashTTL time.Duration `yaml:"hash_ttl"`
	// StatusTTL bounds the retry window for unsent file URLs.
	StatusTTL time.Duration `yaml:"status_ttl"`
	// HTTPConnectTimeout bounds dialing the manifest and archive hosts.
	HTTPConnectTimeout time.Duration `yaml:"http_connect_timeout"`
	// HTTPReadTimeout bounds a whole fetch including the body read.
	HTTPReadTimeout time.Duration `yaml:"http_read_timeout"`
	// RetryInitialDelay is the first backoff delay for manifest fetch retries.
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	// RetryMaxDelay caps the backoff delay between retries.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`
	// RetryMaxAttempts is the total attempt budget for the manifest fetch.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MinioConfig holds object storage settings.
type MinioConfig struct {
	// Endpoint is the MinIO server address, scheme included
	// (e.g. "http://minio:9000").
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// KafkaConfig holds producer and topic settings.
type KafkaConfig struct {
	// BootstrapServers is the comma-separated broker list.
	BootstrapServers string `yaml:"bootstrap_servers"`
	// TopicEvent receives URLs extracted from translation export archives.
	TopicEvent string `yaml:"topic_event"`
	// TopicMention receives URLs extracted from translation mentions archives.
	TopicMention string `yaml:"topic_mention"`
}

// ServerConfig holds the HTTP control surface settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// SetDefaults registers all default values on the given Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gdelt.manifest_url", DefaultManifestURL)
	v.SetDefault("gdelt.download_dir", DefaultDownloadDir)
	v.SetDefault("gdelt.check_interval", DefaultCheckInterval)
	v.SetDefault("gdelt.retry_interval", DefaultRetryInterval)
	v.SetDefault("gdelt.hash_ttl", DefaultHashTTL)
	v.SetDefault("gdelt.status_ttl", DefaultStatusTTL)
	v.SetDefault("gdelt.http_connect_timeout", DefaultHTTPConnectTimeout)
	v.SetDefault("gdelt.http_read_timeout", DefaultHTTPReadTimeout)
	v.SetDefault("gdelt.retry_initial_delay", DefaultRetryInitialDelay)
	v.SetDefault("gdelt.retry_max_delay", DefaultRetryMaxDelay)
	v.SetDefault("gdelt.retry_max_attempts", DefaultRetryMaxAttempts)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("minio.endpoint", "http://localhost:9000")
	v.SetDefault("minio.bucket", "gdelt-extracted")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("kafka.bootstrap_servers", "localhost:9092")
	v.SetDefault("kafka.topic_event", "gdelt.collector.event")
	v.SetDefault("kafka.topic_mention", "gdelt.collector.mention")

	v.SetDefault("server.address", DefaultServerAddress)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)
}

// Load builds a Config from the given Viper instance.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Gdelt: GdeltConfig{
			ManifestURL:        v.GetString("gdelt.manifest_url"),
			DownloadDir:        v.GetString("gdelt.download_dir"),
			CheckInterval:      v.GetDuration("gdelt.check_interval"),
			RetryInterval:      v.GetDuration("gdelt.retry_interval"),
			HashTTL:            v.GetDuration("gdelt.hash_ttl"),
			StatusTTL:          v.GetDuration("gdelt.status_ttl"),
			HTTPConnectTimeout: v.GetDuration("gdelt.http_connect_timeout"),
			HTTPReadTimeout:    v.GetDuration("gdelt.http_read_timeout"),
			RetryInitialDelay:  v.GetDuration("gdelt.retry_initial_delay"),
			RetryMaxDelay:      v.GetDuration("gdelt.retry_max_delay"),
			RetryMaxAttempts:   v.GetInt("gdelt.retry_max_attempts"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Minio: MinioConfig{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			Bucket:    v.GetString("minio.bucket"),
			UseSSL:    v.GetBool("minio.use_ssl"),
		},
		Kafka: KafkaConfig{
			BootstrapServers: v.GetString("kafka.bootstrap_servers"),
			TopicEvent:       v.GetString("kafka.topic_event"),
			TopicMention:     v.GetString("kafka.topic_mention"),
		},
		Server: ServerConfig{
			Address: v.GetString("server.address"),
		},
		Logger: logger.Config{
			Level:       v.GetString("logger.level"),
			Development: v.GetBool("logger.development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Gdelt.ManifestURL == "" {
		return errors.New("gdelt manifest_url is required")
	}
	if c.Gdelt.DownloadDir == "" {
		return errors.New("gdelt download_dir is required")
	}
	if c.Gdelt.CheckInterval <= 0 {
		return fmt.Errorf("gdelt check_interval must be positive, got %s", c.Gdelt.CheckInterval)
	}
	if c.Gdelt.RetryInterval <= 0 {
		return fmt.Errorf("gdelt retry_interval must be positive, got %s", c.Gdelt.RetryInterval)
	}
	if c.Gdelt.HashTTL <= 0 || c.Gdelt.StatusTTL <= 0 {
		return errors.New("gdelt hash_ttl and status_ttl must be positive")
	}
	if c.Redis.Address == "" {
		return errors.New("redis address is required")
	}
	if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
		return errors.New("minio endpoint and bucket are required")
	}
	if c.Kafka.BootstrapServers == "" {
		return errors.New("kafka bootstrap_servers is required")
	}
	if c.Kafka.TopicEvent == "" || c.Kafka.TopicMention == "" {
		return errors.New("kafka topic_event and topic_mention are required")
	}
	return nil
}
