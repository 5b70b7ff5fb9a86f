package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retention  RetentionConfig  `yaml:"retention"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" (default) or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// IngestConfig holds the ingestion pipeline configuration.
type IngestConfig struct {
	// UTCOffsetHours is the fixed deployment-wide local-time offset. It is a
	// constant, not a timezone lookup; no daylight-saving adjustment.
	UTCOffsetHours int `yaml:"utc_offset_hours"`
	ChunkSize      int `yaml:"chunk_size"`
}

// RetentionConfig holds the retention sweep configuration.
type RetentionConfig struct {
	Enabled bool `yaml:"enabled"`
	// TimeOfDay is the daily trigger in "HH:MM" 24-hour form.
	TimeOfDay string        `yaml:"time_of_day"`
	Months    int           `yaml:"months"`
	Archive   ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig selects where sweep artifacts are written.
type ArchiveConfig struct {
	Backend string   `yaml:"backend"` // "file" (default) or "s3"
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config holds the object-storage connection settings for the s3 backend.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// BroadcastConfig bounds the in-process event fan-out.
type BroadcastConfig struct {
	MaxSubscribers   int `yaml:"max_subscribers"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// ParseTimeOfDay splits an "HH:MM" string into hour and minute.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time_of_day %q is not in HH:MM form", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time_of_day %q has an invalid hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time_of_day %q has an invalid minute", s)
	}
	return hour, minute, nil
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}

	if cfg.Ingest.ChunkSize <= 0 {
		cfg.Ingest.ChunkSize = 50
	}

	if cfg.Retention.TimeOfDay == "" {
		cfg.Retention.TimeOfDay = "03:30"
	}
	if _, _, err := ParseTimeOfDay(cfg.Retention.TimeOfDay); err != nil {
		return nil, err
	}
	if cfg.Retention.Months <= 0 {
		cfg.Retention.Months = 3
	}
	if cfg.Retention.Archive.Backend == "" {
		cfg.Retention.Archive.Backend = "file"
	}
	if cfg.Retention.Archive.Backend == "file" && cfg.Retention.Archive.Dir == "" {
		cfg.Retention.Archive.Dir = "./archive"
	}

	if cfg.Broadcast.MaxSubscribers <= 0 {
		cfg.Broadcast.MaxSubscribers = 64
	}
	if cfg.Broadcast.SubscriberBuffer <= 0 {
		cfg.Broadcast.SubscriberBuffer = 16
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
