package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  string         `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig is optional: an empty Addr disables the availability cache and
// the cross-process train lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AuthConfig struct {
	Secret          string `yaml:"secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	AdminAPIKey     string `yaml:"admin_api_key"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type BookingConfig struct {
	LockAcquireTimeoutMs   int `yaml:"lock_acquire_timeout_ms"`
	CommitTimeoutMs        int `yaml:"commit_timeout_ms"`
	CommitRetries          int `yaml:"commit_retries"`
	DistributedLockTTLSecs int `yaml:"distributed_lock_ttl_seconds"`
	AvailabilityCacheTTL   int `yaml:"availability_cache_ttl_seconds"`
}

func (b BookingConfig) LockAcquireTimeout() time.Duration {
	return time.Duration(b.LockAcquireTimeoutMs) * time.Millisecond
}

func (b BookingConfig) CommitTimeout() time.Duration {
	return time.Duration(b.CommitTimeoutMs) * time.Millisecond
}

func (b BookingConfig) DistributedLockTTL() time.Duration {
	return time.Duration(b.DistributedLockTTLSecs) * time.Second
}

func (b BookingConfig) AvailabilityTTL() time.Duration {
	return time.Duration(b.AvailabilityCacheTTL) * time.Second
}

type WorkerConfig struct {
	AuditIntervalMinutes int `yaml:"audit_interval_minutes"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Keys absent
// from data keep their default; keys present keep their value, zero included.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP:     HTTPConfig{Address: ":8080"},
		Storage:  StoragePostgres,
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		Kafka:    KafkaConfig{GroupID: "railbooking-notifier"},
		Auth:     AuthConfig{TokenTTLMinutes: 60},
		Booking: BookingConfig{
			CommitTimeoutMs:        5000,
			CommitRetries:          3,
			DistributedLockTTLSecs: 10,
			AvailabilityCacheTTL:   5,
		},
		Worker: WorkerConfig{AuditIntervalMinutes: 10},
		Log:    LogConfig{Env: "development"},
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		errs = append(errs, fmt.Errorf("storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage))
	}
	if c.Storage == StoragePostgres && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required for postgres storage"))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("auth.token_ttl_minutes must be positive"))
	}
	if c.Booking.LockAcquireTimeoutMs < 0 {
		errs = append(errs, errors.New("booking.lock_acquire_timeout_ms must not be negative"))
	}
	if c.Booking.CommitTimeoutMs <= 0 {
		errs = append(errs, errors.New("booking.commit_timeout_ms must be positive"))
	}
	if c.Booking.CommitRetries < 0 {
		errs = append(errs, errors.New("booking.commit_retries must not be negative"))
	}
	if c.Booking.DistributedLockTTLSecs <= 0 {
		errs = append(errs, errors.New("booking.distributed_lock_ttl_seconds must be positive"))
	}
	if c.Booking.AvailabilityCacheTTL <= 0 {
		errs = append(errs, errors.New("booking.availability_cache_ttl_seconds must be positive"))
	}
	if c.Worker.AuditIntervalMinutes <= 0 {
		errs = append(errs, errors.New("worker.audit_interval_minutes must be positive"))
	}
	return errors.Join(errs...)
}
