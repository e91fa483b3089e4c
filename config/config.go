package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Inventory  InventoryConfig  `yaml:"inventory"`
	Payment    PaymentConfig    `yaml:"payment"`
	Settlement SettlementConfig `yaml:"settlement"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	URLPath        string `yaml:"url_path"`
	Insecure       bool   `yaml:"insecure"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type StorageConfig struct {
	Driver string `yaml:"driver"`
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

// URL is the form golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers                 []string `yaml:"brokers"`
	PaymentEventsTopic      string   `yaml:"payment_events_topic"`
	SettlementFailuresTopic string   `yaml:"settlement_failures_topic"`
	GroupID                 string   `yaml:"group_id"`
}

type InventoryConfig struct {
	StatusCacheTTLSeconds int `yaml:"status_cache_ttl_seconds"`
}

func (c InventoryConfig) StatusCacheTTL() time.Duration {
	return time.Duration(c.StatusCacheTTLSeconds) * time.Second
}

type PaymentConfig struct {
	SnowflakeNode int64 `yaml:"snowflake_node"`
}

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type SettlementConfig struct {
	Transport      string        `yaml:"transport"`
	Endpoint       string        `yaml:"endpoint"`
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	Jitter         time.Duration `yaml:"jitter"`
}

type WorkerConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets and deployment endpoints come from the environment
// (or a .env file loaded before LoadConfig).
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("DATABASE_PASSWORD"); ok {
		c.Database.Password = v
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := os.LookupEnv("SETTLEMENT_ENDPOINT"); ok {
		c.Settlement.Endpoint = v
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "tourledger"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StoragePostgres
	}
	if c.Kafka.SettlementFailuresTopic == "" {
		c.Kafka.SettlementFailuresTopic = "settlement_failures"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "tourledger-worker"
	}
	if c.Inventory.StatusCacheTTLSeconds == 0 {
		c.Inventory.StatusCacheTTLSeconds = 30
	}
	if c.Payment.SnowflakeNode == 0 {
		c.Payment.SnowflakeNode = 1
	}
	if c.Settlement.Transport == "" {
		c.Settlement.Transport = TransportHTTP
	}
	if c.Settlement.MaxAttempts == 0 {
		c.Settlement.MaxAttempts = 3
	}
	if c.Settlement.AttemptTimeout == 0 {
		c.Settlement.AttemptTimeout = 5 * time.Second
	}
	if c.Settlement.BaseDelay == 0 {
		c.Settlement.BaseDelay = time.Second
	}
	if c.Worker.MetricsAddress == "" {
		c.Worker.MetricsAddress = ":9102"
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Settlement.Transport {
	case TransportHTTP, TransportGRPC:
	default:
		return fmt.Errorf("unknown settlement transport %q", c.Settlement.Transport)
	}
	if c.Settlement.MaxAttempts < 1 {
		return fmt.Errorf("settlement.max_attempts must be positive, got %d", c.Settlement.MaxAttempts)
	}
	if c.Payment.SnowflakeNode < 0 || c.Payment.SnowflakeNode > 1023 {
		return fmt.Errorf("payment.snowflake_node must be within 0..1023, got %d", c.Payment.SnowflakeNode)
	}
	return nil
}
