package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvPrefix prefixes every environment override, e.g. AGENTHIRE_SERVER_PORT.
	EnvPrefix = "AGENTHIRE_"
)

// Dispatch modes
const (
	DispatchInProcess = "inprocess"
	DispatchRabbitMQ  = "rabbitmq"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Nonce stores
const (
	NonceStoreMemory = "memory"
	NonceStoreRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq" envPrefix:"RABBITMQ_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	App       AppConfig       `yaml:"app" envPrefix:"APP_"`
	Worker    WorkerConfig    `yaml:"worker" envPrefix:"WORKER_"`
	Webhook   WebhookConfig   `yaml:"webhook" envPrefix:"WEBHOOK_"`
	Payment   PaymentConfig   `yaml:"payment" envPrefix:"PAYMENT_"`
	Processor ProcessorConfig `yaml:"processor" envPrefix:"PROCESSOR_"`
	Disputes  DisputesConfig  `yaml:"disputes" envPrefix:"DISPUTES_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Dispatch  DispatchConfig  `yaml:"dispatch" envPrefix:"DISPATCH_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds PostgreSQL connection configuration. Driver "memory"
// keeps all state in process and ignores the connection fields.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"NAME"`
	SSLMode         string        `yaml:"sslmode" env:"SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	EnsureSchema    bool          `yaml:"ensure_schema" env:"ENSURE_SCHEMA"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"HOST"`
	Port       int              `yaml:"port" env:"PORT"`
	User       string           `yaml:"user" env:"USER"`
	Password   string           `yaml:"password" env:"PASSWORD"`
	VHost      string           `yaml:"vhost" env:"VHOST"`
	Exchange   ExchangeConfig   `yaml:"exchange" envPrefix:"EXCHANGE_"`
	Queue      QueueConfig      `yaml:"queue" envPrefix:"QUEUE_"`
	RoutingKey string           `yaml:"routing_key" env:"ROUTING_KEY"`
	Connection ConnectionConfig `yaml:"connection" envPrefix:"CONNECTION_"`
	Publish    PublishConfig    `yaml:"publish" envPrefix:"PUBLISH_"`
	Consumer   ConsumerConfig   `yaml:"consumer" envPrefix:"CONSUMER_"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name" env:"NAME"`
	Type       string `yaml:"type" env:"TYPE"`
	Durable    bool   `yaml:"durable" env:"DURABLE"`
	AutoDelete bool   `yaml:"auto_delete" env:"AUTO_DELETE"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name" env:"NAME"`
	Durable    bool   `yaml:"durable" env:"DURABLE"`
	AutoDelete bool   `yaml:"auto_delete" env:"AUTO_DELETE"`
	Exclusive  bool   `yaml:"exclusive" env:"EXCLUSIVE"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryInterval     time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	Heartbeat         time.Duration `yaml:"heartbeat" env:"HEARTBEAT"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" env:"TIMEOUT"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryInterval     time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	// Timeout bounds one enqueue from the API, retries included.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count" env:"PREFETCH_COUNT"`
}

// RedisConfig holds the Redis connection used by the nonce store
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name" env:"NAME"`
	Version     string `yaml:"version" env:"VERSION"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency" env:"CONCURRENCY"`
	JobTimeout      time.Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// WebhookConfig holds the agent webhook delivery policy
type WebhookConfig struct {
	MaxAttempts       int             `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	PerAttemptTimeout time.Duration   `yaml:"per_attempt_timeout" env:"PER_ATTEMPT_TIMEOUT"`
	DelaySchedule     []time.Duration `yaml:"delay_schedule" env:"DELAY_SCHEDULE"`
	UserAgent         string          `yaml:"user_agent" env:"USER_AGENT"`
}

// PaymentConfig holds the external payment verifier settings
type PaymentConfig struct {
	VerifierURL      string        `yaml:"verifier_url" env:"VERIFIER_URL"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	DefaultRecipient string        `yaml:"default_recipient" env:"DEFAULT_RECIPIENT"`
}

// ProcessorConfig holds the external task processor settings. An empty URL
// disables processing for agents without a webhook.
type ProcessorConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DisputesConfig holds dispute settlement settings
type DisputesConfig struct {
	PartialRefundPercent int `yaml:"partial_refund_percent" env:"PARTIAL_REFUND_PERCENT"`
}

// AuthConfig holds wallet sign-in and token settings
type AuthConfig struct {
	JWTSecret            string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer               string        `yaml:"issuer" env:"ISSUER"`
	TokenTTL             time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	ChallengeTTL         time.Duration `yaml:"challenge_ttl" env:"CHALLENGE_TTL"`
	AdminWallets         []string      `yaml:"admin_wallets" env:"ADMIN_WALLETS"`
	NonceStore           string        `yaml:"nonce_store" env:"NONCE_STORE"`
	NonceCleanupInterval time.Duration `yaml:"nonce_cleanup_interval" env:"NONCE_CLEANUP_INTERVAL"`
	SignatureVerifierURL string        `yaml:"signature_verifier_url" env:"SIGNATURE_VERIFIER_URL"`
}

// DispatchConfig selects where paid jobs are dispatched
type DispatchConfig struct {
	Mode       string `yaml:"mode" env:"MODE"`
	BufferSize int    `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// Load reads and parses the configuration file, then applies environment
// overrides and defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = StoragePostgres
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = 4
	}
	if c.Webhook.PerAttemptTimeout <= 0 {
		c.Webhook.PerAttemptTimeout = 30 * time.Second
	}
	if len(c.Webhook.DelaySchedule) == 0 {
		c.Webhook.DelaySchedule = []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}
	}
	if c.Disputes.PartialRefundPercent <= 0 || c.Disputes.PartialRefundPercent > 100 {
		c.Disputes.PartialRefundPercent = 50
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "agenthire"
	}
	if c.Auth.NonceStore == "" {
		c.Auth.NonceStore = NonceStoreMemory
	}
	if c.Auth.NonceCleanupInterval <= 0 {
		c.Auth.NonceCleanupInterval = time.Minute
	}
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = DispatchInProcess
	}
	if c.Dispatch.BufferSize <= 0 {
		c.Dispatch.BufferSize = 64
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	switch c.Dispatch.Mode {
	case DispatchInProcess:
	case DispatchRabbitMQ:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Dispatch.Mode)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if err := requireURL("auth signature_verifier_url", c.Auth.SignatureVerifierURL); err != nil {
		return err
	}

	switch c.Auth.NonceStore {
	case NonceStoreMemory:
	case NonceStoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis nonce store")
		}
	default:
		return fmt.Errorf("unknown nonce store %q", c.Auth.NonceStore)
	}

	if err := requireURL("payment verifier_url", c.Payment.VerifierURL); err != nil {
		return err
	}

	return c.validateDispatch()
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Database.Driver != StoragePostgres {
		return fmt.Errorf("worker requires the postgres driver, got %q", c.Database.Driver)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	return c.validateDispatch()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case StorageMemory:
		return nil
	case StoragePostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

// validateDispatch checks the settings shared by both dispatch paths.
func (c *Config) validateDispatch() error {
	if c.Webhook.MaxAttempts <= 0 {
		return fmt.Errorf("webhook max_attempts must be greater than 0")
	}
	for _, d := range c.Webhook.DelaySchedule {
		if d < 0 {
			return fmt.Errorf("webhook delay_schedule must not contain negative delays")
		}
	}
	if c.Processor.URL != "" {
		if err := requireURL("processor url", c.Processor.URL); err != nil {
			return err
		}
	}
	return nil
}

func requireURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) url", name)
	}
	return nil
}
