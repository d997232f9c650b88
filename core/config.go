package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the orchestrator core. It supports
// three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("orchestrator-worker"),
//	    WithPort(8080),
//	    WithBrokerURL("redis://localhost:6379"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core identity
	Name      string `json:"name" yaml:"name" env:"ORCHESTRATOR_SERVICE_NAME" default:"orchestrator"`
	ID        string `json:"id" yaml:"id" env:"ORCHESTRATOR_SERVICE_ID"`
	Port      int    `json:"port" yaml:"port" env:"PORT" default:"8080"`
	Address   string `json:"address" yaml:"address"`
	Namespace string `json:"namespace" yaml:"namespace" env:"ORCHESTRATOR_NAMESPACE" default:"default"`

	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Broker is the Queue Broker Adapter's Redis connection and per-kind
	// queue naming (spec §3, §4.2, §6).
	Broker BrokerConfig `json:"broker" yaml:"broker"`

	// StatusBus is the Status Bus's pub/sub connection and web-tier HTTP
	// bridge settings (spec §4.6, §6).
	StatusBus StatusBusConfig `json:"status_bus" yaml:"status_bus"`

	// Database is the Database Task Manager's Postgres connection and
	// field-encryption keys (spec §4.5, §6).
	Database DatabaseConfig `json:"database" yaml:"database"`

	// LLM configures the task kind used for transcription, classification,
	// contact extraction and translation (spec §1, §4.7).
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Locale carries platform-wide defaults applied when a grievance's
	// office cannot be derived from the intake channel (spec §3 entity id,
	// §4.5 office directory fallback).
	Locale LocaleConfig `json:"locale" yaml:"locale"`

	Telemetry   TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
	Resilience  ResilienceConfig  `json:"resilience" yaml:"resilience"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Development DevelopmentConfig `json:"development" yaml:"development"`
	Container   ContainerConfig   `json:"container" yaml:"container"`

	// Maintenance configures pkg/maintenance's cron-driven retry sweep and
	// result-retention pruning (spec SUPPLEMENTED FEATURES, DOMAIN STACK).
	Maintenance MaintenanceConfig `json:"maintenance" yaml:"maintenance"`

	// Messaging configures the Messaging task kind's SMTP and Telegram
	// channels (spec §3's task kind table).
	Messaging MessagingConfig `json:"messaging" yaml:"messaging"`

	// Logger instance for configuration operations (excluded from JSON/YAML)
	logger Logger `json:"-" yaml:"-"`
}

// HTTPConfig contains HTTP server configuration including timeouts, limits, and CORS settings.
type HTTPConfig struct {
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"ORCHESTRATOR_HTTP_READ_TIMEOUT" default:"30s"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"ORCHESTRATOR_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"ORCHESTRATOR_HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"ORCHESTRATOR_HTTP_IDLE_TIMEOUT" default:"120s"`
	MaxHeaderBytes    int           `json:"max_header_bytes" yaml:"max_header_bytes" env:"ORCHESTRATOR_HTTP_MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"ORCHESTRATOR_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	EnableHealthCheck bool          `json:"enable_health_check" yaml:"enable_health_check" default:"true"`
	HealthCheckPath   string        `json:"health_check_path" yaml:"health_check_path" default:"/health"`
	CORS              CORSConfig    `json:"cors" yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing configuration for the
// chatbot-facing intake API and the websocket upgrade endpoint.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" env:"ORCHESTRATOR_CORS_ENABLED" default:"false"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" env:"ORCHESTRATOR_CORS_ORIGINS"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" env:"ORCHESTRATOR_CORS_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" env:"ORCHESTRATOR_CORS_HEADERS" default:"Content-Type,Authorization"`
	ExposedHeaders   []string `json:"exposed_headers" yaml:"exposed_headers" env:"ORCHESTRATOR_CORS_EXPOSED_HEADERS"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" env:"ORCHESTRATOR_CORS_CREDENTIALS" default:"false"`
	MaxAge           int      `json:"max_age" yaml:"max_age" env:"ORCHESTRATOR_CORS_MAX_AGE" default:"86400"`
}

// BrokerConfig configures the Queue Broker Adapter (spec §4.2): a single
// Redis connection fronting one list per task kind, named so an operator
// can relocate any kind onto its own Redis deployment without code changes.
type BrokerConfig struct {
	URL             string `json:"url" yaml:"url" env:"ORCHESTRATOR_BROKER_URL" default:"redis://localhost:6379/0"`
	QueueLLM        string `json:"queue_llm" yaml:"queue_llm" env:"ORCHESTRATOR_QUEUE_LLM" default:"llm"`
	QueueFileUpload string `json:"queue_file_upload" yaml:"queue_file_upload" env:"ORCHESTRATOR_QUEUE_FILE_UPLOAD" default:"file_upload"`
	QueueMessaging  string `json:"queue_messaging" yaml:"queue_messaging" env:"ORCHESTRATOR_QUEUE_MESSAGING" default:"messaging"`
	QueueDatabase   string `json:"queue_database" yaml:"queue_database" env:"ORCHESTRATOR_QUEUE_DATABASE" default:"database"`
	QueueDefault    string `json:"queue_default" yaml:"queue_default" env:"ORCHESTRATOR_QUEUE_DEFAULT" default:"default"`
}

// QueueNames returns the full set of declared queue names in a stable order,
// used at startup to validate that every registered task kind maps onto a
// declared queue (spec §4.1 registry validation).
func (b BrokerConfig) QueueNames() []string {
	return []string{b.QueueLLM, b.QueueFileUpload, b.QueueMessaging, b.QueueDatabase, b.QueueDefault}
}

// StatusBusConfig configures the Status Bus (spec §4.6): the Redis pub/sub
// rooms that carry status frames, and the HTTP bridge used to hand a frame
// to the web tier's websocket layer without the worker runtime importing it.
type StatusBusConfig struct {
	URL           string        `json:"url" yaml:"url" env:"ORCHESTRATOR_STATUSBUS_URL" default:"redis://localhost:6379/1"`
	Channel       string        `json:"channel" yaml:"channel" default:"status_update"`
	BridgeBaseURL string        `json:"bridge_base_url" yaml:"bridge_base_url" env:"ORCHESTRATOR_WEB_BASE_URL"`
	BridgeTimeout time.Duration `json:"bridge_timeout" yaml:"bridge_timeout" default:"10s"`
}

// DatabaseConfig configures the Database Task Manager (spec §4.5): the
// Postgres connection pool and the keys used for field-level encryption of
// grievance contact details plus the HMAC used for phone-hash lookups.
type DatabaseConfig struct {
	URL               string `json:"url" yaml:"url" env:"ORCHESTRATOR_DATABASE_URL"`
	PoolSize          int    `json:"pool_size" yaml:"pool_size" env:"ORCHESTRATOR_DATABASE_POOL_SIZE" default:"10"`
	EncryptionKey     string `json:"-" yaml:"-" env:"ORCHESTRATOR_ENCRYPTION_KEY"`
	EncryptionHMACKey string `json:"-" yaml:"-" env:"ORCHESTRATOR_ENCRYPTION_HMAC_KEY"`
}

// LLMConfig configures the provider behind the LLM task kind (spec §1's
// transcription/classification/contact-extraction/translation pipeline).
// This is an optional module — LLM tasks fail fast with a configuration
// error if Enabled=false and a task attempts to run.
type LLMConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled" env:"ORCHESTRATOR_LLM_ENABLED" default:"false"`
	Provider      string        `json:"provider" yaml:"provider" env:"ORCHESTRATOR_LLM_PROVIDER" default:"anthropic"`
	APIKey        string        `json:"-" yaml:"-" env:"ORCHESTRATOR_LLM_API_KEY,ANTHROPIC_API_KEY"`
	Model         string        `json:"model" yaml:"model" env:"ORCHESTRATOR_LLM_MODEL" default:"claude-3-5-sonnet-20241022"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" env:"ORCHESTRATOR_LLM_TIMEOUT" default:"30s"`
	RetryAttempts int           `json:"retry_attempts" yaml:"retry_attempts" env:"ORCHESTRATOR_LLM_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `json:"retry_delay" yaml:"retry_delay" env:"ORCHESTRATOR_LLM_RETRY_DELAY" default:"1s"`
}

// LocaleConfig carries platform-wide defaults used when an intake channel
// cannot supply an office code, so entity id generation (spec §3) always has
// a province/district pair and timestamps are rendered in a single timezone
// across logs and status frames.
type LocaleConfig struct {
	DefaultTimezone string `json:"default_timezone" yaml:"default_timezone" env:"ORCHESTRATOR_DEFAULT_TIMEZONE" default:"UTC"`
	DefaultProvince string `json:"default_province" yaml:"default_province" env:"ORCHESTRATOR_DEFAULT_PROVINCE"`
	DefaultDistrict string `json:"default_district" yaml:"default_district" env:"ORCHESTRATOR_DEFAULT_DISTRICT"`
}

// TelemetryConfig contains observability configuration for metrics and distributed tracing.
// This is an optional module - telemetry is only initialized when Enabled=true.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled" env:"ORCHESTRATOR_TELEMETRY_ENABLED" default:"false"`
	Provider       string  `json:"provider" yaml:"provider" default:"otel"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint" env:"ORCHESTRATOR_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	MetricsEnabled bool    `json:"metrics_enabled" yaml:"metrics_enabled" default:"true"`
	TracingEnabled bool    `json:"tracing_enabled" yaml:"tracing_enabled" default:"true"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate" default:"1.0"`
	Insecure       bool    `json:"insecure" yaml:"insecure" default:"true"`
}

// ResilienceConfig contains fault tolerance settings shared by the broker,
// database, status-bus and LLM clients.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
	Timeout        TimeoutConfig        `json:"timeout" yaml:"timeout"`
}

// CircuitBreakerConfig defines circuit breaker pattern settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" env:"ORCHESTRATOR_CB_ENABLED" default:"false"`
	Threshold        int           `json:"threshold" yaml:"threshold" env:"ORCHESTRATOR_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" env:"ORCHESTRATOR_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" yaml:"half_open_requests" env:"ORCHESTRATOR_CB_HALF_OPEN" default:"3"`
}

// RetryConfig defines the default retry/backoff settings for components
// that do not use the per-task-kind retry table in pkg/retry (spec §4.8).
// Formula: interval = min(InitialInterval * (Multiplier ^ attempt), MaxInterval)
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" env:"ORCHESTRATOR_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" env:"ORCHESTRATOR_RETRY_INITIAL_INTERVAL" default:"1s"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" env:"ORCHESTRATOR_RETRY_MAX_INTERVAL" default:"30s"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" env:"ORCHESTRATOR_RETRY_MULTIPLIER" default:"2.0"`
}

// TimeoutConfig defines timeout settings for various operations.
type TimeoutConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout" default:"30s"`
	MaxTimeout     time.Duration `json:"max_timeout" yaml:"max_timeout" default:"5m"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"ORCHESTRATOR_LOG_LEVEL" default:"info"`
	Format     string `json:"format" yaml:"format" env:"ORCHESTRATOR_LOG_FORMAT" default:"json"`
	Output     string `json:"output" yaml:"output" default:"stdout"`
	Dir        string `json:"dir" yaml:"dir" env:"ORCHESTRATOR_LOG_DIR"`
	TimeFormat string `json:"time_format" yaml:"time_format" default:"2006-01-02T15:04:05.000Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
//
// WARNING: Never enable development mode in production!
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"DEV_MODE" default:"false"`
	MockLLM      bool `json:"mock_llm" yaml:"mock_llm" env:"ORCHESTRATOR_MOCK_LLM" default:"false"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging" env:"ORCHESTRATOR_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" yaml:"pretty_logs" default:"false"`
}

// MaintenanceConfig governs pkg/maintenance's cron-driven sweep: requeuing
// tasks stuck in RETRYING past their scheduled delay and pruning terminal
// task rows older than ResultTTL.
type MaintenanceConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" env:"ORCHESTRATOR_MAINTENANCE_ENABLED" default:"false"`
	SweepSchedule  string        `json:"sweep_schedule" yaml:"sweep_schedule" env:"ORCHESTRATOR_MAINTENANCE_SCHEDULE" default:"@every 1m"`
	StuckGrace     time.Duration `json:"stuck_grace" yaml:"stuck_grace" env:"ORCHESTRATOR_MAINTENANCE_STUCK_GRACE" default:"2m"`
	ResultTTL      time.Duration `json:"result_ttl" yaml:"result_ttl" env:"ORCHESTRATOR_MAINTENANCE_RESULT_TTL" default:"720h"`
}

// MessagingConfig configures the Messaging task kind's channels (spec §3's
// task kind table): office notification over SMTP email and, optionally, a
// Telegram bot. Both are optional — a channel whose Enabled flag is false
// is never constructed, so a deployment can run with only one wired.
type MessagingConfig struct {
	SMTP     SMTPConfig     `json:"smtp" yaml:"smtp"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// SMTPConfig configures the office-notification email channel.
type SMTPConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"ORCHESTRATOR_SMTP_ENABLED" default:"false"`
	Host     string `json:"host" yaml:"host" env:"ORCHESTRATOR_SMTP_HOST"`
	Port     int    `json:"port" yaml:"port" env:"ORCHESTRATOR_SMTP_PORT" default:"587"`
	Username string `json:"username" yaml:"username" env:"ORCHESTRATOR_SMTP_USERNAME"`
	Password string `json:"-" yaml:"-" env:"ORCHESTRATOR_SMTP_PASSWORD"`
	From     string `json:"from" yaml:"from" env:"ORCHESTRATOR_SMTP_FROM"`
}

// TelegramConfig configures the office-notification Telegram bot channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ORCHESTRATOR_TELEGRAM_ENABLED" default:"false"`
	Token   string `json:"-" yaml:"-" env:"ORCHESTRATOR_TELEGRAM_TOKEN"`
	ChatID  int64  `json:"chat_id" yaml:"chat_id" env:"ORCHESTRATOR_TELEGRAM_CHAT_ID"`
}

// ContainerConfig carries the subset of container-runtime identity used for
// log correlation. The orchestrator does not perform service discovery or
// leader election, so this is deliberately smaller than a full Kubernetes
// client configuration.
type ContainerConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"KUBERNETES_SERVICE_HOST"`
	PodName   string `json:"pod_name" yaml:"pod_name" env:"HOSTNAME"`
	Namespace string `json:"namespace" yaml:"namespace" env:"POD_NAMESPACE"`
}

// Option is a functional option for configuring the orchestrator core.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults. The defaults
// are adjusted based on the detected environment (container vs local).
func DefaultConfig() *Config {
	cfg := &Config{
		Name:      "orchestrator",
		Port:      8080,
		Namespace: "default",
		HTTP: HTTPConfig{
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ShutdownTimeout:   10 * time.Second,
			EnableHealthCheck: true,
			HealthCheckPath:   "/health",
			CORS: CORSConfig{
				Enabled:          false,
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: false,
				MaxAge:           86400,
			},
		},
		Broker: BrokerConfig{
			URL:             "redis://localhost:6379/0",
			QueueLLM:        "llm",
			QueueFileUpload: "file_upload",
			QueueMessaging:  "messaging",
			QueueDatabase:   "database",
			QueueDefault:    "default",
		},
		StatusBus: StatusBusConfig{
			URL:           "redis://localhost:6379/1",
			Channel:       DefaultStatusChannel,
			BridgeTimeout: DefaultStatusBridgeTimeout,
		},
		Database: DatabaseConfig{
			PoolSize: 10,
		},
		LLM: LLMConfig{
			Enabled:       false,
			Provider:      "anthropic",
			Model:         "claude-3-5-sonnet-20241022",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    1 * time.Second,
		},
		Locale: LocaleConfig{
			DefaultTimezone: "UTC",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Provider:       "otel",
			MetricsEnabled: true,
			TracingEnabled: true,
			SamplingRate:   1.0,
			Insecure:       true,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          false,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 3,
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 1 * time.Second,
				MaxInterval:     30 * time.Second,
				Multiplier:      2.0,
			},
			Timeout: TimeoutConfig{
				DefaultTimeout: 30 * time.Second,
				MaxTimeout:     5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339Nano,
		},
		Development: DevelopmentConfig{
			Enabled:      false,
			MockLLM:      false,
			DebugLogging: false,
			PrettyLogs:   false,
		},
		Maintenance: MaintenanceConfig{
			Enabled:       false,
			SweepSchedule: "@every 1m",
			StuckGrace:    2 * time.Minute,
			ResultTTL:     720 * time.Hour,
		},
		Messaging: MessagingConfig{
			SMTP:     SMTPConfig{Enabled: false, Port: 587},
			Telegram: TelegramConfig{Enabled: false},
		},
	}

	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment automatically adjusts configuration based on the
// detected environment. Called automatically by DefaultConfig().
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Container.Enabled = true
		c.Address = "0.0.0.0"
		c.Logging.Format = "json"
	} else {
		c.Address = "localhost"
		if os.Getenv(EnvDevMode) == "" {
			c.Development.Enabled = true
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
		}
	}
}

// LoadFromEnv loads configuration from environment variables and validates the result.
func (c *Config) LoadFromEnv() error {
	if c.logger != nil {
		c.logger.Info("Loading configuration from environment", map[string]interface{}{
			"config_source": "environment_variables",
		})
	}

	if v := os.Getenv("ORCHESTRATOR_SERVICE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("ORCHESTRATOR_SERVICE_ID"); v != "" {
		c.ID = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		} else if c.logger != nil {
			c.logger.Warn("Invalid port in environment variable", map[string]interface{}{
				EnvPort: v, "error": err.Error(),
			})
		}
	}
	if v := os.Getenv("ORCHESTRATOR_NAMESPACE"); v != "" {
		c.Namespace = v
	}

	// HTTP / CORS
	if v := os.Getenv("ORCHESTRATOR_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("ORCHESTRATOR_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}
	if v := os.Getenv("ORCHESTRATOR_CORS_ENABLED"); v != "" {
		c.HTTP.CORS.Enabled = parseBool(v)
	}
	if v := os.Getenv("ORCHESTRATOR_CORS_ORIGINS"); v != "" {
		c.HTTP.CORS.AllowedOrigins = parseStringList(v)
	}
	if v := os.Getenv("ORCHESTRATOR_CORS_CREDENTIALS"); v != "" {
		c.HTTP.CORS.AllowCredentials = parseBool(v)
	}

	// Broker
	if v := os.Getenv(EnvBrokerURL); v != "" {
		c.Broker.URL = v
	}
	if v := os.Getenv(EnvQueueLLM); v != "" {
		c.Broker.QueueLLM = v
	}
	if v := os.Getenv(EnvQueueFileUpload); v != "" {
		c.Broker.QueueFileUpload = v
	}
	if v := os.Getenv(EnvQueueMessaging); v != "" {
		c.Broker.QueueMessaging = v
	}
	if v := os.Getenv(EnvQueueDatabase); v != "" {
		c.Broker.QueueDatabase = v
	}
	if v := os.Getenv(EnvQueueDefault); v != "" {
		c.Broker.QueueDefault = v
	}

	// Status bus
	if v := os.Getenv(EnvStatusBusURL); v != "" {
		c.StatusBus.URL = v
	} else if c.StatusBus.URL == "" {
		c.StatusBus.URL = c.Broker.URL
	}
	if v := os.Getenv(EnvWebBaseURL); v != "" {
		c.StatusBus.BridgeBaseURL = v
	}

	// Database
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv(EnvDatabasePoolSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Database.PoolSize = n
		}
	}
	if v := os.Getenv(EnvEncryptionKey); v != "" {
		c.Database.EncryptionKey = v
	}
	if v := os.Getenv(EnvEncryptionHMACKey); v != "" {
		c.Database.EncryptionHMACKey = v
	}

	// LLM
	if v := os.Getenv("ORCHESTRATOR_LLM_ENABLED"); v != "" {
		c.LLM.Enabled = parseBool(v)
	}
	if v := os.Getenv("ORCHESTRATOR_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Enabled = true
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Enabled = true
	}
	if v := os.Getenv("ORCHESTRATOR_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("ORCHESTRATOR_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}

	// Locale
	if v := os.Getenv(EnvDefaultTimezone); v != "" {
		c.Locale.DefaultTimezone = v
	}
	if v := os.Getenv(EnvDefaultProvince); v != "" {
		c.Locale.DefaultProvince = v
	}
	if v := os.Getenv(EnvDefaultDistrict); v != "" {
		c.Locale.DefaultDistrict = v
	}

	// Telemetry
	if v := os.Getenv("ORCHESTRATOR_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("ORCHESTRATOR_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	} else if v := os.Getenv(EnvOTELEndpoint); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}

	// Logging
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvLogDir); v != "" {
		c.Logging.Dir = v
	}

	// Development
	if v := os.Getenv(EnvDevMode); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("ORCHESTRATOR_MOCK_LLM"); v != "" {
		c.Development.MockLLM = parseBool(v)
	}
	if v := os.Getenv("ORCHESTRATOR_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	// Maintenance
	if v := os.Getenv("ORCHESTRATOR_MAINTENANCE_ENABLED"); v != "" {
		c.Maintenance.Enabled = parseBool(v)
	}
	if v := os.Getenv("ORCHESTRATOR_MAINTENANCE_SCHEDULE"); v != "" {
		c.Maintenance.SweepSchedule = v
	}
	if v := os.Getenv("ORCHESTRATOR_MAINTENANCE_STUCK_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Maintenance.StuckGrace = d
		}
	}
	if v := os.Getenv("ORCHESTRATOR_MAINTENANCE_RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Maintenance.ResultTTL = d
		}
	}

	// Messaging
	if v := os.Getenv("ORCHESTRATOR_SMTP_ENABLED"); v != "" {
		c.Messaging.SMTP.Enabled = parseBool(v)
	}
	if v := os.Getenv("ORCHESTRATOR_SMTP_HOST"); v != "" {
		c.Messaging.SMTP.Host = v
	}
	if v := os.Getenv("ORCHESTRATOR_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Messaging.SMTP.Port = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_SMTP_USERNAME"); v != "" {
		c.Messaging.SMTP.Username = v
	}
	if v := os.Getenv("ORCHESTRATOR_SMTP_PASSWORD"); v != "" {
		c.Messaging.SMTP.Password = v
	}
	if v := os.Getenv("ORCHESTRATOR_SMTP_FROM"); v != "" {
		c.Messaging.SMTP.From = v
	}
	if v := os.Getenv("ORCHESTRATOR_TELEGRAM_ENABLED"); v != "" {
		c.Messaging.Telegram.Enabled = parseBool(v)
	}
	if v := os.Getenv("ORCHESTRATOR_TELEGRAM_TOKEN"); v != "" {
		c.Messaging.Telegram.Token = v
	}
	if v := os.Getenv("ORCHESTRATOR_TELEGRAM_CHAT_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Messaging.Telegram.ChatID = n
		}
	}

	// Container
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Container.Enabled = true
		if v := os.Getenv("HOSTNAME"); v != "" {
			c.Container.PodName = v
		}
		if v := os.Getenv("POD_NAMESPACE"); v != "" {
			c.Container.Namespace = v
		}
	}

	if err := c.Validate(); err != nil {
		if c.logger != nil {
			c.logger.Error("Configuration validation failed", map[string]interface{}{
				"error": err.Error(), "config_source": "environment_variables",
			})
		}
		return err
	}

	if c.logger != nil {
		c.logger.Info("Configuration loading completed", map[string]interface{}{
			"namespace":        c.Namespace,
			"logging_level":    c.Logging.Level,
			"development_mode": c.Development.Enabled,
		})
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file. File settings
// override environment variables but are overridden by functional options.
func (c *Config) LoadFromFile(path string) error {
	if c.logger != nil {
		c.logger.Info("Loading configuration from file", map[string]interface{}{"file_path": path})
	}

	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(filepath.Clean(cleanPath)) // nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", ErrInvalidConfiguration)
		}
	}

	if c.logger != nil {
		c.logger.Info("Configuration file loaded successfully", map[string]interface{}{
			"file_path": cleanPath, "format": strings.TrimPrefix(ext, "."), "file_size": len(data),
		})
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
//
// Validation rules:
//   - Port must be between 1 and 65535
//   - Service name is required
//   - LLM API key is required when LLM is enabled (unless using mock)
//   - Telemetry endpoint is required when telemetry is enabled
//
// The database URL is not checked here.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &FrameworkError{
			Op: "Config.Validate", Kind: "config",
			Message: fmt.Sprintf("invalid port: %d", c.Port),
			Err:     ErrPortOutOfRange,
		}
	}

	if c.Name == "" {
		return &FrameworkError{
			Op: "Config.Validate", Kind: "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.LLM.Enabled && c.LLM.APIKey == "" && !c.Development.MockLLM {
		return &FrameworkError{
			Op: "Config.Validate", Kind: "config",
			Message: "LLM API key is required when LLM is enabled (or use mock LLM in development)",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return &FrameworkError{
			Op: "Config.Validate", Kind: "config",
			Message: "telemetry endpoint is required when telemetry is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// Helper functions

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithName sets the service name used for identification in logs and metrics.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP server port. Must be between 1 and 65535.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return &FrameworkError{
				Op: "WithPort", Kind: "config",
				Message: fmt.Sprintf("invalid port: %d", port),
				Err:     ErrPortOutOfRange,
			}
		}
		c.Port = port
		return nil
	}
}

// WithAddress sets the bind address for the HTTP server.
func WithAddress(address string) Option {
	return func(c *Config) error {
		c.Address = address
		return nil
	}
}

// WithNamespace sets the logical namespace for multi-tenancy and environment separation.
func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

// WithCORS enables CORS with specific allowed origins.
func WithCORS(origins []string, credentials bool) Option {
	return func(c *Config) error {
		c.HTTP.CORS.Enabled = true
		c.HTTP.CORS.AllowedOrigins = origins
		c.HTTP.CORS.AllowCredentials = credentials
		return nil
	}
}

// WithCORSDefaults enables CORS with permissive defaults.
//
// WARNING: intended for development only.
func WithCORSDefaults() Option {
	return func(c *Config) error {
		c.HTTP.CORS.Enabled = true
		c.HTTP.CORS.AllowedOrigins = []string{"*"}
		c.HTTP.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
		c.HTTP.CORS.AllowedHeaders = []string{"*"}
		c.HTTP.CORS.AllowCredentials = true
		return nil
	}
}

// WithBrokerURL sets the Redis connection URL for the Queue Broker Adapter.
func WithBrokerURL(url string) Option {
	return func(c *Config) error {
		c.Broker.URL = url
		return nil
	}
}

// WithStatusBusURL sets the Redis connection URL for the Status Bus. Options
// apply after LoadFromEnv, so the value set here is used as given; the
// fallback to the broker's URL happens only inside LoadFromEnv.
func WithStatusBusURL(url string) Option {
	return func(c *Config) error {
		c.StatusBus.URL = url
		return nil
	}
}

// WithWebBridgeBaseURL sets the web tier's base URL for the task-status HTTP bridge.
func WithWebBridgeBaseURL(url string) Option {
	return func(c *Config) error {
		c.StatusBus.BridgeBaseURL = url
		return nil
	}
}

// WithDatabaseURL sets the Postgres DSN used by the Database Task Manager.
func WithDatabaseURL(url string) Option {
	return func(c *Config) error {
		c.Database.URL = url
		return nil
	}
}

// WithEncryptionKeys sets the AES field-encryption key and the HMAC key used
// for deterministic phone-hash lookups (spec §4.5).
func WithEncryptionKeys(aesKey, hmacKey string) Option {
	return func(c *Config) error {
		c.Database.EncryptionKey = aesKey
		c.Database.EncryptionHMACKey = hmacKey
		return nil
	}
}

// WithLLM configures the LLM task kind's provider settings.
func WithLLM(enabled bool, provider, apiKey string) Option {
	return func(c *Config) error {
		c.LLM.Enabled = enabled
		c.LLM.Provider = provider
		c.LLM.APIKey = apiKey
		return nil
	}
}

// WithLLMModel sets the model identifier passed to the LLM provider.
func WithLLMModel(model string) Option {
	return func(c *Config) error {
		c.LLM.Model = model
		return nil
	}
}

// WithLocale sets the platform-wide default timezone, province and district
// used when an intake channel cannot supply an office code.
func WithLocale(timezone, province, district string) Option {
	return func(c *Config) error {
		c.Locale.DefaultTimezone = timezone
		c.Locale.DefaultProvince = province
		c.Locale.DefaultDistrict = district
		return nil
	}
}

// WithTelemetry enables telemetry with the specified OTLP endpoint.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = c.Name
		}
		return nil
	}
}

// WithEnableMetrics enables or disables metrics collection.
func WithEnableMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.MetricsEnabled = enabled
		if enabled && c.Telemetry.Endpoint != "" {
			c.Telemetry.Enabled = true
		}
		return nil
	}
}

// WithEnableTracing enables or disables distributed tracing.
func WithEnableTracing(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.TracingEnabled = enabled
		if enabled && c.Telemetry.Endpoint != "" {
			c.Telemetry.Enabled = true
		}
		return nil
	}
}

// WithOTELEndpoint sets the OpenTelemetry endpoint and enables telemetry.
func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Provider = "otel"
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the minimum logging level ("error", "warn", "info", "debug").
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithCircuitBreaker enables the circuit breaker pattern for fault tolerance.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.Enabled = true
		c.Resilience.CircuitBreaker.Threshold = threshold
		c.Resilience.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithRetry configures default retry behavior with exponential backoff.
func WithRetry(maxAttempts int, initialInterval time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.InitialInterval = initialInterval
		return nil
	}
}

// WithConfigFile loads configuration from a JSON or YAML file before other
// options are applied, so later options can override file settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithDevelopmentMode enables development mode with developer-friendly defaults.
//
// WARNING: never enable in production.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}

// WithMockLLM enables mock LLM responses for testing without API calls.
func WithMockLLM(enabled bool) Option {
	return func(c *Config) error {
		c.Development.MockLLM = enabled
		if enabled {
			c.LLM.Enabled = true
		}
		return nil
	}
}

// WithLogger sets a logger for configuration operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// ScopedLogger returns a ComponentAwareLogger tagged with component,
// derived from base. The ComponentAwareLogger interface's own WithComponent
// returns a plain Logger (a leaf scope, not meant to be subdivided again),
// so a cmd/ entrypoint wiring one logger per package calls this instead of
// chaining WithComponent directly.
func ScopedLogger(base ComponentAwareLogger, component string) ComponentAwareLogger {
	scoped := base.WithComponent(component)
	if cal, ok := scoped.(ComponentAwareLogger); ok {
		return cal
	}
	return base
}

// Logger returns the configuration's logger as a ComponentAwareLogger, for
// cmd/ entrypoints that need to scope it per component before handing it to
// individual packages. NewConfig always installs a ProductionLogger, which
// implements WithComponent, so this only falls back to constructing one
// when a caller built a *Config by hand without going through NewConfig.
func (c *Config) Logger() ComponentAwareLogger {
	if cal, ok := c.logger.(ComponentAwareLogger); ok {
		return cal
	}
	logger := NewProductionLogger(c.Logging, c.Development, c.Name)
	return logger.(ComponentAwareLogger)
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options (highest priority)
//  4. Validation via Validate()
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}
		cfg.logger = logger
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ============================================================================
// ProductionLogger Implementation - Layered Observability Architecture
// ============================================================================

// ProductionLogger provides layered observability for orchestrator core operations.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	format      string
	output      io.Writer

	// Metrics layer (enabled when telemetry available)
	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:          strings.ToLower(logging.Level),
		debug:          dev.DebugLogging || logging.Level == "debug",
		serviceName:    serviceName,
		format:         logging.Format,
		output:         output,
		metricsEnabled: false,
	}
}

// EnableMetrics is called by the telemetry module to enable the metrics layer.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

// WithComponent returns a component-scoped logger sharing this logger's configuration.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &componentLogger{base: p, component: component}
}

// componentLogger decorates a ProductionLogger with a fixed component tag,
// implementing the ComponentAwareLogger naming convention described in interfaces.go.
type componentLogger struct {
	base      *ProductionLogger
	component string
}

func (c *componentLogger) withComponentField(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["component"] = c.component
	return out
}

func (c *componentLogger) Info(msg string, fields map[string]interface{}) {
	c.base.Info(msg, c.withComponentField(fields))
}
func (c *componentLogger) Error(msg string, fields map[string]interface{}) {
	c.base.Error(msg, c.withComponentField(fields))
}
func (c *componentLogger) Warn(msg string, fields map[string]interface{}) {
	c.base.Warn(msg, c.withComponentField(fields))
}
func (c *componentLogger) Debug(msg string, fields map[string]interface{}) {
	c.base.Debug(msg, c.withComponentField(fields))
}
func (c *componentLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	c.base.InfoWithContext(ctx, msg, c.withComponentField(fields))
}
func (c *componentLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	c.base.ErrorWithContext(ctx, msg, c.withComponentField(fields))
}
func (c *componentLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	c.base.WarnWithContext(ctx, msg, c.withComponentField(fields))
}
func (c *componentLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	c.base.DebugWithContext(ctx, msg, c.withComponentField(fields))
}

// WithComponent re-tags the logger under a new component name rather than
// nesting under the old one — a worker process builds one componentLogger
// per package off the same base, not a hierarchy of components.
func (c *componentLogger) WithComponent(component string) Logger {
	return &componentLogger{base: c.base, component: component}
}

// Core logging implementation with all three layers.
func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"message":   msg,
		}

		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}

		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s] %s%s%s\n",
			timestamp, level, p.serviceName, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, msg, fields, ctx)
	}
}

// Metrics emission with cardinality protection.
func (p *ProductionLogger) emitFrameworkMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{
		"level", level,
		"service", p.serviceName,
	}

	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type", "task_name", "queue", "component":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	if ctx != nil {
		emitMetricWithContext(ctx, "orchestrator.framework.operations", 1.0, labels...)
	} else {
		emitMetric("orchestrator.framework.operations", 1.0, labels...)
	}
}

// Helper functions for weak coupling to telemetry.
func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
