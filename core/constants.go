package core

import "time"

// Environment variables read at startup (spec §6: broker URL and queue names
// per task kind, status-bus URL, database connection parameters, encryption
// key, logging directory, default timezone, default province/district,
// web-tier base URL).
const (
	EnvBrokerURL    = "ORCHESTRATOR_BROKER_URL"    // Redis URL backing the Queue Broker Adapter
	EnvStatusBusURL = "ORCHESTRATOR_STATUSBUS_URL" // Redis URL backing the Status Bus (may equal EnvBrokerURL)

	EnvDatabaseURL      = "ORCHESTRATOR_DATABASE_URL"       // Postgres DSN for pkg/dbtask
	EnvDatabasePoolSize  = "ORCHESTRATOR_DATABASE_POOL_SIZE" // pgxpool max connections
	EnvEncryptionKey    = "ORCHESTRATOR_ENCRYPTION_KEY"     // raw key (>= 32 bytes, not base64-decoded) for field-level encryption and the phone hash
	EnvEncryptionHMACKey = "ORCHESTRATOR_ENCRYPTION_HMAC_KEY" // loaded into Config only; the phone hash is keyed with EnvEncryptionKey

	EnvWebBaseURL = "ORCHESTRATOR_WEB_BASE_URL" // base URL of the web tier's task-status HTTP bridge

	EnvLogDir          = "ORCHESTRATOR_LOG_DIR"
	EnvLogLevel        = "ORCHESTRATOR_LOG_LEVEL"
	EnvLogFormat       = "ORCHESTRATOR_LOG_FORMAT"
	EnvDefaultTimezone = "ORCHESTRATOR_DEFAULT_TIMEZONE"
	EnvDefaultProvince = "ORCHESTRATOR_DEFAULT_PROVINCE"
	EnvDefaultDistrict = "ORCHESTRATOR_DEFAULT_DISTRICT"

	EnvPort    = "PORT"     // HTTP server port (cmd/api)
	EnvDevMode = "DEV_MODE" // Development mode flag

	EnvOTELEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

	// Per-queue name overrides, one per task kind (spec §3, §6).
	EnvQueueLLM        = "ORCHESTRATOR_QUEUE_LLM"
	EnvQueueFileUpload = "ORCHESTRATOR_QUEUE_FILE_UPLOAD"
	EnvQueueMessaging  = "ORCHESTRATOR_QUEUE_MESSAGING"
	EnvQueueDatabase   = "ORCHESTRATOR_QUEUE_DATABASE"
	EnvQueueDefault    = "ORCHESTRATOR_QUEUE_DEFAULT"
)

// Status bus defaults (spec §4.6, §6).
const (
	DefaultStatusChannel = "status_update"

	// RoomSuffixAccessible marks a room driven by the accessible interface;
	// only these rooms receive status frames (spec §4.6 routing rule).
	RoomSuffixAccessible = "-A"
	// RoomSuffixBot marks a room driven by the chatbot; the bus call is skipped.
	RoomSuffixBot = "-B"
)

// Task-status HTTP bridge defaults (spec §6).
const (
	StatusBridgePath           = "/task-status"
	DefaultStatusBridgeTimeout = 10 * time.Second
)

// Result TTL and other broker-side defaults.
const (
	DefaultResultTTL = 24 * time.Hour
)
