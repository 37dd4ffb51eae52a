package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	// ErrInvalidConfig marks a configuration that must prevent startup
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Source types
const (
	SourceSimulated = "simulated"
	SourceSerial    = "serial"
	SourceMQTT      = "mqtt"
	SourceKafka     = "kafka"
)

// Store types
const (
	StoreSQLite     = "sqlite"
	StoreClickHouse = "clickhouse"
	StoreNone       = "none"
)

type Config struct {
	// Source selection
	SourceType string

	// Serial link (STM32)
	SerialPort        string
	SerialBaudRate    int
	SerialReadTimeout time.Duration

	// Simulated source
	SimInterval time.Duration
	SimJitter   time.Duration
	SimSeed     int64

	// MQTT Configuration
	MQTTBroker        string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	MQTTTopicReadings string
	MQTTTopicAlarms   string
	MQTTTopicAnalysis string
	MQTTNotifyEnabled bool

	// Kafka source
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string

	// Persistence
	StoreType        string
	SQLitePath       string
	ClickHouseAddr   string
	ClickHouseDB     string
	ClickHouseUser   string
	ClickHousePass   string
	PersistQueueSize int
	PersistTimeout   time.Duration

	// Ingestion buffer
	BufferCapacity int

	// Alarm engine
	AlarmMinInterval     time.Duration
	AlarmMaxCountPerHour int
	AlarmHistorySize     int
	ThresholdsFile       string

	// Analysis dispatcher
	AnalysisInterval  time.Duration
	AnalysisTimeout   time.Duration
	AnalysisHistory   time.Duration
	RateLimitMaxCalls int
	RateLimitWindow   time.Duration

	// DeepSeek API
	DeepSeekURL         string
	DeepSeekAPIKey      string
	DeepSeekModel       string
	DeepSeekMaxTokens   int
	DeepSeekTemperature float64

	// Notifications
	NATSURL         string
	NATSSubject     string
	WebhookURL      string
	WebhookCooldown time.Duration
	WebhookRate     float64 // requests per second

	// HTTP status API
	HTTPAddr string

	ShutdownTimeout time.Duration

	Thresholds Thresholds
}

// Load reads the environment (and an optional .env file) into a Config.
// Thresholds come from ThresholdsFile when set, otherwise the built-in defaults.
func Load(envFiles ...string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		SourceType: getEnv("SOURCE_TYPE", SourceSimulated),

		SerialPort:        getEnv("SERIAL_PORT", "/dev/ttyUSB0"),
		SerialBaudRate:    getEnvInt("SERIAL_BAUDRATE", 115200),
		SerialReadTimeout: getEnvDuration("SERIAL_READ_TIMEOUT", time.Second),

		SimInterval: getEnvDuration("SIM_INTERVAL", time.Second),
		SimJitter:   getEnvDuration("SIM_JITTER", 200*time.Millisecond),
		SimSeed:     int64(getEnvInt("SIM_SEED", 0)),

		MQTTBroker:        getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:      getEnv("MQTT_CLIENT_ID", "mine-monitor"),
		MQTTUsername:      getEnv("MQTT_USERNAME", ""),
		MQTTPassword:      getEnv("MQTT_PASSWORD", ""),
		MQTTTopicReadings: getEnv("MQTT_TOPIC_READINGS", "mine/+/sensors"),
		MQTTTopicAlarms:   getEnv("MQTT_TOPIC_ALARMS", "mine/alarms/{level}"),
		MQTTTopicAnalysis: getEnv("MQTT_TOPIC_ANALYSIS", "mine/analysis/{risk}"),
		MQTTNotifyEnabled: getEnvBool("MQTT_NOTIFY_ENABLED", false),

		KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "mine-sensors"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "mine-monitor"),

		StoreType:        getEnv("STORE_TYPE", StoreSQLite),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/mine_monitoring.db"),
		ClickHouseAddr:   getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:     getEnv("CLICKHOUSE_DB", "mine"),
		ClickHouseUser:   getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:   getEnv("CLICKHOUSE_PASS", ""),
		PersistQueueSize: getEnvInt("PERSIST_QUEUE_SIZE", 1024),
		PersistTimeout:   getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),

		BufferCapacity: getEnvInt("BUFFER_CAPACITY", 1000),

		AlarmMinInterval:     getEnvDuration("ALARM_MIN_INTERVAL", 60*time.Second),
		AlarmMaxCountPerHour: getEnvInt("ALARM_MAX_COUNT_PER_HOUR", 10),
		AlarmHistorySize:     getEnvInt("ALARM_HISTORY_SIZE", 1000),
		ThresholdsFile:       getEnv("THRESHOLDS_FILE", ""),

		AnalysisInterval:  getEnvDuration("ANALYSIS_INTERVAL", 60*time.Second),
		AnalysisTimeout:   getEnvDuration("ANALYSIS_TIMEOUT", 30*time.Second),
		AnalysisHistory:   getEnvDuration("ANALYSIS_HISTORY", time.Hour),
		RateLimitMaxCalls: getEnvInt("RATE_LIMIT_MAX_CALLS", 20),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),

		DeepSeekURL:         getEnv("DEEPSEEK_API_URL", "https://api.deepseek.com/v1/chat/completions"),
		DeepSeekAPIKey:      getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekModel:       getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		DeepSeekMaxTokens:   getEnvInt("DEEPSEEK_MAX_TOKENS", 1000),
		DeepSeekTemperature: getEnvFloat("DEEPSEEK_TEMPERATURE", 0.7),

		NATSURL:         getEnv("NATS_URL", ""),
		NATSSubject:     getEnv("NATS_SUBJECT", "mine"),
		WebhookURL:      getEnv("WEBHOOK_URL", ""),
		WebhookCooldown: getEnvDuration("WEBHOOK_COOLDOWN", 5*time.Minute),
		WebhookRate:     getEnvFloat("WEBHOOK_RATE", 1),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		Thresholds: DefaultThresholds(),
	}

	if cfg.ThresholdsFile != "" {
		thresholds, err := LoadThresholds(cfg.ThresholdsFile)
		if err != nil {
			return nil, err
		}

		cfg.Thresholds = thresholds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.SourceType {
	case SourceSimulated, SourceSerial, SourceMQTT, SourceKafka:
	default:
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidConfig, c.SourceType)
	}

	switch c.StoreType {
	case StoreSQLite, StoreClickHouse, StoreNone:
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.StoreType)
	}

	if c.BufferCapacity <= 0 {
		return fmt.Errorf("%w: buffer capacity must be positive, got %d", ErrInvalidConfig, c.BufferCapacity)
	}

	if c.AlarmMinInterval <= 0 || c.AlarmMaxCountPerHour <= 0 {
		return fmt.Errorf("%w: alarm suppression settings must be positive", ErrInvalidConfig)
	}

	if c.RateLimitMaxCalls <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("%w: rate limiter settings must be positive", ErrInvalidConfig)
	}

	if c.PersistQueueSize <= 0 {
		return fmt.Errorf("%w: persist queue size must be positive", ErrInvalidConfig)
	}

	return c.Thresholds.Validate()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return time.Duration(seconds * float64(time.Second))
}
