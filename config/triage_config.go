package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// OpenAI
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Kafka
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Classification
	PatternCatalogPath       string
	EscalationAngerThreshold int
	SummaryExcerptRunes      int

	// Conversation state
	StateTTLHour      int
	StateMaxRetries   int
	ArchiveRetentionD int

	// Persistence
	PersistAsync  bool
	StreamMaxLen  int64
	NodeID        int64
	SideEffectSec int

	// Worker
	WorkerID   string
	WorkerMax  int
	WorkerJobs int

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int

	// HTTP
	AllowedOrigins  []string
	RateLimitPerMin int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 512),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 15),

		// Kafka
		KafkaBrokers:    getEnvSlice("KAFKA_BROKERS", nil),
		KafkaAlertTopic: getEnv("KAFKA_ALERT_TOPIC", "triage-alerts"),

		// Classification
		PatternCatalogPath:       getEnv("PATTERN_CATALOG_PATH", ""),
		EscalationAngerThreshold: getEnvInt("ESCALATION_ANGER_THRESHOLD", 3),
		SummaryExcerptRunes:      getEnvInt("SUMMARY_EXCERPT_RUNES", 100),

		// Conversation state
		StateTTLHour:      getEnvInt("STATE_TTL_HOUR", 72),
		StateMaxRetries:   getEnvInt("STATE_MAX_RETRIES", 5),
		ArchiveRetentionD: getEnvInt("ARCHIVE_RETENTION_DAYS", 90),

		// Persistence
		PersistAsync:  getEnvBool("PERSIST_ASYNC", false),
		StreamMaxLen:  int64(getEnvInt("STREAM_MAX_LEN", 100000)),
		NodeID:        int64(getEnvInt("NODE_ID", 1)),
		SideEffectSec: getEnvInt("SIDE_EFFECT_TIMEOUT_SEC", 5),

		// Worker
		WorkerID:   getEnv("WORKER_ID", generateWorkerID()),
		WorkerMax:  getEnvInt("WORKER_MAX", 8),
		WorkerJobs: getEnvInt("WORKER_QUEUE_SIZE", 100),

		// Consumer
		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 50),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),

		// HTTP
		AllowedOrigins:  getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MIN", 60),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023, got %d", c.NodeID)
	}
	if c.EscalationAngerThreshold < 1 {
		return fmt.Errorf("ESCALATION_ANGER_THRESHOLD must be positive, got %d", c.EscalationAngerThreshold)
	}
	if c.PersistAsync && c.RedisURL == "" {
		return fmt.Errorf("PERSIST_ASYNC requires REDIS_URL")
	}
	return nil
}

// StateTTL is how long an idle conversation is kept in Redis.
func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.StateTTLHour) * time.Hour
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

func (c *Config) ArchiveRetention() time.Duration {
	return time.Duration(c.ArchiveRetentionD) * 24 * time.Hour
}

func (c *Config) SideEffectTimeout() time.Duration {
	return time.Duration(c.SideEffectSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
