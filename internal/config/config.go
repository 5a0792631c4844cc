package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	IntentQueueURL      string

	// No-show risk model tuning. Weights default to the hand-tuned
	// coefficients in the noshow package; orgs may override via JSON.
	NoShowWeightsJSON string

	// Gap detection
	GapMinFillableMinutes int
	FillRateCacheTTL      time.Duration

	// Overbooking policy
	OverbookRecommendationTTL time.Duration
	MaxConcurrentOverbooks    int

	// Recall campaigns
	RecallDispatchBatchSize int
	RecallCandidateLimit    int

	// Worker intervals
	ExpiryInterval   time.Duration
	DispatchInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		IntentQueueURL:      getEnv("INTENT_QUEUE_URL", ""),

		NoShowWeightsJSON: getEnv("NOSHOW_WEIGHTS_JSON", ""),

		GapMinFillableMinutes: getEnvAsInt("GAP_MIN_FILLABLE_MINUTES", 10),
		FillRateCacheTTL:      getEnvAsDuration("FILL_RATE_CACHE_TTL", 6*time.Hour),

		OverbookRecommendationTTL: getEnvAsDuration("OVERBOOK_RECOMMENDATION_TTL", 48*time.Hour),
		MaxConcurrentOverbooks:    getEnvAsInt("MAX_CONCURRENT_OVERBOOKS", 1),

		RecallDispatchBatchSize: getEnvAsInt("RECALL_DISPATCH_BATCH_SIZE", 100),
		RecallCandidateLimit:    getEnvAsInt("RECALL_CANDIDATE_LIMIT", 500),

		ExpiryInterval:   getEnvAsDuration("EXPIRY_INTERVAL", 15*time.Minute),
		DispatchInterval: getEnvAsDuration("DISPATCH_INTERVAL", time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
