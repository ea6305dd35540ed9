package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// PendingAuthTTL bounds how long a resident reply is accepted after a
	// notification goes out. Independent of EscalationThreshold: the store
	// cleans up on this timer while the conversation escalates on the other.
	PendingAuthTTL time.Duration

	// EscalationThreshold is the in-call wait before the visitor is offered
	// a transfer to the human operator.
	EscalationThreshold time.Duration

	SessionTTL      time.Duration
	FuzzyThreshold  float64
	AmbiguityWindow float64

	WhatsAppGatewayURL string
	WhatsAppAPIKey     string
	WhatsAppSenderID   string
	WebhookSecret      string

	GateBridgeURL   string
	GateBridgeToken string
	OperatorRef     string

	ToolCallTimeout  time.Duration
	OpenGateRetries  int
	OpenGateBackoff  time.Duration
	CondominiumName  string
	DirectoryRefresh time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PendingAuthTTL:      getEnvAsDuration("PENDING_AUTH_TTL", 30*time.Minute),
		EscalationThreshold: getEnvAsDuration("ESCALATION_THRESHOLD", 120*time.Second),
		SessionTTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		FuzzyThreshold:      getEnvAsFloat("FUZZY_THRESHOLD", 0.6),
		AmbiguityWindow:     getEnvAsFloat("AMBIGUITY_WINDOW", 0.05),

		WhatsAppGatewayURL: getEnv("WHATSAPP_GATEWAY_URL", ""),
		WhatsAppAPIKey:     getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppSenderID:   getEnv("WHATSAPP_SENDER_ID", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),

		GateBridgeURL:   getEnv("GATE_BRIDGE_URL", ""),
		GateBridgeToken: getEnv("GATE_BRIDGE_TOKEN", ""),
		OperatorRef:     getEnv("OPERATOR_REF", "porteria"),

		ToolCallTimeout:  getEnvAsDuration("TOOL_CALL_TIMEOUT", 5*time.Second),
		OpenGateRetries:  getEnvAsInt("OPEN_GATE_RETRIES", 2),
		OpenGateBackoff:  getEnvAsDuration("OPEN_GATE_BACKOFF", 2*time.Second),
		CondominiumName:  strings.TrimSpace(getEnv("CONDOMINIUM_NAME", "el conjunto")),
		DirectoryRefresh: getEnvAsDuration("DIRECTORY_REFRESH", 5*time.Minute),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
