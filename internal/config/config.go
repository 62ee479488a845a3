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
	LogLevel      string
	PublicBaseURL string

	// Session store
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration

	// Token decoding
	JWTSecret string

	// Assistant runtime
	OpenAIAPIKey     string
	AzureEndpoint    string
	AssistantID      string
	RunPollInterval  time.Duration
	MaxRunCycles     int
	StreamBufferSize int

	// Function backends
	CancellationURL    string
	FlightStatsAppID   string
	FlightStatsAppKey  string
	SherpaBaseURL      string
	SherpaAffiliateID  string
	SherpaAPIKey       string
	BookingsDSN        string
	ChatInitURL        string
	GlobalServerURL    string

	// Channel transports
	TeamsClientID     string
	TeamsClientSecret string
	TeamsServiceURL   string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 0),

		JWTSecret: getEnv("JWT_SECRET_KEY", ""),

		OpenAIAPIKey:     getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureEndpoint:    getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AssistantID:      getEnv("ASSISTANT_ID", ""),
		RunPollInterval:  getEnvAsDuration("RUN_POLL_INTERVAL", time.Second),
		MaxRunCycles:     getEnvAsInt("MAX_RUN_CYCLES", 5),
		StreamBufferSize: getEnvAsInt("STREAM_BUFFER_SIZE", 32),

		CancellationURL:   getEnv("CANCELLATION_URL", ""),
		FlightStatsAppID:  getEnv("FLIGHTSTATS_APP_ID", ""),
		FlightStatsAppKey: getEnv("FLIGHTSTATS_APP_KEY", ""),
		SherpaBaseURL:     getEnv("SHERPA_BASE_URL", "https://requirements-api.joinsherpa.com"),
		SherpaAffiliateID: getEnv("SHERPA_AFFILIATE_ID", ""),
		SherpaAPIKey:      getEnv("SHERPA_API_KEY", ""),
		BookingsDSN:       getEnv("BOOKINGS_DATABASE_URL", ""),
		ChatInitURL:       getEnv("CHAT_INIT", ""),
		GlobalServerURL:   getEnv("GLOBAL_SERVER_URL", ""),

		TeamsClientID:     getEnv("TEAMS_CLIENT_ID", ""),
		TeamsClientSecret: getEnv("TEAMS_CLIENT_SECRET", ""),
		TeamsServiceURL:   getEnv("TEAMS_SERVICE_URL", "https://smba.trafficmanager.net/amer"),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_WHATSAPP_FROM", ""),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
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

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
