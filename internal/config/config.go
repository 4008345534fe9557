package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	AppEnv   string

	GroqAPIKey       string
	GroqModel        string
	PerplexityAPIKey string
	PerplexityModel  string
	GeminiAPIKey     string
	GeminiModel      string
	LLMTimeout       time.Duration

	StaticDir        string
	RelayToken       string
	RelayURL         string
	SessionTTL       time.Duration
	JanitorInterval  time.Duration
	RecollectPatient bool
	UnidocLicenseKey string

	DatabaseURL       string
	NatsURL           string
	NatsToken         string
	SlackBotToken     string
	SlackAlertChannel string
}

// Load reads configuration from the environment. Outside production a .env
// file in the working directory is loaded first; real environment variables
// take precedence over it.
func Load() Config {
	if !strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		_ = godotenv.Load()
	}

	return Config{
		Port:     envInt("PORT", 8000),
		LogLevel: envStr("LOG_LEVEL", "info"),
		AppEnv:   envStr("APP_ENV", "development"),

		GroqAPIKey:       envStr("GROQ_API_KEY", ""),
		GroqModel:        envStr("GROQ_MODEL", "llama3-70b-8192"),
		PerplexityAPIKey: envStr("PERPLEXITY_API_KEY", ""),
		PerplexityModel:  envStr("PERPLEXITY_MODEL", "sonar"),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		GeminiModel:      envStr("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		LLMTimeout:       envDuration("LLM_TIMEOUT", 30*time.Second),

		StaticDir:        envStr("STATIC_DIR", "web"),
		RelayToken:       envStr("RELAY_TOKEN", ""),
		RelayURL:         envStr("AROGYA_RELAY_URL", ""),
		SessionTTL:       envDuration("SESSION_TTL", 2*time.Hour),
		JanitorInterval:  envDuration("JANITOR_INTERVAL", 5*time.Minute),
		RecollectPatient: envBool("RECOLLECT_PATIENT", true),
		UnidocLicenseKey: envStr("UNIDOC_LICENSE_API_KEY", ""),

		DatabaseURL:       envStr("DATABASE_URL", ""),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		SlackAlertChannel: envStr("SLACK_ALERT_CHANNEL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration ignores zero and negative values so tickers and TTLs stay valid.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
