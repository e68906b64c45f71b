package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; grouped settings live in their own structs so the
// components that consume them can be handed just their part.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	AppURL   string // public origin of the portal, e.g. https://portal.example.org
	LogLevel string // optional zap level override

	// MySQL backs the admin audit log. It is optional: with DB_HOST unset
	// the portal runs without auditing.
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	SessionSecret string        // HS256 key for the session cookie
	SessionMaxAge time.Duration // lifetime of the session cookie

	AMQPURL      string // RabbitMQ connection string; empty disables events
	AMQPConsumer bool   // run the recruitment event consumer in-process
	EventLogDir  string // where the consumer appends recruitment.log

	// RecruitmentFormID is the PERSCOM form that applications are filed
	// against.
	RecruitmentFormID int64

	Perscom   PerscomConfig
	Cache     CacheConfig
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
}

// PerscomConfig configures the PERSCOM API client.
type PerscomConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	PageConcurrency int
	MaxPages        int
}

// OAuthConfig holds the identity provider credentials used to redeem
// refresh tokens.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	amqpURL := os.Getenv("RABBITMQ_URL")
	if amqpURL == "" {
		amqpURL = os.Getenv("AMQP_URL")
	}
	return Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		AppURL:   must("APP_URL"),
		LogLevel: os.Getenv("LOG_LEVEL"),

		DBUser: envStr("DB_USER", "root"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: os.Getenv("DB_HOST"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: envStr("DB_NAME", "portal"),

		SessionSecret: must("SESSION_SECRET"),
		SessionMaxAge: envDur("SESSION_MAX_AGE", 30*24*time.Hour),

		AMQPURL:      amqpURL,
		AMQPConsumer: envBool("AMQP_CONSUMER", false),
		EventLogDir:  envStr("EVENT_LOG_DIR", "logs"),

		RecruitmentFormID: int64(envInt("RECRUITMENT_FORM_ID", 1)),

		Perscom:   LoadPerscomConfig(),
		Cache:     LoadCacheConfig(),
		OAuth:     LoadOAuthConfig(),
		RateLimit: LoadRateLimitConfig(),
	}
}

// LoadPerscomConfig reads the PERSCOM_* variables. URL and key are required.
func LoadPerscomConfig() PerscomConfig {
	return PerscomConfig{
		BaseURL:         must("PERSCOM_API_URL"),
		APIKey:          must("PERSCOM_API_KEY"),
		Timeout:         envDur("PERSCOM_TIMEOUT", 30*time.Second),
		MaxRetries:      envInt("PERSCOM_MAX_RETRIES", 2),
		RetryBackoff:    envDur("PERSCOM_RETRY_BACKOFF", time.Second),
		PageConcurrency: envInt("PERSCOM_PAGE_CONCURRENCY", 8),
		MaxPages:        envInt("PERSCOM_MAX_PAGES", 500),
	}
}

// LoadOAuthConfig reads the OAUTH_* variables. They may be empty, in which
// case session refresh always fails and users are sent back to sign in.
func LoadOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		ClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		TokenURL:     envStr("OAUTH_TOKEN_URL", "https://discord.com/api/oauth2/token"),
	}
}

// AuditEnabled reports whether a database was configured.
func (c Config) AuditEnabled() bool { return c.DBHost != "" }

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
