package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted in TWO_FACTOR_PROVIDER.
const (
	ProviderTwilioVerify = "twilio_verify"
	ProviderAuthy        = "authy"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string // CIDR ranges allowed to set X-Forwarded-For
}

type AuthConfig struct {
	JWTSecret            string
	SessionExpiry        time.Duration // auth token lifetime after full sign-in
	RememberMeExpiry     time.Duration // auth token lifetime when remember_me was requested
	LoginAttemptExpiry   time.Duration // how long a half-finished login may sit in SecondFactorPending
	RememberDeviceExpiry time.Duration // trusted-device cookie lifetime
	MaxSecondFactorFails int           // consecutive rejected codes before lockout; <= 0 disables locking
	LockoutDuration      time.Duration
	CleanupInterval      time.Duration // expired login-session sweep
}

// ProviderConfig selects and configures the verification provider. The
// choice is made once at startup; nothing inspects provider types at
// runtime.
type ProviderConfig struct {
	Name string // twilio_verify or authy

	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioVerifyService   string
	TwilioBaseURL         string

	AuthyAPIKey  string
	AuthyBaseURL string
	EnableQRCode bool // legacy provider only: render provisioning QR on enrollment
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "twofactor"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCommaList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			JWTSecret:            jwtSecret,
			SessionExpiry:        getEnvAsDuration("SESSION_EXPIRY", 12*time.Hour),
			RememberMeExpiry:     getEnvAsDuration("REMEMBER_ME_EXPIRY", 14*24*time.Hour),
			LoginAttemptExpiry:   getEnvAsDuration("LOGIN_ATTEMPT_EXPIRY", 10*time.Minute),
			RememberDeviceExpiry: getEnvAsDuration("REMEMBER_DEVICE_EXPIRY", 30*24*time.Hour),
			MaxSecondFactorFails: getEnvAsInt("MAX_SECOND_FACTOR_FAILS", 5),
			LockoutDuration:      getEnvAsDuration("LOCKOUT_DURATION", 1*time.Hour),
			CleanupInterval:      getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 15*time.Minute),
		},
		Provider: ProviderConfig{
			Name:                getEnv("TWO_FACTOR_PROVIDER", ProviderTwilioVerify),
			TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioVerifyService: getEnv("TWILIO_VERIFY_SERVICE_SID", ""),
			TwilioBaseURL:       getEnv("TWILIO_VERIFY_BASE_URL", "https://verify.twilio.com"),
			AuthyAPIKey:         getEnv("AUTHY_API_KEY", ""),
			AuthyBaseURL:        getEnv("AUTHY_BASE_URL", "https://api.authy.com"),
			EnableQRCode:        getEnvAsBool("TWO_FACTOR_ENABLE_QR_CODE", false),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_NOTIFICATIONS_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateProvider(&cfg.Provider); err != nil {
		return nil, err
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateProvider(p *ProviderConfig) error {
	switch p.Name {
	case ProviderTwilioVerify:
		if p.TwilioAccountSID == "" || p.TwilioAuthToken == "" || p.TwilioVerifyService == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_VERIFY_SERVICE_SID are required for the twilio_verify provider")
		}
	case ProviderAuthy:
		if p.AuthyAPIKey == "" {
			return fmt.Errorf("AUTHY_API_KEY is required for the authy provider")
		}
	default:
		return fmt.Errorf("unknown TWO_FACTOR_PROVIDER: %s", p.Name)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for the signing secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCommaList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
