package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Devices  DeviceConfig
	Alerts   AlertConfig
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
	TrustedProxies []string
	CORSOrigins    []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	ResetCodeExpiry    time.Duration
	CleanupInterval    time.Duration
	RetentionDays      int
	// TimingDelayBase and TimingDelayJitter equalize failure response times so
	// callers cannot probe which phone numbers exist.
	TimingDelayBase   time.Duration
	TimingDelayJitter time.Duration
}

// SecurityConfig drives the progressive block engine. The defaults mirror the
// production rollout: 3 failures inside a 60 minute window trigger a block,
// durations escalate 15m → 1h → 6h → 24h → 7d, and the escalation streak is
// forgotten 7 days after the last block.
type SecurityConfig struct {
	MaxFailedAttempts int
	AttemptWindow     time.Duration
	BlockDurations    []time.Duration
	ResetAfter        time.Duration
}

// DeviceConfig drives the device session governor.
type DeviceConfig struct {
	DefaultMaxDevices int
	// AllowLegacyTokens admits credentials issued before session tokens
	// existed. Disable once the migration period ends.
	AllowLegacyTokens bool
}

type AlertConfig struct {
	Enabled       bool
	AWSRegion     string
	FromAddress   string
	Recipients    []string
	MinBlockLevel int
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
			Name:              getEnv("DB_NAME", "authguard"),
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
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
			CORSOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			ResetCodeExpiry:    getEnvAsDuration("RESET_CODE_EXPIRY", 10*time.Minute),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			RetentionDays:      getEnvAsInt("ATTEMPT_RETENTION_DAYS", 30),
			TimingDelayBase:    getEnvAsDuration("TIMING_DELAY_BASE", 100*time.Millisecond),
			TimingDelayJitter:  getEnvAsDuration("TIMING_DELAY_JITTER", 150*time.Millisecond),
		},
		Security: SecurityConfig{
			MaxFailedAttempts: getEnvAsInt("SECURITY_MAX_FAILED_ATTEMPTS", 3),
			AttemptWindow:     getEnvAsDuration("SECURITY_ATTEMPT_WINDOW", 60*time.Minute),
			BlockDurations:    getEnvAsDurationList("SECURITY_BLOCK_DURATIONS", defaultBlockDurations()),
			ResetAfter:        getEnvAsDuration("SECURITY_RESET_AFTER", 7*24*time.Hour),
		},
		Devices: DeviceConfig{
			DefaultMaxDevices: getEnvAsInt("DEVICE_DEFAULT_MAX", 2),
			AllowLegacyTokens: getEnvAsBool("DEVICE_ALLOW_LEGACY_TOKENS", true),
		},
		Alerts: AlertConfig{
			Enabled:       getEnvAsBool("ALERTS_ENABLED", false),
			AWSRegion:     getEnv("AWS_REGION", "eu-west-1"),
			FromAddress:   getEnv("ALERT_FROM_ADDRESS", ""),
			Recipients:    getEnvAsList("ALERT_RECIPIENTS", nil),
			MinBlockLevel: getEnvAsInt("ALERT_MIN_BLOCK_LEVEL", 3),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Security.validate(); err != nil {
		return nil, err
	}

	if cfg.Devices.DefaultMaxDevices < 1 {
		return nil, fmt.Errorf("DEVICE_DEFAULT_MAX must be at least 1")
	}

	if cfg.Alerts.Enabled && (cfg.Alerts.FromAddress == "" || len(cfg.Alerts.Recipients) == 0) {
		return nil, fmt.Errorf("ALERT_FROM_ADDRESS and ALERT_RECIPIENTS are required when alerts are enabled")
	}

	return cfg, nil
}

func defaultBlockDurations() []time.Duration {
	return []time.Duration{
		15 * time.Minute,
		1 * time.Hour,
		6 * time.Hour,
		24 * time.Hour,
		7 * 24 * time.Hour,
	}
}

func (sc *SecurityConfig) validate() error {
	if sc.MaxFailedAttempts < 1 {
		return fmt.Errorf("SECURITY_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if sc.AttemptWindow <= 0 {
		return fmt.Errorf("SECURITY_ATTEMPT_WINDOW must be positive")
	}
	if len(sc.BlockDurations) == 0 {
		return fmt.Errorf("SECURITY_BLOCK_DURATIONS must not be empty")
	}
	for i := 1; i < len(sc.BlockDurations); i++ {
		if sc.BlockDurations[i] < sc.BlockDurations[i-1] {
			return fmt.Errorf("SECURITY_BLOCK_DURATIONS must be ascending")
		}
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
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

func getEnvAsList(key string, defaultVal []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts
	}
	return defaultVal
}

func getEnvAsDurationList(key string, defaultVal []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	var durations []time.Duration
	for _, part := range strings.Split(value, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultVal
		}
		durations = append(durations, d)
	}
	return durations
}
