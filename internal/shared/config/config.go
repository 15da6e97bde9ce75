package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	PublicBaseURL  string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Edge gate configuration
	Gate GateConfig

	// Upstream identity backend
	Upstream UpstreamConfig

	// IP guard (failed-login blocking)
	Guard GuardConfig

	// Security audit events
	Audit AuditConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// JWTConfig holds signing configuration for both token kinds
type JWTConfig struct {
	SessionSecret      string
	VerificationSecret string
	SessionTTL         time.Duration
	AccessTokenTTL     time.Duration
	VerificationTTL    time.Duration
}

// GateConfig holds edge request gate configuration
type GateConfig struct {
	// Route prefixes exempt from session validation
	PublicRoutes []string
	SignInPath   string
	// AllowPrivateIPs trusts private/loopback addresses from forwarding
	// headers. An explicit flag rather than an environment-name check so
	// deployments behind internal load balancers can opt in.
	AllowPrivateIPs  bool
	TrustedDeviceTTL time.Duration
}

// UpstreamConfig holds the identity backend's connection settings
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// GuardConfig holds failed-login IP blocking configuration
type GuardConfig struct {
	Enabled        bool
	MaxAttempts    int
	AttemptWindow  time.Duration
	BlocklistCache time.Duration
}

// AuditConfig holds Kafka security-event configuration
type AuditConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	AuthRequests     int           `json:"auth_requests"`
	OTPRequests      int           `json:"otp_requests"`
	PasswordRequests int           `json:"password_requests"`
	HealthRequests   int           `json:"health_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "authgate_db"),
			User:     getEnv("DB_USER", "authgate_user"),
			Password: getEnv("DB_PASSWORD", "authgate_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		// JWT configuration
		JWT: JWTConfig{
			SessionSecret:      getEnv("SESSION_SECRET", "your-super-secret-session-key"),
			VerificationSecret: getEnv("VERIFICATION_SECRET", "your-super-secret-verification-key"),
			SessionTTL:         getDurationEnvSeconds("SESSION_TTL", int(7*24*time.Hour/time.Second)),
			AccessTokenTTL:     getDurationEnvSeconds("ACCESS_TOKEN_TTL", int(15*time.Minute/time.Second)),
			VerificationTTL:    getDurationEnvSeconds("VERIFICATION_TTL", int(5*time.Minute/time.Second)),
		},

		// Edge gate
		Gate: GateConfig{
			PublicRoutes:     getStringSliceEnv("GATE_PUBLIC_ROUTES", []string{"/sign-in", "/verify-otp", "/change-password", "/reset-password", "/health", "/ping", "/api/v1/auth"}),
			SignInPath:       getEnv("GATE_SIGN_IN_PATH", "/sign-in"),
			AllowPrivateIPs:  getBoolEnv("GATE_ALLOW_PRIVATE_IPS", false),
			TrustedDeviceTTL: getDurationEnv("GATE_TRUSTED_DEVICE_TTL", 30*24*time.Hour),
		},

		// Upstream identity backend
		Upstream: UpstreamConfig{
			BaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:8000"),
			Timeout: getDurationEnv("UPSTREAM_TIMEOUT", 10*time.Second),
		},

		// IP guard
		Guard: GuardConfig{
			Enabled:        getBoolEnv("GUARD_ENABLED", true),
			MaxAttempts:    getIntEnv("GUARD_MAX_ATTEMPTS", 5),
			AttemptWindow:  getDurationEnv("GUARD_ATTEMPT_WINDOW", 15*time.Minute),
			BlocklistCache: getDurationEnv("GUARD_BLOCKLIST_CACHE", 5*time.Minute),
		},

		// Security audit events
		Audit: AuditConfig{
			Enabled: getBoolEnv("AUDIT_ENABLED", false),
			Brokers: getStringSliceEnv("AUDIT_KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("AUDIT_KAFKA_TOPIC", "security-events"),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			AuthRequests:     getIntEnv("RATE_LIMIT_AUTH_REQUESTS", 10),
			OTPRequests:      getIntEnv("RATE_LIMIT_OTP_REQUESTS", 5),
			PasswordRequests: getIntEnv("RATE_LIMIT_PASSWORD_REQUESTS", 5),
			HealthRequests:   getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 120),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallbackSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Duration(fallbackSeconds) * time.Second
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
