package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"attendguard/utils"
)

type DatabaseConfig struct {
	URI                  string
	MaxPoolSize          uint64
	MinPoolSize          uint64
	MaxConnIdleTime      time.Duration
	DatabaseName         string
	RetryWrites          bool
	AttendanceCollection string
	SessionsCollection   string
	ConnectTimeout       time.Duration
}

type StoreConfig struct {
	Backend        string // memory, redis, pebble or file
	Path           string
	RedisURL       string
	RedisKeyPrefix string
	ConnectTimeout time.Duration
}

type AttendanceConfig struct {
	FingerprintValidity  time.Duration
	RestrictionRetention time.Duration
	CleanupInterval      time.Duration
	GeolocationTimeout   time.Duration
	LedgerScope          string // device or shared
	ExpireOnSessionEnd   bool
	Timezone             string
	LocationCacheSize    int
	LocationCacheTTL     time.Duration
}

type AuthConfig struct {
	JWTSecretKey string
	JWTIssuer    string
}

type HTTPConfig struct {
	Port           string
	AllowedOrigins []string // empty allows any origin
	SecureCookies  bool
}

type Config struct {
	HTTP       HTTPConfig
	LogLevel   string
	Database   DatabaseConfig
	Store      StoreConfig
	Attendance AttendanceConfig
	Auth       AuthConfig
}

func LoadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URI:                  utils.GetEnvAsString("MONGO_URI", "mongodb://localhost:27017"),
		MaxPoolSize:          utils.GetEnvAsUint64("MONGO_MAX_POOL_SIZE", 100),
		MinPoolSize:          utils.GetEnvAsUint64("MONGO_MIN_POOL_SIZE", 10),
		MaxConnIdleTime:      time.Duration(utils.GetEnvAsInt("MONGO_MAX_CONN_IDLE_TIME", 60)) * time.Second,
		DatabaseName:         utils.GetEnvAsString("MONGO_DB", "attendguard"),
		RetryWrites:          utils.GetEnvAsBool("MONGO_RETRY_WRITES", true),
		AttendanceCollection: utils.GetEnvAsString("ATTENDANCE_COLLECTION", "attendance"),
		SessionsCollection:   utils.GetEnvAsString("SESSIONS_COLLECTION", "sessions"),
		ConnectTimeout:       utils.GetEnvAsDuration("MONGO_CONNECT_TIMEOUT", 30*time.Second),
	}
}

func LoadStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:        utils.GetEnvAsString("STORE_BACKEND", "memory"),
		Path:           utils.GetEnvAsString("STORE_PATH", "data/attendguard"),
		RedisURL:       utils.GetEnvAsString("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix: utils.GetEnvAsString("REDIS_KEY_PREFIX", "attendguard:"),
		ConnectTimeout: utils.GetEnvAsDuration("REDIS_CONNECT_TIMEOUT", 15*time.Second),
	}
}

func LoadAttendanceConfig() AttendanceConfig {
	return AttendanceConfig{
		FingerprintValidity:  utils.GetEnvAsDuration("FINGERPRINT_VALIDITY", 24*time.Hour),
		RestrictionRetention: utils.GetEnvAsDuration("RESTRICTION_RETENTION", 48*time.Hour),
		CleanupInterval:      utils.GetEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
		GeolocationTimeout:   utils.GetEnvAsDuration("GEOLOCATION_TIMEOUT", 5*time.Second),
		LedgerScope:          utils.GetEnvAsString("LEDGER_SCOPE", "device"),
		ExpireOnSessionEnd:   utils.GetEnvAsBool("LEDGER_EXPIRE_ON_SESSION_END", false),
		Timezone:             utils.GetEnvAsString("ATTENDANCE_TIMEZONE", "UTC"),
		LocationCacheSize:    utils.GetEnvAsInt("LOCATION_CACHE_SIZE", 256),
		LocationCacheTTL:     utils.GetEnvAsDuration("LOCATION_CACHE_TTL", time.Minute),
	}
}

// Load reads the configuration from the environment, loading .env first when
// one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Port:           utils.GetEnvAsString("PORT", "8080"),
			AllowedOrigins: utils.GetEnvAsList("ALLOWED_ORIGINS"),
			SecureCookies:  utils.GetEnvAsBool("SECURE_COOKIES", false),
		},
		LogLevel:   utils.GetEnvAsString("LOG_LEVEL", "info"),
		Database:   LoadDatabaseConfig(),
		Store:      LoadStoreConfig(),
		Attendance: LoadAttendanceConfig(),
		Auth: AuthConfig{
			JWTSecretKey: os.Getenv("JWT_SECRET_KEY"),
			JWTIssuer:    utils.GetEnvAsString("JWT_ISSUER", "attendguard"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Attendance.LedgerScope {
	case "device", "shared":
	default:
		return fmt.Errorf("LEDGER_SCOPE must be device or shared, got %q", c.Attendance.LedgerScope)
	}
	if c.Attendance.RestrictionRetention <= 0 {
		return fmt.Errorf("RESTRICTION_RETENTION must be positive")
	}
	if _, err := c.Zone(); err != nil {
		return err
	}
	return nil
}

// Zone is the time zone that delimits attendance days.
func (c *Config) Zone() (*time.Location, error) {
	zone, err := time.LoadLocation(c.Attendance.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_TIMEZONE %q: %w", c.Attendance.Timezone, err)
	}
	return zone, nil
}
