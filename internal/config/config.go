package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/workday"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	TimeSourceSystem = "system"
	TimeSourceHTTP   = "http"
	TimeSourceNTP    = "ntp"
)

type Config struct {
	Database      DatabaseConfig
	JWT           JWTConfig
	App           AppConfig
	Session       SessionConfig
	TimeIntegrity TimeIntegrityConfig
	Storage       StorageConfig
	Redis         RedisConfig
	NATS          NATSConfig
	CORS          CORSConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration time.Duration
}

// AppConfig holds application configuration
type AppConfig struct {
	Name           string
	Version        string
	Port           int
	Env            string
	LogLevel       string
	RequestTimeout time.Duration
}

// SessionConfig holds the working day and session lifetime settings.
type SessionConfig struct {
	Timeout           time.Duration
	CleanupInterval   time.Duration
	WorkStartTime     string
	WorkEndTime       string
	StandardWorkHours float64
	OfficeTimezone    string
	OfficesFile       string
}

type TimeIntegrityConfig struct {
	Tolerance     time.Duration
	MinYear       int
	MaxYear       int
	Source        string
	SourceURL     string
	NTPServer     string
	SourceTimeout time.Duration
}

type StorageConfig struct {
	Driver string
}

// RedisConfig enables the distributed cleanup lock when Addr is set.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	LockPrefix string
}

// NATSConfig enables the NATS event publisher when URL is set.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	} else if err != nil {
		slog.Debug("No .env file, using the process environment")
	}

	config := &Config{}
	p := &parser{}

	// Database configuration
	config.Database = DatabaseConfig{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           p.int("DB_PORT", "5432"),
		User:           getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", ""),
		Name:           getEnv("DB_NAME", "presence"),
		SSLMode:        getEnv("DB_SSL_MODE", "disable"),
		MaxConns:       int32(p.int("DB_MAX_CONNS", "10")),
		MinConns:       int32(p.int("DB_MIN_CONNS", "1")),
		ConnectTimeout: p.duration("DB_CONNECT_TIMEOUT", "30s"),
	}

	// Application configuration
	config.App = AppConfig{
		Name:           getEnv("APP_NAME", "presence"),
		Version:        getEnv("APP_VERSION", "v1.0.0"),
		Port:           p.int("APP_PORT", "8080"),
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: p.duration("REQUEST_TIMEOUT", "15s"),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: p.duration("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	config.Session = SessionConfig{
		Timeout:           p.duration("SESSION_TIMEOUT", "24h"),
		CleanupInterval:   p.duration("SESSION_CLEANUP_INTERVAL", "1h"),
		WorkStartTime:     getEnv("WORK_START_TIME", "08:00"),
		WorkEndTime:       getEnv("WORK_END_TIME", "17:00"),
		StandardWorkHours: p.float("STANDARD_WORK_HOURS", "8"),
		OfficeTimezone:    getEnv("OFFICE_TIMEZONE", "Africa/Nairobi"),
		OfficesFile:       getEnv("OFFICES_FILE", ""),
	}

	config.TimeIntegrity = TimeIntegrityConfig{
		Tolerance:     p.duration("TIME_TOLERANCE", "5m"),
		MinYear:       p.int("TIME_MIN_YEAR", "2020"),
		MaxYear:       p.int("TIME_MAX_YEAR", "2030"),
		Source:        strings.ToLower(getEnv("TIME_SOURCE", TimeSourceSystem)),
		SourceURL:     getEnv("TIME_SOURCE_URL", ""),
		NTPServer:     getEnv("NTP_SERVER", "pool.ntp.org"),
		SourceTimeout: p.duration("TIME_SOURCE_TIMEOUT", "3s"),
	}

	config.Storage = StorageConfig{
		Driver: strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
	}

	config.Redis = RedisConfig{
		Addr:       getEnv("REDIS_ADDR", ""),
		Password:   getEnv("REDIS_PASSWORD", ""),
		DB:         p.int("REDIS_DB", "0"),
		LockPrefix: getEnv("REDIS_LOCK_PREFIX", "presence:lock:"),
	}

	config.NATS = NATSConfig{
		URL:           getEnv("NATS_URL", ""),
		SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "presence.sessions"),
	}

	config.CORS = CORSConfig{
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}

	switch c.Storage.Driver {
	case StoragePostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage.Driver)
	}

	for key, value := range map[string]string{
		"WORK_START_TIME": c.Session.WorkStartTime,
		"WORK_END_TIME":   c.Session.WorkEndTime,
	} {
		if !validator.IsValidClock(value) {
			return fmt.Errorf("invalid %s %q: want HH:MM", key, value)
		}
	}

	start, err := workday.Parse(c.Session.WorkStartTime)
	if err != nil {
		return fmt.Errorf("invalid WORK_START_TIME: %w", err)
	}
	end, err := workday.Parse(c.Session.WorkEndTime)
	if err != nil {
		return fmt.Errorf("invalid WORK_END_TIME: %w", err)
	}
	if end.Minutes() <= start.Minutes() {
		return fmt.Errorf("WORK_END_TIME %s must be after WORK_START_TIME %s", end, start)
	}

	if _, err := time.LoadLocation(c.Session.OfficeTimezone); err != nil {
		return fmt.Errorf("invalid OFFICE_TIMEZONE: %w", err)
	}

	if c.Session.StandardWorkHours <= 0 {
		return fmt.Errorf("STANDARD_WORK_HOURS must be positive")
	}
	if c.Session.Timeout <= 0 || c.Session.CleanupInterval <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT and SESSION_CLEANUP_INTERVAL must be positive")
	}

	switch c.TimeIntegrity.Source {
	case TimeSourceSystem, TimeSourceNTP:
	case TimeSourceHTTP:
		if c.TimeIntegrity.SourceURL == "" {
			return fmt.Errorf("TIME_SOURCE_URL is required when TIME_SOURCE is http")
		}
	default:
		return fmt.Errorf("TIME_SOURCE must be system, http or ntp, got %q", c.TimeIntegrity.Source)
	}
	if c.TimeIntegrity.MinYear > c.TimeIntegrity.MaxYear {
		return fmt.Errorf("TIME_MIN_YEAR must not be after TIME_MAX_YEAR")
	}

	return nil
}

// WorkHours returns the parsed WORK_START_TIME and WORK_END_TIME. Call after Validate.
func (c *Config) WorkHours() (workday.TimeOfDay, workday.TimeOfDay) {
	start, _ := workday.Parse(c.Session.WorkStartTime)
	end, _ := workday.Parse(c.Session.WorkEndTime)
	return start, end
}

// Location returns the fallback office timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Session.OfficeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// parser collects every malformed value instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) int(key, fallback string) int {
	v, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
	}
	return v
}

func (p *parser) float(key, fallback string) float64 {
	v, err := strconv.ParseFloat(getEnv(key, fallback), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
	}
	return v
}

func (p *parser) duration(key, fallback string) time.Duration {
	v, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
	}
	return v
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key, fallback string) []string {
	value := getEnv(key, fallback)
	if value == "" {
		return []string{}
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
