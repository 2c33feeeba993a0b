package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	// Server
	Port           string        `yaml:"port"`
	GinMode        string        `yaml:"gin_mode"`
	Environment    string        `yaml:"environment"`
	Domain         string        `yaml:"domain"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogLevel       string        `yaml:"log_level"`
	SentryDSN      string        `yaml:"sentry_dsn"`

	// Storage
	StoreDriver       string `yaml:"store_driver"`
	MongoURI          string `yaml:"mongodb_uri"`
	MongoDatabase     string `yaml:"mongodb_database"`
	MongoTransactions bool   `yaml:"mongodb_transactions"`

	// Redis; an empty address disables the rate limiter and keeps the
	// XP credit queue in memory
	RedisAddress     string `yaml:"redis_address"`
	RedisPassword    string `yaml:"redis_password"`
	RedisDB          int    `yaml:"redis_db"`
	IssueLimitPrefix string `yaml:"issue_limit_prefix"`
	IssueDailyLimit  int    `yaml:"issue_daily_limit"`
	CreditQueueKey   string `yaml:"credit_queue_key"`

	// Auth
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// Scoring policy
	SolveReward       int64         `yaml:"solve_reward"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

func Default() *Config {
	return &Config{
		Port:              "8080",
		GinMode:           "release",
		Environment:       "development",
		CORSOrigins:       []string{"*"},
		RequestTimeout:    10 * time.Second,
		LogLevel:          "info",
		StoreDriver:       DriverMongo,
		MongoDatabase:     "civicreport",
		IssueLimitPrefix:  "issue_limit",
		IssueDailyLimit:   10,
		CreditQueueKey:    "xp_credit_queue",
		TokenTTL:          72 * time.Hour,
		SolveReward:       100,
		ReconcileInterval: time.Minute,
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment (a .env file in the working directory is honoured), in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GinMode = getEnv("GIN_MODE", cfg.GinMode)
	cfg.Environment = getEnv("GO_ENV", cfg.Environment)
	cfg.Domain = getEnv("DOMAIN", cfg.Domain)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.RequestTimeout = getDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.SentryDSN = getEnv("SENTRY_DSN", cfg.SentryDSN)

	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.MongoURI = getEnv("MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.MongoDatabase)
	cfg.MongoTransactions = getBool("MONGODB_TRANSACTIONS", cfg.MongoTransactions)

	cfg.RedisAddress = getEnv("REDIS_ADDRESS", cfg.RedisAddress)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getInt("REDIS_DB", cfg.RedisDB)
	cfg.IssueLimitPrefix = getEnv("REDIS_QUEUE_FOR_ISSUE_LIMIT", cfg.IssueLimitPrefix)
	cfg.IssueDailyLimit = getInt("ISSUE_DAILY_LIMIT", cfg.IssueDailyLimit)
	cfg.CreditQueueKey = getEnv("REDIS_XP_CREDIT_QUEUE", cfg.CreditQueueKey)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getDuration("TOKEN_TTL", cfg.TokenTTL)

	cfg.SolveReward = int64(getInt("SOLVE_REWARD", int(cfg.SolveReward)))
	cfg.ReconcileInterval = getDuration("RECONCILE_INTERVAL", cfg.ReconcileInterval)
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.IssueDailyLimit < 1 {
		errs = append(errs, errors.New("ISSUE_DAILY_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Production() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
