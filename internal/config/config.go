package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppPort string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DBDriver          string
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUsername        string
	DBPassword        string
	DBSSLMode         string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret string

	// Upload
	UploadMaxSize int
	UploadPath    string

	// Import
	MatchStrictness  string
	MatchConcurrency int
	SessionTTL       time.Duration
	ApplyAsync       bool

	// Worker
	WorkerConcurrency int

	// Asynq
	AsynqRedisAddr     string
	AsynqRedisPassword string
	AsynqRedisDB       int
}

func Load() (*Config, error) {
	// Load .env from the working dir, then from the repo root when started
	// from cmd/web or cmd/worker.
	_ = godotenv.Load()
	_ = godotenv.Load("../../.env")

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Shipment Import"),
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:            getEnv("DB_HOST", "127.0.0.1"),
		DBPort:            getEnv("DB_PORT", ""),
		DBDatabase:        getEnv("DB_DATABASE", "logistics"),
		DBUsername:        getEnv("DB_USERNAME", "logistics"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "change-this-secret-key"),

		UploadMaxSize: getEnvAsInt("UPLOAD_MAX_SIZE", 20971520), // 20MB
		UploadPath:    getEnv("UPLOAD_PATH", "./storage/uploads"),

		MatchStrictness:  getEnv("IMPORT_MATCH_STRICTNESS", "route"),
		MatchConcurrency: getEnvAsInt("IMPORT_MATCH_CONCURRENCY", 4),
		SessionTTL:       getEnvAsDuration("IMPORT_SESSION_TTL", 24*time.Hour),
		ApplyAsync:       getEnvAsBool("IMPORT_APPLY_ASYNC", false),

		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),

		AsynqRedisAddr:     getEnv("ASYNQ_REDIS_ADDR", "127.0.0.1:6379"),
		AsynqRedisPassword: getEnv("ASYNQ_REDIS_PASSWORD", ""),
		AsynqRedisDB:       getEnvAsInt("ASYNQ_REDIS_DB", 0),
	}

	if cfg.DBDriver != "mysql" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "3306"
		if cfg.DBDriver == "postgres" {
			cfg.DBPort = "5432"
		}
	}

	return cfg, nil
}

// GetDSN returns the connection string for DBDriver. MySQL reports matched
// rather than changed rows so a zero-row update always means a missing record.
func (c *Config) GetDSN() string {
	if c.DBDriver == "postgres" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DBUsername, c.DBPassword),
			Host:     c.DBHost + ":" + c.DBPort,
			Path:     c.DBDatabase,
			RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
		}
		return u.String()
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=Local&charset=utf8mb4&clientFoundRows=true",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBDatabase,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
