package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Relay sources.
const (
	RelaySourceDirect = "direct" // services dispatch change events in-process
	RelaySourceListen = "listen" // events arrive through Postgres LISTEN/NOTIFY
)

type Config struct {
	App struct {
		ENV  string
		Name string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		LogSQL   bool
	}

	// AuthDB is the optional auxiliary store holding login accounts.
	// When DSN is empty the primary store is used.
	AuthDB struct {
		Driver string
		DSN    string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host            string
		Port            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		IdleTimeout     time.Duration
		ShutdownTimeout time.Duration
		AllowedOrigins  []string
	}

	Auth struct {
		JWTSecret string
		Issuer    string
		AccessTTL time.Duration
	}

	Relay struct {
		Source         string
		ListenDSN      string
		ReconnectDelay time.Duration
		SendBuffer     int
		RedisChannel   string
	}

	RateLimit struct {
		RegisteredRPS int
		PremiumRPS    int
		StaffRPS      int
		Burst         int
	}

	Audit struct {
		Capacity      int
		Durable       bool
		RetentionDays int
	}

	// Jobs run inside the server process. A zero interval disables one.
	Jobs struct {
		ReconcileInterval time.Duration
		ReconcileBatch    int
	}
}

// New builds the configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")
	cfg.App.Name = getEnvDefault("APP_NAME", "soulmate-hub")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "hub_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "postgres"))
	cfg.DB.LogSQL = isTruthy(os.Getenv("DB_LOG_SQL"))
	cfg.DB.DSN = os.Getenv("DATABASE_URL")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.User = getEnvDefault("DB_USER", "sweety_user")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "sweety")
		cfg.DB.Name = getEnvDefault("DB_NAME", "sweety_db")

		switch cfg.DB.Driver {
		case "mysql":
			cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
			cfg.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
			)
		case "sqlite":
			cfg.DB.DSN = getEnvDefault("DB_PATH", "soulmate.db")
		default:
			cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
			cfg.DB.DSN = fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
			)
		}
	}

	cfg.AuthDB.DSN = os.Getenv("AUTH_DATABASE_URL")
	cfg.AuthDB.Driver = strings.ToLower(getEnvDefault("AUTH_DB_DRIVER", cfg.DB.Driver))

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getIntDefault("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "5000")
	cfg.HTTP.ReadTimeout = getDurationDefault("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTP.WriteTimeout = getDurationDefault("HTTP_WRITE_TIMEOUT", 30*time.Second)
	cfg.HTTP.IdleTimeout = getDurationDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)
	cfg.HTTP.ShutdownTimeout = getDurationDefault("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.HTTP.AllowedOrigins = splitList(getEnvDefault("CLIENT_URL", "http://localhost:3000"))

	// Auth
	cfg.Auth.JWTSecret = getEnvDefault("JWT_SECRET", os.Getenv("SUPABASE_JWT_SECRET"))
	cfg.Auth.Issuer = getEnvDefault("JWT_ISSUER", "")
	cfg.Auth.AccessTTL = getDurationDefault("JWT_ACCESS_TTL", time.Hour)

	// Relay
	cfg.Relay.Source = strings.ToLower(getEnvDefault("RELAY_SOURCE", RelaySourceDirect))
	cfg.Relay.ListenDSN = getEnvDefault("LISTEN_DATABASE_URL", "")
	cfg.Relay.ReconnectDelay = getDurationDefault("RELAY_RECONNECT_DELAY", 5*time.Second)
	cfg.Relay.SendBuffer = getIntDefault("RELAY_SEND_BUFFER", 64)
	cfg.Relay.RedisChannel = getEnvDefault("RELAY_REDIS_CHANNEL", "relay:events")

	// Rate limiting (requests per second per user)
	cfg.RateLimit.RegisteredRPS = getIntDefault("RATE_LIMIT_REGISTERED_RPS", 5)
	cfg.RateLimit.PremiumRPS = getIntDefault("RATE_LIMIT_PREMIUM_RPS", 20)
	cfg.RateLimit.StaffRPS = getIntDefault("RATE_LIMIT_STAFF_RPS", 50)
	cfg.RateLimit.Burst = getIntDefault("RATE_LIMIT_BURST", 10)

	// Security audit
	cfg.Audit.Capacity = getIntDefault("AUDIT_CAPACITY", 1000)
	cfg.Audit.Durable = isTruthy(getEnvDefault("AUDIT_DURABLE", "true"))
	cfg.Audit.RetentionDays = getIntDefault("AUDIT_RETENTION_DAYS", 90)

	// Background jobs
	cfg.Jobs.ReconcileInterval = getDurationDefault("RECONCILE_INTERVAL", 5*time.Minute)
	cfg.Jobs.ReconcileBatch = getIntDefault("RECONCILE_BATCH", 500)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getIntDefault(k string, def int) int {
	if v, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func getDurationDefault(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
