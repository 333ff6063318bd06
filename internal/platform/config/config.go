package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures configuration for the task API.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration
	DatabaseURL   string
	Redis         RedisConfig
	Activity      Activity
	RateLimit     RateLimit
	Log           Log
}

// ActivityLogger captures configuration for the ingestion service.
type ActivityLogger struct {
	Addr        string
	Store       string
	DatabaseURL string
	MongoURI    string
	MongoDB     string
	Kafka       Kafka
	ReadToken   string
	Log         Log
}

// Activity configures the emitters in the task API.
type Activity struct {
	BaseURL           string
	TaskEventsEnabled bool
	AuthEventsEnabled bool
	Timeout           time.Duration
	Buffer            int
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

// TaskLogsURL and AuthLogsURL are the ingestion endpoints for each channel.
func (a Activity) TaskLogsURL() string { return strings.TrimRight(a.BaseURL, "/") + "/api/logs" }
func (a Activity) AuthLogsURL() string { return strings.TrimRight(a.BaseURL, "/") + "/api/auth-logs" }

// RateLimit throttles register and login per client IP. A zero Limit
// disables it.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

func (r RateLimit) Enabled() bool { return r.Limit > 0 && r.Window > 0 }

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers     []string
	Topic       string
	MaxBuffered int
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type Log struct {
	Level  string
	Format string
}

// Store backends for the ingestion service.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// LoadDotEnv loads path into the environment when it exists. Variables that
// are already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	authEnabled := envBool("ACTIVITY_AUTH_EVENTS_ENABLED", false)
	if _, ok := os.LookupEnv("ACTIVITY_AUTH_EVENTS_ENABLED"); !ok {
		authEnabled = envBool("ENABLE_LOGGER_SERVICE", false)
	}

	return Server{
		Addr:          envString("TASKTRAIL_ADDR", ":8080"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envString("JWT_ISSUER", "tasktrail"),
		TokenTTL:      envDuration("JWT_TTL", time.Hour),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Activity: Activity{
			BaseURL:           envString("ACTIVITY_BASE_URL", "http://localhost:3000"),
			TaskEventsEnabled: envBool("ACTIVITY_TASK_EVENTS_ENABLED", false),
			AuthEventsEnabled: authEnabled,
			Timeout:           envDuration("ACTIVITY_TIMEOUT", 2*time.Second),
			Buffer:            envInt("ACTIVITY_BUFFER", 0),
			BreakerThreshold:  envInt("ACTIVITY_BREAKER_THRESHOLD", 5),
			BreakerCooldown:   envDuration("ACTIVITY_BREAKER_COOLDOWN", 30*time.Second),
		},
		RateLimit: RateLimit{
			Limit:  envInt("AUTH_RATE_LIMIT", 10),
			Window: envDuration("AUTH_RATE_WINDOW", time.Minute),
		},
		Log: logFromEnv(),
	}
}

// ActivityLoggerFromEnv builds the ingestion service config.
func ActivityLoggerFromEnv() ActivityLogger {
	return ActivityLogger{
		Addr:        envString("ACTIVITY_LOGGER_ADDR", ":3000"),
		Store:       strings.ToLower(envString("ACTIVITY_STORE", StoreMemory)),
		DatabaseURL: os.Getenv("ACTIVITY_DATABASE_URL"),
		MongoURI:    envString("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:     envString("MONGODB_DATABASE", "task_logger"),
		Kafka: Kafka{
			Brokers:     envList("KAFKA_BROKERS"),
			Topic:       envString("KAFKA_TOPIC", "activity-events"),
			MaxBuffered: envInt("KAFKA_MAX_BUFFERED", 10000),
		},
		ReadToken: os.Getenv("ACTIVITY_READ_TOKEN"),
		Log:       logFromEnv(),
	}
}

func logFromEnv() Log {
	return Log{
		Level:  envString("LOG_LEVEL", "info"),
		Format: envString("LOG_FORMAT", "json"),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
