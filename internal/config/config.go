package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Role        string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis   RedisConfig
	Auth    AuthConfig
	Payment PaymentConfig
	Email   EmailConfig
	Queue   QueueConfig

	Observability ObservabilityConfig

	OrderPaymentTTL time.Duration

	TuningPath      string
	TuningHotReload bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type PaymentConfig struct {
	Provider      string
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

type EmailConfig struct {
	Provider     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// ObservabilityConfig feeds logging, tracing and metrics exporters.
type ObservabilityConfig struct {
	LogLevel          string
	LogFormat         string
	OtelEnabled       bool
	OtelProtocol      string
	OtelSamplingRatio float64
	GormSlowThreshold time.Duration
}

type QueueConfig struct {
	Driver        string
	ConsumerGroup string
}

const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"

	QueueDriverRedis     = "redis"
	QueueDriverGoChannel = "gochannel"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "ticketing"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		Role:         normalizeRole(getenv("APP_ROLE", RoleAll)),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "ticketing"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			Issuer:    getenv("AUTH_JWT_ISSUER", "ticketing"),
			TokenTTL:  getenvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		Payment: PaymentConfig{
			Provider:      strings.ToLower(getenv("PAYMENT_PROVIDER", "asaas")),
			BaseURL:       strings.TrimRight(getenv("ASAAS_BASE_URL", "https://api.asaas.com/v3"), "/"),
			APIKey:        strings.TrimSpace(getenv("ASAAS_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("ASAAS_WEBHOOK_SECRET", "")),
			Timeout:       getenvDuration("ASAAS_TIMEOUT", 15*time.Second),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(getenv("EMAIL_PROVIDER", "smtp")),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "tickets@localhost"),
		},
		Queue: QueueConfig{
			Driver:        normalizeQueueDriver(getenv("QUEUE_DRIVER", QueueDriverRedis)),
			ConsumerGroup: getenv("QUEUE_CONSUMER_GROUP", "ticketing-workers"),
		},
		Observability: ObservabilityConfig{
			LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:       getenvBool("OTEL_ENABLED", false),
			OtelProtocol:      otlpProtocol(),
			OtelSamplingRatio: clampRatio(getenvFloat("OTEL_SAMPLING_RATIO", 0.1)),
			GormSlowThreshold: getenvDuration("GORM_SLOW_THRESHOLD", 200*time.Millisecond),
		},
		OrderPaymentTTL: getenvDuration("ORDER_PAYMENT_TTL", 24*time.Hour),

		TuningPath:      strings.TrimSpace(getenv("TUNING_PATH", "")),
		TuningHotReload: getenvBool("TUNING_HOT_RELOAD", true),
	}

	return cfg
}

// RunsAPI reports whether the HTTP surface should be started.
func (c Config) RunsAPI() bool {
	return c.Role == RoleAPI || c.Role == RoleAll
}

// RunsWorker reports whether task consumers and sweepers should be started.
func (c Config) RunsWorker() bool {
	return c.Role == RoleWorker || c.Role == RoleAll
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func normalizeRole(raw string) string {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case RoleAPI, RoleWorker:
		return value
	default:
		return RoleAll
	}
}

func normalizeQueueDriver(raw string) string {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case QueueDriverGoChannel:
		return value
	default:
		return QueueDriverRedis
	}
}

// otlpProtocol prefers the traces-specific override.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func clampRatio(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
