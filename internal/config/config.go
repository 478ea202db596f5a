package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Storage    StorageConfig
	QR         QRConfig
	Routing    RoutingConfig
	Auth       AuthConfig
	Migrations MigrationsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DSN builds a lib/pq connection string. POSTGRES_DSN wins when set.
func (d DatabaseConfig) DSN() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
	LockTTL  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	Notifications string
}

type StorageConfig struct {
	Enabled       bool
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	LocalDir      string
}

type QRConfig struct {
	Secret            string
	ActivationBaseURL string
	ImageSize         int
}

type RoutingConfig struct {
	SuffixDigits      int
	OwnerWindow       time.Duration
	ActiveCallWindow  time.Duration
	CallLogRetention  time.Duration
	CandidateScanSize int
}

type AuthConfig struct {
	Issuer    string
	DevMode   bool
	AdminRole string
}

type MigrationsConfig struct {
	Dir  string
	Auto bool
}

type LogConfig struct {
	Dir   string
	Level string
	Color bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "qr_user"),
			Password:     getEnv("DB_PASSWORD", "qr_pass"),
			Database:     getEnv("DB_NAME", "qr_inventory"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				Notifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "qr-notifications"),
			},
		},
		Storage: StorageConfig{
			Enabled:       getEnvBool("S3_ENABLED", false),
			Endpoint:      getEnv("S3_ENDPOINT", ""),
			Region:        getEnv("S3_REGION", "ap-south-1"),
			Bucket:        getEnv("S3_BUCKET", "qr-images"),
			AccessKey:     getEnv("S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("S3_SECRET_KEY", ""),
			PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
			LocalDir:      getEnv("LOCAL_STORAGE_DIR", "uploads"),
		},
		QR: QRConfig{
			Secret:            getEnv("QR_SECRET", "0123456789abcdef0123456789abcdef"),
			ActivationBaseURL: getEnv("QR_ACTIVATION_BASE_URL", "http://localhost:8080/api/qrs/activate"),
			ImageSize:         getEnvInt("QR_IMAGE_SIZE", 256),
		},
		Routing: RoutingConfig{
			SuffixDigits:      getEnvInt("ROUTING_SUFFIX_DIGITS", 10),
			OwnerWindow:       getEnvDuration("ROUTING_OWNER_WINDOW", time.Hour),
			ActiveCallWindow:  getEnvDuration("ROUTING_ACTIVE_WINDOW", 30*time.Second),
			CallLogRetention:  getEnvDuration("CALL_LOG_RETENTION", 24*time.Hour),
			CandidateScanSize: getEnvInt("ROUTING_CANDIDATE_SCAN", 10),
		},
		Auth: AuthConfig{
			Issuer:    getEnv("OIDC_ISSUER", ""),
			DevMode:   getEnvBool("AUTH_DEV_MODE", false),
			AdminRole: getEnv("AUTH_ADMIN_ROLE", "admin"),
		},
		Migrations: MigrationsConfig{
			Dir:  getEnv("MIGRATIONS_DIR", "migrations"),
			Auto: getEnvBool("AUTO_MIGRATE", true),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "info"),
			Color: getEnvBool("LOG_COLOR", true),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
