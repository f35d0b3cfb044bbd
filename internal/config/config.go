package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Catalog  CatalogConfig
	Worker   WorkerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          string
	Username      string
	Password      string
	Database      string
	Schema        string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
}

type RabbitMQConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	VHost              string
	OrdersQueue        string
	NotificationsQueue string
	PrefetchCount      int
	Heartbeat          time.Duration
}

type CatalogConfig struct {
	Host string
	Port int
	// CommitTimeout bounds a single CommitSeat call. Zero means no deadline.
	CommitTimeout time.Duration
}

type WorkerConfig struct {
	Name              string
	HeartbeatInterval time.Duration
}

type RedisConfig struct {
	Addr    string
	Enabled bool
}

type KafkaConfig struct {
	Brokers            []string
	NotificationsTopic string
	Enabled            bool
}

type LogConfig struct {
	Level string
	Dir   string
}

// LoadDotEnv loads a .env file when one exists. It reports whether a file was read.
func LoadDotEnv(files ...string) bool {
	return godotenv.Load(files...) == nil
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("STATUS_PORT", ":8090"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "15433"),
			Username:      getEnv("DB_USER", "admin"),
			Password:      getEnv("DB_PASSWORD", "admin"),
			Database:      getEnv("DB_NAME", "ticketbuster"),
			Schema:        getEnv("DB_SCHEMA", "db_orders"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 15),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", false),
		},
		RabbitMQ: RabbitMQConfig{
			Host:               getEnv("RABBITMQ_HOST", "localhost"),
			Port:               getEnvInt("RABBITMQ_PORT", 5672),
			Username:           getEnv("RABBITMQ_USER", "guest"),
			Password:           getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:              getEnv("RABBITMQ_VHOST", "/"),
			OrdersQueue:        getEnv("ORDERS_QUEUE", "orders_queue"),
			NotificationsQueue: getEnv("NOTIFICATIONS_QUEUE", "notifications_queue"),
			PrefetchCount:      getEnvInt("PREFETCH_COUNT", 1),
			Heartbeat:          getEnvDuration("RABBITMQ_HEARTBEAT", 60*time.Second),
		},
		Catalog: CatalogConfig{
			Host:          getEnv("GRPC_CATALOG_HOST", "localhost"),
			Port:          getEnvInt("GRPC_CATALOG_PORT", 50051),
			CommitTimeout: getEnvDuration("COMMIT_TIMEOUT", 0),
		},
		Worker: WorkerConfig{
			Name:              getEnv("WORKER_NAME", "order-worker-1"),
			HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers:            splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			NotificationsTopic: getEnv("KAFKA_NOTIFICATIONS_TOPIC", "ticketbuster.order.notifications"),
			Enabled:            getEnvBool("KAFKA_ENABLED", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
			Dir:   getEnv("LOG_DIR", ""),
		},
	}
}

// DSN builds the lib/pq connection URL. The schema is applied through search_path.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", getEnv("DB_SSLMODE", "disable"))
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c RabbitMQConfig) URL() string {
	vhost := c.VHost
	if vhost == "/" {
		vhost = ""
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + vhost,
	}
	return u.String()
}

// DeadLetterQueue is the queue that receives orders rejected without requeue.
func (c RabbitMQConfig) DeadLetterQueue() string {
	return c.OrdersQueue + "_dlq"
}

func (c CatalogConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
