package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Broker   BrokerConfig
	Webhook  WebhookConfig
	Logging  LoggingConfig
	Tracing  TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	PresignExpiry   time.Duration
}

// BrokerConfig holds encode-job broker configuration. Kind selects the
// backend: "rest" publishes to an HTTP broker with a bearer token, "amqp"
// publishes to RabbitMQ directly.
type BrokerConfig struct {
	Kind  string
	URL   string
	Topic string

	// REST broker credential (signed-assertion token exchange)
	TokenURL       string
	Scope          string
	KeyID          string
	PrivateKeyPEM  string
	ClientIdentity string
	CacheTokens    bool

	// AMQP broker
	AMQPHost     string
	AMQPPort     int
	AMQPUser     string
	AMQPPassword string
	AMQPVhost    string
}

// WebhookConfig holds inbound callback configuration
type WebhookConfig struct {
	CallbackBaseURL string
	ReplayWindow    time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	JaegerEndpoint string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.rateLimitRPS", 50)
	viper.SetDefault("server.rateLimitBurst", 100)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "encoding")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "videos")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)
	viper.SetDefault("storage.presignExpiry", "15m")

	// Broker defaults
	viper.SetDefault("broker.kind", "rest")
	viper.SetDefault("broker.topic", "encode-jobs")
	viper.SetDefault("broker.scope", "https://broker.local/auth/publish")
	viper.SetDefault("broker.cacheTokens", false)
	viper.SetDefault("broker.amqpHost", "localhost")
	viper.SetDefault("broker.amqpPort", 5672)
	viper.SetDefault("broker.amqpUser", "guest")
	viper.SetDefault("broker.amqpPassword", "guest")
	viper.SetDefault("broker.amqpVhost", "/")

	// Webhook defaults
	viper.SetDefault("webhook.callbackBaseURL", "http://localhost:8080")
	viper.SetDefault("webhook.replayWindow", "300s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.serviceName", "encoding-service")
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")
}
