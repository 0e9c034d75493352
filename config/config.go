package config

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"identity-api"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3004"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int    `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	ShutdownTimeoutSeconds        int    `env:"HTTP_SERVER_SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Identity graph. GRAPH_STORE=memory runs without a database.
	GraphStore            string `env:"GRAPH_STORE" env-default:"neo4j"`
	GraphDBURI            string `env:"GRAPH_DB_URI" env-default:""`
	GraphDBHost           string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort           int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser           string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword       string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBDatabase       string `env:"GRAPH_DB_DATABASE" env-default:""`
	GraphDBMaxPoolSize    int    `env:"GRAPH_DB_MAX_POOL_SIZE" env-default:"50"`
	GraphDBTimeoutSeconds int    `env:"GRAPH_DB_TIMEOUT_SECONDS" env-default:"10"`
	GraphDBEnsureSchema   bool   `env:"GRAPH_DB_ENSURE_SCHEMA" env-default:"true"`
	GraphDBDialect        string `env:"GRAPH_DB_DIALECT" env-default:"neo4j"`

	// Resolution
	RelinkPolicy  string `env:"RELINK_POLICY" env-default:"repoint"`
	ActivityLimit int    `env:"ACTIVITY_LIMIT" env-default:"1000"`

	// Kafka Producer settings
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"identity-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Redis brand cache
	RedisEnabled         bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost            string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort            int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword        string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB              int    `env:"REDIS_DB" env-default:"0"`
	BrandCacheTTLSeconds int    `env:"BRAND_CACHE_TTL_SECONDS" env-default:"300"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingExporter string `env:"TRACING_EXPORTER" env-default:"otlp"`
	TracingEndpoint string `env:"TRACING_ENDPOINT" env-default:"localhost:4317"`
	TracingProtocol string `env:"TRACING_PROTOCOL" env-default:"grpc"`
	TracingInsecure bool   `env:"TRACING_INSECURE" env-default:"true"`

	MetricsEnabled bool `env:"METRICS_ENABLED" env-default:"true"`
}

// Load reads an optional .env file, then binds the environment into a Config.
func Load(envFiles ...string) (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to bind environment: %w", err)
	}
	return cfg, nil
}

func (c Config) GraphDBTimeout() time.Duration {
	return time.Duration(c.GraphDBTimeoutSeconds) * time.Second
}

func (c Config) BrandCacheTTL() time.Duration {
	return time.Duration(c.BrandCacheTTLSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
