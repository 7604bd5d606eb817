package configs

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/rabbitmq"
)

type Config struct {
	ServiceID               string `envconfig:"SERVICE_ID" validate:"required"`
	ServerPort              string `envconfig:"SERVER_PORT" default:"8080" validate:"required,numeric"`
	LogLevel                string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	RequestTimeOutInSeconds int64  `envconfig:"REQUEST_TIME_OUT_IN_SECONDS" default:"5" validate:"gt=0"`
	Database                DatabaseConfig
	RabbitMQ                RabbitMQConfig
	RedisConfig             RedisConfig
	Monitor                 MonitorConfig
}

type DatabaseConfig struct {
	Username     string `envconfig:"DB_USERNAME"`
	Password     string `envconfig:"DB_PASSWORD"`
	Host         string `envconfig:"DB_HOST"`
	Port         string `envconfig:"DB_PORT"`
	Database     string `envconfig:"DB_DATABASE"`
	SSLMode      string `envconfig:"DB_SSL_MODE" default:"require"`
	PoolMaxConns int    `envconfig:"DB_POOL_MAX_CONNS" default:"1" validate:"gt=0"`
}

type RabbitMQConfig struct {
	Username                    string   `envconfig:"RABBIT_USERNAME" default:"guest"`
	Password                    string   `envconfig:"RABBIT_PASSWORD" default:"guest"`
	Host                        string   `envconfig:"RABBIT_HOST" default:"localhost" validate:"required"`
	Port                        int      `envconfig:"RABBIT_PORT" default:"5672" validate:"min=1,max=65535"`
	VHost                       string   `envconfig:"RABBIT_VHOST" default:"/"`
	Exchange                    string   `envconfig:"RABBIT_EXCHANGE" default:"events" validate:"required"`
	ExchangeType                string   `envconfig:"RABBIT_EXCHANGE_TYPE" default:"topic" validate:"oneof=direct fanout topic headers"`
	RoutingKeys                 []string `envconfig:"RABBIT_ROUTING_KEYS"`
	ConnectRetries              uint64   `envconfig:"RABBIT_CONNECT_RETRIES" default:"0"`
	ConnectRetryIntervalSeconds int64    `envconfig:"RABBIT_CONNECT_RETRY_INTERVAL_SECONDS" default:"3" validate:"gt=0"`
}

type RedisConfig struct {
	Username string `envconfig:"REDIS_USERNAME"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	DBIndex  int32  `envconfig:"REDIS_DB_INDEX"`
}

type MonitorConfig struct {
	HeartbeatTTLSeconds int64 `envconfig:"MONITOR_HEARTBEAT_TTL_SECONDS" default:"120" validate:"gt=0"`
}

// ToMigrationUri returns a string specifically for the migration package with the right prefix
func (d DatabaseConfig) ToMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
	)
}

// ToDbConnectionUri returns a connection URI to be used with the pgx package
func (d DatabaseConfig) ToDbConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

func (d RabbitMQConfig) ToConnectionConfig() rabbitmq.ConnectionConfig {
	return rabbitmq.ConnectionConfig{
		Host:     d.Host,
		Port:     d.Port,
		Username: d.Username,
		Password: d.Password,
		VHost:    d.VHost,
	}
}

func (d RabbitMQConfig) ToExchange() domain.Exchange {
	return domain.Exchange{
		Name: d.Exchange,
		Kind: d.ExchangeType,
	}
}

// ToRedisConnectionUri returns a connection URI to be used with the redis/go-redis/v9 package
func (d RedisConfig) ToRedisConnectionUri() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DBIndex,
	)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func InitConfig() *Config {
	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Unable to load .env %v", err)
	}

	var cfg Config
	err = envconfig.Process("", &cfg)
	if err != nil {
		log.Fatalf("Cannot load env: %v", err)
	}

	return &cfg
}
