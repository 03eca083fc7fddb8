// Package config holds the viewing service's settings, read from the
// environment after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	libconfig "github.com/md-rashed-zaman/viewings/libs/config"
)

const (
	TransportNone  = "none"
	TransportKafka = "kafka"
	TransportAMQP  = "amqp"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"viewing-service"`
	Port        string `env:"PORT" envDefault:"8080"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL selects the Postgres store. Empty keeps everything in memory.
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	DirectoryFile      string        `env:"DIRECTORY_FILE"`
	DirectoryCacheSize int           `env:"DIRECTORY_CACHE_SIZE" envDefault:"1024"`
	DirectoryCacheTTL  time.Duration `env:"DIRECTORY_CACHE_TTL" envDefault:"1m"`

	MinLeadTime               time.Duration `env:"MIN_LEAD_TIME" envDefault:"1h"`
	MinDurationMinutes        int           `env:"MIN_DURATION_MINUTES" envDefault:"15"`
	MaxDurationMinutes        int           `env:"MAX_DURATION_MINUTES" envDefault:"240"`
	MaxAttendees              int           `env:"MAX_ATTENDEES" envDefault:"10"`
	DefaultGranularityMinutes int           `env:"DEFAULT_GRANULARITY_MINUTES" envDefault:"30"`
	MaxAvailabilityRange      time.Duration `env:"MAX_AVAILABILITY_RANGE" envDefault:"744h"`
	AgentLockTimeout          time.Duration `env:"AGENT_LOCK_TIMEOUT" envDefault:"5s"`

	EventTransport     string        `env:"EVENT_TRANSPORT" envDefault:"none"`
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix   string        `env:"KAFKA_TOPIC_PREFIX"`
	AMQPURL            string        `env:"AMQP_URL"`
	AMQPExchange       string        `env:"AMQP_EXCHANGE" envDefault:"viewings.events"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int    `env:"REDIS_DB" envDefault:"0"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"0"`
	RateLimitFailOpen  bool   `env:"RATE_LIMIT_FAIL_OPEN" envDefault:"true"`

	JWTSecret          string        `env:"JWT_SECRET"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	BodyLimitBytes     int64         `env:"REQUEST_BODY_LIMIT_BYTES" envDefault:"1048576"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

// Load reads .env (if present) and the environment, then validates.
func Load() (Config, error) {
	if err := libconfig.LoadDotenv(); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := libconfig.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if err := libconfig.ValidPort(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT %w", err))
	}
	if err := libconfig.ValidPort(c.GRPCPort); err != nil {
		errs = append(errs, fmt.Errorf("GRPC_PORT %w", err))
	}
	if c.MinDurationMinutes <= 0 || c.MaxDurationMinutes <= 0 {
		errs = append(errs, errors.New("MIN_DURATION_MINUTES and MAX_DURATION_MINUTES must be positive"))
	} else if c.MinDurationMinutes > c.MaxDurationMinutes {
		errs = append(errs, errors.New("MIN_DURATION_MINUTES must not exceed MAX_DURATION_MINUTES"))
	}
	if c.MinLeadTime < 0 {
		errs = append(errs, errors.New("MIN_LEAD_TIME must not be negative"))
	}
	if c.MaxAttendees < 1 {
		errs = append(errs, errors.New("MAX_ATTENDEES must be at least 1"))
	}
	if c.DefaultGranularityMinutes <= 0 {
		errs = append(errs, errors.New("DEFAULT_GRANULARITY_MINUTES must be positive"))
	}
	if c.MaxAvailabilityRange <= 0 {
		errs = append(errs, errors.New("MAX_AVAILABILITY_RANGE must be positive"))
	}
	if c.AgentLockTimeout <= 0 {
		errs = append(errs, errors.New("AGENT_LOCK_TIMEOUT must be positive"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}

	switch c.EventTransport {
	case TransportNone:
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("EVENT_TRANSPORT=kafka requires KAFKA_BROKERS"))
		}
	case TransportAMQP:
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("EVENT_TRANSPORT=amqp requires AMQP_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENT_TRANSPORT must be none, kafka or amqp (got %q)", c.EventTransport))
	}
	if c.EventTransport != TransportNone && c.EventTransport != "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("EVENT_TRANSPORT requires DATABASE_URL for the outbox"))
	}
	if c.AutoMigrate && c.DatabaseURL == "" {
		errs = append(errs, errors.New("AUTO_MIGRATE requires DATABASE_URL"))
	}
	return errors.Join(errs...)
}

func (c Config) DefaultGranularity() time.Duration {
	return time.Duration(c.DefaultGranularityMinutes) * time.Minute
}
