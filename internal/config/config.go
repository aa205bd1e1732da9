package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Presence PresenceConfig `mapstructure:"presence"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Events   EventsConfig   `mapstructure:"events"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	NSQ      NSQConfig      `mapstructure:"nsq"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	NewRelic NewRelicConfig `mapstructure:"newrelic"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or pgx; nrpostgres is chosen when New Relic is on
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the key/value connection string understood by every driver.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// StoreConfig selects the ride store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // postgres or memory
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// PresenceConfig selects the driver presence backend.
type PresenceConfig struct {
	Driver string `mapstructure:"driver"` // redis or memory
}

// DispatchConfig holds matching and offer tunables.
type DispatchConfig struct {
	OfferTTL           time.Duration `mapstructure:"offer_ttl"`
	FreshnessWindow    time.Duration `mapstructure:"freshness_window"`
	MaxCandidates      int           `mapstructure:"max_candidates"`
	SearchRadiusKm     float64       `mapstructure:"search_radius_km"`
	CellPrecision      uint          `mapstructure:"cell_precision"`
	JanitorInterval    time.Duration `mapstructure:"janitor_interval"`
	JanitorBatchSize   int           `mapstructure:"janitor_batch_size"`
	SchedulerInterval  time.Duration `mapstructure:"scheduler_interval"`
	SchedulerBatchSize int           `mapstructure:"scheduler_batch_size"`
	LeaseTTL           time.Duration `mapstructure:"lease_ttl"`
}

// EventsConfig lists the sinks committed ride events are published to.
type EventsConfig struct {
	Sinks []string `mapstructure:"sinks"` // any of log, kafka, nsq, websocket
}

// KafkaConfig holds the ride event topic settings.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NSQConfig holds the ride event topic settings.
type NSQConfig struct {
	Address string `mapstructure:"address"`
	Topic   string `mapstructure:"topic"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
	Enabled    bool   `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "ride_dispatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("store.driver", "postgres")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("presence.driver", "redis")

	v.SetDefault("dispatch.offer_ttl", 90*time.Second)
	v.SetDefault("dispatch.freshness_window", 2*time.Minute)
	v.SetDefault("dispatch.max_candidates", 5)
	v.SetDefault("dispatch.search_radius_km", 0.0)
	v.SetDefault("dispatch.cell_precision", 6)
	v.SetDefault("dispatch.janitor_interval", 15*time.Second)
	v.SetDefault("dispatch.janitor_batch_size", 500)
	v.SetDefault("dispatch.scheduler_interval", 30*time.Second)
	v.SetDefault("dispatch.scheduler_batch_size", 100)
	v.SetDefault("dispatch.lease_ttl", 0)

	v.SetDefault("events.sinks", []string{"log", "websocket"})

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "ride-events")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("nsq.address", "localhost:4150")
	v.SetDefault("nsq.topic", "ride-events")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "ride-dispatch")
	v.SetDefault("auth.ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")

	v.SetDefault("newrelic.app_name", "ride-dispatch-service")
	v.SetDefault("newrelic.license_key", "")
	v.SetDefault("newrelic.enabled", false)
}

// Load reads configuration from defaults, an optional file named by
// CONFIG_FILE, and environment variables such as DISPATCH_OFFER_TTL.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Lists may come from the environment as "a, b".
	cfg.Events.Sinks = splitList(cfg.Events.Sinks)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Dispatch.OfferTTL <= 0 {
		errs = append(errs, errors.New("dispatch.offer_ttl must be positive"))
	}
	if c.Dispatch.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("dispatch.freshness_window must be positive"))
	}
	if c.Dispatch.MaxCandidates <= 0 {
		errs = append(errs, errors.New("dispatch.max_candidates must be positive"))
	}
	if c.Dispatch.SearchRadiusKm < 0 {
		errs = append(errs, errors.New("dispatch.search_radius_km must not be negative"))
	}
	if c.Dispatch.CellPrecision > 12 {
		errs = append(errs, errors.New("dispatch.cell_precision must be at most 12"))
	}

	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of postgres, memory", c.Store.Driver))
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of postgres, pgx", c.Database.Driver))
	}
	switch c.Presence.Driver {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("presence.driver redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("presence.driver %q is not one of redis, memory", c.Presence.Driver))
	}

	for _, sink := range c.Events.Sinks {
		switch sink {
		case "log", "websocket":
		case "kafka":
			if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
				errs = append(errs, errors.New("events sink kafka requires kafka.brokers and kafka.topic"))
			}
		case "nsq":
			if c.NSQ.Address == "" || c.NSQ.Topic == "" {
				errs = append(errs, errors.New("events sink nsq requires nsq.address and nsq.topic"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown events sink %q", sink))
		}
	}

	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}

	return errors.Join(errs...)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}
