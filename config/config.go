package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Telegram bot transport
	Telegram TelegramConfig `mapstructure:"telegram"`

	// Membership gate
	Gate GateConfig `mapstructure:"gate"`

	// Broadcast dispatcher
	Broadcast BroadcastConfig `mapstructure:"broadcast"`

	// HTTP server
	Server ServerConfig `mapstructure:"server"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

type TelegramConfig struct {
	// Token is the bot token; it also acts as the webhook path secret.
	Token string `mapstructure:"token"`
	// PublicBaseURL is where the web redemption endpoint is reachable
	// from outside, e.g. https://gatelink.example.org.
	PublicBaseURL string `mapstructure:"public_base_url"`
	// AdminIDs may broadcast and manage required channels.
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

type GateConfig struct {
	// QueryTimeout bounds each external membership query.
	QueryTimeout string `mapstructure:"query_timeout"`
	// InviteTTL is the freshness window for cached invite links.
	InviteTTL string `mapstructure:"invite_ttl"`
}

type BroadcastConfig struct {
	// SendDelay is the fixed pause between recipient deliveries.
	SendDelay string `mapstructure:"send_delay"`
	// ConfirmTTL bounds how long a proposed broadcast stays confirmable.
	ConfirmTTL string `mapstructure:"confirm_ttl"`
	// Secret signs broadcast confirm tokens.
	Secret string `mapstructure:"secret"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("gate.query_timeout", "5s")
	v.SetDefault("gate.invite_ttl", "24h")
	v.SetDefault("broadcast.send_delay", "50ms")
	v.SetDefault("broadcast.confirm_ttl", "5m")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token is not configured")
	}
	if cfg.Broadcast.Secret == "" {
		// Without a dedicated secret the bot token still gives broadcast
		// confirm tokens real entropy.
		cfg.Broadcast.Secret = cfg.Telegram.Token
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Telegram
	v.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	v.BindEnv("telegram.public_base_url", "PUBLIC_BASE_URL")

	// Broadcast
	v.BindEnv("broadcast.secret", "BROADCAST_SECRET")
}
