package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig                 `mapstructure:"server" validate:"required"`
	Auth        AuthConfig                   `mapstructure:"auth" validate:"required"`
	Cache       CacheConfig                  `mapstructure:"cache" validate:"required"`
	Pool        PoolConfig                   `mapstructure:"pool" validate:"required"`
	Login       LoginConfig                  `mapstructure:"login"`
	Metrics     MetricsConfig                `mapstructure:"metrics"`
	Regions     map[string]map[string]string `mapstructure:"regions"`
	RegionsFile string                       `mapstructure:"regions_file"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// AuthConfig contains token and signup settings.
type AuthConfig struct {
	// TokenSecret is the master secret per-role signing keys are derived from.
	TokenSecret   string        `mapstructure:"token_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"required,gt=0"`
	// RefreshGrace is how long after expiry a token may still be refreshed.
	RefreshGrace time.Duration `mapstructure:"refresh_grace" validate:"gte=0"`
	// ExposeConfirmCode adds testing_confirm_code to signup responses.
	// Never enable outside test deployments.
	ExposeConfirmCode bool `mapstructure:"expose_confirm_code"`
}

// CacheConfig selects the cache backend and the TTL policy of each key space.
type CacheConfig struct {
	Backend        string         `mapstructure:"backend" validate:"required,oneof=memory redis dynamodb postgres"`
	SessionTTL     time.Duration  `mapstructure:"session_ttl" validate:"gt=0"`
	SignupTTL      time.Duration  `mapstructure:"signup_ttl" validate:"gt=0"`
	PlaceholderTTL time.Duration  `mapstructure:"placeholder_ttl" validate:"gt=0"`
	PubkeyTTL      time.Duration  `mapstructure:"pubkey_ttl" validate:"gt=0"`
	TrackerTTL     time.Duration  `mapstructure:"tracker_ttl" validate:"gt=0"`
	PaymentTTL     time.Duration  `mapstructure:"payment_ttl" validate:"gt=0"`
	HandlingTTL    time.Duration  `mapstructure:"handling_ttl" validate:"gt=0"`
	Redis          RedisConfig    `mapstructure:"redis"`
	DynamoDB       DynamoDBConfig `mapstructure:"dynamodb"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db" validate:"gte=0"`
	PoolSize    int           `mapstructure:"pool_size" validate:"gte=0"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
}

// DynamoDBConfig configures the DynamoDB cache backend.
type DynamoDBConfig struct {
	Table          string        `mapstructure:"table"`
	Region         string        `mapstructure:"region"`
	Endpoint       string        `mapstructure:"endpoint"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
}

// PostgresConfig configures the Postgres cache backend.
type PostgresConfig struct {
	URL            string        `mapstructure:"url"`
	MaxOpenConns   int           `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
}

// PoolConfig configures the connection pool manager and outbound HTTP.
type PoolConfig struct {
	ProbeInterval   time.Duration `mapstructure:"probe_interval" validate:"gt=0"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	HTTPIdleTimeout time.Duration `mapstructure:"http_idle_timeout" validate:"gt=0"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the per-domain circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" validate:"gte=0"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" validate:"gte=0"`
}

// LoginConfig tunes the login flow.
type LoginConfig struct {
	PrefetchSize int `mapstructure:"prefetch_size" validate:"gte=0,lte=50"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
