package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "GATEWAY"

// Families lists the backend service families that may carry region tables.
var Families = []string{"auth", "match", "search", "media", "payment"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.token_lifetime", 14*24*time.Hour)
	v.SetDefault("auth.refresh_grace", 10*time.Minute)
	v.SetDefault("auth.expose_confirm_code", false)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.session_ttl", 14*24*time.Hour)
	v.SetDefault("cache.signup_ttl", 300*time.Second)
	v.SetDefault("cache.placeholder_ttl", 30*time.Second)
	v.SetDefault("cache.pubkey_ttl", 30*24*time.Hour)
	v.SetDefault("cache.tracker_ttl", 24*time.Hour)
	v.SetDefault("cache.payment_ttl", 10*time.Minute)
	v.SetDefault("cache.handling_ttl", 7*24*time.Hour)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.pool_size", 20)
	v.SetDefault("cache.redis.dial_timeout", 3*time.Second)
	v.SetDefault("cache.dynamodb.table", "gateway_cache")
	v.SetDefault("cache.dynamodb.connect_timeout", 3*time.Second)
	v.SetDefault("cache.postgres.max_open_conns", 10)
	v.SetDefault("cache.postgres.connect_timeout", 3*time.Second)

	v.SetDefault("pool.probe_interval", 5*time.Second)
	v.SetDefault("pool.probe_timeout", 2*time.Second)
	v.SetDefault("pool.http_idle_timeout", 120*time.Second)
	v.SetDefault("pool.connect_timeout", 3*time.Second)
	v.SetDefault("pool.read_timeout", 15*time.Second)
	v.SetDefault("pool.max_retries", 2)
	v.SetDefault("pool.breaker.max_failures", 5)
	v.SetDefault("pool.breaker.open_timeout", 30*time.Second)

	v.SetDefault("login.prefetch_size", 3)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over the file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows, so secrets with
	// no default are bound explicitly.
	for _, key := range []string{
		"auth.token_secret",
		"cache.redis.password",
		"cache.dynamodb.region",
		"cache.dynamodb.endpoint",
		"cache.postgres.url",
		"regions_file",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	regions, err := regionsFromEnv(v)
	if err != nil {
		return nil, err
	}
	cfg.Regions = mergeRegions(cfg.Regions, regions)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// regionsFromEnv reads GATEWAY_REGIONS_<FAMILY>="jp=https://a,us=https://b".
func regionsFromEnv(v *viper.Viper) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, family := range Families {
		key := "regions_env." + family
		if err := v.BindEnv(key, EnvPrefix+"_REGIONS_"+strings.ToUpper(family)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			continue
		}
		table, err := ParseRegionTable(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid region table for %s: %w", family, err)
		}
		out[family] = table
	}
	return out, nil
}

// ParseRegionTable parses "code=url,code=url" into a lower-cased map.
func ParseRegionTable(raw string) (map[string]string, error) {
	table := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, url, ok := strings.Cut(pair, "=")
		code, url = strings.TrimSpace(code), strings.TrimSpace(url)
		if !ok || code == "" || url == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		table[strings.ToLower(code)] = url
	}
	return table, nil
}

func mergeRegions(base, override map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(base)+len(override))
	for family, table := range base {
		out[strings.ToLower(family)] = copyTable(table)
	}
	for family, table := range override {
		dst, ok := out[family]
		if !ok {
			dst = make(map[string]string, len(table))
			out[family] = dst
		}
		for code, url := range table {
			dst[code] = url
		}
	}
	return out
}

func copyTable(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for code, url := range in {
		out[strings.ToLower(code)] = url
	}
	return out
}

// Validate checks struct tags and the cross-field rules of the selected
// cache backend.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch c.Cache.Backend {
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("config validation failed: cache.redis.addr is required")
		}
	case "dynamodb":
		if c.Cache.DynamoDB.Table == "" || c.Cache.DynamoDB.Region == "" {
			return errors.New("config validation failed: cache.dynamodb.table and region are required")
		}
	case "postgres":
		if c.Cache.Postgres.URL == "" {
			return errors.New("config validation failed: cache.postgres.url is required")
		}
	}
	return nil
}
