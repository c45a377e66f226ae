// Package config loads the pipeline's configuration from the environment
// (plus an optional config.yaml) via viper, grounded on
// backend/internal/config/config.go's Load/setDefaults/overrideWithEnv
// shape, trimmed to the knobs spec §6 actually names.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting a cmd/ entrypoint needs to wire its services.
type Config struct {
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Tournament  TournamentConfig  `mapstructure:"tournament"`
	Download    DownloadConfig    `mapstructure:"download"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Environment string            `mapstructure:"environment"`
	Shard       string            `mapstructure:"shard"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       string `mapstructure:"db"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type BrokerConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Enabled bool   `mapstructure:"enabled"`
}

// CredentialsConfig carries the comma-separated key pools spec §6 names:
// API_KEYS_MAIN and API_KEYS_TOURNAMENT.
type CredentialsConfig struct {
	MainKeys       []string `mapstructure:"main_keys"`
	TournamentKeys []string `mapstructure:"tournament_keys"`
	RPMLimit       int      `mapstructure:"rpm_limit"`
}

// DiscoveryConfig configures the main discovery service (spec §4.5).
type DiscoveryConfig struct {
	SampleSize int           `mapstructure:"sample_size"`
	Interval   time.Duration `mapstructure:"interval"`
	MatchType  []string      `mapstructure:"match_type"`
}

// TournamentConfig configures the tournament discovery service (spec
// §4.6): scheduling window, adaptive sampling, backfill.
type TournamentConfig struct {
	SampleSize       int           `mapstructure:"sample_size"`
	Interval         time.Duration `mapstructure:"interval"`
	ScheduleEnabled  bool          `mapstructure:"schedule_enabled"`
	ScheduleDays     []int         `mapstructure:"schedule_days"` // 0=Mon..6=Sun
	ScheduleStart    string        `mapstructure:"schedule_start"`
	ScheduleEnd      string        `mapstructure:"schedule_end"`
	AdaptiveSampling bool          `mapstructure:"adaptive_sampling"`
}

type DownloadConfig struct {
	StorageRoot string        `mapstructure:"storage_root"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// AggregationConfig configures the stats aggregation worker (spec §4.11).
type AggregationConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`
	AggregationInterval time.Duration `mapstructure:"aggregation_interval"`
	BackfillWindow      int           `mapstructure:"backfill_window"` // days
}

// recognizedKeys is the fixed allow-list spec §6 ends on: "Unrecognized
// options fail fast at start." Every mapstructure tag above, dotted by
// section, must appear here.
var recognizedKeys = map[string]bool{
	"postgres.host": true, "postgres.port": true, "postgres.db": true,
	"postgres.user": true, "postgres.password": true, "postgres.ssl_mode": true,
	"broker.url": true,
	"redis.host": true, "redis.port": true, "redis.enabled": true,
	"credentials.main_keys": true, "credentials.tournament_keys": true, "credentials.rpm_limit": true,
	"discovery.sample_size": true, "discovery.interval": true, "discovery.match_type": true,
	"tournament.sample_size": true, "tournament.interval": true,
	"tournament.schedule_enabled": true, "tournament.schedule_days": true,
	"tournament.schedule_start": true, "tournament.schedule_end": true,
	"tournament.adaptive_sampling": true,
	"download.storage_root":        true, "download.timeout": true, "download.max_retries": true,
	"aggregation.batch_size": true, "aggregation.aggregation_interval": true,
	"aggregation.backfill_window": true,
	"environment":                 true,
	"shard":                       true,
}

// Load reads configuration from config.yaml (optional) and the
// environment, validates every set key against recognizedKeys so a typo'd
// option fails fast rather than silently taking a default, and returns the
// populated Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		log.Println("⚠️  no config.yaml found, using defaults and environment variables")
	}

	if err := validateKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	overrideWithEnv(v, &cfg)

	return &cfg, nil
}

func validateKeys(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if !recognizedKeys[key] {
			return fmt.Errorf("unrecognized configuration option %q", key)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.db", "pewstats")
	v.SetDefault("postgres.user", "pewstats")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("broker.url", "nats://localhost:4222")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.enabled", false)

	v.SetDefault("credentials.rpm_limit", 10)

	v.SetDefault("discovery.sample_size", 500)
	v.SetDefault("discovery.interval", "10m")
	v.SetDefault("discovery.match_type", []string{"official"})

	v.SetDefault("tournament.sample_size", 6)
	v.SetDefault("tournament.interval", "60s")
	v.SetDefault("tournament.schedule_enabled", false)
	v.SetDefault("tournament.schedule_start", "00:00")
	v.SetDefault("tournament.schedule_end", "23:59")
	v.SetDefault("tournament.adaptive_sampling", true)

	v.SetDefault("download.storage_root", "./data/telemetry")
	v.SetDefault("download.timeout", "120s")
	v.SetDefault("download.max_retries", 3)

	v.SetDefault("aggregation.batch_size", 100)
	v.SetDefault("aggregation.aggregation_interval", "30s")
	v.SetDefault("aggregation.backfill_window", 180)

	v.SetDefault("environment", "development")
	v.SetDefault("shard", "steam")
}

// overrideWithEnv lets the bare, un-prefixed env vars spec §6 names
// (POSTGRES_HOST, API_KEYS_MAIN, ...) take priority over viper's
// automatic PREFIX_NESTED_KEY lookup, since those are the literal names
// ops tooling already sets.
func overrideWithEnv(vp *viper.Viper, cfg *Config) {
	getEnv := func(key string) (string, bool) {
		if val := vp.GetString(key); val != "" {
			return val, true
		}
		return "", false
	}

	if val, ok := getEnv("POSTGRES_HOST"); ok {
		cfg.Postgres.Host = val
	}
	if val, ok := getEnv("POSTGRES_DB"); ok {
		cfg.Postgres.DB = val
	}
	if val, ok := getEnv("POSTGRES_USER"); ok {
		cfg.Postgres.User = val
	}
	if val, ok := getEnv("POSTGRES_PASSWORD"); ok {
		cfg.Postgres.Password = val
	}
	if val, ok := getEnv("API_KEYS_MAIN"); ok {
		cfg.Credentials.MainKeys = splitCSV(val)
	}
	if val, ok := getEnv("API_KEYS_TOURNAMENT"); ok {
		cfg.Credentials.TournamentKeys = splitCSV(val)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
