package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the UI process
type Config struct {
	Environment string           `yaml:"environment"`
	LogLevel    string           `yaml:"log_level"`
	HTTP        HTTPConfig       `yaml:"http"`
	Ranking     RankingConfig    `yaml:"ranking"`
	Form        FormConfig       `yaml:"form"`
	Session     SessionConfig    `yaml:"session"`
	Redis       RedisConfig      `yaml:"redis"`
	Audit       AuditConfig      `yaml:"audit"`
	NATS        NATSConfig       `yaml:"nats"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Authentik   AuthentikConfig  `yaml:"authentik"`
	S3          S3Config         `yaml:"s3"`
}

// HTTPConfig holds listener settings
type HTTPConfig struct {
	Port     string `yaml:"port"`
	GRPCPort string `yaml:"grpc_port"`
}

// RankingConfig points at the ranking service
type RankingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	GamesLimit int           `yaml:"games_limit"`
}

// FormConfig bounds the seat-count selector of the game form
type FormConfig struct {
	SeatsMin     int `yaml:"seats_min"`
	SeatsMax     int `yaml:"seats_max"`
	SeatsDefault int `yaml:"seats_default"`
}

// SessionConfig configures operator sessions
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	Store  string        `yaml:"store"` // memory|redis
	TTL    time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
}

// AuditConfig selects the audit store driver
type AuditConfig struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLiteFile  string `yaml:"sqlite_file"`
	DatabaseURL string `yaml:"database_url"`
}

// NATSConfig holds event bus settings
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the audit export sink settings. Empty Addr disables it.
type ClickHouseConfig struct {
	Addr     string        `yaml:"addr"`
	Database string        `yaml:"database"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Interval time.Duration `yaml:"interval"`
}

// AuthentikConfig enables the OIDC gate in front of /admin when BaseURL is set
type AuthentikConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// S3Config holds the export bucket settings
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	AccessSecret string `yaml:"access_secret"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		HTTP:        HTTPConfig{Port: "3000", GRPCPort: "50051"},
		Ranking: RankingConfig{
			BaseURL:    "http://localhost:5000",
			Timeout:    10 * time.Second,
			GamesLimit: 10,
		},
		Form:    FormConfig{SeatsMin: 2, SeatsMax: 4, SeatsDefault: 4},
		Session: SessionConfig{Store: "memory", TTL: 24 * time.Hour},
		Redis:   RedisConfig{Host: "localhost", Port: "6379"},
		Audit:   AuditConfig{Driver: "memory", SQLiteFile: "audit.sqlite"},
		NATS:    NATSConfig{URL: "nats://localhost:4222", Subject: "ranking.events"},
		ClickHouse: ClickHouseConfig{
			Database: "default",
			Username: "default",
			Interval: 5 * time.Minute,
		},
		S3: S3Config{Region: "us-east-1"},
	}
}

// IsDevelopment reports whether embedded/mock collaborators should be used
func (c *Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Load reads the YAML file if present, then applies environment overrides.
// A .env file is honoured outside docker and production.
func Load(filename string) (*Config, error) {
	if env := os.Getenv("ENVIRONMENT"); env != "docker" && env != "production" {
		// missing .env is fine
		_ = godotenv.Load()
	}

	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Ranking.BaseURL == "" {
		return errors.New("ranking base URL is required")
	}
	if c.Form.SeatsMin < 1 || c.Form.SeatsMax < c.Form.SeatsMin {
		return fmt.Errorf("invalid seat range %d-%d", c.Form.SeatsMin, c.Form.SeatsMax)
	}
	if c.Form.SeatsDefault < c.Form.SeatsMin || c.Form.SeatsDefault > c.Form.SeatsMax {
		return fmt.Errorf("default seat count %d outside %d-%d", c.Form.SeatsDefault, c.Form.SeatsMin, c.Form.SeatsMax)
	}
	if !c.IsDevelopment() && c.Session.Secret == "" {
		return errors.New("SESSION_SECRET is required outside development")
	}
	switch c.Audit.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Audit.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres audit driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (valid: memory, sqlite, postgres)", c.Audit.Driver)
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown SESSION_STORE %q (valid: memory, redis)", c.Session.Store)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("ENVIRONMENT", &cfg.Environment)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("PORT", &cfg.HTTP.Port)
	str("GRPC_PORT", &cfg.HTTP.GRPCPort)
	str("RANKING_BASE_URL", &cfg.Ranking.BaseURL)
	str("SESSION_SECRET", &cfg.Session.Secret)
	str("SESSION_STORE", &cfg.Session.Store)
	str("REDIS_HOST", &cfg.Redis.Host)
	str("REDIS_PORT", &cfg.Redis.Port)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("DB_DRIVER", &cfg.Audit.Driver)
	str("SQLITE_FILE", &cfg.Audit.SQLiteFile)
	str("DATABASE_URL", &cfg.Audit.DatabaseURL)
	str("NATS_URL", &cfg.NATS.URL)
	str("NATS_SUBJECT", &cfg.NATS.Subject)
	str("CLICKHOUSE_ADDR", &cfg.ClickHouse.Addr)
	str("CLICKHOUSE_DB", &cfg.ClickHouse.Database)
	str("CLICKHOUSE_USER", &cfg.ClickHouse.Username)
	str("CLICKHOUSE_PASSWORD", &cfg.ClickHouse.Password)
	str("AUTHENTIK_BASE_URL", &cfg.Authentik.BaseURL)
	str("AUTHENTIK_CLIENT_ID", &cfg.Authentik.ClientID)
	str("AUTHENTIK_CLIENT_SECRET", &cfg.Authentik.ClientSecret)
	str("AUTHENTIK_REDIRECT_URL", &cfg.Authentik.RedirectURL)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("S3_REGION", &cfg.S3.Region)
	str("S3_BUCKET", &cfg.S3.Bucket)
	str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("S3_ACCESS_SECRET", &cfg.S3.AccessSecret)

	cfg.Ranking.BaseURL = strings.TrimRight(cfg.Ranking.BaseURL, "/")

	durations := map[string]*time.Duration{
		"RANKING_TIMEOUT":     &cfg.Ranking.Timeout,
		"SESSION_TTL":         &cfg.Session.TTL,
		"CLICKHOUSE_INTERVAL": &cfg.ClickHouse.Interval,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"GAMES_LIMIT":   &cfg.Ranking.GamesLimit,
		"SEATS_MIN":     &cfg.Form.SeatsMin,
		"SEATS_MAX":     &cfg.Form.SeatsMax,
		"SEATS_DEFAULT": &cfg.Form.SeatsDefault,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}
