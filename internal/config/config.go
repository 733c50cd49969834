package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Session  SessionConfig
	Queue    QueueConfig
	Prompts  PromptsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BackendConfig points at the Python generation API that owns auth tokens
// and runs the article workflows.
type BackendConfig struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
}

type SessionConfig struct {
	CookieName     string
	TTL            time.Duration
	VerifyInterval time.Duration
	Secure         bool
}

type QueueConfig struct {
	Concurrency int
}

type PromptsConfig struct {
	WorkflowsFile string // optional YAML; built-in definitions when empty
	CacheTTL      time.Duration
	AuditLimit    int
}

var defaults = map[string]any{
	"SERVER_HOST":            "0.0.0.0",
	"SERVER_PORT":            8080,
	"CORS_ALLOWED_ORIGINS":   "*",
	"RATE_LIMIT_RPS":         20,
	"RATE_LIMIT_BURST":       40,
	"DATABASE_URL":           "",
	"DB_MAX_CONNS":           20,
	"DB_MIN_CONNS":           2,
	"REDIS_ADDR":             "localhost:6379",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"PYTHON_API_URL":         "http://localhost:5001",
	"PYTHON_API_TIMEOUT":     "300s",
	"PYTHON_API_MAX_RETRIES": 3,
	"SESSION_COOKIE_NAME":    "articlegen_session",
	"SESSION_TTL":            "24h",
	"SESSION_VERIFY_EVERY":   "5m",
	"SESSION_COOKIE_SECURE":  false,
	"QUEUE_CONCURRENCY":      10,
	"WORKFLOWS_FILE":         "",
	"PROMPT_CACHE_TTL":       "10m",
	"PROMPT_AUDIT_LIMIT":     50,
}

// Load reads configuration from the environment, optionally layered over a
// config file (.env, YAML or anything else viper understands).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if strings.HasSuffix(configFile, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file %s: %w", configFile, err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt("DB_MAX_CONNS"),
			MinConns: v.GetInt("DB_MIN_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Backend: BackendConfig{
			URL:        strings.TrimRight(v.GetString("PYTHON_API_URL"), "/"),
			Timeout:    v.GetDuration("PYTHON_API_TIMEOUT"),
			MaxRetries: v.GetInt("PYTHON_API_MAX_RETRIES"),
		},
		Session: SessionConfig{
			CookieName:     v.GetString("SESSION_COOKIE_NAME"),
			TTL:            v.GetDuration("SESSION_TTL"),
			VerifyInterval: v.GetDuration("SESSION_VERIFY_EVERY"),
			Secure:         v.GetBool("SESSION_COOKIE_SECURE"),
		},
		Queue: QueueConfig{
			Concurrency: v.GetInt("QUEUE_CONCURRENCY"),
		},
		Prompts: PromptsConfig{
			WorkflowsFile: v.GetString("WORKFLOWS_FILE"),
			CacheTTL:      v.GetDuration("PROMPT_CACHE_TTL"),
			AuditLimit:    v.GetInt("PROMPT_AUDIT_LIMIT"),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid SERVER_PORT: %d", cfg.Server.Port)
	}
	if cfg.Database.MaxConns < cfg.Database.MinConns {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %d is below DB_MIN_CONNS %d", cfg.Database.MaxConns, cfg.Database.MinConns)
	}
	if cfg.Session.TTL <= 0 {
		return nil, fmt.Errorf("invalid SESSION_TTL: %s", cfg.Session.TTL)
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Backend.URL == "" {
		missing = append(missing, "PYTHON_API_URL")
	}
	if c.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
