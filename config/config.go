// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML file.
//
// Precedence, lowest first: built-in defaults, the YAML file named by
// BUDGET_CONFIG, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// SweepParser accepts standard 5-field cron expressions and descriptors
// such as @hourly.
var SweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	// HTTP Server
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`

	// Database
	DBPath string `yaml:"db_path"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Recompute
	RecomputeDebounce time.Duration `yaml:"recompute_debounce"`
	SweepSchedule     string        `yaml:"sweep_schedule"`

	// AMQP, disabled when the URL is empty
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`
}

func Default() *Config {
	return &Config{
		Port:              "8080",
		CORSOrigins:       []string{"*"},
		DBPath:            "./data/budget.db",
		LogLevel:          "info",
		LogFormat:         "text",
		RecomputeDebounce: 500 * time.Millisecond,
		SweepSchedule:     "0 3 * * *",
		AMQPExchange:      "budget",
		AMQPQueue:         "progress_events",
	}
}

// Load reads .env (if present), the YAML file named by BUDGET_CONFIG (if
// set) and the environment. It does not validate.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("BUDGET_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return c.overlayYAML(data)
}

func (c *Config) overlayYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.RecomputeDebounce = getEnvDuration("RECOMPUTE_DEBOUNCE", c.RecomputeDebounce)
	c.SweepSchedule = getEnv("SWEEP_SCHEDULE", c.SweepSchedule)
	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.CORSOrigins = splitList(origins)
	}
}

// Validate collects every problem into one error.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		problems = append(problems, "database path cannot be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if c.RecomputeDebounce < 0 {
		problems = append(problems, fmt.Sprintf("invalid recompute debounce %v: must not be negative", c.RecomputeDebounce))
	} else if c.RecomputeDebounce > time.Minute {
		problems = append(problems, fmt.Sprintf("invalid recompute debounce %v: must be at most 1 minute", c.RecomputeDebounce))
	}

	if c.SweepSchedule != "" {
		if _, err := SweepParser.Parse(c.SweepSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("invalid sweep schedule '%s': %v", c.SweepSchedule, err))
		}
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(problems) > 0 {
		return errors.New("configuration validation failed:\n- " + strings.Join(problems, "\n- "))
	}
	return nil
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
