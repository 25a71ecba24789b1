package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queues      QueuesConfig    `toml:"queues"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	LLM         LLMConfig       `toml:"llm"`
	Delivery    DeliveryConfig  `toml:"delivery"`
	Reports     ReportsConfig   `toml:"reports"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// QueueConfig describes one named durable queue and its worker pool
type QueueConfig struct {
	Name              string `toml:"name"`               // Queue name prefix in Badger
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - message lease duration before redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before it is dropped
}

// QueuesConfig holds per-queue settings. The report queue is capped low
// because each report job holds a worker slot through many sequential
// text-generation calls; the delivery queue is cheap per job and runs wider.
type QueuesConfig struct {
	Report   QueueConfig `toml:"report"`
	Delivery QueueConfig `toml:"delivery"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`       // Model for text generation (default: "claude-sonnet-4-20250514")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Per-call timeout as duration string (default: "2m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for text generation (default: "gemini-2.5-flash")
	Timeout     string  `toml:"timeout"`     // Per-call timeout as duration string (default: "2m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the text-generation provider
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "claude" or "gemini" (default: "claude")
}

// DeliveryConfig controls how delivery jobs are scheduled and sent
type DeliveryConfig struct {
	Delay     string `toml:"delay"`      // Visibility delay before a scheduled email becomes leasable (default: "5m")
	FromEmail string `toml:"from_email"` // Default sender address when job payload omits one
	FromName  string `toml:"from_name"`  // Default sender display name
	SendLimit string `toml:"send_limit"` // Per-send timeout as duration string (default: "1m")
}

// ReportsConfig controls pipeline behavior
type ReportsConfig struct {
	StageTimeout string `toml:"stage_timeout"` // Deadline wrapped around each external call (default: "3m")
}

// WebSocketConfig contains configuration for the event stream gateway
type WebSocketConfig struct {
	WriteRate    string `toml:"write_rate"`    // Minimum interval between pushes per connection (default: "100ms")
	PingInterval string `toml:"ping_interval"` // Keepalive ping interval (default: "30s")
}

// SchedulerConfig controls background maintenance sweeps
type SchedulerConfig struct {
	StaleSweepSchedule    string `toml:"stale_sweep_schedule"`   // Cron schedule for stale report detection
	RetentionSchedule     string `toml:"retention_schedule"`     // Cron schedule for notification retention purge
	NotificationRetention string `toml:"notification_retention"` // Max age of persisted notifications (default: "720h")
	StaleReportAge        string `toml:"stale_report_age"`       // Age after which an unfinished report is marked failed
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in valora.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queues: QueuesConfig{
			Report: QueueConfig{
				Name:              "valora_reports",
				PollInterval:      "1s",
				Concurrency:       2,
				VisibilityTimeout: "15m",
				MaxReceive:        3,
			},
			Delivery: QueueConfig{
				Name:              "valora_delivery",
				PollInterval:      "1s",
				Concurrency:       10,
				VisibilityTimeout: "5m",
				MaxReceive:        3,
			},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "2m",
			Temperature: 0.7,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.5-flash",
			Timeout:     "2m",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Delivery: DeliveryConfig{
			Delay:     "5m",
			FromEmail: "reports@valora.local",
			FromName:  "Valora Reports",
			SendLimit: "1m",
		},
		Reports: ReportsConfig{
			StageTimeout: "3m",
		},
		WebSocket: WebSocketConfig{
			WriteRate:    "100ms",
			PingInterval: "30s",
		},
		Scheduler: SchedulerConfig{
			StaleSweepSchedule:    "*/5 * * * *",
			RetentionSchedule:     "0 3 * * *",
			NotificationRetention: "720h",
			StaleReportAge:        "30m",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VALORA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("VALORA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VALORA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("VALORA_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("VALORA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VALORA_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("VALORA_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if provider := os.Getenv("VALORA_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	if delay := os.Getenv("VALORA_DELIVERY_DELAY"); delay != "" {
		config.Delivery.Delay = delay
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDurationOr parses a duration string falling back to a default when
// the string is empty or malformed. Config durations are advisory; a bad
// value should not take the process down.
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
