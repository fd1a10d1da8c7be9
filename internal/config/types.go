package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cronbot/internal/task/model"
)

// Executor and notifier kinds.
const (
	ExecutorNotify = "notify"
	ExecutorAgent  = "agent"

	NotifierLog      = "log"
	NotifierTelegram = "telegram"
)

// Config is the on-disk document (JSON or YAML). Durations are Go duration
// strings ("10s", "2m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Executor  ExecutorConfig  `json:"executor"`
	Notifier  NotifierConfig  `json:"notifier"`
	HTTP      HTTPConfig      `json:"http"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Notify  LoggingNotify `json:"notify"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingNotify forwards log lines at or above MinLevel to the notifier.
type LoggingNotify struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type SchedulerConfig struct {
	StorePath string `json:"store_path"`
	// Timezone for parsing, listings and new daily/cron jobs.
	Timezone string `json:"timezone"`
}

type ExecutorConfig struct {
	Kind    string       `json:"kind"`
	Timeout string       `json:"timeout"`
	OpenAI  OpenAIConfig `json:"openai"`
}

type OpenAIConfig struct {
	// APIKey falls back to $OPENAI_API_KEY.
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	MaxTokens    int    `json:"max_tokens"`
}

type NotifierConfig struct {
	Kind string `json:"kind"`
	// NotifyFailures sends a message when a job run fails.
	NotifyFailures bool           `json:"notify_failures"`
	RatePerSec     int            `json:"rate_per_sec"`
	RetryMax       int            `json:"retry_max"`
	RetryBase      string         `json:"retry_base"`
	DedupWindow    string         `json:"dedup_window"`
	Telegram       TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Metrics serves Prometheus metrics at /metrics.
	Metrics bool `json:"metrics"`
	// Pprof mounts /debug/pprof on the same listener.
	Pprof bool `json:"pprof"`
}

// DefaultAddr is where `serve` listens and the CLI connects by default.
const DefaultAddr = "127.0.0.1:8089"

// Default returns a config that runs with no file at all: log notifier,
// notify executor, HTTP on loopback.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Console: true},
		HTTP:    HTTPConfig{Enabled: true, Metrics: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Notify.MinLevel == "" {
		c.Logging.Notify.MinLevel = "warn"
	}
	if c.Scheduler.StorePath == "" {
		c.Scheduler.StorePath = "cron_jobs.json"
	}
	if strings.TrimSpace(c.Scheduler.Timezone) == "" {
		c.Scheduler.Timezone = model.DefaultTimezone
	}
	if c.Executor.Kind == "" {
		c.Executor.Kind = ExecutorNotify
	}
	if c.Executor.Timeout == "" {
		c.Executor.Timeout = "2m"
	}
	if c.Executor.OpenAI.Model == "" {
		c.Executor.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Executor.OpenAI.APIKey == "" {
		c.Executor.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Notifier.Kind == "" {
		c.Notifier.Kind = NotifierLog
	}
	if c.Notifier.RetryMax == 0 {
		c.Notifier.RetryMax = 2
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
}

// Validate reports every problem it finds, joined.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}
	if strings.TrimSpace(c.Scheduler.StorePath) == "" {
		errs = append(errs, errors.New("scheduler.store_path is required"))
	}
	if _, err := ParseDurationField("executor.timeout", c.Executor.Timeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.retry_base", c.Notifier.RetryBase); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.dedup_window", c.Notifier.DedupWindow); err != nil {
		errs = append(errs, err)
	}

	switch c.Executor.Kind {
	case ExecutorNotify:
	case ExecutorAgent:
		if strings.TrimSpace(c.Executor.OpenAI.APIKey) == "" && strings.TrimSpace(c.Executor.OpenAI.BaseURL) == "" {
			errs = append(errs, errors.New("executor.openai.api_key is required for the agent executor"))
		}
	default:
		errs = append(errs, fmt.Errorf("executor.kind: unknown %q (want notify or agent)", c.Executor.Kind))
	}

	switch c.Notifier.Kind {
	case NotifierLog:
	case NotifierTelegram:
		if strings.TrimSpace(c.Notifier.Telegram.Token) == "" {
			errs = append(errs, errors.New("notifier.telegram.token is required"))
		}
		if c.Notifier.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notifier.telegram.chat_id is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.kind: unknown %q (want log or telegram)", c.Notifier.Kind))
	}
	if c.Logging.Notify.Enabled && c.Notifier.Kind == NotifierLog {
		errs = append(errs, errors.New("logging.notify needs a chat notifier; notifier.kind log would feed back into the log"))
	}
	if c.Notifier.RetryMax < 0 {
		errs = append(errs, errors.New("notifier.retry_max must be >= 0"))
	}

	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required when http is enabled"))
	}
	return errors.Join(errs...)
}

// Location loads the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(strings.TrimSpace(c.Scheduler.Timezone))
}
