package app

import (
	"fmt"
	"time"

	"cronbot/internal/config"
	"cronbot/internal/executor"
	"cronbot/internal/notifier"
	"cronbot/internal/task/scheduler"
	logx "cronbot/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Notify: logx.NotifyConfig{
			Enabled:    cfg.Logging.Notify.Enabled,
			MinLevel:   cfg.Logging.Notify.MinLevel,
			RatePerSec: cfg.Logging.Notify.RatePerSec,
		},
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		RetryMax:    cfg.Notifier.RetryMax,
		RetryBase:   config.DurationOrZero(cfg.Notifier.RetryBase),
		DedupWindow: config.DurationOrZero(cfg.Notifier.DedupWindow),
	}
}

func buildSender(cfg *config.Config, log logx.Logger) (notifier.Sender, error) {
	switch cfg.Notifier.Kind {
	case config.NotifierTelegram:
		tg, err := notifier.NewTelegram(notifier.TelegramConfig{
			Token:    cfg.Notifier.Telegram.Token,
			ChatID:   cfg.Notifier.Telegram.ChatID,
			ThreadID: cfg.Notifier.Telegram.ThreadID,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram notifier: %w", err)
		}
		return tg, nil
	case config.NotifierLog:
		return notifier.LogSender{Log: log}, nil
	default:
		return nil, fmt.Errorf("unknown notifier kind %q", cfg.Notifier.Kind)
	}
}

func buildExecutor(cfg *config.Config, n executor.Notifier, loc *time.Location, log logx.Logger) (scheduler.Executor, error) {
	var ex executor.Executor
	switch cfg.Executor.Kind {
	case config.ExecutorAgent:
		oa := cfg.Executor.OpenAI
		ex = executor.NewAgent(executor.AgentConfig{
			APIKey:       oa.APIKey,
			BaseURL:      oa.BaseURL,
			Model:        oa.Model,
			SystemPrompt: oa.SystemPrompt,
			MaxTokens:    oa.MaxTokens,
		}, n, loc, log)
	case config.ExecutorNotify:
		ex = executor.Notify{Notifier: n, Log: log}
	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Executor.Kind)
	}
	return executor.WithTimeout(ex, config.DurationOrZero(cfg.Executor.Timeout)), nil
}
