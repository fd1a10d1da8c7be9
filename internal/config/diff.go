package config

import (
	"strings"

	logx "cronbot/pkg/logx"
)

// SummarizeChange lists the sections that differ and safe log fields for
// them. Secrets (tokens, API keys) are reported only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.notify", newCfg.Logging.Notify.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.store_path", newCfg.Scheduler.StorePath),
		)
	}

	oe, ne := oldCfg.Executor, newCfg.Executor
	if oe != ne {
		changed = append(changed, "executor")
		fields = append(fields,
			logx.String("executor.kind", ne.Kind),
			logx.String("executor.timeout", ne.Timeout),
			logx.String("executor.openai.model", ne.OpenAI.Model),
			logx.Bool("executor.openai.api_key_set", strings.TrimSpace(ne.OpenAI.APIKey) != ""),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		fields = append(fields,
			logx.String("notifier.kind", newCfg.Notifier.Kind),
			logx.Bool("notifier.notify_failures", newCfg.Notifier.NotifyFailures),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(newCfg.Notifier.Telegram.Token) != ""),
		)
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		fields = append(fields,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.metrics", newCfg.HTTP.Metrics),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}
	return changed, fields
}

// RestartRequired reports changed sections that only take effect after a
// restart. Logging and the scheduler timezone are applied live.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Scheduler.StorePath != newCfg.Scheduler.StorePath {
		out = append(out, "scheduler.store_path")
	}
	if oldCfg.Executor != newCfg.Executor {
		out = append(out, "executor")
	}
	if oldCfg.Notifier != newCfg.Notifier {
		out = append(out, "notifier")
	}
	if oldCfg.HTTP != newCfg.HTTP {
		out = append(out, "http")
	}
	return out
}
