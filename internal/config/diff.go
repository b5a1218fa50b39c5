package config

import (
	"sort"
	"strings"

	logx "feedwatch/pkg/logx"
)

// SummarizeConfigChange returns (1) the changed sections, (2) safe attrs
// for logging (never secrets), and (3) the changed sections that only take
// effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	restart := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Feed != newCfg.Feed {
		changed = append(changed, "feed")
		restart = append(restart, "feed")
		attrs = append(attrs,
			logx.String("feed.base_url", strings.TrimSpace(newCfg.Feed.BaseURL)),
			logx.Int("feed.page_size", newCfg.Feed.PageSize),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.subreddit", strings.TrimSpace(newCfg.Poll.Subreddit)),
			logx.String("poll.filter_regex", strings.TrimSpace(newCfg.Poll.FilterRegex)),
			logx.String("poll.fetch_interval", strings.TrimSpace(newCfg.Poll.FetchInterval)),
			logx.String("poll.subreddit_fetch_interval", strings.TrimSpace(newCfg.Poll.SubredditFetchInterval)),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.send_interval", strings.TrimSpace(newCfg.Notify.SendInterval)),
			logx.Int("notify.max_per_batch", newCfg.Notify.MaxPerBatch),
			logx.Int("notify.min_per_batch", newCfg.Notify.MinPerBatch),
			logx.Bool("notify.target_set", strings.TrimSpace(newCfg.Notify.Target) != ""),
		)
		if transportChanged(oldCfg.Notify, newCfg.Notify) {
			restart = append(restart, "notify.transport")
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
			logx.Bool("debug.pprof", newCfg.Debug.PProf),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		restart = append(restart, "systemd")
	}

	sort.Strings(changed)
	return changed, attrs, restart
}

// transportChanged reports changes that need a new Sender: the target kind
// or any credential. Switching between two e-mail addresses applies live.
func transportChanged(a, b NotifyConfig) bool {
	if targetKind(a.Target) != targetKind(b.Target) {
		return true
	}
	return a.SMTPCredentials != b.SMTPCredentials ||
		a.From != b.From ||
		a.TelegramToken != b.TelegramToken ||
		a.TelegramAPIURL != b.TelegramAPIURL ||
		a.TelegramThreadID != b.TelegramThreadID ||
		a.TelegramRate != b.TelegramRate
}

func targetKind(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "telegram:"), strings.HasPrefix(s, "tg:"):
		return "telegram"
	default:
		return "email"
	}
}
