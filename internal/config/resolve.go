package config

import (
	"fmt"
	"strings"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/feed"
	"feedwatch/internal/notifier"
	"feedwatch/internal/observability/debug"
	"feedwatch/internal/retention"
	"feedwatch/internal/settings"
	"feedwatch/internal/storage"
	"feedwatch/internal/transport/telegram"
	logx "feedwatch/pkg/logx"
)

// Resolved is a validated Config converted to component configs.
type Resolved struct {
	Feed     feed.Config
	PageSize int

	// Settings is the live-reloadable part; already normalized.
	Settings settings.Snapshot

	Notify NotifyRuntime

	Logging   logx.Config
	Storage   storage.Config
	Retention retention.Config
	Debug     debug.Config

	SystemdNotify bool
}

type NotifyRuntime struct {
	Target          notifier.Target
	Tick            time.Duration
	HistorySize     int
	SMTPCredentials string
	From            string
	Telegram        telegram.Config
}

// Resolve validates cfg. Every error wraps domain.ErrConfiguration.
func Resolve(cfg *Config) (*Resolved, error) {
	if cfg == nil {
		cfg = Default()
	}
	r := &Resolved{}
	var err error

	// feed
	r.Feed = feed.Config{
		BaseURL:   strings.TrimSpace(cfg.Feed.BaseURL),
		UserAgent: strings.TrimSpace(cfg.Feed.UserAgent),
	}
	if r.Feed.Timeout, err = ParseDurationOrDefault("feed.timeout", cfg.Feed.Timeout, feed.DefaultTimeout); err != nil {
		return nil, err
	}
	r.PageSize = cfg.Feed.PageSize
	if r.PageSize == 0 {
		r.PageSize = feed.MaxPageSize
	}
	if err := feed.ValidatePageSize(r.PageSize); err != nil {
		return nil, fmt.Errorf("feed.page_size: %w", err)
	}
	if _, err := feed.New(r.Feed); err != nil {
		return nil, fmt.Errorf("feed.base_url: %w", err)
	}

	// settings
	snap := settings.Snapshot{
		Filters: settings.Filters{Scope: cfg.Poll.Subreddit, TitlePattern: cfg.Poll.FilterRegex},
		Target:  cfg.Notify.Target,
	}
	if snap.Intervals.Unscoped, err = ParseDurationField("poll.fetch_interval", cfg.Poll.FetchInterval); err != nil {
		return nil, err
	}
	if snap.Intervals.Scoped, err = ParseDurationField("poll.subreddit_fetch_interval", cfg.Poll.SubredditFetchInterval); err != nil {
		return nil, err
	}
	if snap.Batch.SendInterval, err = ParseDurationField("notify.send_interval", cfg.Notify.SendInterval); err != nil {
		return nil, err
	}
	if cfg.Notify.MaxPerBatch < 0 {
		return nil, fmt.Errorf("notify.max_per_batch must be >= 0: %w", domain.ErrConfiguration)
	}
	snap.Batch.MaxItems = cfg.Notify.MaxPerBatch
	snap.Batch.MinItems = cfg.Notify.MinPerBatch
	st, err := settings.New(snap)
	if err != nil {
		return nil, err
	}
	r.Settings = st.Snapshot()

	// notify
	if r.Notify.Target, err = notifier.ParseTarget(cfg.Notify.Target); err != nil {
		return nil, err
	}
	if r.Notify.Tick, err = ParseDurationField("notify.tick", cfg.Notify.Tick); err != nil {
		return nil, err
	}
	r.Notify.HistorySize = max(cfg.Notify.HistorySize, 0)
	r.Notify.SMTPCredentials = strings.TrimSpace(cfg.Notify.SMTPCredentials)
	r.Notify.From = strings.TrimSpace(cfg.Notify.From)
	r.Notify.Telegram = telegram.Config{
		Token:    strings.TrimSpace(cfg.Notify.TelegramToken),
		APIURL:   strings.TrimSpace(cfg.Notify.TelegramAPIURL),
		ThreadID: cfg.Notify.TelegramThreadID,
		Rate:     cfg.Notify.TelegramRate,
	}
	if r.Notify.Target.Kind == notifier.KindTelegram && r.Notify.Telegram.Token == "" {
		return nil, fmt.Errorf("notify.telegram_token is required for telegram targets: %w", domain.ErrConfiguration)
	}

	// logging
	r.Logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}

	// storage
	r.Storage = storage.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:   strings.TrimSpace(cfg.Storage.Path),
		DSN:    strings.TrimSpace(cfg.Storage.DSN),
	}
	if r.Storage.BusyTimeout, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return nil, err
	}
	switch r.Storage.Driver {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if r.Storage.Path == "" {
			return nil, fmt.Errorf("storage.path is required for driver %q: %w", r.Storage.Driver, domain.ErrConfiguration)
		}
	case "postgres", "postgresql", "pgx":
		if r.Storage.DSN == "" {
			return nil, fmt.Errorf("storage.dsn is required for driver %q: %w", r.Storage.Driver, domain.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("storage.driver %q unknown: %w", r.Storage.Driver, domain.ErrConfiguration)
	}
	r.Retention.Schedule = strings.TrimSpace(cfg.Storage.PruneSchedule)
	if _, err := retention.ParseSchedule(r.Retention.Schedule); err != nil {
		return nil, err
	}
	if r.Retention.Retention, err = ParseDurationField("storage.retention", cfg.Storage.Retention); err != nil {
		return nil, err
	}

	// debug
	r.Debug = debug.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          strings.TrimSpace(cfg.Debug.Addr),
		Token:         strings.TrimSpace(cfg.Debug.Token),
		AllowInsecure: cfg.Debug.AllowInsecure,
		PProf:         cfg.Debug.PProf,
	}
	if r.Debug.ReadTimeout, err = ParseDurationField("debug.read_timeout", cfg.Debug.ReadTimeout); err != nil {
		return nil, err
	}
	if r.Debug.WriteTimeout, err = ParseDurationField("debug.write_timeout", cfg.Debug.WriteTimeout); err != nil {
		return nil, err
	}
	if r.Debug.IdleTimeout, err = ParseDurationField("debug.idle_timeout", cfg.Debug.IdleTimeout); err != nil {
		return nil, err
	}

	r.SystemdNotify = cfg.Systemd.Notify
	return r, nil
}
