package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "10m").
// Omitted fields keep the values from Default().
type Config struct {
	Feed    FeedConfig    `json:"feed"`
	Poll    PollConfig    `json:"poll"`
	Notify  NotifyConfig  `json:"notify"`
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Debug   DebugConfig   `json:"debug"`
	Systemd SystemdConfig `json:"systemd"`
}

// FeedConfig needs a restart to take effect.
type FeedConfig struct {
	BaseURL   string `json:"base_url"`
	UserAgent string `json:"user_agent"`
	Timeout   string `json:"timeout"`
	// PageSize is the incremental fetch limit, 1..100.
	PageSize int `json:"page_size"`
}

// PollConfig applies live.
type PollConfig struct {
	// Subreddit narrows the feed to one community. Empty means all.
	Subreddit   string `json:"subreddit"`
	FilterRegex string `json:"filter_regex"`
	// FetchInterval is used when no subreddit is set.
	FetchInterval          string `json:"fetch_interval"`
	SubredditFetchInterval string `json:"subreddit_fetch_interval"`
}

// NotifyConfig controls batching (live) and the transport (restart).
//
// Target forms:
//
//	"ops@example.com" or "mailto:ops@example.com"  e-mail via SMTP
//	"telegram:<chat_id>"                           Telegram bot message
//	""                                             log only, no delivery
type NotifyConfig struct {
	Target       string `json:"target"`
	SendInterval string `json:"send_interval"`
	MaxPerBatch  int    `json:"max_per_batch"`
	MinPerBatch  int    `json:"min_per_batch"`
	Tick         string `json:"tick"`
	HistorySize  int    `json:"history_size,omitempty"`

	SMTPCredentials string `json:"smtp_credentials"`
	// From overrides the credentials file sender.
	From string `json:"from,omitempty"`

	TelegramToken    string  `json:"telegram_token,omitempty"` // do not log
	TelegramAPIURL   string  `json:"telegram_api_url,omitempty"`
	TelegramThreadID int     `json:"telegram_thread_id,omitempty"`
	TelegramRate     float64 `json:"telegram_rate,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional delivery log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./feedwatch.db" }
type StorageConfig struct {
	Driver        string `json:"driver"` // none|file|sqlite|postgres
	Path          string `json:"path,omitempty"`
	DSN           string `json:"dsn,omitempty"` // do not log
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	Retention     string `json:"retention,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// DebugConfig controls the optional operator HTTP server.
//
// Prefer binding to localhost. A non-loopback addr needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	PProf         bool   `json:"pprof,omitempty"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile can stream for 30s+.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			BaseURL:   "https://www.reddit.com",
			UserAgent: "windows:reqwest:v0.11",
			Timeout:   "10s",
			PageSize:  100,
		},
		Poll: PollConfig{
			FetchInterval:          "10s",
			SubredditFetchInterval: "60s",
		},
		Notify: NotifyConfig{
			SendInterval:    "10m",
			MaxPerBatch:     200,
			MinPerBatch:     1,
			Tick:            "1s",
			HistorySize:     100,
			SMTPCredentials: "smtp_config.toml",
		},
		Logging: LoggingConfig{Level: "debug", Console: true},
		Storage: StorageConfig{Driver: "none", Retention: "720h", PruneSchedule: "@daily"},
		Debug:   DebugConfig{Addr: "127.0.0.1:6060"},
	}
}

// Overrides are command-line values re-applied on top of every (re)load.
// Nil fields leave the file value untouched.
type Overrides struct {
	Subreddit   *string
	FilterRegex *string
	Target      *string
}

func (o Overrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Subreddit != nil {
		cfg.Poll.Subreddit = *o.Subreddit
	}
	if o.FilterRegex != nil {
		cfg.Poll.FilterRegex = *o.FilterRegex
	}
	if o.Target != nil {
		cfg.Notify.Target = *o.Target
	}
}
