package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/settings"
	logx "feedwatch/pkg/logx"
)

const (
	MinPageSize = 1
	MaxPageSize = 100

	DefaultBaseURL   = "https://www.reddit.com"
	DefaultUserAgent = "windows:reqwest:v0.11"
	DefaultTimeout   = 10 * time.Second

	maxBodyBytes = 8 << 20
)

// Config configures the feed client.
type Config struct {
	BaseURL   string
	UserAgent string
	// Timeout bounds connect + read of a single fetch.
	Timeout time.Duration
	// Log receives per-child decode warnings. Zero value discards them.
	Log logx.Logger
}

// Fetcher is the contract the poller depends on.
// Items are returned newest-first, exactly as the feed lists them.
type Fetcher interface {
	Fetch(ctx context.Context, scope, before string, limit int) ([]domain.Item, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, scope, before string, limit int) ([]domain.Item, error)

func (f FetcherFunc) Fetch(ctx context.Context, scope, before string, limit int) ([]domain.Item, error) {
	return f(ctx, scope, before, limit)
}

// Client fetches the "new" listing over HTTPS.
type Client struct {
	base *url.URL
	ua   string
	http *http.Client
	log  logx.Logger
}

// New validates cfg and returns a client. Zero fields take defaults.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("feed.base_url %q: %w", raw, domain.ErrConfiguration)
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: base,
		ua:   ua,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

// ValidatePageSize reports ErrConfiguration for sizes outside [MinPageSize, MaxPageSize].
func ValidatePageSize(n int) error {
	if n < MinPageSize || n > MaxPageSize {
		return fmt.Errorf("page size %d outside %d..%d: %w", n, MinPageSize, MaxPageSize, domain.ErrConfiguration)
	}
	return nil
}

// Fetch returns up to limit items newer than before (all recent items when
// before is empty), scoped to scope when it is non-empty.
// The page size is validated before any request is issued.
func (c *Client) Fetch(ctx context.Context, scope, before string, limit int) ([]domain.Item, error) {
	if err := ValidatePageSize(limit); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listingURL(scope, before, limit), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %v: %w", err, domain.ErrConfiguration)
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %s", domain.ErrNetwork, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	return c.decode(body)
}

func (c *Client) listingURL(scope, before string, limit int) string {
	u := *c.base
	path := strings.TrimRight(u.Path, "/")
	if s := settings.NormalizeScope(scope); s != "" {
		path += "/r/" + url.PathEscape(s)
	}
	u.Path = path + "/new.json"

	q := url.Values{}
	q.Set("raw_json", "1")
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Name                  string  `json:"name"`
	Title                 string  `json:"title"`
	Author                string  `json:"author"`
	SubredditNamePrefixed string  `json:"subreddit_name_prefixed"`
	Permalink             string  `json:"permalink"`
	CreatedUTC            float64 `json:"created_utc"`
}

func (c *Client) decode(body []byte) ([]domain.Item, error) {
	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	items := make([]domain.Item, 0, len(l.Data.Children))
	for i, ch := range l.Data.Children {
		p := ch.Data
		if p.Name == "" {
			// Nameless children are skipped; the rest of the page is kept.
			c.log.Warn("skipping listing child without name",
				logx.Int("index", i), logx.String("title", p.Title))
			continue
		}
		items = append(items, domain.Item{
			ID:        p.Name,
			Title:     p.Title,
			Author:    p.Author,
			Container: p.SubredditNamePrefixed,
			Permalink: c.absolute(p.Permalink),
			CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		})
	}
	return items, nil
}

func (c *Client) absolute(permalink string) string {
	if permalink == "" {
		return ""
	}
	ref, err := url.Parse(permalink)
	if err != nil {
		return permalink
	}
	if ref.IsAbs() {
		return ref.String()
	}
	root := *c.base
	root.Path = ""
	root.RawQuery = ""
	return root.ResolveReference(ref).String()
}

// IsTransient reports whether err is a recoverable fetch failure.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrParse)
}
