// Package settings holds the runtime-mutable knobs shared by the poller and the
// notification batcher. Consumers read one consistent Snapshot per cycle or tick
// instead of reading fields one by one.
package settings

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"feedwatch/internal/domain"
)

const (
	DefaultUnscopedInterval = 10 * time.Second
	DefaultScopedInterval   = 60 * time.Second
	DefaultSendInterval     = 10 * time.Minute
	DefaultMaxPerBatch      = 200
	DefaultMinPerBatch      = 1
)

// Filters selects which items are emitted.
type Filters struct {
	// Scope restricts polling to one named subset of the feed. Empty means global.
	Scope string `json:"scope,omitempty"`
	// TitlePattern is a regular expression matched against item titles. Empty matches all.
	TitlePattern string `json:"title_pattern,omitempty"`

	title *regexp.Regexp
}

// MatchTitle reports whether title passes the title filter.
func (f Filters) MatchTitle(title string) bool {
	if f.title == nil {
		return true
	}
	return f.title.MatchString(title)
}

// Describe is a short human description used in notification subjects.
func (f Filters) Describe() string {
	scope := "all"
	if f.Scope != "" {
		scope = "r/" + f.Scope
	}
	if f.TitlePattern == "" {
		return scope
	}
	return fmt.Sprintf("%s matching %q", scope, f.TitlePattern)
}

// Intervals are the poll sleeps for unscoped and scoped polling.
type Intervals struct {
	Unscoped time.Duration `json:"unscoped"`
	Scoped   time.Duration `json:"scoped"`
}

// BatchPolicy governs when the batcher flushes.
type BatchPolicy struct {
	MaxItems     int           `json:"max_items"`
	MinItems     int           `json:"min_items"`
	SendInterval time.Duration `json:"send_interval"`
}

// Snapshot is an immutable view of all settings.
type Snapshot struct {
	Filters   Filters     `json:"filters"`
	Intervals Intervals   `json:"intervals"`
	Batch     BatchPolicy `json:"batch"`
	// Target is the notification address. Empty disables enqueueing.
	Target string `json:"target,omitempty"`
	// Version increases on every successful update.
	Version uint64 `json:"version"`
}

// PollInterval picks the sleep for the snapshot's scope.
func (s Snapshot) PollInterval() time.Duration {
	if s.Filters.Scope != "" {
		return s.Intervals.Scoped
	}
	return s.Intervals.Unscoped
}

// Store is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	cur Snapshot
}

// New returns a store seeded with init after defaults and validation.
func New(init Snapshot) (*Store, error) {
	if err := normalize(&init); err != nil {
		return nil, err
	}
	init.Version = 1
	return &Store{cur: init}, nil
}

// Snapshot returns the current settings.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to a copy of the current settings and commits it if it
// validates. On error the previous settings stay active.
func (s *Store) Update(fn func(*Snapshot)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	if err := normalize(&next); err != nil {
		return s.cur, err
	}
	next.Version = s.cur.Version + 1
	s.cur = next
	return next, nil
}

func (s *Store) SetScope(scope string) error {
	_, err := s.Update(func(n *Snapshot) { n.Filters.Scope = scope })
	return err
}

func (s *Store) SetTitleFilter(pattern string) error {
	_, err := s.Update(func(n *Snapshot) { n.Filters.TitlePattern = pattern })
	return err
}

func (s *Store) SetIntervals(iv Intervals) error {
	_, err := s.Update(func(n *Snapshot) { n.Intervals = iv })
	return err
}

func (s *Store) SetBatchPolicy(p BatchPolicy) error {
	_, err := s.Update(func(n *Snapshot) { n.Batch = p })
	return err
}

func (s *Store) SetTarget(target string) error {
	_, err := s.Update(func(n *Snapshot) { n.Target = target })
	return err
}

// normalize applies defaults, compiles the title pattern and validates.
func normalize(s *Snapshot) error {
	s.Filters.Scope = NormalizeScope(s.Filters.Scope)
	s.Filters.TitlePattern = strings.TrimSpace(s.Filters.TitlePattern)
	s.Target = strings.TrimSpace(s.Target)

	if s.Filters.TitlePattern == "" {
		s.Filters.title = nil
	} else if s.Filters.title == nil || s.Filters.title.String() != s.Filters.TitlePattern {
		re, err := regexp.Compile(s.Filters.TitlePattern)
		if err != nil {
			return fmt.Errorf("title filter %q: %v: %w", s.Filters.TitlePattern, err, domain.ErrConfiguration)
		}
		s.Filters.title = re
	}

	if s.Intervals.Unscoped <= 0 {
		s.Intervals.Unscoped = DefaultUnscopedInterval
	}
	if s.Intervals.Scoped <= 0 {
		s.Intervals.Scoped = DefaultScopedInterval
	}

	if s.Batch.SendInterval <= 0 {
		s.Batch.SendInterval = DefaultSendInterval
	}
	if s.Batch.MaxItems <= 0 {
		s.Batch.MaxItems = DefaultMaxPerBatch
	}
	if s.Batch.MinItems < 0 {
		return fmt.Errorf("min items per batch %d must be >= 0: %w", s.Batch.MinItems, domain.ErrConfiguration)
	}
	if s.Batch.MinItems == 0 {
		s.Batch.MinItems = DefaultMinPerBatch
	}
	if s.Batch.MinItems > s.Batch.MaxItems {
		return fmt.Errorf("min items per batch %d exceeds max %d: %w", s.Batch.MinItems, s.Batch.MaxItems, domain.ErrConfiguration)
	}
	return nil
}

// NormalizeScope accepts "golang", "r/golang" and "/r/golang/".
func NormalizeScope(scope string) string {
	s := strings.Trim(strings.TrimSpace(scope), "/")
	s = strings.TrimPrefix(s, "r/")
	return strings.Trim(s, "/")
}
