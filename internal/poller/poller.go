// Package poller turns the feed's "list newest N" endpoint into an ordered,
// duplicate-free stream of new items.
//
// The cursor (scope, last-seen id) is seeded by a bootstrap fetch that emits
// nothing, so a fresh start or a scope change never floods the backlog.
// Every cycle sleeps, takes one settings snapshot, fetches items newer than the
// cursor, advances the cursor once per non-empty page and emits the items that
// pass the title filter in chronological order.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/eventbus"
	"feedwatch/internal/feed"
	"feedwatch/internal/settings"
	logx "feedwatch/pkg/logx"
)

const bootstrapPageSize = 1

// FullPageWarning is logged when a page comes back full.
const FullPageWarning = "Update frequency is too low. Some posts may have been missed!"

// Source provides settings snapshots.
type Source interface {
	Snapshot() settings.Snapshot
}

// Emitter receives items that passed the filters, oldest first.
type Emitter func(ctx context.Context, it domain.Item)

// Hooks are optional observation callbacks (metrics).
type Hooks struct {
	OnFetch    func(scope string, n int, err error)
	OnFullPage func(scope string)
	OnEmit     func(it domain.Item)
	OnFiltered func(it domain.Item)
}

// Cursor is the dedup point. It is only meaningful while Scope equals the
// active scope filter.
type Cursor struct {
	Scope        string    `json:"scope"`
	LastID       string    `json:"last_id"`
	Bootstrapped bool      `json:"bootstrapped"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Status is a point-in-time view for /status.
type Status struct {
	Cursor      Cursor    `json:"cursor"`
	Cycles      uint64    `json:"cycles"`
	Fetches     uint64    `json:"fetches"`
	Failures    uint64    `json:"failures"`
	LastFetchAt time.Time `json:"last_fetch_at"`
	LastError   string    `json:"last_error,omitempty"`
}

type Config struct {
	// PageSize is the fetch limit per cycle, 1..100.
	PageSize int
}

type Poller struct {
	fetch    feed.Fetcher
	src      Source
	log      logx.Logger
	bus      eventbus.Bus
	hooks    Hooks
	pageSize int

	mu     sync.RWMutex
	cursor Cursor
	stats  Status
}

// New validates the page size before anything can be fetched.
func New(cfg Config, fetch feed.Fetcher, src Source, log logx.Logger, bus eventbus.Bus, hooks Hooks) (*Poller, error) {
	if err := feed.ValidatePageSize(cfg.PageSize); err != nil {
		return nil, err
	}
	if fetch == nil || src == nil {
		return nil, fmt.Errorf("poller: fetcher and settings are required: %w", domain.ErrConfiguration)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Poller{
		fetch:    fetch,
		src:      src,
		log:      log,
		bus:      bus,
		hooks:    hooks,
		pageSize: cfg.PageSize,
	}, nil
}

// Cursor returns the current cursor.
func (p *Poller) Cursor() Cursor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.stats
	st.Cursor = p.cursor
	return st
}

// Run bootstraps, then cycles until ctx is cancelled.
// Fetch failures never end the loop; they are retried at the next interval.
func (p *Poller) Run(ctx context.Context, emit Emitter) error {
	p.bootstrap(ctx, p.src.Snapshot().Filters.Scope)

	for {
		wait := p.src.Snapshot().PollInterval()
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		p.Cycle(ctx, emit)
	}
}

// Cycle runs one poll cycle without the leading sleep.
func (p *Poller) Cycle(ctx context.Context, emit Emitter) {
	snap := p.src.Snapshot()
	scope := snap.Filters.Scope

	p.mu.Lock()
	p.stats.Cycles++
	cur := p.cursor
	p.mu.Unlock()

	if !cur.Bootstrapped || cur.Scope != scope {
		if cur.Bootstrapped {
			p.log.Info("scope changed; re-bootstrapping",
				logx.String("from", cur.Scope), logx.String("to", scope))
		}
		p.bootstrap(ctx, scope)
		return
	}

	items, err := p.doFetch(ctx, scope, cur.LastID, p.pageSize)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("fetch failed; will retry next cycle",
				logx.String("scope", scope), logx.String("before", cur.LastID), logx.Err(err))
			p.bus.Publish(eventbus.Event{Type: eventbus.PollerFetchFailed, Data: err.Error()})
		}
		return
	}

	if len(items) >= p.pageSize {
		p.log.Warn(FullPageWarning, logx.String("scope", scope), logx.Int("page_size", p.pageSize))
		p.bus.Publish(eventbus.Event{Type: eventbus.PollerPageFull, Data: scope})
		if p.hooks.OnFullPage != nil {
			p.hooks.OnFullPage(scope)
		}
	}
	if len(items) == 0 {
		return
	}

	// Newest is first on the wire.
	p.advance(scope, items[0].ID)

	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if !snap.Filters.MatchTitle(it.Title) {
			if p.hooks.OnFiltered != nil {
				p.hooks.OnFiltered(it)
			}
			continue
		}
		if p.hooks.OnEmit != nil {
			p.hooks.OnEmit(it)
		}
		if emit != nil {
			emit(ctx, it)
		}
	}
}

func (p *Poller) bootstrap(ctx context.Context, scope string) {
	items, err := p.doFetch(ctx, scope, "", bootstrapPageSize)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("bootstrap fetch failed; will retry next cycle", logx.String("scope", scope), logx.Err(err))
			p.bus.Publish(eventbus.Event{Type: eventbus.PollerFetchFailed, Data: err.Error()})
		}
		// Stay un-bootstrapped so the next cycle bootstraps again.
		p.mu.Lock()
		p.cursor = Cursor{Scope: scope}
		p.mu.Unlock()
		return
	}

	c := Cursor{Scope: scope, Bootstrapped: true, UpdatedAt: time.Now()}
	if len(items) > 0 {
		c.LastID = items[0].ID
	}
	p.mu.Lock()
	p.cursor = c
	p.mu.Unlock()

	p.log.Info("cursor bootstrapped", logx.String("scope", scope), logx.String("last_id", c.LastID))
	p.bus.Publish(eventbus.Event{Type: eventbus.PollerBootstrapped, Data: c})
}

func (p *Poller) advance(scope, id string) {
	p.mu.Lock()
	p.cursor = Cursor{Scope: scope, LastID: id, Bootstrapped: true, UpdatedAt: time.Now()}
	p.mu.Unlock()
	p.log.Debug("cursor advanced", logx.String("scope", scope), logx.String("last_id", id))
}

// doFetch runs the network call without holding any lock.
func (p *Poller) doFetch(ctx context.Context, scope, before string, limit int) ([]domain.Item, error) {
	items, err := p.fetch.Fetch(ctx, scope, before, limit)

	p.mu.Lock()
	p.stats.Fetches++
	p.stats.LastFetchAt = time.Now()
	if err != nil {
		p.stats.Failures++
		p.stats.LastError = err.Error()
	} else {
		p.stats.LastError = ""
	}
	p.mu.Unlock()

	if p.hooks.OnFetch != nil {
		p.hooks.OnFetch(scope, len(items), err)
	}
	return items, err
}
