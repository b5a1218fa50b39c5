package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/feed"
	"feedwatch/internal/settings"
	logx "feedwatch/pkg/logx"
)

type call struct {
	scope  string
	before string
	limit  int
}

// fakeFeed serves scripted pages (newest first) and records every call.
type fakeFeed struct {
	mu    sync.Mutex
	calls []call
	pages [][]domain.Item
	errs  []error
	// during runs inside Fetch, before returning.
	during func()
}

func (f *fakeFeed) Fetch(ctx context.Context, scope, before string, limit int) ([]domain.Item, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{scope, before, limit})
	var page []domain.Item
	var err error
	if len(f.pages) > 0 {
		page, f.pages = f.pages[0], f.pages[1:]
	}
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *fakeFeed) push(page ...domain.Item) {
	f.mu.Lock()
	f.pages = append(f.pages, page)
	f.errs = append(f.errs, nil)
	f.mu.Unlock()
}

func (f *fakeFeed) fail(err error) {
	f.mu.Lock()
	f.pages = append(f.pages, nil)
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

func (f *fakeFeed) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func item(id, title string, ts int64) domain.Item {
	return domain.Item{ID: id, Title: title, Author: "u", Container: "r/test", CreatedAt: time.Unix(ts, 0).UTC()}
}

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) emit(_ context.Context, it domain.Item) {
	c.mu.Lock()
	c.ids = append(c.ids, it.ID)
	c.mu.Unlock()
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func newPoller(t *testing.T, f feed.Fetcher, st *settings.Store, pageSize int, hooks Hooks) *Poller {
	t.Helper()
	p, err := New(Config{PageSize: pageSize}, f, st, logx.Nop(), nil, hooks)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func newStore(t *testing.T, snap settings.Snapshot) *settings.Store {
	t.Helper()
	st, err := settings.New(snap)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	return st
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBootstrapSeedsCursorWithoutEmitting(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("t3_z", "latest", 50))
	st := newStore(t, settings.Snapshot{Filters: settings.Filters{Scope: "golang"}})
	p := newPoller(t, f, st, 100, Hooks{})
	var c collector

	p.Cycle(context.Background(), c.emit)

	if got := f.last(); got != (call{"golang", "", 1}) {
		t.Fatalf("bootstrap call = %+v", got)
	}
	cur := p.Cursor()
	if !cur.Bootstrapped || cur.Scope != "golang" || cur.LastID != "t3_z" {
		t.Fatalf("cursor = %+v", cur)
	}
	if len(c.got()) != 0 {
		t.Fatalf("bootstrap emitted %v", c.got())
	}
}

func TestCursorMonotonicity(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("t3_0", "seed", 1))
	f.push(item("t3_2", "b", 3), item("t3_1", "a", 2))
	f.push()
	f.push(item("t3_3", "c", 4))
	f.push(item("t3_6", "f", 7), item("t3_5", "e", 6), item("t3_4", "d", 5))

	st := newStore(t, settings.Snapshot{})
	p := newPoller(t, f, st, 100, Hooks{})
	var c collector
	ctx := context.Background()

	want := []struct {
		before string
		cursor string
	}{
		{"", "t3_0"},
		{"t3_0", "t3_2"},
		{"t3_2", "t3_2"},
		{"t3_2", "t3_3"},
		{"t3_3", "t3_6"},
	}
	for i, w := range want {
		p.Cycle(ctx, c.emit)
		if got := f.last().before; got != w.before {
			t.Fatalf("cycle %d before = %q, want %q", i, got, w.before)
		}
		if got := p.Cursor().LastID; got != w.cursor {
			t.Fatalf("cycle %d cursor = %q, want %q", i, got, w.cursor)
		}
	}
	if got := c.got(); !equalIDs(got, []string{"t3_1", "t3_2", "t3_3", "t3_4", "t3_5", "t3_6"}) {
		t.Fatalf("emitted = %v", got)
	}
}

func TestScopeChangeRebootstraps(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("t3_a0", "seed", 1))
	f.push(item("t3_a1", "x", 2))
	f.push(item("t3_b0", "seed b", 3))
	f.push(item("t3_b1", "y", 4))

	st := newStore(t, settings.Snapshot{Filters: settings.Filters{Scope: "a"}})
	p := newPoller(t, f, st, 50, Hooks{})
	var c collector
	ctx := context.Background()

	p.Cycle(ctx, c.emit)
	p.Cycle(ctx, c.emit)
	if err := st.SetScope("b"); err != nil {
		t.Fatalf("SetScope: %v", err)
	}
	p.Cycle(ctx, c.emit)

	if got := f.last(); got != (call{"b", "", 1}) {
		t.Fatalf("cycle after scope change = %+v, want bootstrap of b", got)
	}
	if cur := p.Cursor(); cur.Scope != "b" || cur.LastID != "t3_b0" {
		t.Fatalf("cursor = %+v", cur)
	}

	p.Cycle(ctx, c.emit)
	if got := f.last(); got != (call{"b", "t3_b0", 50}) {
		t.Fatalf("next cycle = %+v", got)
	}
	if got := c.got(); !equalIDs(got, []string{"t3_a1", "t3_b1"}) {
		t.Fatalf("emitted = %v", got)
	}
}

func TestEmissionOrder(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("t3_seed", "seed", 99))
	f.push(item("C", "C", 102), item("B", "B", 101), item("A", "A", 100))

	p := newPoller(t, f, newStore(t, settings.Snapshot{}), 100, Hooks{})
	var c collector
	p.Cycle(context.Background(), c.emit)
	p.Cycle(context.Background(), c.emit)

	if got := c.got(); !equalIDs(got, []string{"A", "B", "C"}) {
		t.Fatalf("emitted = %v, want [A B C]", got)
	}
	if got := p.Cursor().LastID; got != "C" {
		t.Fatalf("cursor = %q, want C", got)
	}
}

func TestTitleFilterTiming(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("seed", "seed", 1))
	f.push(item("B1", "B", 3), item("A1", "A", 2))
	f.push(item("B2", "B", 5), item("A2", "A", 4))

	st := newStore(t, settings.Snapshot{})
	p := newPoller(t, f, st, 100, Hooks{})
	var c collector
	ctx := context.Background()

	p.Cycle(ctx, c.emit)

	// The filter changes while cycle N is fetching.
	f.mu.Lock()
	f.during = func() { _ = st.SetTitleFilter("^B$") }
	f.mu.Unlock()
	p.Cycle(ctx, c.emit)
	if got := c.got(); !equalIDs(got, []string{"A1", "B1"}) {
		t.Fatalf("cycle N emitted %v, want [A1 B1]", got)
	}

	f.mu.Lock()
	f.during = nil
	f.mu.Unlock()
	p.Cycle(ctx, c.emit)
	if got := c.got(); !equalIDs(got, []string{"A1", "B1", "B2"}) {
		t.Fatalf("after cycle N+1 emitted %v, want [A1 B1 B2]", got)
	}
}

func TestFetchFailureKeepsCursor(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("seed", "seed", 1))
	f.fail(domain.ErrNetwork)
	f.push(item("n1", "n", 2))

	var failures int
	p := newPoller(t, f, newStore(t, settings.Snapshot{}), 100, Hooks{
		OnFetch: func(_ string, _ int, err error) {
			if err != nil {
				failures++
			}
		},
	})
	var c collector
	ctx := context.Background()

	p.Cycle(ctx, c.emit)
	p.Cycle(ctx, c.emit)
	if got := p.Cursor().LastID; got != "seed" {
		t.Fatalf("cursor after failure = %q, want seed", got)
	}
	if got := p.Status().Failures; got != 1 {
		t.Fatalf("Failures = %d, want 1", got)
	}

	p.Cycle(ctx, c.emit)
	if got := f.last().before; got != "seed" {
		t.Fatalf("retry before = %q, want seed", got)
	}
	if got := c.got(); !equalIDs(got, []string{"n1"}) {
		t.Fatalf("emitted = %v", got)
	}
	if failures != 1 {
		t.Fatalf("OnFetch failures = %d, want 1", failures)
	}
}

func TestBootstrapFailureRetriesBootstrap(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.fail(domain.ErrParse)
	f.push(item("seed", "seed", 1))

	p := newPoller(t, f, newStore(t, settings.Snapshot{}), 100, Hooks{})
	var c collector
	p.Cycle(context.Background(), c.emit)
	if p.Cursor().Bootstrapped {
		t.Fatal("cursor bootstrapped after failed bootstrap")
	}
	p.Cycle(context.Background(), c.emit)
	if got := f.last(); got != (call{"", "", 1}) {
		t.Fatalf("second call = %+v, want bootstrap", got)
	}
	if got := p.Cursor(); !got.Bootstrapped || got.LastID != "seed" {
		t.Fatalf("cursor = %+v", got)
	}
}

func TestFullPageWarns(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("seed", "seed", 1))
	f.push(item("b", "b", 3), item("a", "a", 2))

	full := 0
	p := newPoller(t, f, newStore(t, settings.Snapshot{}), 2, Hooks{OnFullPage: func(string) { full++ }})
	var c collector
	p.Cycle(context.Background(), c.emit)
	p.Cycle(context.Background(), c.emit)

	if full != 1 {
		t.Fatalf("OnFullPage calls = %d, want 1", full)
	}
	// No extra pagination.
	if got := f.count(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestNewRejectsPageSize(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 101} {
		f := &fakeFeed{}
		_, err := New(Config{PageSize: n}, f, newStore(t, settings.Snapshot{}), logx.Nop(), nil, Hooks{})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("New(page=%d) err = %v, want ErrConfiguration", n, err)
		}
		if f.count() != 0 {
			t.Fatalf("New(page=%d) issued %d fetches", n, f.count())
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	f.push(item("seed", "seed", 1))
	st := newStore(t, settings.Snapshot{Intervals: settings.Intervals{Unscoped: 5 * time.Millisecond, Scoped: time.Hour}})
	p := newPoller(t, f, st, 100, Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.count() < 3 {
		t.Fatalf("fetches = %d, want >= 3", f.count())
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
