package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"feedwatch/internal/domain"
	"feedwatch/internal/notifier"
)

func TestPollerHooks(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	h := m.PollerHooks()

	h.OnFetch("golang", 3, nil)
	h.OnFetch("golang", 0, fmt.Errorf("status 502: %w", domain.ErrNetwork))
	h.OnFetch("golang", 0, fmt.Errorf("bad body: %w", domain.ErrParse))
	h.OnFullPage("golang")
	h.OnEmit(domain.Item{ID: "a"})
	h.OnFiltered(domain.Item{ID: "b"})
	h.OnFiltered(domain.Item{ID: "c"})

	if got := testutil.ToFloat64(m.Fetches); got != 3 {
		t.Fatalf("fetches = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.FetchFailures.WithLabelValues("network")); got != 1 {
		t.Fatalf("network failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FetchFailures.WithLabelValues("parse")); got != 1 {
		t.Fatalf("parse failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FullPages); got != 1 {
		t.Fatalf("full pages = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ItemsFiltered); got != 2 {
		t.Fatalf("filtered = %v, want 2", got)
	}
}

func TestBatcherHooks(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	h := m.BatcherHooks()

	h.OnEnqueue(7)
	if got := testutil.ToFloat64(m.QueueDepth); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}

	h.OnFlush(notifier.Delivery{Transport: "smtp", Items: 5, Took: 200 * time.Millisecond}, 2)
	h.OnFlush(notifier.Delivery{Transport: "smtp", Items: 2, Error: "dial tcp: timeout"}, 0)

	if got := testutil.ToFloat64(m.Flushes.WithLabelValues("smtp", "sent")); got != 1 {
		t.Fatalf("sent flushes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Flushes.WithLabelValues("smtp", "failed")); got != 1 {
		t.Fatalf("failed flushes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ItemsDropped); got != 2 {
		t.Fatalf("dropped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 0 {
		t.Fatalf("queue depth = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(m.BatchSize); n != 1 {
		t.Fatalf("batch size series = %d, want 1", n)
	}
}

func TestErrorClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", domain.ErrNetwork), "network"},
		{fmt.Errorf("x: %w", domain.ErrParse), "parse"},
		{fmt.Errorf("x: %w", domain.ErrConfiguration), "config"},
		{errors.New("other"), "other"},
	}
	for _, tt := range tests {
		if got := errorClass(tt.err); got != tt.want {
			t.Fatalf("errorClass(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNewRegistryGathers(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	New(reg)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("Gather returned no metric families")
	}
}
