package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/eventbus"
	"feedwatch/internal/settings"
	logx "feedwatch/pkg/logx"
)

type recordSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	// gate, when set, blocks Send until closed.
	gate chan struct{}
}

func (s *recordSender) Name() string { return "record" }

func (s *recordSender) Send(ctx context.Context, msg Message) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordSender) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newBatcher(t *testing.T, pol settings.BatchPolicy, s Sender, bus eventbus.Bus) (*Batcher, *clock) {
	t.Helper()
	st, err := settings.New(settings.Snapshot{Batch: pol, Target: "ops@example.com"})
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	b, err := New(Config{}, s, st, logx.Nop(), bus, Hooks{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := &clock{t: time.Unix(1_000, 0)}
	b.now = c.now
	b.lastFlush = c.now()
	return b, c
}

func seq(prefix string, n int) []domain.Item {
	out := make([]domain.Item, n)
	for i := range out {
		out[i] = domain.Item{ID: fmt.Sprintf("%s%d", prefix, i+1), Title: "t", CreatedAt: time.Unix(int64(100+i), 0)}
	}
	return out
}

func ids(items []domain.Item) string {
	s := ""
	for i, it := range items {
		if i > 0 {
			s += ","
		}
		s += it.ID
	}
	return s
}

func TestBatchTriggerOverQuota(t *testing.T) {
	t.Parallel()

	s := &recordSender{}
	b, _ := newBatcher(t, settings.BatchPolicy{MaxItems: 5, MinItems: 1, SendInterval: time.Hour}, s, nil)
	for _, it := range seq("i", 6) {
		b.Enqueue(it)
	}

	if !b.Tick(context.Background()) {
		t.Fatal("Tick() = false, want flush")
	}
	msgs := s.sent()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if got := ids(msgs[0].Items); got != "i1,i2,i3,i4,i5" {
		t.Fatalf("batch = %s, want i1..i5", got)
	}
	if got := b.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if msgs[0].Target != "ops@example.com" {
		t.Fatalf("Target = %q", msgs[0].Target)
	}
}

func TestAtQuotaWaitsForInterval(t *testing.T) {
	t.Parallel()

	s := &recordSender{}
	b, c := newBatcher(t, settings.BatchPolicy{MaxItems: 5, MinItems: 1, SendInterval: time.Minute}, s, nil)
	for _, it := range seq("i", 5) {
		b.Enqueue(it)
	}
	if b.Tick(context.Background()) {
		t.Fatal("flushed at exactly max items before the interval")
	}
	c.advance(time.Minute + time.Second)
	if !b.Tick(context.Background()) {
		t.Fatal("no flush after the interval elapsed")
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestQuotaFloor(t *testing.T) {
	t.Parallel()

	s := &recordSender{}
	b, c := newBatcher(t, settings.BatchPolicy{MaxItems: 10, MinItems: 3, SendInterval: time.Minute}, s, nil)
	items := seq("i", 3)
	b.Enqueue(items[0])
	b.Enqueue(items[1])

	c.advance(time.Hour)
	if b.Tick(context.Background()) {
		t.Fatal("flushed below the minimum batch size")
	}
	if len(s.sent()) != 0 {
		t.Fatalf("sent %d messages, want 0", len(s.sent()))
	}

	b.Enqueue(items[2])
	if !b.Tick(context.Background()) {
		t.Fatal("no flush once the minimum was reached")
	}
	if got := ids(s.sent()[0].Items); got != "i1,i2,i3" {
		t.Fatalf("batch = %s", got)
	}
}

func TestFailedSendDropsBatch(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	failed, unsub := bus.Subscribe(4, eventbus.BatchFailed)
	defer unsub()

	s := &recordSender{err: errors.New("relay down")}
	b, c := newBatcher(t, settings.BatchPolicy{MaxItems: 2, MinItems: 1, SendInterval: time.Minute}, s, bus)
	for _, it := range seq("i", 3) {
		b.Enqueue(it)
	}
	c.advance(2 * time.Minute)
	flushAt := c.now()
	if !b.Tick(context.Background()) {
		t.Fatal("Tick() = false, want flush")
	}

	st := b.Status()
	if st.QueueLen != 1 || st.Failed != 1 || st.Dropped != 2 || st.Sent != 0 {
		t.Fatalf("status = %+v", st)
	}
	if !st.LastFlush.Equal(flushAt) {
		t.Fatalf("LastFlush = %v, want %v", st.LastFlush, flushAt)
	}
	if len(st.History) != 1 || st.History[0].OK() {
		t.Fatalf("history = %+v", st.History)
	}
	// Flush clock was reset even though the send failed.
	if b.Tick(context.Background()) {
		t.Fatal("flushed again right after a failed send")
	}

	select {
	case e := <-failed:
		d, ok := e.Data.(Delivery)
		if !ok || d.Items != 2 || d.Error != "relay down" {
			t.Fatalf("event data = %#v", e.Data)
		}
	default:
		t.Fatal("no batch_failed event")
	}
}

func TestEnqueueDuringSlowSend(t *testing.T) {
	t.Parallel()

	s := &recordSender{gate: make(chan struct{})}
	b, _ := newBatcher(t, settings.BatchPolicy{MaxItems: 1, MinItems: 1, SendInterval: time.Hour}, s, nil)
	b.Enqueue(domain.Item{ID: "a"})
	b.Enqueue(domain.Item{ID: "b"})

	done := make(chan struct{})
	go func() {
		b.Tick(context.Background())
		close(done)
	}()

	enqueued := make(chan struct{})
	go func() {
		b.Enqueue(domain.Item{ID: "c"})
		close(enqueued)
	}()
	select {
	case <-enqueued:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked behind an in-flight send")
	}

	close(s.gate)
	<-done
	if got := b.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestDrainRespectsMinimum(t *testing.T) {
	t.Parallel()

	s := &recordSender{}
	b, _ := newBatcher(t, settings.BatchPolicy{MaxItems: 2, MinItems: 2, SendInterval: time.Hour}, s, nil)
	for _, it := range seq("i", 5) {
		b.Enqueue(it)
	}

	if got := b.Drain(context.Background()); got != 4 {
		t.Fatalf("Drain() = %d, want 4", got)
	}
	msgs := s.sent()
	if len(msgs) != 2 || ids(msgs[0].Items) != "i1,i2" || ids(msgs[1].Items) != "i3,i4" {
		t.Fatalf("drained batches = %d", len(msgs))
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
}

func TestRunFlushesOnTick(t *testing.T) {
	t.Parallel()

	st, _ := settings.New(settings.Snapshot{Batch: settings.BatchPolicy{MaxItems: 1, MinItems: 1, SendInterval: time.Hour}})
	s := &recordSender{}
	b, err := New(Config{Tick: 5 * time.Millisecond}, s, st, logx.Nop(), nil, Hooks{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	for _, it := range seq("i", 3) {
		b.Enqueue(it)
	}
	deadline := time.Now().Add(2 * time.Second)
	for b.Len() > 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
	// Over quota means strictly more than max, so the last item waits for the interval.
	if got := b.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if got := len(s.sent()); got != 2 {
		t.Fatalf("sent %d batches, want 2", got)
	}
}

func TestNewRequiresSender(t *testing.T) {
	t.Parallel()

	st, _ := settings.New(settings.Snapshot{})
	if _, err := New(Config{}, nil, st, logx.Nop(), nil, Hooks{}); !errors.Is(err, ErrNoSender) {
		t.Fatalf("New(nil sender) err = %v, want ErrNoSender", err)
	}
}
