package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedwatch/internal/domain"
	"feedwatch/internal/eventbus"
	"feedwatch/internal/settings"
	logx "feedwatch/pkg/logx"
)

const (
	defaultTick        = time.Second
	defaultHistorySize = 100
)

// Batcher owns the queue and the flush loop. It is safe for concurrent use.
type Batcher struct {
	cfg    Config
	sender Sender
	src    Source
	log    logx.Logger
	bus    eventbus.Bus
	hooks  Hooks
	now    func() time.Time

	mu        sync.RWMutex
	queue     []domain.Item
	lastFlush time.Time
	sent      uint64
	failed    uint64
	dropped   uint64

	// flushMu serializes flushes (tick vs. shutdown drain).
	flushMu sync.Mutex

	hmu     sync.Mutex
	history []Delivery
}

func New(cfg Config, sender Sender, src Source, log logx.Logger, bus eventbus.Bus, hooks Hooks) (*Batcher, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if src == nil {
		return nil, fmt.Errorf("notifier: settings source is required: %w", domain.ErrConfiguration)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	b := &Batcher{
		cfg:    cfg,
		sender: sender,
		src:    src,
		log:    log,
		bus:    bus,
		hooks:  hooks,
		now:    time.Now,
	}
	b.queue = make([]domain.Item, 0, src.Snapshot().Batch.MaxItems)
	b.lastFlush = b.now()
	return b, nil
}

// Enqueue appends it to the tail of the queue.
func (b *Batcher) Enqueue(it domain.Item) {
	b.mu.Lock()
	b.queue = append(b.queue, it)
	depth := len(b.queue)
	b.mu.Unlock()

	if b.hooks.OnEnqueue != nil {
		b.hooks.OnEnqueue(depth)
	}
}

// Len returns the queue length.
func (b *Batcher) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queue)
}

// Run polls the flush condition every tick until ctx is cancelled.
func (b *Batcher) Run(ctx context.Context) error {
	t := time.NewTicker(b.cfg.Tick)
	defer t.Stop()

	b.log.Debug("flush loop started", logx.Duration("tick", b.cfg.Tick), logx.String("transport", b.sender.Name()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			b.Tick(ctx)
		}
	}
}

// Tick evaluates the batch policy once and flushes if it says so.
// It reports whether a batch was taken off the queue.
func (b *Batcher) Tick(ctx context.Context) bool {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	snap := b.src.Snapshot()
	pol := snap.Batch
	now := b.now()

	b.mu.Lock()
	n := len(b.queue)
	overQuota := n > pol.MaxItems
	overInterval := now.Sub(b.lastFlush) > pol.SendInterval
	underQuota := n < pol.MinItems
	if !(overQuota || overInterval) || underQuota || n == 0 {
		b.mu.Unlock()
		return false
	}
	batch := b.takeLocked(min(pol.MaxItems, n), pol.MaxItems)
	b.lastFlush = now
	b.mu.Unlock()

	b.deliver(ctx, batch, snap)
	return true
}

// Drain flushes what is left on shutdown, in policy-sized batches, as long as
// the minimum batch size is met. It ignores the send interval.
func (b *Batcher) Drain(ctx context.Context) int {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	flushed := 0
	for ctx.Err() == nil {
		snap := b.src.Snapshot()
		pol := snap.Batch

		b.mu.Lock()
		n := len(b.queue)
		if n == 0 || n < pol.MinItems {
			b.mu.Unlock()
			break
		}
		batch := b.takeLocked(min(pol.MaxItems, n), pol.MaxItems)
		b.lastFlush = b.now()
		b.mu.Unlock()

		b.deliver(ctx, batch, snap)
		flushed += len(batch)
	}

	if left := b.Len(); left > 0 {
		b.log.Warn("items left unsent at shutdown", logx.Int("items", left))
	}
	return flushed
}

// takeLocked removes the oldest k items. The remainder is copied into a fresh
// slice sized with capHint so the backing array does not grow without bound.
func (b *Batcher) takeLocked(k, capHint int) []domain.Item {
	batch := make([]domain.Item, k)
	copy(batch, b.queue[:k])
	rest := make([]domain.Item, 0, max(capHint, len(b.queue)-k))
	b.queue = append(rest, b.queue[k:]...)
	return batch
}

func (b *Batcher) deliver(ctx context.Context, batch []domain.Item, snap settings.Snapshot) {
	target := snap.Target
	msg, err := Compose(batch, snap.Filters, target)
	if err != nil {
		b.log.Warn("html body render failed; sending text only", logx.Err(err))
	}

	start := b.now()
	err = b.sender.Send(ctx, msg)

	d := Delivery{
		ID:        uuid.NewString(),
		At:        start,
		Transport: b.sender.Name(),
		Target:    target,
		Subject:   msg.Subject,
		Items:     len(batch),
		FirstID:   batch[0].ID,
		LastID:    batch[len(batch)-1].ID,
		Took:      b.now().Sub(start),
	}

	b.mu.Lock()
	if err != nil {
		d.Error = err.Error()
		b.failed++
		b.dropped += uint64(len(batch))
	} else {
		b.sent++
	}
	depth := len(b.queue)
	b.mu.Unlock()

	b.appendHistory(d)

	if err != nil {
		b.log.Error("batch send failed; items dropped",
			logx.String("id", d.ID), logx.Int("items", d.Items), logx.String("transport", d.Transport), logx.Err(err))
		b.bus.Publish(eventbus.Event{Type: eventbus.BatchFailed, Time: d.At, Data: d})
		b.bus.Publish(eventbus.Event{Type: eventbus.ItemsDropped, Time: d.At, Data: d.Items})
	} else {
		b.log.Info("batch sent",
			logx.String("id", d.ID), logx.Int("items", d.Items), logx.String("transport", d.Transport),
			logx.Int("queued", depth), logx.Duration("took", d.Took))
		b.bus.Publish(eventbus.Event{Type: eventbus.BatchSent, Time: d.At, Data: d})
	}
	if b.hooks.OnFlush != nil {
		b.hooks.OnFlush(d, depth)
	}
}

func (b *Batcher) appendHistory(d Delivery) {
	b.hmu.Lock()
	b.history = append(b.history, d)
	if over := len(b.history) - b.cfg.HistorySize; over > 0 {
		b.history = append([]Delivery(nil), b.history[over:]...)
	}
	b.hmu.Unlock()
}

// Status returns counters, the last flush time and a copy of the history.
func (b *Batcher) Status() Status {
	b.mu.RLock()
	st := Status{
		QueueLen:  len(b.queue),
		LastFlush: b.lastFlush,
		Sent:      b.sent,
		Failed:    b.failed,
		Dropped:   b.dropped,
	}
	b.mu.RUnlock()

	b.hmu.Lock()
	st.History = append([]Delivery(nil), b.history...)
	b.hmu.Unlock()
	return st
}
