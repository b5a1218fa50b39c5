package storage

import (
	"context"
	"time"

	"feedwatch/internal/eventbus"
	"feedwatch/internal/notifier"
	logx "feedwatch/pkg/logx"
)

// Recorder appends every batch outcome published on the bus to a Store.
type Recorder struct {
	store Store
	log   logx.Logger
	ch    <-chan eventbus.Event
	unsub func()
}

// NewRecorder subscribes immediately so no outcome published after it
// returns is missed.
func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	ch, unsub := bus.Subscribe(64, eventbus.BatchSent, eventbus.BatchFailed)
	return &Recorder{store: store, log: log, ch: ch, unsub: unsub}
}

// Run records until ctx is done, then drains whatever is already buffered.
func (r *Recorder) Run(ctx context.Context) {
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-r.ch:
					if !ok {
						return
					}
					r.record(context.Background(), ev)
				default:
					return
				}
			}
		case ev, ok := <-r.ch:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				// select picks randomly once both cases are ready.
				r.record(context.Background(), ev)
				continue
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	d, ok := ev.Data.(notifier.Delivery)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.store.AppendDelivery(ctx, FromNotifier(d)); err != nil {
		r.log.Warn("delivery log append failed", logx.String("id", d.ID), logx.Err(err))
	}
}

// FromNotifier converts a batch outcome to its stored form.
func FromNotifier(d notifier.Delivery) Delivery {
	return Delivery{
		ID:        d.ID,
		At:        d.At,
		Transport: d.Transport,
		Target:    d.Target,
		Subject:   d.Subject,
		Items:     d.Items,
		FirstID:   d.FirstID,
		LastID:    d.LastID,
		Error:     d.Error,
		TookMS:    d.Took.Milliseconds(),
	}
}
