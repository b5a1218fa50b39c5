package notifier

import (
	"context"
	"errors"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/settings"
)

var ErrNoSender = errors.New("notifier: no sender configured")

// Sender delivers one composed batch. Implementations own their timeouts.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Name() string                                { return "func" }
func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Message is one composed batch.
type Message struct {
	Subject string
	Text    string
	HTML    string
	// Target is the notification address at compose time.
	Target  string
	Filters settings.Filters
	Items   []domain.Item
}

// Source provides settings snapshots.
type Source interface {
	Snapshot() settings.Snapshot
}

// Config holds knobs that are not part of the batch policy.
type Config struct {
	// Tick is the flush-condition polling period. Default 1s.
	Tick time.Duration
	// HistorySize bounds the in-memory delivery history. Default 100.
	HistorySize int
}

// Hooks are optional observation callbacks (metrics).
type Hooks struct {
	OnEnqueue func(depth int)
	OnFlush   func(d Delivery, depth int)
}

// Delivery is the outcome of one flush.
type Delivery struct {
	ID        string        `json:"id"`
	At        time.Time     `json:"at"`
	Transport string        `json:"transport"`
	Target    string        `json:"target"`
	Subject   string        `json:"subject"`
	Items     int           `json:"items"`
	FirstID   string        `json:"first_id,omitempty"`
	LastID    string        `json:"last_id,omitempty"`
	Error     string        `json:"error,omitempty"`
	Took      time.Duration `json:"took"`
}

// OK reports whether the batch was handed to the transport.
func (d Delivery) OK() bool { return d.Error == "" }

// Status is a point-in-time view for /status.
type Status struct {
	QueueLen  int        `json:"queue_len"`
	LastFlush time.Time  `json:"last_flush"`
	Sent      uint64     `json:"sent"`
	Failed    uint64     `json:"failed"`
	Dropped   uint64     `json:"dropped_items"`
	History   []Delivery `json:"history"`
}
