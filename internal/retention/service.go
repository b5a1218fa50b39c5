// Package retention prunes the delivery log on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"feedwatch/internal/domain"
	"feedwatch/internal/storage"
	logx "feedwatch/pkg/logx"
)

const (
	DefaultSchedule  = "@daily"
	DefaultRetention = 30 * 24 * time.Hour
)

type Config struct {
	// Schedule is a 5-field cron spec or a descriptor (@daily, @every 6h).
	Schedule string
	// Retention is how long deliveries are kept. 0 means DefaultRetention.
	Retention time.Duration
	// Timeout bounds a single prune. Default 1m.
	Timeout time.Duration
}

// Pruner is the slice of storage.Store the service needs.
type Pruner interface {
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates spec the same way Start uses it.
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSchedule
	}
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("prune schedule %q: %v: %w", spec, err, domain.ErrConfiguration)
	}
	return s, nil
}

type Service struct {
	cfg   Config
	store Pruner
	log   logx.Logger
	now   func() time.Time

	mu     sync.Mutex
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	last struct {
		sync.Mutex
		at      time.Time
		removed int64
		err     error
	}
}

func New(cfg Config, store Pruner, log logx.Logger) (*Service, error) {
	if store == nil {
		return nil, storage.ErrDisabled
	}
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, log: log, now: time.Now}, nil
}

// Start schedules pruning until Stop or ctx cancellation.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	sched, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.c.Schedule(sched, cron.FuncJob(func() {
		_, _ = s.PruneOnce(s.ctx)
	}))
	s.c.Start()
	s.log.Info("retention scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("retention", s.cfg.Retention),
		logx.Time("next", sched.Next(s.now())))
	return nil
}

// Stop waits for a running prune up to ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PruneOnce removes deliveries older than the retention window.
func (s *Service) PruneOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.store.PruneDeliveries(ctx, cutoff)

	s.last.Lock()
	s.last.at, s.last.removed, s.last.err = s.now(), n, err
	s.last.Unlock()

	if err != nil {
		s.log.Warn("delivery prune failed", logx.Err(err))
		return 0, err
	}
	s.log.Debug("delivery log pruned", logx.Int64("removed", n), logx.Time("cutoff", cutoff))
	return n, nil
}

// LastRun reports the most recent prune outcome.
func (s *Service) LastRun() (at time.Time, removed int64, err error) {
	s.last.Lock()
	defer s.last.Unlock()
	return s.last.at, s.last.removed, s.last.err
}
