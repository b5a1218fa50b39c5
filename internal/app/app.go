package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"feedwatch/internal/config"
	"feedwatch/internal/domain"
	"feedwatch/internal/eventbus"
	"feedwatch/internal/feed"
	"feedwatch/internal/metrics"
	"feedwatch/internal/notifier"
	"feedwatch/internal/observability/debug"
	"feedwatch/internal/poller"
	"feedwatch/internal/retention"
	"feedwatch/internal/runtime/sdnotify"
	"feedwatch/internal/runtime/supervisor"
	"feedwatch/internal/settings"
	"feedwatch/internal/storage"
	logx "feedwatch/pkg/logx"
)

// Version is stamped at build time with -ldflags "-X feedwatch/internal/app.Version=...".
var Version = "dev"

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	settings *settings.Store
	poller   *poller.Poller
	batcher  *notifier.Batcher // nil when no target is configured at startup
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	store     storage.Store
	recorder  *storage.Recorder
	retention *retention.Service
	debug     *debug.Server
	systemd   *sdnotify.Notifier

	sup *supervisor.Supervisor
	// aux outlives sup so the final drain on Stop is still recorded.
	aux *supervisor.Supervisor

	startedAt time.Time
}

type options struct {
	fetcher  feed.Fetcher
	sender   notifier.Sender
	registry *prometheus.Registry
	logger   logx.Logger
}

type Option func(*options)

// WithFetcher replaces the HTTP feed client.
func WithFetcher(f feed.Fetcher) Option { return func(o *options) { o.fetcher = f } }

// WithSender replaces the transport chosen from the notification target.
func WithSender(s notifier.Sender) Option { return func(o *options) { o.sender = s } }

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(o *options) { o.registry = reg } }

// WithLogger bypasses the configured log service.
func WithLogger(l logx.Logger) Option { return func(o *options) { o.logger = l } }

// New loads and validates the configuration and builds every component.
// Nothing runs until Start. All configuration problems wrap domain.ErrConfiguration.
func New(cfgPath string, ov config.Overrides, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath, ov)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	r, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	var logSvc *logx.Service
	log := o.logger
	if log.IsZero() {
		logSvc, log = logx.New(r.Logging)
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := config.Resolve(c)
		return err
	})

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      eventbus.New(),
		registry: o.registry,
		systemd:  sdnotify.New(r.SystemdNotify, log.With(logx.String("comp", "systemd"))),
	}
	if a.registry == nil {
		a.registry = metrics.NewRegistry()
	}
	a.metrics = metrics.New(a.registry)

	if a.settings, err = settings.New(r.Settings); err != nil {
		return nil, err
	}

	fetch := o.fetcher
	if fetch == nil {
		fc := r.Feed
		fc.Log = log.With(logx.String("comp", "feed"))
		c, err := feed.New(fc)
		if err != nil {
			return nil, err
		}
		fetch = c
	}
	a.poller, err = poller.New(poller.Config{PageSize: r.PageSize}, fetch, a.settings,
		log.With(logx.String("comp", "poller")), a.bus, a.metrics.PollerHooks())
	if err != nil {
		return nil, err
	}

	sender := o.sender
	if sender == nil {
		if sender, err = NewSender(r.Notify, log.With(logx.String("comp", "transport"))); err != nil {
			return nil, err
		}
	}
	if sender != nil {
		a.batcher, err = notifier.New(
			notifier.Config{Tick: r.Notify.Tick, HistorySize: r.Notify.HistorySize},
			sender, a.settings, log.With(logx.String("comp", "notifier")), a.bus, a.metrics.BatcherHooks())
		if err != nil {
			return nil, err
		}
	} else {
		log.Info("no notification target; items are only logged")
	}

	// Storage is opened in New so a bad DSN fails before anything runs.
	openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.store, err = storage.Open(openCtx, r.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if a.store != nil {
		a.recorder = storage.NewRecorder(a.store, a.bus, log.With(logx.String("comp", "recorder")))
		a.retention, err = retention.New(r.Retention, a.store, log.With(logx.String("comp", "retention")))
		if err != nil {
			_ = a.store.Close()
			return nil, err
		}
	}

	a.debug = debug.New(r.Debug, debug.Deps{Gatherer: a.registry, Status: func() any { return a.Status() }},
		log.With(logx.String("comp", "debug")))
	return a, nil
}

// Settings exposes the live settings store.
func (a *App) Settings() *settings.Store { return a.settings }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// handle is the orchestrator: log every emitted item, queue it when a target is set.
func (a *App) handle(_ context.Context, it domain.Item) {
	a.log.Info(it.String())
	if a.batcher == nil || a.settings.Snapshot().Target == "" {
		return
	}
	a.batcher.Enqueue(it)
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.startedAt = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.aux = supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(a.log))

	if a.recorder != nil {
		a.aux.Go0("storage.recorder", a.recorder.Run)
	}
	if a.retention != nil {
		if err := a.retention.Start(a.aux.Context()); err != nil {
			return err
		}
	}

	a.sup.Go("poller", func(c context.Context) error {
		return a.poller.Run(c, a.handle)
	})
	if a.batcher != nil {
		a.sup.Go("notifier.flush", a.batcher.Run)
	}

	// Debug-level trace of everything on the bus.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.debug.Start(a.sup.Context())
	a.sup.Go0("systemd.watchdog", a.systemd.RunWatchdog)
	a.systemd.Ready()

	snap := a.settings.Snapshot()
	a.log.Info("app started",
		logx.String("version", Version),
		logx.String("filters", snap.Filters.Describe()),
		logx.Bool("notify", a.batcher != nil),
		logx.Duration("poll_interval", snap.PollInterval()))
	return nil
}

// Stop cancels the loops, flushes what the batch policy still allows and
// releases resources. Every step is bounded so one component can't stall the
// whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.systemd.Stopping()

	// Cancel first so the poller stops emitting before the final drain.
	a.sup.Cancel()

	a.step(ctx, "loops", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	if a.batcher != nil {
		a.step(ctx, "notifier.drain", 10*time.Second, func(c context.Context) error {
			if n := a.batcher.Drain(c); n > 0 {
				a.log.Info("final flush", logx.Int("items", n))
			}
			return nil
		})
	}
	a.step(ctx, "debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	if a.retention != nil {
		a.step(ctx, "retention", 2*time.Second, a.retention.Stop)
	}
	a.step(ctx, "recorder", 2*time.Second, a.aux.Stop)
	if a.store != nil {
		a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs fn bounded by max (never beyond the caller's deadline).
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}

// Status is served on /status.
type Status struct {
	Version   string                  `json:"version"`
	StartedAt time.Time               `json:"started_at"`
	Settings  settings.Snapshot       `json:"settings"`
	Poller    poller.Status           `json:"poller"`
	Notifier  *notifier.Status        `json:"notifier,omitempty"`
	Retention *RetentionStatus        `json:"retention,omitempty"`
	Tasks     []supervisor.TaskStatus `json:"tasks,omitempty"`
}

type RetentionStatus struct {
	LastRun time.Time `json:"last_run,omitzero"`
	Removed int64     `json:"removed"`
	Error   string    `json:"error,omitempty"`
}

func (a *App) Status() Status {
	st := Status{
		Version:   Version,
		StartedAt: a.startedAt,
		Settings:  a.settings.Snapshot(),
		Poller:    a.poller.Status(),
	}
	if a.batcher != nil {
		ns := a.batcher.Status()
		st.Notifier = &ns
	}
	if a.retention != nil {
		at, n, err := a.retention.LastRun()
		rs := &RetentionStatus{LastRun: at, Removed: n}
		if err != nil {
			rs.Error = err.Error()
		}
		st.Retention = rs
	}
	if a.sup != nil {
		st.Tasks = append(a.sup.Snapshot(), a.aux.Snapshot()...)
	}
	return st
}
