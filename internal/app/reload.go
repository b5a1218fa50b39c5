package app

import (
	"context"
	"strings"

	"feedwatch/internal/config"
	"feedwatch/internal/settings"
	logx "feedwatch/pkg/logx"
)

// reloadLoop applies every committed config. Only the newest pending config
// in a burst is applied.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
		coalesce:
			for {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						newCfg = newer
					}
				default:
					break coalesce
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the live sections of next into the running components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	r, err := config.Resolve(next)
	if err != nil {
		// The manager validates before commit, so this only trips on a
		// manager without a validator.
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	a.systemd.Reloading()
	defer a.systemd.Ready()

	if _, err := a.settings.Update(func(s *settings.Snapshot) {
		v := s.Version
		*s = r.Settings
		s.Version = v
	}); err != nil {
		a.log.Warn("settings rejected; keeping previous", logx.Err(err))
	}

	if a.logs != nil {
		a.logs.Apply(r.Logging)
	}
	a.debug.Reconfigure(ctx, r.Debug)

	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
