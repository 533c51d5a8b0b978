package app

import (
	"context"
	"strings"

	"homebot/internal/config"
	logx "homebot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the live-reloadable sections into running components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.dir.Replace(userDisplayMap(newCfg))

	if set, as, err := mapSessionSettings(newCfg); err != nil {
		a.log.Warn("invalid assistant config; keeping previous", logx.Err(err))
	} else {
		a.runner.Apply(set)
		a.disp.SetLocation(as.Location)
		a.parser.SetLocation(as.Location)
		a.stranger.SetSnapshotDir(as.SnapshotDir)
		a.sched.Apply(mapSchedulerConfig(newCfg))
	}

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid alerts config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if engCfg, err := mapTaskEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
	}

	if d, err := newCfg.DispatchTimeout(); err == nil {
		a.armer.SetTimeout(d)
	}
	if every, err := newCfg.SweepInterval(); err == nil && every != a.sweepEvery {
		if err := a.sweeper.Register(a.sched, every); err != nil {
			a.log.Warn("sweep re-register failed", logx.Err(err))
		} else {
			a.sweepEvery = every
		}
	}

	a.log.Info("config reloaded", fields...)
}
