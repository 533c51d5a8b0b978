package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homebot/internal/assistant"
	"homebot/internal/capability"
	"homebot/internal/chat"
	"homebot/internal/config"
	"homebot/internal/conversation"
	"homebot/internal/datetime"
	"homebot/internal/eventbus"
	"homebot/internal/ingest"
	"homebot/internal/notifier"
	"homebot/internal/reminder"
	rtsup "homebot/internal/runtime/supervisor"
	"homebot/internal/storage"
	"homebot/internal/stranger"
	"homebot/internal/task/engine"
	"homebot/internal/task/scheduler"
	kit "homebot/internal/transport"
	telegram "homebot/internal/transport/telegram/adapter"
	"homebot/internal/users"
	logx "homebot/pkg/logx"
	"homebot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter // nil when telegram.token is empty

	engine   *engine.Service
	sched    *scheduler.Service
	notif    *notifier.Service
	dir      *users.Directory
	parser   *datetime.Parser
	disp     *reminder.Dispatcher
	armer    *reminder.Armer
	sweeper  *reminder.Sweeper
	runner   *conversation.Runner
	stranger *stranger.Handler
	asst     *assistant.Assistant
	ingest   *ingest.Service

	sweepEvery time.Duration
	ingestCfg  ingest.Config
}

// Options override the capabilities built from config. Zero fields keep the
// config-selected implementation.
type Options struct {
	Speaker   capability.Speaker
	Listener  capability.Listener
	Responder capability.Responder
}

func NewApp(ctx context.Context, cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, root := logx.New(mapLogConfig(cfg), nil)

	// The owner log sink starts without a channel and gets the adapter once built.
	var ad *telegram.Adapter
	var alertSender kit.Sender
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		ad, err = telegram.New(telegram.Config{
			Token: cfg.Telegram.Token,
			Owner: kit.ChatTarget{ChatID: cfg.Telegram.OwnerChatID, ThreadID: cfg.Telegram.ThreadID},
		}, root.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		logSvc.SetSender(ad)
		alertSender = ad
	}
	log := root.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc, err := MapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(ctx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	// Everything below must close the store on failure.
	a, err := build(cfg, opts, root, store, bus, alertSender)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	a.cfgm = cfgm
	a.log = log
	a.logs = logSvc
	a.adapter = ad
	log.Info("app configured",
		logx.String("storage", sc.Driver),
		logx.Int("users", len(cfg.Users)),
		logx.Bool("telegram", ad != nil),
		logx.Bool("ingest", cfg.Ingest.Enabled),
	)
	return a, nil
}

func build(cfg *config.Config, opts Options, root logx.Logger, store storage.Store, bus eventbus.Bus, alertSender kit.Sender) (*App, error) {
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	icfg, err := mapIngestConfig(cfg)
	if err != nil {
		return nil, err
	}
	set, as, err := mapSessionSettings(cfg)
	if err != nil {
		return nil, err
	}
	dispatchTimeout, err := cfg.DispatchTimeout()
	if err != nil {
		return nil, err
	}
	sweepEvery, err := cfg.SweepInterval()
	if err != nil {
		return nil, err
	}

	speaker := opts.Speaker
	if speaker == nil {
		if speaker, err = buildSpeaker(cfg, comp("voice")); err != nil {
			return nil, err
		}
	}
	listener := opts.Listener
	if listener == nil {
		if listener, err = buildListener(cfg); err != nil {
			return nil, err
		}
	}
	responder := opts.Responder
	if responder == nil {
		ccfg, err := mapChatConfig(cfg)
		if err != nil {
			return nil, err
		}
		if responder, err = chat.New(ccfg, comp("chat")); err != nil {
			return nil, err
		}
	}

	engineSvc := engine.New(engCfg, comp("taskengine"), bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), engineSvc, comp("scheduler"))
	notifSvc := notifier.New(ncfg, alertSender, comp("notifier"), bus)
	dir := users.New(userDisplayMap(cfg))
	parser := datetime.New(as.Location)

	disp := reminder.NewDispatcher(reminder.DispatcherDeps{
		Store:     store,
		Speaker:   speaker,
		Alerter:   notifSvc,
		Directory: dir,
		Location:  as.Location,
		Log:       comp("reminder"),
		Bus:       bus,
	})
	armer := reminder.NewArmer(schedSvc, disp, dispatchTimeout)
	sweeper := reminder.NewSweeper(store, armer, capability.SystemClock{}, comp("sweeper"))

	runner := conversation.NewRunner(conversation.Deps{
		Store:     store,
		Arm:       armer,
		Speaker:   speaker,
		Listener:  listener,
		Parser:    parser,
		Responder: responder,
		Directory: dir,
		Log:       comp("session"),
		Bus:       bus,
	}, set)
	sh := stranger.New(stranger.Deps{
		Alerter: notifSvc,
		Speaker: speaker,
		Log:     comp("stranger"),
		Bus:     bus,
	}, as.SnapshotDir)

	a := &App{
		bus:        bus,
		store:      store,
		engine:     engineSvc,
		sched:      schedSvc,
		notif:      notifSvc,
		dir:        dir,
		parser:     parser,
		disp:       disp,
		armer:      armer,
		sweeper:    sweeper,
		runner:     runner,
		stranger:   sh,
		sweepEvery: sweepEvery,
		ingestCfg:  icfg,
	}
	return a, nil
}

// Assistant returns the recognition entry point (nil before Start).
func (a *App) Assistant() *assistant.Assistant { return a.asst }

// Store returns the schedule store.
func (a *App) Store() storage.Store { return a.store }

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

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateReload(cfg) })

	a.engine.Start(runCtx)
	a.sched.Start(runCtx)

	if err := a.sweeper.Startup(runCtx); err != nil {
		// Keep running: the periodic sweep retries.
		a.log.Error("startup recovery failed", logx.Err(err))
	}
	if err := a.sweeper.Register(a.sched, a.sweepEvery); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	a.asst = assistant.New(runCtx, a.dir, a.runner, a.stranger, a.log)
	a.ingest = ingest.New(a.ingestCfg, a.asst, a.Status, a.log.With(logx.String("comp", "ingest")))
	a.ingest.Start(runCtx)

	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	if interval := systemd.WatchdogInterval(); interval > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.RunWatchdog(c, interval, a.log)
		})
	}
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started", logx.Duration("sweep_every", a.sweepEvery))
	return nil
}

// logEvents mirrors bus events to the debug log.
func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
		}
	}
}

// Status is the /v1/status payload.
type Status struct {
	Started     time.Time                           `json:"time"`
	Sessions    []string                            `json:"active_sessions"`
	Engine      engine.Snapshot                     `json:"engine"`
	Scheduler   scheduler.Snapshot                  `json:"scheduler"`
	Alerts      []notifier.HistoryItem              `json:"alerts"`
	Supervisors map[string]rtsup.SupervisorSnapshot `json:"supervisors"`
}

func (a *App) Status() any {
	st := Status{
		Started:     time.Now(),
		Sessions:    []string{},
		Engine:      a.engine.Snapshot(),
		Scheduler:   a.sched.Snapshot(),
		Alerts:      a.notif.History(),
		Supervisors: map[string]rtsup.SupervisorSnapshot{},
	}
	if a.asst != nil {
		st.Sessions = a.asst.ActiveSessions()
		st.Supervisors["assistant"] = a.asst.Supervisor().Snapshot()
	}
	if a.sup != nil {
		st.Supervisors["app"] = a.sup.Snapshot()
	}
	if sup := a.engine.Supervisor(); sup != nil {
		st.Supervisors["task.engine"] = sup.Snapshot()
	}
	if a.ingest != nil {
		if sup := a.ingest.Supervisor(); sup != nil {
			st.Supervisors["ingest"] = sup.Snapshot()
		}
	}
	return st
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd stopping notify failed", logx.Err(err))
	}

	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
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
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Ingest first so no new sessions start; the scheduler before the engine
	// so no trigger enqueues into a stopping pool.
	step("ingest", 2*time.Second, func(c context.Context) error {
		if a.ingest != nil {
			a.ingest.Stop(c)
		}
		return nil
	})
	step("assistant", 3*time.Second, func(c context.Context) error {
		if a.asst == nil {
			return nil
		}
		return a.asst.Stop(c)
	})
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
