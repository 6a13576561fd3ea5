// Package app wires the components together: config, logging, store,
// gateway, dispatcher, router, admin surface, maintenance and metrics.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wardenbot/internal/admin"
	"wardenbot/internal/config"
	"wardenbot/internal/dispatch"
	"wardenbot/internal/guildconf"
	"wardenbot/internal/maint"
	"wardenbot/internal/observability/metrics"
	"wardenbot/internal/router"
	"wardenbot/internal/runtime/supervisor"
	"wardenbot/internal/transport"
	"wardenbot/internal/transport/telegram"
	"wardenbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	store   guildconf.Store
	gateway transport.Gateway
	disp    *dispatch.Service
	router  *router.Router
	admin   *admin.Service
	maint   *maint.Service
	metrics *metrics.Service

	events chan transport.Event

	runMu     sync.Mutex
	runCancel context.CancelFunc
	sup       *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	envOverrides, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(envOverrides)

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := guildconf.Open(guildconf.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	gw, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	dispMetrics := dispatch.NewMetrics(reg)

	sendTimeout, err := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		RatePerSec:  cfg.Dispatch.RatePerSec,
		SendTimeout: sendTimeout,
	}, gw, log.With(logx.String("comp", "dispatch")), dispMetrics)

	rtr := router.New(store, gw, disp, log.With(logx.String("comp", "router")))
	adm := admin.New(store, gw, log.With(logx.String("comp", "admin")))
	mnt := maint.New(cfg.Maintenance.Schedule, store, log.With(logx.String("comp", "maint")))
	mtx := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Pprof:   cfg.Metrics.Pprof,
	}, reg, log.With(logx.String("comp", "metrics")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		store:   store,
		gateway: gw,
		disp:    disp,
		router:  rtr,
		admin:   adm,
		maint:   mnt,
		metrics: mtx,
		events:  make(chan transport.Event, 256),
	}, nil
}

// Admin exposes the command surface to the command-parsing layer.
func (a *App) Admin() *admin.Service { return a.admin }

// Store exposes the tenant store (read side) to collaborators such as the
// prefix-aware command parser.
func (a *App) Store() guildconf.Store { return a.store }

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.runCancel != nil {
		a.runMu.Unlock()
		return nil
	}
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.sup = supervisor.New(rctx, a.log.With(logx.String("comp", "supervisor")))
	a.runMu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.gateway.Start(rctx, a.events); err != nil {
		cancel()
		return err
	}
	a.disp.Start(rctx)

	a.sup.Go("router", func(ctx context.Context) error {
		return a.router.Run(ctx, a.events)
	})

	if err := a.maint.Start(rctx); err != nil {
		a.log.Warn("maintenance scheduler not started", logx.Err(err))
	}
	if err := a.metrics.Start(rctx); err != nil {
		a.log.Warn("metrics listener not started", logx.Err(err))
	}

	// Hot-reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config-reload", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyReload(newCfg)
			}
		}
	})
	a.sup.GoRestart("config-watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})

	a.log.Info("app started")
	return nil
}

// applyReload applies the hot-reloadable subset of the config: log sinks,
// log level and dispatcher tuning. Store driver, token and listeners need
// a restart.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	sendTimeout, err := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 10*time.Second)
	if err != nil {
		a.log.Warn("invalid dispatch.send_timeout; keeping default", logx.Err(err))
		sendTimeout = 10 * time.Second
	}
	a.disp.Apply(dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		RatePerSec:  cfg.Dispatch.RatePerSec,
		SendTimeout: sendTimeout,
	})
	a.log.Info("config reapplied")
}

func validate(cfg *config.Config) error {
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("dispatch.send_timeout", cfg.Dispatch.SendTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout); err != nil {
		return err
	}
	if cfg.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must be >= 0")
	}
	if spec := cfg.Maintenance.Schedule; spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("maintenance.schedule: invalid cron spec %q: %w", spec, err)
		}
	}
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	a.log.Info("stopping")
	cancel()

	// Bounded shutdown steps so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context)) {
		sctx, scancel := context.WithTimeout(ctx, max)
		defer scancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(sctx)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("gateway", 2*time.Second, func(c context.Context) { _ = a.gateway.Stop(c) })
	step("dispatch", 2*time.Second, func(c context.Context) { a.disp.Stop(c) })
	step("maint", time.Second, func(c context.Context) { a.maint.Stop(c) })
	step("metrics", time.Second, func(c context.Context) { a.metrics.Stop(c) })

	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.runMu.Unlock()
	if sup != nil {
		wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := sup.Stop(wctx); err != nil {
			a.log.Warn("background loops did not unwind cleanly", logx.Err(err))
		}
		wcancel()
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
