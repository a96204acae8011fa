// Package app wires the agent: configuration, logging, the log store and
// its collaborators, the task catalog, the scheduler and the status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"immowatch/internal/config"
	"immowatch/internal/eventbus"
	"immowatch/internal/logstore"
	"immowatch/internal/mailer"
	"immowatch/internal/runtime/supervisor"
	"immowatch/internal/scraper"
	"immowatch/internal/server"
	"immowatch/internal/storage"
	"immowatch/internal/syncer"
	"immowatch/internal/task/scheduler"
	"immowatch/internal/tasks"
	"immowatch/internal/transport/telegram"
	logx "immowatch/pkg/logx"
	"immowatch/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	loc  *time.Location

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	hist storage.Store

	store   *logstore.Store
	github  *syncer.GitHub
	mail    *mailer.SMTP
	tg      *telegram.Client
	scraper *scraper.Client

	cat   *tasks.Catalog
	sched *scheduler.Scheduler
	srv   *server.Server

	sup *supervisor.Supervisor
}

// New loads the config at path and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := scheduler.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	tg, err := telegram.New(telegram.Config{
		Token:  cfg.Telegram.Token,
		ChatID: cfg.Telegram.ChatID,
		URL:    cfg.Telegram.URL,
	}, bootLog.With(logx.String("comp", "telegram")))
	if err != nil && !errors.Is(err, telegram.ErrNotConfigured) {
		return nil, err
	}

	// A nil *Client must not become a non-nil Sender.
	var sender logx.Sender
	if tg != nil {
		sender = tg
	}
	logSvc, log := logx.New(mapLogConfig(cfg, tg != nil && cfg.Telegram.ChatID != 0), sender)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	if !cfgm.FromFile() {
		log.Info("config file not found; using defaults", logx.String("path", cfgPath))
	}

	var hist storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		hist = st
		log.Info("run history enabled", logx.String("driver", sc.Driver))
	}

	gh, err := syncer.New(syncer.Config{
		Owner:    cfg.Sync.Owner,
		Repo:     cfg.Sync.Repo,
		Branch:   cfg.Sync.Branch,
		Token:    cfg.Sync.Token,
		BaseURL:  cfg.Sync.BaseURL,
		Timeout:  config.MustDuration(cfg.Sync.Timeout, 10*time.Second),
		Location: loc,
	}, log.With(logx.String("comp", "syncer")))
	if err != nil {
		return nil, err
	}
	if !gh.Enabled() {
		log.Info("remote sync disabled", logx.Bool("token_set", cfg.Sync.Token != ""), logx.String("repo", gh.Repo()))
	}

	store, err := logstore.New(mapStoreConfig(cfg), gh, log.With(logx.String("comp", "logstore")))
	if err != nil {
		return nil, err
	}

	mail := mailer.New(mailer.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		User:     cfg.Mail.User,
		Password: cfg.Mail.Password,
		FromName: cfg.Mail.FromName,
		Timeout:  config.MustDuration(cfg.Mail.Timeout, 30*time.Second),
	}, log.With(logx.String("comp", "mailer")))

	bus := eventbus.New()
	deps := tasks.Deps{Store: store, Mailer: mail, Bus: bus, Log: log}
	if tg != nil && cfg.Telegram.ChatID != 0 {
		deps.Notifier = tg
	}
	cat := tasks.New(mapCatalogConfig(cfg, loc), deps)

	sched, err := scheduler.New(mapSchedulerConfig(cfg, loc), func(ctx context.Context, group string) error {
		return cat.Run(ctx, group, tasks.TriggerSchedule)
	}, log,
		scheduler.WithHeartbeat(systemd.Watchdog),
		scheduler.WithFailureHook(func(ctx context.Context, rule, group string, err error) {
			cat.Record(ctx, fmt.Sprintf("scheduler error (%s): %v", rule, err))
		}),
	)
	if err != nil {
		return nil, err
	}

	srv := server.New(server.Config{
		Addr:            server.Addr(cfg.Server.Host, cfg.Server.Port),
		Repo:            gh.Repo(),
		JournalTail:     cfg.Server.JournalTail,
		WatchTail:       cfg.Server.WatchTail,
		RecentRuns:      cfg.Server.RecentRuns,
		ReadTimeout:     config.MustDuration(cfg.Server.ReadTimeout, 10*time.Second),
		ShutdownTimeout: config.MustDuration(cfg.Server.ShutdownTimeout, 5*time.Second),
	}, server.Deps{Catalog: cat, Store: store, Schedules: sched, History: hist, Log: log})

	sc := scraper.New(scraper.Config{
		Token:          cfg.Scraper.Token,
		BaseURL:        cfg.Scraper.BaseURL,
		StartTimeout:   config.MustDuration(cfg.Scraper.StartTimeout, 30*time.Second),
		StatusTimeout:  config.MustDuration(cfg.Scraper.StatusTimeout, 10*time.Second),
		ResultsTimeout: config.MustDuration(cfg.Scraper.ResultsTimeout, 60*time.Second),
	}, log)

	return &App{
		cfgm:    cfgm,
		cfg:     cfg,
		loc:     loc,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		hist:    hist,
		store:   store,
		github:  gh,
		mail:    mail,
		tg:      tg,
		scraper: sc,
		cat:     cat,
		sched:   sched,
		srv:     srv,
	}, nil
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) Logger() logx.Logger { return a.log }
func (a *App) Store() *logstore.Store { return a.store }
func (a *App) Catalog() *tasks.Catalog { return a.cat }
func (a *App) Scraper() *scraper.Client { return a.scraper }
func (a *App) History() storage.Store { return a.hist }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start bootstraps the files, then runs the scheduler, the status server
// and the config watcher in the background.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetValidator(validateReload)

	if err := a.bootstrap(a.sup.Context()); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("history", func(c context.Context) {
		defer unsub()
		a.recordHistory(c, events)
	})

	a.sup.Go("scheduler", a.sched.Run)
	a.sup.GoRestart("server", a.srv.Serve,
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithMaxRestarts(5),
	)

	if every := systemd.WatchdogInterval() / 2; every > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					systemd.Watchdog()
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	systemd.Ready()
	systemd.Status("watching " + strings.Join(a.cfg.Watch.Localities, ", "))
	a.log.Info("app started", logx.String("addr", server.Addr(a.cfg.Server.Host, a.cfg.Server.Port)), logx.String("tz", a.loc.String()))
	return nil
}

// bootstrap creates missing files with a header and pushes the new ones.
func (a *App) bootstrap(ctx context.Context) error {
	stamp := a.cat.Now().Format("2006-01-02 15:04")
	for _, name := range allFiles {
		file := a.store.FileName(name)
		created, err := a.store.Ensure(name, "# "+file+"\nCreated "+stamp+"\n")
		if err != nil {
			return err
		}
		if created {
			a.log.Debug("file created", logx.String("file", file))
			a.store.Push(ctx, name)
		}
	}
	a.cat.Record(ctx, "immowatch started")
	a.cat.Record(ctx, fmt.Sprintf("status server on port %d", a.cfg.Server.Port))
	return nil
}

// RunTask runs one task or group in the foreground (CLI) and records it
// in the run history.
func (a *App) RunTask(ctx context.Context, name string) error {
	events, unsub := a.bus.Subscribe(8)
	err := a.cat.Run(ctx, name, tasks.TriggerCLI)
	unsub()
	for e := range events {
		a.persist(ctx, e)
	}
	return err
}

func (a *App) recordHistory(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			a.persist(ctx, e)
		}
	}
}

func (a *App) persist(ctx context.Context, e eventbus.Event) {
	if e.Type != eventbus.TaskFinished || a.hist == nil {
		return
	}
	rec, ok := e.Data.(storage.RunRecord)
	if !ok {
		return
	}
	if err := a.hist.AppendRun(context.WithoutCancel(ctx), rec); err != nil {
		a.log.Warn("run history append failed", logx.String("task", rec.Task), logx.Err(err))
	}
}

// validateReload rejects a reloaded config whose rules would not build.
func validateReload(_ context.Context, cfg *config.Config) error {
	loc, err := scheduler.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	noop := func(context.Context, string) error { return nil }
	if _, err := scheduler.New(mapSchedulerConfig(cfg, loc), noop, logx.Nop()); err != nil {
		return err
	}
	_, _, err = mapStorageConfig(cfg)
	return err
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Keep only the newest config of a burst.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, newCfg)
			last = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	live, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(live) == 0 && len(restart) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg, a.tg != nil && a.cfg.Telegram.ChatID != 0))
	a.cat.SetReport(mapReportConfig(newCfg))

	if len(restart) > 0 {
		a.log.Warn("config changes need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(live, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels every loop and waits for each step within a bound.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		err := a.closeResources()
		_ = a.logs.Close()
		return err
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping()
	a.sup.Cancel()

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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The server shuts down, and the scheduler finishes its current group, inside the supervisor wait.
	step("supervisor", 10*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.closeResources() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeResources() error {
	if a.hist != nil {
		return a.hist.Close()
	}
	return nil
}
