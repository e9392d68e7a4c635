package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"internwatch/internal/config"
	"internwatch/internal/events"
	"internwatch/internal/fetch"
	"internwatch/internal/httpapi"
	"internwatch/internal/listing"
	"internwatch/internal/notify"
	"internwatch/internal/poll"
	"internwatch/internal/scheduler"
	"internwatch/internal/secrets"
	"internwatch/internal/store"
)

const lockFileName = "internwatch.lock"

type app struct {
	cfgPath string
	dataDir string
	dryRun  bool

	cfg    atomic.Value // config.Config
	store  store.Store
	hub    *events.Hub
	poller *poll.Poller
	log    zerolog.Logger
}

func newApp(cfg config.Config, cfgPath, dataDir string, dryRun bool, log zerolog.Logger) (*app, error) {
	st, err := store.Open(cfg.Storage.Driver, dataDir, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{
		cfgPath: cfgPath,
		dataDir: dataDir,
		dryRun:  dryRun,
		store:   st,
		hub:     events.NewHub(),
		log:     log,
	}
	r, err := a.buildRunner(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	a.cfg.Store(cfg)
	a.poller = poll.NewPoller(r, a.hub, log)
	return a, nil
}

func (a *app) Close() error { return a.store.Close() }

func (a *app) config() config.Config { return a.cfg.Load().(config.Config) }

// buildRunner wires a cycle for cfg on top of the shared store.
func (a *app) buildRunner(cfg config.Config) (*poll.Runner, error) {
	var limiter *fetch.HostLimiter
	if cfg.Source.RatePerMinute > 0 {
		limiter = fetch.NewHostLimiter(cfg.Source.RatePerMinute/60, 1)
	}
	src := fetch.New(fetch.Config{
		URL:       cfg.Source.URL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.SourceTimeout(),
	}, a.store, limiter, a.log)

	var n notify.Notifier = notify.Console{Log: a.log}
	if !a.dryRun {
		var err error
		if n, err = buildNotifier(cfg, a.log); err != nil {
			return nil, err
		}
	}

	r := &poll.Runner{
		Source:   src,
		Store:    a.store,
		Notifier: n,
		Format:   listing.Format(cfg.Source.Format),
		DryRun:   a.dryRun,
		LockPath: filepath.Join(a.dataDir, lockFileName),
		Log:      a.log,
	}
	return r, nil
}

func buildNotifier(cfg config.Config, log zerolog.Logger) (notify.Notifier, error) {
	var sinks notify.Multi

	if cfg.Email.Enabled {
		pw, err := secrets.ResolveSMTPPassword(cfg.Email.Password, cfg.Email.Username, cfg.Email.Server)
		if err != nil && !errors.Is(err, secrets.ErrNoPassword) {
			log.Warn().Err(err).Msg("keychain lookup failed")
		}
		m, err := notify.NewMailer(notify.MailConfig{
			Server:    cfg.Email.Server,
			Port:      cfg.Email.Port,
			StartTLS:  cfg.Email.StartTLS,
			Username:  cfg.Email.Username,
			Password:  pw,
			From:      cfg.Email.From,
			To:        cfg.Email.To,
			SourceURL: cfg.Source.PageURL,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}

	if cfg.Telegram.Enabled {
		t, err := notify.NewTelegram(notify.TelegramConfig{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, t)
	}

	if len(sinks) == 0 {
		log.Warn().Msg("no notifier enabled, new listings go to the log only")
		return notify.Console{Log: log}, nil
	}
	return sinks, nil
}

func scheduleOf(cfg config.Config) scheduler.Spec {
	return scheduler.Spec{Every: cfg.PollInterval(), Cron: cfg.Polling.Cron}
}

// serve runs the poller, the config watcher and the optional HTTP server
// until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	reschedule := make(chan struct{}, 1)

	g.Go(func() error { return a.pollLoop(ctx, reschedule) })

	g.Go(func() error {
		return config.Watch(ctx, a.cfgPath,
			func() (config.Config, error) {
				cfg, _, err := loadConfig(a.cfgPath)
				return cfg, err
			},
			func(cfg config.Config) { a.reload(cfg, reschedule) },
			func(err error) { a.log.Error().Err(err).Msg("config reload rejected") },
		)
	})

	if cfg := a.config(); cfg.HTTP.Enabled {
		srv, ln, err := a.listen(cfg.HTTP.Addr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error { return a.watchdog(ctx) })

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn().Err(err).Msg("sd_notify ready")
	} else if ok {
		a.log.Debug().Msg("notified systemd")
	}

	err := g.Wait()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

func (a *app) pollLoop(ctx context.Context, reschedule <-chan struct{}) error {
	for {
		lctx, cancel := context.WithCancel(ctx)
		errc := make(chan error, 1)
		spec := scheduleOf(a.config())
		go func() { errc <- a.poller.Run(lctx, spec) }()

		select {
		case <-ctx.Done():
			cancel()
			<-errc
			return nil
		case <-reschedule:
			cancel()
			<-errc
			a.log.Info().Dur("every", spec.Every).Str("cron", a.config().Polling.Cron).Msg("schedule changed")
		case err := <-errc:
			cancel()
			return err
		}
	}
}

// reload swaps in a new runner. Storage and HTTP settings need a restart.
func (a *app) reload(cfg config.Config, reschedule chan<- struct{}) {
	prev := a.config()
	r, err := a.buildRunner(cfg)
	if err != nil {
		a.log.Error().Err(err).Msg("config reload rejected")
		return
	}
	a.cfg.Store(cfg)
	a.poller.SetRunner(r)
	a.log.Info().Str("config", a.cfgPath).Msg("config reloaded")

	if prev.Storage != cfg.Storage || prev.HTTP != cfg.HTTP {
		a.log.Warn().Msg("storage and http changes apply after restart")
	}
	if scheduleOf(prev) != scheduleOf(cfg) {
		select {
		case reschedule <- struct{}{}:
		default:
		}
	}
}

func (a *app) listen(addr string) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	a.log.Info().Str("addr", "http://"+ln.Addr().String()).Msg("status api listening")
	srv := &http.Server{
		Handler: httpapi.NewHandler(httpapi.Deps{
			Poller:  a.poller,
			Hub:     a.hub,
			Config:  a.config,
			Version: version,
			Log:     a.log.With().Str("component", "http").Logger(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv, ln, nil
}

// watchdog pings systemd when WatchdogSec is set on the unit.
func (a *app) watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
