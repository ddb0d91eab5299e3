package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mpvtrakt/mpvtrakt/internal/app"
	"github.com/mpvtrakt/mpvtrakt/internal/auth"
	"github.com/mpvtrakt/mpvtrakt/internal/config"
	"github.com/mpvtrakt/mpvtrakt/internal/logging"
	"github.com/mpvtrakt/mpvtrakt/internal/playback"
	"github.com/mpvtrakt/mpvtrakt/internal/player"
	"github.com/mpvtrakt/mpvtrakt/internal/scrobble"
	"github.com/mpvtrakt/mpvtrakt/internal/scrobble/trakt"
	"github.com/mpvtrakt/mpvtrakt/internal/status"
	"github.com/mpvtrakt/mpvtrakt/internal/store"
	"github.com/mpvtrakt/mpvtrakt/internal/title"
	"github.com/mpvtrakt/mpvtrakt/internal/ui"
)

var version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `mpvtrakt - scrobble what mpv plays to trakt

Usage: mpvtrakt [options]

Options:
  --config string      Path to config file (default: ~/.config/mpvtrakt/config.toml)
  --ipc-path string    mpv IPC socket or pipe, overrides ipc_path
  --tui                Show the status dashboard while running
  --theme string       Dashboard theme: %v
  --version            Print version and exit

Authorization:
  --device-auth        Authorize with a device code, then keep running
  --code string        Exchange an authorization code, then keep running

Diagnostics:
  --doctor             Check configuration, mpv endpoint and token
  --history int        Print the last N scrobbles and exit

Examples:
  mpvtrakt --device-auth        # first run
  mpvtrakt --tui                # run with dashboard
  mpvtrakt --history 20         # what was sent recently

`, ui.ThemeNames())
	}

	cfgPath := flag.String("config", "", "")
	ipcPath := flag.String("ipc-path", "", "")
	tui := flag.Bool("tui", false, "")
	themeName := flag.String("theme", "default", "")
	showVersion := flag.Bool("version", false, "")
	deviceAuth := flag.Bool("device-auth", false, "")
	code := flag.String("code", "", "")
	doctor := flag.Bool("doctor", false, "")
	history := flag.Int("history", 0, "")
	flag.Parse()

	if *showVersion {
		fmt.Println("mpvtrakt", version)
		return
	}

	cfg, resolvedPath, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *ipcPath != "" {
		cfg.IPCPath = *ipcPath
	}
	// the dashboard owns the terminal
	logger, logFile, err := logging.Setup(cfg.Log.Level, cfg.Log.Stderr && !*tui)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	logger.Info("starting mpvtrakt", slog.String("version", version), slog.String("config", resolvedPath))

	// NO_COLOR env var support
	theme := ui.GetTheme(*themeName, os.Getenv("NO_COLOR") != "")

	st, err := store.Open("")
	if err != nil {
		logger.Error("open state db", slog.Any("err", err))
		log.Fatalf("open state db: %v", err)
	}
	defer st.Close()

	authn := auth.New(auth.Config{
		BaseURL:      cfg.Trakt.BaseURL,
		ClientID:     cfg.Trakt.ClientID,
		ClientSecret: cfg.Trakt.ClientSecret,
		Store:        st,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *doctor {
		runDoctor(ctx, cfg, resolvedPath, authn, theme, logger)
		return
	}

	if *history > 0 {
		entries, err := st.RecentHistory(ctx, *history)
		if err != nil {
			log.Fatalf("read history: %v", err)
		}
		fmt.Print(app.RenderHistory(entries, theme, time.Now()))
		return
	}

	if err := authorize(ctx, authn, *code, *deviceAuth); err != nil {
		logger.Error("authorize", slog.Any("err", err))
		if errors.Is(err, auth.ErrNoCredential) {
			log.Fatalf("no trakt token stored: run `mpvtrakt --device-auth` or `mpvtrakt --code <code>` once")
		}
		log.Fatalf("authorize: %v", err)
	}

	path, err := player.ResolveIPCPath(cfg.IPCPath, cfg.MPVConfig)
	if err != nil {
		logger.Error("resolve ipc path", slog.Any("err", err))
		log.Fatalf("resolve mpv ipc path: %v (set ipc_path or add input-ipc-server=<path> to mpv.conf)", err)
	}

	hub := status.NewHub(path)
	client := trakt.New(trakt.Config{
		BaseURL:    cfg.Trakt.BaseURL,
		ClientID:   cfg.Trakt.ClientID,
		AppVersion: version,
		Tokens:     authn,
	})
	pipeline := scrobble.NewPipeline(scrobble.PipelineOptions{
		Filter: playback.DirFilter{
			Monitored: cfg.MonitoredDirectories,
			Excluded:  cfg.ExcludedDirectories,
		},
		Thresholds: scrobble.Thresholds{
			MinPercent:       cfg.MinPercent,
			MinWatchFraction: cfg.WatchFactor(),
		},
		Titles:   title.Resolver{ReadTags: cfg.ReadTags(), Logger: logger},
		IDs:      scrobble.NewIDCache(st, client, logger),
		Poster:   client,
		History:  st,
		OnResult: hub.SetSync,
		Logger:   logger,
	})
	tracker := playback.NewTracker(ctx, playback.Options{
		Sync:     pipeline.Sync,
		Logger:   logger,
		Debounce: cfg.DebounceDelay(),
		Refresh:  cfg.RefreshInterval(),
		OnChange: hub.SetPlayback,
	})
	defer tracker.Close()

	monitor := player.New(player.Options{
		Transport:             player.NewTransport(path),
		Handler:               tracker,
		Logger:                logger,
		PollInterval:          cfg.PollInterval(),
		SettleDelay:           cfg.SettleDelay(),
		MaxConcurrentHandlers: cfg.MaxConcurrentHandlers,
		OnStateChange:         func(s player.State) { hub.SetConnection(s.String()) },
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })
	if cfg.Status.Listen != "" {
		g.Go(func() error { return status.Serve(gctx, cfg.Status.Listen, hub, logger) })
	}
	if *tui {
		g.Go(func() error {
			// quitting the dashboard stops the daemon
			defer stop()
			return runDashboard(gctx, hub, theme)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("exiting", slog.Any("err", err))
		tracker.Close()
		log.Fatalf("mpvtrakt: %v", err)
	}
	logger.Info("shutdown complete")
}

// authorize obtains a token when asked to and otherwise checks one is stored.
func authorize(ctx context.Context, a *auth.Authenticator, code string, device bool) error {
	switch {
	case code != "":
		return a.Exchange(ctx, code)
	case device:
		return a.DeviceAuthorize(ctx, func(dc auth.DeviceCode) {
			fmt.Printf("Open %s and enter the code %s\n", dc.VerificationURL, dc.UserCode)
		})
	}
	ok, err := a.HasToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrNoCredential
	}
	return nil
}

func runDashboard(ctx context.Context, hub *status.Hub, theme ui.Theme) error {
	model, cancel := app.New(hub, theme)
	defer cancel()
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func runDoctor(ctx context.Context, cfg *config.Config, cfgPath string, a *auth.Authenticator, theme ui.Theme, logger *slog.Logger) {
	checks := []app.Check{{Name: "Config file", OK: true, Detail: cfgPath}}

	path, err := player.ResolveIPCPath(cfg.IPCPath, cfg.MPVConfig)
	if err != nil {
		checks = append(checks, app.Check{Name: "mpv IPC path", Detail: err.Error()})
	} else {
		checks = append(checks, app.Check{Name: "mpv IPC path", OK: true, Detail: path})
		running := player.NewTransport(path).Probe()
		detail := "mpv is listening"
		if !running {
			detail = "mpv not running, will wait for it"
		}
		checks = append(checks, app.Check{Name: "mpv endpoint", OK: running, Optional: true, Detail: detail})
	}

	ok, err := a.HasToken(ctx)
	switch {
	case err != nil:
		checks = append(checks, app.Check{Name: "trakt token", Detail: err.Error()})
	case !ok:
		checks = append(checks, app.Check{Name: "trakt token", Detail: "run mpvtrakt --device-auth"})
	default:
		checks = append(checks, app.Check{Name: "trakt token", OK: true})
	}

	if dbPath, err := store.DefaultPath(); err == nil {
		checks = append(checks, app.Check{Name: "State database", OK: true, Detail: dbPath})
	}
	checks = append(checks, app.Check{Name: "Log directory", OK: true, Detail: logging.StateDir()})

	out, healthy := app.RenderDoctor(checks, theme)
	fmt.Print(out)
	logger.Info("doctor complete", slog.Bool("healthy", healthy))
}
