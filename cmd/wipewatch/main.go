package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/mmcdole/wipewatch/internal/adapter"
	"github.com/mmcdole/wipewatch/internal/adapter/source"
	"github.com/mmcdole/wipewatch/internal/adcache"
	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/library"
	"github.com/mmcdole/wipewatch/internal/metrics"
	"github.com/mmcdole/wipewatch/internal/outbox"
	"github.com/mmcdole/wipewatch/internal/paging"
	"github.com/mmcdole/wipewatch/internal/store"
	"github.com/mmcdole/wipewatch/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	cfgFile     string
	clearOutbox bool
	metricsAddr string
	flushStats  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "wipewatch",
		Short:         "Browse Rust servers and items, with offline favorites and wipe alerts",
		RunE:          runBrowse,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: ~/.config/wipewatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while browsing (e.g. localhost:9100)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached listings (and optionally unsent changes)",
		RunE:  runClear,
	}
	clearCmd.Flags().BoolVar(&clearOutbox, "outbox", false, "Also discard changes not yet delivered to the backend")

	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Deliver pending favorites, alerts and purchases now",
		RunE:  runFlush,
	}
	flushCmd.Flags().BoolVar(&flushStats, "stats", false, "Print delivery metrics after flushing")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "browse",
			Short: "Open the interactive browser (default)",
			RunE:  runBrowse,
		},
		flushCmd,
		&cobra.Command{
			Use:   "pending",
			Short: "List changes waiting for delivery",
			RunE:  runPending,
		},
		clearCmd,
		&cobra.Command{
			Use:   "setup",
			Short: "Store the backend URL and API token",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := adapter.LoadConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				return runSetupFlow(cfg)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("wipewatch %s\n", Version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired data layer shared by every command
type app struct {
	cfg     *adapter.Config
	logger  *slog.Logger
	closers []io.Closer

	backend  source.Backend
	store    *store.ListingStore
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	library *library.Service
	queries *library.Queries
	outbox  *outbox.Outbox
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// newFlusher builds a flusher that reports session rejections to session
func (a *app) newFlusher(session domain.SessionHandler) *outbox.Flusher {
	limiter := rate.NewLimiter(rate.Limit(a.cfg.Outbox.RatePerSecond), a.cfg.Outbox.Burst)
	return outbox.NewFlusher(a.backend, a.outbox, session, limiter, a.logger, a.metrics)
}

func setup() (*app, error) {
	cfg, err := adapter.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg}
	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	} else {
		a.closers = append(a.closers, closer)
	}
	slog.SetDefault(logger)
	a.logger = logger

	if !cfg.IsConfigured() {
		a.Close()
		return nil, fmt.Errorf("backend is not configured; run 'wipewatch setup'")
	}

	a.backend, err = source.NewClientFromConfig(cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	a.store, err = store.NewListingStore(cfg.CachePath(), cfg.API.URL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	a.closers = append(a.closers, a.store)

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	var mediators []*paging.Mediator
	for _, listID := range []string{domain.ListServers, domain.ListItems} {
		listing, err := a.backend.Listing(listID)
		if err != nil {
			a.Close()
			return nil, err
		}
		mediators = append(mediators, paging.NewMediator(listID, listing, a.store, cfg.Paging.SortKey, logger, a.metrics))
	}

	a.library = library.NewService(cfg.Paging.PageSize, logger, mediators...)
	a.queries = library.NewQueries(a.store)
	a.outbox = outbox.New(a.store, logger, a.metrics)

	logger.Info("starting wipewatch", "version", Version, "cache", cfg.CachePath())
	return a, nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("browse needs an interactive terminal; try 'wipewatch flush' or 'wipewatch pending'")
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sessions := make(chan error, 1)
	flusher := a.newFlusher(tui.NewSessionObserver(sessions))

	var ads *adcache.Cache
	adSlot := ""
	if a.cfg.Ads.Enabled && len(a.cfg.Ads.Slots) > 0 {
		ads = adcache.New(a.backend, adcache.Config{
			Capacity:      a.cfg.Ads.Capacity,
			TTL:           a.cfg.Ads.TTL,
			SweepInterval: a.cfg.Ads.SweepInterval,
		}, a.logger, a.metrics)
		defer ads.Clear()
		for _, slot := range a.cfg.Ads.Slots {
			ads.Preload(slot)
		}
		adSlot = a.cfg.Ads.Slots[0]
	}

	tuiCfg := tui.Config{
		Library:  a.library,
		Queries:  a.queries,
		Outbox:   a.outbox,
		Flusher:  flusher,
		Launcher: adapter.NewLauncher(a.cfg.Client.Command, a.cfg.Client.Args, a.logger),
		AdSlot:   adSlot,
		Sessions: sessions,
		Logger:   a.logger,
	}
	if ads != nil {
		tuiCfg.Ads = ads
	}
	model := tui.NewModel(tuiCfg)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return flusher.Run(gctx, a.outbox.Enqueued(), a.cfg.Outbox.FlushInterval)
	})
	if ads != nil {
		g.Go(func() error { return ads.Run(gctx) })
	}
	if metricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, metricsAddr, a.registry, a.logger) })
	}
	g.Go(func() error {
		// Quitting the browser stops the background loops
		defer cancel()
		a.logger.Info("starting TUI")
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			a.logger.Error("TUI error", "error", err)
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.logger.Info("shutting down")
	return err
}

func runFlush(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	flusher := a.newFlusher(domain.SessionHandlerFunc(func(_ context.Context, err error) {
		a.logger.Warn("session rejected during flush", "error", err)
	}))
	res, err := flusher.Flush(ctx)
	if errors.Is(err, domain.ErrAuthFailed) {
		return fmt.Errorf("backend rejected the API token; run 'wipewatch setup'")
	}
	if err != nil {
		return err
	}

	fmt.Printf("Delivered %d change(s)", res.Delivered)
	if res.Failed > 0 {
		fmt.Printf(", %d still pending", res.Failed)
	}
	if res.DeadLettered > 0 {
		fmt.Printf(", %d rejected by the backend", res.DeadLettered)
	}
	fmt.Println()

	if flushStats {
		return metrics.WriteSummary(os.Stdout, a.registry)
	}
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.outbox.GetPendingOperations(cmd.Context())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Nothing pending")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%-13s %-6s %s", e.Kind, e.Action, e.TargetID)
		if e.DeadLetter {
			line += fmt.Sprintf("  (rejected, not retried: %s)", e.LastError)
		} else if e.Attempts > 0 {
			line += fmt.Sprintf("  (%d attempt(s), last error: %s)", e.Attempts, e.LastError)
		}
		fmt.Println(line)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.library.ClearCache(); err != nil {
		return err
	}
	if clearOutbox {
		if err := a.outbox.ClearOperations(cmd.Context()); err != nil {
			return err
		}
	}
	fmt.Println("Cache cleared")
	return nil
}

// runSetupFlow prompts for the backend URL and API token and saves them
func runSetupFlow(cfg *adapter.Config) error {
	fmt.Println()
	fmt.Println("Welcome to Wipewatch!")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Backend URL [%s]: ", cfg.API.URL)
	input, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if url := strings.TrimSpace(input); url != "" {
		cfg.API.URL = url
	}

	var token string
	for token == "" {
		fmt.Print("API token: ")
		if term.IsTerminal(int(os.Stdin.Fd())) {
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token = strings.TrimSpace(string(raw))
		} else {
			input, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token = strings.TrimSpace(input)
		}
		if token == "" {
			fmt.Println("Token cannot be empty. Please try again.")
		}
	}
	cfg.API.Token = token

	if err := adapter.SaveConfig(cfg, cfgFile); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved!")
	fmt.Println()
	fmt.Println("Run wipewatch again to start browsing.")
	return nil
}
