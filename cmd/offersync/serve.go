package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/offersync/api"
	"github.com/use-agent/offersync/bridge"
	"github.com/use-agent/offersync/browser"
	"github.com/use-agent/offersync/cache"
	"github.com/use-agent/offersync/config"
	"github.com/use-agent/offersync/detector"
	"github.com/use-agent/offersync/extractor"
	"github.com/use-agent/offersync/models"
	"github.com/use-agent/offersync/orchestrator"
	"github.com/use-agent/offersync/store"
	"github.com/use-agent/offersync/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("offersync starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"browser", cfg.Browser.Enabled,
		"store", cfg.Store.Driver,
	)

	// ── 1. Vocabulary, extractors, session detector ─────────────────
	vocab, err := config.LoadVocabulary(cfg.Extractor.VocabularyFile)
	if err != nil {
		return err
	}
	registry, err := extractor.NewRegistry(vocab)
	if err != nil {
		return fmt.Errorf("build extractors: %w", err)
	}
	det, err := detector.New(vocab.Session)
	if err != nil {
		return fmt.Errorf("build session detector: %w", err)
	}

	// ── 2. State store ──────────────────────────────────────────────
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	// ── 3. Bridge: progress hub, session board, inbound relay ───────
	hub := bridge.NewHub(64)
	sessions := &bridge.SessionBoard{}
	var orch *orchestrator.Orchestrator
	relay := bridge.NewRelay(bridge.CaptureFunc(func(c models.DataCaptured) {
		orch.Capture(c)
	}), 128).WithSessions(sessions)

	// ── 4. Browser (optional) ───────────────────────────────────────
	var nav orchestrator.Navigator
	var browserUp func() bool
	if cfg.Browser.Enabled {
		br, err := browser.New(browser.Options{
			Browser:       cfg.Browser,
			Extractor:     cfg.Extractor,
			Detector:      cfg.Detector,
			CaptureWindow: cfg.Sync.StepTimeout,
			Registry:      registry,
			Session:       det,
			Relay:         relay,
		})
		if err != nil {
			return err
		}
		defer br.Close()
		nav = br
		browserUp = br.Connected
	} else {
		slog.Info("browser disabled, waiting for captures from the page script")
	}

	// ── 5. Orchestrator ─────────────────────────────────────────────
	orch = orchestrator.New(ctx, nav, st, hub, orchestrator.OptionsFromConfig(cfg.Sync))

	// ── 6. Router ───────────────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	router := api.NewRouter(api.Deps{
		Sync:      orch,
		Relay:     relay,
		Hub:       hub,
		Sessions:  sessions,
		Registry:  registry,
		Detector:  det,
		Cache:     cc,
		Archive:   st,
		BrowserUp: browserUp,
	}, cfg, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── 7. Run everything until a signal or a fatal error ───────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		relay.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cc.Run(gctx, 5*time.Minute)
		return nil
	})
	if cfg.Webhook.URL != "" {
		events, cancel := hub.Subscribe()
		fwd := webhook.NewForwarder(cfg.Webhook.URL, cfg.Webhook.Secret)
		g.Go(func() error {
			defer cancel()
			fwd.Run(gctx, events)
			return nil
		})
		slog.Info("webhook forwarding enabled", "url", cfg.Webhook.URL)
	}
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Give in-flight requests 5 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		return nil
	})

	err = g.Wait()
	slog.Info("offersync stopped")
	return err
}
