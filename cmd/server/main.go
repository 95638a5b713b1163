package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/newsly/newsly/internal/api"
	"github.com/newsly/newsly/internal/app"
	"github.com/newsly/newsly/internal/auth"
	"github.com/newsly/newsly/internal/config"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("server: load config", "error", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("server: init", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	runner, err := a.Runner(ctx)
	if err != nil {
		logger.Error("server: init runner", "error", err)
		os.Exit(1)
	}

	deps := api.Deps{
		Runner:      runner,
		Newsletters: a.Newsletters,
		Subscribers: a.Subscribers,
		Billing:     a.Billing,
		News:        a.News,
		DB:          a.DB,
		Redis:       a.Redis,
		Verifier:    auth.NewVerifier(cfg.Auth.AdminJWTSecret),
		Links:       auth.NewVerifier(cfg.Auth.LinkSecret),
		Auth:        cfg.Auth,
	}
	if a.Publisher != nil {
		deps.Broker = a.Publisher
	}
	if cfg.Auth.LinkSecret == "" {
		logger.Warn("server: LINK_SECRET not set, email links are unsigned and preference updates are disabled")
	}
	if cfg.Auth.CronSecret == "" {
		logger.Warn("server: CRON_SECRET not set, /api/newsletter/auto is unauthenticated",
			"require_cron_secret", cfg.Auth.RequireCronSecret)
	}

	// The worker sweeps in queue mode.
	if cfg.Dispatch.Mode == "direct" {
		go a.Recovery().Start(ctx)
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(runner, a.Locks, cfg.Scheduler.Hours)
		if err != nil {
			logger.Error("server: scheduler", "error", err)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("server: start scheduler", "error", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg.Server, deps)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening", "addr", cfg.Server.Addr(), "dispatch_mode", cfg.Dispatch.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server: listen", "error", err)
		}
	}

	logger.Info("server: shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: shutdown", "error", err)
	}
	if sched != nil {
		sched.Stop()
	}
	logger.Info("server: stopped")
}
