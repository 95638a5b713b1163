package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/newsly/newsly/internal/app"
	"github.com/newsly/newsly/internal/config"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/queue"
)

// The worker consumes delivery jobs and runs the recovery sweeper. It is
// only needed when dispatch.mode is queue.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("worker: load config", "error", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg)
	if cfg.Dispatch.Mode != "queue" {
		logger.Error("worker: dispatch.mode must be queue", "mode", cfg.Dispatch.Mode)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("worker: init", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	consumer, err := queue.NewConsumer(cfg.RabbitMQ.URL, a.Topology(), cfg.Dispatch.Concurrency, a.JobHandler().Handle)
	if err != nil {
		logger.Error("worker: consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Recovery().Start(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		if err := consumer.Run(ctx); err != nil {
			logger.Error("worker: consumer stopped", "error", err)
		}
	}()

	logger.Info("worker: running", "concurrency", cfg.Dispatch.Concurrency, "queue", cfg.RabbitMQ.Queue)
	wg.Wait()
	logger.Info("worker: stopped")
}
