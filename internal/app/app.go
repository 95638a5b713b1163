// Package app builds the object graph shared by the server and worker
// binaries from a loaded config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/newsly/newsly/internal/auth"
	"github.com/newsly/newsly/internal/config"
	"github.com/newsly/newsly/internal/llm"
	"github.com/newsly/newsly/internal/mailer"
	"github.com/newsly/newsly/internal/news"
	"github.com/newsly/newsly/internal/pkg/distlock"
	"github.com/newsly/newsly/internal/pkg/httpretry"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/queue"
	"github.com/newsly/newsly/internal/repository/postgres"
	"github.com/newsly/newsly/internal/service/billing"
	"github.com/newsly/newsly/internal/service/content"
	"github.com/newsly/newsly/internal/service/dispatch"
	"github.com/newsly/newsly/internal/service/newsletter"
	"github.com/newsly/newsly/internal/service/segment"
	"github.com/newsly/newsly/internal/service/subscriber"
)

// App holds the long-lived collaborators of a process.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Locks  distlock.Factory

	// Publisher is set in queue mode only.
	Publisher *queue.Publisher

	Subscribers *subscriber.Service
	Newsletters *newsletter.Service
	Billing     *billing.Service
	News        *news.Service
	Audience    *segment.Selector

	Logs      *postgres.EmailLogRepo
	Renderer  *mailer.Renderer
	Deliverer *dispatch.Deliverer
	Finalizer *dispatch.Finalizer

	subRepo *postgres.SubscriberRepo
}

// ConfigureLogging applies the log section to the package logger.
func ConfigureLogging(cfg *config.Config) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())
}

// New connects to Postgres, Redis and (in queue mode) RabbitMQ and wires
// the services every binary needs.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.Lifetime())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	a := &App{Config: cfg, DB: db}
	a.Redis = connectRedis(ctx, cfg.Redis)
	a.Locks = distlock.NewFactory(a.Redis, db)

	if cfg.Dispatch.Mode == "queue" {
		pub, err := queue.NewPublisher(cfg.RabbitMQ.URL, topology(cfg))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = pub
	}

	sender, err := mailer.NewSender(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("email provider: %w", err)
	}
	a.Renderer, err = mailer.NewRenderer(cfg.App.Name, cfg.App.BaseURL,
		mailer.WithSignedLinks(cfg.App.API(), auth.LinkSigner(cfg.Auth.LinkSecret)))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("email renderer: %w", err)
	}

	a.subRepo = postgres.NewSubscriberRepo(db)
	a.Subscribers = subscriber.NewService(a.subRepo)
	a.Newsletters = newsletter.NewService(postgres.NewNewsletterRepo(db))
	a.Billing = billing.NewService(postgres.NewTransactionRepo(db), a.Subscribers)
	a.Audience = segment.NewSelector(a.subRepo)

	var cache news.Cache
	if a.Redis != nil {
		cache = news.NewRedisCache(a.Redis)
	}
	feedClient := httpretry.NewRetryClient(&http.Client{Timeout: cfg.News.Timeout()}, 2)
	a.News = news.NewService(cfg.News.Feeds, feedClient, cache, cfg.News.CacheTTL())

	a.Logs = postgres.NewEmailLogRepo(db)
	a.Deliverer = dispatch.NewDeliverer(a.Logs, sender, a.Renderer, dispatch.Identity{
		FromName:  cfg.Email.FromName,
		FromEmail: cfg.Email.FromEmail,
		ReplyTo:   cfg.Email.ReplyTo,
	}, cfg.Dispatch.MaxSendsPerSecond)
	a.Finalizer = dispatch.NewFinalizer(a.Logs, a.Newsletters)

	logger.Info("app: initialized",
		"dispatch_mode", cfg.Dispatch.Mode,
		"email_provider", sender.Name(),
		"redis", a.Redis != nil)
	return a, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("app: redis unavailable, using postgres advisory locks", "addr", cfg.Addr, "error", err)
		rdb.Close()
		return nil
	}
	return rdb
}

func topology(cfg *config.Config) queue.Topology {
	return queue.Topology{Exchange: cfg.RabbitMQ.Exchange, Queue: cfg.RabbitMQ.Queue}
}

// Strategy returns the delivery strategy for the configured mode.
func (a *App) Strategy() dispatch.Strategy {
	if a.Publisher != nil {
		return dispatch.NewQueueDispatcher(a.Logs, a.Newsletters, a.Publisher, a.Finalizer)
	}
	return dispatch.NewDispatcher(a.Logs, a.Newsletters, a.Deliverer, a.Finalizer, a.Config.Dispatch.BatchSize)
}

// Runner builds the dispatch runner, including the language-model client
// the AI generator needs.
func (a *App) Runner(ctx context.Context) (*dispatch.Runner, error) {
	cfg := a.Config
	opts := llm.Options{Provider: cfg.AI.Provider}
	switch cfg.AI.Provider {
	case "gemini":
		opts.APIKey, opts.ModelID = cfg.Gemini.APIKey, cfg.Gemini.Model
	default:
		opts.Region, opts.ModelID = cfg.Bedrock.Region, cfg.Bedrock.ModelID
	}
	client, err := llm.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}

	gen := content.NewAIGenerator(client, a.News, a.Renderer, content.AIOptions{
		MaxTokens: cfg.AI.MaxTokens,
		Headlines: cfg.AI.Headlines,
		Timeout:   cfg.AI.Timeout(),
	})
	return dispatch.NewRunner(dispatch.RunnerDeps{
		Generator:   gen,
		Composer:    content.NewComposer(postgres.NewToolRepo(a.DB), a.Renderer),
		Audience:    a.Audience,
		Newsletters: a.Newsletters,
		Strategy:    a.Strategy(),
		Locks:       a.Locks,
		LockTTL:     cfg.Dispatch.LockTTL(),
	}), nil
}

// Recovery builds the sweeper. In queue mode stale deliveries go back on
// the bus; otherwise they are delivered inline.
func (a *App) Recovery() *dispatch.Recovery {
	redeliver := dispatch.DeliverInline(a.Subscribers, a.Deliverer)
	if a.Publisher != nil {
		redeliver = dispatch.Republish(a.Publisher)
	}
	return dispatch.NewRecovery(a.Logs, a.Newsletters, a.Finalizer, redeliver,
		a.Config.Dispatch.StaleAge(), a.Config.Dispatch.SweepInterval())
}

// JobHandler builds the queue-mode job handler.
func (a *App) JobHandler() *dispatch.JobHandler {
	return dispatch.NewJobHandler(a.Newsletters, a.Subscribers, a.Logs, a.Deliverer, a.Finalizer)
}

// Topology is the configured RabbitMQ exchange and queue.
func (a *App) Topology() queue.Topology { return topology(a.Config) }

// Close releases every connection the App opened.
func (a *App) Close() {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
