package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pwviptbl/CallCenter/internal/audit"
	"github.com/pwviptbl/CallCenter/internal/auth"
	"github.com/pwviptbl/CallCenter/internal/config"
	"github.com/pwviptbl/CallCenter/internal/httpserver"
	"github.com/pwviptbl/CallCenter/internal/platform"
	"github.com/pwviptbl/CallCenter/internal/seed"
	"github.com/pwviptbl/CallCenter/internal/telemetry"
	"github.com/pwviptbl/CallCenter/internal/version"
	"github.com/pwviptbl/CallCenter/pkg/collector"
	"github.com/pwviptbl/CallCenter/pkg/dispatch"
	"github.com/pwviptbl/CallCenter/pkg/evolution"
	"github.com/pwviptbl/CallCenter/pkg/keyword"
	"github.com/pwviptbl/CallCenter/pkg/notify"
	"github.com/pwviptbl/CallCenter/pkg/tasks"
	"github.com/pwviptbl/CallCenter/pkg/tenant"
	"github.com/pwviptbl/CallCenter/pkg/ticket"
	"github.com/pwviptbl/CallCenter/pkg/urgency"
	"github.com/pwviptbl/CallCenter/pkg/webhook"
)

// Run is the main application entry point. It connects to infrastructure,
// applies migrations and starts the requested mode (api, worker, seed or
// seed-demo).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting callcenter",
		"mode", cfg.Mode,
		"version", version.Version,
		"listen", cfg.ListenAddr(),
	)

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, "callcenter-"+cfg.Mode)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, logger.With("component", "migrate")); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	switch cfg.Mode {
	case "seed":
		return seed.Run(ctx, db, logger)
	case "seed-demo":
		return seed.RunDemo(ctx, db, logger)
	}

	// Redis
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL, "callcenter-"+cfg.Mode)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry()
	p := newPipeline(cfg, logger, db, rdb)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, p)
	case "worker":
		return runWorker(ctx, cfg, logger, p)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// pipeline holds the components shared by the API and the worker.
type pipeline struct {
	tenants    *tenant.Store
	tickets    *ticket.Store
	rules      *keyword.Store
	classifier *urgency.Classifier
	queue      *tasks.Queue
	locker     *tasks.Locker
	hub        *notify.Hub
	slack      *notify.Async
	emitter    notify.Emitter
	deliverer  *evolution.Deliverer
	collect    *collector.Coordinator
	dispatch   *dispatch.Coordinator
}

func newPipeline(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) *pipeline {
	p := &pipeline{
		tenants: tenant.NewStore(db),
		tickets: ticket.NewStore(db),
		rules:   keyword.NewStore(db),
		queue:   tasks.NewQueue(rdb, logger.With("component", "tasks")),
		locker:  tasks.NewLocker(rdb, cfg.TasksLockTTL),
		hub:     notify.NewHub(rdb, logger.With("component", "hub")),
	}
	p.classifier = urgency.NewClassifier(p.rules, urgency.NewRedisCache(rdb), cfg.UrgencyRulesTTL, logger.With("component", "urgency"))

	var sinks []notify.Sink
	sinks = append(sinks, notify.NewRedisPublisher(rdb))
	if slack := notify.NewSlackSink(cfg.SlackBotToken, cfg.SlackAlertChannel, p.tenants, logger.With("component", "slack")); slack != nil {
		logger.Info("slack notifications enabled")
		p.slack = notify.NewAsync(slack, 256, 10*time.Second, logger.With("component", "slack"))
		sinks = append(sinks, p.slack)
	}
	p.emitter = notify.NewMulti(logger.With("component", "notify"), sinks...)

	p.deliverer = evolution.NewDeliverer(
		evolution.NewClient(0), p.tenants,
		cfg.EvolutionAPIURL, cfg.EvolutionAPIToken,
		logger.With("component", "evolution"),
	)

	p.collect = collector.NewCoordinator(
		p.tickets, p.tenants,
		collector.NewOpenAIProcessor(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel),
		p.queue, p.emitter, p.deliverer,
		collector.Settings{
			MaxTurns:           cfg.AIMaxTurns,
			Timeout:            cfg.AITimeout,
			DefaultTemperature: cfg.AIDefaultTemperature,
			DefaultMaxTokens:   cfg.AIDefaultMaxTokens,
		},
		logger.With("component", "collector"),
	)

	p.dispatch = dispatch.NewCoordinator(
		p.tickets, p.tenants,
		dispatch.NewHTTPCaller(cfg.DispatchTimeout),
		p.queue, p.emitter, p.deliverer,
		dispatch.Settings{
			MaxAttempts: cfg.DispatchMaxAttempts,
			Backoff:     cfg.DispatchBackoff,
			Timeout:     cfg.DispatchTimeout,
		},
		logger.With("component", "dispatch"),
	)
	return p
}

// backgroundTasks starts the task runner and the reconciler in g.
func (p *pipeline) backgroundTasks(ctx context.Context, g *errgroup.Group, cfg *config.Config, logger *slog.Logger) error {
	runner, err := tasks.NewRunner(p.queue, p.locker, cfg.TasksPoolSize, cfg.TasksPollInterval, logger.With("component", "tasks"))
	if err != nil {
		return fmt.Errorf("creating task runner: %w", err)
	}
	runner.Handle(tasks.KindCollect, p.collect.Run)
	runner.Handle(tasks.KindDispatch, p.dispatch.Run)

	reconciler, err := tasks.NewReconciler(p.tickets, p.queue, cfg.TasksReconcileSchedule, logger.With("component", "reconciler"))
	if err != nil {
		return fmt.Errorf("creating reconciler: %w", err)
	}

	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return reconciler.Run(ctx) })
	return nil
}

// notifications starts the queued notification sinks in g.
func (p *pipeline) notifications(ctx context.Context, g *errgroup.Group) {
	if p.slack != nil {
		g.Go(func() error { return p.slack.Run(ctx) })
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, p *pipeline) error {
	g, ctx := errgroup.WithContext(ctx)

	// Audit log writer (async, buffered).
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	apiAuth := auth.Middleware(auth.Options{
		Authenticator: &auth.APIKeyAuthenticator{Keys: &auth.PGKeyStore{DB: db}, Logger: logger},
		Tenants:       p.tenants,
		Limiter:       auth.NewRateLimiter(rdb, 10, 15*time.Minute),
		DevMode:       cfg.DevMode,
		Logger:        logger,
	})
	srv := httpserver.NewServer(cfg, logger, metricsReg, apiAuth,
		httpserver.Check{Name: "database", Ping: db.Ping},
		httpserver.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	// Provider webhooks are public; the shared secret is checked by the handler.
	ingestor := webhook.NewIngestor(webhook.IngestorConfig{
		Channels:  p.tenants,
		Tickets:   p.tickets,
		Dedup:     webhook.NewDeduplicator(rdb, p.tickets, logger.With("component", "dedup")),
		Analyzer:  p.classifier,
		Policy:    urgency.Policy{UrgentAt: cfg.UrgencyUrgentAt, CriticalAt: cfg.UrgencyCriticalAt},
		Emitter:   p.emitter,
		Scheduler: p.queue,
		Logger:    logger.With("component", "webhook"),
	})
	srv.Router.Mount("/webhooks/evolution", webhook.NewHandler(ingestor, cfg.WebhookSecret, logger).Routes())

	// Mount domain handlers.
	ticketSvc := ticket.NewService(p.tickets, p.tenants, p.emitter, p.queue, p.deliverer, logger)
	srv.APIRouter.Mount("/tickets", ticket.NewHandler(ticketSvc, logger, auditWriter).Routes())

	keywordSvc := keyword.NewService(p.rules, p.classifier, p.classifier, logger)
	srv.APIRouter.Mount("/keywords", keyword.NewHandler(keywordSvc, logger, auditWriter).Routes())

	srv.APIRouter.Handle("/notifications/ws", p.hub)
	g.Go(func() error { return p.hub.Run(ctx) })
	p.notifications(ctx, g)

	if cfg.TasksInline {
		if err := p.backgroundTasks(ctx, g, cfg, logger); err != nil {
			return err
		}
		logger.Info("task runner started in-process", "pool_size", cfg.TasksPoolSize)
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, p *pipeline) error {
	g, ctx := errgroup.WithContext(ctx)
	p.notifications(ctx, g)
	if err := p.backgroundTasks(ctx, g, cfg, logger); err != nil {
		return err
	}
	logger.Info("worker started", "pool_size", cfg.TasksPoolSize)

	err := g.Wait()
	logger.Info("worker stopped")
	return err
}
