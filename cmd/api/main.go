package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_backend/internal/admission"
	"outreach_backend/internal/agent"
	"outreach_backend/internal/approvals"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/http/router"
	"outreach_backend/internal/meetings"
	"outreach_backend/internal/notify"
	"outreach_backend/internal/outreach"
	"outreach_backend/internal/replies"
	"outreach_backend/internal/scheduler"
	"outreach_backend/internal/transcripts"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Redis backs the webhook dedupe locks and the deferred-send queue.
	// Without it, dedupe locking falls back to in-process and retry
	// scheduling is disabled.
	redisClient := initRedis(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	retryQueue, closeQueue := initRetryQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}

	agentClient, err := agent.NewClient(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize agent client", "error", err)
		panic("failed to initialize agent client: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Webhook module first: the event-handling modules register their
	// handlers on its router.
	webhookModule := webhook.NewModule(pool, redisClient, cfg, cfg, log)
	hooks := webhookModule.Router()

	admissionModule := admission.NewModule(pool, nil, val, log)
	approvalsModule := approvals.NewModule(pool, eventBus, cfg, hooks, log)
	meetingsModule := meetings.NewModule(pool, eventBus, agentClient, hooks, log)
	transcriptsModule := transcripts.NewModule(pool, eventBus, agentClient, retryQueue, hooks, log)
	repliesModule := replies.NewModule(pool, eventBus, agentClient, hooks, log)

	outreachModule := outreach.NewModule(
		pool,
		approvalsModule.Service(),
		admissionModule.Controller(),
		cfg,
		cfg,
		retryQueue,
		eventBus,
		val,
		log,
	)

	// Notify module subscribes to domain events and posts to the
	// approval channel; the digest reads fresh stats on every send.
	notifyModule := notify.NewModule(cfg, notify.DigestSources{
		Outreach:  outreachModule.Service(),
		Meetings:  meetingsModule.Service(),
		Replies:   repliesModule.Service(),
		Approvals: approvalsModule.Service(),
	}, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:    cfg,
		Logger:    log,
		Health:    db.NewPoolAdapter(pool),
		Providers: webhookModule,
		EventBus:  eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			admissionModule,
			approvalsModule,
			meetingsModule,
			transcriptsModule,
			repliesModule,
			outreachModule,
			notifyModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(cfg config.DedupeConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; webhook dedupe locks are in-process only")
		return nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse REDIS_URL", "error", err)
		return nil
	}

	return redis.NewClient(opt)
}

func initRetryQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; deferred sends and enrichment retries disabled")
		return nil, nil
	}

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize retry queue client", "error", err)
		return nil, nil
	}

	return queueClient, func() {
		_ = queueClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
