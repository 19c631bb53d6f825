package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_backend/internal/admission"
	"outreach_backend/internal/agent"
	"outreach_backend/internal/approvals"
	"outreach_backend/internal/events"
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
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize retry queue client", "error", err)
		panic("failed to initialize retry queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	agentClient, err := agent.NewClient(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize agent client", "error", err)
		panic("failed to initialize agent client: " + err.Error())
	}

	val := validator.New()

	// Worker-side module wiring (no HTTP handlers required). The
	// webhook router is unused here, so handlers register on a
	// throwaway instance.
	hooks := webhook.NewRouter(webhook.NewRepository(pool), nil, log)

	admissionModule := admission.NewModule(pool, nil, val, log)
	approvalsModule := approvals.NewModule(pool, eventBus, cfg, hooks, log)
	meetingsModule := meetings.NewModule(pool, eventBus, agentClient, hooks, log)
	transcriptsModule := transcripts.NewModule(pool, eventBus, agentClient, queueClient, hooks, log)
	repliesModule := replies.NewModule(pool, eventBus, agentClient, hooks, log)

	outreachModule := outreach.NewModule(
		pool,
		approvalsModule.Service(),
		admissionModule.Controller(),
		cfg,
		cfg,
		queueClient,
		eventBus,
		val,
		log,
	)

	notifyModule := notify.NewModule(cfg, notify.DigestSources{
		Outreach:  outreachModule.Service(),
		Meetings:  meetingsModule.Service(),
		Replies:   repliesModule.Service(),
		Approvals: approvalsModule.Service(),
	}, eventBus, log)

	worker, err := scheduler.NewWorker(
		cfg,
		outreachModule.Service(),
		transcriptsModule.Service(),
		notifyModule.Dispatcher(),
		log,
	)
	if err != nil {
		log.Error("failed to initialize task worker", "error", err)
		panic("failed to initialize task worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
