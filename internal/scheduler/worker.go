package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"outreach_backend/internal/admission"
	"outreach_backend/internal/outreach"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// OutreachSender is the slice of the outreach service the worker
// drives.
type OutreachSender interface {
	SendApproved(ctx context.Context, id uuid.UUID) (outreach.SendOutcome, error)
	SendBatch(ctx context.Context, channel admission.Channel, ids []uuid.UUID) (outreach.BatchResult, error)
}

// EnrichmentRetrier re-runs parked transcript extractions.
type EnrichmentRetrier interface {
	RetryEnrichment(ctx context.Context, meetingID string) error
}

// DigestSender posts the daily digest.
type DigestSender interface {
	SendDailyDigest(ctx context.Context) error
}

// digestCron fires the digest at 18:00 server time every day.
const digestCron = "0 18 * * *"

// Worker consumes deferred tasks.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	sender    OutreachSender
	enricher  EnrichmentRetrier
	digest    DigestSender
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sender OutreachSender, enricher EnrichmentRetrier, digest DigestSender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	sched := asynq.NewScheduler(opt, nil)
	if _, err := sched.Register(digestCron, NewDailyDigestTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register digest schedule: %w", err)
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		scheduler: sched,
		mux:       mux,
		sender:    sender,
		enricher:  enricher,
		digest:    digest,
		log:       log,
	}

	mux.HandleFunc(TaskRetryItem, w.handleRetryItem)
	mux.HandleFunc(TaskSendBatch, w.handleSendBatch)
	mux.HandleFunc(TaskEnrichmentRetry, w.handleEnrichmentRetry)
	mux.HandleFunc(TaskDailyDigest, w.handleDailyDigest)

	return w, nil
}

func (w *Worker) handleRetryItem(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRetryItemPayload(task)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(payload.OutreachID)
	if err != nil {
		return err
	}

	outcome, err := w.sender.SendApproved(ctx, id)
	if err != nil {
		return err
	}
	if !outcome.Success {
		// Denied again; SendApproved already queued the next attempt.
		w.log.Info("retried item deferred again",
			"outreachId", id, "reason", outcome.Reason, "scheduledFor", outcome.ScheduledFor)
	}
	return nil
}

func (w *Worker) handleSendBatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSendBatchPayload(task)
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(payload.OutreachIDs))
	for _, raw := range payload.OutreachIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	result, err := w.sender.SendBatch(ctx, admission.Channel(payload.Channel), ids)
	if err != nil {
		return err
	}
	if result.Halted {
		w.log.Info("batch halted by admission",
			"channel", payload.Channel, "sent", len(result.Sent),
			"remaining", len(result.Remaining), "scheduledFor", result.ScheduledFor)
	}
	return nil
}

func (w *Worker) handleEnrichmentRetry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseEnrichmentRetryPayload(task)
	if err != nil {
		return err
	}
	return w.enricher.RetryEnrichment(ctx, payload.MeetingID)
}

func (w *Worker) handleDailyDigest(ctx context.Context, _ *asynq.Task) error {
	return w.digest.SendDailyDigest(ctx)
}

// Run starts the task server and the periodic scheduler, and shuts
// both down when ctx is canceled. It blocks until both have stopped.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	var g errgroup.Group
	g.Go(func() error {
		return w.scheduler.Run()
	})
	g.Go(func() error {
		return w.server.Run(w.mux)
	})
	if err := g.Wait(); err != nil {
		w.log.Error("task worker stopped", "error", err)
	}
}
