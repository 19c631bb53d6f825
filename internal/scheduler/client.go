package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"outreach_backend/internal/admission"
	"outreach_backend/platform/config"
)

// Client enqueues deferred tasks. A nil Client is a no-op, so wiring
// stays simple when Redis is not configured.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueSendRetry schedules one admission-denied item for its retry
// time.
func (c *Client) EnqueueSendRetry(ctx context.Context, outreachID uuid.UUID, at time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	task, err := NewRetryItemTask(RetryItemPayload{OutreachID: outreachID.String()})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(at), asynq.Queue(c.queue))
	return err
}

// EnqueueBatch schedules a batch send for a channel.
func (c *Client) EnqueueBatch(ctx context.Context, channel admission.Channel, ids []uuid.UUID, at time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload := SendBatchPayload{Channel: string(channel)}
	for _, id := range ids {
		payload.OutreachIDs = append(payload.OutreachIDs, id.String())
	}
	task, err := NewSendBatchTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(at), asynq.Queue(c.queue))
	return err
}

// EnqueueEnrichmentRetry schedules a transcript extraction retry.
func (c *Client) EnqueueEnrichmentRetry(ctx context.Context, meetingID string, delay time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	task, err := NewEnrichmentRetryTask(EnrichmentRetryPayload{MeetingID: meetingID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay), asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
