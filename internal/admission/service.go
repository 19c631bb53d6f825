package admission

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// Repository is the persistence surface the controller needs. Implemented by
// PostgresRepository; tests provide an in-memory fake.
type Repository interface {
	GetConfig(ctx context.Context, channel Channel) (ChannelConfig, error)
	SaveConfig(ctx context.Context, cfg ChannelConfig) error
	GetConsumption(ctx context.Context, channel Channel, day string) (Consumption, error)
	IncrementSent(ctx context.Context, channel Channel, day string, limit int, at time.Time) (bool, error)
	FirstActionDate(ctx context.Context, channel Channel) (*time.Time, error)
	EnsureFirstActionDate(ctx context.Context, channel Channel, at time.Time) error
}

// Controller answers "may I act now" and records actions taken.
//
// The daily-cap invariant is enforced by the repository's guarded atomic
// increment, so it holds even across processes. The per-channel mutex exposed
// through WithChannelLock additionally serializes whole check/send/record
// sequences so batch sends stay sequential per channel.
type Controller struct {
	repo  Repository
	clock Clock
	log   *logger.Logger

	mu    sync.Mutex
	locks map[Channel]*sync.Mutex
}

// NewController creates an admission controller.
func NewController(repo Repository, clock Clock, log *logger.Logger) *Controller {
	if clock == nil {
		clock = RealClock{}
	}
	return &Controller{
		repo:  repo,
		clock: clock,
		log:   log,
		locks: make(map[Channel]*sync.Mutex),
	}
}

func (c *Controller) channelLock(channel Channel) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[channel]
	if !ok {
		l = &sync.Mutex{}
		c.locks[channel] = l
	}
	return l
}

// WithChannelLock runs fn while holding the channel's send lock. Senders
// wrap each check/send/record sequence in this so concurrent sends on the
// same channel serialize, single items and batch jobs alike.
func (c *Controller) WithChannelLock(channel Channel, fn func() error) error {
	l := c.channelLock(channel)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// Config returns the channel's configuration, creating it with defaults on
// first use.
func (c *Controller) Config(ctx context.Context, channel Channel) (ChannelConfig, error) {
	if !channel.Valid() {
		return ChannelConfig{}, apperr.Validation(fmt.Sprintf("unknown channel %q", channel))
	}
	cfg, err := c.repo.GetConfig(ctx, channel)
	if err == ErrConfigNotFound {
		cfg = DefaultConfig(channel)
		if saveErr := c.repo.SaveConfig(ctx, cfg); saveErr != nil {
			return ChannelConfig{}, saveErr
		}
		return cfg, nil
	}
	if err != nil {
		return ChannelConfig{}, err
	}
	return cfg, nil
}

// UpdateConfig validates and persists a configuration change.
func (c *Controller) UpdateConfig(ctx context.Context, cfg ChannelConfig) error {
	if !cfg.Channel.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown channel %q", cfg.Channel))
	}
	if cfg.DailyLimit <= 0 {
		return apperr.Validation("dailyLimit must be positive")
	}
	if _, err := parseClockMinutes(cfg.WindowStart); err != nil {
		return apperr.Validation("windowStart must be HH:MM")
	}
	if _, err := parseClockMinutes(cfg.WindowEnd); err != nil {
		return apperr.Validation("windowEnd must be HH:MM")
	}
	if cfg.ActionDelay < 0 {
		return apperr.Validation("actionDelay must not be negative")
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return apperr.Validation(fmt.Sprintf("unknown timezone %q", cfg.Timezone))
		}
	}
	return c.repo.SaveConfig(ctx, cfg)
}

// CheckAdmission evaluates, in order: daily cap, sending window, inter-action
// delay. All checks must pass for an Allow. A Deny carries the reason and the
// earliest time a retry could succeed.
func (c *Controller) CheckAdmission(ctx context.Context, channel Channel, kind ActionKind) (Decision, error) {
	cfg, err := c.Config(ctx, channel)
	if err != nil {
		return Decision{}, err
	}

	loc := cfg.Location()
	now := c.clock.Now().In(loc)
	day := dayKey(now, loc)

	limit, err := c.effectiveLimit(ctx, channel, cfg, now, loc)
	if err != nil {
		return Decision{}, err
	}

	consumption, err := c.repo.GetConsumption(ctx, channel, day)
	if err != nil {
		return Decision{}, err
	}

	if consumption.SentCount >= limit {
		retryAt := nextDayWindowStart(now, cfg, loc)
		c.log.AdmissionDenied(string(channel), string(kind), string(ReasonDailyLimitReached))
		return Deny(ReasonDailyLimitReached, retryAt), nil
	}

	if !insideWindow(now, cfg) {
		retryAt := nextWindowStart(now, cfg, loc)
		c.log.AdmissionDenied(string(channel), string(kind), string(ReasonOutsideWindow))
		return Deny(ReasonOutsideWindow, retryAt), nil
	}

	if cfg.ActionDelay > 0 && consumption.LastActionAt != nil {
		elapsed := now.Sub(*consumption.LastActionAt)
		if elapsed < cfg.ActionDelay {
			retryAt := consumption.LastActionAt.Add(cfg.ActionDelay)
			c.log.AdmissionDenied(string(channel), string(kind), string(ReasonDelayNotMet))
			return Deny(ReasonDelayNotMet, retryAt), nil
		}
	}

	return Allow(), nil
}

// RecordAction records a successful external send: it stamps the first-ever
// action date (once), increments today's counter and advances the last-action
// timestamp. Called only after the external call succeeded.
func (c *Controller) RecordAction(ctx context.Context, channel Channel, kind ActionKind) error {
	cfg, err := c.Config(ctx, channel)
	if err != nil {
		return err
	}

	loc := cfg.Location()
	now := c.clock.Now().In(loc)
	day := dayKey(now, loc)

	if err := c.repo.EnsureFirstActionDate(ctx, channel, now); err != nil {
		return err
	}

	limit, err := c.effectiveLimit(ctx, channel, cfg, now, loc)
	if err != nil {
		return err
	}

	ok, err := c.repo.IncrementSent(ctx, channel, day, limit, now)
	if err != nil {
		return err
	}
	if !ok {
		// Lost a cross-process race for the last slot. The send already
		// happened, so the counter staying at the cap is the correct outcome.
		c.log.Warn("action recorded at daily cap",
			"channel", string(channel), "action_kind", string(kind), "day", day)
	}
	return nil
}

// Usage reports today's consumption alongside the effective limit.
func (c *Controller) Usage(ctx context.Context, channel Channel) (Consumption, int, error) {
	cfg, err := c.Config(ctx, channel)
	if err != nil {
		return Consumption{}, 0, err
	}
	loc := cfg.Location()
	now := c.clock.Now().In(loc)

	limit, err := c.effectiveLimit(ctx, channel, cfg, now, loc)
	if err != nil {
		return Consumption{}, 0, err
	}

	consumption, err := c.repo.GetConsumption(ctx, channel, dayKey(now, loc))
	if err != nil {
		return Consumption{}, 0, err
	}
	return consumption, limit, nil
}

func (c *Controller) effectiveLimit(ctx context.Context, channel Channel, cfg ChannelConfig, now time.Time, loc *time.Location) (int, error) {
	if !cfg.WarmupEnabled {
		return cfg.DailyLimit, nil
	}
	first, err := c.repo.FirstActionDate(ctx, channel)
	if err != nil {
		return 0, err
	}
	warmup := WarmupLimit(accountAgeDays(first, now, loc))
	if warmup < cfg.DailyLimit {
		return warmup, nil
	}
	return cfg.DailyLimit, nil
}

// =============================================================================
// Sending window arithmetic
// =============================================================================

// parseClockMinutes parses "HH:MM" into minutes since midnight.
func parseClockMinutes(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return h*60 + m, nil
}

// insideWindow reports whether now's time of day lies within the configured
// sending window, inclusive on both ends. A window whose start is later than
// its end wraps past midnight (22:00-06:00 admits 23:00 and 05:00).
func insideWindow(now time.Time, cfg ChannelConfig) bool {
	start, err := parseClockMinutes(cfg.WindowStart)
	if err != nil {
		return true
	}
	end, err := parseClockMinutes(cfg.WindowEnd)
	if err != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()

	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

// nextWindowStart returns the next moment the sending window opens: today's
// start if it is still ahead, otherwise tomorrow's.
func nextWindowStart(now time.Time, cfg ChannelConfig, loc *time.Location) time.Time {
	start, err := parseClockMinutes(cfg.WindowStart)
	if err != nil {
		return now
	}
	cur := now.Hour()*60 + now.Minute()
	day := time.Date(now.Year(), now.Month(), now.Day(), start/60, start%60, 0, 0, loc)
	if cur < start {
		return day
	}
	return day.AddDate(0, 0, 1)
}

// nextDayWindowStart returns the earliest in-window instant of the next
// calendar day, used as the retry hint when today's cap is exhausted.
// The daily counter resets at midnight, so a window that wraps past
// midnight (22:00-06:00) admits again from 00:00, not from its start.
func nextDayWindowStart(now time.Time, cfg ChannelConfig, loc *time.Location) time.Time {
	start, err := parseClockMinutes(cfg.WindowStart)
	if err != nil {
		start = 0
	}
	if end, err := parseClockMinutes(cfg.WindowEnd); err == nil && start > end {
		start = 0
	}
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), start/60, start%60, 0, 0, loc)
}
