package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetConfig      = "admission.repository.get_config"
	opSaveConfig     = "admission.repository.save_config"
	opGetConsumption = "admission.repository.get_consumption"
	opIncrement      = "admission.repository.increment_sent"
	opTouchLast      = "admission.repository.touch_last_action"
	opFirstAction    = "admission.repository.first_action"
	opEnsureFirst    = "admission.repository.ensure_first_action"
)

// ErrConfigNotFound is returned when a channel has no stored configuration.
var ErrConfigNotFound = errors.New("channel config not found")

// PostgresRepository persists admission state in Postgres. Counter updates
// use guarded atomic increments so concurrent recorders cannot push a day's
// count past the effective limit.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an admission repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetConfig loads the configuration for a channel.
func (r *PostgresRepository) GetConfig(ctx context.Context, channel Channel) (ChannelConfig, error) {
	var cfg ChannelConfig
	var delaySeconds int64
	err := r.pool.QueryRow(ctx, `
		SELECT channel, daily_limit, window_start, window_end, action_delay_seconds, warmup_enabled, timezone
		FROM admission_channel_configs
		WHERE channel = $1
	`, string(channel)).Scan(
		&cfg.Channel, &cfg.DailyLimit, &cfg.WindowStart, &cfg.WindowEnd,
		&delaySeconds, &cfg.WarmupEnabled, &cfg.Timezone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChannelConfig{}, ErrConfigNotFound
	}
	if err != nil {
		return ChannelConfig{}, apperr.Internal(fmt.Sprintf("load channel config failed: %v", err)).WithOp(opGetConfig)
	}
	cfg.ActionDelay = time.Duration(delaySeconds) * time.Second
	return cfg, nil
}

// SaveConfig upserts the configuration for a channel.
func (r *PostgresRepository) SaveConfig(ctx context.Context, cfg ChannelConfig) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admission_channel_configs
			(channel, daily_limit, window_start, window_end, action_delay_seconds, warmup_enabled, timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (channel) DO UPDATE SET
			daily_limit = EXCLUDED.daily_limit,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			action_delay_seconds = EXCLUDED.action_delay_seconds,
			warmup_enabled = EXCLUDED.warmup_enabled,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, string(cfg.Channel), cfg.DailyLimit, cfg.WindowStart, cfg.WindowEnd,
		int64(cfg.ActionDelay/time.Second), cfg.WarmupEnabled, cfg.Timezone)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("save channel config failed: %v", err)).WithOp(opSaveConfig)
	}
	return nil
}

// GetConsumption loads the usage row for a channel and day. A missing row is
// a zero consumption, not an error.
func (r *PostgresRepository) GetConsumption(ctx context.Context, channel Channel, day string) (Consumption, error) {
	c := Consumption{Channel: channel, Day: day}
	err := r.pool.QueryRow(ctx, `
		SELECT sent_count, last_action_at
		FROM admission_consumption
		WHERE channel = $1 AND day = $2
	`, string(channel), day).Scan(&c.SentCount, &c.LastActionAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return Consumption{}, apperr.Internal(fmt.Sprintf("load consumption failed: %v", err)).WithOp(opGetConsumption)
	}
	return c, nil
}

// IncrementSent atomically increments the day's counter if it is still below
// limit, and stamps the last action timestamp. Returns false when the guard
// rejected the increment (the counter was already at or above limit).
func (r *PostgresRepository) IncrementSent(ctx context.Context, channel Channel, day string, limit int, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO admission_consumption (channel, day, sent_count, last_action_at)
		VALUES ($1, $2, 1, $4)
		ON CONFLICT (channel, day) DO UPDATE SET
			sent_count = admission_consumption.sent_count + 1,
			last_action_at = EXCLUDED.last_action_at
		WHERE admission_consumption.sent_count < $3
	`, string(channel), day, limit, at)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("increment consumption failed: %v", err)).WithOp(opIncrement)
	}
	return tag.RowsAffected() > 0, nil
}

// FirstActionDate returns the persisted first-ever action time for a channel,
// or nil if the channel has never acted.
func (r *PostgresRepository) FirstActionDate(ctx context.Context, channel Channel) (*time.Time, error) {
	var first time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT first_action_at FROM admission_first_actions WHERE channel = $1
	`, string(channel)).Scan(&first)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("load first action failed: %v", err)).WithOp(opFirstAction)
	}
	return &first, nil
}

// EnsureFirstActionDate records the first-ever action time once. Subsequent
// calls are no-ops: the persisted date is never overwritten.
func (r *PostgresRepository) EnsureFirstActionDate(ctx context.Context, channel Channel, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admission_first_actions (channel, first_action_at)
		VALUES ($1, $2)
		ON CONFLICT (channel) DO NOTHING
	`, string(channel), at)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("record first action failed: %v", err)).WithOp(opEnsureFirst)
	}
	return nil
}
