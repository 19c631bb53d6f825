// Package admission decides whether an outbound action may proceed right now,
// given per-channel daily caps, warmup ramps, sending windows and
// inter-action spacing. It owns channel configuration and day-keyed
// consumption state.
package admission

import (
	"time"
)

// Channel identifies an outbound channel.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelNetwork Channel = "professional_network"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelNetwork
}

// ActionKind identifies the kind of outbound action on a channel.
type ActionKind string

const (
	ActionEmail             ActionKind = "email"
	ActionConnectionRequest ActionKind = "connection_request"
	ActionInMail            ActionKind = "inmail"
)

// DenyReason is a machine-readable reason for a denial.
type DenyReason string

const (
	ReasonDailyLimitReached DenyReason = "daily_limit_reached"
	ReasonOutsideWindow     DenyReason = "outside_window"
	ReasonDelayNotMet       DenyReason = "delay_not_met"
)

// Decision is the outcome of an admission check. A denial is not an error:
// it carries a reason and a retry hint and must never be silently dropped.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
	RetryAt time.Time  `json:"retryAt,omitempty"`
}

// Allow is the affirmative decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a denial with a reason and retry hint.
func Deny(reason DenyReason, retryAt time.Time) Decision {
	return Decision{Allowed: false, Reason: reason, RetryAt: retryAt}
}

// ChannelConfig holds the admission configuration for one channel.
// It is mutated only through explicit configuration updates; one instance
// exists per channel, created with defaults on first use.
type ChannelConfig struct {
	Channel       Channel       `json:"channel"`
	DailyLimit    int           `json:"dailyLimit"`
	WindowStart   string        `json:"windowStart"` // "HH:MM"
	WindowEnd     string        `json:"windowEnd"`   // "HH:MM"
	ActionDelay   time.Duration `json:"actionDelay"` // professional network only
	WarmupEnabled bool          `json:"warmupEnabled"`
	Timezone      string        `json:"timezone"` // IANA name; decides the day key
}

// Location resolves the configured timezone, falling back to UTC.
func (c ChannelConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultConfig returns the configuration created for a channel on first use.
func DefaultConfig(channel Channel) ChannelConfig {
	switch channel {
	case ChannelNetwork:
		return ChannelConfig{
			Channel:     ChannelNetwork,
			DailyLimit:  25,
			WindowStart: "09:00",
			WindowEnd:   "17:00",
			ActionDelay: 15 * time.Minute,
			Timezone:    "UTC",
		}
	default:
		return ChannelConfig{
			Channel:       ChannelEmail,
			DailyLimit:    100,
			WindowStart:   "08:00",
			WindowEnd:     "18:00",
			WarmupEnabled: true,
			Timezone:      "UTC",
		}
	}
}

// Consumption is the day-keyed usage state for a channel.
type Consumption struct {
	Channel      Channel    `json:"channel"`
	Day          string     `json:"day"` // YYYY-MM-DD in the channel's timezone
	SentCount    int        `json:"sentCount"`
	LastActionAt *time.Time `json:"lastActionAt,omitempty"`
}

// Clock abstracts wall-clock time so tests can pin the day boundary.
type Clock interface {
	Now() time.Time
}

// RealClock is the production clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// dayKey formats t as the calendar date in loc.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
