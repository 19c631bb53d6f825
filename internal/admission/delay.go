package admission

import (
	"math/rand"
	"time"
)

// DelayPolicy decides how long a batch sender waits after a successful
// action before attempting the next one. The production policy adds random
// jitter on top of the configured base delay so professional-network actions
// do not fire on a detectable cadence; tests inject a deterministic policy.
type DelayPolicy interface {
	NextDelay(base time.Duration) time.Duration
}

// JitterPolicy adds a uniform random extra delay of up to MaxExtra.
type JitterPolicy struct {
	MaxExtra time.Duration
}

// NewJitterPolicy returns the default production policy: base plus up to
// 30 minutes of jitter.
func NewJitterPolicy() JitterPolicy {
	return JitterPolicy{MaxExtra: 30 * time.Minute}
}

func (p JitterPolicy) NextDelay(base time.Duration) time.Duration {
	if p.MaxExtra <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(p.MaxExtra)))
}

// FixedDelayPolicy always returns the base delay unchanged. Used in tests
// and when jitter is explicitly disabled.
type FixedDelayPolicy struct{}

func (FixedDelayPolicy) NextDelay(base time.Duration) time.Duration { return base }
