package admission

import "time"

// Warmup ramp steps for the email channel: a young sending account gets a
// small daily cap that grows with account age.
const (
	warmupStage1Limit = 10
	warmupStage2Limit = 25
	warmupStage3Limit = 50
	warmupFullLimit   = 100
)

// WarmupLimit returns the daily cap for an account of the given age in days.
// Pure step function: <7d -> 10, <14d -> 25, <21d -> 50, else 100.
func WarmupLimit(ageDays int) int {
	switch {
	case ageDays < 7:
		return warmupStage1Limit
	case ageDays < 14:
		return warmupStage2Limit
	case ageDays < 21:
		return warmupStage3Limit
	default:
		return warmupFullLimit
	}
}

// accountAgeDays computes whole elapsed calendar days between the first-ever
// action date and now, in the channel's timezone. A channel with no recorded
// first action has age zero.
func accountAgeDays(firstAction *time.Time, now time.Time, loc *time.Location) int {
	if firstAction == nil {
		return 0
	}
	first := firstAction.In(loc)
	firstDay := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	cur := now.In(loc)
	curDay := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, loc)
	days := int(curDay.Sub(firstDay).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
