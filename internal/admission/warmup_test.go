package admission

import (
	"testing"
	"time"
)

func TestWarmupLimitSteps(t *testing.T) {
	cases := []struct {
		ageDays int
		want    int
	}{
		{0, 10},
		{6, 10},
		{7, 25},
		{13, 25},
		{14, 50},
		{20, 50},
		{21, 100},
		{120, 100},
	}
	for _, tc := range cases {
		if got := WarmupLimit(tc.ageDays); got != tc.want {
			t.Errorf("WarmupLimit(%d) = %d, want %d", tc.ageDays, got, tc.want)
		}
	}
}

func TestAccountAgeDays(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 1, 20, 10, 0, 0, 0, loc)

	if got := accountAgeDays(nil, now, loc); got != 0 {
		t.Errorf("age with no first action = %d, want 0", got)
	}

	first := time.Date(2026, 1, 13, 23, 59, 0, 0, loc)
	if got := accountAgeDays(&first, now, loc); got != 7 {
		t.Errorf("age = %d, want 7", got)
	}

	sameDay := time.Date(2026, 1, 20, 0, 1, 0, 0, loc)
	if got := accountAgeDays(&sameDay, now, loc); got != 0 {
		t.Errorf("same-day age = %d, want 0", got)
	}
}
