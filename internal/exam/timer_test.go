package exam

import (
	"testing"
	"time"
)

func TestEvaluate(t *testing.T) {
	start := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		tier    Tier
		clock   string
		final   bool
	}{
		{"just started", 0, TierSafe, "01:00:00", false},
		{"eleven minutes left", 49 * time.Minute, TierSafe, "00:11:00", false},
		{"exactly ten left", 50 * time.Minute, TierWarning, "00:10:00", false},
		{"six minutes left", 54 * time.Minute, TierWarning, "00:06:00", false},
		{"exactly five left", 55 * time.Minute, TierCritical, "00:05:00", false},
		{"final minute", 59*time.Minute + 30*time.Second, TierCritical, "00:00:30", true},
		{"one second left", 59*time.Minute + 59*time.Second, TierCritical, "00:00:01", true},
		{"time up", 60 * time.Minute, TierExpired, "00:00:00", false},
		{"overdue", 75 * time.Minute, TierExpired, "00:00:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(60, start, start.Add(tt.elapsed))
			if got.Tier != tt.tier {
				t.Errorf("tier = %q, want %q", got.Tier, tt.tier)
			}
			if got.Clock != tt.clock {
				t.Errorf("clock = %q, want %q", got.Clock, tt.clock)
			}
			if got.FinalMinute != tt.final {
				t.Errorf("final minute = %v, want %v", got.FinalMinute, tt.final)
			}
			if got.Expired() != (tt.tier == TierExpired) {
				t.Errorf("expired = %v for tier %q", got.Expired(), got.Tier)
			}
		})
	}
}

func TestRemainingUsesWallClock(t *testing.T) {
	start := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)
	if got := Remaining(30, start, start.Add(10*time.Minute)); got != 20*time.Minute {
		t.Errorf("Remaining = %v, want 20m", got)
	}
	if got := Remaining(30, start, start.Add(31*time.Minute)); got != -time.Minute {
		t.Errorf("Remaining = %v, want -1m", got)
	}
}

func TestClockHours(t *testing.T) {
	if got := Clock(2*time.Hour + 3*time.Minute + 4*time.Second + 900*time.Millisecond); got != "02:03:04" {
		t.Errorf("Clock = %q, want 02:03:04", got)
	}
}

func TestDurationText(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{45, "45m"},
		{60, "1h"},
		{90, "1h 30m"},
		{120, "2h"},
	}
	for _, tt := range tests {
		if got := DurationText(tt.minutes); got != tt.want {
			t.Errorf("DurationText(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}
