package exam

import (
	"fmt"
	"time"
)

// Tier classifies remaining exam time for display.
type Tier string

const (
	TierSafe     Tier = "safe"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
	TierExpired  Tier = "expired"
)

const (
	warningThreshold  = 10 * time.Minute
	criticalThreshold = 5 * time.Minute
	finalMinute       = time.Minute
)

// Remaining returns how much of a durationMinutes exam is left at now for an
// exam started at startedAt. The result is negative once time has run out.
func Remaining(durationMinutes int, startedAt, now time.Time) time.Duration {
	return time.Duration(durationMinutes)*time.Minute - now.Sub(startedAt)
}

// Classify maps remaining time to its display tier.
func Classify(remaining time.Duration) Tier {
	switch {
	case remaining <= 0:
		return TierExpired
	case remaining <= criticalThreshold:
		return TierCritical
	case remaining <= warningThreshold:
		return TierWarning
	default:
		return TierSafe
	}
}

// IsFinalMinute reports whether the exam is running in its last minute.
func IsFinalMinute(remaining time.Duration) bool {
	return remaining > 0 && remaining <= finalMinute
}

// Clock formats remaining time as HH:MM:SS, truncated to whole seconds.
// Negative durations display as 00:00:00.
func Clock(remaining time.Duration) string {
	secs := int(remaining / time.Second)
	if secs < 0 {
		secs = 0
	}
	h, rem := secs/3600, secs%3600
	return fmt.Sprintf("%02d:%02d:%02d", h, rem/60, rem%60)
}

// DurationText renders an exam length the way the test header shows it:
// "45m", "1h" or "1h 30m".
func DurationText(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	h, m := minutes/60, minutes%60
	if m > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dh", h)
}

// TimerState is one evaluation of the countdown, computed fresh from the wall
// clock on every tick.
type TimerState struct {
	Remaining   time.Duration
	Tier        Tier
	Clock       string
	FinalMinute bool
}

// Expired reports whether the exam time is exhausted.
func (t TimerState) Expired() bool {
	return t.Tier == TierExpired
}

// Evaluate computes the timer state at now.
func Evaluate(durationMinutes int, startedAt, now time.Time) TimerState {
	rem := Remaining(durationMinutes, startedAt, now)
	return TimerState{
		Remaining:   rem,
		Tier:        Classify(rem),
		Clock:       Clock(rem),
		FinalMinute: IsFinalMinute(rem),
	}
}
