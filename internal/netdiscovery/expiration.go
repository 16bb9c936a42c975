package netdiscovery

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// minTargetExpiration is the floor applied to the configured
// target_expiration: default 60 seconds, minimum 60 seconds.
const minTargetExpiration = 60 * time.Second

// expirationLogInterval rate-limits the periodic remaining-time log to
// once per 600 seconds.
const expirationLogInterval = 600 * time.Second

// computeMinTimeout computes the minimum timeout that lets every job
// finish: `1 + Σ_jobs (size × timeout)`.
func computeMinTimeout(jobs []Job) time.Duration {
	var total time.Duration = time.Second
	for _, j := range jobs {
		total += time.Duration(j.totalSize()) * j.Timeout
	}
	return total
}

// computeDeadline computes the effective scheduler deadline:
// `max(now + maxCount × targetExpiration, minDeadline)`, where maxCount is
// the configured worker-pool ceiling (SchedulerOptions.MaxCount) and
// targetExpiration is floored at 60s.
func computeDeadline(now time.Time, maxCount uint32, targetExpiration time.Duration, jobs []Job) time.Time {
	if targetExpiration < minTargetExpiration {
		targetExpiration = minTargetExpiration
	}
	minDeadline := now.Add(computeMinTimeout(jobs))
	candidate := now.Add(time.Duration(maxCount) * targetExpiration)
	if candidate.After(minDeadline) {
		return candidate
	}
	return minDeadline
}

// expirationLogger emits a human-readable "time remaining" line at most once
// per expirationLogInterval. It never mutates the deadline itself.
type expirationLogger struct {
	lastLogged time.Time
}

// maybeLog logs the remaining time until deadline if the rate-limit window
// has elapsed; it is a no-op otherwise.
func (l *expirationLogger) maybeLog(now, deadline time.Time) {
	if !l.lastLogged.IsZero() && now.Sub(l.lastLogged) < expirationLogInterval {
		return
	}
	l.lastLogged = now
	log.Info().Str("remaining", formatRemaining(deadline.Sub(now))).Msg("netdiscovery: scan deadline remaining")
}

// formatRemaining buckets a duration into human units: hours with one
// decimal if >2h; "X minutes" for 10-59; "few minutes" for 2-9; "soon" for
// <=1; otherwise "X.X hour".
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := d.Minutes()
	hours := d.Hours()

	switch {
	case hours > 2:
		return fmt.Sprintf("%.1f hours", hours)
	case minutes >= 10 && minutes < 60:
		return fmt.Sprintf("%d minutes", int(minutes))
	case minutes >= 2 && minutes < 10:
		return "few minutes"
	case minutes <= 1:
		return "soon"
	default:
		return fmt.Sprintf("%.1f hour", hours)
	}
}
