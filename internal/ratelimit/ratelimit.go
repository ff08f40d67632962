// Package ratelimit layers a cheap in-memory fast path in front of the
// scheduler's authoritative, transactional submission count.
package ratelimit

import (
	"fmt"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// category identifies the (agent, challenge) pair a limit applies to:
// limits are scoped per agent per challenge, not globally per agent.
type category struct {
	agentID     string
	challengeID string
}

// Limiter is a non-blocking, best-effort pre-check. It is never the
// source of truth for whether a submission is accepted — that remains
// the store's transactional COUNT(*) — but it lets the scheduler
// reject an obviously-over-budget agent without a database round trip.
type Limiter struct {
	inner *catrate.Limiter
}

// New builds a fast-path limiter enforcing perHour submissions in a
// trailing 1-hour window, per (agent, challenge).
func New(perHour int) *Limiter {
	return &Limiter{
		inner: catrate.NewLimiter(map[time.Duration]int{
			time.Hour: perHour,
		}),
	}
}

// Allow reports whether the fast path believes agentID may submit again
// to challengeID right now. When false, retryAfter is how long until it
// would allow another attempt, per catrate's own reservation.
func (l *Limiter) Allow(agentID, challengeID string) (allowed bool, retryAfter time.Duration) {
	next, ok := l.inner.Allow(category{agentID: agentID, challengeID: challengeID})
	if ok {
		return true, 0
	}
	if next.IsZero() {
		return false, 0
	}
	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	return false, d
}

func (c category) String() string {
	return fmt.Sprintf("%s/%s", c.agentID, c.challengeID)
}
