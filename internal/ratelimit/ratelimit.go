// Package ratelimit implements a per-origin sliding-window log limiter.
//
// Each admitted event is recorded with its timestamp; an origin is admitted
// while fewer than Limit events are younger than Window. The limiter is a
// courtesy throttle: store failures admit the request.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Default policy: 5 admitted events per origin per 15 minutes.
const (
	DefaultLimit  = 5
	DefaultWindow = 15 * time.Minute
)

// Usage is a store's view of one origin after an admission attempt.
type Usage struct {
	// Count is the number of events inside the window, including this one if admitted.
	Count int
	// Oldest is the timestamp of the oldest event still inside the window.
	Oldest time.Time
	// Admitted reports whether the event was recorded.
	Admitted bool
	// Token identifies the recorded event so it can be released later.
	Token string
}

// Store keeps the per-origin event logs.
type Store interface {
	// Admit evicts events at or beyond window age, then records an event at
	// now if fewer than limit remain.
	Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Usage, error)

	// Remove forgets the event identified by token.
	Remove(ctx context.Context, key, token string) error
}

// Sweeper is implemented by stores that must drop idle origins themselves.
type Sweeper interface {
	Sweep(now time.Time, window time.Duration) int
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long a rejected origin must wait for a slot.
	RetryAfter time.Duration
	// Reset is how long until the oldest counted event leaves the window.
	Reset time.Duration
	// Token identifies the admitted event for Release.
	Token string
}

// Limiter applies a fixed window length and cap to a Store.
type Limiter struct {
	store  Store
	window time.Duration
	limit  int
}

// New creates a Limiter. Non-positive window or limit fall back to the defaults.
func New(store Store, window time.Duration, limit int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{store: store, window: window, limit: limit}
}

// Window returns the sliding window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Limit returns the number of events admitted per window.
func (l *Limiter) Limit() int { return l.limit }

// Allow decides whether origin may submit at now and records the event if so.
func (l *Limiter) Allow(ctx context.Context, origin string, now time.Time) Decision {
	if origin == "" {
		origin = "unknown"
	}

	usage, err := l.store.Admit(ctx, key(origin), now, l.window, l.limit)
	if err != nil {
		slog.Warn("rate limit store unavailable, admitting request",
			"origin", origin,
			"error", err,
		)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - 1}
	}

	d := Decision{
		Allowed:   usage.Admitted,
		Limit:     l.limit,
		Remaining: max(l.limit-usage.Count, 0),
		Token:     usage.Token,
	}
	if !usage.Oldest.IsZero() {
		d.Reset = max(usage.Oldest.Add(l.window).Sub(now), 0)
	}
	if !usage.Admitted {
		d.RetryAfter = d.Reset
	}
	return d
}

// Release returns a previously admitted slot to origin.
func (l *Limiter) Release(ctx context.Context, origin, token string) error {
	if token == "" {
		return nil
	}
	if origin == "" {
		origin = "unknown"
	}
	return l.store.Remove(ctx, key(origin), token)
}

// Run sweeps idle origins every interval until ctx is cancelled. It returns
// immediately for stores that expire entries on their own.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	sw, ok := l.store.(Sweeper)
	if !ok {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := sw.Sweep(now, l.window); n > 0 {
				slog.Debug("swept idle rate limit entries", "removed", n)
			}
		}
	}
}

func key(origin string) string {
	return "contact:" + origin
}
