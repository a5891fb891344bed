package distcache

import "time"

const (
	// Infinite is the lifetime sentinel for "never expire".
	Infinite time.Duration = 0

	// MinLifetime is applied when an absolute deadline is already in the past.
	MinLifetime = time.Second
)

// Lifetime resolves the effective lifetime of an operation:
// a positive per-call override, else a positive default, else Infinite.
func Lifetime(override, def time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if def > 0 {
		return def
	}
	return Infinite
}

// LifetimeUntil converts an absolute deadline into a store ttl measured from now.
// Both instants are compared in UTC. A zero deadline is Infinite; a deadline that
// is not in the future yields MinLifetime so the write still lands and expires
// promptly.
func LifetimeUntil(deadline, now time.Time) time.Duration {
	if deadline.IsZero() {
		return Infinite
	}
	ttl := deadline.UTC().Sub(now.UTC())
	if ttl < MinLifetime {
		return MinLifetime
	}
	return ttl
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
