// Package keypool manages a shared pool of API credentials with per-key
// rolling usage counters and rate-limit cooldowns. One pool instance is
// shared by every job in the process: the quota it guards is global.
package keypool

import (
	"sync"
	"time"
)

// rollingWindow is how long a key's call counter accumulates before reset.
const rollingWindow = 60 * time.Second

// usage tracks the mutable state of one key. Guarded by Pool.mu.
type usage struct {
	calls         int
	lastReset     time.Time
	cooldownUntil time.Time
}

// Pool selects the best available credential for each outbound call.
//
// Paid keys are always primary. The tail of the free list is held back as a
// backup reserve and only tapped when every primary key is cooling down, so
// a burst of rate limits on the primary set never leaves the pipeline dead.
type Pool struct {
	mu    sync.Mutex
	paid  []string
	free  []string
	usage map[string]*usage
	now   func() time.Time
}

// Option customizes a Pool.
type Option func(*Pool)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates a pool from the paid and free key lists.
func New(paid, free []string, opts ...Option) *Pool {
	p := &Pool{
		paid:  append([]string(nil), paid...),
		free:  append([]string(nil), free...),
		usage: make(map[string]*usage),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, k := range p.paid {
		p.usage[k] = &usage{lastReset: p.now()}
	}
	for _, k := range p.free {
		if _, dup := p.usage[k]; !dup {
			p.usage[k] = &usage{lastReset: p.now()}
		}
	}
	return p
}

// reserveCount computes how many free keys are held back as backup: 25% of
// the free list, at least one, except that a single free key is never
// reserved. The exact off-by-one handling is load-bearing and deliberate.
func reserveCount(freeKeys int) int {
	if freeKeys == 0 {
		return 0
	}
	backup := freeKeys / 4
	if backup < 1 {
		backup = 1
	}
	if backup >= freeKeys {
		if freeKeys == 1 {
			return 0
		}
		return 1
	}
	return backup
}

// splitFree returns the primary and backup portions of the free list.
// The backup reserve is always the tail of the configured order.
func (p *Pool) splitFree() (primary, backup []string) {
	n := reserveCount(len(p.free))
	if n == 0 {
		return p.free, nil
	}
	return p.free[:len(p.free)-n], p.free[len(p.free)-n:]
}

// Size returns the total number of configured keys.
func (p *Pool) Size() int {
	return len(p.paid) + len(p.free)
}

// PrimaryCount returns the number of keys outside the backup reserve.
// Worker concurrency is sized to this so primary-pool saturation never
// collides with backup capacity.
func (p *Pool) PrimaryCount() int {
	primaryFree, _ := p.splitFree()
	n := len(p.paid) + len(primaryFree)
	if n < 1 && p.Size() > 0 {
		n = 1
	}
	return n
}

// Acquire returns the least-loaded eligible key and increments its counter.
//
// While any primary key is out of cooldown, backup keys are never selected.
// If every key is cooling, the key with the soonest cooldown expiry is
// returned together with the remaining wait, so callers can sleep-and-retry
// instead of busy-spinning. ok is false only when the pool is empty.
func (p *Pool) Acquire() (key string, wait time.Duration, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Size() == 0 {
		return "", 0, false
	}

	now := p.now()
	primaryFree, backup := p.splitFree()
	primary := make([]string, 0, len(p.paid)+len(primaryFree))
	primary = append(primary, p.paid...)
	primary = append(primary, primaryFree...)

	for _, k := range append(append([]string(nil), primary...), backup...) {
		u := p.usage[k]
		if now.Sub(u.lastReset) > rollingWindow {
			u.calls = 0
			u.lastReset = now
		}
	}

	best := p.leastLoaded(primary, now)
	if best == "" {
		best = p.leastLoaded(backup, now)
	}
	if best == "" {
		// Everything is cooling; hand back the key closest to waking up.
		soonest := ""
		for _, k := range append(append([]string(nil), primary...), backup...) {
			if soonest == "" || p.usage[k].cooldownUntil.Before(p.usage[soonest].cooldownUntil) {
				soonest = k
			}
		}
		return soonest, p.usage[soonest].cooldownUntil.Sub(now), true
	}

	p.usage[best].calls++
	return best, 0, true
}

// leastLoaded returns the candidate with the fewest rolling-window calls
// among those not in cooldown, or "" when none is available.
func (p *Pool) leastLoaded(candidates []string, now time.Time) string {
	best := ""
	for _, k := range candidates {
		u := p.usage[k]
		if now.Before(u.cooldownUntil) {
			continue
		}
		if best == "" || u.calls < p.usage[best].calls {
			best = k
		}
	}
	return best
}

// Cooldown marks a key unusable for the given duration. The write is made
// under the pool lock, so one caller's rate-limit response immediately
// protects every other goroutine sharing the key.
func (p *Pool) Cooldown(key string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, known := p.usage[key]
	if !known {
		return
	}
	until := p.now().Add(d)
	if until.After(u.cooldownUntil) {
		u.cooldownUntil = until
	}
}

// Calls reports the current rolling-window call count of a key.
func (p *Pool) Calls(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, known := p.usage[key]; known {
		return u.calls
	}
	return 0
}
