// Package timesync keeps the device's wall-clock estimate.
//
// The Clock is readable from boot: before the first synchronisation it runs
// from the boot-time wall reading plus monotonic elapsed time. The Syncer
// queries an NTP server while the link is up and moves the estimate by at
// most MaxSlew per adjustment, so the clock never jumps (in either
// direction) by more than the configured bound. A large error is worked off
// across several syncs.
package timesync

import (
	"sync"
	"time"
)

// Clock is the device's wall-clock estimate. It is written only by the
// Syncer and safe for concurrent reads.
type Clock struct {
	mu          sync.RWMutex
	bootWall    time.Time // wall reading at boot, monotonic part stripped
	bootMono    time.Time // monotonic reference
	offset      time.Duration
	synced      bool
	lastSync    time.Time
	maxSlew     time.Duration
	initialSnap bool
	loc         *time.Location

	since func(time.Time) time.Duration
}

// NewClock returns a Clock running on local fallback time.
//
// Parameters:
//   - maxSlew: Largest step a single adjustment may apply
//   - initialSnap: Let the first adjustment from the unsynchronised state apply in full
//   - loc: Zone the clock face is rendered in (nil means UTC)
func NewClock(maxSlew time.Duration, initialSnap bool, loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now()
	return &Clock{
		bootWall:    now.Round(0),
		bootMono:    now,
		maxSlew:     maxSlew,
		initialSnap: initialSnap,
		loc:         loc,
		since:       time.Since,
	}
}

// Now returns the current estimate in the display zone. It never blocks on the network.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() time.Time {
	return c.bootWall.Add(c.since(c.bootMono) + c.offset).In(c.loc)
}

// Adjust moves the estimate toward target.
//
// Returns:
//   - applied: The step applied to the estimate (|applied| <= maxSlew unless snapping)
//   - remaining: The error still outstanding after the step
func (c *Clock) Adjust(target time.Time) (applied, remaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	diff := target.Sub(c.nowLocked())
	applied = diff
	if c.synced || !c.initialSnap {
		applied = clamp(diff, c.maxSlew)
	}

	c.offset += applied
	c.synced = true
	c.lastSync = c.nowLocked()
	return applied, diff - applied
}

func clamp(d, bound time.Duration) time.Duration {
	if d > bound {
		return bound
	}
	if d < -bound {
		return -bound
	}
	return d
}

// Status describes the synchronisation state for diagnostics.
type Status struct {
	Synced   bool          `json:"synced"`
	LastSync time.Time     `json:"last_sync,omitzero"`
	Offset   time.Duration `json:"offset_ns"`
}

// Status returns the current synchronisation state.
func (c *Clock) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{Synced: c.synced, LastSync: c.lastSync, Offset: c.offset}
}

// Location returns the display zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}
