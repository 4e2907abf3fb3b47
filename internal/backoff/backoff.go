// Package backoff implements the capped exponential retry delay shared by the
// Wi-Fi link and the messaging session.
//
// Delays start at Floor and grow by Factor per failed attempt:
//
//	delay(1)   = Floor
//	delay(n+1) = min(delay(n) * Factor, Ceiling)
//
// The schedule returns to Floor only after a connection stayed up for at
// least StableAfter, so a link that flaps immediately after connecting keeps
// backing off instead of hammering the access point or broker.
package backoff

import (
	"context"
	"time"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	Floor       time.Duration
	Ceiling     time.Duration
	Factor      float64
	StableAfter time.Duration
}

// FromConfig converts a BackoffConfig (seconds) into a Policy with factor 2.
func FromConfig(cfg config.BackoffConfig) Policy {
	return Policy{
		Floor:       config.Seconds(cfg.InitialDelay),
		Ceiling:     config.Seconds(cfg.MaxDelay),
		Factor:      2,
		StableAfter: config.Seconds(cfg.StableAfter),
	}
}

// Backoff tracks the position in a Policy's schedule. Not safe for
// concurrent use; each retry loop owns its own Backoff.
type Backoff struct {
	policy  Policy
	attempt int
	delay   time.Duration
}

// New returns a Backoff positioned at the start of the schedule.
func New(p Policy) *Backoff {
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.Ceiling < p.Floor {
		p.Ceiling = p.Floor
	}
	return &Backoff{policy: p}
}

// Next records a failed attempt and returns the delay before the next one.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	if b.attempt == 1 {
		b.delay = b.policy.Floor
	} else {
		next := time.Duration(float64(b.delay) * b.policy.Factor)
		if next > b.policy.Ceiling || next < b.delay {
			next = b.policy.Ceiling
		}
		b.delay = next
	}
	return b.delay
}

// Attempt returns the number of failed attempts since the last reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset returns the schedule to Floor.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.delay = 0
}

// ObserveUptime is called when a connection that lasted uptime ends. It
// resets the schedule if the connection was stable and reports whether it did.
func (b *Backoff) ObserveUptime(uptime time.Duration) bool {
	if uptime >= b.policy.StableAfter {
		b.Reset()
		return true
	}
	return false
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
