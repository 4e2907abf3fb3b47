package timesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(maxSlew time.Duration, snap bool) (*Clock, *time.Duration) {
	c := NewClock(maxSlew, snap, time.UTC)
	c.bootWall = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	elapsed := new(time.Duration)
	c.since = func(time.Time) time.Duration { return *elapsed }
	return c, elapsed
}

func TestClock_FallbackRunsFromBoot(t *testing.T) {
	c, elapsed := fixedClock(time.Second, false)

	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), c.Now())
	*elapsed = 90 * time.Second
	assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 30, 0, time.UTC), c.Now())
	assert.False(t, c.Status().Synced)
}

func TestClock_AdjustBoundedBySlew(t *testing.T) {
	c, _ := fixedClock(30*time.Second, false)
	target := c.Now().Add(10 * time.Minute)

	syncs := 0
	for {
		before := c.Now()
		applied, remaining := c.Adjust(target)
		syncs++

		assert.LessOrEqual(t, applied.Abs(), 30*time.Second)
		assert.Equal(t, applied, c.Now().Sub(before))
		if remaining == 0 {
			break
		}
		if syncs > 100 {
			t.Fatal("clock never converged")
		}
	}

	assert.Equal(t, 20, syncs)
	assert.Equal(t, target, c.Now())
	assert.True(t, c.Status().Synced)
}

func TestClock_NeverRegressesMoreThanSlew(t *testing.T) {
	c, _ := fixedClock(2*time.Second, false)
	before := c.Now()

	applied, remaining := c.Adjust(before.Add(-time.Hour))

	assert.Equal(t, -2*time.Second, applied)
	assert.Equal(t, -time.Hour+2*time.Second, remaining)
	assert.Equal(t, before.Add(-2*time.Second), c.Now())
}

func TestClock_SmallErrorAppliedInFull(t *testing.T) {
	c, _ := fixedClock(time.Second, false)
	target := c.Now().Add(250 * time.Millisecond)

	applied, remaining := c.Adjust(target)

	assert.Equal(t, 250*time.Millisecond, applied)
	assert.Zero(t, remaining)
}

func TestClock_InitialSnap(t *testing.T) {
	c, _ := fixedClock(time.Second, true)
	target := c.Now().Add(-48 * time.Hour)

	applied, remaining := c.Adjust(target)
	assert.Equal(t, -48*time.Hour, applied)
	assert.Zero(t, remaining)

	// Only the first adjustment may snap.
	applied, _ = c.Adjust(target.Add(time.Hour))
	assert.Equal(t, time.Second, applied)
}

func TestClock_Location(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	c := NewClock(time.Second, false, loc)

	assert.Equal(t, loc, c.Now().Location())
	assert.Equal(t, loc, c.Location())
}
