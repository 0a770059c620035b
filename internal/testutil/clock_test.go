package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestClock_Monotonic(t *testing.T) {
	clock := NewClock(base, time.Minute)

	assert.Equal(t, base, clock.Next())
	assert.Equal(t, base.Add(time.Minute), clock.Next())
	assert.Equal(t, base.Add(2*time.Minute), clock.Next())
}

func TestClock_CurrentDoesNotAdvance(t *testing.T) {
	clock := NewClock(base, time.Minute)

	assert.Equal(t, base, clock.Current())
	clock.Next()
	assert.Equal(t, base, clock.Current())
	assert.Equal(t, clock.Current(), clock.Current())
}

func TestClock_Reset(t *testing.T) {
	clock := NewClock(base, time.Minute)
	clock.Next()
	clock.Next()

	clock.Reset()
	assert.Equal(t, base, clock.Next())
}

func TestClock_NormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("CEST", 2*60*60)
	clock := NewClock(time.Date(2026, 5, 1, 14, 0, 0, 0, zone), time.Minute)

	got := clock.Next()
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(base))
}

func TestFixedLabelGenerator(t *testing.T) {
	g := NewFixedLabelGenerator("batch-1")
	assert.Equal(t, "batch-1", g.Generate())
	assert.Equal(t, "batch-1", g.Generate())

	assert.Equal(t, "test-batch", NewFixedLabelGenerator("").Generate())
}
