package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))
	assert.GreaterOrEqual(t, c.Since(before), time.Duration(0))
}

func TestMockClock_FrozenUntilMoved(t *testing.T) {
	start := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
	assert.Equal(t, 90*time.Second, c.Since(start))

	later := start.Add(48 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestSteppingClock(t *testing.T) {
	start := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	c := NewSteppingClock(start, time.Second)

	first := c.Now()
	assert.Equal(t, start, first)
	assert.Equal(t, time.Second, c.Since(first))
}

func TestUTCDay(t *testing.T) {
	local := time.Date(2024, 5, 17, 21, 30, 0, 0, time.FixedZone("COT", -5*3600))
	got := UTCDay(NewMockClock(local))
	assert.Equal(t, time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), got)
}
