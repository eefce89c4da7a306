package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agrismart-monitor/internal/clock"
)

func TestTTL_ExpiresWithClock(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTL[string, int](30*time.Minute, clk)

	c.Set("abidjan", 31)
	v, ok := c.Get("abidjan")
	assert.True(t, ok)
	assert.Equal(t, 31, v)

	clk.Advance(29 * time.Minute)
	_, ok = c.Get("abidjan")
	assert.True(t, ok)

	clk.Advance(time.Minute)
	_, ok = c.Get("abidjan")
	assert.False(t, ok, "entry expires exactly at ttl")
	assert.Equal(t, 0, c.Len())
}

func TestTTL_SetRefreshesExpiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTL[string, string](time.Minute, clk)

	c.Set("k", "a")
	clk.Advance(50 * time.Second)
	c.Set("k", "b")
	clk.Advance(50 * time.Second)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestTTL_PurgeAndDelete(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTL[int, bool](time.Minute, clk)
	c.Set(1, true)
	c.Set(2, true)
	clk.Advance(2 * time.Minute)
	c.Set(3, true)

	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 1, c.Len())

	c.Delete(3)
	assert.Equal(t, 0, c.Len())
}
