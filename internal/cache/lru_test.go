package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLRU(size int) (*LRU[string], *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[string](size, func() time.Time { return now })
	return c, &now
}

func TestLRUExpiry(t *testing.T) {
	c, now := newTestLRU(10)
	c.Set("a", "1", now.Add(time.Minute))

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	*now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUIgnoresPastExpiry(t *testing.T) {
	c, now := newTestLRU(10)
	c.Set("a", "1", now.Add(-time.Second))
	assert.Equal(t, 0, c.Len())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, now := newTestLRU(2)
	exp := now.Add(time.Hour)
	c.Set("a", "1", exp)
	c.Set("b", "2", exp)
	c.Get("a")
	c.Set("c", "3", exp)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUOverwrite(t *testing.T) {
	c, now := newTestLRU(2)
	c.Set("a", "1", now.Add(time.Hour))
	c.Set("a", "2", now.Add(time.Hour))
	v, _ := c.Get("a")
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUSweep(t *testing.T) {
	c, now := newTestLRU(10)
	c.Set("short", "1", now.Add(time.Second))
	c.Set("long", "2", now.Add(time.Hour))

	*now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.Sweep())
}

func TestNewLRUDefaultsToWallClock(t *testing.T) {
	c := NewLRU[string](1, nil)
	c.Set("a", "1", time.Now().Add(time.Hour))
	_, ok := c.Get("a")
	assert.True(t, ok)
}
