package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	c.Set("key1", "value1")

	val, found := c.Get("key1")
	assert.True(t, found)
	assert.Equal(t, "value1", val)
}

func TestCache_GetMissing(t *testing.T) {
	c := New[*int](time.Hour)
	defer c.Close()

	val, found := c.Get("nonexistent")
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestCache_Expiration(t *testing.T) {
	c := New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key", "value")

	_, found := c.Get("key")
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	val, found := c.Get("key")
	assert.False(t, found)
	assert.Empty(t, val)
}

func TestCache_SetWithTTL(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	c.SetWithTTL("short", "value", 50*time.Millisecond)
	c.Set("long", "value")

	time.Sleep(100 * time.Millisecond)

	_, found := c.Get("short")
	assert.False(t, found)
	_, found = c.Get("long")
	assert.True(t, found)
}

func TestCache_EvictExpired(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	defer c.Close()

	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Hour)
	time.Sleep(20 * time.Millisecond)

	c.evictExpired()
	assert.Equal(t, 1, c.Len())
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Delete("key1")

	_, found := c.Get("key1")
	assert.False(t, found)

	c.Clear()
	_, found = c.Get("key2")
	assert.False(t, found)
}

func TestCache_GetOrSet(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	callCount := 0
	fn := func() (string, error) {
		callCount++
		return "computed", nil
	}

	val, err := c.GetOrSet("key", fn)
	assert.NoError(t, err)
	assert.Equal(t, "computed", val)

	val, err = c.GetOrSet("key", fn)
	assert.NoError(t, err)
	assert.Equal(t, "computed", val)
	assert.Equal(t, 1, callCount)

	_, err = c.GetOrSet("failing", func() (string, error) {
		return "", errors.New("boom")
	})
	assert.Error(t, err)
	_, found := c.Get("failing")
	assert.False(t, found)
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New[string](time.Hour)

	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
}

func TestStatsKey(t *testing.T) {
	assert.Equal(t, "stats:abc", StatsKey("abc"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Hour)
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Set("key", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Get("key")
		}
	}()
	wg.Wait()
}
