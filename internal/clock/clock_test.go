package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStepping_Sequence(t *testing.T) {
	c := NewStepping(start, time.Second)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())
	assert.Equal(t, start.Add(2*time.Second), c.Peek())
	assert.Equal(t, start.Add(2*time.Second), c.Now())
}

func TestStepping_SetAndReset(t *testing.T) {
	c := NewStepping(start, time.Minute)
	c.Now()

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())

	c.Reset()
	assert.Equal(t, start, c.Now())
}

func TestStepping_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	c := NewStepping(time.Date(2026, 3, 1, 11, 0, 0, 0, loc), time.Second)

	got := c.Now()
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(start))
}

func TestStepping_ConcurrentUnique(t *testing.T) {
	c := NewStepping(start, time.Nanosecond)

	const n = 100
	var wg sync.WaitGroup
	results := make(chan time.Time, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Now()
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[time.Time]bool)
	for ts := range results {
		require.False(t, seen[ts], "duplicate timestamp %v", ts)
		seen[ts] = true
	}
	assert.Len(t, seen, n)
}

func TestSystem_IsUTC(t *testing.T) {
	now := System{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}
