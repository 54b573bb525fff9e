// ABOUTME: Tests for the ingest frame dedupe cache.
// ABOUTME: Covers duplicate detection, TTL expiry, capacity eviction, Close.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SeenMarksAndDetectsDuplicates(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("frame-1"), "first sighting is not a duplicate")
	assert.True(t, c.Seen("frame-1"), "second sighting is a duplicate")
	assert.False(t, c.Seen("frame-2"))
}

func TestCache_ExpiredEntriesAreNotDuplicates(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Seen("frame-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("frame-1"), "expired entry counts as new")
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 4; i++ {
		c.Seen(fmt.Sprintf("frame-%d", i))
	}

	// frame-0 was evicted to make room; it reads as new again.
	assert.False(t, c.Seen("frame-0"))
	assert.True(t, c.Seen("frame-3"))
}

func TestCache_ConcurrentSeenIsSafe(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	duplicates := make([]int, 8)
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if c.Seen(fmt.Sprintf("frame-%d", i)) {
					duplicates[w]++
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, d := range duplicates {
		total += d
	}
	// Each of the 100 IDs is new exactly once across all workers.
	assert.Equal(t, 8*100-100, total)
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
