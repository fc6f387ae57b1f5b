package app

import (
	"sync"
	"testing"
	"time"
)

func TestSeenCacheRemembersWithinTTL(t *testing.T) {
	c := NewSeenCache(time.Hour, time.Hour)
	defer c.Close()

	if c.Seen("evt_1") {
		t.Error("first Seen(evt_1) = true, want false")
	}
	if !c.Seen("evt_1") {
		t.Error("second Seen(evt_1) = false, want true")
	}
	if c.Seen("evt_2") {
		t.Error("Seen(evt_2) = true for a fresh key")
	}
}

func TestSeenCacheExpiry(t *testing.T) {
	c := NewSeenCache(time.Hour, time.Hour)
	defer c.Close()

	c.mu.Lock()
	c.entries["evt_old"] = time.Now().Add(-2 * time.Hour)
	c.mu.Unlock()

	if c.Seen("evt_old") {
		t.Error("Seen returned true for an entry past its TTL")
	}
}

func TestSeenCacheForget(t *testing.T) {
	c := NewSeenCache(time.Hour, time.Hour)
	defer c.Close()

	c.Seen("evt_1")
	c.Forget("evt_1")
	if c.Seen("evt_1") {
		t.Error("Seen returned true after Forget")
	}
}

func TestSeenCacheEvict(t *testing.T) {
	c := NewSeenCache(time.Hour, time.Hour)
	defer c.Close()

	now := time.Now()
	c.mu.Lock()
	c.entries["stale"] = now.Add(-3 * time.Hour)
	c.entries["fresh"] = now.Add(-time.Minute)
	c.mu.Unlock()

	c.evict(now)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries["stale"]; ok {
		t.Error("evict kept an entry past its TTL")
	}
	if _, ok := c.entries["fresh"]; !ok {
		t.Error("evict dropped a live entry")
	}
}

func TestSeenCacheSingleWinnerUnderConcurrency(t *testing.T) {
	c := NewSeenCache(time.Hour, time.Hour)
	defer c.Close()

	const goroutines = 32
	var wg sync.WaitGroup
	firsts := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			firsts <- !c.Seen("evt_race")
		}()
	}
	wg.Wait()
	close(firsts)

	winners := 0
	for first := range firsts {
		if first {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestSeenCacheCloseIdempotent(t *testing.T) {
	c := NewSeenCache(time.Hour, time.Millisecond)
	c.Close()
	c.Close()
}
