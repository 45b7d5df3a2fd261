package cache

import (
	"sync"
	"testing"
	"time"
)

func TestNewNormalizesNegativeOptions(t *testing.T) {
	c := New(Options{TTL: -time.Minute, MaxSize: -10})
	if c.ttl != 0 {
		t.Errorf("expected TTL 0, got %v", c.ttl)
	}
	if c.maxSize != 0 {
		t.Errorf("expected maxSize 0, got %d", c.maxSize)
	}
}

func TestPutGetRoundTrips(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 100})
	c.Put("key1", "value1")
	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key1 to be present")
	}
	if got != "value1" {
		t.Errorf("expected value1, got %v", got)
	}
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 100})
	if _, ok := c.Get("missing"); ok {
		t.Error("expected false for missing key")
	}
}

func TestPutEmptyKeyIsNoop(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 100})
	c.Put("", "value")
	if c.Size() != 0 {
		t.Error("expected cache to remain empty")
	}
}

func TestGetExpiresAfterTTL(t *testing.T) {
	c := New(Options{TTL: 100 * time.Millisecond, MaxSize: 100})
	base := time.Now()
	c.PutAt("key1", "value1", base)

	if _, ok := c.GetAt("key1", base.Add(50*time.Millisecond)); !ok {
		t.Error("expected value within TTL")
	}
	if _, ok := c.GetAt("key1", base.Add(150*time.Millisecond)); ok {
		t.Error("expected expiry after TTL")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New(Options{TTL: 0, MaxSize: 100})
	base := time.Now()
	c.PutAt("key1", "value1", base)
	if _, ok := c.GetAt("key1", base.Add(24*time.Hour)); !ok {
		t.Error("expected value to survive with zero TTL")
	}
}

func TestMaxSizeEvictsOldestEntry(t *testing.T) {
	c := New(Options{TTL: time.Hour, MaxSize: 2})
	base := time.Now()
	c.PutAt("key1", "v1", base)
	c.PutAt("key2", "v2", base.Add(time.Millisecond))
	c.PutAt("key3", "v3", base.Add(2*time.Millisecond))

	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 to be evicted as oldest")
	}
	if _, ok := c.Get("key2"); !ok {
		t.Error("expected key2 to still exist")
	}
	if _, ok := c.Get("key3"); !ok {
		t.Error("expected key3 to still exist")
	}
}

func TestOverwritingKeyRefreshesInsertOrder(t *testing.T) {
	c := New(Options{TTL: time.Hour, MaxSize: 2})
	base := time.Now()
	c.PutAt("key1", "v1", base)
	c.PutAt("key2", "v2", base.Add(time.Millisecond))
	c.PutAt("key1", "v1b", base.Add(2*time.Millisecond))
	c.PutAt("key3", "v3", base.Add(3*time.Millisecond))

	if _, ok := c.Get("key2"); ok {
		t.Error("expected key2 to be evicted, key1 was refreshed")
	}
	got, ok := c.Get("key1")
	if !ok || got != "v1b" {
		t.Errorf("expected key1=v1b, got %v (ok=%v)", got, ok)
	}
}

func TestRemoveDeletesKey(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 100})
	c.Put("key1", "v1")
	c.Put("key2", "v2")
	c.Remove("key1")

	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 to be removed")
	}
	if _, ok := c.Get("key2"); !ok {
		t.Error("expected key2 to still exist")
	}
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 100})
	c.Put("key1", "v1")
	c.Put("key2", "v2")
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("expected size 0 after clear, got %d", c.Size())
	}
}

func TestSizeTracksEntryCount(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 100})
	if c.Size() != 0 {
		t.Errorf("expected initial size 0, got %d", c.Size())
	}
	c.Put("key1", "v1")
	c.Put("key2", "v2")
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
	c.Put("key1", "v1b")
	if c.Size() != 2 {
		t.Errorf("expected size 2 after overwrite, got %d", c.Size())
	}
}

func TestZeroMaxSizeClearsOnPrune(t *testing.T) {
	c := New(Options{TTL: time.Hour, MaxSize: 0})
	c.Put("key1", "v1")
	if c.Size() != 0 {
		t.Errorf("expected empty cache with maxSize 0, got %d", c.Size())
	}
}

func TestConcurrentPutGetDoesNotRace(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "key" + string(rune('a'+id%26))
			for j := 0; j < 100; j++ {
				c.Put(key, j)
				c.Get(key)
				c.Size()
			}
		}(i)
	}
	wg.Wait()
	if c.Size() == 0 {
		t.Error("expected some entries after concurrent operations")
	}
}
