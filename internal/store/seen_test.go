package store

import (
	"fmt"
	"testing"
)

func TestSeenCache_Basic(t *testing.T) {
	cache := NewSeenCache(100, 0.001)

	if cache.Has("album1") {
		t.Error("Empty cache should not have any albums")
	}
	if cache.Size() != 0 {
		t.Errorf("Empty cache size should be 0, got %d", cache.Size())
	}

	cache.Add("album1")
	if !cache.Has("album1") {
		t.Error("Cache should have album1 after adding")
	}
	if cache.Size() != 1 {
		t.Errorf("Cache size should be 1, got %d", cache.Size())
	}

	cache.Add("album1")
	if cache.Size() != 1 {
		t.Errorf("Duplicate add should not grow the cache, got %d", cache.Size())
	}
}

func TestSeenCache_Remove(t *testing.T) {
	cache := NewSeenCache(100, 0.001)

	cache.Add("album1")
	cache.Add("album2")

	cache.Remove("album1")
	if cache.Has("album1") {
		t.Error("Removed album should not be reported as present")
	}
	if !cache.Has("album2") {
		t.Error("Other albums should survive a removal")
	}
	if cache.Size() != 1 {
		t.Errorf("Cache size should be 1 after removal, got %d", cache.Size())
	}

	// Removing an absent album is a no-op.
	cache.Remove("album3")
	if cache.Size() != 1 {
		t.Errorf("Removing an absent album should not change size, got %d", cache.Size())
	}
}

func TestSeenCache_Load(t *testing.T) {
	cache := NewSeenCache(100, 0.001)

	cache.Load([]string{"album1", "", "album2", "album3"})
	if cache.Size() != 3 {
		t.Errorf("Load should skip empty IDs, got size %d", cache.Size())
	}

	cache.Load([]string{"album4"})
	if cache.Size() != 1 {
		t.Errorf("Reload should replace contents, got size %d", cache.Size())
	}
	if cache.Has("album1") {
		t.Error("Old snapshot should be gone after reload")
	}
	if !cache.Has("album4") {
		t.Error("New snapshot should be present after reload")
	}
}

func TestSeenCache_MaxCapacity(t *testing.T) {
	maxAlbums := 5
	cache := NewSeenCache(maxAlbums, 0.001)

	for i := 0; i < maxAlbums+3; i++ {
		cache.Add(fmt.Sprintf("album%d", i))
	}

	if cache.Size() > maxAlbums {
		t.Errorf("Cache size should not exceed %d, got %d", maxAlbums, cache.Size())
	}

	for _, albumID := range []string{"album5", "album6", "album7"} {
		if !cache.Has(albumID) {
			t.Errorf("Cache should keep recently added album %s", albumID)
		}
	}
}

func TestSeenCache_FalsePositiveRate(t *testing.T) {
	cache := NewSeenCache(1000, 0.001)

	numAlbums := 500
	for i := 0; i < numAlbums; i++ {
		cache.Add(fmt.Sprintf("album_%d", i))
	}

	falsePositives := 0
	testCount := 1000
	for i := numAlbums; i < numAlbums+testCount; i++ {
		if cache.Has(fmt.Sprintf("nonexistent_%d", i)) {
			falsePositives++
		}
	}

	if rate := float64(falsePositives) / float64(testCount); rate > 0.01 {
		t.Errorf("False positive rate too high: %f", rate)
	}
}

func BenchmarkSeenCache_Has(b *testing.B) {
	cache := NewSeenCache(10000, 0.001)
	for i := 0; i < 1000; i++ {
		cache.Add(fmt.Sprintf("album_%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Has(fmt.Sprintf("album_%d", i%1000))
	}
}
