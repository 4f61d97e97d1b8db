// Package store tracks which albums are already in the managed library,
// using a Bloom filter for cheap negative checks and an LRU cache to bound
// memory.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenCache answers "do we already have this album" for new-release
// discovery. It is safe for concurrent use.
type SeenCache struct {
	albumIDs          map[string]struct{}
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	maxAlbums         int
	falsePositiveRate float64
}

func NewSeenCache(maxAlbums int, falsePositiveRate float64) *SeenCache {
	if maxAlbums <= 0 {
		panic("maxAlbums must be positive")
	}

	lruCache, _ := lru.New[string, struct{}](maxAlbums)
	bloomFilter := bloom.NewWithEstimates(uint(maxAlbums), falsePositiveRate)

	return &SeenCache{
		albumIDs:          make(map[string]struct{}),
		bloom:             bloomFilter,
		lru:               lruCache,
		maxAlbums:         maxAlbums,
		falsePositiveRate: falsePositiveRate,
	}
}

// Has checks if an album is in the library. The Bloom filter short-circuits
// the common miss case without touching the map.
func (sc *SeenCache) Has(albumID string) bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.bloom.TestString(albumID) {
		return false
	}

	_, exists := sc.albumIDs[albumID]
	return exists
}

func (sc *SeenCache) Add(albumID string) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if _, exists := sc.albumIDs[albumID]; exists {
		return
	}

	sc.albumIDs[albumID] = struct{}{}
	sc.bloom.AddString(albumID)
	sc.lru.Add(albumID, struct{}{})

	if len(sc.albumIDs) > sc.maxAlbums {
		sc.evictOldest()
	}
}

// Remove drops an album after it leaves the library. The Bloom filter does
// not support removal, so a removed album may still cost a map lookup.
func (sc *SeenCache) Remove(albumID string) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if _, exists := sc.albumIDs[albumID]; !exists {
		return
	}

	delete(sc.albumIDs, albumID)
	sc.lru.Remove(albumID)
}

// Load replaces the cache contents with a fresh library snapshot.
func (sc *SeenCache) Load(albumIDs []string) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	sc.clear()

	for _, albumID := range albumIDs {
		if albumID != "" {
			sc.albumIDs[albumID] = struct{}{}
			sc.bloom.AddString(albumID)
			sc.lru.Add(albumID, struct{}{})
		}
	}

	for len(sc.albumIDs) > sc.maxAlbums {
		sc.evictOldest()
	}
}

func (sc *SeenCache) Size() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return len(sc.albumIDs)
}

func (sc *SeenCache) Clear() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	sc.clear()
}

func (sc *SeenCache) clear() {
	sc.albumIDs = make(map[string]struct{})
	sc.bloom = bloom.NewWithEstimates(uint(sc.maxAlbums), sc.falsePositiveRate)
	sc.lru.Purge()
}

func (sc *SeenCache) evictOldest() {
	oldestKey, _, ok := sc.lru.GetOldest()
	if !ok {
		return
	}

	delete(sc.albumIDs, oldestKey)
	sc.lru.Remove(oldestKey)
}
