package dedup

import (
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// replayShardCount is kept small and power-of-two for fast masking.
const replayShardCount = 16

const (
	replayCompactMinPeak     = 256
	replayCompactShrinkRatio = 0.5
)

// ReplayFilter drops status payloads that were already seen within a time
// window. WSJT-X resends the same "QSO logged" datagram when the operator
// re-clicks Log, and a second listener may forward the same datagram again;
// either way only the first copy should reach the log.
//
// Payloads are keyed by their xxh3 hash folded to 32 bits.
type ReplayFilter struct {
	window          time.Duration
	now             func() time.Time
	shards          []replayShard
	cleanupInterval time.Duration
	shutdown        chan struct{}
	stopOnce        sync.Once
}

type replayShard struct {
	mu         sync.Mutex
	cache      map[uint32]time.Time
	processed  uint64
	duplicates uint64
	peak       int
}

// Purpose: Construct a replay filter.
// Key aspects: A non-positive window disables suppression (Admit always
// returns true).
// Upstream: session.New.
// Downstream: shard allocation.
func NewReplayFilter(window time.Duration) *ReplayFilter {
	shards := make([]replayShard, replayShardCount)
	for i := range shards {
		shards[i].cache = make(map[uint32]time.Time)
	}
	return &ReplayFilter{
		window:          window,
		now:             time.Now,
		shards:          shards,
		cleanupInterval: time.Minute,
		shutdown:        make(chan struct{}),
	}
}

// Start launches a periodic cleanup loop to bound memory.
func (f *ReplayFilter) Start() {
	if f == nil || f.window <= 0 {
		return
	}
	go f.cleanupLoop()
}

// Stop terminates the cleanup loop. Safe to call more than once.
func (f *ReplayFilter) Stop() {
	if f == nil {
		return
	}
	f.stopOnce.Do(func() { close(f.shutdown) })
}

// Admit reports whether payload is new within the window and records it.
func (f *ReplayFilter) Admit(payload []byte) bool {
	if f == nil || f.window <= 0 {
		return true
	}
	hash := uint32(xxh3.Hash(payload))
	shard := &f.shards[hash&(replayShardCount-1)]
	now := f.now().UTC()

	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.processed++
	if seen, ok := shard.cache[hash]; ok && now.Sub(seen) <= f.window {
		shard.duplicates++
		return false
	}
	shard.cache[hash] = now
	if size := len(shard.cache); size > shard.peak {
		shard.peak = size
	}
	return true
}

// Stats returns processed, duplicate and cache size totals.
func (f *ReplayFilter) Stats() (processed, duplicates uint64, cacheSize int) {
	if f == nil {
		return 0, 0, 0
	}
	for i := range f.shards {
		shard := &f.shards[i]
		shard.mu.Lock()
		processed += shard.processed
		duplicates += shard.duplicates
		cacheSize += len(shard.cache)
		shard.mu.Unlock()
	}
	return processed, duplicates, cacheSize
}

func (f *ReplayFilter) cleanupLoop() {
	ticker := time.NewTicker(f.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.shutdown:
			return
		case <-ticker.C:
			f.cleanup()
		}
	}
}

func (f *ReplayFilter) cleanup() {
	now := f.now().UTC()
	for i := range f.shards {
		shard := &f.shards[i]
		shard.mu.Lock()
		removed := false
		for hash, seen := range shard.cache {
			if now.Sub(seen) > f.window {
				delete(shard.cache, hash)
				removed = true
			}
		}
		if removed {
			compactShardLocked(shard)
		}
		shard.mu.Unlock()
	}
}

// compactShardLocked reallocates a shard map that has shrunk well below its
// peak so the runtime can release the old buckets.
func compactShardLocked(shard *replayShard) {
	if shard.peak < replayCompactMinPeak {
		return
	}
	if len(shard.cache) >= int(float64(shard.peak)*replayCompactShrinkRatio) {
		return
	}
	next := make(map[uint32]time.Time, len(shard.cache))
	for k, v := range shard.cache {
		next[k] = v
	}
	shard.cache = next
	shard.peak = len(next)
}
