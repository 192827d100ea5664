package sqkv

import (
	"hash/fnv"
	"sync"
)

// Unbounded is the sentinel that disables a size limit dimension.
const Unbounded = -1

// RouterConfig are the fixed, startup-time parameters of a Router. They
// never change after NewRouter: shard count and per-shard capacity are baked
// into the shard array, and the two size limits are read on every Insert.
type RouterConfig struct {
	ShardCount       int
	CapacityPerShard int
	MaxKeyBytes      int
	MaxValueBytes    int
}

// Router is the ShardRouter of spec.md §3/§4.3: a fixed array of shard
// engines, a key-to-shard hash, size-limit enforcement on Insert, and a
// router-wide reader-writer gate used solely to define a global
// quiescence point for snapshot capture/restore.
//
// Grounded on the teacher's LRUCache, generalized exactly as spec.md §9
// prescribes: the teacher's single per-call Lock/RLock on LRUCache
// becomes the gate here, and a separate shard-local lock (embedded in
// shard) is introduced so point operations on different shards no longer
// serialize against each other at all.
type Router struct {
	gate sync.RWMutex

	shards           []*shard
	shardCount       int
	capacityPerShard int
	maxKeyBytes      int
	maxValueBytes    int

	clock Clock
}

// NewRouter constructs a Router with cfg.ShardCount independent shards,
// each with capacity cfg.CapacityPerShard. ShardCount must be a positive
// power of two and CapacityPerShard must be >= 1: both are startup
// configuration errors, so a violation panics rather than returning an
// error a caller could plausibly retry from.
func NewRouter(cfg RouterConfig, clock Clock) *Router {
	if cfg.ShardCount < 1 || cfg.ShardCount&(cfg.ShardCount-1) != 0 {
		panic("sqkv: ShardCount must be a positive power of two")
	}
	if cfg.CapacityPerShard < 1 {
		panic("sqkv: CapacityPerShard must be >= 1")
	}
	if clock == nil {
		clock = SystemClock{}
	}

	r := &Router{
		shards:           make([]*shard, cfg.ShardCount),
		shardCount:       cfg.ShardCount,
		capacityPerShard: cfg.CapacityPerShard,
		maxKeyBytes:      cfg.MaxKeyBytes,
		maxValueBytes:    cfg.MaxValueBytes,
		clock:            clock,
	}
	for i := range r.shards {
		r.shards[i] = newShard(i, cfg.CapacityPerShard, clock)
	}
	return r
}

// ShardCount returns the fixed number of shards.
func (r *Router) ShardCount() int { return r.shardCount }

// CapacityPerShard returns the fixed per-shard capacity.
func (r *Router) CapacityPerShard() int { return r.capacityPerShard }

// shardIndex computes the shard a key routes to: a 32-bit FNV-1a content
// hash, spread by XOR with its own logical right-shift-by-16 (the
// java.util.HashMap spreading function spec.md §4.3 names), masked by
// shardCount-1. Empty/nil keys route deterministically to shard 0.
func (r *Router) shardIndex(key []byte) int {
	if len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	v := h.Sum32()
	v ^= v >> 16
	return int(v) & (r.shardCount - 1)
}

// Insert upserts key/value, failing with ErrTooLarge before touching any
// shard if either dimension exceeds its configured limit.
func (r *Router) Insert(key, value []byte) error {
	if r.maxKeyBytes != Unbounded && len(key) > r.maxKeyBytes {
		return &ErrTooLarge{Kind: SizeKindKey, Size: len(key), Limit: r.maxKeyBytes}
	}
	if r.maxValueBytes != Unbounded && len(value) > r.maxValueBytes {
		return &ErrTooLarge{Kind: SizeKindValue, Size: len(value), Limit: r.maxValueBytes}
	}

	r.gate.RLock()
	defer r.gate.RUnlock()

	idx := r.shardIndex(key)
	sh := r.shards[idx]
	sh.Lock()
	defer sh.Unlock()

	keyCopy := append([]byte(nil), key...)
	valueCopy := append([]byte(nil), value...)
	sh.Insert(keyCopy, valueCopy)
	return nil
}

// Get returns a copy of the value stored for key, if present and unexpired.
func (r *Router) Get(key []byte) ([]byte, bool) {
	r.gate.RLock()
	defer r.gate.RUnlock()

	sh := r.shards[r.shardIndex(key)]
	sh.Lock()
	defer sh.Unlock()

	value, found := sh.Get(key)
	if !found {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// Delete removes key if present, returning whether it was live.
func (r *Router) Delete(key []byte) bool {
	r.gate.RLock()
	defer r.gate.RUnlock()

	sh := r.shards[r.shardIndex(key)]
	sh.Lock()
	defer sh.Unlock()

	return sh.Delete(key)
}

// Expire stamps key with an absolute expiration ttlMillis from now.
func (r *Router) Expire(key []byte, ttlMillis int64) (bool, error) {
	r.gate.RLock()
	defer r.gate.RUnlock()

	sh := r.shards[r.shardIndex(key)]
	sh.Lock()
	defer sh.Unlock()

	return sh.Expire(key, ttlMillis)
}

// ContainsKey reports presence without revealing the value.
func (r *Router) ContainsKey(key []byte) bool {
	r.gate.RLock()
	defer r.gate.RUnlock()

	sh := r.shards[r.shardIndex(key)]
	sh.Lock()
	defer sh.Unlock()

	return sh.ContainsKey(key)
}

// Size returns the total number of live entries across every shard.
func (r *Router) Size() int {
	r.gate.RLock()
	defer r.gate.RUnlock()

	total := 0
	for _, sh := range r.shards {
		sh.Lock()
		total += sh.Size()
		sh.Unlock()
	}
	return total
}

// Clear drops every entry in every shard.
func (r *Router) Clear() {
	r.gate.RLock()
	defer r.gate.RUnlock()

	for _, sh := range r.shards {
		sh.Lock()
		sh.Clear()
		sh.Unlock()
	}
}

// Stats returns the store-wide aggregate of every shard's counters.
func (r *Router) Stats() StatsSnapshot {
	var total StatsSnapshot
	for _, sh := range r.shards {
		total = total.Add(sh.stats.Snapshot())
	}
	return total
}

// ResetStats zeroes every shard's counters.
func (r *Router) ResetStats() {
	for _, sh := range r.shards {
		sh.stats.Reset()
	}
}

// SweepExpiredAll drives one sweep pass over every shard concurrently,
// fanning out a goroutine per shard and waiting for all to finish, the way
// the teacher's cleanupShards dispatches one CleanupShard call per shard
// over a sync.WaitGroup. Returns the total number of expired entries
// removed. Used by BackgroundSweeper.
func (r *Router) SweepExpiredAll() int64 {
	r.gate.RLock()
	defer r.gate.RUnlock()

	var wg sync.WaitGroup
	counts := make([]int64, len(r.shards))
	for i, sh := range r.shards {
		wg.Add(1)
		go func(i int, sh *shard) {
			defer wg.Done()
			sh.Lock()
			counts[i] = sh.SweepExpired()
			sh.Unlock()
		}(i, sh)
	}
	wg.Wait()

	var total int64
	for _, c := range counts {
		total += c
	}
	return total
}

// CaptureSnapshot acquires the gate exclusively and drains every shard into
// an in-memory SnapshotImage reflecting exactly the live entries present at
// the instant the gate was granted, per spec.md §4.3/§5. No point operation
// can be observed overlapping this call.
func (r *Router) CaptureSnapshot() SnapshotImage {
	r.gate.Lock()
	defer r.gate.Unlock()

	img := SnapshotImage{
		CaptureTimestampMillis: r.clock.NowMillis(),
		ShardCount:             r.shardCount,
		CapacityPerShard:       r.capacityPerShard,
		Shards:                 make([]ShardImage, r.shardCount),
	}
	for i, sh := range r.shards {
		img.Shards[i] = sh.DrainForSnapshot()
	}
	return img
}

// RestoreSnapshot acquires the gate exclusively and replaces every shard's
// content from img. Fails with ErrShardCountMismatch, leaving the store
// entirely unchanged, if img's shard count differs from this router's.
func (r *Router) RestoreSnapshot(img SnapshotImage) error {
	if img.ShardCount != r.shardCount {
		return &ErrShardCountMismatch{ImageShards: img.ShardCount, StoreShards: r.shardCount}
	}

	r.gate.Lock()
	defer r.gate.Unlock()

	for i, sh := range r.shards {
		sh.Lock()
		sh.LoadFromSnapshot(img.Shards[i])
		sh.Unlock()
	}
	return nil
}
