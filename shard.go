package sqkv

import (
	"sync"

	"github.com/mariusromeiser/generic_syncpool"
)

// shard is one LruTtlMap: a fixed-capacity, thread-safe map with O(1) LRU
// eviction and inline per-key TTL. It is the per-shard engine of spec.md
// §4.1, adapted from the teacher's lruCacheShard — generalized from a
// plain LRU cache shard to one that also tracks an optional expiration
// inline on each node, and from generic K/V to concrete []byte key/value.
//
// A shard never takes its own lock internally; callers (the Router) hold
// the shard's embedded lock for the duration of a call. This mirrors the teacher's
// lruCacheShard, which embeds sync.RWMutex and leaves locking to its
// caller (LRUCache) rather than locking itself.
type shard struct {
	sync.RWMutex

	id       int
	capacity int

	clock Clock
	stats *StatsCounters

	list  *nodeList
	index map[string]*node
	pool  *generic_syncpool.Pool[node]
}

func newShard(id, capacity int, clock Clock) *shard {
	return &shard{
		id:       id,
		capacity: capacity,
		clock:    clock,
		stats:    newStatsCounters(),
		list:     newNodeList(),
		index:    make(map[string]*node, capacity),
		pool:     generic_syncpool.New[node](),
	}
}

func (s *shard) getFromPool(key, value []byte, hasExpire bool, expireAt int64) *node {
	n := s.pool.Get()
	n.key = key
	n.value = value
	n.hasExpire = hasExpire
	n.expireAtMillis = expireAt
	return n
}

func (s *shard) putInPool(n *node) {
	n.reset()
	s.pool.Put(n)
}

// isExpired reports whether n's expiration, if any, has passed as of now.
func (s *shard) isExpired(n *node, nowMillis int64) bool {
	return n.hasExpire && n.expireAtMillis <= nowMillis
}

// removeLocked unlinks n from both the list and the index and returns it
// to the pool. It counts nothing; each caller records the removal as an
// expiration, an eviction, or a delete itself.
func (s *shard) removeLocked(n *node) {
	s.list.Remove(n)
	delete(s.index, string(n.key))
	s.putInPool(n)
}

// removeOldestLocked evicts the least-recently-used node, if any, and
// returns its key so the caller can report it. Counts one eviction.
func (s *shard) removeOldestLocked() (evictedKey []byte, evicted bool) {
	victim := s.list.Back()
	if victim == nil {
		return nil, false
	}
	evictedKey = victim.key
	s.removeLocked(victim)
	s.stats.recordEviction()
	return evictedKey, true
}

// Insert upserts key/value with no expiration, clearing any prior TTL.
// Evicts the LRU entry if the map is at capacity and the key is new.
func (s *shard) Insert(key, value []byte) (evictedKey []byte, evicted bool) {
	s.stats.recordSet()

	k := string(key)
	if existing, found := s.index[k]; found {
		existing.value = value
		existing.hasExpire = false
		existing.expireAtMillis = 0
		s.list.MoveToFront(existing)
		return nil, false
	}

	if len(s.index) >= s.capacity {
		evictedKey, evicted = s.removeOldestLocked()
	}

	n := s.getFromPool(key, value, false, 0)
	s.list.PushFront(n)
	s.index[k] = n

	return evictedKey, evicted
}

// Get returns the value for key if present and unexpired, moving it to
// most-recently-used. A lazily-discovered expiration removes the entry,
// counts one expiration and one miss, and returns not-found.
func (s *shard) Get(key []byte) (value []byte, found bool) {
	s.stats.gets.Add(1)

	n, ok := s.index[string(key)]
	if !ok {
		s.stats.misses.Add(1)
		return nil, false
	}

	if s.isExpired(n, s.clock.NowMillis()) {
		s.removeLocked(n)
		s.stats.recordExpirations(1)
		s.stats.misses.Add(1)
		return nil, false
	}

	s.list.MoveToFront(n)
	s.stats.hits.Add(1)
	return n.value, true
}

// ContainsKey reports presence without revealing the value, applying the
// same lazy-expiry rule as Get but without moving the entry in LRU order
// or counting a hit/miss pair (presence checks are not "gets").
func (s *shard) ContainsKey(key []byte) bool {
	n, ok := s.index[string(key)]
	if !ok {
		return false
	}
	if s.isExpired(n, s.clock.NowMillis()) {
		s.removeLocked(n)
		s.stats.recordExpirations(1)
		return false
	}
	return true
}

// Delete removes key if present and returns whether a live entry was
// removed. Always counted as a delete call, regardless of whether the key
// existed. An entry found already expired is removed, counted as an
// expiration, and reported as not removed.
func (s *shard) Delete(key []byte) bool {
	s.stats.recordDelete()

	n, ok := s.index[string(key)]
	if !ok {
		return false
	}
	if s.isExpired(n, s.clock.NowMillis()) {
		s.removeLocked(n)
		s.stats.recordExpirations(1)
		return false
	}
	s.removeLocked(n)
	return true
}

// Expire stamps key with an absolute expiration ttlMillis from now. Returns
// false without stamping if the key is absent or already expired; an
// already-expired key is removed and counted as an expiration. Does not
// move the key in LRU order (spec.md §4.1/§8 invariant 2's correction).
func (s *shard) Expire(key []byte, ttlMillis int64) (bool, error) {
	s.stats.recordExpireCall()

	if ttlMillis <= 0 {
		return false, &ErrInvalidArgument{Message: "ttl must be positive"}
	}

	n, ok := s.index[string(key)]
	if !ok {
		return false, nil
	}
	now := s.clock.NowMillis()
	if s.isExpired(n, now) {
		s.removeLocked(n)
		s.stats.recordExpirations(1)
		return false, nil
	}

	n.hasExpire = true
	n.expireAtMillis = now + ttlMillis
	return true, nil
}

// Size returns the number of live entries, sweeping expired ones first so
// the count never includes an entry whose TTL has already passed.
func (s *shard) Size() int {
	s.sweepExpiredLocked()
	return len(s.index)
}

// Clear drops every entry.
func (s *shard) Clear() {
	s.list = newNodeList()
	s.index = make(map[string]*node, s.capacity)
}

// sweepExpiredLocked is the shared body of SweepExpired and the
// opportunistic sweep Size performs; it returns the number removed.
func (s *shard) sweepExpiredLocked() int64 {
	now := s.clock.NowMillis()
	var removed int64
	for _, n := range s.index {
		if s.isExpired(n, now) {
			s.removeLocked(n)
			removed++
		}
	}
	s.stats.recordExpirations(removed)
	return removed
}

// SweepExpired scans every entry once, removing those whose expiration has
// passed, and returns the count removed.
func (s *shard) SweepExpired() int64 {
	return s.sweepExpiredLocked()
}

// DrainForSnapshot returns every live entry in most-recently-used-first
// order, removing any discovered to be expired during the scan (counted as
// expirations, per spec.md §4.1).
func (s *shard) DrainForSnapshot() ShardImage {
	s.sweepExpiredLocked()

	entries := make([]SnapshotEntry, 0, len(s.index))
	for n := s.list.root.next; n != &s.list.root; n = n.next {
		entries = append(entries, SnapshotEntry{
			Key:            n.key,
			Value:          n.value,
			HasExpire:      n.hasExpire,
			ExpireAtMillis: n.expireAtMillis,
		})
	}
	return ShardImage{Entries: entries}
}

// LoadFromSnapshot replaces the shard's content with img, preserving the
// order entries appear in the image as recency order (first entry becomes
// most-recently-used) and dropping any entry whose expiration has already
// passed. If img carries more live entries than this shard's capacity,
// the oldest (last) entries in image order are skipped as they load; the
// skipped entries are not counted as evictions.
func (s *shard) LoadFromSnapshot(img ShardImage) {
	s.Clear()

	now := s.clock.NowMillis()
	var droppedExpired int64
	loaded := 0
	for _, e := range img.Entries {
		if e.HasExpire && e.ExpireAtMillis <= now {
			droppedExpired++
			continue
		}
		if loaded >= s.capacity {
			// Excess beyond current capacity: the image's entries are
			// ordered most-recently-used first, so everything still
			// reachable here is the oldest (least recently used) tail of
			// the image and is simply not reinstated, per spec.md §4.3.
			continue
		}
		n := s.getFromPool(e.Key, e.Value, e.HasExpire, e.ExpireAtMillis)
		s.list.PushBack(n)
		s.index[string(e.Key)] = n
		loaded++
	}
	s.stats.recordExpirations(droppedExpired)
}
