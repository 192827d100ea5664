package sqkv

import "sync/atomic"

// StatsCounters holds the per-shard atomic operation counters named in
// spec.md §4.2. Every field is individually updated with atomic add
// semantics; gets = hits + misses holds at any observation point taken
// after a complete Get call.
type StatsCounters struct {
	gets        atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	expiresCall atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// StatsSnapshot is an immutable point-in-time read of a StatsCounters (or
// of several, summed together).
type StatsSnapshot struct {
	Gets        int64
	Hits        int64
	Misses      int64
	Sets        int64
	Deletes     int64
	Expires     int64
	Evictions   int64
	Expirations int64
}

func newStatsCounters() *StatsCounters {
	return &StatsCounters{}
}

func (s *StatsCounters) recordGet(hit bool) {
	s.gets.Add(1)
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func (s *StatsCounters) recordSet() {
	s.sets.Add(1)
}

func (s *StatsCounters) recordDelete() {
	s.deletes.Add(1)
}

func (s *StatsCounters) recordExpireCall() {
	s.expiresCall.Add(1)
}

func (s *StatsCounters) recordEviction() {
	s.evictions.Add(1)
}

func (s *StatsCounters) recordExpirations(n int64) {
	if n > 0 {
		s.expirations.Add(n)
	}
}

// Snapshot returns an immutable copy of the current counter values.
func (s *StatsCounters) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Gets:        s.gets.Load(),
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Sets:        s.sets.Load(),
		Deletes:     s.deletes.Load(),
		Expires:     s.expiresCall.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
	}
}

// Reset zeroes every counter.
func (s *StatsCounters) Reset() {
	s.gets.Store(0)
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.expiresCall.Store(0)
	s.evictions.Store(0)
	s.expirations.Store(0)
}

// Add merges another snapshot into this one field-by-field, used to
// aggregate per-shard snapshots into a whole-store total.
func (s StatsSnapshot) Add(o StatsSnapshot) StatsSnapshot {
	return StatsSnapshot{
		Gets:        s.Gets + o.Gets,
		Hits:        s.Hits + o.Hits,
		Misses:      s.Misses + o.Misses,
		Sets:        s.Sets + o.Sets,
		Deletes:     s.Deletes + o.Deletes,
		Expires:     s.Expires + o.Expires,
		Evictions:   s.Evictions + o.Evictions,
		Expirations: s.Expirations + o.Expirations,
	}
}
