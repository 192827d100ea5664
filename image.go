package sqkv

// SnapshotEntry is one live entry captured from a shard.
type SnapshotEntry struct {
	Key            []byte
	Value          []byte
	HasExpire      bool
	ExpireAtMillis int64
}

// ShardImage is the set of live entries captured from a single shard, in
// the recency order they were drained (most-recently-used first) so that
// LoadFromSnapshot can rebuild the same order.
type ShardImage struct {
	Entries []SnapshotEntry
}

// SnapshotImage is a full-store capture: one ShardImage per shard index
// 0..shardCount-1, plus the metadata spec.md §3 requires every image to
// carry.
type SnapshotImage struct {
	CaptureTimestampMillis int64
	ShardCount             int
	CapacityPerShard       int
	Shards                 []ShardImage
}

// TotalEntries is the sum of entries across every shard image.
func (img SnapshotImage) TotalEntries() int {
	n := 0
	for _, s := range img.Shards {
		n += len(s.Entries)
	}
	return n
}
