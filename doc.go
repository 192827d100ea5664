// Package sqkv is a concurrent, sharded, bounded key-value store: each
// shard is an LRU map with inline TTL, lazily and eagerly expired; a
// Router hashes keys across a fixed shard array and hosts a
// reader-writer gate used only to freeze the whole store for a
// consistent snapshot capture or restore.
//
// The package is split the way the teacher's sq_cache library is split
// (one flat package, node/list/shard/telemetry-shaped files) rather
// than into nested sub-packages, because the CORE here is a single
// cohesive engine with no natural seam for splitting further: Router,
// shard, and the snapshot types all share unexported state.
package sqkv
