package sqkv

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	snapshotMagic   uint32 = 0x4D4C4442 // "MLDB"
	snapshotVersion byte   = 0x01

	headerSize = 4 + 1 + 8 + 4 + 4 + 4 // magic, version, ts, shardCount, capacity, totalEntries
)

// EncodeSnapshot serializes img into the binary layout of spec.md §6.2:
// a fixed header, followed by each live entry tagged with its shard
// index, followed by a trailing CRC32 over everything preceding it. The
// trailing checksum is always written (readers are only required to
// tolerate its absence on older or hand-crafted files, per §6.2).
func EncodeSnapshot(img SnapshotImage) []byte {
	size := headerSize
	for _, s := range img.Shards {
		for _, e := range s.Entries {
			size += entrySize(e)
		}
	}
	buf := make([]byte, size, size+4)

	binary.BigEndian.PutUint32(buf[0:4], snapshotMagic)
	buf[4] = snapshotVersion
	binary.BigEndian.PutUint64(buf[5:13], uint64(img.CaptureTimestampMillis))
	binary.BigEndian.PutUint32(buf[13:17], uint32(img.ShardCount))
	binary.BigEndian.PutUint32(buf[17:21], uint32(img.CapacityPerShard))
	binary.BigEndian.PutUint32(buf[21:25], uint32(img.TotalEntries()))

	off := headerSize
	for shardIdx, s := range img.Shards {
		for _, e := range s.Entries {
			off = putEntry(buf, off, shardIdx, e)
		}
	}

	sum := crc32.ChecksumIEEE(buf)
	buf = append(buf, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(buf[len(buf)-4:], sum)
	return buf
}

func entrySize(e SnapshotEntry) int {
	n := 4 + 4 + len(e.Key) + 4 + len(e.Value) + 1
	if e.HasExpire {
		n += 8
	}
	return n
}

func putEntry(buf []byte, off, shardIdx int, e SnapshotEntry) int {
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(shardIdx))
	off += 4

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.Key)))
	off += 4
	off += copy(buf[off:], e.Key)

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.Value)))
	off += 4
	off += copy(buf[off:], e.Value)

	if e.HasExpire {
		buf[off] = 1
		off++
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(e.ExpireAtMillis))
		off += 8
	} else {
		buf[off] = 0
		off++
	}
	return off
}

// DecodeSnapshot parses the binary layout written by EncodeSnapshot. A
// trailing 4-byte CRC32 is verified when present; files whose byte count
// matches exactly without it are accepted unchecked, per spec.md §6.2.
func DecodeSnapshot(data []byte) (SnapshotImage, error) {
	if len(data) < headerSize {
		return SnapshotImage{}, &ErrDecode{Reason: "truncated header"}
	}
	if binary.BigEndian.Uint32(data[0:4]) != snapshotMagic {
		return SnapshotImage{}, &ErrDecode{Reason: "bad magic"}
	}
	version := data[4]
	if version != snapshotVersion {
		return SnapshotImage{}, &ErrIncompatibleVersion{Found: version}
	}

	img := SnapshotImage{
		CaptureTimestampMillis: int64(binary.BigEndian.Uint64(data[5:13])),
		ShardCount:             int(binary.BigEndian.Uint32(data[13:17])),
		CapacityPerShard:       int(binary.BigEndian.Uint32(data[17:21])),
	}
	totalEntries := int(binary.BigEndian.Uint32(data[21:25]))
	if img.ShardCount < 0 {
		return SnapshotImage{}, &ErrDecode{Reason: "negative shard count"}
	}
	img.Shards = make([]ShardImage, img.ShardCount)

	body := data[headerSize:]

	// A trailing CRC32 is present whenever the remaining bytes, after
	// parsing every entry, leave exactly 4 bytes over; readers accept a
	// file with no trailing checksum when the byte count matches exactly.
	entries, bodyConsumed, err := decodeEntries(body, totalEntries)
	if err != nil {
		return SnapshotImage{}, err
	}

	trailer := body[bodyConsumed:]
	switch len(trailer) {
	case 0:
		// no checksum present; accepted as-is.
	case 4:
		want := binary.BigEndian.Uint32(trailer)
		got := crc32.ChecksumIEEE(data[:headerSize+bodyConsumed])
		if want != got {
			return SnapshotImage{}, &ErrDecode{Reason: "checksum mismatch"}
		}
	default:
		return SnapshotImage{}, &ErrDecode{Reason: "trailing bytes are not a valid checksum"}
	}

	for _, pe := range entries {
		if pe.shardIndex < 0 || pe.shardIndex >= img.ShardCount {
			return SnapshotImage{}, &ErrDecode{Reason: "entry references out-of-range shard"}
		}
		img.Shards[pe.shardIndex].Entries = append(img.Shards[pe.shardIndex].Entries, pe.SnapshotEntry)
	}

	return img, nil
}

type parsedEntry struct {
	shardIndex int
	SnapshotEntry
}

func decodeEntries(body []byte, count int) ([]parsedEntry, int, error) {
	entries := make([]parsedEntry, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if off+4 > len(body) {
			return nil, 0, &ErrDecode{Reason: "truncated entry shard index"}
		}
		shardIdx := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4

		if off+4 > len(body) {
			return nil, 0, &ErrDecode{Reason: "truncated entry key length"}
		}
		keyLen := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if keyLen < 0 || off+keyLen > len(body) {
			return nil, 0, &ErrDecode{Reason: "truncated entry key"}
		}
		key := append([]byte(nil), body[off:off+keyLen]...)
		off += keyLen

		if off+4 > len(body) {
			return nil, 0, &ErrDecode{Reason: "truncated entry value length"}
		}
		valueLen := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if valueLen < 0 || off+valueLen > len(body) {
			return nil, 0, &ErrDecode{Reason: "truncated entry value"}
		}
		value := append([]byte(nil), body[off:off+valueLen]...)
		off += valueLen

		if off+1 > len(body) {
			return nil, 0, &ErrDecode{Reason: "truncated entry expiration flag"}
		}
		hasExpire := body[off] != 0
		off++

		var expireAt int64
		if hasExpire {
			if off+8 > len(body) {
				return nil, 0, &ErrDecode{Reason: "truncated entry expiration millis"}
			}
			expireAt = int64(binary.BigEndian.Uint64(body[off : off+8]))
			off += 8
		}

		entries = append(entries, parsedEntry{
			shardIndex: shardIdx,
			SnapshotEntry: SnapshotEntry{
				Key:            key,
				Value:          value,
				HasExpire:      hasExpire,
				ExpireAtMillis: expireAt,
			},
		})
	}
	return entries, off, nil
}
