package sqkv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	img := SnapshotImage{
		CaptureTimestampMillis: 1234567890,
		ShardCount:             2,
		CapacityPerShard:       16,
		Shards: []ShardImage{
			{Entries: []SnapshotEntry{
				{Key: k("a"), Value: k("1")},
				{Key: k("b"), Value: k("2"), HasExpire: true, ExpireAtMillis: 99999},
			}},
			{Entries: []SnapshotEntry{
				{Key: k("c"), Value: k("3")},
			}},
		},
	}

	data := EncodeSnapshot(img)
	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, img, decoded)
}

func TestCodec_RoundTripEmptyImage(t *testing.T) {
	img := SnapshotImage{
		CaptureTimestampMillis: 1,
		ShardCount:             1,
		CapacityPerShard:       4,
		Shards:                 []ShardImage{{Entries: []SnapshotEntry{}}},
	}
	data := EncodeSnapshot(img)
	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, img.ShardCount, decoded.ShardCount)
	require.Equal(t, 0, decoded.TotalEntries())
}

func TestCodec_RejectsBadMagic(t *testing.T) {
	data := EncodeSnapshot(SnapshotImage{ShardCount: 1, Shards: []ShardImage{{}}})
	data[0] ^= 0xFF

	_, err := DecodeSnapshot(data)
	require.Error(t, err)
	var decodeErr *ErrDecode
	require.ErrorAs(t, err, &decodeErr)
}

func TestCodec_RejectsIncompatibleVersion(t *testing.T) {
	data := EncodeSnapshot(SnapshotImage{ShardCount: 1, Shards: []ShardImage{{}}})
	data[4] = 0x7F

	_, err := DecodeSnapshot(data)
	require.Error(t, err)
	var verErr *ErrIncompatibleVersion
	require.ErrorAs(t, err, &verErr)
	require.EqualValues(t, 0x7F, verErr.Found)
}

func TestCodec_AcceptsFileWithoutTrailingChecksum(t *testing.T) {
	img := SnapshotImage{
		CaptureTimestampMillis: 42,
		ShardCount:             1,
		CapacityPerShard:       4,
		Shards:                 []ShardImage{{Entries: []SnapshotEntry{{Key: k("a"), Value: k("1")}}}},
	}
	data := EncodeSnapshot(img)
	withoutChecksum := data[:len(data)-4]

	decoded, err := DecodeSnapshot(withoutChecksum)
	require.NoError(t, err)
	require.Equal(t, img, decoded)
}

func TestCodec_RejectsCorruptChecksum(t *testing.T) {
	img := SnapshotImage{
		CaptureTimestampMillis: 42,
		ShardCount:             1,
		CapacityPerShard:       4,
		Shards:                 []ShardImage{{Entries: []SnapshotEntry{{Key: k("a"), Value: k("1")}}}},
	}
	data := EncodeSnapshot(img)
	data[len(data)-1] ^= 0xFF

	_, err := DecodeSnapshot(data)
	require.Error(t, err)
}
