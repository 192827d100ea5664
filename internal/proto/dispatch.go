package proto

import (
	"fmt"
	"strconv"

	"github.com/mariusromeiser/sqkv"
)

// Dispatcher binds the line dialect to a live Router (and, for SAVE, a
// SnapshotManager). One Dispatcher is shared by every connection; all
// state it touches belongs to Router, which is already safe for
// concurrent use.
type Dispatcher struct {
	Router   *sqkv.Router
	Snapshot *sqkv.SnapshotManager
}

// Handle executes one parsed command and returns the wire reply plus
// whether the connection should close after it is written (true only
// for QUIT).
func (d *Dispatcher) Handle(cmd Command) (reply []byte, closeConn bool) {
	switch cmd.Verb {
	case "":
		return nil, false

	case "SET":
		if len(cmd.Args) != 2 {
			return EncodeError(fmt.Errorf("wrong number of arguments for SET")), false
		}
		if err := d.Router.Insert([]byte(cmd.Args[0]), []byte(cmd.Args[1])); err != nil {
			return EncodeError(err), false
		}
		return EncodeSimpleString("OK"), false

	case "GET":
		if len(cmd.Args) != 1 {
			return EncodeError(fmt.Errorf("wrong number of arguments for GET")), false
		}
		value, found := d.Router.Get([]byte(cmd.Args[0]))
		if !found {
			return EncodeBulkNil(), false
		}
		return EncodeBulkString(value), false

	case "DEL":
		if len(cmd.Args) != 1 {
			return EncodeError(fmt.Errorf("wrong number of arguments for DEL")), false
		}
		if d.Router.Delete([]byte(cmd.Args[0])) {
			return EncodeInteger(1), false
		}
		return EncodeInteger(0), false

	case "EXPIRE":
		if len(cmd.Args) != 2 {
			return EncodeError(fmt.Errorf("wrong number of arguments for EXPIRE")), false
		}
		ttlMillis, err := strconv.ParseInt(cmd.Args[1], 10, 64)
		if err != nil {
			return EncodeError(&sqkv.ErrInvalidArgument{Message: "ms must be an integer"}), false
		}
		stamped, err := d.Router.Expire([]byte(cmd.Args[0]), ttlMillis)
		if err != nil {
			return EncodeError(err), false
		}
		if stamped {
			return EncodeInteger(1), false
		}
		return EncodeInteger(0), false

	case "EXISTS":
		if len(cmd.Args) != 1 {
			return EncodeError(fmt.Errorf("wrong number of arguments for EXISTS")), false
		}
		if d.Router.ContainsKey([]byte(cmd.Args[0])) {
			return EncodeInteger(1), false
		}
		return EncodeInteger(0), false

	case "SIZE":
		return EncodeInteger(int64(d.Router.Size())), false

	case "FLUSHALL":
		d.Router.Clear()
		return EncodeSimpleString("OK"), false

	case "SAVE":
		if d.Snapshot == nil {
			return EncodeError(fmt.Errorf("snapshotting is not enabled")), false
		}
		path, err := d.Snapshot.SaveSnapshot(d.Router)
		if err != nil {
			return EncodeError(err), false
		}
		return EncodeBulkString([]byte(path)), false

	case "PING":
		return EncodeSimpleString("PONG"), false

	case "STATS":
		return EncodeMultiLine(statsLines(d.Router)), false

	case "QUIT":
		return EncodeSimpleString("Goodbye"), true

	default:
		return EncodeError(fmt.Errorf("unknown command %q", cmd.Verb)), false
	}
}

func statsLines(router *sqkv.Router) []string {
	stats := router.Stats()
	return []string{
		fmt.Sprintf("gets %d", stats.Gets),
		fmt.Sprintf("hits %d", stats.Hits),
		fmt.Sprintf("misses %d", stats.Misses),
		fmt.Sprintf("sets %d", stats.Sets),
		fmt.Sprintf("deletes %d", stats.Deletes),
		fmt.Sprintf("expires %d", stats.Expires),
		fmt.Sprintf("evictions %d", stats.Evictions),
		fmt.Sprintf("expirations %d", stats.Expirations),
		fmt.Sprintf("size %d", router.Size()),
		fmt.Sprintf("shard_count %d", router.ShardCount()),
		fmt.Sprintf("capacity_per_shard %d", router.CapacityPerShard()),
	}
}
