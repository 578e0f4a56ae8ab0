package txn

import "github.com/Sakuraaa0/ArcaneDB/internal/codec"

// logTag distinguishes the three WAL record kinds a transaction appends.
type logTag byte

const (
	tagBegin logTag = iota
	tagCommit
	tagAbort
)

// encodeTxnRecord frames a minimal begin/commit/abort record: tag byte,
// read_ts, and commit_ts (zero if not yet allocated). Payload contents are
// diagnostic only, since replay is out of scope.
func encodeTxnRecord(tag logTag, readTs, commitTs uint64) []byte {
	buf := make([]byte, 1+8+8)
	buf[0] = byte(tag)
	codec.EncodeFixed64(buf[1:9], readTs)
	codec.EncodeFixed64(buf[9:17], commitTs)
	return buf
}
