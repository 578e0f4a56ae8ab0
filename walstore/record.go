package walstore

import (
	"github.com/zeebo/xxh3"

	"github.com/Sakuraaa0/ArcaneDB/internal/codec"
)

// Record framing: [payload_length:4][xxh3 checksum:8][payload]. Every
// record carries a checksum independent of the segment it lands in, so a reader
// walking a persisted segment can validate frame-by-frame without needing
// segment boundaries to align with record boundaries.
const recordHeaderSize = 4 + 8

// EncodedSize returns the on-disk size of a record carrying payload.
func EncodedSize(payload []byte) int {
	return recordHeaderSize + len(payload)
}

// encodeRecord writes one framed record into dst, which must be exactly
// EncodedSize(payload) bytes.
func encodeRecord(dst []byte, payload []byte) {
	codec.EncodeFixed32(dst[0:4], uint32(len(payload)))
	sum := xxh3.Hash(payload)
	codec.EncodeFixed64(dst[4:12], sum)
	copy(dst[recordHeaderSize:], payload)
}

// DecodeRecord parses one framed record from the front of buf, returning
// the payload and the number of bytes consumed. It is exposed for tests and
// for tooling built atop the log store; the store itself never replays.
func DecodeRecord(buf []byte) (payload []byte, consumed int, ok bool) {
	if len(buf) < recordHeaderSize {
		return nil, 0, false
	}
	length := codec.DecodeFixed32(buf[0:4])
	sum := codec.DecodeFixed64(buf[4:12])
	total := recordHeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, false
	}
	body := buf[recordHeaderSize:total]
	if xxh3.Hash(body) != sum {
		return nil, 0, false
	}
	return body, total, true
}
