package walstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sakuraaa0/ArcaneDB/internal/vfs"
)

func testOptions(t *testing.T) Options {
	return Options{
		SegmentNum:    3,
		SegmentSize:   256,
		FlushInterval: 5 * time.Millisecond,
		Dir:           t.TempDir(),
		FileName:      "test.wal",
	}
}

func TestAppendLogRecordReturnsIncreasingLsn(t *testing.T) {
	s, st := Open(vfs.OSFileSystem{}, testOptions(t))
	require.True(t, st.Ok())
	defer s.Close()

	lsn1, st1 := s.AppendLogRecord(context.Background(), []byte("hello"))
	require.True(t, st1.Ok())
	lsn2, st2 := s.AppendLogRecord(context.Background(), []byte("world"))
	require.True(t, st2.Ok())
	require.Greater(t, lsn2, lsn1)
}

func TestAppendLogRecordBecomesPersistent(t *testing.T) {
	s, st := Open(vfs.OSFileSystem{}, testOptions(t))
	require.True(t, st.Ok())
	defer s.Close()

	lsn, appendSt := s.AppendLogRecord(context.Background(), []byte("payload"))
	require.True(t, appendSt.Ok())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	waitSt := s.WaitForPersistent(ctx, lsn+uint64(EncodedSize([]byte("payload"))))
	require.True(t, waitSt.Ok())
}

func TestAppendLogRecordRotatesAcrossSegments(t *testing.T) {
	opts := testOptions(t)
	opts.SegmentSize = 32
	s, st := Open(vfs.OSFileSystem{}, opts)
	require.True(t, st.Ok())
	defer s.Close()

	payload := make([]byte, 20)
	var lastLsn uint64
	for i := 0; i < 20; i++ {
		lsn, appendSt := s.AppendLogRecord(context.Background(), payload)
		require.True(t, appendSt.Ok(), "append %d failed: %s", i, appendSt)
		require.GreaterOrEqual(t, lsn, lastLsn)
		lastLsn = lsn
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	waitSt := s.WaitForPersistent(ctx, lastLsn+uint64(EncodedSize(payload)))
	require.True(t, waitSt.Ok())
}

// TestAppendLogRecordLsnRangesAreContiguousAcrossPartialSegments reproduces
// spec.md §8's S6 shape: two 1024-byte segments, a record that leaves its
// segment partially filled, then a second record that must rotate into the
// next segment. The second record's assigned LSN must equal the bytes
// actually used by the first segment, not a fixed segment-size stride, and
// the file on disk must have no gap between the two records.
func TestAppendLogRecordLsnRangesAreContiguousAcrossPartialSegments(t *testing.T) {
	opts := testOptions(t)
	opts.SegmentNum = 2
	opts.SegmentSize = 1024
	s, st := Open(vfs.OSFileSystem{}, opts)
	require.True(t, st.Ok())

	payload1 := make([]byte, 888) // EncodedSize == 900
	payload2 := make([]byte, 188) // EncodedSize == 200
	for i := range payload1 {
		payload1[i] = byte(i)
	}
	for i := range payload2 {
		payload2[i] = byte(200 + i)
	}
	require.Equal(t, 900, EncodedSize(payload1))
	require.Equal(t, 200, EncodedSize(payload2))

	lsn1, appendSt1 := s.AppendLogRecord(context.Background(), payload1)
	require.True(t, appendSt1.Ok())
	require.Equal(t, uint64(0), lsn1)

	// payload2 doesn't fit in the remaining 124 bytes of segment 0, so it
	// must rotate into segment 1, opened at segment 0's actual end LSN.
	lsn2, appendSt2 := s.AppendLogRecord(context.Background(), payload2)
	require.True(t, appendSt2.Ok())
	require.Equal(t, uint64(900), lsn2, "second record must start right after the first, not at a segment-size stride")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, s.WaitForPersistent(ctx, lsn2+uint64(EncodedSize(payload2))).Ok())
	require.True(t, s.Close().Ok())

	data, err := os.ReadFile(filepath.Join(opts.Dir, opts.FileName))
	require.NoError(t, err)
	require.Len(t, data, 1100, "file must hold exactly the bytes used, with no LSN gap padded in")

	body1, consumed1, ok1 := DecodeRecord(data[lsn1:])
	require.True(t, ok1)
	require.Equal(t, payload1, body1)
	require.Equal(t, 900, consumed1)

	body2, consumed2, ok2 := DecodeRecord(data[lsn2:])
	require.True(t, ok2)
	require.Equal(t, payload2, body2)
	require.Equal(t, 200, consumed2)
}

func TestAppendLogRecordTooLargeForSegment(t *testing.T) {
	opts := testOptions(t)
	opts.SegmentSize = 16
	s, st := Open(vfs.OSFileSystem{}, opts)
	require.True(t, st.Ok())
	defer s.Close()

	_, appendSt := s.AppendLogRecord(context.Background(), make([]byte, 100))
	require.False(t, appendSt.Ok())
}

func TestAppendLogRecordsBatch(t *testing.T) {
	s, st := Open(vfs.OSFileSystem{}, testOptions(t))
	require.True(t, st.Ok())
	defer s.Close()

	lsns, appendSt := s.AppendLogRecords(context.Background(), [][]byte{
		[]byte("a"), []byte("b"), []byte("c"),
	})
	require.True(t, appendSt.Ok())
	require.Len(t, lsns, 3)
	require.Less(t, lsns[0], lsns[1])
	require.Less(t, lsns[1], lsns[2])
}

func TestCloseIsIdempotent(t *testing.T) {
	s, st := Open(vfs.OSFileSystem{}, testOptions(t))
	require.True(t, st.Ok())

	_, appendSt := s.AppendLogRecord(context.Background(), []byte("x"))
	require.True(t, appendSt.Ok())

	require.True(t, s.Close().Ok())
	require.True(t, s.Close().Ok())
}
