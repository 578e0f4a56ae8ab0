package walstore

import "time"

// Options configures a LogStore. Field names mirror spec.md §6's recognised
// WAL options.
type Options struct {
	// SegmentNum is the number of segments in the ring. Must be >= 2 so one
	// segment can be sealed and drained while another accepts writers.
	SegmentNum int
	// SegmentSize is the buffer capacity of each segment, in bytes.
	SegmentSize int
	// FlushInterval bounds how long a record can sit in an open, unsealed
	// segment before the I/O worker is nudged to seal and drain it, even
	// absent a SealAndRetry from a writer.
	FlushInterval time.Duration
	// Dir is the directory the log file is created in.
	Dir string
	// FileName is the log file's name within Dir.
	FileName string
}

// DefaultOptions returns the option set used when the caller does not
// override anything.
func DefaultOptions() Options {
	return Options{
		SegmentNum:    4,
		SegmentSize:   4 << 20,
		FlushInterval: 10 * time.Millisecond,
		Dir:           ".",
		FileName:      "arcanedb.wal",
	}
}
