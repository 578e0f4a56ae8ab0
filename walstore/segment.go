package walstore

import "sync/atomic"

// Control-bits layout: | sealed:1 | writer_count:15 | lsn_offset:48 |,
// grounded directly on the original engine's LogSegment::control_bits_
// (log_segment.h). All updates go through compare-and-swap; the pure
// pack/unpack helpers below take and return the raw word, per spec.md §9's
// "operations split into pure helper functions that take and return the
// packed word".
const (
	sealedOffset     = 63
	writerNumOffset  = 48
	writerNumMask    = 0x7FFF
	lsnMask          = (uint64(1) << 48) - 1
	maxWriters       = writerNumMask
)

func isSealed(bits uint64) bool {
	return (bits >> sealedOffset) != 0
}

func markSealed(bits uint64) uint64 {
	return bits | (1 << sealedOffset)
}

func writerCount(bits uint64) uint64 {
	return (bits >> writerNumOffset) & writerNumMask
}

func incrWriters(bits uint64) uint64 {
	return bits + (1 << writerNumOffset)
}

func decrWriters(bits uint64) uint64 {
	return bits - (1 << writerNumOffset)
}

func lsnOffset(bits uint64) uint64 {
	return bits & lsnMask
}

func bumpLsn(bits uint64, length uint64) uint64 {
	return bits + length
}

// segmentState is the logical state of a segment, independent of the
// sealed bit packed into control_bits.
type segmentState int32

const (
	stateFree segmentState = iota
	stateOpen
	stateIo
)

// admitResult is the outcome of Acquire.
type admitResult int

const (
	// Grant indicates the writer may fill guard.Bytes.
	Grant admitResult = iota
	// WaitRetry indicates the segment is saturated with writers; the
	// caller should wait and retry. A sealed segment never yields
	// WaitRetry: Acquire reports it as SealAndRetry.
	WaitRetry
	// SealAndRetry indicates the segment lacks room for length more
	// bytes, or is already sealed; the caller should seal it (if not
	// yet sealed), open the next segment, and retry there.
	SealAndRetry
)

// Guard reserves bytes [Offset, Offset+len(Bytes)) of a segment's buffer
// for one writer to fill. Release must be called exactly once, on every
// exit path, including panics — the segment cannot transition to Io until
// every outstanding guard has released.
type Guard struct {
	segment *Segment
	Offset  uint64
	Bytes   []byte

	released bool
}

// Release decrements the segment's writer count. If this was the last
// writer of a sealed segment, the segment transitions to Io.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.segment.onWriterExit()
}

// Segment is one fixed-size ring slot of the WAL. It admits concurrent
// writers via a single CAS on control_bits and is hand off to the I/O
// worker once sealed and drained.
type Segment struct {
	buf      []byte
	state    atomic.Int32
	startLsn atomic.Uint64
	controlBits atomic.Uint64
}

// NewSegment allocates a Free segment with the given buffer capacity.
func NewSegment(size int) *Segment {
	s := &Segment{buf: make([]byte, size)}
	s.state.Store(int32(stateFree))
	return s
}

func (s *Segment) State() segmentState {
	return segmentState(s.state.Load())
}

func (s *Segment) size() uint64 {
	return uint64(len(s.buf))
}

// OpenAndSetStartLsn transitions Free -> Open. Preconditions: prior state
// was Free. The state store uses release ordering so a writer that later
// observes state == Open via acquire is guaranteed to see startLsn too.
func (s *Segment) OpenAndSetStartLsn(startLsn uint64) {
	s.startLsn.Store(startLsn)
	s.controlBits.Store(0)
	s.state.Store(int32(stateOpen))
}

// StartLsn returns the LSN of the first byte this segment was opened with.
func (s *Segment) StartLsn() uint64 {
	return s.startLsn.Load()
}

// Acquire reserves length bytes of the segment's buffer for a writer.
func (s *Segment) Acquire(length uint64) (*Guard, admitResult) {
	for {
		cur := s.controlBits.Load()
		if isSealed(cur) {
			// Already sealed, by a writer's SealAndRetry or by the flush
			// ticker: the caller must rotate the ring rather than spin here.
			return nil, SealAndRetry
		}
		off := lsnOffset(cur)
		if off+length > s.size() {
			return nil, SealAndRetry
		}
		if writerCount(cur)+1 > maxWriters {
			return nil, WaitRetry
		}
		next := bumpLsn(incrWriters(cur), length)
		if s.controlBits.CompareAndSwap(cur, next) {
			return &Guard{segment: s, Offset: off, Bytes: s.buf[off : off+length]}, Grant
		}
	}
}

// onWriterExit decrements writer_count; if the result is zero and the
// segment is sealed, it transitions the segment to Io.
func (s *Segment) onWriterExit() {
	for {
		cur := s.controlBits.Load()
		next := decrWriters(cur)
		if s.controlBits.CompareAndSwap(cur, next) {
			if writerCount(next) == 0 && isSealed(next) {
				s.state.Store(int32(stateIo))
			}
			return
		}
	}
}

// TrySeal CASes the sealed bit. It returns the number of bytes written into
// the segment (its lsn_offset, relative to StartLsn) on success, or false if
// the segment was already sealed. Callers opening the next segment add this
// to StartLsn to get its absolute end LSN, keeping LSNs contiguous across
// segments regardless of how full this one ended up (spec.md §4.2). If no
// writer is in flight at the moment of the seal, TrySeal itself transitions
// the segment to Io, since in that case no later onWriterExit call would
// ever observe writer_count reaching zero to do it.
func (s *Segment) TrySeal() (relOffset uint64, ok bool) {
	for {
		cur := s.controlBits.Load()
		if isSealed(cur) {
			return 0, false
		}
		next := markSealed(cur)
		if s.controlBits.CompareAndSwap(cur, next) {
			if writerCount(next) == 0 {
				s.state.Store(int32(stateIo))
			}
			return lsnOffset(next), true
		}
	}
}

// snapshot returns the bytes written into the segment so far. Only valid
// once the segment has reached Io: at that point no writer holds a guard,
// so control_bits.lsn_offset is stable.
func (s *Segment) snapshot() []byte {
	n := lsnOffset(s.controlBits.Load())
	return s.buf[:n]
}

// free transitions Io -> Free, ready for the next OpenAndSetStartLsn.
func (s *Segment) free() {
	s.state.Store(int32(stateFree))
}
