// Package walstore implements the lock-free segmented write-ahead log:
// spec.md §4.2, a fixed ring of Segment buffers that admit concurrent
// writers via a single CAS and hand off to a dedicated I/O worker once
// sealed, avoiding a global log mutex on the append path.
package walstore

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sakuraaa0/ArcaneDB/arcerr"
	"github.com/Sakuraaa0/ArcaneDB/internal/vfs"
)

const defaultFlushInterval = 10 * time.Millisecond

var log = logrus.WithField("component", "walstore")

// LogStore is the segmented WAL. Writers call AppendLogRecord and get back
// the LSN their record was assigned; a background worker goroutine drains
// sealed segments to disk and advances PersistentLsn, which
// WaitForPersistent blocks callers on.
type LogStore struct {
	opts     Options
	fs       vfs.FS
	file     vfs.WritableFile
	segments []*Segment

	// current indexes the segment writers are admitted into.
	current atomic.Int64

	sealedCh chan int

	persistentLsn atomic.Uint64
	waitMu        sync.Mutex
	waitCond      *sync.Cond

	closeOnce sync.Once
	closed    chan struct{}
	drained   sync.WaitGroup

	openMu sync.Mutex
}

// Open creates the log file and starts the I/O worker. The ring's first
// segment is opened at LSN 0.
func Open(fsys vfs.FS, opts Options) (*LogStore, *arcerr.Status) {
	if opts.SegmentNum < 2 {
		return nil, arcerr.New(arcerr.Err, "SegmentNum must be >= 2, got %d", opts.SegmentNum)
	}
	if err := fsys.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, arcerr.Wrap(arcerr.Io, err)
	}
	f, err := fsys.Create(filepath.Join(opts.Dir, opts.FileName))
	if err != nil {
		return nil, arcerr.Wrap(arcerr.Io, err)
	}

	s := &LogStore{
		opts:     opts,
		fs:       fsys,
		file:     f,
		segments: make([]*Segment, opts.SegmentNum),
		sealedCh: make(chan int, opts.SegmentNum),
		closed:   make(chan struct{}),
	}
	s.waitCond = sync.NewCond(&s.waitMu)
	for i := range s.segments {
		s.segments[i] = NewSegment(opts.SegmentSize)
	}
	s.segments[0].OpenAndSetStartLsn(0)

	s.drained.Add(1)
	go s.ioWorker()

	return s, nil
}

// AppendLogRecords frames and admits a batch of independent records, each
// wholly contained in one segment. It returns the LSN each record was
// assigned, in order; if any record in the batch fails admission, the LSNs
// already assigned to earlier records in the batch remain valid, since each
// record is a wholly independent admission.
func (s *LogStore) AppendLogRecords(ctx context.Context, payloads [][]byte) ([]uint64, *arcerr.Status) {
	lsns := make([]uint64, 0, len(payloads))
	for _, p := range payloads {
		lsn, st := s.AppendLogRecord(ctx, p)
		if !st.Ok() {
			return lsns, st
		}
		lsns = append(lsns, lsn)
	}
	return lsns, arcerr.OkStatus
}

// AppendLogRecord frames payload and admits it into the current segment,
// sealing and rotating segments as needed. It returns the LSN of the first
// byte of the record's frame; the record is not guaranteed durable until
// WaitForPersistent(lsn + EncodedSize(payload)) returns.
func (s *LogStore) AppendLogRecord(ctx context.Context, payload []byte) (uint64, *arcerr.Status) {
	length := uint64(EncodedSize(payload))
	if length > uint64(s.opts.SegmentSize) {
		return 0, arcerr.New(arcerr.Err, "record of %d bytes exceeds segment size %d", length, s.opts.SegmentSize)
	}

	for {
		idx := int(s.current.Load()) % len(s.segments)
		seg := s.segments[idx]

		guard, res := seg.Acquire(length)
		switch res {
		case Grant:
			encodeRecord(guard.Bytes, payload)
			lsn := seg.StartLsn() + guard.Offset
			guard.Release()
			return lsn, arcerr.OkStatus
		case SealAndRetry:
			s.sealAndAdvance(idx)
		case WaitRetry:
			select {
			case <-ctx.Done():
				return 0, arcerr.Wrap(arcerr.Err, ctx.Err())
			default:
				runtime.Gosched()
			}
		}
	}
}

// sealAndAdvance seals segment idx (if not already sealed by a racing
// writer) and, once the next slot in the ring is Free, opens it at the
// sealed segment's actual end LSN so LSNs stay contiguous across segments
// even when a segment seals only partially filled (spec.md §4.2).
func (s *LogStore) sealAndAdvance(idx int) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if int(s.current.Load())%len(s.segments) != idx {
		// Another writer already advanced past idx.
		return
	}

	seg := s.segments[idx]
	relOffset, ok := seg.TrySeal()
	if ok {
		select {
		case s.sealedCh <- idx:
		default:
			log.Warn("sealed-segment channel full, worker is falling behind")
			s.sealedCh <- idx
		}
	} else {
		// Already sealed by a racing flushCurrentIfStale; control_bits'
		// lsn_offset is stable once sealed, so read it directly.
		relOffset = lsnOffset(seg.controlBits.Load())
	}
	startLsn := seg.StartLsn() + relOffset

	nextIdx := (idx + 1) % len(s.segments)
	next := s.segments[nextIdx]
	for next.State() != stateFree {
		runtime.Gosched()
	}
	next.OpenAndSetStartLsn(startLsn)
	s.current.Add(1)
}

// ioWorker drains sealed segments in ring order, appending and fsyncing
// each to the underlying file, then advances persistentLsn and frees the
// segment for reuse.
func (s *LogStore) ioWorker() {
	defer s.drained.Done()

	interval := s.opts.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case idx := <-s.sealedCh:
			s.drainSegment(idx)
		case <-ticker.C:
			s.flushCurrentIfStale()
		case <-s.closed:
			// Drain whatever sealed segments remain before exiting.
			for {
				select {
				case idx := <-s.sealedCh:
					s.drainSegment(idx)
					continue
				default:
				}
				return
			}
		}
	}
}

// flushCurrentIfStale seals the currently-open segment if it holds any
// bytes, bounding how long a record can wait for a sibling writer to fill
// the segment before it becomes durable. It only seals: opening the next
// ring slot is left to the next writer's SealAndRetry, since that may
// require waiting on this very goroutine to drain and free a segment.
func (s *LogStore) flushCurrentIfStale() {
	idx := int(s.current.Load()) % len(s.segments)
	seg := s.segments[idx]
	if lsnOffset(seg.controlBits.Load()) == 0 {
		return
	}
	if _, ok := seg.TrySeal(); ok {
		select {
		case s.sealedCh <- idx:
		default:
			log.Warn("sealed-segment channel full, worker is falling behind")
		}
	}
}

func (s *LogStore) drainSegment(idx int) {
	seg := s.segments[idx]
	for seg.State() != stateIo {
		// A writer holding a guard hasn't released yet.
		runtime.Gosched()
	}
	data := seg.snapshot()
	if len(data) > 0 {
		if err := s.file.Append(data); err != nil {
			log.WithField("err", err).Fatal("wal append failed, durability can no longer be guaranteed")
		}
		if err := s.file.Sync(); err != nil {
			log.WithField("err", err).Fatal("wal fsync failed, durability can no longer be guaranteed")
		}
	}
	endLsn := seg.StartLsn() + uint64(len(data))

	s.waitMu.Lock()
	if endLsn > s.persistentLsn.Load() {
		s.persistentLsn.Store(endLsn)
	}
	s.waitMu.Unlock()
	s.waitCond.Broadcast()

	seg.free()
}

// PersistentLsn returns the highest LSN known to be durable on disk.
func (s *LogStore) PersistentLsn() uint64 {
	return s.persistentLsn.Load()
}

// WaitForPersistent blocks until PersistentLsn() >= lsn or ctx is done.
func (s *LogStore) WaitForPersistent(ctx context.Context, lsn uint64) *arcerr.Status {
	if s.PersistentLsn() >= lsn {
		return arcerr.OkStatus
	}

	done := make(chan struct{})
	go func() {
		s.waitMu.Lock()
		for s.persistentLsn.Load() < lsn {
			s.waitCond.Wait()
		}
		s.waitMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return arcerr.OkStatus
	case <-ctx.Done():
		return arcerr.Wrap(arcerr.Err, ctx.Err())
	}
}

// Close seals the current segment, drains all remaining sealed segments to
// disk, and closes the underlying file. It is not safe to call
// AppendLogRecord concurrently with or after Close.
func (s *LogStore) Close() *arcerr.Status {
	var retStatus *arcerr.Status
	s.closeOnce.Do(func() {
		idx := int(s.current.Load()) % len(s.segments)
		if _, ok := s.segments[idx].TrySeal(); ok {
			s.sealedCh <- idx
		}
		close(s.closed)
		s.drained.Wait()
		if err := s.file.Close(); err != nil {
			retStatus = arcerr.Wrap(arcerr.Io, err)
			return
		}
		retStatus = arcerr.OkStatus
	})
	if retStatus == nil {
		return arcerr.OkStatus
	}
	return retStatus
}
