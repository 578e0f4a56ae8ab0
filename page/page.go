// Package page implements the versioned page: the fundamental storage unit
// of one key-range's multi-version rows, as an immutable base plus a
// newest-first delta chain, per spec.md §4.1.
package page

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Sakuraaa0/ArcaneDB/arcerr"
	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/ts"
)

// Page owns the multi-version state of one key-range's rows: an immutable
// base plus a mutable delta chain. Readers never take the write mutex.
type Page struct {
	basePtr atomic.Pointer[base]
	head    atomic.Pointer[deltaNode]

	deltaLength atomic.Int64

	// writeMu serializes chain mutation. Compaction also runs under this
	// mutex, so at most one compaction (and no concurrent writer) is ever
	// active on a page at a time.
	writeMu sync.Mutex
}

// New returns an empty page: no base, no deltas.
func New() *Page {
	p := &Page{}
	p.basePtr.Store(emptyBase)
	return p
}

// SetRow inserts a Put delta for (row's sort key, ts).
func (p *Page) SetRow(row property.Row, t ts.Ts, opts Options) *arcerr.Status {
	sortKey, err := row.SortKey(opts.Schema)
	if err != nil {
		return arcerr.Wrap(arcerr.Err, err)
	}
	return p.write(sortKey, t, OpPut, row, opts)
}

// DeleteRow prepends a Delete delta for sortKey.
func (p *Page) DeleteRow(sortKey property.SortKey, t ts.Ts, opts Options) *arcerr.Status {
	return p.write(sortKey, t, OpDelete, nil, opts)
}

func (p *Page) write(sortKey property.SortKey, t ts.Ts, op Op, row property.Row, opts Options) *arcerr.Status {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if opts.CheckIntentLocked {
		if latest := p.findLatestInChain(sortKey); latest != nil {
			latestTs := latest.ts()
			if ts.IsLocked(latestTs) {
				if !ts.SameOwner(latestTs, opts.OwnerTs) {
					return arcerr.New(arcerr.Conflict, "intent held by another transaction on %q", sortKey)
				}
			} else if latestTs != ts.AbortedTs && ts.WithoutLock(t) <= latestTs {
				return arcerr.New(arcerr.Serialization, "write ts %d not above committed ts %d on %q", t, latestTs, sortKey)
			}
		}
	}

	node := newDeltaNode(sortKey, t, op, row)
	node.setNext(p.head.Load())
	p.head.Store(node)
	newLen := p.deltaLength.Add(1)

	if newLen > int64(opts.threshold()) && !opts.DisableCompaction {
		p.compactLocked(opts)
	}
	return arcerr.OkStatus
}

// findLatestInChain returns the first (newest) delta node for sortKey, or
// nil if the chain holds none. Callers must hold writeMu.
func (p *Page) findLatestInChain(sortKey property.SortKey) *deltaNode {
	for n := p.head.Load(); n != nil; n = n.getNext() {
		if n.sortKey.Equal(sortKey) {
			return n
		}
	}
	return nil
}

// GetRow fills out with the first visible record for sortKey at readTs.
// Readers never take the write mutex: head and base are loaded with
// acquire semantics and walked lock-free.
func (p *Page) GetRow(sortKey property.SortKey, readTs ts.Ts, opts Options, out *RowView) *arcerr.Status {
	for n := p.head.Load(); n != nil; n = n.getNext() {
		if !n.sortKey.Equal(sortKey) {
			continue
		}
		nodeTs := n.ts()
		if ts.IsLocked(nodeTs) {
			if opts.IgnoreLock {
				// diagnostic path: treat the intent as visible at its
				// unmasked ts.
			} else if !ts.SameOwner(nodeTs, opts.OwnerTs) {
				// not ours: invisible, keep walking past it.
				continue
			}
		}
		effective := ts.WithoutLock(nodeTs)
		if effective > readTs {
			continue
		}
		if n.op == OpDelete {
			return arcerr.New(arcerr.NotFound, "%q deleted at ts %d", sortKey, effective)
		}
		out.set(sortKey, effective, n.row)
		return arcerr.OkStatus
	}

	if entry, ok := p.basePtr.Load().find(sortKey); ok && entry.ts <= readTs {
		out.set(sortKey, entry.ts, entry.row)
		return arcerr.OkStatus
	}
	return arcerr.New(arcerr.NotFound, "%q not found at ts %d", sortKey, readTs)
}

// SetTs finalizes an intent: it locates the most recent record for sortKey
// whose Ts is an intent owned by the caller and rewrites its Ts to newTs
// (commit) or AbortedTs (abort). It does not take the write mutex — only a
// single node's Ts is rewritten, atomically, so concurrent finalizes on
// different keys never contend.
func (p *Page) SetTs(sortKey property.SortKey, newTs ts.Ts, opts Options) *arcerr.Status {
	for n := p.head.Load(); n != nil; n = n.getNext() {
		if !n.sortKey.Equal(sortKey) {
			continue
		}
		nodeTs := n.ts()
		if ts.IsLocked(nodeTs) && ts.SameOwner(nodeTs, opts.OwnerTs) {
			n.setTs(newTs)
			return arcerr.OkStatus
		}
		// First match that isn't our own intent: nothing to finalize.
		return arcerr.New(arcerr.NotFound, "no owned intent for %q", sortKey)
	}
	return arcerr.New(arcerr.NotFound, "no owned intent for %q", sortKey)
}

// TEST_GetDeltaLength returns the number of delta nodes currently reachable
// from head. Observational only.
func (p *Page) TEST_GetDeltaLength() int {
	return int(p.deltaLength.Load())
}

var log = logrus.WithField("component", "page")
