package page

import (
	"sync/atomic"

	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/ts"
)

// Op distinguishes a delta record's kind.
type Op uint8

const (
	// OpPut carries a row payload.
	OpPut Op = iota
	// OpDelete tombstones the sort key.
	OpDelete
)

// deltaNode is one entry of the newest-first, singly-linked delta chain.
// Only next and ts are mutated after construction (next by the writer that
// links the node, and again whenever compaction relinks surviving nodes; ts
// possibly many times, by SetTs finalizing or aborting an intent), and both
// are accessed without the page's write mutex by concurrent readers, so both
// are atomic.
type deltaNode struct {
	sortKey property.SortKey
	row     property.Row // nil when op == OpDelete
	op      Op

	tsBits atomic.Uint64
	next   atomic.Pointer[deltaNode]
}

func newDeltaNode(sortKey property.SortKey, t ts.Ts, op Op, row property.Row) *deltaNode {
	n := &deltaNode{sortKey: sortKey, op: op, row: row}
	n.tsBits.Store(uint64(t))
	return n
}

func (n *deltaNode) ts() ts.Ts {
	return ts.Ts(n.tsBits.Load())
}

func (n *deltaNode) setTs(t ts.Ts) {
	n.tsBits.Store(uint64(t))
}

func (n *deltaNode) getNext() *deltaNode {
	return n.next.Load()
}

func (n *deltaNode) setNext(next *deltaNode) {
	n.next.Store(next)
}
