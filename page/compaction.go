package page

import (
	"sort"

	"github.com/Sakuraaa0/ArcaneDB/ts"
)

// compactLocked folds the chain reachable from head into a new immutable
// base. Callers must hold writeMu; exactly one compaction is ever active on
// a page at a time as a result.
//
// Compaction is best-effort: any internal inconsistency is logged and the
// existing chain/base are left untouched, per spec.md §4.1's failure
// semantics ("Compaction is best-effort: on any internal inconsistency it
// aborts and leaves the chain intact").
func (p *Page) compactLocked(opts Options) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("compaction aborted on internal inconsistency")
		}
	}()

	snapshotHead := p.head.Load()
	if snapshotHead == nil {
		return
	}
	oldBase := p.basePtr.Load()
	watermark := opts.Watermark

	var nodes []*deltaNode
	for n := snapshotHead; n != nil; n = n.getNext() {
		nodes = append(nodes, n)
	}

	// Step 2: keep only committed (non-intent) records, merge-sort by
	// (SortKey ascending, Ts descending).
	committed := make([]*deltaNode, 0, len(nodes))
	for _, n := range nodes {
		if !ts.IsLocked(n.ts()) {
			committed = append(committed, n)
		}
	}
	sort.SliceStable(committed, func(i, j int) bool {
		if c := committed[i].sortKey.Compare(committed[j].sortKey); c != 0 {
			return c < 0
		}
		return committed[i].ts() > committed[j].ts()
	})

	// Step 3: for each SortKey, collapse at most one record into the base:
	// the largest Ts at or below the watermark (a Delete omits the key).
	// Records above the watermark are never collapsed — a reader may still
	// be active with a read_ts below one of them but at or above the
	// watermark, and must be able to walk past it to find an older
	// version — so they survive as individual delta nodes instead.
	overlay := make([]overlayEntry, 0, len(committed))
	survivors := make(map[*deltaNode]bool, len(committed))
	for i := 0; i < len(committed); {
		n := committed[i]
		j := i + 1
		for j < len(committed) && committed[j].sortKey.Equal(n.sortKey) {
			j++
		}
		group := committed[i:j] // sorted Ts descending within this SortKey.
		var collapsed *deltaNode
		for _, m := range group {
			if m.ts() > watermark {
				survivors[m] = true
				continue
			}
			if collapsed == nil {
				collapsed = m
			} else if collapsed.ts() == m.ts() {
				// Equal Ts for the same key is a defect (upstream Ts
				// discipline disallows it); retain the first encountered.
				log.WithField("sort_key", n.sortKey.String()).
					WithField("ts", m.ts()).
					Warn("compaction observed duplicate ts for sort key, keeping first")
			}
			// Else: an older below-watermark version, superseded by
			// collapsed; no active reader can still need it.
		}
		if collapsed != nil {
			if collapsed.op == OpPut {
				overlay = append(overlay, overlayEntry{sortKey: collapsed.sortKey, ts: collapsed.ts(), row: collapsed.row})
			} else {
				// A Delete collapsed below the watermark must evict any
				// old-base entry for this key, not merely omit adding one.
				overlay = append(overlay, overlayEntry{sortKey: collapsed.sortKey, ts: collapsed.ts(), deleted: true})
			}
		}
		i = j
	}

	// Step 4: merge with the old base, favouring the overlay.
	newBase := mergeOverlay(oldBase, overlay)

	// Step 5: publish, then reset the chain to whatever was pushed onto
	// head after the snapshot (nothing, under the current single-writer
	// mutex discipline, but computed generically in case that discipline
	// ever loosens), followed by every above-watermark survivor in its
	// original relative order, which is still newest-first since it is a
	// per-key subsequence of a chain that was newest-first as a whole.
	p.basePtr.Store(newBase)

	var residual []*deltaNode
	for n := p.head.Load(); n != nil && n != snapshotHead; n = n.getNext() {
		residual = append(residual, n)
	}
	var kept []*deltaNode
	for _, n := range nodes {
		if survivors[n] {
			kept = append(kept, n)
		}
	}

	newChain := append(residual, kept...)
	var newHead *deltaNode
	for i := len(newChain) - 1; i >= 0; i-- {
		newChain[i].setNext(newHead)
		newHead = newChain[i]
	}
	p.head.Store(newHead)
	p.deltaLength.Store(int64(len(newChain)))

	log.WithField("residual", len(residual)).
		WithField("survivors", len(kept)).
		WithField("base_size", len(newBase.entries)).
		Debug("compaction complete")
}
