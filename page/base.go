package page

import (
	"sort"

	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/ts"
)

// baseEntry is one row surviving compaction: the latest committed Put for
// its sort key at or below the compaction watermark. Deleted keys are
// simply absent from the base.
type baseEntry struct {
	sortKey property.SortKey
	ts      ts.Ts
	row     property.Row
}

// base is the immutable, sorted-by-sort-key result of the last compaction.
// A page's base pointer is published with release and read with acquire, so
// once readers observe a *base they may safely alias its contents forever.
type base struct {
	entries []baseEntry
}

var emptyBase = &base{}

// find returns the entry for sortKey, if any.
func (b *base) find(sortKey property.SortKey) (baseEntry, bool) {
	if b == nil || len(b.entries) == 0 {
		return baseEntry{}, false
	}
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].sortKey.Compare(sortKey) >= 0
	})
	if i < len(b.entries) && b.entries[i].sortKey.Equal(sortKey) {
		return b.entries[i], true
	}
	return baseEntry{}, false
}

// overlayEntry is one collapsed SortKey from a compaction pass: either a Put
// surviving into the base, or a tombstone recording that a Delete collapsed
// below the watermark and must evict any old-base entry for the same key.
type overlayEntry struct {
	sortKey property.SortKey
	ts      ts.Ts
	row     property.Row
	deleted bool
}

// mergeOverlay merges a freshly-compacted, sort-key-ascending overlay into
// the previous base, favouring the overlay on key collisions (the overlay
// is always at least as fresh as the corresponding old-base entry, since it
// was built from delta records that predate or equal the same snapshot). A
// deleted overlay entry evicts the old-base entry for its key instead of
// replacing it, per spec.md §3 ("...unless the latest such operation is a
// Delete, in which case the key is absent").
func mergeOverlay(old *base, overlay []overlayEntry) *base {
	if old == nil {
		old = emptyBase
	}
	merged := make([]baseEntry, 0, len(old.entries)+len(overlay))
	i, j := 0, 0
	for i < len(old.entries) && j < len(overlay) {
		cmp := old.entries[i].sortKey.Compare(overlay[j].sortKey)
		switch {
		case cmp < 0:
			merged = append(merged, old.entries[i])
			i++
		case cmp > 0:
			if !overlay[j].deleted {
				merged = append(merged, baseEntry{sortKey: overlay[j].sortKey, ts: overlay[j].ts, row: overlay[j].row})
			}
			j++
		default:
			if !overlay[j].deleted {
				merged = append(merged, baseEntry{sortKey: overlay[j].sortKey, ts: overlay[j].ts, row: overlay[j].row})
			}
			i++
			j++
		}
	}
	merged = append(merged, old.entries[i:]...)
	for ; j < len(overlay); j++ {
		if !overlay[j].deleted {
			merged = append(merged, baseEntry{sortKey: overlay[j].sortKey, ts: overlay[j].ts, row: overlay[j].row})
		}
	}
	return &base{entries: merged}
}
