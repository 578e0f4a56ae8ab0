package page

import (
	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/ts"
)

// DefaultDeltaChainThreshold is the delta chain length above which a writer
// opportunistically triggers compaction.
const DefaultDeltaChainThreshold = 64

// Options configures a single page (or sub-table) read or write. It mirrors
// the option set spec.md §6 recognises.
type Options struct {
	// Schema decodes row bytes into columns and sort keys. Required.
	Schema *property.Schema

	// DisableCompaction skips the opportunistic compaction trigger even
	// once the chain exceeds DeltaChainThreshold.
	DisableCompaction bool

	// IgnoreLock lets a reader see past intents, e.g. for diagnostics.
	IgnoreLock bool

	// CheckIntentLocked enables the inline intent-conflict and
	// write-write safety checks on SetRow/DeleteRow.
	CheckIntentLocked bool

	// OwnerTs identifies intents owned by the caller: an intent with
	// ts|LockBit == OwnerTs|LockBit is treated as the caller's own.
	OwnerTs ts.Ts

	// DeltaChainThreshold overrides DefaultDeltaChainThreshold when
	// non-zero.
	DeltaChainThreshold int

	// Watermark is the compaction watermark: the lowest Ts any tracked
	// reader might still need. Compaction only collapses committed
	// versions at or below Watermark; versions above it survive as
	// individually addressable delta nodes, since a live reader may still
	// need to walk past a newer version to reach an older one. Callers
	// that never track readers (or want maximal collapsing) pass the
	// current timestamp; the zero value collapses nothing.
	Watermark ts.Ts
}

func (o Options) threshold() int {
	if o.DeltaChainThreshold > 0 {
		return o.DeltaChainThreshold
	}
	return DefaultDeltaChainThreshold
}
