package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sakuraaa0/ArcaneDB/arcerr"
	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/ts"
)

func testSchema() *property.Schema {
	return &property.Schema{
		Columns: []property.Column{
			{ID: 1, Offset: 0, Width: 4},
			{ID: 2, Offset: 4, Width: 4},
		},
		SortKeyCount: 1,
	}
}

func row(key, value string) property.Row {
	buf := make([]byte, 8)
	copy(buf[0:4], key)
	copy(buf[4:8], value)
	return property.Row(buf)
}

func TestSetRowThenGetRow(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema()}

	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(10), opts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(10), opts, &out)
	require.True(t, st.Ok())
	require.Equal(t, ts.Ts(10), out.Ts)
	require.Equal(t, property.Row(row("k000", "v001")), out.Row)
}

func TestGetRowNotVisibleBeforeWrite(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema()}
	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(10), opts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(5), opts, &out)
	require.True(t, st.IsNotFound())
}

func TestDeleteRowTombstones(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema()}
	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(10), opts).Ok())
	require.True(t, p.DeleteRow(property.SortKey("k000"), ts.Ts(20), opts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(30), opts, &out)
	require.True(t, st.IsNotFound())

	// Still visible before the delete.
	st = p.GetRow(property.SortKey("k000"), ts.Ts(15), opts, &out)
	require.True(t, st.Ok())
}

func TestLockedRecordInvisibleToOthers(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema()}
	intentTs := ts.WithLock(ts.Ts(10))
	require.True(t, p.SetRow(row("k000", "v001"), intentTs, opts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(100), opts, &out)
	require.True(t, st.IsNotFound(), "an intent must be invisible to a reader that doesn't own it")

	ownerOpts := opts
	ownerOpts.OwnerTs = ts.Ts(10)
	st = p.GetRow(property.SortKey("k000"), ts.Ts(100), ownerOpts, &out)
	require.True(t, st.Ok(), "the owner should see its own intent")
	require.Equal(t, ts.Ts(10), out.Ts)
}

func TestSetTsFinalizesOwnedIntent(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema()}
	readTs := ts.Ts(10)
	intentTs := ts.WithLock(readTs)
	require.True(t, p.SetRow(row("k000", "v001"), intentTs, opts).Ok())

	finOpts := opts
	finOpts.OwnerTs = readTs
	require.True(t, p.SetTs(property.SortKey("k000"), ts.Ts(50), finOpts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(60), opts, &out)
	require.True(t, st.Ok())
	require.Equal(t, ts.Ts(50), out.Ts)
}

func TestSetTsAbortRemovesVisibility(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema()}
	readTs := ts.Ts(10)
	intentTs := ts.WithLock(readTs)
	require.True(t, p.SetRow(row("k000", "v001"), intentTs, opts).Ok())

	finOpts := opts
	finOpts.OwnerTs = readTs
	require.True(t, p.SetTs(property.SortKey("k000"), ts.AbortedTs, finOpts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(60), opts, &out)
	require.True(t, st.IsNotFound(), "an aborted intent must never become visible")
}

func TestCheckIntentLockedRejectsConflict(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema(), CheckIntentLocked: true}
	require.True(t, p.SetRow(row("k000", "v001"), ts.WithLock(ts.Ts(10)), opts).Ok())

	other := opts
	other.OwnerTs = ts.Ts(999)
	st := p.SetRow(row("k000", "v002"), ts.WithLock(ts.Ts(20)), other)
	require.Equal(t, arcerr.Conflict, st.Kind())
}

func TestCheckIntentLockedRejectsStaleCommittedWrite(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema(), CheckIntentLocked: true}
	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(20), opts).Ok())

	st := p.SetRow(row("k000", "v002"), ts.Ts(10), opts)
	require.Equal(t, arcerr.Serialization, st.Kind())
}

func TestCompactionMergesIntoBase(t *testing.T) {
	p := New()
	// A watermark at or above every write's Ts means no reader could
	// still need an older version, so all 5 collapse to 1.
	opts := Options{Schema: testSchema(), DeltaChainThreshold: 4, Watermark: ts.Ts(100)}

	for i := ts.Ts(1); i <= 5; i++ {
		require.True(t, p.SetRow(row("k000", "v001"), i, opts).Ok())
	}

	require.LessOrEqual(t, p.TEST_GetDeltaLength(), 1)

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(100), opts, &out)
	require.True(t, st.Ok())
	require.Equal(t, ts.Ts(5), out.Ts)
}

func TestCompactionSkipsIntentRecords(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema(), DeltaChainThreshold: 2, Watermark: ts.Ts(100)}

	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(1), opts).Ok())
	require.True(t, p.SetRow(row("k001", "v002"), ts.WithLock(ts.Ts(2)), opts).Ok())
	require.True(t, p.SetRow(row("k002", "v003"), ts.Ts(3), opts).Ok())

	var out RowView
	// k001's intent must not have been compacted into the base as if
	// committed; it stays invisible to a non-owning reader.
	st := p.GetRow(property.SortKey("k001"), ts.Ts(100), opts, &out)
	require.True(t, st.IsNotFound())
}

// A version above the compaction watermark must survive compaction
// individually: a reader whose read_ts sits below it but at or above the
// watermark still needs to walk past it to reach the older, collapsed
// version in the base.
func TestCompactionRetainsVersionsAboveWatermark(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema(), DeltaChainThreshold: 1, Watermark: ts.Ts(7)}

	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(5), opts).Ok())
	// This write pushes delta_length past the threshold and triggers
	// compaction with a watermark of 7, between the two writes' Ts.
	require.True(t, p.SetRow(row("k000", "v002"), ts.Ts(10), opts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(7), opts, &out)
	require.True(t, st.Ok(), "a reader below the newer version but at the watermark must still see the older one")
	require.Equal(t, ts.Ts(5), out.Ts)
	require.Equal(t, property.Row(row("k000", "v001")), out.Row)

	st = p.GetRow(property.SortKey("k000"), ts.Ts(10), opts, &out)
	require.True(t, st.Ok())
	require.Equal(t, ts.Ts(10), out.Ts)
}

// A Delete that collapses below the watermark must evict any entry a prior
// compaction already folded into the base for the same key, not merely
// leave it out of the new overlay.
func TestCompactionOfDeleteEvictsPriorBaseEntry(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema(), DeltaChainThreshold: 1, Watermark: ts.Ts(100)}

	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(1), opts).Ok())
	// Triggers the first compaction: k000 collapses into the base at ts=2.
	require.True(t, p.SetRow(row("k000", "v002"), ts.Ts(2), opts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(10), opts, &out)
	require.True(t, st.Ok())
	require.Equal(t, ts.Ts(2), out.Ts)

	require.True(t, p.DeleteRow(property.SortKey("k000"), ts.Ts(3), opts).Ok())
	// Triggers the second compaction, collapsing the Delete along with an
	// unrelated write so the chain crosses the threshold again.
	require.True(t, p.SetRow(row("k001", "v999"), ts.Ts(4), opts).Ok())

	st = p.GetRow(property.SortKey("k000"), ts.Ts(10), opts, &out)
	require.True(t, st.IsNotFound(), "a collapsed delete must evict the stale base entry, not leave it stale")

	st = p.GetRow(property.SortKey("k001"), ts.Ts(10), opts, &out)
	require.True(t, st.Ok())
	require.Equal(t, ts.Ts(4), out.Ts)
}

// With no watermark supplied (the zero value), compaction must not
// discard anything: every version is potentially still needed.
func TestCompactionWithZeroWatermarkRetainsEverything(t *testing.T) {
	p := New()
	opts := Options{Schema: testSchema(), DeltaChainThreshold: 1}

	require.True(t, p.SetRow(row("k000", "v001"), ts.Ts(1), opts).Ok())
	require.True(t, p.SetRow(row("k000", "v002"), ts.Ts(2), opts).Ok())

	var out RowView
	st := p.GetRow(property.SortKey("k000"), ts.Ts(1), opts, &out)
	require.True(t, st.Ok())
	require.Equal(t, ts.Ts(1), out.Ts)
}
