package subtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sakuraaa0/ArcaneDB/page"
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

func TestSubTableRoutesDistinctKeysToDistinctPages(t *testing.T) {
	st := OpenSubTable("users")
	opts := page.Options{Schema: testSchema()}

	require.True(t, st.SetRow(row("k000", "v001"), ts.Ts(1), opts).Ok())
	require.True(t, st.SetRow(row("k001", "v002"), ts.Ts(2), opts).Ok())

	var out page.RowView
	require.True(t, st.GetRow(property.SortKey("k000"), ts.Ts(10), opts, &out).Ok())
	require.Equal(t, ts.Ts(1), out.Ts)

	require.True(t, st.GetRow(property.SortKey("k001"), ts.Ts(10), opts, &out).Ok())
	require.Equal(t, ts.Ts(2), out.Ts)
}

func TestSubTableDeleteAndSetTs(t *testing.T) {
	st := OpenSubTable("users")
	opts := page.Options{Schema: testSchema()}

	readTs := ts.Ts(5)
	intentTs := ts.WithLock(readTs)
	require.True(t, st.SetRow(row("k000", "v001"), intentTs, opts).Ok())

	finOpts := opts
	finOpts.OwnerTs = readTs
	require.True(t, st.SetTs(property.SortKey("k000"), ts.Ts(6), finOpts).Ok())

	var out page.RowView
	require.True(t, st.GetRow(property.SortKey("k000"), ts.Ts(10), opts, &out).Ok())
	require.Equal(t, ts.Ts(6), out.Ts)

	require.True(t, st.DeleteRow(property.SortKey("k000"), ts.Ts(20), opts).Ok())
	require.True(t, st.GetRow(property.SortKey("k000"), ts.Ts(30), opts, &out).IsNotFound())
}

func TestOpenSubTableKey(t *testing.T) {
	st := OpenSubTable("orders")
	require.Equal(t, "orders", st.Key())
}
