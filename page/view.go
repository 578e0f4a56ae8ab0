package page

import (
	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/ts"
)

// RowView is the caller-supplied output parameter GetRow fills in on a
// successful (Ok) read. Its Row aliases either a base entry's bytes (safe
// forever, base is immutable) or a live delta node's bytes (safe as long as
// the node is reachable, which for a value the caller just read is
// guaranteed).
type RowView struct {
	SortKey property.SortKey
	Ts      ts.Ts
	Row     property.Row
}

func (v *RowView) set(sortKey property.SortKey, t ts.Ts, row property.Row) {
	v.SortKey = sortKey
	v.Ts = t
	v.Row = row
}
