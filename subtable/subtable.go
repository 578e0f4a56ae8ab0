// Package subtable maps sort-key prefixes to pages: the unit of sharding
// OCC transactions address by name, per spec.md §4.1/§6.
package subtable

import (
	"github.com/zhangyunhao116/skipmap"

	"github.com/Sakuraaa0/ArcaneDB/arcerr"
	"github.com/Sakuraaa0/ArcaneDB/locktable"
	"github.com/Sakuraaa0/ArcaneDB/page"
	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/ts"
)

// SubTable is a named collection of pages. It stands in for spec.md's
// "buffer pool lookup and sub-table directory" collaborator, specialized
// one level down to the single page directory a sub-table itself owns: a
// lock-free concurrent map from sort-key prefix to *page.Page, so readers
// resolving a page never contend with concurrent opens of sibling keys.
type SubTable struct {
	key       string
	pages     *skipmap.FuncMap[[]byte, *page.Page]
	lockTable *locktable.Decentralized
}

// OpenSubTable returns a new, empty sub-table named key; it keeps no
// directory of earlier calls (txn.Manager.OpenSubTable does that). It
// always allocates a decentralized lock table; GetLockTable is only called
// when the caller's lock manager mode is Decentralized (spec.md §9) —
// Centralized/Inlined modes never call it.
func OpenSubTable(key string) *SubTable {
	return &SubTable{
		key: key,
		pages: skipmap.NewFunc[[]byte, *page.Page](func(a, b []byte) bool {
			return property.SortKey(a).Compare(property.SortKey(b)) < 0
		}),
		lockTable: locktable.NewDecentralized(),
	}
}

// Key returns the sub-table's key.
func (s *SubTable) Key() string {
	return s.key
}

// GetLockTable returns this sub-table's decentralized lock table. Only
// meaningful when the enclosing transaction manager uses
// the txn.Decentralized lock mode.
func (s *SubTable) GetLockTable() *locktable.Decentralized {
	return s.lockTable
}

func (s *SubTable) pageFor(sortKey property.SortKey) *page.Page {
	if p, ok := s.pages.Load(sortKey); ok {
		return p
	}
	p, _ := s.pages.LoadOrStore(sortKey, page.New())
	return p
}

// SetRow forwards to the page owning row's sort key.
func (s *SubTable) SetRow(row property.Row, t ts.Ts, opts page.Options) *arcerr.Status {
	sortKey, err := row.SortKey(opts.Schema)
	if err != nil {
		return arcerr.Wrap(arcerr.Err, err)
	}
	return s.pageFor(sortKey).SetRow(row, t, opts)
}

// DeleteRow forwards to the page owning sortKey.
func (s *SubTable) DeleteRow(sortKey property.SortKey, t ts.Ts, opts page.Options) *arcerr.Status {
	return s.pageFor(sortKey).DeleteRow(sortKey, t, opts)
}

// GetRow forwards to the page owning sortKey.
func (s *SubTable) GetRow(sortKey property.SortKey, readTs ts.Ts, opts page.Options, out *page.RowView) *arcerr.Status {
	return s.pageFor(sortKey).GetRow(sortKey, readTs, opts, out)
}

// SetTs forwards to the page owning sortKey.
func (s *SubTable) SetTs(sortKey property.SortKey, newTs ts.Ts, opts page.Options) *arcerr.Status {
	return s.pageFor(sortKey).SetTs(sortKey, newTs, opts)
}
