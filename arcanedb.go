// Package arcanedb wires the page, sub-table, WAL, and transaction layers
// into the single embedding surface an application opens: Open a store,
// Begin transactions against it, Close it to drain the WAL.
package arcanedb

import (
	"time"

	"github.com/Sakuraaa0/ArcaneDB/arcerr"
	"github.com/Sakuraaa0/ArcaneDB/internal/vfs"
	"github.com/Sakuraaa0/ArcaneDB/page"
	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/subtable"
	"github.com/Sakuraaa0/ArcaneDB/txn"
	"github.com/Sakuraaa0/ArcaneDB/walstore"
)

// Options configures Open. Field names mirror spec.md §6's recognised
// options across the page, sub-table, and WAL layers.
type Options struct {
	Schema *property.Schema

	DisableCompaction   bool
	CheckIntentLocked   bool
	DeltaChainThreshold int

	LockMode txn.LockMode

	Dir           string
	FileName      string
	SegmentNum    int
	SegmentSize   int
	FlushInterval time.Duration
}

// DB is the top-level handle an application opens once and shares across
// goroutines.
type DB struct {
	wal *walstore.LogStore
	txn *txn.Manager
}

// Open creates the WAL's log file under opts.Dir and returns a ready DB.
func Open(opts Options) (*DB, *arcerr.Status) {
	walOpts := walstore.DefaultOptions()
	if opts.Dir != "" {
		walOpts.Dir = opts.Dir
	}
	if opts.FileName != "" {
		walOpts.FileName = opts.FileName
	}
	if opts.SegmentNum > 0 {
		walOpts.SegmentNum = opts.SegmentNum
	}
	if opts.SegmentSize > 0 {
		walOpts.SegmentSize = opts.SegmentSize
	}
	if opts.FlushInterval > 0 {
		walOpts.FlushInterval = opts.FlushInterval
	}

	store, st := walstore.Open(vfs.OSFileSystem{}, walOpts)
	if !st.Ok() {
		return nil, st
	}

	txnOpts := txn.Options{
		LockMode: opts.LockMode,
		PageOptions: page.Options{
			Schema:              opts.Schema,
			DisableCompaction:   opts.DisableCompaction,
			CheckIntentLocked:   opts.CheckIntentLocked,
			DeltaChainThreshold: opts.DeltaChainThreshold,
		},
	}

	return &DB{
		wal: store,
		txn: txn.NewManager(store, txnOpts),
	}, arcerr.OkStatus
}

// Begin starts a new transaction of the given type.
func (db *DB) Begin(typ txn.Type) *txn.Context {
	return db.txn.Begin(typ)
}

// OpenSubTable returns the named sub-table, creating it if necessary.
func (db *DB) OpenSubTable(key string) *subtable.SubTable {
	return db.txn.OpenSubTable(key)
}

// WAL exposes the underlying log store, for callers that want
// PersistentLsn/WaitForPersistent directly rather than through a
// transaction's Lsn().
func (db *DB) WAL() *walstore.LogStore {
	return db.wal
}

// Close drains the WAL's I/O worker and closes the log file. It is not
// safe to call concurrently with in-flight transactions.
func (db *DB) Close() error {
	return db.txn.Close()
}
