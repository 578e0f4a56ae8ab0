// Package txn implements the optimistic concurrency control transaction
// layer stacked over sub-tables: per-transaction read/write sets and the
// four-phase write-intents → acquire-commit-ts → validate-reads → finalize
// commit protocol, per spec.md §4.3.
package txn

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sakuraaa0/ArcaneDB/arcerr"
	"github.com/Sakuraaa0/ArcaneDB/locktable"
	"github.com/Sakuraaa0/ArcaneDB/page"
	"github.com/Sakuraaa0/ArcaneDB/property"
	"github.com/Sakuraaa0/ArcaneDB/subtable"
	"github.com/Sakuraaa0/ArcaneDB/ts"
	"github.com/Sakuraaa0/ArcaneDB/walstore"
)

// maxValidationFanout bounds how many read-set entries are re-read
// concurrently during commit validation.
const maxValidationFanout = 8

var log = logrus.WithField("component", "txn")

// wsKey identifies one row a transaction has touched.
type wsKey struct {
	subTable string
	sortKey  string
}

// wsValue is a staged write. deleted distinguishes a staged tombstone from
// a staged Put; row is nil for a delete.
type wsValue struct {
	row     property.Row
	deleted bool
}

// lockHandle is one advisory lock a transaction acquired, remembered so
// CommitOrAbort can release it regardless of outcome.
type lockHandle struct {
	table locktable.Table
	key   string
}

// Context is one OCC transaction: a read timestamp, a buffered write-set, a
// read-set of observations to validate at commit, and the advisory locks
// held so far.
type Context struct {
	mgr *Manager
	typ Type
	id  uuid.UUID

	readTs      ts.Ts
	commitTs    ts.Ts
	releaseRead func()

	writeSet map[wsKey]wsValue
	// No separate amendment order is kept: the commit protocol does not
	// depend on it (finalize can run in any order), so iterating the Go map
	// directly is fine since every key is distinct by construction.

	readSet map[wsKey]*ts.Ts

	locks []lockHandle

	// lsn is the highest end-LSN returned by any WAL record this
	// transaction appended; callers may wait on it for durability.
	lsn uint64

	done bool
}

// ID returns a diagnostic identifier for the transaction, generated lazily
// on first use.
func (c *Context) ID() uuid.UUID {
	if c.id == uuid.Nil {
		c.id = uuid.New()
	}
	return c.id
}

// ReadTs returns the transaction's read timestamp.
func (c *Context) ReadTs() ts.Ts {
	return c.readTs
}

// Lsn returns the highest WAL end-LSN this transaction has appended so far.
func (c *Context) Lsn() uint64 {
	return c.lsn
}

func (c *Context) appendRecord(tag logTag) {
	if c.mgr.log == nil {
		return
	}
	payload := encodeTxnRecord(tag, uint64(c.readTs), uint64(c.commitTs))
	lsn, st := c.mgr.log.AppendLogRecord(context.Background(), payload)
	if !st.Ok() {
		log.WithField("err", st).WithField("tag", tag).Error("wal append failed for txn record")
		return
	}
	end := lsn + uint64(walstore.EncodedSize(payload))
	if end > c.lsn {
		c.lsn = end
	}
}

func (c *Context) subTable(key string) *subtable.SubTable {
	return c.mgr.OpenSubTable(key)
}

func (c *Context) lockKeyFor(subTableKey string, sortKey property.SortKey) (string, *arcerr.Status) {
	if st := locktable.ValidateKey(subTableKey, sortKey); !st.Ok() {
		return "", st
	}
	return locktable.MakeKey(subTableKey, sortKey), arcerr.OkStatus
}

func (c *Context) acquireLock(subTableKey string, sortKey property.SortKey) *arcerr.Status {
	if c.mgr.opts.LockMode == Inlined {
		return arcerr.OkStatus
	}
	key, st := c.lockKeyFor(subTableKey, sortKey)
	if !st.Ok() {
		return st
	}
	st2 := c.subTable(subTableKey)
	table := c.mgr.lockTableFor(st2)
	if lockSt := table.Lock(key); !lockSt.Ok() {
		return lockSt
	}
	c.locks = append(c.locks, lockHandle{table: table, key: key})
	return arcerr.OkStatus
}

func (c *Context) releaseLocks() {
	for _, h := range c.locks {
		h.table.Unlock(h.key)
	}
	c.locks = nil
}

// SetRow stages a Put of row into subTableKey's write-set, acquiring an
// advisory lock first unless the manager's lock mode is Inlined.
func (c *Context) SetRow(subTableKey string, row property.Row) *arcerr.Status {
	if c.done {
		return arcerr.New(arcerr.Err, "transaction already finished")
	}
	sortKey, err := row.SortKey(c.mgr.opts.PageOptions.Schema)
	if err != nil {
		return arcerr.Wrap(arcerr.Err, err)
	}
	if st := c.acquireLock(subTableKey, sortKey); !st.Ok() {
		return st
	}
	c.writeSet[wsKey{subTableKey, sortKey.String()}] = wsValue{row: row}
	return arcerr.OkStatus
}

// DeleteRow stages a delete of sortKey in subTableKey's write-set.
func (c *Context) DeleteRow(subTableKey string, sortKey property.SortKey) *arcerr.Status {
	if c.done {
		return arcerr.New(arcerr.Err, "transaction already finished")
	}
	if st := c.acquireLock(subTableKey, sortKey); !st.Ok() {
		return st
	}
	c.writeSet[wsKey{subTableKey, sortKey.String()}] = wsValue{deleted: true}
	return arcerr.OkStatus
}

// GetRow resolves sortKey within subTableKey. A read-write transaction
// first checks its own write-set; otherwise it reads the underlying page
// at read_ts and records the observation in its read-set for validation at
// commit.
func (c *Context) GetRow(subTableKey string, sortKey property.SortKey, out *page.RowView) *arcerr.Status {
	if c.done {
		return arcerr.New(arcerr.Err, "transaction already finished")
	}

	key := wsKey{subTableKey, sortKey.String()}
	if c.typ == ReadWrite {
		if wv, ok := c.writeSet[key]; ok {
			if wv.deleted {
				return arcerr.New(arcerr.NotFound, "%q staged for delete in this transaction", sortKey)
			}
			out.SortKey = sortKey
			out.Ts = c.readTs
			out.Row = wv.row
			return arcerr.OkStatus
		}
	}

	st := c.subTable(subTableKey)
	opts := c.mgr.opts.PageOptions
	rst := st.GetRow(sortKey, c.readTs, opts, out)

	if c.typ == ReadWrite {
		if _, already := c.readSet[key]; !already {
			if rst.Ok() {
				observed := out.Ts
				c.readSet[key] = &observed
			} else if rst.IsNotFound() {
				c.readSet[key] = nil
			}
		}
	}
	return rst
}

// CommitOrAbort runs the commit protocol for a read-write transaction, or
// commits immediately for a read-only one. It is safe to call at most once.
func (c *Context) CommitOrAbort() *arcerr.Status {
	if c.done {
		return arcerr.New(arcerr.Err, "transaction already finished")
	}
	defer func() {
		c.done = true
		c.releaseRead()
	}()

	c.appendRecord(tagBegin)

	if c.typ == ReadOnly || len(c.writeSet) == 0 {
		c.appendRecord(tagCommit)
		c.releaseLocks()
		return arcerr.New(arcerr.Commit, "read-only commit")
	}

	// Phase 1: write intents.
	intentTs := ts.WithLock(c.readTs)
	var applied []wsKey
	for k, v := range c.writeSet {
		st := c.subTable(k.subTable)
		opts := c.intentOptions()
		var rst *arcerr.Status
		if v.deleted {
			rst = st.DeleteRow(property.SortKey(k.sortKey), intentTs, opts)
		} else {
			rst = st.SetRow(v.row, intentTs, opts)
		}
		if !rst.Ok() {
			c.abortIntents(applied)
			c.appendRecord(tagAbort)
			c.releaseLocks()
			log.WithField("txn_id", c.ID()).WithField("key", k.sortKey).Warn("write-intent conflict, aborting")
			return arcerr.New(arcerr.Abort, "write-intent for %q failed: %s", k.sortKey, rst)
		}
		applied = append(applied, k)
	}

	// Phase 2: acquire commit_ts.
	c.commitTs = c.mgr.allocCommitTs()

	// Phase 3: validate read-set at commit_ts, after waiting for every
	// smaller in-flight commit to finalize.
	c.mgr.waitForPredecessors(c.commitTs)
	if !c.validateReadSet() {
		c.abortIntents(applied)
		c.mgr.notifyCommitComplete(c.commitTs)
		c.appendRecord(tagAbort)
		c.releaseLocks()
		log.WithField("txn_id", c.ID()).Warn("read-set validation failed, aborting")
		return arcerr.New(arcerr.Abort, "read-set validation failed")
	}

	// Phase 4: finalize.
	for _, k := range applied {
		st := c.subTable(k.subTable)
		if fst := st.SetTs(property.SortKey(k.sortKey), c.commitTs, c.finalizeOptions()); !fst.Ok() {
			log.WithField("key", k.sortKey).WithField("err", fst).
				Error("finalize failed for a key whose intent write succeeded, this indicates a bug")
		}
	}

	c.mgr.notifyCommitComplete(c.commitTs)
	c.appendRecord(tagCommit)
	c.releaseLocks()
	log.WithField("txn_id", c.ID()).WithField("commit_ts", c.commitTs).Debug("committed")
	return arcerr.New(arcerr.Commit, "committed at ts %d", c.commitTs)
}

// validateReadSet re-reads every key observed during the transaction at
// commit_ts and checks it still matches what was originally observed. Each
// key is an independent point lookup, so the re-reads fan out across an
// errgroup bounded to maxValidationFanout, short-circuiting on the group's
// context once any goroutine reports a mismatch.
func (c *Context) validateReadSet() bool {
	if len(c.readSet) == 0 {
		return true
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(maxValidationFanout)

	for k, expected := range c.readSet {
		k, expected := k, expected
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var out page.RowView
			st := c.subTable(k.subTable)
			rst := st.GetRow(property.SortKey(k.sortKey), c.commitTs, c.mgr.opts.PageOptions, &out)

			if expected == nil {
				if !rst.IsNotFound() {
					return errValidationMismatch
				}
				return nil
			}
			if !rst.Ok() || out.Ts != *expected {
				return errValidationMismatch
			}
			return nil
		})
	}

	return g.Wait() == nil
}

var errValidationMismatch = arcerr.New(arcerr.Abort, "read-set entry no longer matches at commit_ts")

// abortIntents flips every applied write-set intent to AbortedTs.
func (c *Context) abortIntents(applied []wsKey) {
	for _, k := range applied {
		st := c.subTable(k.subTable)
		if ast := st.SetTs(property.SortKey(k.sortKey), ts.AbortedTs, c.finalizeOptions()); !ast.Ok() {
			log.WithField("key", k.sortKey).WithField("err", ast).Warn("failed to abort intent")
		}
	}
}

// intentOptions returns the page.Options a phase-1 write-intent uses:
// intent checking on, owned by this transaction's read_ts, and the
// manager's current compaction watermark so a threshold-crossing write
// never collapses a version some tracked reader might still need.
func (c *Context) intentOptions() page.Options {
	opts := c.mgr.opts.PageOptions
	opts.CheckIntentLocked = true
	opts.OwnerTs = c.readTs
	opts.Watermark = c.mgr.tsMgr.Watermark()
	return opts
}

// finalizeOptions returns the page.Options SetTs uses to locate this
// transaction's own intents.
func (c *Context) finalizeOptions() page.Options {
	opts := c.mgr.opts.PageOptions
	opts.OwnerTs = c.readTs
	return opts
}
