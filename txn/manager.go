package txn

import (
	"runtime"
	"sync"

	"github.com/zhangyunhao116/skipset"

	"github.com/Sakuraaa0/ArcaneDB/locktable"
	"github.com/Sakuraaa0/ArcaneDB/subtable"
	"github.com/Sakuraaa0/ArcaneDB/ts"
	"github.com/Sakuraaa0/ArcaneDB/walstore"
)

// Manager owns the timestamp manager, the WAL, the sub-table directory, and
// the lock-manager mode shared by every transaction it begins.
type Manager struct {
	tsMgr *ts.Manager
	log   *walstore.LogStore
	opts  Options

	subTablesMu sync.RWMutex
	subTables   map[string]*subtable.SubTable

	centralLock *locktable.Centralized
	inlineLock  locktable.Inlined

	// inflightCommits tracks commit_ts values that have been allocated but
	// not yet finalized, so a later validator can wait for every earlier
	// commit to finish finalizing before trusting what it reads at
	// commit_ts. This resolves spec.md §4.3 step 5's "notify the timestamp
	// manager of commit completion (for ordering of concurrent
	// validators)": completion is what unblocks a larger commit_ts's
	// validation step.
	inflightCommits *skipset.Uint64Set
}

// NewManager returns a Manager backed by an already-open LogStore.
func NewManager(log *walstore.LogStore, opts Options) *Manager {
	return &Manager{
		tsMgr:           ts.NewManager(),
		log:             log,
		opts:            opts,
		subTables:       make(map[string]*subtable.SubTable),
		centralLock:     locktable.NewCentralized(),
		inlineLock:      locktable.NewInlined(),
		inflightCommits: skipset.NewUint64(),
	}
}

// OpenSubTable returns the named sub-table, creating it if necessary.
func (m *Manager) OpenSubTable(key string) *subtable.SubTable {
	m.subTablesMu.RLock()
	st, ok := m.subTables[key]
	m.subTablesMu.RUnlock()
	if ok {
		return st
	}

	m.subTablesMu.Lock()
	defer m.subTablesMu.Unlock()
	if st, ok := m.subTables[key]; ok {
		return st
	}
	st = subtable.OpenSubTable(key)
	m.subTables[key] = st
	return st
}

// lockTableFor resolves the Table a transaction should acquire locks
// against for a given sub-table, per the Manager's LockMode.
func (m *Manager) lockTableFor(st *subtable.SubTable) locktable.Table {
	switch m.opts.LockMode {
	case Centralized:
		return m.centralLock
	case Decentralized:
		return st.GetLockTable()
	default:
		return m.inlineLock
	}
}

// Begin starts a new transaction context at a freshly allocated read
// timestamp.
func (m *Manager) Begin(typ Type) *Context {
	readTs := m.tsMgr.Next()
	release := m.tsMgr.TrackReader(readTs)
	return &Context{
		mgr:         m,
		typ:         typ,
		readTs:      readTs,
		releaseRead: release,
		writeSet:    make(map[wsKey]wsValue),
		readSet:     make(map[wsKey]*ts.Ts),
	}
}

func (m *Manager) allocCommitTs() ts.Ts {
	t := m.tsMgr.Next()
	m.inflightCommits.Add(uint64(t))
	return t
}

// waitForPredecessors blocks until every commit_ts smaller than commitTs
// has called notifyCommitComplete.
func (m *Manager) waitForPredecessors(commitTs ts.Ts) {
	for {
		blocked := false
		m.inflightCommits.Range(func(value uint64) bool {
			if ts.Ts(value) < commitTs {
				blocked = true
				return false
			}
			return true
		})
		if !blocked {
			return
		}
		runtime.Gosched()
	}
}

func (m *Manager) notifyCommitComplete(commitTs ts.Ts) {
	m.inflightCommits.Remove(uint64(commitTs))
}

// Close drains the WAL and stops its I/O worker. It does not close
// sub-tables: those are pure in-memory structures with nothing to flush.
func (m *Manager) Close() error {
	if m.log == nil {
		return nil
	}
	if st := m.log.Close(); !st.Ok() {
		return st
	}
	return nil
}
