// Package locktable implements the capability-typed lock-manager interface
// spec.md §9 calls for in place of the original's template hierarchy: three
// variants — Centralized, Decentralized (per sub-table), and Inlined (a
// no-op, since inline mode relies entirely on the page's own intent check)
// — behind one Table contract.
package locktable

import (
	"strings"
	"sync"

	"github.com/Sakuraaa0/ArcaneDB/arcerr"
)

// Table is the contract every lock-manager variant satisfies.
type Table interface {
	// Lock blocks until key is exclusively held by the caller. It does not
	// validate key (that is ValidateKey's job); the variants in this
	// package always return Ok.
	Lock(key string) *arcerr.Status
	// Unlock releases a key previously locked by the caller.
	Unlock(key string)
}

// ValidateKey rejects reuse of '#' inside a lock key's user-supplied
// components, since '#' is the sub_table_key/sort_key delimiter (spec.md
// §4.3): "The lock table rejects reuse of '#' inside user keys." Callers
// build keys as MakeKey(subTableKey, sortKey) so any '#' beyond the single
// delimiter it inserts came from user input.
func ValidateKey(subTableKey string, sortKey []byte) *arcerr.Status {
	if strings.Contains(subTableKey, "#") || strings.ContainsRune(string(sortKey), '#') {
		return arcerr.New(arcerr.Err, "lock key components must not contain '#'")
	}
	return nil
}

// MakeKey builds the lock table key for a (sub_table_key, sort_key) pair.
func MakeKey(subTableKey string, sortKey []byte) string {
	var b strings.Builder
	b.Grow(len(subTableKey) + 1 + len(sortKey))
	b.WriteString(subTableKey)
	b.WriteByte('#')
	b.Write(sortKey)
	return b.String()
}

// SubTableKeyOf extracts the sub-table key portion of a lock key built by
// MakeKey.
func SubTableKeyOf(lockKey string) string {
	if i := strings.IndexByte(lockKey, '#'); i >= 0 {
		return lockKey[:i]
	}
	return lockKey
}

// entry tracks a single held key: waiters block on wake, which is closed
// (and replaced) each time the holder releases.
type entry struct {
	wake chan struct{}
}

// mapTable is the shared implementation behind Centralized and
// Decentralized: a mutex-guarded map of contended keys, with blocking
// (not busy-polling) waits.
type mapTable struct {
	mu    sync.Mutex
	held  map[string]*entry
}

func newMapTable() *mapTable {
	return &mapTable{held: make(map[string]*entry)}
}

// Lock blocks until key is uncontended, then marks it held.
func (t *mapTable) Lock(key string) *arcerr.Status {
	for {
		t.mu.Lock()
		e, contended := t.held[key]
		if !contended {
			t.held[key] = &entry{wake: make(chan struct{})}
			t.mu.Unlock()
			return arcerr.OkStatus
		}
		wake := e.wake
		t.mu.Unlock()
		<-wake
	}
}

// Unlock releases key, waking any blocked waiters.
func (t *mapTable) Unlock(key string) {
	t.mu.Lock()
	e, held := t.held[key]
	delete(t.held, key)
	t.mu.Unlock()
	if held {
		close(e.wake)
	}
}

// Centralized is one lock table shared across every sub-table.
type Centralized struct {
	*mapTable
}

// NewCentralized returns a new Centralized lock table.
func NewCentralized() *Centralized {
	return &Centralized{mapTable: newMapTable()}
}

// Decentralized is one lock table per sub-table.
type Decentralized struct {
	*mapTable
}

// NewDecentralized returns a new Decentralized lock table, owned by a
// single sub-table.
func NewDecentralized() *Decentralized {
	return &Decentralized{mapTable: newMapTable()}
}

// Inlined is a no-op Table: inline mode relies entirely on the page's own
// CheckIntentLocked write-time check, eliminating the lock set.
type Inlined struct{}

// NewInlined returns the Inlined lock table.
func NewInlined() Inlined {
	return Inlined{}
}

// Lock is a no-op.
func (Inlined) Lock(string) *arcerr.Status { return arcerr.OkStatus }

// Unlock is a no-op.
func (Inlined) Unlock(string) {}
