package txn

import "github.com/Sakuraaa0/ArcaneDB/page"

// Type distinguishes read-only transactions, which commit without
// validation, from read-write transactions, which run the full four-phase
// commit protocol.
type Type int

const (
	// ReadWrite transactions buffer writes and validate at commit.
	ReadWrite Type = iota
	// ReadOnly transactions go straight to the page at read_ts and commit
	// immediately without validation.
	ReadOnly
)

// LockMode selects which locktable.Table variant a Manager's transactions
// acquire advisory locks from.
type LockMode int

const (
	// Centralized shares one lock table across every sub-table.
	Centralized LockMode = iota
	// Decentralized uses each sub-table's own lock table.
	Decentralized
	// Inlined skips the lock table entirely, relying on the page's
	// CheckIntentLocked write-time check.
	Inlined
)

// Options configures a transaction's page-level operations and, for a
// Manager, the WAL and lock-manager mode shared by every transaction it
// begins.
type Options struct {
	PageOptions page.Options
	LockMode    LockMode
}
