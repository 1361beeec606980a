package state

import (
	"errors"
	"fmt"

	"paysplit/native/bank"
	"paysplit/native/split"
	"paysplit/storage"
)

var (
	rosterKey  = []byte("split/roster")
	assetsKey  = []byte("split/assets")
	ledgerFmt  = "split/ledger/%s"
	seenFmt    = "split/asset-seen/%s"
	accountFmt = "bank/account/%x"
	quotaFmt   = "split/quota/%x"
)

func ledgerKey(asset string) []byte { return []byte(fmt.Sprintf(ledgerFmt, asset)) }
func seenKey(asset string) []byte   { return []byte(fmt.Sprintf(seenFmt, asset)) }
func accountKey(addr []byte) []byte { return []byte(fmt.Sprintf(accountFmt, addr)) }
func quotaKey(addr [20]byte) []byte { return []byte(fmt.Sprintf(quotaFmt, addr[:])) }

// Manager reads and writes ledger records above a storage.Database. Pending
// writes accumulate in an in-memory overlay until Commit flushes them; Copy
// produces an isolated snapshot for speculative execution. The manager is not
// safe for concurrent use; the node serializes operations above it.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
	vault   *bank.Vault
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	m := &Manager{
		db:      db,
		overlay: make(map[string][]byte),
	}
	m.vault = bank.NewVault(m, split.VaultAddress)
	return m
}

// Vault exposes the module vault bound to this manager. Release delivery and
// deposits go through it.
func (m *Manager) Vault() *bank.Vault {
	return m.vault
}

// Copy returns an isolated snapshot sharing the committed database but not the
// pending overlay. Mutating the copy leaves the original untouched.
func (m *Manager) Copy() *Manager {
	overlay := make(map[string][]byte, len(m.overlay))
	for key, value := range m.overlay {
		overlay[key] = append([]byte(nil), value...)
	}
	clone := &Manager{db: m.db, overlay: overlay}
	clone.vault = bank.NewVault(clone, split.VaultAddress)
	return clone
}

// Commit flushes every pending write to the database and clears the overlay.
func (m *Manager) Commit() error {
	for key, value := range m.overlay {
		if err := m.db.Put([]byte(key), value); err != nil {
			return fmt.Errorf("state: commit %q: %w", key, err)
		}
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// Pending reports the number of uncommitted writes. Test helper.
func (m *Manager) Pending() int {
	return len(m.overlay)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if value, ok := m.overlay[string(key)]; ok {
		return append([]byte(nil), value...), true, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) put(key []byte, value []byte) {
	m.overlay[string(key)] = append([]byte(nil), value...)
}
