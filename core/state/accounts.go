package state

import (
	"encoding/json"
	"fmt"

	"paysplit/core/types"
)

// GetAccount loads the account stored for the address, or nil when the address
// has never been written.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	raw, ok, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	account := new(types.Account)
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, fmt.Errorf("state: decode account %x: %w", addr, err)
	}
	return account, nil
}

// PutAccount stores the account under the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account for %x", addr)
	}
	encoded, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("state: encode account %x: %w", addr, err)
	}
	m.put(accountKey(addr), encoded)
	return nil
}
