package state

import (
	"encoding/json"
	"fmt"

	"paysplit/native/common"
)

// QuotaGet loads the deposit quota counters for the address. Missing counters
// read as the zero value.
func (m *Manager) QuotaGet(addr [20]byte) (common.QuotaNow, error) {
	raw, ok, err := m.get(quotaKey(addr))
	if err != nil {
		return common.QuotaNow{}, err
	}
	if !ok {
		return common.QuotaNow{}, nil
	}
	var now common.QuotaNow
	if err := json.Unmarshal(raw, &now); err != nil {
		return common.QuotaNow{}, fmt.Errorf("state: decode quota %x: %w", addr, err)
	}
	return now, nil
}

// QuotaPut stores the deposit quota counters for the address.
func (m *Manager) QuotaPut(addr [20]byte, now common.QuotaNow) error {
	encoded, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("state: encode quota %x: %w", addr, err)
	}
	m.put(quotaKey(addr), encoded)
	return nil
}
