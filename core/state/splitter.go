package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"paysplit/native/split"
)

type rosterPayee struct {
	Address string `json:"address"`
	Shares  uint64 `json:"shares"`
}

type rosterRecord struct {
	Payees      []rosterPayee `json:"payees"`
	TotalShares uint64        `json:"totalShares"`
}

type ledgerRecord struct {
	Asset   string            `json:"asset"`
	Total   string            `json:"total"`
	ByPayee map[string]string `json:"byPayee,omitempty"`
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("state: invalid amount %q", value)
	}
	return amount, nil
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return addr, fmt.Errorf("state: decode address %q: %w", value, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("state: address %q must be %d bytes", value, len(addr))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// SplitRosterGet loads the payee roster, returning an empty roster when none
// has been installed.
func (m *Manager) SplitRosterGet() (*split.Roster, error) {
	raw, ok, err := m.get(rosterKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &split.Roster{}, nil
	}
	var record rosterRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("state: decode roster: %w", err)
	}
	roster := &split.Roster{TotalShares: record.TotalShares}
	for _, p := range record.Payees {
		addr, err := parseAddress(p.Address)
		if err != nil {
			return nil, err
		}
		roster.Payees = append(roster.Payees, split.Payee{Address: addr, Shares: p.Shares})
	}
	return roster, nil
}

// SplitRosterPut stores the payee roster.
func (m *Manager) SplitRosterPut(roster *split.Roster) error {
	if roster == nil {
		return fmt.Errorf("state: nil roster")
	}
	record := rosterRecord{TotalShares: roster.TotalShares, Payees: make([]rosterPayee, 0, len(roster.Payees))}
	for _, p := range roster.Payees {
		record.Payees = append(record.Payees, rosterPayee{
			Address: hex.EncodeToString(p.Address[:]),
			Shares:  p.Shares,
		})
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("state: encode roster: %w", err)
	}
	m.put(rosterKey, encoded)
	return nil
}

// SplitLedgerGet loads the release ledger row for the asset, returning a fresh
// zero row when the asset has never been released.
func (m *Manager) SplitLedgerGet(asset string) (*split.Ledger, error) {
	raw, ok, err := m.get(ledgerKey(asset))
	if err != nil {
		return nil, err
	}
	if !ok {
		return split.NewLedger(asset), nil
	}
	var record ledgerRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("state: decode ledger %s: %w", asset, err)
	}
	ledger := split.NewLedger(asset)
	if ledger.Total, err = parseAmount(record.Total); err != nil {
		return nil, err
	}
	for encodedAddr, encodedAmount := range record.ByPayee {
		addr, err := parseAddress(encodedAddr)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(encodedAmount)
		if err != nil {
			return nil, err
		}
		ledger.ByPayee[addr] = amount
	}
	return ledger, nil
}

// SplitLedgerPut stores the release ledger row for the asset.
func (m *Manager) SplitLedgerPut(ledger *split.Ledger) error {
	if ledger == nil {
		return fmt.Errorf("state: nil ledger")
	}
	record := ledgerRecord{Asset: ledger.Asset, Total: "0"}
	if ledger.Total != nil {
		record.Total = ledger.Total.String()
	}
	if len(ledger.ByPayee) > 0 {
		record.ByPayee = make(map[string]string, len(ledger.ByPayee))
		for addr, amount := range ledger.ByPayee {
			encoded := "0"
			if amount != nil {
				encoded = amount.String()
			}
			record.ByPayee[hex.EncodeToString(addr[:])] = encoded
		}
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("state: encode ledger %s: %w", ledger.Asset, err)
	}
	m.put(ledgerKey(ledger.Asset), encoded)
	return nil
}

// SplitAssets returns the registered token assets in first-release order.
func (m *Manager) SplitAssets() ([]string, error) {
	raw, ok, err := m.get(assetsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var assets []string
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, fmt.Errorf("state: decode asset registry: %w", err)
	}
	return assets, nil
}

// SplitRegisterAsset records a token asset exactly once. The per-asset seen
// flag makes re-registration a no-op regardless of registry contents.
func (m *Manager) SplitRegisterAsset(asset string) error {
	raw, ok, err := m.get(seenKey(asset))
	if err != nil {
		return err
	}
	if ok && len(raw) > 0 && raw[0] == 1 {
		return nil
	}
	assets, err := m.SplitAssets()
	if err != nil {
		return err
	}
	assets = append(assets, asset)
	encoded, err := json.Marshal(assets)
	if err != nil {
		return fmt.Errorf("state: encode asset registry: %w", err)
	}
	m.put(assetsKey, encoded)
	m.put(seenKey(asset), []byte{1})
	return nil
}

// SplitVaultBalance reports the undistributed vault balance for the asset.
func (m *Manager) SplitVaultBalance(asset string) (*big.Int, error) {
	return m.vault.Balance(asset)
}

// SplitVaultDebit removes released funds from the vault.
func (m *Manager) SplitVaultDebit(asset string, amount *big.Int) error {
	return m.vault.Debit(asset, amount)
}
