package config

import (
	"encoding/json"
	"fmt"
	"os"

	"paysplit/crypto"
	"paysplit/native/split"
)

type rosterSeedEntry struct {
	Address string `json:"address"`
	Shares  uint64 `json:"shares"`
}

type rosterSeedFile struct {
	Payees []rosterSeedEntry `json:"payees"`
}

// LoadRosterSeed parses a JSON payee seed file into roster entries. The node
// applies the seed only when the stored roster is still empty.
func LoadRosterSeed(path string) ([]split.Payee, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed rosterSeedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse roster seed %s: %w", path, err)
	}
	if len(seed.Payees) == 0 {
		return nil, fmt.Errorf("roster seed %s lists no payees", path)
	}
	payees := make([]split.Payee, 0, len(seed.Payees))
	for i, entry := range seed.Payees {
		addr, err := crypto.DecodeAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("roster seed entry %d: %w", i, err)
		}
		payees = append(payees, split.Payee{Address: addr.Array(), Shares: entry.Shares})
	}
	if _, err := split.ValidatePayees(payees); err != nil {
		return nil, fmt.Errorf("roster seed %s: %w", path, err)
	}
	return payees, nil
}
