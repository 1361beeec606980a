package types

import "math/big"

// Account tracks the funds held by a single address. Balances are keyed by
// asset symbol: the native denomination plus any registered token assets.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// BalanceOf returns the balance recorded for the asset, treating missing
// entries as zero. The result is a detached copy.
func (a *Account) BalanceOf(asset string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	balance, ok := a.Balances[asset]
	if !ok || balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// SetBalance stores a copy of amount under the asset symbol. A nil amount is
// recorded as zero.
func (a *Account) SetBalance(asset string, amount *big.Int) {
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[asset] = new(big.Int).Set(amount)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.Balances != nil {
		clone.Balances = make(map[string]*big.Int, len(a.Balances))
		for asset, balance := range a.Balances {
			if balance == nil {
				clone.Balances[asset] = big.NewInt(0)
				continue
			}
			clone.Balances[asset] = new(big.Int).Set(balance)
		}
	}
	return clone
}
