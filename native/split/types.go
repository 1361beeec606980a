package split

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ModuleName keys the pause guard for release and deposit operations.
const ModuleName = "split"

// NativeDenom is the symbol of the native settlement asset. It always has a
// ledger row and never appears in the token-asset registry.
const NativeDenom = "PAY"

const maxAssetLen = 16

// VaultAddress is the module account that custodies undistributed funds. It is
// derived from a fixed tag so no private key can control it.
var VaultAddress = func() [20]byte {
	hash := ethcrypto.Keccak256([]byte("paysplit/module/vault"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}()

// NormalizeAsset canonicalizes an asset symbol. The empty string maps to the
// native denom; anything else must upper-case to 1..16 characters drawn from
// A-Z and 0-9.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return NativeDenom, nil
	}
	if len(trimmed) > maxAssetLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, symbol)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidAsset, symbol)
		}
	}
	return trimmed, nil
}

// Payee couples a beneficiary address with its positive share weight.
type Payee struct {
	Address [20]byte
	Shares  uint64
}

// Roster is the ordered, duplicate-free set of payees plus the cached share
// total. A zero-value roster is the empty (unpopulated) roster.
type Roster struct {
	Payees      []Payee
	TotalShares uint64
}

// Populated reports whether any payees are configured.
func (r *Roster) Populated() bool {
	return r != nil && len(r.Payees) > 0
}

// SharesOf returns the share weight held by the address, zero when absent.
func (r *Roster) SharesOf(addr [20]byte) uint64 {
	if r == nil {
		return 0
	}
	for _, p := range r.Payees {
		if p.Address == addr {
			return p.Shares
		}
	}
	return 0
}

// Clone returns a deep copy of the roster.
func (r *Roster) Clone() *Roster {
	if r == nil {
		return &Roster{}
	}
	clone := &Roster{TotalShares: r.TotalShares}
	if len(r.Payees) > 0 {
		clone.Payees = append([]Payee(nil), r.Payees...)
	}
	return clone
}

// ValidatePayees checks a candidate roster batch and returns the share total.
// Rules: the batch is non-empty, every address is nonzero, every share weight
// is positive, addresses are unique, and the total fits in uint64.
func ValidatePayees(payees []Payee) (uint64, error) {
	if len(payees) == 0 {
		return 0, ErrNoPayees
	}
	seen := make(map[[20]byte]struct{}, len(payees))
	var total uint64
	for _, p := range payees {
		if p.Address == ([20]byte{}) {
			return 0, ErrZeroAddress
		}
		if p.Shares == 0 {
			return 0, fmt.Errorf("%w: payee %x", ErrZeroShares, p.Address)
		}
		if _, dup := seen[p.Address]; dup {
			return 0, fmt.Errorf("%w: %x", ErrDuplicatePayee, p.Address)
		}
		seen[p.Address] = struct{}{}
		if total > math.MaxUint64-p.Shares {
			return 0, ErrSharesOverflow
		}
		total += p.Shares
	}
	return total, nil
}

// Ledger is the per-asset record of released amounts. Total always equals the
// sum of the ByPayee entries.
type Ledger struct {
	Asset   string
	Total   *big.Int
	ByPayee map[[20]byte]*big.Int
}

// NewLedger returns an empty ledger row for the asset.
func NewLedger(asset string) *Ledger {
	return &Ledger{
		Asset:   asset,
		Total:   big.NewInt(0),
		ByPayee: make(map[[20]byte]*big.Int),
	}
}

// ReleasedTo returns the amount already released to the address, as a copy.
func (l *Ledger) ReleasedTo(addr [20]byte) *big.Int {
	if l == nil || l.ByPayee == nil {
		return big.NewInt(0)
	}
	amount, ok := l.ByPayee[addr]
	if !ok || amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

// Credit adds the payment to the asset total and the payee's released amount.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) {
	if l == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	if l.Total == nil {
		l.Total = big.NewInt(0)
	}
	if l.ByPayee == nil {
		l.ByPayee = make(map[[20]byte]*big.Int)
	}
	l.Total = new(big.Int).Add(l.Total, amount)
	prev, ok := l.ByPayee[addr]
	if !ok || prev == nil {
		prev = big.NewInt(0)
	}
	l.ByPayee[addr] = new(big.Int).Add(prev, amount)
}

// Zero resets the row as part of a roster clear.
func (l *Ledger) Zero() {
	if l == nil {
		return
	}
	l.Total = big.NewInt(0)
	l.ByPayee = make(map[[20]byte]*big.Int)
}

// Clone returns a deep copy of the ledger row.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := NewLedger(l.Asset)
	if l.Total != nil {
		clone.Total = new(big.Int).Set(l.Total)
	}
	for addr, amount := range l.ByPayee {
		if amount == nil {
			clone.ByPayee[addr] = big.NewInt(0)
			continue
		}
		clone.ByPayee[addr] = new(big.Int).Set(amount)
	}
	return clone
}
