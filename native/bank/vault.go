package bank

import (
	"errors"
	"fmt"
	"math/big"

	"paysplit/core/types"
)

var (
	// ErrInsufficientVault is returned when a debit exceeds the vault balance.
	ErrInsufficientVault = errors.New("bank: insufficient vault balance")

	errNilState = errors.New("bank: state not configured")
)

// State is the account slice of ledger state the vault operates on.
type State interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Vault wraps the module account that custodies undistributed funds and the
// book operations that move money between it and payee accounts.
type Vault struct {
	state   State
	address [20]byte
}

// NewVault binds the vault logic to a state backend and module address.
func NewVault(state State, address [20]byte) *Vault {
	return &Vault{state: state, address: address}
}

// Address returns the module account address.
func (v *Vault) Address() [20]byte {
	if v == nil {
		return [20]byte{}
	}
	return v.address
}

func (v *Vault) account(addr [20]byte) (*types.Account, error) {
	acc, err := v.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	return acc, nil
}

// Deposit credits the vault with an external inflow. Amounts must be positive.
func (v *Vault) Deposit(asset string, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: deposit amount must be positive")
	}
	acc, err := v.account(v.address)
	if err != nil {
		return err
	}
	acc.SetBalance(asset, new(big.Int).Add(acc.BalanceOf(asset), amount))
	return v.state.PutAccount(v.address[:], acc)
}

// Balance reports the undistributed vault balance for the asset.
func (v *Vault) Balance(asset string) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	acc, err := v.account(v.address)
	if err != nil {
		return nil, err
	}
	return acc.BalanceOf(asset), nil
}

// Debit removes released funds from the vault ahead of delivery.
func (v *Vault) Debit(asset string, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: invalid debit amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	acc, err := v.account(v.address)
	if err != nil {
		return err
	}
	balance := acc.BalanceOf(asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientVault, balance, asset, amount)
	}
	acc.SetBalance(asset, balance.Sub(balance, amount))
	return v.state.PutAccount(v.address[:], acc)
}

// Transfer delivers a released payment by crediting the payee account. The
// vault side has already been debited as part of the release effects, making
// this the final delivery leg.
func (v *Vault) Transfer(to [20]byte, asset string, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: transfer amount must be positive")
	}
	acc, err := v.account(to)
	if err != nil {
		return err
	}
	acc.SetBalance(asset, new(big.Int).Add(acc.BalanceOf(asset), amount))
	return v.state.PutAccount(to[:], acc)
}

// AccountBalance reports the settled balance an address holds for the asset.
func (v *Vault) AccountBalance(addr [20]byte, asset string) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	acc, err := v.account(addr)
	if err != nil {
		return nil, err
	}
	return acc.BalanceOf(asset), nil
}
