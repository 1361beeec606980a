package events

import (
	"math/big"
	"strconv"

	"paysplit/core/types"
)

const (
	// TypeSplitPayeeAdded is emitted once per payee when a roster is installed.
	TypeSplitPayeeAdded = "split.payee.added"
	// TypeSplitPayeeRemoved is emitted once per payee when the roster is cleared.
	TypeSplitPayeeRemoved = "split.payee.removed"
	// TypeSplitPaymentReceived is emitted when funds land in the splitter vault.
	TypeSplitPaymentReceived = "split.payment.received"
	// TypeSplitPaymentReleased is emitted when a payee's owed amount is paid out.
	TypeSplitPaymentReleased = "split.payment.released"
)

// SplitPayeeAdded records a beneficiary joining the roster.
type SplitPayeeAdded struct {
	Payee       [20]byte
	Shares      uint64
	TotalShares uint64
}

func (SplitPayeeAdded) EventType() string { return TypeSplitPayeeAdded }

func (e SplitPayeeAdded) Event() *types.Event {
	return &types.Event{Type: TypeSplitPayeeAdded, Attributes: map[string]string{
		"payee":       addressString(e.Payee),
		"shares":      strconv.FormatUint(e.Shares, 10),
		"totalShares": strconv.FormatUint(e.TotalShares, 10),
	}}
}

// SplitPayeeRemoved records a beneficiary leaving the roster on clear.
type SplitPayeeRemoved struct {
	Payee  [20]byte
	Shares uint64
}

func (SplitPayeeRemoved) EventType() string { return TypeSplitPayeeRemoved }

func (e SplitPayeeRemoved) Event() *types.Event {
	return &types.Event{Type: TypeSplitPayeeRemoved, Attributes: map[string]string{
		"payee":  addressString(e.Payee),
		"shares": strconv.FormatUint(e.Shares, 10),
	}}
}

// SplitPaymentReceived records an inflow credited to the splitter vault.
type SplitPaymentReceived struct {
	Asset         string
	From          [20]byte
	Amount        *big.Int
	TotalReceived *big.Int
	Receipt       string
}

func (SplitPaymentReceived) EventType() string { return TypeSplitPaymentReceived }

func (e SplitPaymentReceived) Event() *types.Event {
	attrs := map[string]string{
		"amount":        formatAmount(e.Amount),
		"totalReceived": formatAmount(e.TotalReceived),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	if !zeroBytes(e.From[:]) {
		attrs["from"] = addressString(e.From)
	}
	if e.Receipt != "" {
		attrs["receipt"] = e.Receipt
	}
	return &types.Event{Type: TypeSplitPaymentReceived, Attributes: attrs}
}

// SplitPaymentReleased records a payout from the vault to a payee.
type SplitPaymentReleased struct {
	Asset         string
	To            [20]byte
	Amount        *big.Int
	TotalReleased *big.Int
}

func (SplitPaymentReleased) EventType() string { return TypeSplitPaymentReleased }

func (e SplitPaymentReleased) Event() *types.Event {
	attrs := map[string]string{
		"to":            addressString(e.To),
		"amount":        formatAmount(e.Amount),
		"totalReleased": formatAmount(e.TotalReleased),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: TypeSplitPaymentReleased, Attributes: attrs}
}
