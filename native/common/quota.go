package common

import (
	"errors"
	"math"
	"math/big"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaAmountExceeded   = errors.New("quota amount cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount   uint32   `json:"reqCount"`
	AmountUsed *big.Int `json:"amountUsed"`
	EpochID    uint64   `json:"epochId"`
}

// Quota defines the deposit limits enforced per address and epoch. Zero-valued
// limits disable the corresponding check.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxAmountPerEpoch   *big.Int
	EpochSeconds        uint32
}

// Enabled reports whether the quota enforces anything at all.
func (q Quota) Enabled() bool {
	if q.MaxRequestsPerEpoch > 0 {
		return true
	}
	return q.MaxAmountPerEpoch != nil && q.MaxAmountPerEpoch.Sign() > 0
}

// CheckQuota verifies whether the additional request and amount fit within the
// configured quota. The returned QuotaNow reflects the updated counters when
// the quota is not exceeded; on denial the previous counters are returned
// untouched.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addAmount *big.Int) (QuotaNow, error) {
	next := QuotaNow{ReqCount: prev.ReqCount, EpochID: prev.EpochID, AmountUsed: new(big.Int)}
	if prev.AmountUsed != nil {
		next.AmountUsed.Set(prev.AmountUsed)
	}
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch, AmountUsed: new(big.Int)}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addAmount != nil && addAmount.Sign() > 0 {
		next.AmountUsed.Add(next.AmountUsed, addAmount)
	}
	if q.MaxAmountPerEpoch != nil && q.MaxAmountPerEpoch.Sign() > 0 && next.AmountUsed.Cmp(q.MaxAmountPerEpoch) > 0 {
		return prev, ErrQuotaAmountExceeded
	}

	return next, nil
}
