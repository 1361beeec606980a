package common

import (
	"errors"
	"math/big"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, nil)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied.ReqCount != next.ReqCount || denied.EpochID != next.EpochID {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaAmountCap(t *testing.T) {
	q := Quota{MaxAmountPerEpoch: big.NewInt(1000)}
	prev := QuotaNow{EpochID: 5}

	next, err := CheckQuota(q, 5, prev, 0, big.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.AmountUsed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected amount used: %s", next.AmountUsed)
	}

	denied, err := CheckQuota(q, 5, next, 0, big.NewInt(1))
	if !errors.Is(err, ErrQuotaAmountExceeded) {
		t.Fatalf("expected ErrQuotaAmountExceeded, got %v", err)
	}
	if denied.AmountUsed.Cmp(next.AmountUsed) != 0 {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 6, next, 0, big.NewInt(500))
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.AmountUsed.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected amount used after rollover: %s", rollover.AmountUsed)
	}
}

func TestQuotaEnabled(t *testing.T) {
	if (Quota{}).Enabled() {
		t.Fatalf("zero quota should be disabled")
	}
	if !(Quota{MaxRequestsPerEpoch: 1}).Enabled() {
		t.Fatalf("request-limited quota should be enabled")
	}
	if !(Quota{MaxAmountPerEpoch: big.NewInt(1)}).Enabled() {
		t.Fatalf("amount-limited quota should be enabled")
	}
}

func TestGuardHonoursPauseRegistry(t *testing.T) {
	pauses := NewPauses()
	if err := Guard(pauses, "split"); err != nil {
		t.Fatalf("unexpected error while unpaused: %v", err)
	}
	pauses.Pause("split")
	if err := Guard(pauses, "split"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "bank"); err != nil {
		t.Fatalf("other modules should stay unpaused, got %v", err)
	}
	pauses.Resume("split")
	if err := Guard(pauses, "split"); err != nil {
		t.Fatalf("unexpected error after resume: %v", err)
	}
}
