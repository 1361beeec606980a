package state

import (
	"math/big"
	"testing"

	"paysplit/core/types"
	"paysplit/native/common"
	"paysplit/native/split"
	"paysplit/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestAccountRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	addr := testAddr(0xA1)
	missing, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown account, got %+v", missing)
	}

	account := &types.Account{Nonce: 3}
	account.SetBalance("PAY", big.NewInt(77))
	if err := mgr.PutAccount(addr[:], account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	loaded, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if loaded.Nonce != 3 || loaded.BalanceOf("PAY").Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("unexpected account: %+v", loaded)
	}
}

func TestRosterRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	empty, err := mgr.SplitRosterGet()
	if err != nil {
		t.Fatalf("get empty roster: %v", err)
	}
	if empty.Populated() {
		t.Fatalf("expected empty roster")
	}

	roster := &split.Roster{
		Payees: []split.Payee{
			{Address: testAddr(0xA1), Shares: 3},
			{Address: testAddr(0xB2), Shares: 1},
		},
		TotalShares: 4,
	}
	if err := mgr.SplitRosterPut(roster); err != nil {
		t.Fatalf("put roster: %v", err)
	}
	loaded, err := mgr.SplitRosterGet()
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if loaded.TotalShares != 4 || len(loaded.Payees) != 2 {
		t.Fatalf("unexpected roster: %+v", loaded)
	}
	if loaded.Payees[0].Address != testAddr(0xA1) || loaded.Payees[1].Shares != 1 {
		t.Fatalf("roster order not preserved: %+v", loaded.Payees)
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	fresh, err := mgr.SplitLedgerGet("USDX")
	if err != nil {
		t.Fatalf("get fresh ledger: %v", err)
	}
	if fresh.Total.Sign() != 0 || len(fresh.ByPayee) != 0 {
		t.Fatalf("expected zero ledger, got %+v", fresh)
	}

	ledger := split.NewLedger("USDX")
	ledger.Credit(testAddr(0xA1), big.NewInt(30))
	ledger.Credit(testAddr(0xB2), big.NewInt(12))
	if err := mgr.SplitLedgerPut(ledger); err != nil {
		t.Fatalf("put ledger: %v", err)
	}
	loaded, err := mgr.SplitLedgerGet("USDX")
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if loaded.Total.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected total 42, got %s", loaded.Total)
	}
	if loaded.ReleasedTo(testAddr(0xA1)).Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected payee amount: %s", loaded.ReleasedTo(testAddr(0xA1)))
	}
}

func TestAssetRegistryIdempotence(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	for _, asset := range []string{"USDX", "EURX", "USDX", "USDX", "EURX"} {
		if err := mgr.SplitRegisterAsset(asset); err != nil {
			t.Fatalf("register %s: %v", asset, err)
		}
	}
	assets, err := mgr.SplitAssets()
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	if len(assets) != 2 || assets[0] != "USDX" || assets[1] != "EURX" {
		t.Fatalf("expected [USDX EURX], got %v", assets)
	}
}

func TestVaultBalanceAndDebit(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	if err := mgr.Vault().Deposit("PAY", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balance, err := mgr.SplitVaultBalance("PAY")
	if err != nil || balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected vault 100, got %v err=%v", balance, err)
	}
	if err := mgr.SplitVaultDebit("PAY", big.NewInt(60)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, _ = mgr.SplitVaultBalance("PAY")
	if balance.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected vault 40, got %s", balance)
	}
	if err := mgr.SplitVaultDebit("PAY", big.NewInt(41)); err == nil {
		t.Fatalf("expected insufficient vault error")
	}
}

func TestQuotaRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	addr := testAddr(0xD4)
	zero, err := mgr.QuotaGet(addr)
	if err != nil {
		t.Fatalf("get zero quota: %v", err)
	}
	if zero.ReqCount != 0 || zero.EpochID != 0 {
		t.Fatalf("expected zero quota, got %+v", zero)
	}

	now := common.QuotaNow{ReqCount: 4, AmountUsed: big.NewInt(250), EpochID: 9}
	if err := mgr.QuotaPut(addr, now); err != nil {
		t.Fatalf("put quota: %v", err)
	}
	loaded, err := mgr.QuotaGet(addr)
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if loaded.ReqCount != 4 || loaded.EpochID != 9 || loaded.AmountUsed.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected quota: %+v", loaded)
	}
}

func TestCopyIsolatesPendingWrites(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	if err := mgr.SplitRosterPut(&split.Roster{
		Payees:      []split.Payee{{Address: testAddr(0xA1), Shares: 1}},
		TotalShares: 1,
	}); err != nil {
		t.Fatalf("put roster: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	working := mgr.Copy()
	if err := working.Vault().Deposit("PAY", big.NewInt(500)); err != nil {
		t.Fatalf("deposit on copy: %v", err)
	}
	if err := working.SplitRosterPut(&split.Roster{}); err != nil {
		t.Fatalf("clear roster on copy: %v", err)
	}

	// The original snapshot still shows the committed state.
	balance, _ := mgr.SplitVaultBalance("PAY")
	if balance.Sign() != 0 {
		t.Fatalf("copy write leaked into original: %s", balance)
	}
	roster, _ := mgr.SplitRosterGet()
	if !roster.Populated() {
		t.Fatalf("copy write leaked into original roster")
	}

	// Discarding the copy means its writes never reach the database.
	working = nil
	fresh := NewManager(db)
	balance, _ = fresh.SplitVaultBalance("PAY")
	if balance.Sign() != 0 {
		t.Fatalf("discarded writes reached the database: %s", balance)
	}
}

func TestCommitFlushesToDatabase(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	mgr := NewManager(db)
	working := mgr.Copy()
	if err := working.Vault().Deposit("USDX", big.NewInt(75)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := working.SplitRegisterAsset("USDX"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if working.Pending() == 0 {
		t.Fatalf("expected pending writes before commit")
	}
	if err := working.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if working.Pending() != 0 {
		t.Fatalf("expected empty overlay after commit")
	}

	// A brand new manager over the same database sees the committed state.
	fresh := NewManager(db)
	balance, err := fresh.SplitVaultBalance("USDX")
	if err != nil || balance.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("expected committed vault 75, got %v err=%v", balance, err)
	}
	assets, _ := fresh.SplitAssets()
	if len(assets) != 1 || assets[0] != "USDX" {
		t.Fatalf("expected committed registry, got %v", assets)
	}
}
