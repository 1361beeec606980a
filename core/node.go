package core

import (
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"paysplit/core/events"
	"paysplit/core/state"
	"paysplit/core/types"
	"paysplit/crypto"
	"paysplit/native/common"
	"paysplit/native/split"
	"paysplit/observability"
	"paysplit/observability/metrics"
	"paysplit/storage"
	"paysplit/storage/journal"
)

// ErrInvalidAmount is returned when a deposit carries a nil, zero, or negative
// amount.
var ErrInvalidAmount = errors.New("core: deposit amount must be positive")

// Node is the central controller. It owns the committed state, serializes
// every top-level operation, and publishes committed events to the journal
// and live subscribers.
type Node struct {
	db       storage.Database
	state    *state.Manager
	operator [20]byte
	policy   split.Policy
	pauses   *common.Pauses
	quota    common.Quota
	journal  *journal.Journal
	logger   *slog.Logger
	stats    *metrics.SplitMetrics

	stateMu sync.Mutex

	streamMu      sync.Mutex
	streamSeq     uint64
	streamSubs    map[uint64]chan EventUpdate
	streamNextID  uint64
	streamHistory []EventUpdate
}

// NewNode wires a node over the supplied database. The operator address gates
// every mutating roster and release operation.
func NewNode(db storage.Database, operator [20]byte) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database is required")
	}
	n := &Node{
		db:       db,
		state:    state.NewManager(db),
		operator: operator,
		policy:   split.PolicyStrict,
		pauses:   common.NewPauses(),
		logger:   slog.Default(),
		stats:    metrics.Split(),
	}
	n.refreshGauges()
	return n, nil
}

// SetJournal attaches the durable event journal. Sequences continue from the
// journal head so stream cursors stay valid across restarts.
func (n *Node) SetJournal(j *journal.Journal) {
	n.journal = j
	if j == nil {
		return
	}
	if head, err := j.LastSequence(); err == nil {
		n.streamMu.Lock()
		if head > n.streamSeq {
			n.streamSeq = head
		}
		n.streamMu.Unlock()
		n.stats.SetJournalHead(head)
	}
}

// SetLogger overrides the default structured logger.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	n.logger = logger
}

// SetPolicy selects the zero-due behaviour for single releases.
func (n *Node) SetPolicy(p split.Policy) { n.policy = p }

// SetQuota configures per-depositor limits. A zero quota disables the checks.
func (n *Node) SetQuota(q common.Quota) { n.quota = q }

// SetPauses installs the pause registry consulted by deposits and releases.
func (n *Node) SetPauses(p *common.Pauses) {
	if p == nil {
		p = common.NewPauses()
	}
	n.pauses = p
	n.stats.SetPaused(p.IsPaused(split.ModuleName))
}

// Operator returns the configured operator address.
func (n *Node) Operator() [20]byte { return n.operator }

// Paused reports whether deposits and releases are currently paused.
func (n *Node) Paused() bool {
	return n.pauses.IsPaused(split.ModuleName)
}

type eventCollector struct {
	collected []events.Event
}

func (c *eventCollector) Emit(evt events.Event) {
	if c == nil || evt == nil {
		return
	}
	c.collected = append(c.collected, evt)
}

func (n *Node) newEngine(manager *state.Manager, emitter events.Emitter) *split.Engine {
	engine := split.NewEngine()
	engine.SetState(manager)
	engine.SetTransferer(manager.Vault())
	engine.SetAuthority(split.SingleOperator(n.operator))
	engine.SetPauses(n.pauses)
	engine.SetPolicy(n.policy)
	engine.SetEmitter(emitter)
	return engine
}

// AddPayees installs the roster. Only valid while the roster is empty.
func (n *Node) AddPayees(caller [20]byte, payees []split.Payee) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	working := n.state.Copy()
	collector := &eventCollector{}
	engine := n.newEngine(working, collector)
	if err := engine.AddPayees(caller, payees); err != nil {
		n.stats.IncFailure("addPayees", reasonFor(err))
		return err
	}
	if err := working.Commit(); err != nil {
		return err
	}
	n.publish(collector.collected)
	n.refreshGauges()
	n.logger.Info("roster installed", "payees", len(payees))
	return nil
}

// SeedRoster installs the supplied payees when the roster is still empty. It
// reports whether anything was applied so boot logging can tell a fresh seed
// from an already-populated ledger.
func (n *Node) SeedRoster(payees []split.Payee) (bool, error) {
	n.stateMu.Lock()
	roster, err := n.state.SplitRosterGet()
	populated := err == nil && roster.Populated()
	n.stateMu.Unlock()
	if populated {
		return false, nil
	}
	if err := n.AddPayees(n.operator, payees); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every payee and zeroes the release ledgers. Vault funds stay
// put and accrue to the next roster.
func (n *Node) Clear(caller [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	working := n.state.Copy()
	collector := &eventCollector{}
	engine := n.newEngine(working, collector)
	if err := engine.Clear(caller); err != nil {
		n.stats.IncFailure("clear", reasonFor(err))
		return err
	}
	if err := working.Commit(); err != nil {
		return err
	}
	n.publish(collector.collected)
	n.refreshGauges()
	n.logger.Info("roster cleared")
	return nil
}

// DepositReceipt describes an accepted inflow.
type DepositReceipt struct {
	ID            string
	Asset         string
	From          [20]byte
	Amount        *big.Int
	VaultBalance  *big.Int
	TotalReceived *big.Int
	ReceivedAt    int64
}

// Deposit credits the vault with an external inflow and returns a receipt.
// Deposits are open to any sender but honour the module pause and the
// per-address quota when one is configured.
func (n *Node) Deposit(from [20]byte, asset string, amount *big.Int) (*DepositReceipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	normalized, err := split.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if err := common.Guard(n.pauses, split.ModuleName); err != nil {
		n.stats.IncFailure("deposit", "paused")
		return nil, err
	}

	working := n.state.Copy()
	if n.quota.Enabled() {
		prev, err := working.QuotaGet(from)
		if err != nil {
			return nil, err
		}
		next, err := common.CheckQuota(n.quota, n.quotaEpoch(time.Now()), prev, 1, amount)
		if err != nil {
			n.stats.IncFailure("deposit", reasonFor(err))
			return nil, err
		}
		if err := working.QuotaPut(from, next); err != nil {
			return nil, err
		}
	}
	if err := working.Vault().Deposit(normalized, amount); err != nil {
		return nil, err
	}

	vault, err := working.SplitVaultBalance(normalized)
	if err != nil {
		return nil, err
	}
	ledger, err := working.SplitLedgerGet(normalized)
	if err != nil {
		return nil, err
	}
	totalReceived := new(big.Int).Add(vault, ledger.Total)

	receipt := &DepositReceipt{
		ID:            uuid.New().String(),
		Asset:         normalized,
		From:          from,
		Amount:        new(big.Int).Set(amount),
		VaultBalance:  vault,
		TotalReceived: totalReceived,
		ReceivedAt:    time.Now().Unix(),
	}
	if err := working.Commit(); err != nil {
		return nil, err
	}
	n.publish([]events.Event{events.SplitPaymentReceived{
		Asset:         normalized,
		From:          from,
		Amount:        new(big.Int).Set(amount),
		TotalReceived: new(big.Int).Set(totalReceived),
		Receipt:       receipt.ID,
	}})
	n.logger.Info("deposit accepted",
		"asset", normalized,
		"amount", amount.String(),
		"receipt", receipt.ID)
	return receipt, nil
}

func (n *Node) quotaEpoch(now time.Time) uint64 {
	if n.quota.EpochSeconds == 0 {
		return 0
	}
	return uint64(now.Unix()) / uint64(n.quota.EpochSeconds)
}

// ReleaseSummary reports the payouts performed by a release operation.
type ReleaseSummary struct {
	Asset    string
	Payments int
	Total    *big.Int
}

func summarize(asset string, collected []events.Event) *ReleaseSummary {
	summary := &ReleaseSummary{Asset: asset, Total: big.NewInt(0)}
	for _, evt := range collected {
		released, ok := evt.(events.SplitPaymentReleased)
		if !ok {
			continue
		}
		summary.Payments++
		if released.Amount != nil {
			summary.Total.Add(summary.Total, released.Amount)
		}
	}
	return summary
}

func (n *Node) release(operation, asset string, run func(*split.Engine) error) (*ReleaseSummary, error) {
	normalized, err := split.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	working := n.state.Copy()
	collector := &eventCollector{}
	engine := n.newEngine(working, collector)
	if err := run(engine); err != nil {
		n.stats.IncFailure(operation, reasonFor(err))
		return nil, err
	}
	if err := working.Commit(); err != nil {
		return nil, err
	}
	n.publish(collector.collected)
	summary := summarize(normalized, collector.collected)
	n.logger.Info("release completed",
		"operation", operation,
		"asset", normalized,
		"payments", summary.Payments,
		"total", summary.Total.String())
	return summary, nil
}

// Release pays out the amount owed to a single payee.
func (n *Node) Release(caller, addr [20]byte, asset string) (*ReleaseSummary, error) {
	return n.release("release", asset, func(engine *split.Engine) error {
		return engine.Release(caller, addr, asset)
	})
}

// ReleaseMany pays out a batch of payees in order.
func (n *Node) ReleaseMany(caller [20]byte, addrs [][20]byte, asset string) (*ReleaseSummary, error) {
	return n.release("releaseMany", asset, func(engine *split.Engine) error {
		return engine.ReleaseMany(caller, addrs, asset)
	})
}

// ReleaseAll pays out every roster payee in roster order.
func (n *Node) ReleaseAll(caller [20]byte, asset string) (*ReleaseSummary, error) {
	return n.release("releaseAll", asset, func(engine *split.Engine) error {
		return engine.ReleaseAll(caller, asset)
	})
}

// --- Queries ---

func (n *Node) Releasable(addr [20]byte, asset string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).Releasable(addr, asset)
}

func (n *Node) TotalShares() (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).TotalShares()
}

func (n *Node) Shares(addr [20]byte) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).Shares(addr)
}

func (n *Node) TotalReleased(asset string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).TotalReleased(asset)
}

func (n *Node) Released(addr [20]byte, asset string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).Released(addr, asset)
}

func (n *Node) Payee(index uint64) (split.Payee, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).Payee(index)
}

func (n *Node) Payees() ([]split.Payee, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).Payees()
}

func (n *Node) Assets() ([]string, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.newEngine(n.state, nil).Assets()
}

func (n *Node) VaultBalance(asset string) (*big.Int, error) {
	normalized, err := split.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.SplitVaultBalance(normalized)
}

// AccountBalance reports the settled funds an address holds for the asset.
func (n *Node) AccountBalance(addr [20]byte, asset string) (*big.Int, error) {
	normalized, err := split.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Vault().AccountBalance(addr, normalized)
}

// Info summarises the ledger for status endpoints.
type Info struct {
	Operator    string
	Policy      string
	Paused      bool
	RosterSize  int
	TotalShares uint64
	Assets      []string
	JournalHead uint64
}

func (n *Node) Info() (*Info, error) {
	n.stateMu.Lock()
	roster, err := n.state.SplitRosterGet()
	if err != nil {
		n.stateMu.Unlock()
		return nil, err
	}
	assets, err := n.state.SplitAssets()
	n.stateMu.Unlock()
	if err != nil {
		return nil, err
	}

	n.streamMu.Lock()
	head := n.streamSeq
	n.streamMu.Unlock()

	return &Info{
		Operator:    crypto.EncodeAddress(n.operator),
		Policy:      n.policy.String(),
		Paused:      n.Paused(),
		RosterSize:  len(roster.Payees),
		TotalShares: roster.TotalShares,
		Assets:      assets,
		JournalHead: head,
	}, nil
}

// --- Event publication ---

type eventWithPayload interface {
	Event() *types.Event
}

func (n *Node) publish(collected []events.Event) {
	for _, evt := range collected {
		payload, ok := evt.(eventWithPayload)
		if !ok {
			continue
		}
		event := payload.Event()
		if event == nil {
			continue
		}
		n.publishEvent(event)
		n.observeEvent(event)
	}
}

func (n *Node) observeEvent(event *types.Event) {
	observability.Events().RecordPublished(event.Type)
	amount, ok := new(big.Int).SetString(event.Attributes["amount"], 10)
	if !ok {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	switch event.Type {
	case events.TypeSplitPaymentReceived:
		n.stats.ObserveDeposit(event.Attributes["asset"], value)
	case events.TypeSplitPaymentReleased:
		n.stats.ObserveRelease(event.Attributes["asset"], value)
	}
}

func (n *Node) refreshGauges() {
	roster, err := n.state.SplitRosterGet()
	if err != nil {
		return
	}
	n.stats.SetRosterSize(len(roster.Payees))
	n.stats.SetPaused(n.Paused())
}

func reasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, split.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, split.ErrNotPayee):
		return "not_payee"
	case errors.Is(err, split.ErrNothingDue):
		return "nothing_due"
	case errors.Is(err, split.ErrAlreadyPopulated):
		return "already_populated"
	case errors.Is(err, split.ErrNotPopulated):
		return "not_populated"
	case errors.Is(err, split.ErrNoPayees):
		return "no_payees"
	case errors.Is(err, split.ErrInvalidAsset):
		return "invalid_asset"
	case errors.Is(err, common.ErrModulePaused):
		return "paused"
	case errors.Is(err, common.ErrQuotaRequestsExceeded):
		return "quota_requests"
	case errors.Is(err, common.ErrQuotaAmountExceeded):
		return "quota_amount"
	default:
		return "error"
	}
}
