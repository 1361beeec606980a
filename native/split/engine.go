package split

import (
	"errors"
	"math/big"

	"paysplit/core/events"
	"paysplit/native/common"
)

var (
	errNilState      = errors.New("split engine: state not configured")
	errNilTransferer = errors.New("split engine: transferer not configured")
)

// EngineState is the narrow slice of ledger state the engine operates on.
// Implementations provide copy-on-write semantics above this interface; the
// engine itself never rolls anything back.
type EngineState interface {
	SplitRosterGet() (*Roster, error)
	SplitRosterPut(*Roster) error
	SplitLedgerGet(asset string) (*Ledger, error)
	SplitLedgerPut(*Ledger) error
	SplitAssets() ([]string, error)
	SplitRegisterAsset(asset string) error
	SplitVaultBalance(asset string) (*big.Int, error)
	SplitVaultDebit(asset string, amount *big.Int) error
}

// Transferer delivers a released payment to its payee. The vault has already
// been debited when Transfer runs, so a reentrant implementation observes a
// ledger with the payment applied and nothing further owed.
type Transferer interface {
	Transfer(to [20]byte, asset string, amount *big.Int) error
}

// Authority decides whether a caller may invoke operator-gated operations.
type Authority interface {
	Authorize(caller [20]byte) bool
}

// SingleOperator authorizes exactly one configured address. The zero value
// authorizes nobody.
type SingleOperator [20]byte

func (o SingleOperator) Authorize(caller [20]byte) bool {
	if o == (SingleOperator{}) {
		return false
	}
	return caller == [20]byte(o)
}

// Engine wires the distribution business logic with external state, the
// payment transferer, and event emitters.
type Engine struct {
	state      EngineState
	transferer Transferer
	authority  Authority
	emitter    events.Emitter
	pauses     common.PauseView
	policy     Policy
}

// NewEngine creates an engine with a no-op emitter and the strict release
// policy. Callers override collaborators via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		policy:  PolicyStrict,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetTransferer configures the payment delivery hook.
func (e *Engine) SetTransferer(t Transferer) { e.transferer = t }

// SetAuthority configures the operator check. A nil authority rejects every
// gated call.
func (e *Engine) SetAuthority(a Authority) { e.authority = a }

// SetPauses configures the pause registry consulted before release operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetPolicy selects the zero-due behaviour for single releases.
func (e *Engine) SetPolicy(p Policy) { e.policy = p }

// Policy reports the configured release policy.
func (e *Engine) Policy() Policy { return e.policy }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) authorize(caller [20]byte) error {
	if e == nil || e.authority == nil || !e.authority.Authorize(caller) {
		return ErrUnauthorized
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// pendingPayment computes floor(totalReceived * shares / totalShares) minus
// the amount already released. Corrupted inputs clamp at zero.
func pendingPayment(totalReceived *big.Int, shares, totalShares uint64, released *big.Int) *big.Int {
	if totalShares == 0 || shares == 0 || totalReceived == nil {
		return big.NewInt(0)
	}
	entitled := new(big.Int).Mul(totalReceived, new(big.Int).SetUint64(shares))
	entitled.Quo(entitled, new(big.Int).SetUint64(totalShares))
	if released != nil {
		entitled.Sub(entitled, released)
	}
	if entitled.Sign() < 0 {
		return big.NewInt(0)
	}
	return entitled
}

// totalReceived is the lifetime inflow for the asset: what still sits in the
// vault plus everything already released.
func (e *Engine) totalReceived(asset string, ledger *Ledger) (*big.Int, error) {
	vault, err := e.state.SplitVaultBalance(asset)
	if err != nil {
		return nil, err
	}
	total := cloneBigInt(vault)
	if ledger != nil && ledger.Total != nil {
		total.Add(total, ledger.Total)
	}
	return total, nil
}

// AddPayees installs the roster. The call is operator-gated and only valid on
// an empty roster; partial edits do not exist.
func (e *Engine) AddPayees(caller [20]byte, payees []Payee) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return err
	}
	if roster.Populated() {
		return ErrAlreadyPopulated
	}
	total, err := ValidatePayees(payees)
	if err != nil {
		return err
	}
	next := &Roster{Payees: append([]Payee(nil), payees...), TotalShares: total}
	if err := e.state.SplitRosterPut(next); err != nil {
		return err
	}
	for _, p := range next.Payees {
		e.emit(events.SplitPayeeAdded{Payee: p.Address, Shares: p.Shares, TotalShares: total})
	}
	return nil
}

// Clear removes every payee and zeroes the release ledger for the native asset
// and all registered token assets. Undistributed vault funds stay put and
// accrue to whichever roster is installed next.
func (e *Engine) Clear(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return err
	}
	if !roster.Populated() {
		return ErrNotPopulated
	}
	assets, err := e.state.SplitAssets()
	if err != nil {
		return err
	}
	for _, asset := range append([]string{NativeDenom}, assets...) {
		ledger, err := e.state.SplitLedgerGet(asset)
		if err != nil {
			return err
		}
		ledger.Zero()
		if err := e.state.SplitLedgerPut(ledger); err != nil {
			return err
		}
	}
	if err := e.state.SplitRosterPut(&Roster{}); err != nil {
		return err
	}
	for _, p := range roster.Payees {
		e.emit(events.SplitPayeeRemoved{Payee: p.Address, Shares: p.Shares})
	}
	return nil
}

// Releasable reports the amount currently owed to the address for the asset.
// Unknown addresses and empty rosters yield zero; the query never fails on
// roster state.
func (e *Engine) Releasable(addr [20]byte, asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return nil, err
	}
	shares := roster.SharesOf(addr)
	if shares == 0 {
		return big.NewInt(0), nil
	}
	ledger, err := e.state.SplitLedgerGet(normalized)
	if err != nil {
		return nil, err
	}
	received, err := e.totalReceived(normalized, ledger)
	if err != nil {
		return nil, err
	}
	return pendingPayment(received, shares, roster.TotalShares, ledger.ReleasedTo(addr)), nil
}

// Release pays out the amount owed to a single payee. Zero-due handling
// follows the configured policy.
func (e *Engine) Release(caller, addr [20]byte, asset string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return err
	}
	return e.releaseOne(roster, addr, normalized, e.policy)
}

// ReleaseMany pays out several payees in order. Zero-due payees are skipped so
// one settled payee cannot abort the batch; an unknown address still does.
func (e *Engine) ReleaseMany(caller [20]byte, addrs [][20]byte, asset string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if len(addrs) == 0 {
		return ErrNoPayees
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if err := e.releaseOne(roster, addr, normalized, PolicyLenient); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseAll pays out every roster payee in roster order.
func (e *Engine) ReleaseAll(caller [20]byte, asset string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return err
	}
	if !roster.Populated() {
		return ErrNoPayees
	}
	for _, p := range roster.Payees {
		if err := e.releaseOne(roster, p.Address, normalized, PolicyLenient); err != nil {
			return err
		}
	}
	return nil
}

// releaseOne applies one payout: register the asset, record the payment in the
// ledger, debit the vault, and only then hand control to the transferer. Any
// error propagates so the host can discard the whole operation.
func (e *Engine) releaseOne(roster *Roster, addr [20]byte, asset string, policy Policy) error {
	shares := roster.SharesOf(addr)
	if shares == 0 {
		return ErrNotPayee
	}
	ledger, err := e.state.SplitLedgerGet(asset)
	if err != nil {
		return err
	}
	received, err := e.totalReceived(asset, ledger)
	if err != nil {
		return err
	}
	payment := pendingPayment(received, shares, roster.TotalShares, ledger.ReleasedTo(addr))
	if payment.Sign() == 0 {
		if policy == PolicyStrict {
			return ErrNothingDue
		}
		return nil
	}
	if e.transferer == nil {
		return errNilTransferer
	}
	if asset != NativeDenom {
		if err := e.state.SplitRegisterAsset(asset); err != nil {
			return err
		}
	}
	ledger.Credit(addr, payment)
	if err := e.state.SplitLedgerPut(ledger); err != nil {
		return err
	}
	if err := e.state.SplitVaultDebit(asset, payment); err != nil {
		return err
	}
	if err := e.transferer.Transfer(addr, asset, payment); err != nil {
		return err
	}
	e.emit(events.SplitPaymentReleased{
		Asset:         asset,
		To:            addr,
		Amount:        cloneBigInt(payment),
		TotalReleased: cloneBigInt(ledger.Total),
	})
	return nil
}

// TotalShares reports the sum of all share weights.
func (e *Engine) TotalShares() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return 0, err
	}
	if roster == nil {
		return 0, nil
	}
	return roster.TotalShares, nil
}

// Shares reports the share weight held by the address, zero when absent.
func (e *Engine) Shares(addr [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return 0, err
	}
	return roster.SharesOf(addr), nil
}

// TotalReleased reports the lifetime released amount for the asset.
func (e *Engine) TotalReleased(asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	ledger, err := e.state.SplitLedgerGet(normalized)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(ledger.Total), nil
}

// Released reports the amount already released to the address for the asset.
func (e *Engine) Released(addr [20]byte, asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	ledger, err := e.state.SplitLedgerGet(normalized)
	if err != nil {
		return nil, err
	}
	return ledger.ReleasedTo(addr), nil
}

// Payee returns the roster entry at the given position.
func (e *Engine) Payee(index uint64) (Payee, error) {
	if e == nil || e.state == nil {
		return Payee{}, errNilState
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return Payee{}, err
	}
	if roster == nil || index >= uint64(len(roster.Payees)) {
		return Payee{}, ErrIndexOutOfRange
	}
	return roster.Payees[index], nil
}

// Payees returns a copy of the full roster in insertion order.
func (e *Engine) Payees() ([]Payee, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	roster, err := e.state.SplitRosterGet()
	if err != nil {
		return nil, err
	}
	if roster == nil || len(roster.Payees) == 0 {
		return []Payee{}, nil
	}
	return append([]Payee(nil), roster.Payees...), nil
}

// Assets returns the registered token assets in first-release order.
func (e *Engine) Assets() ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	assets, err := e.state.SplitAssets()
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return []string{}, nil
	}
	return append([]string(nil), assets...), nil
}
