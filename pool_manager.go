package uniswap_v4_hedger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Hooks is the callback surface a pool can attach to. Implementations run
// inside the open unlock window and may dispatch further operations through
// the PoolTx they receive. A hook error aborts the whole window.
type Hooks interface {
	AfterInitialize(tx *PoolTx, poolId string, sqrtPriceX96 decimal.Decimal, tick int) error
	AfterSwap(tx *PoolTx, poolId string, sender string, event *SwapEvent) error
	// StateSnapshot and RestoreSnapshot let the hook participate in the
	// window savepoint, so hook-owned state rolls back with pool state.
	StateSnapshot() interface{}
	RestoreSnapshot(snapshot interface{})
}

// PoolManager owns every pool plus the wallet and claim ledgers. All state
// changes go through Unlock: operations inside the window accumulate
// currency deltas, and the window only commits when every delta returns to
// zero. Anything else restores the pre-window snapshot.
type PoolManager struct {
	mu       sync.RWMutex
	pools    map[string]*CorePool
	wallet   *AccountLedger
	claims   *AccountLedger
	journal  *EventJournal
	hooks    map[string]Hooks
	unlocked bool
}

func NewPoolManager() *PoolManager {
	return &PoolManager{
		pools:   make(map[string]*CorePool),
		wallet:  NewAccountLedger(),
		claims:  NewAccountLedger(),
		journal: NewEventJournal(),
		hooks:   make(map[string]Hooks),
	}
}

func (pm *PoolManager) RegisterHooks(hookAddress string, h Hooks) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.hooks[hookAddress] = h
}

func (pm *PoolManager) GetPool(poolId string) (*CorePool, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	pool, ok := pm.pools[poolId]
	if !ok {
		return nil, fmt.Errorf("%w: no pool with id %s", ErrInvalidPool, poolId)
	}
	return pool, nil
}

func (pm *PoolManager) WalletBalance(currency, owner string) decimal.Decimal {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.wallet.BalanceOf(currency, owner)
}

func (pm *PoolManager) ClaimsBalance(currency, owner string) decimal.Decimal {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.claims.BalanceOf(currency, owner)
}

// FundWallet seeds an external balance outside any unlock window.
func (pm *PoolManager) FundWallet(currency, owner string, amount decimal.Decimal) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.wallet.Credit(currency, owner, amount)
}

func (pm *PoolManager) Journal() *EventJournal {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.journal
}

type managerSnapshot struct {
	pools   map[string]*CorePool
	wallet  *AccountLedger
	claims  *AccountLedger
	journal *EventJournal
	hooks   map[string]interface{}
}

func (pm *PoolManager) takeSnapshot() *managerSnapshot {
	snap := &managerSnapshot{
		pools:   make(map[string]*CorePool, len(pm.pools)),
		wallet:  pm.wallet.Clone(),
		claims:  pm.claims.Clone(),
		journal: pm.journal.Clone(),
		hooks:   make(map[string]interface{}, len(pm.hooks)),
	}
	for id, pool := range pm.pools {
		snap.pools[id] = pool.Clone()
	}
	for addr, h := range pm.hooks {
		snap.hooks[addr] = h.StateSnapshot()
	}
	return snap
}

func (pm *PoolManager) restoreSnapshot(snap *managerSnapshot) {
	pm.pools = snap.pools
	pm.wallet = snap.wallet
	pm.claims = snap.claims
	pm.journal = snap.journal
	for addr, h := range pm.hooks {
		h.RestoreSnapshot(snap.hooks[addr])
	}
}

// Unlock opens a window, runs fn against it and settles the result. The
// window commits only when fn succeeds, every currency delta is zero and
// the attached native value was consumed exactly. Any other outcome puts
// the manager back to the pre-window state and returns the error.
func (pm *PoolManager) Unlock(sender string, msgValue decimal.Decimal, fn func(tx *PoolTx) error) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.unlocked {
		return errors.New("manager already unlocked")
	}
	pm.unlocked = true
	defer func() { pm.unlocked = false }()

	snap := pm.takeSnapshot()
	tx := &PoolTx{
		pm:             pm,
		sender:         sender,
		nativeProvided: msgValue,
		nativeUsed:     ZERO,
		deltas:         make(map[string]decimal.Decimal),
	}

	err := fn(tx)
	if err == nil {
		err = tx.close()
	}
	if err != nil {
		pm.restoreSnapshot(snap)
		logrus.Debugf("unlock window rolled back for %s: %v", sender, err)
		return err
	}
	return nil
}

// Flush persists every pool.
func (pm *PoolManager) Flush(db *gorm.DB) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	ids := make([]string, 0, len(pm.pools))
	for id := range pm.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := pm.pools[id].Flush(db); err != nil {
			return err
		}
	}
	return nil
}

// PoolTx is one open unlock window. Deltas are pool-manager centric:
// a negative delta means the window still owes the pool manager that
// currency, a positive delta means the pool manager owes the window.
type PoolTx struct {
	pm             *PoolManager
	sender         string
	nativeProvided decimal.Decimal
	nativeUsed     decimal.Decimal
	deltas         map[string]decimal.Decimal
}

func (tx *PoolTx) Sender() string {
	return tx.sender
}

// WithSender returns a view of the same open window acting as a different
// sender. The delta book is shared. Attached native value is not carried
// over, so a view can never spend the original sender's value.
func (tx *PoolTx) WithSender(sender string) *PoolTx {
	return &PoolTx{
		pm:             tx.pm,
		sender:         sender,
		nativeProvided: ZERO,
		nativeUsed:     ZERO,
		deltas:         tx.deltas,
	}
}

func (tx *PoolTx) MsgValue() decimal.Decimal {
	return tx.nativeProvided
}

func (tx *PoolTx) CurrencyDelta(currency string) decimal.Decimal {
	delta, ok := tx.deltas[currency]
	if !ok {
		return ZERO
	}
	return delta
}

func (tx *PoolTx) accountDelta(currency string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	next := tx.CurrencyDelta(currency).Add(amount)
	if next.IsZero() {
		delete(tx.deltas, currency)
	} else {
		tx.deltas[currency] = next
	}
}

func (tx *PoolTx) close() error {
	if !tx.nativeUsed.Equal(tx.nativeProvided) {
		return fmt.Errorf("%w: provided %s, used %s", ErrNativeValueMismatch, tx.nativeProvided.String(), tx.nativeUsed.String())
	}
	for currency, delta := range tx.deltas {
		if !delta.IsZero() {
			return fmt.Errorf("currency %s not settled, delta %s", currency, delta.String())
		}
	}
	return nil
}

// Initialize creates the pool for key and sets its starting price.
func (tx *PoolTx) Initialize(key PoolKey, sqrtPriceX96 decimal.Decimal) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	poolId := key.ToId().Hex()
	if _, ok := tx.pm.pools[poolId]; ok {
		return 0, fmt.Errorf("%w: pool %s already exists", ErrInvalidPool, poolId)
	}
	hookAddress := key.Hooks.Hex()
	if key.HasHooks() {
		if _, ok := tx.pm.hooks[hookAddress]; !ok {
			return 0, fmt.Errorf("%w: no hooks registered at %s", ErrInvalidPool, hookAddress)
		}
	}
	pool := NewCorePoolFromKey(key)
	if err := pool.Initialize(sqrtPriceX96); err != nil {
		return 0, err
	}
	tx.pm.pools[poolId] = pool
	tx.pm.journal.AppendInitialize(&InitializeEvent{
		PoolId:       poolId,
		Currency0:    pool.Currency0,
		Currency1:    pool.Currency1,
		Fee:          int(pool.Fee),
		TickSpacing:  pool.TickSpacing,
		Hooks:        hookAddress,
		SqrtPriceX96: pool.SqrtPriceX96,
		Tick:         pool.TickCurrent,
	})
	if key.HasHooks() {
		if err := tx.pm.hooks[hookAddress].AfterInitialize(tx, poolId, pool.SqrtPriceX96, pool.TickCurrent); err != nil {
			return 0, err
		}
	}
	return pool.TickCurrent, nil
}

// ModifyLiquidity adds liquidity (positive delta, the window owes the
// charged amounts) or removes it (negative delta, the window is owed the
// returned amounts plus any fees accrued to the position).
func (tx *PoolTx) ModifyLiquidity(poolId string, tickLower, tickUpper int, liquidityDelta decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	pool, ok := tx.pm.pools[poolId]
	if !ok {
		return ZERO, ZERO, fmt.Errorf("%w: no pool with id %s", ErrInvalidPool, poolId)
	}
	var amount0, amount1 decimal.Decimal
	var err error
	if liquidityDelta.IsPositive() {
		amount0, amount1, err = pool.Mint(tx.sender, tickLower, tickUpper, liquidityDelta)
		if err != nil {
			return ZERO, ZERO, err
		}
		pool.Token0Balance = pool.Token0Balance.Add(amount0)
		pool.Token1Balance = pool.Token1Balance.Add(amount1)
		tx.accountDelta(pool.Currency0, amount0.Neg())
		tx.accountDelta(pool.Currency1, amount1.Neg())
	} else if liquidityDelta.IsNegative() {
		_, _, err = pool.Burn(tx.sender, tickLower, tickUpper, liquidityDelta.Neg())
		if err != nil {
			return ZERO, ZERO, err
		}
		amount0, amount1, err = pool.Collect(tx.sender, tickLower, tickUpper, MaxUint128, MaxUint128)
		if err != nil {
			return ZERO, ZERO, err
		}
		pool.Token0Balance = pool.Token0Balance.Sub(amount0)
		pool.Token1Balance = pool.Token1Balance.Sub(amount1)
		tx.accountDelta(pool.Currency0, amount0)
		tx.accountDelta(pool.Currency1, amount1)
	} else {
		return ZERO, ZERO, errors.New("liquidityDelta should not be 0")
	}
	tx.pm.journal.AppendModifyLiquidity(&ModifyLiquidityEvent{
		PoolId:         poolId,
		Sender:         tx.sender,
		TickLower:      tickLower,
		TickUpper:      tickUpper,
		LiquidityDelta: liquidityDelta,
		Amount0:        amount0,
		Amount1:        amount1,
	})
	return amount0, amount1, nil
}

// Swap runs a swap against the pool. Positive amounts flow into the pool,
// negative amounts flow out, so the window delta moves opposite to them.
// The pool's afterSwap hook runs unless the hook itself is the sender.
func (tx *PoolTx) Swap(poolId string, zeroForOne bool, amountSpecified decimal.Decimal, sqrtPriceLimitX96 *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	pool, ok := tx.pm.pools[poolId]
	if !ok {
		return ZERO, ZERO, fmt.Errorf("%w: no pool with id %s", ErrInvalidPool, poolId)
	}
	if amountSpecified.IsZero() {
		return ZERO, ZERO, errors.New("amountSpecified should not be 0")
	}
	amount0, amount1, _, err := pool.HandleSwap(zeroForOne, amountSpecified, sqrtPriceLimitX96, false)
	if err != nil {
		return ZERO, ZERO, err
	}
	pool.Token0Balance = pool.Token0Balance.Add(amount0)
	pool.Token1Balance = pool.Token1Balance.Add(amount1)
	tx.accountDelta(pool.Currency0, amount0.Neg())
	tx.accountDelta(pool.Currency1, amount1.Neg())
	event := &SwapEvent{
		PoolId:       poolId,
		Sender:       tx.sender,
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: pool.SqrtPriceX96,
		Liquidity:    pool.Liquidity,
		Tick:         pool.TickCurrent,
	}
	tx.pm.journal.AppendSwap(event)
	hookAddress := pool.HookAddress
	if h, ok := tx.pm.hooks[hookAddress]; ok && tx.sender != hookAddress {
		if err := h.AfterSwap(tx, poolId, tx.sender, event); err != nil {
			return ZERO, ZERO, err
		}
	}
	return amount0, amount1, nil
}

// Settle pays currency into the pool manager, consuming a negative delta.
// Native currency settles from the attached value, everything else from
// the sender's wallet balance.
func (tx *PoolTx) Settle(currency string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.New("settle amount should not be negative")
	}
	if currency == NativeCurrency.Hex() {
		used := tx.nativeUsed.Add(amount)
		if used.GreaterThan(tx.nativeProvided) {
			return fmt.Errorf("%w: provided %s, need %s", ErrNativeValueMismatch, tx.nativeProvided.String(), used.String())
		}
		tx.nativeUsed = used
	} else {
		if err := tx.pm.wallet.Debit(currency, tx.sender, amount); err != nil {
			return err
		}
	}
	tx.accountDelta(currency, amount)
	return nil
}

// Take pulls currency out of the pool manager to recipient's wallet,
// consuming a positive delta.
func (tx *PoolTx) Take(currency, recipient string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.New("take amount should not be negative")
	}
	tx.pm.wallet.Credit(currency, recipient, amount)
	tx.accountDelta(currency, amount.Neg())
	return nil
}

// MintClaims converts a positive delta into claim tokens held inside the
// pool manager instead of paying the currency out.
func (tx *PoolTx) MintClaims(currency, owner string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.New("mint amount should not be negative")
	}
	tx.pm.claims.Credit(currency, owner, amount)
	tx.accountDelta(currency, amount.Neg())
	return nil
}

// BurnClaims redeems claim tokens back into a positive delta.
func (tx *PoolTx) BurnClaims(currency, owner string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.New("burn amount should not be negative")
	}
	if err := tx.pm.claims.Debit(currency, owner, amount); err != nil {
		return err
	}
	tx.accountDelta(currency, amount)
	return nil
}

// Pool exposes the live pool to hook code running inside the window.
func (tx *PoolTx) Pool(poolId string) (*CorePool, error) {
	pool, ok := tx.pm.pools[poolId]
	if !ok {
		return nil, fmt.Errorf("%w: no pool with id %s", ErrInvalidPool, poolId)
	}
	return pool, nil
}

// ClaimsBalance reads the claim ledger from inside the window. The manager
// lock is already held for the window's whole lifetime, so this must not
// go through the locking accessors.
func (tx *PoolTx) ClaimsBalance(currency, owner string) decimal.Decimal {
	return tx.pm.claims.BalanceOf(currency, owner)
}

// WalletBalance reads the wallet ledger from inside the window.
func (tx *PoolTx) WalletBalance(currency, owner string) decimal.Decimal {
	return tx.pm.wallet.BalanceOf(currency, owner)
}
