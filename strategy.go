package uniswap_v4_hedger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultHookAddress advertises the two callbacks the strategy uses, the
// after-initialize and after-swap flag bits.
var DefaultHookAddress = common.HexToAddress("0x0000000000000000000000000000000000001040")

// Strategy is the liquidity-management facade: it owns the per-pool
// config/state registry, the LP share ledger and the swap executor, and
// hooks into the pool manager to react to every trade on a managed pool.
type Strategy struct {
	pm             *PoolManager
	registry       *PoolRegistry
	shares         *ShareLedger
	executor       SwapExecutor
	owner          string
	address        string
	dispatches     map[string]*DispatchRecord
	actionLog      []*ActionRecord
	flushedActions int
}

type StrategyOption func(*Strategy)

// WithExecutor swaps the compensation trade executor for an alternative
// implementation.
func WithExecutor(executor SwapExecutor) StrategyOption {
	return func(s *Strategy) { s.executor = executor }
}

// WithAddress sets the hook address the strategy registers under.
func WithAddress(address common.Address) StrategyOption {
	return func(s *Strategy) { s.address = address.Hex() }
}

// WithRegistry injects a pre-populated registry, for resuming a persisted
// session.
func WithRegistry(registry *PoolRegistry) StrategyOption {
	return func(s *Strategy) { s.registry = registry }
}

// WithShareLedger injects a pre-populated share ledger.
func WithShareLedger(shares *ShareLedger) StrategyOption {
	return func(s *Strategy) { s.shares = shares }
}

func NewStrategy(pm *PoolManager, owner string, opts ...StrategyOption) *Strategy {
	s := &Strategy{
		pm:         pm,
		registry:   NewPoolRegistry(),
		shares:     NewShareLedger(),
		executor:   NewSamePoolExecutor(),
		owner:      owner,
		address:    DefaultHookAddress.Hex(),
		dispatches: make(map[string]*DispatchRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	pm.RegisterHooks(s.address, s)
	return s
}

func (s *Strategy) Owner() string {
	return s.owner
}

// Address is the hook address pools attach the strategy under.
func (s *Strategy) Address() string {
	return s.address
}

func (s *Strategy) Registry() *PoolRegistry {
	return s.registry
}

// GetPoolId derives the deterministic pool id for a key, with the hook
// slot forced to the strategy's address the way InitializePool sets it.
func (s *Strategy) GetPoolId(key PoolKey) string {
	key.Hooks = common.HexToAddress(s.address)
	return key.ToId().Hex()
}

// RecoverPoolKey rebuilds the key from the stored pool state.
func (s *Strategy) RecoverPoolKey(poolId string) (PoolKey, error) {
	return s.registry.RecoverPoolKey(poolId)
}

// SetConfig stores the strategy parameters for the pool a key identifies.
// Only the owner may call it. The key's hook slot is forced to the
// strategy's address so the id matches the pool InitializePool creates.
func (s *Strategy) SetConfig(caller string, key PoolKey, config PoolConfig) error {
	if caller != s.owner {
		return errors.New("caller is not the owner")
	}
	key.Hooks = common.HexToAddress(s.address)
	if err := key.Validate(); err != nil {
		return err
	}
	if err := config.Validate(key.TickSpacing); err != nil {
		return err
	}
	poolId := key.ToId().Hex()
	s.registry.SetConfig(poolId, config)
	logrus.WithFields(logrus.Fields{
		"pool":  poolId,
		"range": fmt.Sprintf("[%d, %d]", config.PositionRangeLower, config.PositionRangeUpper),
	}).Info("pool config set")
	return nil
}

// InitializePool creates the pool for key with the strategy attached as
// its hook. The config must be set first or pool creation rolls back.
func (s *Strategy) InitializePool(sender string, key PoolKey, sqrtPriceX96 decimal.Decimal) (int, error) {
	key.Hooks = common.HexToAddress(s.address)
	var tick int
	err := s.pm.Unlock(sender, ZERO, func(tx *PoolTx) error {
		var err error
		tick, err = tx.Initialize(key, sqrtPriceX96)
		return err
	})
	return tick, err
}

// AddLiquidity deposits token amounts and mints shares one to one with
// the liquidity units the deposit converts to.
func (s *Strategy) AddLiquidity(sender, poolId string, amount0, amount1, msgValue decimal.Decimal) (ActionResult, error) {
	action, err := NewAction(ActionAddLiquidity, poolId, AddLiquidityParams{
		Sender:         sender,
		Amount0:        amount0,
		Amount1:        amount1,
		LiquidityUnits: ZERO,
	})
	if err != nil {
		return ActionResult{}, err
	}
	return s.runAction(sender, msgValue, action)
}

// AddLiquidityUnits deposits an exact liquidity quantity, charging
// whatever token amounts it requires at the current price.
func (s *Strategy) AddLiquidityUnits(sender, poolId string, liquidityUnits, msgValue decimal.Decimal) (ActionResult, error) {
	action, err := NewAction(ActionAddLiquidity, poolId, AddLiquidityParams{
		Sender:         sender,
		Amount0:        ZERO,
		Amount1:        ZERO,
		LiquidityUnits: liquidityUnits,
	})
	if err != nil {
		return ActionResult{}, err
	}
	return s.runAction(sender, msgValue, action)
}

// WithdrawLiquidity burns shares and pays out the proportional token
// amounts from the position and the reserve.
func (s *Strategy) WithdrawLiquidity(sender, poolId string, shareAmount decimal.Decimal) (ActionResult, error) {
	action, err := NewAction(ActionWithdrawLiquidity, poolId, WithdrawLiquidityParams{
		Sender:      sender,
		ShareAmount: shareAmount,
	})
	if err != nil {
		return ActionResult{}, err
	}
	return s.runAction(sender, ZERO, action)
}

func (s *Strategy) runAction(sender string, msgValue decimal.Decimal, action *Action) (ActionResult, error) {
	err := s.pm.Unlock(sender, msgValue, func(tx *PoolTx) error {
		return s.Dispatch(tx, action)
	})
	if err != nil {
		return ActionResult{}, err
	}
	if action.Result == nil {
		return ActionResult{Liquidity: ZERO, Amount0: ZERO, Amount1: ZERO}, nil
	}
	return *action.Result, nil
}

func (s *Strategy) SharesOf(poolId, holder string) decimal.Decimal {
	return s.shares.BalanceOf(poolId, holder)
}

func (s *Strategy) TotalShares(poolId string) decimal.Decimal {
	return s.shares.TotalSupply(poolId)
}

// PoolStateView returns a read-only copy of the live state record.
func (s *Strategy) PoolStateView(poolId string) (PoolState, error) {
	state, err := s.registry.GetState(poolId)
	if err != nil {
		return PoolState{}, err
	}
	return *state, nil
}

// ILView evaluates the current impermanent loss outside any window.
func (s *Strategy) ILView(poolId string) (ILReport, error) {
	state, err := s.registry.GetState(poolId)
	if err != nil {
		return ILReport{}, err
	}
	pool, err := s.pm.GetPool(poolId)
	if err != nil {
		return ILReport{}, err
	}
	liquidity := s.positionLiquidity(pool, state)
	return ComputeIL(state.BaselineTick, pool.TickCurrent, liquidity, state.BaselinePosition, state.CurrentPosition)
}

// LastDispatch reports the most recent action outcome for a pool.
func (s *Strategy) LastDispatch(poolId string) DispatchRecord {
	record, ok := s.dispatches[poolId]
	if !ok {
		return DispatchRecord{Phase: PhaseIdle}
	}
	return *record
}

// AfterInitialize registers the pool with the strategy. It fails, rolling
// back the pool creation, when no config was set for the pool first.
func (s *Strategy) AfterInitialize(tx *PoolTx, poolId string, sqrtPriceX96 decimal.Decimal, tick int) error {
	if !s.registry.HasConfig(poolId) {
		return fmt.Errorf("%w: no config set for pool %s", ErrInvalidPool, poolId)
	}
	config, err := s.registry.GetConfig(poolId)
	if err != nil {
		return err
	}
	pool, err := tx.Pool(poolId)
	if err != nil {
		return err
	}
	bounds := ComputeNewBounds(AlignTick(tick, pool.TickSpacing), config)
	state := &PoolState{
		PoolId:           poolId,
		Currency0:        pool.Currency0,
		Currency1:        pool.Currency1,
		Fee:              int(pool.Fee),
		TickSpacing:      pool.TickSpacing,
		HooksAddress:     pool.HookAddress,
		LastKnownTick:    tick,
		CurrentPosition:  bounds,
		BaselineTick:     tick,
		BaselinePosition: bounds,
		ReserveIsToken0:  true,
		ReserveAmount:    ZERO,
	}
	if err := s.registry.InitializeState(poolId, state); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"pool":   poolId,
		"tick":   tick,
		"bounds": fmt.Sprintf("[%d, %d]", bounds.Lower, bounds.Upper),
	}).Info("pool registered with strategy")
	return nil
}

// AfterSwap refreshes the observed tick, evaluates the shift and IL
// triggers against the pre-action state, and dispatches the resulting
// actions in a fixed order: shift, then token0 compensation, then token1
// compensation. The baseline moves only on a lone shift or after a
// compensation completes.
func (s *Strategy) AfterSwap(tx *PoolTx, poolId string, sender string, event *SwapEvent) error {
	state, err := s.registry.GetState(poolId)
	if err != nil {
		return nil
	}
	config, err := s.registry.GetConfig(poolId)
	if err != nil {
		return nil
	}
	pool, err := tx.Pool(poolId)
	if err != nil {
		return err
	}
	state.LastKnownTick = event.Tick

	positionLiquidity := s.positionLiquidity(pool, state)
	needShift := ShouldShift(state.CurrentPosition, config, event.Tick)
	report, err := ComputeIL(state.BaselineTick, event.Tick, positionLiquidity, state.BaselinePosition, state.CurrentPosition)
	if err != nil {
		return err
	}
	compensate0 := report.TriggersToken0(config)
	compensate1 := report.TriggersToken1(config)

	if needShift {
		action, err := NewAction(ActionShiftPosition, poolId, ShiftPositionParams{
			CenterTick:     event.Tick,
			UpdateBaseline: !compensate0 && !compensate1,
		})
		if err != nil {
			return err
		}
		if err := s.Dispatch(tx, action); err != nil {
			return err
		}
	}
	if compensate0 {
		action, err := NewAction(ActionCompensateILSwap, poolId, CompensateILParams{
			BuyToken0: true,
			Amount:    report.IL0,
		})
		if err != nil {
			return err
		}
		if err := s.Dispatch(tx, action); err != nil {
			return err
		}
	}
	if compensate1 {
		action, err := NewAction(ActionCompensateILSwap, poolId, CompensateILParams{
			BuyToken0: false,
			Amount:    report.IL1,
		})
		if err != nil {
			return err
		}
		if err := s.Dispatch(tx, action); err != nil {
			return err
		}
	}
	if compensate0 || compensate1 {
		state.BaselineTick = pool.TickCurrent
		state.BaselinePosition = state.CurrentPosition
		state.LastKnownTick = pool.TickCurrent
	}
	return nil
}

type strategySnapshot struct {
	registry interface{}
	shares   interface{}
}

func (s *Strategy) StateSnapshot() interface{} {
	return &strategySnapshot{
		registry: s.registry.Snapshot(),
		shares:   s.shares.Snapshot(),
	}
}

func (s *Strategy) RestoreSnapshot(snapshot interface{}) {
	snap, ok := snapshot.(*strategySnapshot)
	if !ok {
		return
	}
	s.registry.Restore(snap.registry)
	s.shares.Restore(snap.shares)
}

// Flush persists the registry, the share ledger and the action log.
func (s *Strategy) Flush(db *gorm.DB) error {
	if err := s.registry.Flush(db); err != nil {
		return err
	}
	if err := s.shares.Flush(db); err != nil {
		return err
	}
	return s.FlushActions(db)
}
