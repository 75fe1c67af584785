package uniswap_v4_hedger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testOwner = common.HexToAddress("0x00000000000000000000000000000000000000ee").Hex()

func strategyTestConfig() PoolConfig {
	// 0.5% loss triggers, shift once the tick is within 40 of a bound
	return PoolConfig{
		PositionRangeLower: -100,
		PositionRangeUpper: 100,
		ShiftLowerDistance: 40,
		ShiftUpperDistance: -40,
		IL0TriggerFraction: d("396140812571321687967719751"),
		IL1TriggerFraction: d("396140812571321687967719751"),
	}
}

// newTestStrategy stands up a manager, a strategy with a funded wallet for
// shift shortfalls, and one managed pool at price 1:1.
func newTestStrategy(t *testing.T, config PoolConfig, opts ...StrategyOption) (*PoolManager, *Strategy, PoolKey, string) {
	t.Helper()
	pm := NewPoolManager()
	strat := NewStrategy(pm, testOwner, opts...)
	key := testPoolKey()
	for _, acct := range []string{testLP, testTrader} {
		pm.FundWallet(key.Currency0.Hex(), acct, e18(1_000_000))
		pm.FundWallet(key.Currency1.Hex(), acct, e18(1_000_000))
	}
	pm.FundWallet(key.Currency0.Hex(), strat.Address(), e18(50_000))
	pm.FundWallet(key.Currency1.Hex(), strat.Address(), e18(50_000))
	require.NoError(t, strat.SetConfig(testOwner, key, config))
	tick, err := strat.InitializePool(testOwner, key, Q96)
	require.NoError(t, err)
	require.Equal(t, 0, tick)
	return pm, strat, key, strat.GetPoolId(key)
}

// sellToken1 trades token1 into the pool as testTrader and settles both
// legs, returning the swap amounts.
func sellToken1(t *testing.T, pm *PoolManager, key PoolKey, poolId string, amountIn decimal.Decimal, limit *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	t.Helper()
	var amount0, amount1 decimal.Decimal
	err := pm.Unlock(testTrader, ZERO, func(tx *PoolTx) error {
		var err error
		amount0, amount1, err = tx.Swap(poolId, false, amountIn, limit)
		if err != nil {
			return err
		}
		if err := tx.Settle(key.Currency1.Hex(), amount1); err != nil {
			return err
		}
		return tx.Take(key.Currency0.Hex(), testTrader, amount0.Neg())
	})
	return amount0, amount1, err
}

func TestStrategyInitializeRequiresConfig(t *testing.T) {
	pm := NewPoolManager()
	strat := NewStrategy(pm, testOwner)
	key := testPoolKey()

	_, err := strat.InitializePool(testOwner, key, Q96)
	require.ErrorIs(t, err, ErrInvalidPool)
	require.ErrorContains(t, err, "no config set")

	// The pool creation rolled back with the failed hook.
	_, err = pm.GetPool(strat.GetPoolId(key))
	require.ErrorIs(t, err, ErrInvalidPool)
}

func TestStrategySetConfig(t *testing.T) {
	pm := NewPoolManager()
	strat := NewStrategy(pm, testOwner)
	key := testPoolKey()

	err := strat.SetConfig(testLP, key, strategyTestConfig())
	require.ErrorContains(t, err, "not the owner")

	bad := strategyTestConfig()
	bad.PositionRangeLower = 0
	bad.PositionRangeUpper = 0
	err = strat.SetConfig(testOwner, key, bad)
	require.ErrorIs(t, err, ErrInvalidConfig)

	swapped := key
	swapped.Currency0, swapped.Currency1 = key.Currency1, key.Currency0
	err = strat.SetConfig(testOwner, swapped, strategyTestConfig())
	require.ErrorIs(t, err, ErrInvalidPool)

	require.NoError(t, strat.SetConfig(testOwner, key, strategyTestConfig()))
	require.True(t, strat.Registry().HasConfig(strat.GetPoolId(key)))

	_, err = strat.InitializePool(testOwner, key, Q96)
	require.NoError(t, err)

	_, err = strat.InitializePool(testOwner, key, Q96)
	require.ErrorIs(t, err, ErrInvalidPool)
	require.ErrorContains(t, err, "already exists")

	state, err := strat.PoolStateView(strat.GetPoolId(key))
	require.NoError(t, err)
	require.Equal(t, TickRange{Lower: -100, Upper: 100}, state.CurrentPosition)
	require.Equal(t, 0, state.BaselineTick)
	require.True(t, state.ReserveIsToken0)

	recovered, err := strat.RecoverPoolKey(strat.GetPoolId(key))
	require.NoError(t, err)
	require.Equal(t, strat.GetPoolId(key), recovered.ToId().Hex())
}

func TestStrategyDepositAndWithdraw(t *testing.T) {
	pm, strat, key, poolId := newTestStrategy(t, strategyTestConfig())
	charge := d("997454414149819226701")

	result, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)
	require.True(t, result.Liquidity.Equal(e18(200_000)))
	require.True(t, result.Amount0.Equal(charge))
	require.True(t, result.Amount1.Equal(charge))
	require.True(t, strat.SharesOf(poolId, testLP).Equal(e18(200_000)))
	require.True(t, pm.WalletBalance(key.Currency0.Hex(), testLP).Equal(e18(1_000_000).Sub(charge)))

	// A second depositor with token amounts gets shares at the same rate.
	result, err = strat.AddLiquidity(testTrader, poolId, e18(500), e18(500), ZERO)
	require.NoError(t, err)
	require.Equal(t, "100255208239501401643911", result.Liquidity.String())
	require.True(t, result.Amount0.Equal(e18(500)))
	require.True(t, result.Amount1.Equal(e18(500)))
	require.Equal(t, "100255208239501401643911", strat.SharesOf(poolId, testTrader).String())
	require.Equal(t, "300255208239501401643911", strat.TotalShares(poolId).String())

	pool, err := pm.GetPool(poolId)
	require.NoError(t, err)
	require.Equal(t, "300255208239501401643911", pool.Liquidity.String())

	out := d("249363603537454806675")
	result, err = strat.WithdrawLiquidity(testLP, poolId, e18(50_000))
	require.NoError(t, err)
	require.True(t, result.Liquidity.Equal(e18(50_000)))
	require.True(t, result.Amount0.Equal(out))
	require.True(t, result.Amount1.Equal(out))
	require.True(t, strat.SharesOf(poolId, testLP).Equal(e18(150_000)))
	require.Equal(t, "250255208239501401643911", pool.Liquidity.String())
	require.True(t, pm.WalletBalance(key.Currency0.Hex(), testLP).Equal(e18(1_000_000).Sub(charge).Add(out)))

	record := strat.LastDispatch(poolId)
	require.Equal(t, ActionWithdrawLiquidity, record.Type)
	require.Equal(t, PhaseSettled, record.Phase)
	require.Empty(t, record.Error)
}

func TestStrategyDepositRollsBackWithoutFunds(t *testing.T) {
	pm, strat, key, poolId := newTestStrategy(t, strategyTestConfig())
	pauper := common.HexToAddress("0x00000000000000000000000000000000000000cc").Hex()
	pm.FundWallet(key.Currency0.Hex(), pauper, e18(1))
	pm.FundWallet(key.Currency1.Hex(), pauper, e18(1))

	_, err := strat.AddLiquidityUnits(pauper, poolId, e18(200_000), ZERO)
	require.ErrorContains(t, err, "insufficient balance")

	require.True(t, strat.SharesOf(poolId, pauper).IsZero())
	require.True(t, pm.WalletBalance(key.Currency0.Hex(), pauper).Equal(e18(1)))
	pool, err := pm.GetPool(poolId)
	require.NoError(t, err)
	require.True(t, pool.Liquidity.IsZero())
	require.Equal(t, PhaseRolledBack, strat.LastDispatch(poolId).Phase)
}

func TestStrategyZeroDepositRejected(t *testing.T) {
	_, strat, _, poolId := newTestStrategy(t, strategyTestConfig())

	_, err := strat.AddLiquidity(testLP, poolId, ZERO, ZERO, ZERO)
	require.ErrorContains(t, err, "converts to no liquidity")

	record := strat.LastDispatch(poolId)
	require.Equal(t, ActionAddLiquidity, record.Type)
	require.Equal(t, PhaseRolledBack, record.Phase)
	require.NotEmpty(t, record.Error)
}

func TestStrategyWithdrawMoreThanOwned(t *testing.T) {
	_, strat, _, poolId := newTestStrategy(t, strategyTestConfig())
	_, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)

	_, err = strat.WithdrawLiquidity(testLP, poolId, e18(200_001))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	require.True(t, strat.SharesOf(poolId, testLP).Equal(e18(200_000)))

	_, err = strat.WithdrawLiquidity(testLP, poolId, ZERO)
	require.ErrorContains(t, err, "must be positive")
}

func TestStrategySmallSwapNoAction(t *testing.T) {
	pm, strat, key, poolId := newTestStrategy(t, strategyTestConfig())
	_, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)
	_, err = strat.AddLiquidity(testLP, poolId, e18(1000), e18(1000), ZERO)
	require.NoError(t, err)

	amount0, amount1, err := sellToken1(t, pm, key, poolId, e18(5), nil)
	require.NoError(t, err)
	require.Equal(t, "-4984937954383506266", amount0.String())
	require.True(t, amount1.Equal(e18(5)))

	// Tick did not move and the hook dispatched nothing: the last record
	// is still the deposit.
	state, err := strat.PoolStateView(poolId)
	require.NoError(t, err)
	require.Equal(t, 0, state.LastKnownTick)
	require.Equal(t, TickRange{Lower: -100, Upper: 100}, state.CurrentPosition)
	require.True(t, state.ReserveAmount.IsZero())
	require.Equal(t, ActionAddLiquidity, strat.LastDispatch(poolId).Type)
}

// A trade that drags the tick past the shift threshold re-centers the
// position and, with the loss over its trigger, buys the lost token0 back
// in the same window. The reserve ends holding the claim tokens.
func TestStrategyShiftAndCompensate(t *testing.T) {
	pm, strat, key, poolId := newTestStrategy(t, strategyTestConfig(),
		WithExecutor(&SamePoolExecutor{SlippagePips: 20_000}))
	_, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)
	_, err = strat.AddLiquidity(testLP, poolId, e18(1000), e18(1000), ZERO)
	require.NoError(t, err)

	amount0, amount1, err := sellToken1(t, pm, key, poolId, e18(1400), nil)
	require.NoError(t, err)
	require.Equal(t, "-1390952457065560754239", amount0.String())
	require.True(t, amount1.Equal(e18(1400)))

	pool, err := pm.GetPool(poolId)
	require.NoError(t, err)
	require.Equal(t, 138, pool.TickCurrent)
	require.Equal(t, "79779987380437828844589105759", pool.SqrtPriceX96.String())
	require.Equal(t, "244539595331632403803258", pool.Liquidity.String())

	state, err := strat.PoolStateView(poolId)
	require.NoError(t, err)
	require.Equal(t, TickRange{Lower: -40, Upper: 160}, state.CurrentPosition)
	require.Equal(t, TickRange{Lower: -40, Upper: 160}, state.BaselinePosition)
	require.Equal(t, 138, state.BaselineTick)
	require.Equal(t, 138, state.LastKnownTick)
	require.True(t, state.ReserveIsToken0)
	require.Equal(t, "1543214035719667134581", state.ReserveAmount.String())
	require.True(t, state.ReserveAmount.Equal(pm.ClaimsBalance(key.Currency0.Hex(), strat.Address())))
	require.Equal(t, "1205667894191963843704", pm.ClaimsBalance(key.Currency1.Hex(), strat.Address()).String())

	// The re-add at the shifted bounds was short of token0; the strategy
	// wallet covered it. Token1 never touched the wallet.
	require.Equal(t, "48806312224084357573580", pm.WalletBalance(key.Currency0.Hex(), strat.Address()).String())
	require.True(t, pm.WalletBalance(key.Currency1.Hex(), strat.Address()).Equal(e18(50_000)))

	// The trader paid and received exactly the outer swap legs.
	require.True(t, pm.WalletBalance(key.Currency1.Hex(), testTrader).Equal(e18(1_000_000).Sub(e18(1400))))
	require.True(t, pm.WalletBalance(key.Currency0.Hex(), testTrader).Equal(e18(1_000_000).Add(d("1390952457065560754239"))))

	// Shares are untouched by the rebalance and the baseline reset
	// leaves no measured loss.
	require.Equal(t, "400510416479002803287822", strat.TotalShares(poolId).String())
	report, err := strat.ILView(poolId)
	require.NoError(t, err)
	require.True(t, report.IL0.IsZero())
	require.True(t, report.IL1.IsZero())

	record := strat.LastDispatch(poolId)
	require.Equal(t, ActionCompensateILSwap, record.Type)
	require.Equal(t, PhaseSettled, record.Phase)
	require.Empty(t, record.Error)
}

// Once the reserve's liquidity equivalent exceeds the position's, a
// withdrawal is served entirely from the reserve buffer.
func TestStrategyWithdrawAfterCompensation(t *testing.T) {
	pm, strat, key, poolId := newTestStrategy(t, strategyTestConfig(),
		WithExecutor(&SamePoolExecutor{SlippagePips: 20_000}))
	_, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)
	_, err = strat.AddLiquidity(testLP, poolId, e18(1000), e18(1000), ZERO)
	require.NoError(t, err)
	_, _, err = sellToken1(t, pm, key, poolId, e18(1400), nil)
	require.NoError(t, err)

	result, err := strat.WithdrawLiquidity(testLP, poolId, e18(100_000))
	require.NoError(t, err)
	require.True(t, result.Liquidity.Equal(e18(100_000)))
	require.Equal(t, "105085516695869288255", result.Amount0.String())
	require.True(t, result.Amount1.IsZero())

	state, err := strat.PoolStateView(poolId)
	require.NoError(t, err)
	require.Equal(t, "1438128519023797846326", state.ReserveAmount.String())
	require.Equal(t, "300510416479002803287822", strat.SharesOf(poolId, testLP).String())

	// The pool position itself was left alone.
	pool, err := pm.GetPool(poolId)
	require.NoError(t, err)
	require.Equal(t, "244539595331632403803258", pool.Liquidity.String())
}

// With the default slippage bound the compensation cannot fill, and the
// failure takes the whole trade down: the swap, the shift and every
// settlement evaporate together.
func TestStrategyCompensationAbortsAtomically(t *testing.T) {
	pm, strat, key, poolId := newTestStrategy(t, strategyTestConfig())
	_, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)
	_, err = strat.AddLiquidity(testLP, poolId, e18(1000), e18(1000), ZERO)
	require.NoError(t, err)

	_, _, err = sellToken1(t, pm, key, poolId, e18(1400), nil)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	require.ErrorContains(t, err, "filled")

	pool, err := pm.GetPool(poolId)
	require.NoError(t, err)
	require.True(t, pool.SqrtPriceX96.Equal(Q96))
	require.Equal(t, 0, pool.TickCurrent)
	require.Equal(t, "400510416479002803287822", pool.Liquidity.String())

	state, err := strat.PoolStateView(poolId)
	require.NoError(t, err)
	require.Equal(t, TickRange{Lower: -100, Upper: 100}, state.CurrentPosition)
	require.Equal(t, 0, state.BaselineTick)
	require.Equal(t, 0, state.LastKnownTick)
	require.True(t, state.ReserveAmount.IsZero())

	require.True(t, pm.WalletBalance(key.Currency0.Hex(), testTrader).Equal(e18(1_000_000)))
	require.True(t, pm.WalletBalance(key.Currency1.Hex(), testTrader).Equal(e18(1_000_000)))
	require.True(t, pm.WalletBalance(key.Currency0.Hex(), strat.Address()).Equal(e18(50_000)))
	require.True(t, pm.WalletBalance(key.Currency1.Hex(), strat.Address()).Equal(e18(50_000)))
	require.True(t, pm.ClaimsBalance(key.Currency0.Hex(), strat.Address()).IsZero())
	require.True(t, pm.ClaimsBalance(key.Currency1.Hex(), strat.Address()).IsZero())
	require.Equal(t, "400510416479002803287822", strat.TotalShares(poolId).String())

	// The dispatch record survives as a diagnostic of what was attempted.
	record := strat.LastDispatch(poolId)
	require.Equal(t, ActionCompensateILSwap, record.Type)
	require.Equal(t, PhaseRolledBack, record.Phase)
	require.NotEmpty(t, record.Error)
}

// A price-limited trade parks the tick exactly on a boundary so the live
// loss measurement can be checked against a hand-computed value.
func TestStrategyILViewAfterDrift(t *testing.T) {
	config := strategyTestConfig()
	config.ShiftLowerDistance = -1_000_000
	config.ShiftUpperDistance = 1_000_000
	config.IL0TriggerFraction = Q96
	config.IL1TriggerFraction = Q96
	pm, strat, key, poolId := newTestStrategy(t, config)
	_, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)

	limit, err := GetSqrtRatioAtTick(60)
	require.NoError(t, err)
	amount0, amount1, err := sellToken1(t, pm, key, poolId, e18(5000), &limit)
	require.NoError(t, err)
	require.Equal(t, "-599070991182156187534", amount0.String())
	require.Equal(t, "602678849095672147238", amount1.String())

	pool, err := pm.GetPool(poolId)
	require.NoError(t, err)
	require.Equal(t, 60, pool.TickCurrent)

	state, err := strat.PoolStateView(poolId)
	require.NoError(t, err)
	require.Equal(t, 60, state.LastKnownTick)
	require.Equal(t, ActionAddLiquidity, strat.LastDispatch(poolId).Type)

	report, err := strat.ILView(poolId)
	require.NoError(t, err)
	require.Equal(t, "599070991182156187535", report.IL0.String())
	require.True(t, report.IL1.IsZero())
	require.Equal(t, "47584424083597495381834350586", report.IL0Fraction.String())
}

func TestStrategyNativeDeposit(t *testing.T) {
	pm := NewPoolManager()
	strat := NewStrategy(pm, testOwner)
	key := PoolKey{
		Currency0:   NativeCurrency,
		Currency1:   common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Fee:         3000,
		TickSpacing: 10,
	}
	pm.FundWallet(key.Currency1.Hex(), testLP, e18(1_000_000))
	require.NoError(t, strat.SetConfig(testOwner, key, strategyTestConfig()))
	_, err := strat.InitializePool(testOwner, key, Q96)
	require.NoError(t, err)
	poolId := strat.GetPoolId(key)
	charge := d("997454414149819226701")

	// The native leg settles from the attached value, exactly.
	result, err := strat.AddLiquidityUnits(testLP, poolId, e18(200_000), charge)
	require.NoError(t, err)
	require.True(t, result.Amount0.Equal(charge))
	require.True(t, strat.SharesOf(poolId, testLP).Equal(e18(200_000)))

	// Too little value fails the settle, too much fails the window close.
	_, err = strat.AddLiquidityUnits(testLP, poolId, e18(200_000), e18(1))
	require.ErrorIs(t, err, ErrNativeValueMismatch)
	_, err = strat.AddLiquidityUnits(testLP, poolId, e18(1), e18(5))
	require.ErrorIs(t, err, ErrNativeValueMismatch)

	require.True(t, strat.SharesOf(poolId, testLP).Equal(e18(200_000)))
	require.True(t, pm.WalletBalance(key.Currency1.Hex(), testLP).Equal(e18(1_000_000).Sub(charge)))
}

func TestStrategyFlush(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&CorePool{}, &PoolRecord{}, &ShareRecord{}, &ActionRecord{}))

	pm, strat, _, poolId := newTestStrategy(t, strategyTestConfig())
	_, err = strat.AddLiquidityUnits(testLP, poolId, e18(200_000), ZERO)
	require.NoError(t, err)
	_, err = strat.WithdrawLiquidity(testLP, poolId, e18(50_000))
	require.NoError(t, err)

	require.NoError(t, strat.Flush(db))
	require.NoError(t, pm.Flush(db))

	var pools []PoolRecord
	require.NoError(t, db.Find(&pools).Error)
	require.Len(t, pools, 1)
	require.Equal(t, poolId, pools[0].PoolId)
	require.Equal(t, -100, pools[0].Config.PositionRangeLower)
	require.Equal(t, TickRange{Lower: -100, Upper: 100}, pools[0].State.CurrentPosition)

	var shares []ShareRecord
	require.NoError(t, db.Find(&shares).Error)
	require.Len(t, shares, 1)
	require.Equal(t, testLP, shares[0].Holder)
	require.True(t, shares[0].Balance.Equal(e18(150_000)))

	var actions []ActionRecord
	require.NoError(t, db.Find(&actions).Error)
	require.Len(t, actions, 2)
	require.Equal(t, string(ActionAddLiquidity), actions[0].Type)
	require.Equal(t, string(PhaseSettled), actions[0].Phase)
	require.Equal(t, string(ActionWithdrawLiquidity), actions[1].Type)

	// A second flush updates rather than duplicating rows.
	require.NoError(t, strat.Flush(db))
	actions = nil
	require.NoError(t, db.Find(&actions).Error)
	require.Len(t, actions, 2)
}
