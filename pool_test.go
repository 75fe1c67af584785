package uniswap_v4_hedger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func testPoolKey() PoolKey {
	return PoolKey{
		Currency0:   common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Currency1:   common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Fee:         3000,
		TickSpacing: 10,
	}
}

// newTestPool builds an initialized pool at price 1:1 with a single 200000e18
// liquidity position spanning [-100, 100].
func newTestPool(t *testing.T) *CorePool {
	t.Helper()
	pool := NewCorePoolFromKey(testPoolKey())
	require.NoError(t, pool.Initialize(Q96))
	_, _, err := pool.Mint("lp", -100, 100, e18(200_000))
	require.NoError(t, err)
	return pool
}

func TestPoolInitialize(t *testing.T) {
	pool := NewCorePoolFromKey(testPoolKey())
	require.NoError(t, pool.Initialize(Q96))
	require.Equal(t, 0, pool.TickCurrent)
	require.True(t, pool.SqrtPriceX96.Equal(Q96))

	err := pool.Initialize(Q96)
	require.ErrorContains(t, err, "Already initialized")
}

func TestPoolMint(t *testing.T) {
	pool := NewCorePoolFromKey(testPoolKey())
	require.NoError(t, pool.Initialize(Q96))

	a0, a1, err := pool.Mint("lp", -100, 100, e18(200_000))
	require.NoError(t, err)
	require.Equal(t, "997454414149819226701", a0.String())
	require.Equal(t, "997454414149819226701", a1.String())
	require.True(t, pool.Liquidity.Equal(e18(200_000)))

	_, _, err = pool.Mint("lp", -100, 100, ZERO)
	require.ErrorContains(t, err, "greater than 0")

	_, _, err = pool.Mint("lp", 100, -100, e18(1))
	require.ErrorContains(t, err, "tickLower should lower than tickUpper")

	_, _, err = pool.Mint("lp", -105, 100, e18(1))
	require.ErrorContains(t, err, "align to tick spacing")
}

func TestPoolSwapExactInToken1(t *testing.T) {
	pool := newTestPool(t)

	amount0, amount1, sqrtPrice, err := pool.HandleSwap(false, e18(5), nil, false)
	require.NoError(t, err)
	require.Equal(t, "5000000000000000000", amount1.String())
	require.Equal(t, "-4984875751971882100", amount0.String())
	require.Equal(t, "79230137276215005632158469418", sqrtPrice.String())
	require.Equal(t, 0, pool.TickCurrent)
	require.True(t, pool.Liquidity.Equal(e18(200_000)))
	require.Equal(t, "25521177519070384759753095557382", pool.FeeGrowthGlobal1X128.String())
	require.True(t, pool.FeeGrowthGlobal0X128.IsZero())
}

func TestPoolSwapExactInToken0(t *testing.T) {
	pool := newTestPool(t)

	amount0, amount1, sqrtPrice, err := pool.HandleSwap(true, e18(5), nil, false)
	require.NoError(t, err)
	require.Equal(t, "5000000000000000000", amount0.String())
	require.Equal(t, "-4984875751971882100", amount1.String())
	require.Equal(t, "79226187801533384373938429921", sqrtPrice.String())
	require.Equal(t, -1, pool.TickCurrent)
	require.Equal(t, "25521177519070384759753095557382", pool.FeeGrowthGlobal0X128.String())
}

func TestPoolSwapPriceLimit(t *testing.T) {
	pool := newTestPool(t)
	limit := d("79267784519130042428790663799") // tick 10

	amount0, amount1, sqrtPrice, err := pool.HandleSwap(false, e18(200), &limit, false)
	require.NoError(t, err)
	// the limit stops the swap before the input is consumed
	require.Equal(t, "100320964894784355067", amount1.String())
	require.Equal(t, "-99970006998600251958", amount0.String())
	require.True(t, sqrtPrice.Equal(limit))
	require.Equal(t, 10, pool.TickCurrent)
}

func TestPoolSwapExactOut(t *testing.T) {
	pool := newTestPool(t)

	amount0, amount1, _, err := pool.HandleSwap(false, e18(1).Neg(), nil, false)
	require.NoError(t, err)
	require.Equal(t, "-1000000000000000000", amount0.String())
	require.Equal(t, "1003014042151454490", amount1.String())
	require.Equal(t, 0, pool.TickCurrent)
}

func TestPoolSwapDrainsRange(t *testing.T) {
	pool := newTestPool(t)

	// far more input than the single position can absorb: the range is
	// crossed, liquidity drops to zero and the rest stays unfilled
	amount0, amount1, _, err := pool.HandleSwap(false, e18(5000), nil, false)
	require.NoError(t, err)
	require.Equal(t, "1005470335617091976068", amount1.String())
	require.Equal(t, "-997454414149819226700", amount0.String())
	require.True(t, pool.Liquidity.IsZero())
	require.Equal(t, 887271, pool.TickCurrent)
}

func TestPoolSwapRejectsBadLimits(t *testing.T) {
	pool := newTestPool(t)

	above := Q96.Add(ONE)
	_, _, _, err := pool.HandleSwap(true, e18(1), &above, false)
	require.ErrorContains(t, err, "RATIO_CURRENT")

	low := MIN_SQRT_RATIO
	_, _, _, err = pool.HandleSwap(true, e18(1), &low, false)
	require.ErrorContains(t, err, "RATIO_MIN")

	high := MAX_SQRT_RATIO
	_, _, _, err = pool.HandleSwap(false, e18(1), &high, false)
	require.ErrorContains(t, err, "RATIO_MAX")

	below := Q96.Sub(ONE)
	_, _, _, err = pool.HandleSwap(false, e18(1), &below, false)
	require.ErrorContains(t, err, "RATIO_CURRENT")
}

func TestPoolStaticSwapLeavesState(t *testing.T) {
	pool := newTestPool(t)

	amount0, amount1, sqrtPrice, err := pool.HandleSwap(false, e18(5), nil, true)
	require.NoError(t, err)
	require.Equal(t, "5000000000000000000", amount1.String())
	require.Equal(t, "-4984875751971882100", amount0.String())
	require.Equal(t, "79230137276215005632158469418", sqrtPrice.String())

	// quote mode must not move the pool
	require.True(t, pool.SqrtPriceX96.Equal(Q96))
	require.Equal(t, 0, pool.TickCurrent)
	require.True(t, pool.FeeGrowthGlobal1X128.IsZero())
}

func TestPoolBurnCollectWithFees(t *testing.T) {
	pool := newTestPool(t)
	_, _, _, err := pool.HandleSwap(false, e18(5), nil, false)
	require.NoError(t, err)

	burn0, burn1, err := pool.Burn("lp", -100, 100, e18(200_000))
	require.NoError(t, err)
	require.Equal(t, "992469538397847344599", burn0.String())
	require.Equal(t, "1002439414149819226700", burn1.String())
	require.True(t, pool.Liquidity.IsZero())

	// collect pays principal plus the swap fees accrued to the position
	got0, got1, err := pool.Collect("lp", -100, 100, MaxUint128, MaxUint128)
	require.NoError(t, err)
	require.Equal(t, "992469538397847344599", got0.String())
	require.Equal(t, "1002454414149819226699", got1.String())

	// nothing left afterwards
	got0, got1, err = pool.Collect("lp", -100, 100, MaxUint128, MaxUint128)
	require.NoError(t, err)
	require.True(t, got0.IsZero())
	require.True(t, got1.IsZero())
}

func TestPoolCollectPartial(t *testing.T) {
	pool := newTestPool(t)
	_, _, err := pool.Burn("lp", -100, 100, e18(100_000))
	require.NoError(t, err)

	got0, got1, err := pool.Collect("lp", -100, 100, e18(1), e18(2))
	require.NoError(t, err)
	require.True(t, got0.Equal(e18(1)))
	require.True(t, got1.Equal(e18(2)))
}

func TestPoolCloneIsolation(t *testing.T) {
	pool := newTestPool(t)
	clone := pool.Clone()

	_, _, _, err := pool.HandleSwap(false, e18(5), nil, false)
	require.NoError(t, err)

	require.True(t, clone.SqrtPriceX96.Equal(Q96))
	require.True(t, clone.FeeGrowthGlobal1X128.IsZero())
	require.True(t, clone.Liquidity.Equal(e18(200_000)))
}
