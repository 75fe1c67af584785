package uniswap_v4_hedger

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Tick struct {
	Index                 int             `json:"index"`
	LiquidityGross        decimal.Decimal `json:"liquidity_gross"`
	LiquidityNet          decimal.Decimal `json:"liquidity_net"`
	FeeGrowthOutside0X128 decimal.Decimal `json:"fee_growth_outside0_x128"`
	FeeGrowthOutside1X128 decimal.Decimal `json:"fee_growth_outside1_x128"`
}

func NewTick(index int) *Tick {
	return &Tick{
		Index:                 index,
		LiquidityGross:        ZERO,
		LiquidityNet:          ZERO,
		FeeGrowthOutside0X128: ZERO,
		FeeGrowthOutside1X128: ZERO,
	}
}

func (t *Tick) Initialized() bool {
	return t.LiquidityGross.IsPositive()
}

// Update applies a liquidity delta to this tick. Returns true when the tick
// flips between initialized and uninitialized.
func (t *Tick) Update(liquidityDelta decimal.Decimal, tickCurrent int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 decimal.Decimal, upper bool, maxLiquidity decimal.Decimal) (bool, error) {
	liquidityGrossBefore := t.LiquidityGross
	liquidityGrossAfter, err := AddDelta(liquidityGrossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if liquidityGrossAfter.GreaterThan(maxLiquidity) {
		return false, errors.New("liquidity per tick exceeded")
	}
	flipped := liquidityGrossAfter.IsZero() != liquidityGrossBefore.IsZero()
	if liquidityGrossBefore.IsZero() {
		// Ticks at or below the current price start with the accumulated
		// global growth as their outside snapshot.
		if t.Index <= tickCurrent {
			t.FeeGrowthOutside0X128 = feeGrowthGlobal0X128
			t.FeeGrowthOutside1X128 = feeGrowthGlobal1X128
		}
	}
	t.LiquidityGross = liquidityGrossAfter
	if upper {
		t.LiquidityNet = t.LiquidityNet.Sub(liquidityDelta)
	} else {
		t.LiquidityNet = t.LiquidityNet.Add(liquidityDelta)
	}
	return flipped, nil
}

// Cross transitions the price across this tick, flipping the outside growth
// snapshots, and returns the net liquidity change.
func (t *Tick) Cross(feeGrowthGlobal0X128, feeGrowthGlobal1X128 decimal.Decimal) decimal.Decimal {
	t.FeeGrowthOutside0X128 = feeGrowthGlobal0X128.Sub(t.FeeGrowthOutside0X128)
	t.FeeGrowthOutside1X128 = feeGrowthGlobal1X128.Sub(t.FeeGrowthOutside1X128)
	return t.LiquidityNet
}

func (t *Tick) Clone() *Tick {
	return &Tick{
		Index:                 t.Index,
		LiquidityGross:        t.LiquidityGross,
		LiquidityNet:          t.LiquidityNet,
		FeeGrowthOutside0X128: t.FeeGrowthOutside0X128,
		FeeGrowthOutside1X128: t.FeeGrowthOutside1X128,
	}
}
