package uniswap_v4_hedger

import (
	"errors"
	"math/big"

	"github.com/daoleno/uniswapv3-sdk/utils"
	"github.com/shopspring/decimal"
)

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
	bigQ96  = Q96.BigInt()
)

// MulDiv computes floor(a * b / denominator) on non-negative operands.
func MulDiv(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Div(product, denominator)
}

// MulDivRoundingUp computes ceil(a * b / denominator) on non-negative operands.
func MulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, remainder := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, bigOne)
	}
	return quotient
}

func divRoundingUp(a, b *big.Int) *big.Int {
	quotient, remainder := new(big.Int).QuoRem(a, b, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, bigOne)
	}
	return quotient
}

func GetSqrtRatioAtTick(tick int) (decimal.Decimal, error) {
	sqrtRatioX96, err := utils.GetSqrtRatioAtTick(tick)
	if err != nil {
		return ZERO, err
	}
	return decimal.NewFromBigInt(sqrtRatioX96, 0), nil
}

// GetTickAtSqrtRatio returns the largest tick whose sqrt ratio is at most
// sqrtPriceX96. Binary search over the canonical tick->ratio conversion keeps
// the two directions exactly consistent.
func GetTickAtSqrtRatio(sqrtPriceX96 decimal.Decimal) (int, error) {
	if sqrtPriceX96.LessThan(MIN_SQRT_RATIO) || sqrtPriceX96.GreaterThanOrEqual(MAX_SQRT_RATIO) {
		return 0, errors.New("sqrt ratio out of bounds")
	}
	target := sqrtPriceX96.BigInt()
	lo, hi := MIN_TICK, MAX_TICK
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ratio, err := utils.GetSqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(target) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

func sortRatios(sqrtRatioAX96, sqrtRatioBX96 decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if sqrtRatioAX96.GreaterThan(sqrtRatioBX96) {
		return sqrtRatioBX96, sqrtRatioAX96
	}
	return sqrtRatioAX96, sqrtRatioBX96
}

func getAmount0DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity decimal.Decimal, roundUp bool) decimal.Decimal {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	numerator1 := new(big.Int).Lsh(liquidity.BigInt(), 96)
	numerator2 := sqrtRatioBX96.Sub(sqrtRatioAX96).BigInt()
	bigA := sqrtRatioAX96.BigInt()
	bigB := sqrtRatioBX96.BigInt()
	if roundUp {
		return decimal.NewFromBigInt(divRoundingUp(MulDivRoundingUp(numerator1, numerator2, bigB), bigA), 0)
	}
	return decimal.NewFromBigInt(new(big.Int).Div(MulDiv(numerator1, numerator2, bigB), bigA), 0)
}

func getAmount1DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity decimal.Decimal, roundUp bool) decimal.Decimal {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	diff := sqrtRatioBX96.Sub(sqrtRatioAX96).BigInt()
	if roundUp {
		return decimal.NewFromBigInt(MulDivRoundingUp(liquidity.BigInt(), diff, bigQ96), 0)
	}
	return decimal.NewFromBigInt(MulDiv(liquidity.BigInt(), diff, bigQ96), 0)
}

// GetAmount0Delta is sign-aware: a positive liquidity delta rounds the charge
// up, a negative one rounds the refund down.
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity decimal.Decimal) (decimal.Decimal, error) {
	if liquidity.IsNegative() {
		return getAmount0DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity.Neg(), false).Neg(), nil
	}
	return getAmount0DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity, true), nil
}

func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity decimal.Decimal) (decimal.Decimal, error) {
	if liquidity.IsNegative() {
		return getAmount1DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity.Neg(), false).Neg(), nil
	}
	return getAmount1DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity, true), nil
}

func GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 decimal.Decimal) decimal.Decimal {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	intermediate := MulDiv(sqrtRatioAX96.BigInt(), sqrtRatioBX96.BigInt(), bigQ96)
	diff := sqrtRatioBX96.Sub(sqrtRatioAX96).BigInt()
	return decimal.NewFromBigInt(MulDiv(amount0.BigInt(), intermediate, diff), 0)
}

func GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 decimal.Decimal) decimal.Decimal {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	diff := sqrtRatioBX96.Sub(sqrtRatioAX96).BigInt()
	return decimal.NewFromBigInt(MulDiv(amount1.BigInt(), bigQ96, diff), 0)
}

// GetLiquidityForAmounts returns the largest liquidity quantity both deposited
// amounts can fund at the current price. In range it is the min of the two
// single-sided conversions.
func GetLiquidityForAmounts(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 decimal.Decimal) decimal.Decimal {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	if sqrtRatioX96.LessThanOrEqual(sqrtRatioAX96) {
		return GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0)
	}
	if sqrtRatioX96.LessThan(sqrtRatioBX96) {
		liquidity0 := GetLiquidityForAmount0(sqrtRatioX96, sqrtRatioBX96, amount0)
		liquidity1 := GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioX96, amount1)
		if liquidity0.LessThan(liquidity1) {
			return liquidity0
		}
		return liquidity1
	}
	return GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1)
}

// GetAmountsForLiquidity values a liquidity quantity in token amounts at the
// given price over the given bounds, rounding down.
func GetAmountsForLiquidity(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, liquidity decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	if sqrtRatioX96.LessThanOrEqual(sqrtRatioAX96) {
		return getAmount0DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity, false), ZERO
	}
	if sqrtRatioX96.LessThan(sqrtRatioBX96) {
		amount0 := getAmount0DeltaWithRound(sqrtRatioX96, sqrtRatioBX96, liquidity, false)
		amount1 := getAmount1DeltaWithRound(sqrtRatioAX96, sqrtRatioX96, liquidity, false)
		return amount0, amount1
	}
	return ZERO, getAmount1DeltaWithRound(sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
}

// LiquidityForTokenAmount converts a single-sided token amount into the
// liquidity it represents over [sqrtRatioAX96, sqrtRatioBX96] at the current
// price. The price is clamped into the bounds; when the in-range sub-interval
// for the requested side is empty the full range is used instead.
func LiquidityForTokenAmount(token0 bool, sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount decimal.Decimal) decimal.Decimal {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	if token0 {
		lower := sqrtRatioX96
		if lower.LessThan(sqrtRatioAX96) {
			lower = sqrtRatioAX96
		}
		if lower.GreaterThanOrEqual(sqrtRatioBX96) {
			lower = sqrtRatioAX96
		}
		return GetLiquidityForAmount0(lower, sqrtRatioBX96, amount)
	}
	upper := sqrtRatioX96
	if upper.GreaterThan(sqrtRatioBX96) {
		upper = sqrtRatioBX96
	}
	if upper.LessThanOrEqual(sqrtRatioAX96) {
		upper = sqrtRatioBX96
	}
	return GetLiquidityForAmount1(sqrtRatioAX96, upper, amount)
}

// AddDelta applies a signed liquidity delta to an unsigned liquidity value.
func AddDelta(x, y decimal.Decimal) (decimal.Decimal, error) {
	if y.IsNegative() {
		negated := y.Neg()
		if x.LessThan(negated) {
			return ZERO, errors.New("liquidity underflow")
		}
		return x.Sub(negated), nil
	}
	sum := x.Add(y)
	if sum.GreaterThan(MaxUint128) {
		return ZERO, errors.New("liquidity overflow")
	}
	return sum, nil
}

func TickSpacingToMaxLiquidityPerTick(tickSpacing int) decimal.Decimal {
	minTick := (MIN_TICK / tickSpacing) * tickSpacing
	maxTick := (MAX_TICK / tickSpacing) * tickSpacing
	numTicks := int64((maxTick-minTick)/tickSpacing) + 1
	return decimal.NewFromBigInt(new(big.Int).Div(MaxUint128.BigInt(), big.NewInt(numTicks)), 0)
}
