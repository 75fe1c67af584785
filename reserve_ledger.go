package uniswap_v4_hedger

import (
	"github.com/shopspring/decimal"
)

// DepositSplit divides newly provided liquidity between the main position
// and the reserve buffer, preserving the current reserve-to-position
// liquidity ratio. The first deposit, and any deposit while the position
// is empty, goes entirely to the position.
func DepositSplit(liquidityProvided, liquidityInReserve, positionLiquidity decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if !liquidityProvided.IsPositive() {
		return ZERO, ZERO
	}
	if positionLiquidity.IsZero() || liquidityInReserve.IsZero() {
		return liquidityProvided, ZERO
	}
	toReserve := decimal.NewFromBigInt(MulDiv(liquidityProvided.BigInt(), liquidityInReserve.BigInt(), positionLiquidity.BigInt()), 0)
	if toReserve.GreaterThan(liquidityProvided) {
		toReserve = liquidityProvided
	}
	return liquidityProvided.Sub(toReserve), toReserve
}

// WithdrawSplit mirrors DepositSplit for a removal request, using the
// reserve-to-position ratio as it stands at withdrawal time.
func WithdrawSplit(liquidityRequested, liquidityInReserve, positionLiquidity decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if !liquidityRequested.IsPositive() {
		return ZERO, ZERO
	}
	if positionLiquidity.IsZero() || liquidityInReserve.IsZero() {
		return liquidityRequested, ZERO
	}
	fromReserve := decimal.NewFromBigInt(MulDiv(liquidityRequested.BigInt(), liquidityInReserve.BigInt(), positionLiquidity.BigInt()), 0)
	if fromReserve.GreaterThan(liquidityRequested) {
		fromReserve = liquidityRequested
	}
	return liquidityRequested.Sub(fromReserve), fromReserve
}

// ProportionalShare scales amount by numerator/denominator, rounding down.
// A zero denominator yields zero.
func ProportionalShare(amount, numerator, denominator decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !numerator.IsPositive() || !denominator.IsPositive() {
		return ZERO
	}
	share := decimal.NewFromBigInt(MulDiv(amount.BigInt(), numerator.BigInt(), denominator.BigInt()), 0)
	if share.GreaterThan(amount) {
		return amount
	}
	return share
}

// ReserveLiquidity converts the single-sided reserve buffer into the
// liquidity it represents over the position bounds at the current price.
func ReserveLiquidity(reserveIsToken0 bool, reserveAmount, sqrtPriceX96 decimal.Decimal, bounds TickRange) (decimal.Decimal, error) {
	if !reserveAmount.IsPositive() {
		return ZERO, nil
	}
	sqrtA, sqrtB, err := bounds.SqrtRatios()
	if err != nil {
		return ZERO, err
	}
	return LiquidityForTokenAmount(reserveIsToken0, sqrtPriceX96, sqrtA, sqrtB, reserveAmount), nil
}

// ResyncReserve pins the recorded reserve size to the claimable balance
// actually held. The stored amount is never trusted across an action, it
// is re-read after every mutation.
func ResyncReserve(state *PoolState, claimBalance decimal.Decimal) {
	state.ReserveAmount = claimBalance
}
