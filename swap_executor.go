package uniswap_v4_hedger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SwapExecutor turns a compensation decision into an actual trade. The
// amount follows the engine convention: positive sells an exact input of
// the sold token, negative buys an exact output of the other token.
// Implementations routing to other venues can replace the same-pool one
// without the dispatcher changing.
type SwapExecutor interface {
	ExecuteCompensation(tx *PoolTx, poolId string, sellToken0 bool, amountSpecified decimal.Decimal) (decimal.Decimal, decimal.Decimal, error)
}

// SamePoolExecutor fills compensation trades against the managed pool
// itself. The slippage bound caps how far a fill may move the price, as a
// pips fraction of the current price on the side against the trader.
type SamePoolExecutor struct {
	SlippagePips int64
}

func NewSamePoolExecutor() *SamePoolExecutor {
	return &SamePoolExecutor{SlippagePips: DEFAULT_SLIPPAGE_PIPS}
}

// priceLimit converts the pips bound on price into a sqrt price limit.
// Price is the square of sqrt price, so the sqrt bound takes half the
// pips.
func (e *SamePoolExecutor) priceLimit(sqrtPriceX96 decimal.Decimal, sellToken0 bool) decimal.Decimal {
	halfPips := decimal.NewFromInt(e.SlippagePips / 2)
	var factor decimal.Decimal
	if sellToken0 {
		factor = PIPS_DENOMINATOR.Sub(halfPips)
	} else {
		factor = PIPS_DENOMINATOR.Add(halfPips)
	}
	limit := decimal.NewFromBigInt(MulDiv(sqrtPriceX96.BigInt(), factor.BigInt(), PIPS_DENOMINATOR.BigInt()), 0)
	floor := MIN_SQRT_RATIO.Add(ONE)
	ceiling := MAX_SQRT_RATIO.Sub(ONE)
	if limit.LessThan(floor) {
		return floor
	}
	if limit.GreaterThan(ceiling) {
		return ceiling
	}
	return limit
}

// ExecuteCompensation swaps against the pool and fails the enclosing
// action when the pool cannot fill the exact specified amount within the
// slippage bound. Partial fills are never accepted.
func (e *SamePoolExecutor) ExecuteCompensation(tx *PoolTx, poolId string, sellToken0 bool, amountSpecified decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if amountSpecified.IsZero() {
		return ZERO, ZERO, nil
	}
	pool, err := tx.Pool(poolId)
	if err != nil {
		return ZERO, ZERO, err
	}
	limit := e.priceLimit(pool.SqrtPriceX96, sellToken0)
	amount0, amount1, err := tx.Swap(poolId, sellToken0, amountSpecified, &limit)
	if err != nil {
		return ZERO, ZERO, err
	}
	exactInput := amountSpecified.IsPositive()
	var filled decimal.Decimal
	if sellToken0 == exactInput {
		filled = amount0
	} else {
		filled = amount1
	}
	if !filled.Equal(amountSpecified) {
		return ZERO, ZERO, fmt.Errorf("%w: pool %s filled %s of requested %s", ErrInsufficientLiquidity, poolId, filled.String(), amountSpecified.String())
	}
	logrus.WithFields(logrus.Fields{
		"pool":    poolId,
		"sell0":   sellToken0,
		"amount":  amountSpecified.String(),
		"amount0": amount0.String(),
		"amount1": amount1.String(),
	}).Debug("compensation trade filled")
	return amount0, amount1, nil
}
