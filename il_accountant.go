package uniswap_v4_hedger

import (
	"github.com/shopspring/decimal"
)

// ILReport is the outcome of one impermanent-loss evaluation. Amounts are
// token units, fractions are Q96 where 2^96 means the whole baseline
// amount was lost.
type ILReport struct {
	IL0         decimal.Decimal `json:"il0"`
	IL1         decimal.Decimal `json:"il1"`
	IL0Fraction decimal.Decimal `json:"il0_fraction"`
	IL1Fraction decimal.Decimal `json:"il1_fraction"`
}

// ComputeIL values the position's liquidity at the baseline tick and at the
// current tick and records, per token, how far the current valuation fell
// below the baseline one. Gains clamp to zero so they never trigger a
// compensation in the other direction.
func ComputeIL(baselineTick, currentTick int, liquidity decimal.Decimal, baselinePosition, currentPosition TickRange) (ILReport, error) {
	report := ILReport{IL0: ZERO, IL1: ZERO, IL0Fraction: ZERO, IL1Fraction: ZERO}
	if !liquidity.IsPositive() {
		return report, nil
	}

	baseSqrt, err := GetSqrtRatioAtTick(baselineTick)
	if err != nil {
		return report, err
	}
	baseLowerSqrt, err := GetSqrtRatioAtTick(baselinePosition.Lower)
	if err != nil {
		return report, err
	}
	baseUpperSqrt, err := GetSqrtRatioAtTick(baselinePosition.Upper)
	if err != nil {
		return report, err
	}
	startAmount0, startAmount1 := GetAmountsForLiquidity(baseSqrt, baseLowerSqrt, baseUpperSqrt, liquidity)

	nowSqrt, err := GetSqrtRatioAtTick(currentTick)
	if err != nil {
		return report, err
	}
	nowLowerSqrt, err := GetSqrtRatioAtTick(currentPosition.Lower)
	if err != nil {
		return report, err
	}
	nowUpperSqrt, err := GetSqrtRatioAtTick(currentPosition.Upper)
	if err != nil {
		return report, err
	}
	nowAmount0, nowAmount1 := GetAmountsForLiquidity(nowSqrt, nowLowerSqrt, nowUpperSqrt, liquidity)

	report.IL0 = startAmount0.Sub(nowAmount0)
	if report.IL0.IsNegative() {
		report.IL0 = ZERO
	}
	report.IL1 = startAmount1.Sub(nowAmount1)
	if report.IL1.IsNegative() {
		report.IL1 = ZERO
	}
	if report.IL0.IsPositive() && startAmount0.IsPositive() {
		report.IL0Fraction = decimal.NewFromBigInt(MulDiv(report.IL0.BigInt(), Q96.BigInt(), startAmount0.BigInt()), 0)
	}
	if report.IL1.IsPositive() && startAmount1.IsPositive() {
		report.IL1Fraction = decimal.NewFromBigInt(MulDiv(report.IL1.BigInt(), Q96.BigInt(), startAmount1.BigInt()), 0)
	}
	return report, nil
}

// TriggersToken0 reports whether the token0-side loss crossed the
// configured threshold. A zero loss never triggers, whatever the
// threshold.
func (r ILReport) TriggersToken0(config PoolConfig) bool {
	return r.IL0.IsPositive() && r.IL0Fraction.GreaterThanOrEqual(config.IL0TriggerFraction)
}

// TriggersToken1 reports whether the token1-side loss crossed the
// configured threshold.
func (r ILReport) TriggersToken1(config PoolConfig) bool {
	return r.IL1.IsPositive() && r.IL1Fraction.GreaterThanOrEqual(config.IL1TriggerFraction)
}
