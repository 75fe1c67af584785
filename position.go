package uniswap_v4_hedger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Position is in-pool liquidity owned by one address over one bound pair.
type Position struct {
	Liquidity                decimal.Decimal `json:"liquidity"`
	FeeGrowthInside0LastX128 decimal.Decimal `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 decimal.Decimal `json:"fee_growth_inside1_last_x128"`
	TokensOwed0              decimal.Decimal `json:"tokens_owed0"`
	TokensOwed1              decimal.Decimal `json:"tokens_owed1"`
}

func NewPosition() *Position {
	return &Position{
		Liquidity:                ZERO,
		FeeGrowthInside0LastX128: ZERO,
		FeeGrowthInside1LastX128: ZERO,
		TokensOwed0:              ZERO,
		TokensOwed1:              ZERO,
	}
}

func GetPositionKey(owner string, tickLower, tickUpper int) string {
	return fmt.Sprintf("%s_%d_%d", owner, tickLower, tickUpper)
}

// Update applies a liquidity delta and accrues fees owed since the last
// growth snapshot.
func (p *Position) Update(liquidityDelta decimal.Decimal, feeGrowthInside0X128, feeGrowthInside1X128 decimal.Decimal) error {
	if liquidityDelta.IsZero() && p.Liquidity.IsZero() {
		return errors.New("cannot poke an empty position")
	}
	newLiquidity, err := AddDelta(p.Liquidity, liquidityDelta)
	if err != nil {
		return err
	}
	owed0 := MulDiv(feeGrowthInside0X128.Sub(p.FeeGrowthInside0LastX128).BigInt(), p.Liquidity.BigInt(), Q128.BigInt())
	owed1 := MulDiv(feeGrowthInside1X128.Sub(p.FeeGrowthInside1LastX128).BigInt(), p.Liquidity.BigInt(), Q128.BigInt())
	if owed0.Sign() > 0 {
		p.TokensOwed0 = p.TokensOwed0.Add(decimal.NewFromBigInt(owed0, 0))
	}
	if owed1.Sign() > 0 {
		p.TokensOwed1 = p.TokensOwed1.Add(decimal.NewFromBigInt(owed1, 0))
	}
	p.Liquidity = newLiquidity
	p.FeeGrowthInside0LastX128 = feeGrowthInside0X128
	p.FeeGrowthInside1LastX128 = feeGrowthInside1X128
	return nil
}

func (p *Position) UpdateBurn(newTokensOwed0, newTokensOwed1 decimal.Decimal) {
	p.TokensOwed0 = newTokensOwed0
	p.TokensOwed1 = newTokensOwed1
}

func (p *Position) IsEmpty() bool {
	return p.Liquidity.IsZero() && p.TokensOwed0.IsZero() && p.TokensOwed1.IsZero()
}

func (p *Position) Clone() *Position {
	return &Position{
		Liquidity:                p.Liquidity,
		FeeGrowthInside0LastX128: p.FeeGrowthInside0LastX128,
		FeeGrowthInside1LastX128: p.FeeGrowthInside1LastX128,
		TokensOwed0:              p.TokensOwed0,
		TokensOwed1:              p.TokensOwed1,
	}
}
