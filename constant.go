package uniswap_v4_hedger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	MaxUint128 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(128)).Sub(decimal.NewFromInt(1))
	MaxUint256 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(256)).Sub(decimal.NewFromInt(1))
	MaxInt128  = decimal.NewFromInt(2).Pow(decimal.NewFromInt(127)).Sub(decimal.NewFromInt(1))
	MinInt128  = decimal.NewFromInt(2).Pow(decimal.NewFromInt(127)).Neg()

	Q32  = decimal.NewFromInt(2).Pow(decimal.NewFromInt(32))
	Q96  = decimal.NewFromInt(2).Pow(decimal.NewFromInt(96))
	Q128 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(128))
	Q192 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(192))

	MIN_TICK          int = -887272
	MAX_TICK          int = -MIN_TICK
	MIN_SQRT_RATIO        = decimal.NewFromInt(4295128739)
	MAX_SQRT_RATIO, _     = decimal.NewFromString("1461446703485210103287273052203988822378723970342")

	ZERO = decimal.NewFromInt(0)
	ONE  = decimal.NewFromInt(1)

	// Pips denominate fee tiers and slippage bounds: 1_000_000 pips = 100%.
	PIPS_DENOMINATOR = decimal.NewFromInt(1_000_000)

	// NativeCurrency is the zero address, used by pools whose currency0 is the
	// chain's native token.
	NativeCurrency = common.Address{}
)

const (
	// MAX_FEE_PIPS is the largest valid pool fee tier.
	MAX_FEE_PIPS = 1_000_000

	// DEFAULT_SLIPPAGE_PIPS bounds compensation trades to 0.1% of the current
	// price unless overridden.
	DEFAULT_SLIPPAGE_PIPS = 1_000
)
