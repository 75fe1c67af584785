package uniswap_v4_hedger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Events from the pool manager
type InitializeEvent struct {
	PoolId       string          `json:"pool_id"`
	Currency0    string          `json:"currency0"`
	Currency1    string          `json:"currency1"`
	Fee          int             `json:"fee"`
	TickSpacing  int             `json:"tick_spacing"`
	Hooks        string          `json:"hooks"`
	SqrtPriceX96 decimal.Decimal `json:"sqrt_price_x96"`
	Tick         int             `json:"tick"`
}

type ModifyLiquidityEvent struct {
	PoolId         string          `json:"pool_id"`
	Sender         string          `json:"sender"`
	TickLower      int             `json:"tick_lower"`
	TickUpper      int             `json:"tick_upper"`
	LiquidityDelta decimal.Decimal `json:"liquidity_delta"`
	Amount0        decimal.Decimal `json:"amount0"`
	Amount1        decimal.Decimal `json:"amount1"`
}

type SwapEvent struct {
	PoolId       string          `json:"pool_id"`
	Sender       string          `json:"sender"`
	Amount0      decimal.Decimal `json:"amount0"`
	Amount1      decimal.Decimal `json:"amount1"`
	SqrtPriceX96 decimal.Decimal `json:"sqrt_price_x96"`
	Liquidity    decimal.Decimal `json:"liquidity"`
	Tick         int             `json:"tick"`
}

// Event signature constants
var (
	PoolManagerInitializeSig      = crypto.Keccak256Hash([]byte("Initialize(bytes32,address,address,uint24,int24,address,uint160,int24)"))
	PoolManagerModifyLiquiditySig = crypto.Keccak256Hash([]byte("ModifyLiquidity(bytes32,address,int24,int24,int256,bytes32)"))
	PoolManagerSwapSig            = crypto.Keccak256Hash([]byte("Swap(bytes32,address,int128,int128,uint160,uint128,int24,uint24)"))
)

func (e *InitializeEvent) Sig() common.Hash      { return PoolManagerInitializeSig }
func (e *ModifyLiquidityEvent) Sig() common.Hash { return PoolManagerModifyLiquiditySig }
func (e *SwapEvent) Sig() common.Hash            { return PoolManagerSwapSig }

// EventJournal records everything the engine did, in order per type.
// Entries appended inside an unlock window that later rolls back are
// discarded with the rest of the savepoint.
type EventJournal struct {
	Initializations  []*InitializeEvent      `json:"initializations"`
	LiquidityChanges []*ModifyLiquidityEvent `json:"liquidity_changes"`
	Swaps            []*SwapEvent            `json:"swaps"`
}

func NewEventJournal() *EventJournal {
	return &EventJournal{}
}

func (j *EventJournal) AppendInitialize(e *InitializeEvent) {
	j.Initializations = append(j.Initializations, e)
}

func (j *EventJournal) AppendModifyLiquidity(e *ModifyLiquidityEvent) {
	j.LiquidityChanges = append(j.LiquidityChanges, e)
}

func (j *EventJournal) AppendSwap(e *SwapEvent) {
	j.Swaps = append(j.Swaps, e)
}

func (j *EventJournal) LastSwap(poolId string) *SwapEvent {
	for i := len(j.Swaps) - 1; i >= 0; i-- {
		if j.Swaps[i].PoolId == poolId {
			return j.Swaps[i]
		}
	}
	return nil
}

func (j *EventJournal) Clone() *EventJournal {
	newJournal := &EventJournal{
		Initializations:  append([]*InitializeEvent(nil), j.Initializations...),
		LiquidityChanges: append([]*ModifyLiquidityEvent(nil), j.LiquidityChanges...),
		Swaps:            append([]*SwapEvent(nil), j.Swaps...),
	}
	return newJournal
}
