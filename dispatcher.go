package uniswap_v4_hedger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ActionType string

const (
	ActionAddLiquidity      ActionType = "ADD_LIQUIDITY"
	ActionWithdrawLiquidity ActionType = "WITHDRAW_LIQUIDITY"
	ActionShiftPosition     ActionType = "SHIFT_POSITION"
	ActionCompensateILSwap  ActionType = "COMPENSATE_IL_SWAP"
)

// Action is the envelope carried into an exclusive execution window. The
// handler selected by Type is the only code allowed to touch the pool's
// live position inside that window.
type Action struct {
	Id     string          `json:"id"`
	Type   ActionType      `json:"type"`
	PoolId string          `json:"pool_id"`
	Params json.RawMessage `json:"params"`
	Result *ActionResult   `json:"result,omitempty"`
}

type ActionResult struct {
	Liquidity decimal.Decimal `json:"liquidity"`
	Amount0   decimal.Decimal `json:"amount0"`
	Amount1   decimal.Decimal `json:"amount1"`
}

type AddLiquidityParams struct {
	Sender         string          `json:"sender"`
	Amount0        decimal.Decimal `json:"amount0"`
	Amount1        decimal.Decimal `json:"amount1"`
	LiquidityUnits decimal.Decimal `json:"liquidity_units"`
}

type WithdrawLiquidityParams struct {
	Sender      string          `json:"sender"`
	ShareAmount decimal.Decimal `json:"share_amount"`
}

type ShiftPositionParams struct {
	CenterTick     int  `json:"center_tick"`
	UpdateBaseline bool `json:"update_baseline"`
}

type CompensateILParams struct {
	BuyToken0 bool            `json:"buy_token0"`
	Amount    decimal.Decimal `json:"amount"`
}

func NewAction(actionType ActionType, poolId string, params interface{}) (*Action, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Action{
		Id:     uuid.NewString(),
		Type:   actionType,
		PoolId: poolId,
		Params: raw,
	}, nil
}

// Dispatch phases per pool. A record moves Idle -> Dispatching ->
// Executing and ends Settled or RolledBack.
type DispatchPhase string

const (
	PhaseIdle        DispatchPhase = "Idle"
	PhaseDispatching DispatchPhase = "Dispatching"
	PhaseExecuting   DispatchPhase = "Executing"
	PhaseSettled     DispatchPhase = "Settled"
	PhaseRolledBack  DispatchPhase = "RolledBack"
)

// DispatchRecord tracks the latest action handled for a pool. The phase
// reflects the handler outcome; when the enclosing window fails later for
// an unrelated reason, the state effects still roll back with it.
type DispatchRecord struct {
	ActionId string        `json:"action_id"`
	Type     ActionType    `json:"type"`
	Phase    DispatchPhase `json:"phase"`
	Error    string        `json:"error,omitempty"`
}

// ActionRecord is the persisted log row for one dispatched action.
type ActionRecord struct {
	gorm.Model
	ActionId  string `gorm:"index"`
	PoolId    string `gorm:"index"`
	Type      string
	Params    string
	Phase     string
	Amount0   decimal.Decimal
	Amount1   decimal.Decimal
	Timestamp int64
}

// Dispatch routes an action to its handler inside the open window. Any
// handler error marks the record rolled back and propagates, taking the
// whole window down with it.
func (s *Strategy) Dispatch(tx *PoolTx, action *Action) error {
	record := &DispatchRecord{ActionId: action.Id, Type: action.Type, Phase: PhaseDispatching}
	s.dispatches[action.PoolId] = record
	logrus.WithFields(logrus.Fields{
		"id":     action.Id,
		"action": action.Type,
		"pool":   action.PoolId,
	}).Debug("dispatching action")

	record.Phase = PhaseExecuting
	var err error
	switch action.Type {
	case ActionAddLiquidity:
		err = s.handleAddLiquidity(tx, action)
	case ActionWithdrawLiquidity:
		err = s.handleWithdrawLiquidity(tx, action)
	case ActionShiftPosition:
		err = s.handleShiftPosition(tx, action)
	case ActionCompensateILSwap:
		err = s.handleCompensateILSwap(tx, action)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, string(action.Type))
	}

	if err != nil {
		record.Phase = PhaseRolledBack
		record.Error = err.Error()
		s.logAction(action, record)
		return err
	}
	record.Phase = PhaseSettled
	s.logAction(action, record)
	return nil
}

func (s *Strategy) logAction(action *Action, record *DispatchRecord) {
	row := &ActionRecord{
		ActionId:  action.Id,
		PoolId:    action.PoolId,
		Type:      string(action.Type),
		Params:    string(action.Params),
		Phase:     string(record.Phase),
		Timestamp: time.Now().Unix(),
	}
	if action.Result != nil {
		row.Amount0 = action.Result.Amount0
		row.Amount1 = action.Result.Amount1
	}
	s.actionLog = append(s.actionLog, row)
}

func (s *Strategy) positionLiquidity(pool *CorePool, state *PoolState) decimal.Decimal {
	position := pool.PositionManager.GetPositionReadonly(s.address, state.CurrentPosition.Lower, state.CurrentPosition.Upper)
	return position.Liquidity
}

// deltaMark pins the window deltas for the pool's two currencies before a
// handler issues its pool operations, so reconciliation settles only what
// the handler itself caused.
type deltaMark struct {
	currency0 string
	currency1 string
	delta0    decimal.Decimal
	delta1    decimal.Decimal
}

func markDeltas(tx *PoolTx, state *PoolState) deltaMark {
	return deltaMark{
		currency0: state.Currency0,
		currency1: state.Currency1,
		delta0:    tx.CurrencyDelta(state.Currency0),
		delta1:    tx.CurrencyDelta(state.Currency1),
	}
}

// reconcileDeltas closes the handler-caused delta on both pool currencies.
// Surpluses become claim tokens held for the reserve, deficits burn claims
// first and fall back to the strategy's wallet balance.
func (s *Strategy) reconcileDeltas(tx *PoolTx, mark deltaMark) error {
	stx := tx.WithSender(s.address)
	legs := []struct {
		currency string
		before   decimal.Decimal
	}{
		{mark.currency0, mark.delta0},
		{mark.currency1, mark.delta1},
	}
	for _, leg := range legs {
		diff := tx.CurrencyDelta(leg.currency).Sub(leg.before)
		if diff.IsPositive() {
			if err := stx.MintClaims(leg.currency, s.address, diff); err != nil {
				return err
			}
		} else if diff.IsNegative() {
			need := diff.Neg()
			burn := tx.ClaimsBalance(leg.currency, s.address)
			if burn.GreaterThan(need) {
				burn = need
			}
			if burn.IsPositive() {
				if err := stx.BurnClaims(leg.currency, s.address, burn); err != nil {
					return err
				}
			}
			remainder := need.Sub(burn)
			if remainder.IsPositive() {
				if err := stx.Settle(leg.currency, remainder); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Strategy) handleAddLiquidity(tx *PoolTx, action *Action) error {
	var params AddLiquidityParams
	if err := json.Unmarshal(action.Params, &params); err != nil {
		return err
	}
	state, err := s.registry.GetState(action.PoolId)
	if err != nil {
		return err
	}
	pool, err := tx.Pool(action.PoolId)
	if err != nil {
		return err
	}
	bounds := state.CurrentPosition
	sqrtA, sqrtB, err := bounds.SqrtRatios()
	if err != nil {
		return err
	}

	amount0, amount1 := params.Amount0, params.Amount1
	provided := params.LiquidityUnits
	if provided.IsPositive() {
		amount0, amount1, err = amountsForDeposit(pool, sqrtA, sqrtB, provided)
		if err != nil {
			return err
		}
	} else {
		provided = GetLiquidityForAmounts(pool.SqrtPriceX96, sqrtA, sqrtB, amount0, amount1)
	}
	if !provided.IsPositive() {
		return fmt.Errorf("deposit of (%s, %s) converts to no liquidity", params.Amount0.String(), params.Amount1.String())
	}

	positionLiquidity := s.positionLiquidity(pool, state)
	reserveLiquidity, err := ReserveLiquidity(state.ReserveIsToken0, state.ReserveAmount, pool.SqrtPriceX96, bounds)
	if err != nil {
		return err
	}
	toPosition, toReserve := DepositSplit(provided, reserveLiquidity, positionLiquidity)

	stx := tx.WithSender(s.address)
	charged0, charged1 := ZERO, ZERO
	if toPosition.IsPositive() {
		charged0, charged1, err = stx.ModifyLiquidity(action.PoolId, bounds.Lower, bounds.Upper, toPosition)
		if err != nil {
			return err
		}
	}

	paid0, paid1 := charged0, charged1
	if toReserve.IsPositive() {
		reserveSideAmount := amount1
		if state.ReserveIsToken0 {
			reserveSideAmount = amount0
		}
		add := ProportionalShare(reserveSideAmount, toReserve, provided)
		if add.IsPositive() {
			if err := tx.Settle(state.ReserveCurrency(), add); err != nil {
				return err
			}
			if err := stx.MintClaims(state.ReserveCurrency(), s.address, add); err != nil {
				return err
			}
			if state.ReserveIsToken0 {
				paid0 = paid0.Add(add)
			} else {
				paid1 = paid1.Add(add)
			}
		}
	}
	if charged0.IsPositive() {
		if err := tx.Settle(state.Currency0, charged0); err != nil {
			return err
		}
	}
	if charged1.IsPositive() {
		if err := tx.Settle(state.Currency1, charged1); err != nil {
			return err
		}
	}

	s.shares.Mint(action.PoolId, params.Sender, provided)
	ResyncReserve(state, tx.ClaimsBalance(state.ReserveCurrency(), s.address))
	action.Result = &ActionResult{Liquidity: provided, Amount0: paid0, Amount1: paid1}
	return nil
}

// amountsForDeposit values a liquidity-denominated deposit in token
// amounts, rounding the charge up the way the pool will.
func amountsForDeposit(pool *CorePool, sqrtA, sqrtB, liquidity decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if pool.SqrtPriceX96.LessThanOrEqual(sqrtA) {
		amount0, err := GetAmount0Delta(sqrtA, sqrtB, liquidity)
		return amount0, ZERO, err
	}
	if pool.SqrtPriceX96.LessThan(sqrtB) {
		amount0, err := GetAmount0Delta(pool.SqrtPriceX96, sqrtB, liquidity)
		if err != nil {
			return ZERO, ZERO, err
		}
		amount1, err := GetAmount1Delta(sqrtA, pool.SqrtPriceX96, liquidity)
		return amount0, amount1, err
	}
	amount1, err := GetAmount1Delta(sqrtA, sqrtB, liquidity)
	return ZERO, amount1, err
}

func (s *Strategy) handleWithdrawLiquidity(tx *PoolTx, action *Action) error {
	var params WithdrawLiquidityParams
	if err := json.Unmarshal(action.Params, &params); err != nil {
		return err
	}
	if !params.ShareAmount.IsPositive() {
		return fmt.Errorf("withdraw amount must be positive, got %s", params.ShareAmount.String())
	}
	held := s.shares.BalanceOf(action.PoolId, params.Sender)
	if held.LessThan(params.ShareAmount) {
		return fmt.Errorf("%w: holder %s owns %s shares, requested %s", ErrInsufficientLiquidity, params.Sender, held.String(), params.ShareAmount.String())
	}
	state, err := s.registry.GetState(action.PoolId)
	if err != nil {
		return err
	}
	pool, err := tx.Pool(action.PoolId)
	if err != nil {
		return err
	}
	bounds := state.CurrentPosition

	positionLiquidity := s.positionLiquidity(pool, state)
	reserveLiquidity, err := ReserveLiquidity(state.ReserveIsToken0, state.ReserveAmount, pool.SqrtPriceX96, bounds)
	if err != nil {
		return err
	}
	fromPosition, fromReserve := WithdrawSplit(params.ShareAmount, reserveLiquidity, positionLiquidity)
	if fromPosition.GreaterThan(positionLiquidity) {
		return fmt.Errorf("%w: position holds %s liquidity, withdrawal needs %s", ErrInsufficientLiquidity, positionLiquidity.String(), fromPosition.String())
	}

	stx := tx.WithSender(s.address)
	returned0, returned1 := ZERO, ZERO
	if fromPosition.IsPositive() {
		returned0, returned1, err = stx.ModifyLiquidity(action.PoolId, bounds.Lower, bounds.Upper, fromPosition.Neg())
		if err != nil {
			return err
		}
	}
	release := ZERO
	if fromReserve.IsPositive() {
		release = ProportionalShare(state.ReserveAmount, fromReserve, reserveLiquidity)
		if release.IsPositive() {
			if err := stx.BurnClaims(state.ReserveCurrency(), s.address, release); err != nil {
				return err
			}
		}
	}

	total0, total1 := returned0, returned1
	if release.IsPositive() {
		if state.ReserveIsToken0 {
			total0 = total0.Add(release)
		} else {
			total1 = total1.Add(release)
		}
	}
	if total0.IsPositive() {
		if err := tx.Take(state.Currency0, params.Sender, total0); err != nil {
			return err
		}
	}
	if total1.IsPositive() {
		if err := tx.Take(state.Currency1, params.Sender, total1); err != nil {
			return err
		}
	}

	if err := s.shares.Burn(action.PoolId, params.Sender, params.ShareAmount); err != nil {
		return err
	}
	ResyncReserve(state, tx.ClaimsBalance(state.ReserveCurrency(), s.address))
	action.Result = &ActionResult{Liquidity: params.ShareAmount, Amount0: total0, Amount1: total1}
	return nil
}

func (s *Strategy) handleShiftPosition(tx *PoolTx, action *Action) error {
	var params ShiftPositionParams
	if err := json.Unmarshal(action.Params, &params); err != nil {
		return err
	}
	state, err := s.registry.GetState(action.PoolId)
	if err != nil {
		return err
	}
	config, err := s.registry.GetConfig(action.PoolId)
	if err != nil {
		return err
	}
	pool, err := tx.Pool(action.PoolId)
	if err != nil {
		return err
	}
	newBounds := ComputeNewBounds(AlignTick(params.CenterTick, state.TickSpacing), config)
	oldBounds := state.CurrentPosition
	positionLiquidity := s.positionLiquidity(pool, state)

	if positionLiquidity.IsZero() || newBounds == oldBounds {
		state.CurrentPosition = newBounds
		if params.UpdateBaseline {
			state.BaselineTick = params.CenterTick
			state.BaselinePosition = newBounds
		}
		action.Result = &ActionResult{Liquidity: positionLiquidity, Amount0: ZERO, Amount1: ZERO}
		return nil
	}

	mark := markDeltas(tx, state)
	stx := tx.WithSender(s.address)
	if _, _, err := stx.ModifyLiquidity(action.PoolId, oldBounds.Lower, oldBounds.Upper, positionLiquidity.Neg()); err != nil {
		return err
	}
	charged0, charged1, err := stx.ModifyLiquidity(action.PoolId, newBounds.Lower, newBounds.Upper, positionLiquidity)
	if err != nil {
		return err
	}
	state.CurrentPosition = newBounds
	if params.UpdateBaseline {
		state.BaselineTick = params.CenterTick
		state.BaselinePosition = newBounds
	}
	if err := s.reconcileDeltas(tx, mark); err != nil {
		return err
	}
	ResyncReserve(state, tx.ClaimsBalance(state.ReserveCurrency(), s.address))
	action.Result = &ActionResult{Liquidity: positionLiquidity, Amount0: charged0, Amount1: charged1}
	return nil
}

func (s *Strategy) handleCompensateILSwap(tx *PoolTx, action *Action) error {
	var params CompensateILParams
	if err := json.Unmarshal(action.Params, &params); err != nil {
		return err
	}
	if !params.Amount.IsPositive() {
		return nil
	}
	state, err := s.registry.GetState(action.PoolId)
	if err != nil {
		return err
	}
	pool, err := tx.Pool(action.PoolId)
	if err != nil {
		return err
	}
	bounds := state.CurrentPosition
	sqrtA, sqrtB, err := bounds.SqrtRatios()
	if err != nil {
		return err
	}
	positionLiquidity := s.positionLiquidity(pool, state)
	mark := markDeltas(tx, state)
	stx := tx.WithSender(s.address)
	delivered0, delivered1 := ZERO, ZERO

	if state.ReserveIsToken0 == params.BuyToken0 {
		// the reserve already holds the bought token; only the remainder
		// beyond it needs acquiring
		remainder := params.Amount.Sub(state.ReserveAmount)
		if remainder.IsPositive() {
			delivered0, delivered1, err = s.executor.ExecuteCompensation(stx, action.PoolId, !params.BuyToken0, remainder.Neg())
			if err != nil {
				return err
			}
			sellPaid := delivered0
			if params.BuyToken0 {
				sellPaid = delivered1
			}
			// remove just enough liquidity to fund the sold side, a two
			// wei pad absorbs the rounding between sizing and removal
			target := sellPaid.Add(decimal.NewFromInt(2))
			var fund decimal.Decimal
			if params.BuyToken0 {
				span := pool.SqrtPriceX96
				if span.GreaterThan(sqrtB) {
					span = sqrtB
				}
				fund = GetLiquidityForAmount1(sqrtA, span, target)
			} else {
				span := pool.SqrtPriceX96
				if span.LessThan(sqrtA) {
					span = sqrtA
				}
				fund = GetLiquidityForAmount0(span, sqrtB, target)
			}
			if fund.GreaterThan(positionLiquidity) {
				return fmt.Errorf("%w: funding the trade needs %s liquidity, position holds %s", ErrInsufficientLiquidity, fund.String(), positionLiquidity.String())
			}
			if fund.IsPositive() {
				if _, _, err := stx.ModifyLiquidity(action.PoolId, bounds.Lower, bounds.Upper, fund.Neg()); err != nil {
					return err
				}
			}
		}
	} else {
		// the reserve holds the sold token: draw the loss's liquidity
		// equivalent from the position and buy the full amount, claims
		// absorb the sold-side shortfall
		liquidityToSwap := LiquidityForTokenAmount(params.BuyToken0, pool.SqrtPriceX96, sqrtA, sqrtB, params.Amount)
		if liquidityToSwap.GreaterThan(positionLiquidity) {
			liquidityToSwap = positionLiquidity
		}
		if liquidityToSwap.IsPositive() {
			if _, _, err := stx.ModifyLiquidity(action.PoolId, bounds.Lower, bounds.Upper, liquidityToSwap.Neg()); err != nil {
				return err
			}
		}
		delivered0, delivered1, err = s.executor.ExecuteCompensation(stx, action.PoolId, !params.BuyToken0, params.Amount.Neg())
		if err != nil {
			return err
		}
	}

	state.ReserveIsToken0 = params.BuyToken0
	if err := s.reconcileDeltas(tx, mark); err != nil {
		return err
	}
	ResyncReserve(state, tx.ClaimsBalance(state.ReserveCurrency(), s.address))
	action.Result = &ActionResult{Liquidity: ZERO, Amount0: delivered0, Amount1: delivered1}
	return nil
}

// FlushActions appends any not yet persisted action log rows.
func (s *Strategy) FlushActions(db *gorm.DB) error {
	for ; s.flushedActions < len(s.actionLog); s.flushedActions++ {
		if err := db.Create(s.actionLog[s.flushedActions]).Error; err != nil {
			return err
		}
	}
	return nil
}
