package uniswap_v4_hedger

import (
	"encoding/json"
	"fmt"
)

// ParseActionParams decodes a persisted action row's params back into the
// typed form the dispatcher handler consumed.
func ParseActionParams(actionType ActionType, raw []byte) (interface{}, error) {
	switch actionType {
	case ActionAddLiquidity:
		var params AddLiquidityParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", actionType, err)
		}
		return &params, nil
	case ActionWithdrawLiquidity:
		var params WithdrawLiquidityParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", actionType, err)
		}
		return &params, nil
	case ActionShiftPosition:
		var params ShiftPositionParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", actionType, err)
		}
		return &params, nil
	case ActionCompensateILSwap:
		var params CompensateILParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", actionType, err)
		}
		return &params, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, string(actionType))
	}
}

// SummarizeActionRecord renders one action log row as a single line. Rows
// whose params no longer decode fall back to the bare type and phase.
func SummarizeActionRecord(record *ActionRecord) string {
	params, err := ParseActionParams(ActionType(record.Type), []byte(record.Params))
	if err != nil {
		return fmt.Sprintf("%s pool %s phase %s", record.Type, record.PoolId, record.Phase)
	}
	var detail string
	switch p := params.(type) {
	case *AddLiquidityParams:
		if p.LiquidityUnits.IsPositive() {
			detail = fmt.Sprintf("sender %s units %s", p.Sender, p.LiquidityUnits)
		} else {
			detail = fmt.Sprintf("sender %s amounts (%s, %s)", p.Sender, p.Amount0, p.Amount1)
		}
	case *WithdrawLiquidityParams:
		detail = fmt.Sprintf("sender %s shares %s", p.Sender, p.ShareAmount)
	case *ShiftPositionParams:
		detail = fmt.Sprintf("center %d refresh_baseline %t", p.CenterTick, p.UpdateBaseline)
	case *CompensateILParams:
		side := "token1"
		if p.BuyToken0 {
			side = "token0"
		}
		detail = fmt.Sprintf("buy %s amount %s", side, p.Amount)
	}
	return fmt.Sprintf("%s pool %s %s phase %s paid (%s, %s)",
		record.Type, record.PoolId, detail, record.Phase, record.Amount0, record.Amount1)
}
