package uniswap_v4_hedger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAction(t *testing.T) {
	params := AddLiquidityParams{
		Sender:  testLP,
		Amount0: e18(5),
		Amount1: e18(7),
	}
	action, err := NewAction(ActionAddLiquidity, "pool-1", params)
	require.NoError(t, err)
	require.NotEmpty(t, action.Id)
	require.Equal(t, ActionAddLiquidity, action.Type)
	require.Equal(t, "pool-1", action.PoolId)

	var decoded AddLiquidityParams
	require.NoError(t, json.Unmarshal(action.Params, &decoded))
	require.Equal(t, params.Sender, decoded.Sender)
	require.True(t, decoded.Amount0.Equal(e18(5)))
	require.True(t, decoded.Amount1.Equal(e18(7)))

	other, err := NewAction(ActionAddLiquidity, "pool-1", params)
	require.NoError(t, err)
	require.NotEqual(t, action.Id, other.Id)
}

func TestDispatchUnknownAction(t *testing.T) {
	pm, strat, _, poolId := newTestStrategy(t, strategyTestConfig())

	action, err := NewAction(ActionType("SELF_DESTRUCT"), poolId, struct{}{})
	require.NoError(t, err)
	err = pm.Unlock(strat.Address(), ZERO, func(tx *PoolTx) error {
		return strat.Dispatch(tx, action)
	})
	require.ErrorIs(t, err, ErrUnknownAction)

	record := strat.LastDispatch(poolId)
	require.Equal(t, ActionType("SELF_DESTRUCT"), record.Type)
	require.Equal(t, PhaseRolledBack, record.Phase)
	require.Contains(t, record.Error, "SELF_DESTRUCT")
}
