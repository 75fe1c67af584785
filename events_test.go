package uniswap_v4_hedger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventSignatures(t *testing.T) {
	require.Equal(t,
		"0xdd466e674ea557f56295e2d0218a125ea4b4f0f6f3307b95f85e6110838d6438",
		PoolManagerInitializeSig.Hex())
	require.NotEqual(t, PoolManagerInitializeSig, PoolManagerModifyLiquiditySig)
	require.NotEqual(t, PoolManagerModifyLiquiditySig, PoolManagerSwapSig)

	var init InitializeEvent
	require.Equal(t, PoolManagerInitializeSig, init.Sig())
	var swap SwapEvent
	require.Equal(t, PoolManagerSwapSig, swap.Sig())
}

func TestEventJournalLastSwap(t *testing.T) {
	journal := NewEventJournal()
	require.Nil(t, journal.LastSwap("p1"))

	journal.AppendSwap(&SwapEvent{PoolId: "p1", Tick: 5})
	journal.AppendSwap(&SwapEvent{PoolId: "p2", Tick: 9})
	journal.AppendSwap(&SwapEvent{PoolId: "p1", Tick: 7})

	last := journal.LastSwap("p1")
	require.NotNil(t, last)
	require.Equal(t, 7, last.Tick)
	require.Equal(t, 9, journal.LastSwap("p2").Tick)
	require.Nil(t, journal.LastSwap("p3"))
}

func TestEventJournalCloneIsolation(t *testing.T) {
	journal := NewEventJournal()
	journal.AppendSwap(&SwapEvent{PoolId: "p1", Tick: 1})

	clone := journal.Clone()
	journal.AppendSwap(&SwapEvent{PoolId: "p1", Tick: 2})
	journal.AppendInitialize(&InitializeEvent{PoolId: "p1"})

	require.Equal(t, 1, clone.LastSwap("p1").Tick)
	require.Len(t, clone.Swaps, 1)
	require.Empty(t, clone.Initializations)
}
