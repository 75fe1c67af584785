package uniswap_v4_hedger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// TickManager tracks every tick a position references, keyed by tick index.
// Word-bitmap compression is unnecessary off-chain; an ordered scan over the
// initialized set serves the swap loop.
type TickManager struct {
	Ticks map[int]*Tick `json:"ticks"`
}

func NewTickManager() *TickManager {
	return &TickManager{
		Ticks: map[int]*Tick{},
	}
}

func (tm *TickManager) GetTickAndInitIfAbsent(tickIndex int) (*Tick, error) {
	if tickIndex < MIN_TICK || tickIndex > MAX_TICK {
		return nil, errors.New("tick index out of range")
	}
	if t, ok := tm.Ticks[tickIndex]; ok {
		return t, nil
	}
	t := NewTick(tickIndex)
	tm.Ticks[tickIndex] = t
	return t, nil
}

func (tm *TickManager) GetTickReadonly(tickIndex int) *Tick {
	if t, ok := tm.Ticks[tickIndex]; ok {
		return t.Clone()
	}
	return NewTick(tickIndex)
}

func (tm *TickManager) sortedInitializedTicks() []int {
	indexes := make([]int, 0, len(tm.Ticks))
	for idx, t := range tm.Ticks {
		if t.Initialized() {
			indexes = append(indexes, idx)
		}
	}
	sort.Ints(indexes)
	return indexes
}

// GetNextInitializedTick finds the next initialized tick in swap direction:
// the greatest initialized tick at or below the current one for zeroForOne,
// the least initialized tick above it otherwise. Falls back to the tick range
// boundary when none exists.
func (tm *TickManager) GetNextInitializedTick(tick int, tickSpacing int, zeroForOne bool) (int, bool, error) {
	if tick < MIN_TICK || tick > MAX_TICK {
		return 0, false, errors.New("tick index out of range")
	}
	indexes := tm.sortedInitializedTicks()
	if zeroForOne {
		for i := len(indexes) - 1; i >= 0; i-- {
			if indexes[i] <= tick {
				return indexes[i], true, nil
			}
		}
		return MIN_TICK, false, nil
	}
	for _, idx := range indexes {
		if idx > tick {
			return idx, true, nil
		}
	}
	return MAX_TICK, false, nil
}

// GetFeeGrowthInside computes fee growth accumulated between two ticks, using
// the outside snapshots relative to the current tick.
func (tm *TickManager) GetFeeGrowthInside(tickLower, tickUpper, tickCurrent int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if tickLower >= tickUpper {
		return ZERO, ZERO, errors.New("tickLower should lower than tickUpper")
	}
	lower := tm.GetTickReadonly(tickLower)
	upper := tm.GetTickReadonly(tickUpper)

	var below0, below1 decimal.Decimal
	if tickCurrent >= tickLower {
		below0 = lower.FeeGrowthOutside0X128
		below1 = lower.FeeGrowthOutside1X128
	} else {
		below0 = feeGrowthGlobal0X128.Sub(lower.FeeGrowthOutside0X128)
		below1 = feeGrowthGlobal1X128.Sub(lower.FeeGrowthOutside1X128)
	}

	var above0, above1 decimal.Decimal
	if tickCurrent < tickUpper {
		above0 = upper.FeeGrowthOutside0X128
		above1 = upper.FeeGrowthOutside1X128
	} else {
		above0 = feeGrowthGlobal0X128.Sub(upper.FeeGrowthOutside0X128)
		above1 = feeGrowthGlobal1X128.Sub(upper.FeeGrowthOutside1X128)
	}
	inside0 := feeGrowthGlobal0X128.Sub(below0).Sub(above0)
	inside1 := feeGrowthGlobal1X128.Sub(below1).Sub(above1)
	return inside0, inside1, nil
}

func (tm *TickManager) Clear(tickIndex int) {
	delete(tm.Ticks, tickIndex)
}

func (tm *TickManager) Clone() *TickManager {
	newManager := NewTickManager()
	for idx, t := range tm.Ticks {
		newManager.Ticks[idx] = t.Clone()
	}
	return newManager
}

// GormDataType for GORM integration
func (tm *TickManager) GormDataType() string {
	return "LONGTEXT"
}

// Scan for GORM integration
func (tm *TickManager) Scan(value interface{}) error {
	var err error
	switch v := value.(type) {
	case []byte:
		err = json.Unmarshal(v, tm)
	case string:
		err = json.Unmarshal([]byte(v), tm)
	case nil:
		return nil
	default:
		err = errors.New(fmt.Sprint("Failed to unmarshal TickManager value:", value))
	}
	return err
}

// Value for GORM integration
func (tm *TickManager) Value() (driver.Value, error) {
	bs, err := json.Marshal(tm)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}
