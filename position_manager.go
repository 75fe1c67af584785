package uniswap_v4_hedger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type PositionManager struct {
	Positions map[string]*Position `json:"positions"`
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		Positions: map[string]*Position{},
	}
}

func (pm *PositionManager) GetPositionAndInitIfAbsent(key string) *Position {
	if p, ok := pm.Positions[key]; ok {
		return p
	}
	p := NewPosition()
	pm.Positions[key] = p
	return p
}

func (pm *PositionManager) GetPositionReadonly(owner string, tickLower, tickUpper int) *Position {
	key := GetPositionKey(owner, tickLower, tickUpper)
	if p, ok := pm.Positions[key]; ok {
		return p.Clone()
	}
	return NewPosition()
}

// CollectPosition pays out owed tokens up to the requested amounts.
func (pm *PositionManager) CollectPosition(owner string, tickLower, tickUpper int, amount0Requested, amount1Requested decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if amount0Requested.IsNegative() || amount1Requested.IsNegative() {
		return ZERO, ZERO, errors.New("collect amounts should not be negative")
	}
	key := GetPositionKey(owner, tickLower, tickUpper)
	position, ok := pm.Positions[key]
	if !ok {
		return ZERO, ZERO, nil
	}
	amount0 := decimal.Min(amount0Requested, position.TokensOwed0)
	amount1 := decimal.Min(amount1Requested, position.TokensOwed1)
	position.TokensOwed0 = position.TokensOwed0.Sub(amount0)
	position.TokensOwed1 = position.TokensOwed1.Sub(amount1)
	if position.IsEmpty() {
		delete(pm.Positions, key)
	}
	return amount0, amount1, nil
}

func (pm *PositionManager) Clone() *PositionManager {
	newManager := NewPositionManager()
	for key, p := range pm.Positions {
		newManager.Positions[key] = p.Clone()
	}
	return newManager
}

// GormDataType for GORM integration
func (pm *PositionManager) GormDataType() string {
	return "LONGTEXT"
}

// Scan for GORM integration
func (pm *PositionManager) Scan(value interface{}) error {
	var err error
	switch v := value.(type) {
	case []byte:
		err = json.Unmarshal(v, pm)
	case string:
		err = json.Unmarshal([]byte(v), pm)
	case nil:
		return nil
	default:
		err = errors.New(fmt.Sprint("Failed to unmarshal PositionManager value:", value))
	}
	return err
}

// Value for GORM integration
func (pm *PositionManager) Value() (driver.Value, error) {
	bs, err := json.Marshal(pm)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}
