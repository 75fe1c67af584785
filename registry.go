package uniswap_v4_hedger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TickRange is a pair of position bounds.
type TickRange struct {
	Lower int `json:"lower"`
	Upper int `json:"upper"`
}

func (r TickRange) Width() int {
	return r.Upper - r.Lower
}

// SqrtRatios returns the sqrt prices at both bounds.
func (r TickRange) SqrtRatios() (decimal.Decimal, decimal.Decimal, error) {
	sqrtA, err := GetSqrtRatioAtTick(r.Lower)
	if err != nil {
		return ZERO, ZERO, err
	}
	sqrtB, err := GetSqrtRatioAtTick(r.Upper)
	if err != nil {
		return ZERO, ZERO, err
	}
	return sqrtA, sqrtB, nil
}

// PoolConfig holds the owner-set strategy parameters for one pool. Range
// offsets are ticks relative to the reference tick, shift distances are
// ticks relative to the live position's own bounds, trigger fractions are
// Q96 fixed-point where 2^96 means 100%.
type PoolConfig struct {
	PositionRangeLower int             `json:"position_range_lower"`
	PositionRangeUpper int             `json:"position_range_upper"`
	ShiftLowerDistance int             `json:"shift_lower_distance"`
	ShiftUpperDistance int             `json:"shift_upper_distance"`
	IL0TriggerFraction decimal.Decimal `json:"il0_trigger_fraction"`
	IL1TriggerFraction decimal.Decimal `json:"il1_trigger_fraction"`
}

func (c *PoolConfig) Validate(tickSpacing int) error {
	if c.PositionRangeLower == 0 && c.PositionRangeUpper == 0 {
		return fmt.Errorf("%w: position range offsets are both zero", ErrInvalidConfig)
	}
	if c.PositionRangeLower >= c.PositionRangeUpper {
		return fmt.Errorf("%w: position range [%d, %d] has no width", ErrInvalidConfig, c.PositionRangeLower, c.PositionRangeUpper)
	}
	if tickSpacing > 0 {
		if c.PositionRangeLower%tickSpacing != 0 || c.PositionRangeUpper%tickSpacing != 0 {
			return fmt.Errorf("%w: position range offsets must align to tick spacing %d", ErrInvalidConfig, tickSpacing)
		}
	}
	if c.IL0TriggerFraction.IsNegative() || c.IL1TriggerFraction.IsNegative() {
		return fmt.Errorf("%w: trigger fractions must not be negative", ErrInvalidConfig)
	}
	return nil
}

// GormDataType for GORM integration
func (c *PoolConfig) GormDataType() string {
	return "LONGTEXT"
}

// Scan for GORM integration
func (c *PoolConfig) Scan(value interface{}) error {
	var err error
	switch v := value.(type) {
	case []byte:
		err = json.Unmarshal(v, c)
	case string:
		err = json.Unmarshal([]byte(v), c)
	case nil:
		return nil
	default:
		err = errors.New(fmt.Sprint("Failed to unmarshal PoolConfig value:", value))
	}
	return err
}

// Value for GORM integration
func (c *PoolConfig) Value() (driver.Value, error) {
	bs, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

// PoolState is the live accounting record for one managed pool. Created at
// pool initialization, mutated by the dispatcher handlers, never removed.
type PoolState struct {
	PoolId           string          `json:"pool_id"`
	Currency0        string          `json:"currency0"`
	Currency1        string          `json:"currency1"`
	Fee              int             `json:"fee"`
	TickSpacing      int             `json:"tick_spacing"`
	HooksAddress     string          `json:"hooks_address"`
	LastKnownTick    int             `json:"last_known_tick"`
	CurrentPosition  TickRange       `json:"current_position"`
	BaselineTick     int             `json:"baseline_tick"`
	BaselinePosition TickRange       `json:"baseline_position"`
	ReserveIsToken0  bool            `json:"reserve_is_token0"`
	ReserveAmount    decimal.Decimal `json:"reserve_amount"`
}

func (s *PoolState) Clone() *PoolState {
	c := *s
	return &c
}

// ReserveCurrency returns the currency the reserve buffer currently holds.
func (s *PoolState) ReserveCurrency() string {
	if s.ReserveIsToken0 {
		return s.Currency0
	}
	return s.Currency1
}

// GormDataType for GORM integration
func (s *PoolState) GormDataType() string {
	return "LONGTEXT"
}

// Scan for GORM integration
func (s *PoolState) Scan(value interface{}) error {
	var err error
	switch v := value.(type) {
	case []byte:
		err = json.Unmarshal(v, s)
	case string:
		err = json.Unmarshal([]byte(v), s)
	case nil:
		return nil
	default:
		err = errors.New(fmt.Sprint("Failed to unmarshal PoolState value:", value))
	}
	return err
}

// Value for GORM integration
func (s *PoolState) Value() (driver.Value, error) {
	bs, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

// PoolRecord is the persisted row for one managed pool.
type PoolRecord struct {
	gorm.Model
	PoolId string      `gorm:"index"`
	Config *PoolConfig `json:"config"`
	State  *PoolState  `json:"state"`
}

// PoolRegistry maps pool ids to their config and live state. It is a plain
// store: validation and bound computation stay with the callers.
type PoolRegistry struct {
	mu      sync.RWMutex
	configs map[string]*PoolConfig
	states  map[string]*PoolState
	created map[string]bool
}

func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{
		configs: make(map[string]*PoolConfig),
		states:  make(map[string]*PoolState),
		created: make(map[string]bool),
	}
}

func (r *PoolRegistry) SetConfig(poolId string, config PoolConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[poolId] = &config
}

func (r *PoolRegistry) GetConfig(poolId string) (PoolConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[poolId]
	if !ok {
		return PoolConfig{}, fmt.Errorf("%w: no config for pool %s", ErrInvalidPool, poolId)
	}
	return *config, nil
}

func (r *PoolRegistry) HasConfig(poolId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.configs[poolId]
	return ok
}

// InitializeState records the state for a pool seen for the first time.
// A config must have been set beforehand.
func (r *PoolRegistry) InitializeState(poolId string, state *PoolState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[poolId]; !ok {
		return fmt.Errorf("%w: no config set for pool %s", ErrInvalidPool, poolId)
	}
	if _, ok := r.states[poolId]; ok {
		return fmt.Errorf("%w: state for pool %s already initialized", ErrInvalidPool, poolId)
	}
	r.states[poolId] = state
	return nil
}

// GetState returns the live state record. Callers inside an unlock window
// may mutate it; the strategy's snapshot hooks make that safe.
func (r *PoolRegistry) GetState(poolId string) (*PoolState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[poolId]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s not initialized", ErrInvalidPool, poolId)
	}
	return state, nil
}

// RecoverPoolKey rebuilds the external pool key from the stored state.
func (r *PoolRegistry) RecoverPoolKey(poolId string) (PoolKey, error) {
	state, err := r.GetState(poolId)
	if err != nil {
		return PoolKey{}, err
	}
	return PoolKey{
		Currency0:   common.HexToAddress(state.Currency0),
		Currency1:   common.HexToAddress(state.Currency1),
		Fee:         state.Fee,
		TickSpacing: state.TickSpacing,
		Hooks:       common.HexToAddress(state.HooksAddress),
	}, nil
}

func (r *PoolRegistry) Pools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type registrySnapshot struct {
	configs map[string]*PoolConfig
	states  map[string]*PoolState
}

func (r *PoolRegistry) Snapshot() interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := &registrySnapshot{
		configs: make(map[string]*PoolConfig, len(r.configs)),
		states:  make(map[string]*PoolState, len(r.states)),
	}
	for id, config := range r.configs {
		c := *config
		snap.configs[id] = &c
	}
	for id, state := range r.states {
		snap.states[id] = state.Clone()
	}
	return snap
}

func (r *PoolRegistry) Restore(snapshot interface{}) {
	snap, ok := snapshot.(*registrySnapshot)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = snap.configs
	r.states = snap.states
}

// LoadRecord installs a persisted pool row, marked flushed so the next
// Flush updates it in place.
func (r *PoolRegistry) LoadRecord(record *PoolRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.Config != nil {
		config := *record.Config
		r.configs[record.PoolId] = &config
	}
	if record.State != nil {
		r.states[record.PoolId] = record.State.Clone()
	}
	r.created[record.PoolId] = true
}

// Flush persists one record per pool that has at least a config.
func (r *PoolRegistry) Flush(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		record := &PoolRecord{
			PoolId: id,
			Config: r.configs[id],
			State:  r.states[id],
		}
		if r.created[id] {
			err := db.Model(&PoolRecord{}).Where("pool_id = ?", id).Updates(map[string]interface{}{
				"config": record.Config,
				"state":  record.State,
			}).Error
			if err != nil {
				return err
			}
		} else {
			if err := db.Create(record).Error; err != nil {
				return err
			}
			r.created[id] = true
		}
	}
	return nil
}
