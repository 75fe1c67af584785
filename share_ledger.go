package uniswap_v4_hedger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShareRecord is the persisted share balance for one holder in one pool.
type ShareRecord struct {
	gorm.Model
	PoolId  string `gorm:"index"`
	Holder  string `gorm:"index"`
	Balance decimal.Decimal
}

// ShareLedger tracks LP ownership per pool. Shares are minted and burned
// one to one with liquidity units contributed and removed, so total supply
// follows net liquidity through the strategy.
type ShareLedger struct {
	mu       sync.RWMutex
	holdings map[string]map[string]decimal.Decimal
	supply   map[string]decimal.Decimal
	created  map[string]bool
}

func NewShareLedger() *ShareLedger {
	return &ShareLedger{
		holdings: make(map[string]map[string]decimal.Decimal),
		supply:   make(map[string]decimal.Decimal),
		created:  make(map[string]bool),
	}
}

func (sl *ShareLedger) Mint(poolId, holder string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	holders, ok := sl.holdings[poolId]
	if !ok {
		holders = make(map[string]decimal.Decimal)
		sl.holdings[poolId] = holders
	}
	holders[holder] = holders[holder].Add(amount)
	sl.supply[poolId] = sl.supply[poolId].Add(amount)
}

func (sl *ShareLedger) Burn(poolId, holder string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	holders := sl.holdings[poolId]
	balance := holders[holder]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: holder %s owns %s shares of pool %s, tried to burn %s", ErrInsufficientLiquidity, holder, balance.String(), poolId, amount.String())
	}
	// Zero balances stay in the map so Flush records the exit.
	holders[holder] = balance.Sub(amount)
	sl.supply[poolId] = sl.supply[poolId].Sub(amount)
	return nil
}

func (sl *ShareLedger) BalanceOf(poolId, holder string) decimal.Decimal {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.holdings[poolId][holder]
}

func (sl *ShareLedger) TotalSupply(poolId string) decimal.Decimal {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.supply[poolId]
}

type shareSnapshot struct {
	holdings map[string]map[string]decimal.Decimal
	supply   map[string]decimal.Decimal
}

func (sl *ShareLedger) Snapshot() interface{} {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	snap := &shareSnapshot{
		holdings: make(map[string]map[string]decimal.Decimal, len(sl.holdings)),
		supply:   make(map[string]decimal.Decimal, len(sl.supply)),
	}
	for poolId, holders := range sl.holdings {
		copied := make(map[string]decimal.Decimal, len(holders))
		for holder, balance := range holders {
			copied[holder] = balance
		}
		snap.holdings[poolId] = copied
	}
	for poolId, total := range sl.supply {
		snap.supply[poolId] = total
	}
	return snap
}

func (sl *ShareLedger) Restore(snapshot interface{}) {
	snap, ok := snapshot.(*shareSnapshot)
	if !ok {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.holdings = snap.holdings
	sl.supply = snap.supply
}

// LoadRecord installs a persisted share row, marked flushed so the next
// Flush updates it in place.
func (sl *ShareLedger) LoadRecord(record *ShareRecord) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	holders, ok := sl.holdings[record.PoolId]
	if !ok {
		holders = make(map[string]decimal.Decimal)
		sl.holdings[record.PoolId] = holders
	}
	holders[record.Holder] = record.Balance
	sl.supply[record.PoolId] = sl.supply[record.PoolId].Add(record.Balance)
	sl.created[record.PoolId+"_"+record.Holder] = true
}

// Flush persists one row per (pool, holder), zero balances included so a
// fully exited holder keeps a row recording that.
func (sl *ShareLedger) Flush(db *gorm.DB) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	type entry struct {
		poolId, holder string
		balance        decimal.Decimal
	}
	entries := make([]entry, 0)
	for poolId, holders := range sl.holdings {
		for holder, balance := range holders {
			entries = append(entries, entry{poolId, holder, balance})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].poolId != entries[j].poolId {
			return entries[i].poolId < entries[j].poolId
		}
		return entries[i].holder < entries[j].holder
	})
	for _, e := range entries {
		key := e.poolId + "_" + e.holder
		if sl.created[key] {
			err := db.Model(&ShareRecord{}).Where("pool_id = ? AND holder = ?", e.poolId, e.holder).Update("balance", e.balance).Error
			if err != nil {
				return err
			}
		} else {
			record := &ShareRecord{PoolId: e.poolId, Holder: e.holder, Balance: e.balance}
			if err := db.Create(record).Error; err != nil {
				return err
			}
			sl.created[key] = true
		}
	}
	return nil
}
