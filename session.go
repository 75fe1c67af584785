package uniswap_v4_hedger

import (
	"fmt"

	"gorm.io/gorm"
)

// LedgerRecord persists one account ledger as a single named row. A saved
// session keeps two: the external wallet balances and the claim tokens.
type LedgerRecord struct {
	gorm.Model
	Name   string `gorm:"uniqueIndex"`
	Ledger *AccountLedger
}

const (
	walletLedgerName = "wallet"
	claimsLedgerName = "claims"
)

// SessionModels lists every table a persisted session uses.
func SessionModels() []interface{} {
	return []interface{}{
		&CorePool{},
		&LedgerRecord{},
		&PoolRecord{},
		&ShareRecord{},
		&ActionRecord{},
	}
}

// SaveSession migrates the schema and persists the pool manager and the
// strategy in one pass, so a later LoadSession can pick the session up.
func SaveSession(db *gorm.DB, pm *PoolManager, strat *Strategy) error {
	if err := db.AutoMigrate(SessionModels()...); err != nil {
		return fmt.Errorf("migrate session schema: %w", err)
	}
	if err := pm.Flush(db); err != nil {
		return fmt.Errorf("flush pools: %w", err)
	}
	if err := pm.FlushLedgers(db); err != nil {
		return fmt.Errorf("flush ledgers: %w", err)
	}
	if err := strat.Flush(db); err != nil {
		return fmt.Errorf("flush strategy: %w", err)
	}
	return nil
}

// FlushLedgers persists the wallet and claim ledgers as named rows.
func (pm *PoolManager) FlushLedgers(db *gorm.DB) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	for _, row := range []struct {
		name   string
		ledger *AccountLedger
	}{
		{walletLedgerName, pm.wallet},
		{claimsLedgerName, pm.claims},
	} {
		var count int64
		if err := db.Model(&LedgerRecord{}).Where("name = ?", row.name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			err := db.Model(&LedgerRecord{}).Where("name = ?", row.name).Update("ledger", row.ledger).Error
			if err != nil {
				return err
			}
		} else {
			record := &LedgerRecord{Name: row.name, Ledger: row.ledger}
			if err := db.Create(record).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadSession rebuilds a pool manager and strategy from a saved session.
// The strategy registers under the same hook address it saved with, so
// pass the same WithAddress option if one was used originally. Loaded
// rows are marked flushed and update in place on the next save.
func LoadSession(db *gorm.DB, owner string, opts ...StrategyOption) (*PoolManager, *Strategy, error) {
	pm := NewPoolManager()

	var pools []*CorePool
	if err := db.Find(&pools).Error; err != nil {
		return nil, nil, fmt.Errorf("load pools: %w", err)
	}
	for _, pool := range pools {
		pm.pools[pool.PoolId] = pool
	}

	var ledgers []LedgerRecord
	if err := db.Find(&ledgers).Error; err != nil {
		return nil, nil, fmt.Errorf("load ledgers: %w", err)
	}
	for _, record := range ledgers {
		if record.Ledger == nil {
			continue
		}
		switch record.Name {
		case walletLedgerName:
			pm.wallet = record.Ledger
		case claimsLedgerName:
			pm.claims = record.Ledger
		}
	}

	registry := NewPoolRegistry()
	var poolRecords []PoolRecord
	if err := db.Find(&poolRecords).Error; err != nil {
		return nil, nil, fmt.Errorf("load pool records: %w", err)
	}
	for i := range poolRecords {
		registry.LoadRecord(&poolRecords[i])
	}

	shares := NewShareLedger()
	var shareRecords []ShareRecord
	if err := db.Find(&shareRecords).Error; err != nil {
		return nil, nil, fmt.Errorf("load share records: %w", err)
	}
	for i := range shareRecords {
		shares.LoadRecord(&shareRecords[i])
	}

	strat := NewStrategy(pm, owner,
		append([]StrategyOption{WithRegistry(registry), WithShareLedger(shares)}, opts...)...)
	return pm, strat, nil
}
