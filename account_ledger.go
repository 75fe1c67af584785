package uniswap_v4_hedger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountLedger tracks token balances per currency per owner. The engine
// keeps two of them: one for external wallet balances and one for claim
// tokens minted against the pool manager's reserves.
type AccountLedger struct {
	Balances map[string]map[string]decimal.Decimal `json:"balances"`
}

func NewAccountLedger() *AccountLedger {
	return &AccountLedger{
		Balances: make(map[string]map[string]decimal.Decimal),
	}
}

func (al *AccountLedger) BalanceOf(currency, owner string) decimal.Decimal {
	owners, ok := al.Balances[currency]
	if !ok {
		return ZERO
	}
	balance, ok := owners[owner]
	if !ok {
		return ZERO
	}
	return balance
}

func (al *AccountLedger) Credit(currency, owner string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	owners, ok := al.Balances[currency]
	if !ok {
		owners = make(map[string]decimal.Decimal)
		al.Balances[currency] = owners
	}
	owners[owner] = al.BalanceOf(currency, owner).Add(amount)
}

func (al *AccountLedger) Debit(currency, owner string, amount decimal.Decimal) error {
	balance := al.BalanceOf(currency, owner)
	if balance.LessThan(amount) {
		return fmt.Errorf("insufficient balance of %s for %s: have %s, need %s", currency, owner, balance.String(), amount.String())
	}
	remaining := balance.Sub(amount)
	if remaining.IsZero() {
		delete(al.Balances[currency], owner)
		if len(al.Balances[currency]) == 0 {
			delete(al.Balances, currency)
		}
	} else {
		al.Balances[currency][owner] = remaining
	}
	return nil
}

func (al *AccountLedger) Clone() *AccountLedger {
	newLedger := NewAccountLedger()
	for currency, owners := range al.Balances {
		newOwners := make(map[string]decimal.Decimal, len(owners))
		for owner, balance := range owners {
			newOwners[owner] = balance
		}
		newLedger.Balances[currency] = newOwners
	}
	return newLedger
}

// GormDataType for GORM integration
func (al *AccountLedger) GormDataType() string {
	return "LONGTEXT"
}

// Scan for GORM integration
func (al *AccountLedger) Scan(value interface{}) error {
	var err error
	switch v := value.(type) {
	case []byte:
		err = json.Unmarshal(v, al)
	case string:
		err = json.Unmarshal([]byte(v), al)
	case nil:
		return nil
	default:
		err = errors.New(fmt.Sprint("Failed to unmarshal AccountLedger value:", value))
	}
	return err
}

// Value for GORM integration
func (al *AccountLedger) Value() (driver.Value, error) {
	bs, err := json.Marshal(al)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}
