package uniswap_v4_hedger

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolKey identifies a pool by its currency pair, fee tier, tick spacing and
// attached hook. Currencies are ordered; currency0 may be the native token
// (zero address).
type PoolKey struct {
	Currency0   common.Address `json:"currency0"`
	Currency1   common.Address `json:"currency1"`
	Fee         int            `json:"fee"`
	TickSpacing int            `json:"tick_spacing"`
	Hooks       common.Address `json:"hooks"`
}

func (k PoolKey) Validate() error {
	if bytes.Compare(k.Currency0.Bytes(), k.Currency1.Bytes()) >= 0 {
		return fmt.Errorf("%w: currencies out of order", ErrInvalidPool)
	}
	if k.Fee < 0 || k.Fee > MAX_FEE_PIPS {
		return fmt.Errorf("%w: fee %d out of range", ErrInvalidPool, k.Fee)
	}
	if k.TickSpacing <= 0 || k.TickSpacing > MAX_TICK {
		return fmt.Errorf("%w: tick spacing %d out of range", ErrInvalidPool, k.TickSpacing)
	}
	return nil
}

// ToId hashes the key's five fields, each left-padded to a 32-byte word, the
// same encoding the pool controller uses on chain.
func (k PoolKey) ToId() common.Hash {
	buf := make([]byte, 0, 160)
	buf = append(buf, common.LeftPadBytes(k.Currency0.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(k.Currency1.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(int64(k.Fee)).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(int64(k.TickSpacing)).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(k.Hooks.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

func (k PoolKey) HasNative() bool {
	return k.Currency0 == NativeCurrency
}

func (k PoolKey) HasHooks() bool {
	return k.Hooks != (common.Address{})
}
