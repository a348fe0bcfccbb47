package amm

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// FeeDenominator is the fee tier scale: 3000 is 0.30%.
const FeeDenominator = 1_000_000

// DefaultFeeTiers is the fee-tier allow-list used when none is configured.
var DefaultFeeTiers = []uint32{500, 2500, 3000, 10000}

// PoolKey identifies a pool by its sorted token pair and fee tier.
type PoolKey common.Hash

// PoolKeyFor derives the canonical key for an unordered token pair.
func PoolKeyFor(tokenA, tokenB common.Address, feeTier uint32) PoolKey {
	token0, token1 := SortTokens(tokenA, tokenB)
	fee := []byte{byte(feeTier >> 16), byte(feeTier >> 8), byte(feeTier)}
	return PoolKey(crypto.Keccak256Hash(token0.Bytes(), token1.Bytes(), fee))
}

// SortTokens orders a pair canonically (lower address first).
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// ParsePoolKey parses a 0x-prefixed 32-byte hex key.
func ParsePoolKey(input string) (PoolKey, error) {
	data, err := hexutil.Decode(input)
	if err != nil {
		return PoolKey{}, fmt.Errorf("invalid pool key: %s", input)
	}
	if len(data) != common.HashLength {
		return PoolKey{}, fmt.Errorf("invalid pool key length: %s", input)
	}
	return PoolKey(common.BytesToHash(data)), nil
}

func (k PoolKey) Hash() common.Hash { return common.Hash(k) }

func (k PoolKey) Hex() string { return common.Hash(k).Hex() }

func (k PoolKey) String() string { return k.Hex() }

func (k PoolKey) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

func (k *PoolKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePoolKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
