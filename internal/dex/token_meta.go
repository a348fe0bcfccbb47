package dex

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/chain"
	"ammcore/internal/model"
)

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// WarmTokenMeta loads metadata for tokens not yet cached. Failures are cached
// as address-only entries so each token is fetched at most once.
func WarmTokenMeta(ctx context.Context, chainClient *chain.Client, cache *TokenMetaCache, logger *zap.Logger, tokens ...common.Address) {
	if chainClient == nil || cache == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, token := range tokens {
		if _, ok := cache.Get(token); ok {
			continue
		}
		meta, err := FetchTokenMeta(ctx, chainClient, token, logger)
		if err != nil {
			logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
		}
		cache.Set(token, meta)
	}
}

// FetchTokenMeta reads decimals, symbol and name over ERC20 calls. Decimals
// are required; symbol and name are left empty when the token lacks them.
func FetchTokenMeta(ctx context.Context, chainClient *chain.Client, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if chainClient == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := erc20Reader{ctx: ctx, chain: chainClient, token: token}
	text, err := erc20Text.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := r.call(text, "decimals")
	if err != nil {
		return meta, err
	}
	if meta.Decimals, err = asUint8(values[0]); err != nil {
		return meta, err
	}

	for _, field := range []struct {
		method string
		dst    *string
	}{
		{"symbol", &meta.Symbol},
		{"name", &meta.Name},
	} {
		value, err := r.text(field.method)
		if err != nil {
			logger.Debug("erc20 call failed", zap.String("token", token.Hex()), zap.String("method", field.method), zap.Error(err))
			continue
		}
		*field.dst = value
	}
	return meta, nil
}

type erc20Reader struct {
	ctx   context.Context
	chain *chain.Client
	token common.Address
}

func (r erc20Reader) call(parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := r.chain.CallContract(r.ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

// text reads a string getter, retrying with the bytes32 encoding.
func (r erc20Reader) text(method string) (string, error) {
	if text, err := erc20Text.get(); err == nil {
		if values, err := r.call(text, method); err == nil {
			if s, ok := values[0].(string); ok {
				return s, nil
			}
		}
	}

	raw, err := erc20Bytes32.get()
	if err != nil {
		return "", fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	values, err := r.call(raw, method)
	if err != nil {
		return "", err
	}
	word, ok := values[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("unexpected %s type %T", method, values[0])
	}
	return string(bytes.TrimRight(word[:], "\x00")), nil
}
