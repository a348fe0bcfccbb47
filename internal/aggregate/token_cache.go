package aggregate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/chain"
	"ammcore/internal/dex"
)

// DecimalsSource resolves the decimals used to format a token's amounts.
type DecimalsSource interface {
	Decimals(ctx context.Context, token string) (uint8, error)
}

// TokenDecimals resolves decimals from configured overrides, then from the
// chain's ERC20 metadata.
type TokenDecimals struct {
	chain     *chain.Client
	cache     *dex.TokenMetaCache
	logger    *zap.Logger
	overrides map[common.Address]uint8
}

func NewTokenDecimals(chainClient *chain.Client, overrides map[string]uint8, logger *zap.Logger) (*TokenDecimals, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed := make(map[common.Address]uint8, len(overrides))
	for token, decimals := range overrides {
		token = strings.TrimSpace(token)
		if !common.IsHexAddress(token) {
			return nil, fmt.Errorf("invalid token address: %s", token)
		}
		parsed[common.HexToAddress(token)] = decimals
	}
	return &TokenDecimals{
		chain:     chainClient,
		cache:     dex.NewTokenMetaCache(),
		logger:    logger,
		overrides: parsed,
	}, nil
}

func (d *TokenDecimals) Decimals(ctx context.Context, token string) (uint8, error) {
	if !common.IsHexAddress(token) {
		return 0, fmt.Errorf("invalid token address: %s", token)
	}
	addr := common.HexToAddress(token)

	if decimals, ok := d.overrides[addr]; ok {
		return decimals, nil
	}
	if meta, ok := d.cache.Get(addr); ok {
		return meta.Decimals, nil
	}
	if d.chain == nil {
		return 0, fmt.Errorf("no decimals for %s", addr.Hex())
	}

	meta, err := dex.FetchTokenMeta(ctx, d.chain, addr, d.logger)
	if err != nil {
		return 0, err
	}
	d.cache.Set(addr, meta)
	return meta.Decimals, nil
}
