package dex

import (
	"context"

	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/chain"
	"ammcore/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// PoolSource resolves pools whose PoolCreated log is not part of the input,
// e.g. from a persisted deployment state.
type PoolSource interface {
	PoolMeta(key amm.PoolKey) (model.PoolMeta, bool)
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	Context        context.Context
	Chain          *chain.Client
	PoolMetaCache  *PoolMetaCache
	TokenMetaCache *TokenMetaCache
	Pools          PoolSource
	Logger         *zap.Logger
}
