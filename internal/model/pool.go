package model

// Pool is a pool registry record for storage.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	PoolKey        string `json:"pool_key"`
	Manager        string `json:"manager"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	FeeTier        uint32 `json:"fee_tier"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
