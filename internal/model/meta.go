package model

// PoolMeta is a pool's identity with the reserves known at the time an event
// was decoded.
type PoolMeta struct {
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	FeeTier  uint32 `json:"fee_tier"`
	Reserve0 string `json:"reserve0,omitempty"`
	Reserve1 string `json:"reserve1,omitempty"`
}

// TokenMeta is ERC20 metadata read from the tokens' home chain. Decimals only
// affect how amounts are displayed; the AMM itself counts base units.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}
