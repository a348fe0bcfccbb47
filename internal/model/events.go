package model

// PoolCreatedEventData is the decoded PoolCreated event payload.
type PoolCreatedEventData struct {
	PoolKey string `json:"pool_key"`
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	FeeTier uint32 `json:"fee_tier"`
}

// SwapEventData is the decoded Swap event payload. Reserves are post-trade.
type SwapEventData struct {
	PoolKey   string `json:"pool_key"`
	Payer     string `json:"payer"`
	Recipient string `json:"recipient"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Fee       string `json:"fee"`
	Reserve0  string `json:"reserve0"`
	Reserve1  string `json:"reserve1"`
}

// LiquidityEventData is the decoded LiquidityAdded / LiquidityRemoved payload.
type LiquidityEventData struct {
	PoolKey   string `json:"pool_key"`
	Provider  string `json:"provider"`
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Shares    string `json:"shares"`
	Reserve0  string `json:"reserve0"`
	Reserve1  string `json:"reserve1"`
}

// ProtocolFeeEventData is the decoded ProtocolFeeRecorded payload.
type ProtocolFeeEventData struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Total  string `json:"total"`
}

// PauseEventData is the decoded Paused / Unpaused payload.
type PauseEventData struct {
	Account string `json:"account"`
}

// LinkBoundEventData is the decoded LinkBound payload.
type LinkBoundEventData struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}
