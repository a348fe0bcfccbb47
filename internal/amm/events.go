package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is a state change notification emitted by a contract.
type Event interface {
	EventName() string
}

// Emitted is an event stamped with its emitter and commit position.
type Emitted struct {
	Contract  common.Address
	Event     Event
	Block     uint64
	Index     uint
	Timestamp uint64
}

// PoolCreated announces the canonical identity of a new pool.
type PoolCreated struct {
	Key     PoolKey
	Token0  common.Address
	Token1  common.Address
	FeeTier uint32
}

// LiquidityAdded records a deposit into a pool and the shares minted for it.
type LiquidityAdded struct {
	Key       PoolKey
	Provider  common.Address
	Recipient common.Address
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Shares    *uint256.Int
	Reserve0  *uint256.Int
	Reserve1  *uint256.Int
}

// LiquidityRemoved records a share burn and the reserves paid out for it.
type LiquidityRemoved struct {
	Key       PoolKey
	Provider  common.Address
	Recipient common.Address
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Shares    *uint256.Int
	Reserve0  *uint256.Int
	Reserve1  *uint256.Int
}

// Swapped records a trade with the post-trade reserves.
type Swapped struct {
	Key       PoolKey
	Payer     common.Address
	Recipient common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Fee       *uint256.Int
	Reserve0  *uint256.Int
	Reserve1  *uint256.Int
}

// ProtocolFeeRecorded records an accrual in the vault fee ledger.
type ProtocolFeeRecorded struct {
	Token  common.Address
	Amount *uint256.Int
	Total  *uint256.Int
}

// PauseChanged records a pause flag transition.
type PauseChanged struct {
	Paused  bool
	Account common.Address
}

// LinkBound records a one-time authorization binding.
type LinkBound struct {
	Name   string
	Target common.Address
}

func (PoolCreated) EventName() string         { return "PoolCreated" }
func (LiquidityAdded) EventName() string      { return "LiquidityAdded" }
func (LiquidityRemoved) EventName() string    { return "LiquidityRemoved" }
func (Swapped) EventName() string             { return "Swap" }
func (ProtocolFeeRecorded) EventName() string { return "ProtocolFeeRecorded" }
func (LinkBound) EventName() string           { return "LinkBound" }

func (e PauseChanged) EventName() string {
	if e.Paused {
		return "Paused"
	}
	return "Unpaused"
}
