package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenLedger is the fungible-balance capability the vault moves tokens with.
// Implementations may call back into contracts during a transfer.
type TokenLedger interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, token, owner common.Address) *uint256.Int
}
