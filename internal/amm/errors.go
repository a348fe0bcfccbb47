package amm

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the vault, pool manager and router
// matches exactly one of these with errors.Is.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrPaused                = errors.New("paused")
	ErrPoolExists            = errors.New("pool exists")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInvalidFeeTier        = errors.New("invalid fee tier")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrTransferFailed        = errors.New("transfer failed")

	ErrInvalidInput    = errors.New("invalid input")
	ErrReentrancy      = errors.New("reentrant call")
	ErrAlreadyBound    = errors.New("already bound")
	ErrDeadlineExpired = errors.New("deadline expired")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrPaused, "paused"},
	{ErrPoolExists, "pool_exists"},
	{ErrPoolNotFound, "pool_not_found"},
	{ErrInvalidFeeTier, "invalid_fee_tier"},
	{ErrSlippageExceeded, "slippage_exceeded"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrInsufficientShares, "insufficient_shares"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrInvalidInput, "invalid_input"},
	{ErrReentrancy, "reentrancy"},
	{ErrAlreadyBound, "already_bound"},
	{ErrDeadlineExpired, "deadline_expired"},
}

// KindOf returns the failure kind name of err, "ok" for nil and "unknown"
// for errors outside the taxonomy.
func KindOf(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}

// TransferError flattens a token ledger failure into ErrTransferFailed so the
// original cause (which may itself carry a kind) does not leak a second kind.
func TransferError(op string, cause error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransferFailed, cause)
}
