package router

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/amm"
	"ammcore/internal/poolmanager"
)

// AddLiquidityRequest is a deposit in user terms; TokenA and TokenB may be
// given in either order. A zero Deadline never expires.
type AddLiquidityRequest struct {
	TokenA         common.Address
	TokenB         common.Address
	FeeTier        uint32
	AmountADesired *uint256.Int
	AmountBDesired *uint256.Int
	AmountAMin     *uint256.Int
	AmountBMin     *uint256.Int
	Recipient      common.Address
	Deadline       time.Time
}

// RemoveLiquidityRequest burns the caller's shares of a pool.
type RemoveLiquidityRequest struct {
	TokenA     common.Address
	TokenB     common.Address
	FeeTier    uint32
	Shares     *uint256.Int
	AmountAMin *uint256.Int
	AmountBMin *uint256.Int
	Recipient  common.Address
	Deadline   time.Time
}

// SwapRequest is an exact-input swap.
type SwapRequest struct {
	TokenIn      common.Address
	TokenOut     common.Address
	FeeTier      uint32
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	Recipient    common.Address
	Deadline     time.Time
}

// LiquidityResult reports amounts in the request's TokenA/TokenB order.
type LiquidityResult struct {
	Key     amm.PoolKey
	AmountA *uint256.Int
	AmountB *uint256.Int
	Shares  *uint256.Int
}

// SwapResult reports a settled swap.
type SwapResult struct {
	Key       amm.PoolKey
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Fee       *uint256.Int
}

func (req AddLiquidityRequest) params(payer common.Address) (poolmanager.AddLiquidityParams, bool, error) {
	if err := checkPair(req.TokenA, req.TokenB, req.Recipient); err != nil {
		return poolmanager.AddLiquidityParams{}, false, fmt.Errorf("add liquidity: %w", err)
	}
	if amm.Zero(req.AmountADesired) || amm.Zero(req.AmountBDesired) {
		return poolmanager.AddLiquidityParams{}, false, fmt.Errorf("add liquidity: %w: zero amount", amm.ErrInvalidInput)
	}
	token0, token1 := amm.SortTokens(req.TokenA, req.TokenB)
	flipped := token0 != req.TokenA
	params := poolmanager.AddLiquidityParams{
		Key:            amm.PoolKeyFor(token0, token1, req.FeeTier),
		Token0:         token0,
		Token1:         token1,
		Amount0Desired: amm.Clone(req.AmountADesired),
		Amount1Desired: amm.Clone(req.AmountBDesired),
		Amount0Min:     amm.Clone(req.AmountAMin),
		Amount1Min:     amm.Clone(req.AmountBMin),
		Payer:          payer,
		Recipient:      req.Recipient,
	}
	if flipped {
		params.Amount0Desired, params.Amount1Desired = params.Amount1Desired, params.Amount0Desired
		params.Amount0Min, params.Amount1Min = params.Amount1Min, params.Amount0Min
	}
	return params, flipped, nil
}

func (req RemoveLiquidityRequest) params(provider common.Address) (poolmanager.RemoveLiquidityParams, bool, error) {
	if err := checkPair(req.TokenA, req.TokenB, req.Recipient); err != nil {
		return poolmanager.RemoveLiquidityParams{}, false, fmt.Errorf("remove liquidity: %w", err)
	}
	if amm.Zero(req.Shares) {
		return poolmanager.RemoveLiquidityParams{}, false, fmt.Errorf("remove liquidity: %w: zero shares", amm.ErrInvalidInput)
	}
	token0, token1 := amm.SortTokens(req.TokenA, req.TokenB)
	flipped := token0 != req.TokenA
	params := poolmanager.RemoveLiquidityParams{
		Key:        amm.PoolKeyFor(token0, token1, req.FeeTier),
		Shares:     amm.Clone(req.Shares),
		Amount0Min: amm.Clone(req.AmountAMin),
		Amount1Min: amm.Clone(req.AmountBMin),
		Provider:   provider,
		Recipient:  req.Recipient,
	}
	if flipped {
		params.Amount0Min, params.Amount1Min = params.Amount1Min, params.Amount0Min
	}
	return params, flipped, nil
}

func (req SwapRequest) params(payer common.Address) (poolmanager.SwapParams, error) {
	if err := checkPair(req.TokenIn, req.TokenOut, req.Recipient); err != nil {
		return poolmanager.SwapParams{}, fmt.Errorf("swap: %w", err)
	}
	if amm.Zero(req.AmountIn) {
		return poolmanager.SwapParams{}, fmt.Errorf("swap: %w: zero amount", amm.ErrInvalidInput)
	}
	return poolmanager.SwapParams{
		Key:          amm.PoolKeyFor(req.TokenIn, req.TokenOut, req.FeeTier),
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     amm.Clone(req.AmountIn),
		MinAmountOut: amm.Clone(req.MinAmountOut),
		Payer:        payer,
		Recipient:    req.Recipient,
	}, nil
}

func checkPair(tokenA, tokenB, recipient common.Address) error {
	if tokenA == tokenB {
		return fmt.Errorf("%w: identical tokens", amm.ErrInvalidInput)
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return fmt.Errorf("%w: zero token address", amm.ErrInvalidInput)
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: zero recipient", amm.ErrInvalidInput)
	}
	return nil
}

func userOrder(key amm.PoolKey, res poolmanager.LiquidityResult, flipped bool) LiquidityResult {
	out := LiquidityResult{Key: key, AmountA: res.Amount0, AmountB: res.Amount1, Shares: res.Shares}
	if flipped {
		out.AmountA, out.AmountB = out.AmountB, out.AmountA
	}
	return out
}
