package poolmanager

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/amm"
)

var feeDenominator = uint256.NewInt(amm.FeeDenominator)

// Trade is the outcome of pricing an exact-input swap against a pool.
type Trade struct {
	ZeroForOne        bool
	AmountIn          *uint256.Int
	AmountInEffective *uint256.Int
	Fee               *uint256.Int
	AmountOut         *uint256.Int
}

// GetAmountOut prices an exact-input swap with the constant-product rule.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeTier uint32) (effective, fee, amountOut *uint256.Int, err error) {
	if amm.Zero(amountIn) {
		return nil, nil, nil, fmt.Errorf("%w: zero input amount", amm.ErrInvalidInput)
	}
	if amm.Zero(reserveIn) || amm.Zero(reserveOut) {
		return nil, nil, nil, fmt.Errorf("%w: empty reserves", amm.ErrInsufficientLiquidity)
	}
	if feeTier >= amm.FeeDenominator {
		return nil, nil, nil, fmt.Errorf("%w: %d", amm.ErrInvalidFeeTier, feeTier)
	}

	effective, err = amm.MulDiv(amountIn, uint256.NewInt(uint64(amm.FeeDenominator-feeTier)), feeDenominator)
	if err != nil {
		return nil, nil, nil, err
	}
	fee = new(uint256.Int).Sub(amountIn, effective)

	denominator, err := amm.CheckedAdd(reserveIn, effective)
	if err != nil {
		return nil, nil, nil, err
	}
	amountOut, err = amm.MulDiv(reserveOut, effective, denominator)
	if err != nil {
		return nil, nil, nil, err
	}
	if amountOut.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: zero output amount", amm.ErrInsufficientLiquidity)
	}
	if !amountOut.Lt(reserveOut) {
		return nil, nil, nil, fmt.Errorf("%w: output %s drains reserve %s",
			amm.ErrInsufficientLiquidity, amm.FormatAmount(amountOut), amm.FormatAmount(reserveOut))
	}
	return effective, fee, amountOut, nil
}

func priceTrade(pool Pool, tokenIn, tokenOut common.Address, amountIn *uint256.Int) (Trade, error) {
	if tokenIn == tokenOut {
		return Trade{}, fmt.Errorf("%w: identical tokens %s", amm.ErrInvalidInput, tokenIn.Hex())
	}
	var zeroForOne bool
	switch {
	case tokenIn == pool.Token0 && tokenOut == pool.Token1:
		zeroForOne = true
	case tokenIn == pool.Token1 && tokenOut == pool.Token0:
		zeroForOne = false
	default:
		return Trade{}, fmt.Errorf("%w: tokens %s/%s do not belong to pool %s",
			amm.ErrInvalidInput, tokenIn.Hex(), tokenOut.Hex(), pool.Key.Hex())
	}

	reserveIn, reserveOut := pool.Reserve0, pool.Reserve1
	if !zeroForOne {
		reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
	}
	effective, fee, amountOut, err := GetAmountOut(amountIn, reserveIn, reserveOut, pool.FeeTier)
	if err != nil {
		return Trade{}, err
	}
	return Trade{
		ZeroForOne:        zeroForOne,
		AmountIn:          amm.Clone(amountIn),
		AmountInEffective: effective,
		Fee:               fee,
		AmountOut:         amountOut,
	}, nil
}

// acceptedAmounts chooses deposit amounts that keep the pool price.
func acceptedAmounts(reserve0, reserve1, desired0, desired1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if reserve0.IsZero() && reserve1.IsZero() {
		return amm.Clone(desired0), amm.Clone(desired1), nil
	}
	if reserve0.IsZero() || reserve1.IsZero() {
		return nil, nil, fmt.Errorf("%w: one-sided reserves", amm.ErrInsufficientLiquidity)
	}
	optimal1, err := amm.MulDiv(desired0, reserve1, reserve0)
	if err != nil {
		return nil, nil, err
	}
	if !optimal1.Gt(desired1) {
		return amm.Clone(desired0), optimal1, nil
	}
	optimal0, err := amm.MulDiv(desired1, reserve0, reserve1)
	if err != nil {
		return nil, nil, err
	}
	return optimal0, amm.Clone(desired1), nil
}

// sharesFor returns the shares minted for a deposit of amount0/amount1. The
// first deposit mints sqrt(amount0*amount1) with no locked minimum.
func sharesFor(totalShares, reserve0, reserve1, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if totalShares.IsZero() {
		return amm.SqrtMul(amount0, amount1)
	}
	share0, err := amm.MulDiv(amount0, totalShares, reserve0)
	if err != nil {
		return nil, err
	}
	share1, err := amm.MulDiv(amount1, totalShares, reserve1)
	if err != nil {
		return nil, err
	}
	if share0.Lt(share1) {
		return share0, nil
	}
	return share1, nil
}

// amountsFor returns the reserves owed for burning shares.
func amountsFor(totalShares, reserve0, reserve1, shares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	amount0, err := amm.MulDiv(shares, reserve0, totalShares)
	if err != nil {
		return nil, nil, err
	}
	amount1, err := amm.MulDiv(shares, reserve1, totalShares)
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
