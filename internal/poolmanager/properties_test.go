package poolmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"ammcore/internal/amm"
)

func TestSwapPropertiesRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		f.fund(t, alice, amm.MustAmount("1000000000000000000000000"), tokenA, tokenB)

		fee := rapid.SampledFrom(amm.DefaultFeeTiers).Draw(t, "fee")
		r0 := uint256.NewInt(rapid.Uint64Range(1_000, 1_000_000_000_000).Draw(t, "r0"))
		r1 := uint256.NewInt(rapid.Uint64Range(1_000, 1_000_000_000_000).Draw(t, "r1"))
		key := f.seed(t, tokenA, tokenB, fee, r0, r1)

		zeroForOne := rapid.Bool().Draw(t, "zeroForOne")
		tokenIn, tokenOut := tokenA, tokenB
		if !zeroForOne {
			tokenIn, tokenOut = tokenB, tokenA
		}
		amountIn := uint256.NewInt(rapid.Uint64Range(1, 10_000_000_000).Draw(t, "amountIn"))

		before := f.pm.Pools(context.Background(), key)
		quote, quoteErr := f.pm.Quote(context.Background(), key, tokenIn, tokenOut, amountIn)
		res, err := f.pm.Swap(asRouter(), SwapParams{
			Key: key, TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn, Payer: alice, Recipient: alice,
		})
		if (quoteErr == nil) != (err == nil) {
			t.Fatalf("quote err %v, swap err %v", quoteErr, err)
		}
		if err != nil {
			if !errors.Is(err, amm.ErrInsufficientLiquidity) {
				t.Fatalf("unexpected swap failure: %v", err)
			}
			return
		}
		if !quote.Eq(res.AmountOut) {
			t.Fatalf("quote %s != swap %s", amm.FormatAmount(quote), amm.FormatAmount(res.AmountOut))
		}

		after := f.pm.Pools(context.Background(), key)
		if amm.Product(after.Reserve0, after.Reserve1).Cmp(amm.Product(before.Reserve0, before.Reserve1)) < 0 {
			t.Fatalf("reserve product decreased")
		}
		if !f.vault.ProtocolFee(context.Background(), tokenIn).Eq(res.Fee) {
			t.Fatalf("fee ledger %s, want %s", amm.FormatAmount(f.vault.ProtocolFee(context.Background(), tokenIn)), amm.FormatAmount(res.Fee))
		}
		if !f.vault.BalanceOf(context.Background(), tokenA).Eq(after.Reserve0) || !f.vault.BalanceOf(context.Background(), tokenB).Eq(after.Reserve1) {
			t.Fatalf("vault balance diverged from reserves")
		}
	})
}

func TestLiquidityRoundTripRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		f.fund(t, alice, amm.MustAmount("1000000000000000000000000"), tokenA, tokenB)
		f.fund(t, bob, amm.MustAmount("1000000000000000000000000"), tokenA, tokenB)

		r0 := uint256.NewInt(rapid.Uint64Range(1_000, 1_000_000_000).Draw(t, "r0"))
		r1 := uint256.NewInt(rapid.Uint64Range(1_000, 1_000_000_000).Draw(t, "r1"))
		key := f.seed(t, tokenA, tokenB, 3000, r0, r1)

		x0 := uint256.NewInt(rapid.Uint64Range(1_000, 1_000_000_000).Draw(t, "x0"))
		x1 := uint256.NewInt(rapid.Uint64Range(1_000, 1_000_000_000).Draw(t, "x1"))
		pool := f.pm.Pools(context.Background(), key)
		added, err := f.pm.AddLiquidity(asRouter(), AddLiquidityParams{
			Key: key, Token0: tokenA, Token1: tokenB,
			Amount0Desired: x0, Amount1Desired: x1,
			Payer: bob, Recipient: bob,
		})
		if err != nil {
			if errors.Is(err, amm.ErrInsufficientLiquidity) {
				return
			}
			t.Fatalf("add liquidity: %v", err)
		}
		removed, err := f.pm.RemoveLiquidity(asRouter(), RemoveLiquidityParams{
			Key: key, Shares: added.Shares, Provider: bob, Recipient: bob,
		})
		if err != nil {
			if errors.Is(err, amm.ErrInsufficientLiquidity) {
				return
			}
			t.Fatalf("remove liquidity: %v", err)
		}

		// Each side loses at most one share's worth of reserve, one unit of the
		// other side priced in this side, and a few units to floor division.
		checkSide := func(name string, put, got, reserve, other *uint256.Int) {
			if got.Gt(put) {
				t.Fatalf("%s: got %s back for %s", name, amm.FormatAmount(got), amm.FormatAmount(put))
			}
			tolerance := new(uint256.Int).Div(reserve, pool.TotalShares)
			tolerance.Add(tolerance, new(uint256.Int).Div(reserve, other))
			tolerance.AddUint64(tolerance, 3)
			loss := new(uint256.Int).Sub(put, got)
			if loss.Gt(tolerance) {
				t.Fatalf("%s: lost %s, tolerance %s", name, amm.FormatAmount(loss), amm.FormatAmount(tolerance))
			}
		}
		checkSide("token0", added.Amount0, removed.Amount0, pool.Reserve0, pool.Reserve1)
		checkSide("token1", added.Amount1, removed.Amount1, pool.Reserve1, pool.Reserve0)
	})
}

func TestFirstDepositorRoundTripIsExact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		f.fund(t, alice, amm.MustAmount("1000000000000000000000000"), tokenA, tokenB)
		x0 := uint256.NewInt(rapid.Uint64Range(1, 1_000_000_000_000).Draw(t, "x0"))
		x1 := uint256.NewInt(rapid.Uint64Range(1, 1_000_000_000_000).Draw(t, "x1"))
		key := f.seed(t, tokenA, tokenB, 500, x0, x1)

		res, err := f.pm.RemoveLiquidity(asRouter(), RemoveLiquidityParams{
			Key: key, Shares: f.pm.SharesOf(context.Background(), key, alice), Provider: alice, Recipient: alice,
		})
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if !res.Amount0.Eq(x0) || !res.Amount1.Eq(x1) {
			t.Fatalf("got %s/%s back for %s/%s", amm.FormatAmount(res.Amount0), amm.FormatAmount(res.Amount1), amm.FormatAmount(x0), amm.FormatAmount(x1))
		}
		pool := f.pm.Pools(context.Background(), key)
		if !pool.Reserve0.IsZero() || !pool.Reserve1.IsZero() || !pool.TotalShares.IsZero() || !pool.Exists {
			t.Fatalf("pool not drained: %+v", pool)
		}
	})
}
