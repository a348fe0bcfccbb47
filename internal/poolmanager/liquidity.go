package poolmanager

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/amm"
)

// AddLiquidityParams describes a deposit in canonical token order.
type AddLiquidityParams struct {
	Key            amm.PoolKey
	Token0         common.Address
	Token1         common.Address
	Amount0Desired *uint256.Int
	Amount1Desired *uint256.Int
	Amount0Min     *uint256.Int
	Amount1Min     *uint256.Int
	Payer          common.Address
	Recipient      common.Address
}

// RemoveLiquidityParams describes a share burn.
type RemoveLiquidityParams struct {
	Key        amm.PoolKey
	Shares     *uint256.Int
	Amount0Min *uint256.Int
	Amount1Min *uint256.Int
	Provider   common.Address
	Recipient  common.Address
}

// LiquidityResult reports the token amounts moved and the shares minted or burned.
type LiquidityResult struct {
	Amount0 *uint256.Int
	Amount1 *uint256.Int
	Shares  *uint256.Int
}

// AddLiquidity deposits into a pool at its current price and credits shares
// to the recipient.
func (m *Manager) AddLiquidity(ctx context.Context, params AddLiquidityParams) (LiquidityResult, error) {
	var result LiquidityResult
	err := m.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := m.enter(ctx, "add liquidity")
		if err != nil {
			return err
		}
		defer release()

		pool, err := m.lookup(params.Key)
		if err != nil {
			return fmt.Errorf("add liquidity: %w", err)
		}
		if params.Token0 != pool.Token0 || params.Token1 != pool.Token1 {
			return fmt.Errorf("add liquidity: %w: token order does not match pool %s", amm.ErrInvalidInput, pool.Key.Hex())
		}
		if amm.Zero(params.Amount0Desired) || amm.Zero(params.Amount1Desired) {
			return fmt.Errorf("add liquidity: %w: zero amount", amm.ErrInvalidInput)
		}
		if params.Recipient == (common.Address{}) {
			return fmt.Errorf("add liquidity: %w: zero recipient", amm.ErrInvalidInput)
		}

		amount0, amount1, err := acceptedAmounts(pool.Reserve0, pool.Reserve1, params.Amount0Desired, params.Amount1Desired)
		if err != nil {
			return fmt.Errorf("add liquidity: %w", err)
		}
		if amount0.Lt(amm.Clone(params.Amount0Min)) || amount1.Lt(amm.Clone(params.Amount1Min)) {
			return fmt.Errorf("add liquidity: %w: accepted %s/%s below minimum %s/%s",
				amm.ErrSlippageExceeded,
				amm.FormatAmount(amount0), amm.FormatAmount(amount1),
				amm.FormatAmount(params.Amount0Min), amm.FormatAmount(params.Amount1Min))
		}
		shares, err := sharesFor(pool.TotalShares, pool.Reserve0, pool.Reserve1, amount0, amount1)
		if err != nil {
			return fmt.Errorf("add liquidity: %w", err)
		}
		if shares.IsZero() {
			return fmt.Errorf("add liquidity: %w: zero shares minted", amm.ErrInsufficientLiquidity)
		}

		vaultCtx := amm.WithSender(ctx, m.address)
		if amount0.Sign() > 0 {
			if err := m.vault.Deposit(vaultCtx, pool.Token0, params.Payer, amount0); err != nil {
				return fmt.Errorf("add liquidity: %w", err)
			}
		}
		if amount1.Sign() > 0 {
			if err := m.vault.Deposit(vaultCtx, pool.Token1, params.Payer, amount1); err != nil {
				return fmt.Errorf("add liquidity: %w", err)
			}
		}

		var reserve0, reserve1 *uint256.Int
		err = m.update(ctx, params.Key, func(entry *poolEntry) error {
			next0, err := amm.CheckedAdd(entry.pool.Reserve0, amount0)
			if err != nil {
				return err
			}
			next1, err := amm.CheckedAdd(entry.pool.Reserve1, amount1)
			if err != nil {
				return err
			}
			entry.pool.Reserve0, entry.pool.Reserve1 = next0, next1
			entry.pool.TotalShares = new(uint256.Int).Add(entry.pool.TotalShares, shares)
			m.putShares(ctx, entry, params.Recipient, new(uint256.Int).Add(amm.Clone(entry.shares[params.Recipient]), shares))
			reserve0, reserve1 = amm.Clone(next0), amm.Clone(next1)
			return nil
		})
		if err != nil {
			return fmt.Errorf("add liquidity: %w", err)
		}

		m.rt.Emit(ctx, m.address, amm.LiquidityAdded{
			Key:       params.Key,
			Provider:  params.Payer,
			Recipient: params.Recipient,
			Amount0:   amount0,
			Amount1:   amount1,
			Shares:    shares,
			Reserve0:  reserve0,
			Reserve1:  reserve1,
		})
		m.logger.Debug("liquidity added",
			zap.String("pool", params.Key.Hex()),
			zap.String("amount0", amm.FormatAmount(amount0)),
			zap.String("amount1", amm.FormatAmount(amount1)),
			zap.String("shares", amm.FormatAmount(shares)),
		)
		result = LiquidityResult{Amount0: amm.Clone(amount0), Amount1: amm.Clone(amount1), Shares: amm.Clone(shares)}
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}

// RemoveLiquidity burns the provider's shares and pays the proportional
// reserves to the recipient.
func (m *Manager) RemoveLiquidity(ctx context.Context, params RemoveLiquidityParams) (LiquidityResult, error) {
	var result LiquidityResult
	err := m.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := m.enter(ctx, "remove liquidity")
		if err != nil {
			return err
		}
		defer release()

		pool, err := m.lookup(params.Key)
		if err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}
		if amm.Zero(params.Shares) {
			return fmt.Errorf("remove liquidity: %w: zero shares", amm.ErrInvalidInput)
		}
		if params.Recipient == (common.Address{}) {
			return fmt.Errorf("remove liquidity: %w: zero recipient", amm.ErrInvalidInput)
		}
		held := m.SharesOf(ctx, params.Key, params.Provider)
		if held.Lt(params.Shares) {
			return fmt.Errorf("remove liquidity: %w: holds %s, want %s",
				amm.ErrInsufficientShares, amm.FormatAmount(held), amm.FormatAmount(params.Shares))
		}

		amount0, amount1, err := amountsFor(pool.TotalShares, pool.Reserve0, pool.Reserve1, params.Shares)
		if err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}
		if amount0.IsZero() || amount1.IsZero() {
			return fmt.Errorf("remove liquidity: %w: burn returns nothing", amm.ErrInsufficientLiquidity)
		}
		if amount0.Lt(amm.Clone(params.Amount0Min)) || amount1.Lt(amm.Clone(params.Amount1Min)) {
			return fmt.Errorf("remove liquidity: %w: returned %s/%s below minimum %s/%s",
				amm.ErrSlippageExceeded,
				amm.FormatAmount(amount0), amm.FormatAmount(amount1),
				amm.FormatAmount(params.Amount0Min), amm.FormatAmount(params.Amount1Min))
		}

		var reserve0, reserve1 *uint256.Int
		err = m.update(ctx, params.Key, func(entry *poolEntry) error {
			entry.pool.Reserve0 = new(uint256.Int).Sub(entry.pool.Reserve0, amount0)
			entry.pool.Reserve1 = new(uint256.Int).Sub(entry.pool.Reserve1, amount1)
			entry.pool.TotalShares = new(uint256.Int).Sub(entry.pool.TotalShares, params.Shares)
			m.putShares(ctx, entry, params.Provider, new(uint256.Int).Sub(held, params.Shares))
			reserve0, reserve1 = amm.Clone(entry.pool.Reserve0), amm.Clone(entry.pool.Reserve1)
			return nil
		})
		if err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}

		vaultCtx := amm.WithSender(ctx, m.address)
		if err := m.vault.Withdraw(vaultCtx, pool.Token0, params.Recipient, amount0); err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}
		if err := m.vault.Withdraw(vaultCtx, pool.Token1, params.Recipient, amount1); err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}

		m.rt.Emit(ctx, m.address, amm.LiquidityRemoved{
			Key:       params.Key,
			Provider:  params.Provider,
			Recipient: params.Recipient,
			Amount0:   amount0,
			Amount1:   amount1,
			Shares:    amm.Clone(params.Shares),
			Reserve0:  reserve0,
			Reserve1:  reserve1,
		})
		m.logger.Debug("liquidity removed",
			zap.String("pool", params.Key.Hex()),
			zap.String("amount0", amm.FormatAmount(amount0)),
			zap.String("amount1", amm.FormatAmount(amount1)),
			zap.String("shares", amm.FormatAmount(params.Shares)),
		)
		result = LiquidityResult{Amount0: amm.Clone(amount0), Amount1: amm.Clone(amount1), Shares: amm.Clone(params.Shares)}
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}
