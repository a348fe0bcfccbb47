package poolmanager

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/amm"
)

// SwapParams describes an exact-input swap.
type SwapParams struct {
	Key          amm.PoolKey
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	Payer        common.Address
	Recipient    common.Address
}

// SwapResult reports a settled swap.
type SwapResult struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Fee       *uint256.Int
}

// Swap trades an exact amount of TokenIn for TokenOut. The fee stays in the
// reserves and is recorded once in the vault fee ledger.
func (m *Manager) Swap(ctx context.Context, params SwapParams) (SwapResult, error) {
	var result SwapResult
	err := m.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := m.enter(ctx, "swap")
		if err != nil {
			return err
		}
		defer release()

		pool, err := m.lookup(params.Key)
		if err != nil {
			return fmt.Errorf("swap: %w", err)
		}
		if params.Recipient == (common.Address{}) {
			return fmt.Errorf("swap: %w: zero recipient", amm.ErrInvalidInput)
		}
		trade, err := priceTrade(pool, params.TokenIn, params.TokenOut, params.AmountIn)
		if err != nil {
			return fmt.Errorf("swap: %w", err)
		}
		if trade.AmountOut.Lt(amm.Clone(params.MinAmountOut)) {
			return fmt.Errorf("swap: %w: out %s below minimum %s",
				amm.ErrSlippageExceeded, amm.FormatAmount(trade.AmountOut), amm.FormatAmount(params.MinAmountOut))
		}

		reserve0, reserve1 := amm.Clone(pool.Reserve0), amm.Clone(pool.Reserve1)
		if trade.ZeroForOne {
			reserve0, err = amm.CheckedAdd(reserve0, trade.AmountIn)
			reserve1.Sub(reserve1, trade.AmountOut)
		} else {
			reserve1, err = amm.CheckedAdd(reserve1, trade.AmountIn)
			reserve0.Sub(reserve0, trade.AmountOut)
		}
		if err != nil {
			return fmt.Errorf("swap: %w", err)
		}
		if amm.Product(reserve0, reserve1).Cmp(amm.Product(pool.Reserve0, pool.Reserve1)) < 0 {
			return fmt.Errorf("swap: %w: reserve product decreased", amm.ErrInsufficientLiquidity)
		}

		vaultCtx := amm.WithSender(ctx, m.address)
		if err := m.vault.Deposit(vaultCtx, params.TokenIn, params.Payer, trade.AmountIn); err != nil {
			return fmt.Errorf("swap: %w", err)
		}
		if err := m.vault.Withdraw(vaultCtx, params.TokenOut, params.Recipient, trade.AmountOut); err != nil {
			return fmt.Errorf("swap: %w", err)
		}
		if err := m.vault.RecordProtocolFee(vaultCtx, params.TokenIn, trade.Fee); err != nil {
			return fmt.Errorf("swap: %w", err)
		}

		err = m.update(ctx, params.Key, func(entry *poolEntry) error {
			entry.pool.Reserve0, entry.pool.Reserve1 = reserve0, reserve1
			return nil
		})
		if err != nil {
			return fmt.Errorf("swap: %w", err)
		}

		m.rt.Emit(ctx, m.address, amm.Swapped{
			Key:       params.Key,
			Payer:     params.Payer,
			Recipient: params.Recipient,
			TokenIn:   params.TokenIn,
			TokenOut:  params.TokenOut,
			AmountIn:  amm.Clone(trade.AmountIn),
			AmountOut: amm.Clone(trade.AmountOut),
			Fee:       amm.Clone(trade.Fee),
			Reserve0:  amm.Clone(reserve0),
			Reserve1:  amm.Clone(reserve1),
		})
		m.logger.Debug("swap",
			zap.String("pool", params.Key.Hex()),
			zap.Bool("zero_for_one", trade.ZeroForOne),
			zap.String("amount_in", amm.FormatAmount(trade.AmountIn)),
			zap.String("amount_out", amm.FormatAmount(trade.AmountOut)),
			zap.String("fee", amm.FormatAmount(trade.Fee)),
		)
		result = SwapResult{
			AmountIn:  amm.Clone(trade.AmountIn),
			AmountOut: amm.Clone(trade.AmountOut),
			Fee:       amm.Clone(trade.Fee),
		}
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}
	return result, nil
}
