package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/amm"
)

// Vault is the sole custodian of pooled balances and the protocol fee ledger.
// Only the bound pool manager may move tokens through it.
type Vault struct {
	address common.Address
	admin   common.Address
	rt      *amm.Runtime
	ledger  amm.TokenLedger
	logger  *zap.Logger

	mu          sync.RWMutex
	guard       amm.Guard
	pause       amm.Pausable
	poolManager amm.Link
	balances    map[common.Address]*uint256.Int
	fees        map[common.Address]*uint256.Int
}

func New(address, admin common.Address, rt *amm.Runtime, ledger amm.TokenLedger, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{
		address:     address,
		admin:       admin,
		rt:          rt,
		ledger:      ledger,
		logger:      logger.With(zap.String("contract", "vault")),
		poolManager: amm.NewLink("pool manager"),
		balances:    make(map[common.Address]*uint256.Int),
		fees:        make(map[common.Address]*uint256.Int),
	}
}

func (v *Vault) Address() common.Address { return v.address }

// Deposit pulls amount of token from `from` into custody.
func (v *Vault) Deposit(ctx context.Context, token, from common.Address, amount *uint256.Int) error {
	return v.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := v.enter(ctx, "deposit", amount)
		if err != nil {
			return err
		}
		defer release()

		if err := v.ledger.TransferFrom(amm.WithSender(ctx, v.address), token, v.address, from, v.address, amount); err != nil {
			return amm.TransferError("deposit", err)
		}

		v.mu.Lock()
		defer v.mu.Unlock()
		next, err := amm.CheckedAdd(v.balanceLocked(token), amount)
		if err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
		amm.PutAmount(ctx, v.rt, &v.mu, v.balances, token, next)
		return nil
	})
}

// Withdraw pushes amount of token out of custody to `to`.
func (v *Vault) Withdraw(ctx context.Context, token, to common.Address, amount *uint256.Int) error {
	return v.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := v.enter(ctx, "withdraw", amount)
		if err != nil {
			return err
		}
		defer release()

		if err := v.debit(ctx, token, amount); err != nil {
			return err
		}
		if err := v.ledger.Transfer(amm.WithSender(ctx, v.address), token, v.address, to, amount); err != nil {
			return amm.TransferError("withdraw", err)
		}
		return nil
	})
}

// RecordProtocolFee adds amount to the fee counter of token. Callers record
// each fee-generating event exactly once.
func (v *Vault) RecordProtocolFee(ctx context.Context, token common.Address, amount *uint256.Int) error {
	return v.rt.Transact(ctx, func(ctx context.Context) error {
		if err := v.pause.Require("record protocol fee"); err != nil {
			return err
		}
		if err := v.poolManager.Authorize(amm.Sender(ctx), "record protocol fee"); err != nil {
			return err
		}
		if amm.Zero(amount) {
			return nil
		}

		total, err := v.accrue(ctx, token, amount)
		if err != nil {
			return err
		}

		v.rt.Emit(ctx, v.address, amm.ProtocolFeeRecorded{
			Token:  token,
			Amount: amm.Clone(amount),
			Total:  amm.Clone(total),
		})
		return nil
	})
}

// ProtocolFee returns the committed fee counter of token.
func (v *Vault) ProtocolFee(ctx context.Context, token common.Address) *uint256.Int {
	var out *uint256.Int
	_ = v.rt.View(ctx, func() error {
		v.mu.RLock()
		defer v.mu.RUnlock()
		out = amm.Clone(v.feeLocked(token))
		return nil
	})
	return out
}

// BalanceOf returns the committed custody balance of token.
func (v *Vault) BalanceOf(ctx context.Context, token common.Address) *uint256.Int {
	var out *uint256.Int
	_ = v.rt.View(ctx, func() error {
		v.mu.RLock()
		defer v.mu.RUnlock()
		out = amm.Clone(v.balanceLocked(token))
		return nil
	})
	return out
}

func (v *Vault) Paused() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pause.Paused()
}

func (v *Vault) Pause(ctx context.Context) error   { return v.setPaused(ctx, true) }
func (v *Vault) Unpause(ctx context.Context) error { return v.setPaused(ctx, false) }

// SetPoolManager binds the trusted pool manager. It can be called once.
func (v *Vault) SetPoolManager(ctx context.Context, poolManager common.Address) error {
	return v.rt.Transact(ctx, func(ctx context.Context) error {
		if err := amm.RequireAdmin(ctx, v.admin, "set pool manager"); err != nil {
			return err
		}
		v.mu.Lock()
		err := amm.BindLink(ctx, v.rt, &v.mu, &v.poolManager, poolManager)
		v.mu.Unlock()
		if err != nil {
			return err
		}
		v.rt.Emit(ctx, v.address, amm.LinkBound{Name: "poolManager", Target: poolManager})
		v.logger.Info("pool manager bound", zap.String("pool_manager", poolManager.Hex()))
		return nil
	})
}

// PoolManager returns the bound pool manager, if any.
func (v *Vault) PoolManager() (common.Address, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.poolManager.Target()
}

func (v *Vault) setPaused(ctx context.Context, paused bool) error {
	return v.rt.Transact(ctx, func(ctx context.Context) error {
		if err := amm.RequireAdmin(ctx, v.admin, "set paused"); err != nil {
			return err
		}
		v.mu.Lock()
		changed := amm.SetPaused(ctx, v.rt, &v.mu, &v.pause, paused)
		v.mu.Unlock()
		if changed {
			v.rt.Emit(ctx, v.address, amm.PauseChanged{Paused: paused, Account: amm.Sender(ctx)})
			v.logger.Info("pause changed", zap.Bool("paused", paused))
		}
		return nil
	})
}

func (v *Vault) enter(ctx context.Context, op string, amount *uint256.Int) (func(), error) {
	if err := v.pause.Require(op); err != nil {
		return nil, err
	}
	if err := v.poolManager.Authorize(amm.Sender(ctx), op); err != nil {
		return nil, err
	}
	if amm.Zero(amount) {
		return nil, fmt.Errorf("%s: %w: zero amount", op, amm.ErrInvalidInput)
	}
	return v.guard.Enter(op)
}

func (v *Vault) debit(ctx context.Context, token common.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance := v.balanceLocked(token)
	if balance.Lt(amount) {
		return fmt.Errorf("withdraw: %w: vault holds %s of %s, want %s",
			amm.ErrInsufficientLiquidity, amm.FormatAmount(balance), token.Hex(), amm.FormatAmount(amount))
	}
	amm.PutAmount(ctx, v.rt, &v.mu, v.balances, token, new(uint256.Int).Sub(balance, amount))
	return nil
}

func (v *Vault) accrue(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	total, err := amm.CheckedAdd(v.feeLocked(token), amount)
	if err != nil {
		return nil, fmt.Errorf("record protocol fee: %w", err)
	}
	amm.PutAmount(ctx, v.rt, &v.mu, v.fees, token, total)
	return total, nil
}

func (v *Vault) balanceLocked(token common.Address) *uint256.Int {
	if balance := v.balances[token]; balance != nil {
		return balance
	}
	return new(uint256.Int)
}

func (v *Vault) feeLocked(token common.Address) *uint256.Int {
	if fee := v.fees[token]; fee != nil {
		return fee
	}
	return new(uint256.Int)
}
