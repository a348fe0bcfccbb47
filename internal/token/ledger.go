package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/amm"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrFrozen                = errors.New("token frozen")
	ErrSenderMismatch        = errors.New("sender mismatch")
)

// Hook runs after a transfer of its token has moved balances. A failing hook
// fails the transfer.
type Hook func(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error

// Ledger is an in-memory multi-token ERC20-style balance sheet. Attached to a
// runtime, its writes join the call in flight and roll back with it, and its
// reads see committed balances only.
type Ledger struct {
	rt *amm.Runtime

	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*uint256.Int
	hooks      map[common.Address]Hook
	frozen     map[common.Address]bool
}

// NewLedger builds an empty ledger. rt may be nil for a standalone ledger.
func NewLedger(rt *amm.Runtime) *Ledger {
	return &Ledger{
		rt:         rt,
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int),
		hooks:      make(map[common.Address]Hook),
		frozen:     make(map[common.Address]bool),
	}
}

// SetHook installs a transfer callback for token; nil removes it.
func (l *Ledger) SetHook(token common.Address, hook Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hook == nil {
		delete(l.hooks, token)
		return
	}
	l.hooks[token] = hook
}

// SetFrozen makes every transfer of token fail while set.
func (l *Ledger) SetFrozen(token common.Address, frozen bool) {
	l.mu.Lock()
	l.frozen[token] = frozen
	l.mu.Unlock()
}

// Mint credits amount of token to owner.
func (l *Ledger) Mint(ctx context.Context, token, owner common.Address, amount *uint256.Int) error {
	return l.rt.Apply(ctx, func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		next, err := amm.CheckedAdd(l.balanceLocked(token, owner), amount)
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		l.setBalanceLocked(ctx, token, owner, next)
		return nil
	})
}

// Approve sets the amount spender may pull from owner.
func (l *Ledger) Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) {
	_ = l.rt.Apply(ctx, func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.setAllowanceLocked(ctx, token, owner, spender, amm.Clone(amount))
		return nil
	})
}

// Allowance returns the remaining amount spender may pull from owner.
func (l *Ledger) Allowance(ctx context.Context, token, owner, spender common.Address) *uint256.Int {
	var out *uint256.Int
	_ = l.rt.View(ctx, func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		out = amm.Clone(l.allowances[token][owner][spender])
		return nil
	})
	return out
}

// BalanceOf returns owner's balance of token.
func (l *Ledger) BalanceOf(ctx context.Context, token, owner common.Address) *uint256.Int {
	var out *uint256.Int
	_ = l.rt.View(ctx, func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		out = amm.Clone(l.balanceLocked(token, owner))
		return nil
	})
	return out
}

// Transfer moves amount from the calling address. A failing hook undoes the
// move.
func (l *Ledger) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if sender := amm.Sender(ctx); sender != from {
		return fmt.Errorf("transfer: %w: %s != %s", ErrSenderMismatch, sender.Hex(), from.Hex())
	}
	return l.rt.Apply(ctx, func(ctx context.Context) error {
		hook, err := l.move(ctx, token, from, to, amount)
		if err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		return runHook(ctx, hook, token, from, to, amount)
	})
}

// TransferFrom moves amount from owner using the caller's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error {
	if sender := amm.Sender(ctx); sender != spender {
		return fmt.Errorf("transfer from: %w: %s != %s", ErrSenderMismatch, sender.Hex(), spender.Hex())
	}
	return l.rt.Apply(ctx, func(ctx context.Context) error {
		hook, err := l.spend(ctx, token, spender, from, to, amount)
		if err != nil {
			return fmt.Errorf("transfer from: %w", err)
		}
		return runHook(ctx, hook, token, from, to, amount)
	})
}

func (l *Ledger) move(ctx context.Context, token, from, to common.Address, amount *uint256.Int) (Hook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.moveLocked(ctx, token, from, to, amount); err != nil {
		return nil, err
	}
	return l.hooks[token], nil
}

func (l *Ledger) spend(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) (Hook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	allowance := amm.Clone(l.allowances[token][from][spender])
	if allowance.Lt(amount) {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientAllowance, amm.FormatAmount(allowance), amm.FormatAmount(amount))
	}
	if err := l.moveLocked(ctx, token, from, to, amount); err != nil {
		return nil, err
	}
	l.setAllowanceLocked(ctx, token, from, spender, allowance.Sub(allowance, amount))
	return l.hooks[token], nil
}

func runHook(ctx context.Context, hook Hook, token, from, to common.Address, amount *uint256.Int) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx, token, from, to, amount); err != nil {
		return fmt.Errorf("transfer hook: %w", err)
	}
	return nil
}

func (l *Ledger) moveLocked(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if l.frozen[token] {
		return fmt.Errorf("%w: %s", ErrFrozen, token.Hex())
	}
	balance := l.balanceLocked(token, from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, amm.FormatAmount(balance), amm.FormatAmount(amount))
	}
	l.setBalanceLocked(ctx, token, from, new(uint256.Int).Sub(balance, amount))
	l.setBalanceLocked(ctx, token, to, new(uint256.Int).Add(l.balanceLocked(token, to), amount))
	return nil
}

func (l *Ledger) balanceLocked(token, owner common.Address) *uint256.Int {
	if balance := l.balances[token][owner]; balance != nil {
		return balance
	}
	return new(uint256.Int)
}

func (l *Ledger) setBalanceLocked(ctx context.Context, token, owner common.Address, amount *uint256.Int) {
	byOwner := l.balances[token]
	if byOwner == nil {
		byOwner = make(map[common.Address]*uint256.Int)
		l.balances[token] = byOwner
		l.rt.Journal(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.balances, token)
		})
	}
	amm.PutAmount(ctx, l.rt, &l.mu, byOwner, owner, amount)
}

func (l *Ledger) setAllowanceLocked(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) {
	byOwner := l.allowances[token]
	if byOwner == nil {
		byOwner = make(map[common.Address]map[common.Address]*uint256.Int)
		l.allowances[token] = byOwner
		l.rt.Journal(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.allowances, token)
		})
	}
	bySpender := byOwner[owner]
	if bySpender == nil {
		bySpender = make(map[common.Address]*uint256.Int)
		byOwner[owner] = bySpender
		l.rt.Journal(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(byOwner, owner)
		})
	}
	amm.PutAmount(ctx, l.rt, &l.mu, bySpender, spender, amount)
}
