package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Guard is a per-contract reentrancy lock.
type Guard struct {
	entered bool
}

// Enter takes the lock. The returned release must be deferred so the lock is
// dropped on every exit path.
func (g *Guard) Enter(op string) (func(), error) {
	if g.entered {
		return nil, fmt.Errorf("%s: %w", op, ErrReentrancy)
	}
	g.entered = true
	return func() { g.entered = false }, nil
}

// Pausable is a contract-level emergency stop.
type Pausable struct {
	paused bool
}

func (p *Pausable) Paused() bool { return p.paused }

// Set updates the flag and reports whether it changed.
func (p *Pausable) Set(paused bool) bool {
	if p.paused == paused {
		return false
	}
	p.paused = paused
	return true
}

// Require fails with ErrPaused while the flag is set.
func (p *Pausable) Require(op string) error {
	if p.paused {
		return fmt.Errorf("%s: %w", op, ErrPaused)
	}
	return nil
}

// RequireAdmin fails unless ctx carries the admin as sender.
func RequireAdmin(ctx context.Context, admin common.Address, op string) error {
	sender := Sender(ctx)
	if admin == (common.Address{}) || sender != admin {
		return fmt.Errorf("%s: %w: caller %s is not admin", op, ErrUnauthorized, sender.Hex())
	}
	return nil
}

// Link is a one-time trust binding to another contract.
type Link struct {
	Name   string
	target common.Address
}

func NewLink(name string) Link {
	return Link{Name: name}
}

// Bind sets the trusted address once.
func (l *Link) Bind(target common.Address) error {
	if target == (common.Address{}) {
		return fmt.Errorf("bind %s: %w: zero address", l.Name, ErrInvalidInput)
	}
	if l.target != (common.Address{}) {
		return fmt.Errorf("bind %s: %w to %s", l.Name, ErrAlreadyBound, l.target.Hex())
	}
	l.target = target
	return nil
}

// Target returns the bound address and whether the link is bound.
func (l *Link) Target() (common.Address, bool) {
	return l.target, l.target != (common.Address{})
}

// Authorize fails unless the link is bound to caller.
func (l *Link) Authorize(caller common.Address, op string) error {
	if l.target == (common.Address{}) {
		return fmt.Errorf("%s: %w: %s not bound", op, ErrUnauthorized, l.Name)
	}
	if caller != l.target {
		return fmt.Errorf("%s: %w: caller %s is not the %s", op, ErrUnauthorized, caller.Hex(), l.Name)
	}
	return nil
}

// RestoreLink rebuilds a link from persisted state.
func RestoreLink(name string, target common.Address) Link {
	return Link{Name: name, target: target}
}
