package amm

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PutAmount sets m[key], or deletes it when value is nil, and journals the
// previous entry on rt. The caller holds lock; the undo takes it.
func PutAmount[K comparable](ctx context.Context, rt *Runtime, lock sync.Locker, m map[K]*uint256.Int, key K, value *uint256.Int) {
	prev, had := m[key]
	if value == nil {
		delete(m, key)
	} else {
		m[key] = value
	}
	rt.Journal(ctx, func() {
		lock.Lock()
		defer lock.Unlock()
		if had {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

// SetPaused updates p and journals the flip on rt. The caller holds lock.
func SetPaused(ctx context.Context, rt *Runtime, lock sync.Locker, p *Pausable, paused bool) bool {
	if !p.Set(paused) {
		return false
	}
	rt.Journal(ctx, func() {
		lock.Lock()
		defer lock.Unlock()
		p.Set(!paused)
	})
	return true
}

// BindLink binds l and journals the unbind on rt. The caller holds lock.
func BindLink(ctx context.Context, rt *Runtime, lock sync.Locker, l *Link, target common.Address) error {
	if err := l.Bind(target); err != nil {
		return err
	}
	rt.Journal(ctx, func() {
		lock.Lock()
		defer lock.Unlock()
		l.target = common.Address{}
	})
	return nil
}
