package poolmanager

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/amm"
)

// PoolState is the persisted form of one pool.
type PoolState struct {
	Key         amm.PoolKey               `json:"key"`
	Token0      common.Address            `json:"token0"`
	Token1      common.Address            `json:"token1"`
	FeeTier     uint32                    `json:"fee_tier"`
	Reserve0    string                    `json:"reserve0"`
	Reserve1    string                    `json:"reserve1"`
	TotalShares string                    `json:"total_shares"`
	Shares      map[common.Address]string `json:"shares,omitempty"`
}

// State is the persisted form of the pool manager.
type State struct {
	Paused bool           `json:"paused"`
	Router common.Address `json:"router"`
	Pools  []PoolState    `json:"pools"`
}

type snapshot struct {
	paused bool
	router common.Address
	pools  map[amm.PoolKey]*poolEntry
	order  []amm.PoolKey
}

func (m *Manager) copyState() snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	router, _ := m.router.Target()
	pools := make(map[amm.PoolKey]*poolEntry, len(m.pools))
	for key, entry := range m.pools {
		pools[key] = entry.clone()
	}
	return snapshot{
		paused: m.pause.Paused(),
		router: router,
		pools:  pools,
		order:  append([]amm.PoolKey(nil), m.order...),
	}
}

func (m *Manager) replace(snap snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pause.Set(snap.paused)
	m.router = amm.RestoreLink(m.router.Name, snap.router)
	m.pools = snap.pools
	m.order = snap.order
}

// Export returns the persisted form of the pool manager in creation order.
func (m *Manager) Export() State {
	snap := m.copyState()
	state := State{
		Paused: snap.paused,
		Router: snap.router,
		Pools:  make([]PoolState, 0, len(snap.order)),
	}
	for _, key := range snap.order {
		entry := snap.pools[key]
		ps := PoolState{
			Key:         key,
			Token0:      entry.pool.Token0,
			Token1:      entry.pool.Token1,
			FeeTier:     entry.pool.FeeTier,
			Reserve0:    amm.FormatAmount(entry.pool.Reserve0),
			Reserve1:    amm.FormatAmount(entry.pool.Reserve1),
			TotalShares: amm.FormatAmount(entry.pool.TotalShares),
			Shares:      make(map[common.Address]string, len(entry.shares)),
		}
		for provider, shares := range entry.shares {
			ps.Shares[provider] = amm.FormatAmount(shares)
		}
		state.Pools = append(state.Pools, ps)
	}
	return state
}

// Import replaces the pool manager contents with a persisted state.
func (m *Manager) Import(state State) error {
	snap := snapshot{
		paused: state.Paused,
		router: state.Router,
		pools:  make(map[amm.PoolKey]*poolEntry, len(state.Pools)),
		order:  make([]amm.PoolKey, 0, len(state.Pools)),
	}
	for _, ps := range state.Pools {
		if want := amm.PoolKeyFor(ps.Token0, ps.Token1, ps.FeeTier); want != ps.Key {
			return fmt.Errorf("pool %s: key does not match tokens and fee tier", ps.Key.Hex())
		}
		if _, dup := snap.pools[ps.Key]; dup {
			return fmt.Errorf("pool %s: duplicate entry", ps.Key.Hex())
		}
		entry := &poolEntry{
			pool: Pool{
				Key:     ps.Key,
				Token0:  ps.Token0,
				Token1:  ps.Token1,
				FeeTier: ps.FeeTier,
				Exists:  true,
			},
			shares: make(map[common.Address]*uint256.Int, len(ps.Shares)),
		}
		var err error
		if entry.pool.Reserve0, err = amm.ParseAmount(ps.Reserve0); err != nil {
			return fmt.Errorf("pool %s reserve0: %w", ps.Key.Hex(), err)
		}
		if entry.pool.Reserve1, err = amm.ParseAmount(ps.Reserve1); err != nil {
			return fmt.Errorf("pool %s reserve1: %w", ps.Key.Hex(), err)
		}
		if entry.pool.TotalShares, err = amm.ParseAmount(ps.TotalShares); err != nil {
			return fmt.Errorf("pool %s total shares: %w", ps.Key.Hex(), err)
		}
		for provider, value := range ps.Shares {
			shares, err := amm.ParseAmount(value)
			if err != nil {
				return fmt.Errorf("pool %s shares of %s: %w", ps.Key.Hex(), provider.Hex(), err)
			}
			entry.shares[provider] = shares
		}
		snap.pools[ps.Key] = entry
		snap.order = append(snap.order, ps.Key)
	}
	m.replace(snap)
	return nil
}

func (e *poolEntry) clone() *poolEntry {
	shares := make(map[common.Address]*uint256.Int, len(e.shares))
	for provider, amount := range e.shares {
		shares[provider] = amm.Clone(amount)
	}
	return &poolEntry{pool: e.pool.clone(), shares: shares}
}
