package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/amm"
)

// State is the persisted form of the vault.
type State struct {
	Paused       bool                      `json:"paused"`
	PoolManager  common.Address            `json:"pool_manager"`
	Balances     map[common.Address]string `json:"balances"`
	ProtocolFees map[common.Address]string `json:"protocol_fees"`
}

type snapshot struct {
	paused      bool
	poolManager common.Address
	balances    map[common.Address]*uint256.Int
	fees        map[common.Address]*uint256.Int
}

func (v *Vault) copyState() snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pm, _ := v.poolManager.Target()
	return snapshot{
		paused:      v.pause.Paused(),
		poolManager: pm,
		balances:    cloneAmounts(v.balances),
		fees:        cloneAmounts(v.fees),
	}
}

func (v *Vault) replace(snap snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pause.Set(snap.paused)
	v.poolManager = amm.RestoreLink(v.poolManager.Name, snap.poolManager)
	v.balances = snap.balances
	v.fees = snap.fees
}

// Export returns the persisted form of the vault.
func (v *Vault) Export() State {
	snap := v.copyState()
	state := State{
		Paused:       snap.paused,
		PoolManager:  snap.poolManager,
		Balances:     make(map[common.Address]string, len(snap.balances)),
		ProtocolFees: make(map[common.Address]string, len(snap.fees)),
	}
	for token, amount := range snap.balances {
		state.Balances[token] = amm.FormatAmount(amount)
	}
	for token, amount := range snap.fees {
		state.ProtocolFees[token] = amm.FormatAmount(amount)
	}
	return state
}

// Import replaces the vault contents with a persisted state.
func (v *Vault) Import(state State) error {
	snap := snapshot{
		paused:      state.Paused,
		poolManager: state.PoolManager,
		balances:    make(map[common.Address]*uint256.Int, len(state.Balances)),
		fees:        make(map[common.Address]*uint256.Int, len(state.ProtocolFees)),
	}
	for token, value := range state.Balances {
		amount, err := amm.ParseAmount(value)
		if err != nil {
			return fmt.Errorf("vault balance %s: %w", token.Hex(), err)
		}
		snap.balances[token] = amount
	}
	for token, value := range state.ProtocolFees {
		amount, err := amm.ParseAmount(value)
		if err != nil {
			return fmt.Errorf("protocol fee %s: %w", token.Hex(), err)
		}
		snap.fees[token] = amount
	}
	v.replace(snap)
	return nil
}

func cloneAmounts(in map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(in))
	for token, amount := range in {
		out[token] = amm.Clone(amount)
	}
	return out
}
