package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/amm"
)

// State is the persisted form of a Ledger. Amounts are base-10 strings.
type State struct {
	Balances   map[common.Address]map[common.Address]string                    `json:"balances"`
	Allowances map[common.Address]map[common.Address]map[common.Address]string `json:"allowances,omitempty"`
}

type snapshot struct {
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*uint256.Int
}

func (l *Ledger) copyState() snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := snapshot{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int, len(l.balances)),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int, len(l.allowances)),
	}
	for token, byOwner := range l.balances {
		snap.balances[token] = cloneAmounts(byOwner)
	}
	for token, byOwner := range l.allowances {
		copied := make(map[common.Address]map[common.Address]*uint256.Int, len(byOwner))
		for owner, bySpender := range byOwner {
			copied[owner] = cloneAmounts(bySpender)
		}
		snap.allowances[token] = copied
	}
	return snap
}

func (l *Ledger) replace(snap snapshot) {
	l.mu.Lock()
	l.balances = snap.balances
	l.allowances = snap.allowances
	l.mu.Unlock()
}

// Export returns the persisted form of the ledger. Callers wanting a
// committed view wrap it in Runtime.View.
func (l *Ledger) Export() State {
	snap := l.copyState()
	state := State{
		Balances:   make(map[common.Address]map[common.Address]string, len(snap.balances)),
		Allowances: make(map[common.Address]map[common.Address]map[common.Address]string, len(snap.allowances)),
	}
	for token, byOwner := range snap.balances {
		state.Balances[token] = formatAmounts(byOwner)
	}
	for token, byOwner := range snap.allowances {
		out := make(map[common.Address]map[common.Address]string, len(byOwner))
		for owner, bySpender := range byOwner {
			out[owner] = formatAmounts(bySpender)
		}
		state.Allowances[token] = out
	}
	return state
}

// Import replaces the ledger contents with a persisted state.
func (l *Ledger) Import(state State) error {
	snap := snapshot{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int, len(state.Balances)),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int, len(state.Allowances)),
	}
	for token, byOwner := range state.Balances {
		parsed, err := parseAmounts(byOwner)
		if err != nil {
			return fmt.Errorf("balances of %s: %w", token.Hex(), err)
		}
		snap.balances[token] = parsed
	}
	for token, byOwner := range state.Allowances {
		out := make(map[common.Address]map[common.Address]*uint256.Int, len(byOwner))
		for owner, bySpender := range byOwner {
			parsed, err := parseAmounts(bySpender)
			if err != nil {
				return fmt.Errorf("allowances of %s: %w", token.Hex(), err)
			}
			out[owner] = parsed
		}
		snap.allowances[token] = out
	}
	l.replace(snap)
	return nil
}

func cloneAmounts(in map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(in))
	for addr, amount := range in {
		out[addr] = amm.Clone(amount)
	}
	return out
}

func formatAmounts(in map[common.Address]*uint256.Int) map[common.Address]string {
	out := make(map[common.Address]string, len(in))
	for addr, amount := range in {
		out[addr] = amm.FormatAmount(amount)
	}
	return out
}

func parseAmounts(in map[common.Address]string) (map[common.Address]*uint256.Int, error) {
	out := make(map[common.Address]*uint256.Int, len(in))
	for addr, value := range in {
		amount, err := amm.ParseAmount(value)
		if err != nil {
			return nil, err
		}
		out[addr] = amount
	}
	return out, nil
}
