package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/poolmanager"
	"ammcore/internal/router"
	"ammcore/internal/storage"
	"ammcore/internal/token"
	"ammcore/internal/vault"
)

// State is the persisted form of a whole deployment.
type State struct {
	Admin       common.Address    `json:"admin"`
	FeeTiers    []uint32          `json:"fee_tiers"`
	Block       uint64            `json:"block"`
	UpdatedAt   string            `json:"updated_at"`
	Ledger      token.State       `json:"ledger"`
	Vault       vault.State       `json:"vault"`
	PoolManager poolmanager.State `json:"pool_manager"`
	Router      router.State      `json:"router"`
}

// Export captures the committed state of every contract at one block.
func (s *System) Export(ctx context.Context) State {
	var state State
	_ = s.Runtime.View(ctx, func() error {
		state = State{
			Admin:       s.Admin,
			FeeTiers:    s.PoolManager.FeeTiers(),
			Block:       s.Runtime.Block(),
			UpdatedAt:   s.Runtime.Now().UTC().Format(time.RFC3339Nano),
			Ledger:      s.Ledger.Export(),
			Vault:       s.Vault.Export(),
			PoolManager: s.PoolManager.Export(),
			Router:      s.Router.Export(),
		}
		return nil
	})
	return state
}

// Import replaces the state of every contract. The system must have been
// built for the same admin.
func (s *System) Import(state State) error {
	if state.Admin != s.Admin {
		return fmt.Errorf("import state: admin %s does not match %s", state.Admin.Hex(), s.Admin.Hex())
	}
	if err := s.Ledger.Import(state.Ledger); err != nil {
		return fmt.Errorf("import ledger: %w", err)
	}
	if err := s.Vault.Import(state.Vault); err != nil {
		return fmt.Errorf("import vault: %w", err)
	}
	if err := s.PoolManager.Import(state.PoolManager); err != nil {
		return fmt.Errorf("import pool manager: %w", err)
	}
	s.Router.Import(state.Router)
	s.Runtime.SetBlock(state.Block)
	return nil
}

// StateFile persists a deployment to disk.
type StateFile struct {
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (f *StateFile) Path() string { return f.path }

// Load reads the state; ok is false if the file does not exist.
func (f *StateFile) Load() (State, bool, error) {
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return State{}, false, fmt.Errorf("state file path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return State{}, false, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("parse state file: %w", err)
	}
	return state, true, nil
}

// Save writes the state atomically.
func (f *StateFile) Save(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := storage.WriteFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("save state file: %w", err)
	}
	return nil
}
