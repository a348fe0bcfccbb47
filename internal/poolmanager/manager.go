package poolmanager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/amm"
)

// Custodian is the vault surface the pool manager moves tokens through.
type Custodian interface {
	Deposit(ctx context.Context, token, from common.Address, amount *uint256.Int) error
	Withdraw(ctx context.Context, token, to common.Address, amount *uint256.Int) error
	RecordProtocolFee(ctx context.Context, token common.Address, amount *uint256.Int) error
	PoolManager() (common.Address, bool)
}

// Pool is the reserve state of one token pair and fee tier.
type Pool struct {
	Key         amm.PoolKey
	Token0      common.Address
	Token1      common.Address
	Reserve0    *uint256.Int
	Reserve1    *uint256.Int
	FeeTier     uint32
	TotalShares *uint256.Int
	Exists      bool
}

func (p Pool) clone() Pool {
	p.Reserve0 = amm.Clone(p.Reserve0)
	p.Reserve1 = amm.Clone(p.Reserve1)
	p.TotalShares = amm.Clone(p.TotalShares)
	return p
}

type poolEntry struct {
	pool   Pool
	shares map[common.Address]*uint256.Int
}

// Config configures a Manager.
type Config struct {
	Address  common.Address
	Admin    common.Address
	FeeTiers []uint32
}

// Manager owns the pool registry, reserve accounting, LP share ledger and the
// swap/liquidity math. Mutations arrive only from the bound router, and no
// call is accepted until the vault and router links are both bound.
type Manager struct {
	address  common.Address
	admin    common.Address
	feeTiers map[uint32]struct{}
	rt       *amm.Runtime
	vault    Custodian
	logger   *zap.Logger

	mu     sync.RWMutex
	guard  amm.Guard
	pause  amm.Pausable
	router amm.Link
	pools  map[amm.PoolKey]*poolEntry
	order  []amm.PoolKey
}

func New(cfg Config, rt *amm.Runtime, vault Custodian, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	tiers := cfg.FeeTiers
	if len(tiers) == 0 {
		tiers = amm.DefaultFeeTiers
	}
	feeTiers := make(map[uint32]struct{}, len(tiers))
	for _, tier := range tiers {
		feeTiers[tier] = struct{}{}
	}
	return &Manager{
		address:  cfg.Address,
		admin:    cfg.Admin,
		feeTiers: feeTiers,
		rt:       rt,
		vault:    vault,
		logger:   logger.With(zap.String("contract", "pool_manager")),
		router:   amm.NewLink("router"),
		pools:    make(map[amm.PoolKey]*poolEntry),
	}
}

func (m *Manager) Address() common.Address { return m.address }

// FeeTiers returns the allowed fee tiers in ascending order.
func (m *Manager) FeeTiers() []uint32 {
	out := make([]uint32, 0, len(m.feeTiers))
	for tier := range m.feeTiers {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CreatePool registers the canonical pool for a pair and fee tier.
func (m *Manager) CreatePool(ctx context.Context, tokenA, tokenB common.Address, feeTier uint32) (amm.PoolKey, error) {
	var key amm.PoolKey
	err := m.rt.Transact(ctx, func(ctx context.Context) error {
		if err := m.pause.Require("create pool"); err != nil {
			return err
		}
		if err := m.requireBound("create pool"); err != nil {
			return err
		}
		if _, ok := m.feeTiers[feeTier]; !ok {
			return fmt.Errorf("create pool: %w: %d", amm.ErrInvalidFeeTier, feeTier)
		}
		if tokenA == tokenB {
			return fmt.Errorf("create pool: %w: identical tokens", amm.ErrInvalidInput)
		}
		if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
			return fmt.Errorf("create pool: %w: zero token address", amm.ErrInvalidInput)
		}

		token0, token1 := amm.SortTokens(tokenA, tokenB)
		key = amm.PoolKeyFor(token0, token1, feeTier)

		if err := m.insert(ctx, key, token0, token1, feeTier); err != nil {
			return err
		}

		m.rt.Emit(ctx, m.address, amm.PoolCreated{Key: key, Token0: token0, Token1: token1, FeeTier: feeTier})
		m.logger.Info("pool created",
			zap.String("pool", key.Hex()),
			zap.String("token0", token0.Hex()),
			zap.String("token1", token1.Hex()),
			zap.Uint32("fee_tier", feeTier),
		)
		return nil
	})
	if err != nil {
		return amm.PoolKey{}, err
	}
	return key, nil
}

// Pools returns a copy of the committed pool under key; Exists is false if
// absent.
func (m *Manager) Pools(ctx context.Context, key amm.PoolKey) Pool {
	pool := Pool{Key: key, Reserve0: new(uint256.Int), Reserve1: new(uint256.Int), TotalShares: new(uint256.Int)}
	_ = m.view(ctx, func() error {
		if entry, ok := m.pools[key]; ok {
			pool = entry.pool.clone()
		}
		return nil
	})
	return pool
}

// PoolExists reports whether key has been created.
func (m *Manager) PoolExists(ctx context.Context, key amm.PoolKey) bool {
	var ok bool
	_ = m.view(ctx, func() error {
		_, ok = m.pools[key]
		return nil
	})
	return ok
}

// PoolKeys returns every pool key in creation order.
func (m *Manager) PoolKeys(ctx context.Context) []amm.PoolKey {
	var keys []amm.PoolKey
	_ = m.view(ctx, func() error {
		keys = append([]amm.PoolKey(nil), m.order...)
		return nil
	})
	return keys
}

// Reserves returns the committed reserves of token0 and token1.
func (m *Manager) Reserves(ctx context.Context, key amm.PoolKey) (*uint256.Int, *uint256.Int, error) {
	var pool Pool
	err := m.view(ctx, func() error {
		var err error
		pool, err = m.lookupLocked(key)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get reserves: %w", err)
	}
	return pool.Reserve0, pool.Reserve1, nil
}

// SharesOf returns the LP shares provider holds in key.
func (m *Manager) SharesOf(ctx context.Context, key amm.PoolKey, provider common.Address) *uint256.Int {
	var shares *uint256.Int
	_ = m.view(ctx, func() error {
		shares = m.sharesLocked(key, provider)
		return nil
	})
	return shares
}

// Quote prices an exact-input swap without changing state. A Swap with the
// same arguments against unchanged reserves returns exactly this amount.
func (m *Manager) Quote(ctx context.Context, key amm.PoolKey, tokenIn, tokenOut common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	var pool Pool
	err := m.view(ctx, func() error {
		var err error
		pool, err = m.lookupLocked(key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	trade, err := priceTrade(pool, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	return trade.AmountOut, nil
}

func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pause.Paused()
}

func (m *Manager) Pause(ctx context.Context) error   { return m.setPaused(ctx, true) }
func (m *Manager) Unpause(ctx context.Context) error { return m.setPaused(ctx, false) }

// SetRouter binds the trusted router. It can be called once.
func (m *Manager) SetRouter(ctx context.Context, router common.Address) error {
	return m.rt.Transact(ctx, func(ctx context.Context) error {
		if err := amm.RequireAdmin(ctx, m.admin, "set router"); err != nil {
			return err
		}
		m.mu.Lock()
		err := amm.BindLink(ctx, m.rt, &m.mu, &m.router, router)
		m.mu.Unlock()
		if err != nil {
			return err
		}
		m.rt.Emit(ctx, m.address, amm.LinkBound{Name: "router", Target: router})
		m.logger.Info("router bound", zap.String("router", router.Hex()))
		return nil
	})
}

// Router returns the bound router, if any.
func (m *Manager) Router() (common.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.router.Target()
}

func (m *Manager) setPaused(ctx context.Context, paused bool) error {
	return m.rt.Transact(ctx, func(ctx context.Context) error {
		if err := amm.RequireAdmin(ctx, m.admin, "set paused"); err != nil {
			return err
		}
		m.mu.Lock()
		changed := amm.SetPaused(ctx, m.rt, &m.mu, &m.pause, paused)
		m.mu.Unlock()
		if changed {
			m.rt.Emit(ctx, m.address, amm.PauseChanged{Paused: paused, Account: amm.Sender(ctx)})
			m.logger.Info("pause changed", zap.Bool("paused", paused))
		}
		return nil
	})
}

// enter runs the checks shared by every router-only mutation.
func (m *Manager) enter(ctx context.Context, op string) (func(), error) {
	if err := m.pause.Require(op); err != nil {
		return nil, err
	}
	if err := m.router.Authorize(amm.Sender(ctx), op); err != nil {
		return nil, err
	}
	return m.guard.Enter(op)
}

// requireBound fails until the admin has bound vault to pool manager and pool
// manager to router.
func (m *Manager) requireBound(op string) error {
	if _, ok := m.router.Target(); !ok {
		return fmt.Errorf("%s: %w: %s not bound", op, amm.ErrUnauthorized, m.router.Name)
	}
	if bound, ok := m.vault.PoolManager(); !ok || bound != m.address {
		return fmt.Errorf("%s: %w: vault not bound to this pool manager", op, amm.ErrUnauthorized)
	}
	return nil
}

// view reads under the runtime and the manager's read lock.
func (m *Manager) view(ctx context.Context, fn func() error) error {
	return m.rt.View(ctx, func() error {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return fn()
	})
}

// lookup reads a pool from inside a call.
func (m *Manager) lookup(key amm.PoolKey) (Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(key)
}

func (m *Manager) lookupLocked(key amm.PoolKey) (Pool, error) {
	entry, ok := m.pools[key]
	if !ok {
		return Pool{}, fmt.Errorf("%w: %s", amm.ErrPoolNotFound, key.Hex())
	}
	return entry.pool.clone(), nil
}

func (m *Manager) sharesLocked(key amm.PoolKey, provider common.Address) *uint256.Int {
	entry, ok := m.pools[key]
	if !ok {
		return new(uint256.Int)
	}
	return amm.Clone(entry.shares[provider])
}

func (m *Manager) insert(ctx context.Context, key amm.PoolKey, token0, token1 common.Address, feeTier uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[key]; exists {
		return fmt.Errorf("create pool: %w: %s", amm.ErrPoolExists, key.Hex())
	}
	m.pools[key] = &poolEntry{
		pool: Pool{
			Key:         key,
			Token0:      token0,
			Token1:      token1,
			Reserve0:    new(uint256.Int),
			Reserve1:    new(uint256.Int),
			FeeTier:     feeTier,
			TotalShares: new(uint256.Int),
			Exists:      true,
		},
		shares: make(map[common.Address]*uint256.Int),
	}
	m.order = append(m.order, key)
	n := len(m.order) - 1
	m.rt.Journal(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.pools, key)
		m.order = m.order[:n]
	})
	return nil
}

// update applies fn to the pool under key and journals the previous pool
// record. Share writes inside fn journal themselves through putShares.
func (m *Manager) update(ctx context.Context, key amm.PoolKey, fn func(entry *poolEntry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pools[key]
	if !ok {
		return fmt.Errorf("%w: %s", amm.ErrPoolNotFound, key.Hex())
	}
	prev := entry.pool
	m.rt.Journal(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		entry.pool = prev
	})
	return fn(entry)
}

// putShares sets provider's shares, removing the entry at zero. The caller
// holds m.mu.
func (m *Manager) putShares(ctx context.Context, entry *poolEntry, provider common.Address, shares *uint256.Int) {
	if shares.IsZero() {
		shares = nil
	}
	amm.PutAmount(ctx, m.rt, &m.mu, entry.shares, provider, shares)
}
