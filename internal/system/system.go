package system

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/metrics"
	"ammcore/internal/model"
	"ammcore/internal/poolmanager"
	"ammcore/internal/router"
	"ammcore/internal/token"
	"ammcore/internal/vault"
)

// Config describes a deployment.
type Config struct {
	Admin      common.Address
	FeeTiers   []uint32
	Now        func() time.Time
	StartBlock uint64
	Registerer prometheus.Registerer
}

// System is one deployed vault, pool manager and router sharing a runtime
// and token ledger.
type System struct {
	Admin       common.Address
	Runtime     *amm.Runtime
	Ledger      *token.Ledger
	Vault       *vault.Vault
	PoolManager *poolmanager.Manager
	Router      *router.Router
	Metrics     *metrics.Recorder
}

// Addresses derives the contract addresses an admin deploys, in deployment
// order: vault, pool manager, router.
func Addresses(admin common.Address) (vaultAddr, poolManagerAddr, routerAddr common.Address) {
	return crypto.CreateAddress(admin, 0), crypto.CreateAddress(admin, 1), crypto.CreateAddress(admin, 2)
}

// New constructs the contracts without binding their links.
func New(cfg Config, logger *zap.Logger) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("new system: %w: zero admin", amm.ErrInvalidInput)
	}
	for _, tier := range cfg.FeeTiers {
		if tier == 0 || tier >= amm.FeeDenominator {
			return nil, fmt.Errorf("new system: %w: %d", amm.ErrInvalidFeeTier, tier)
		}
	}

	vaultAddr, pmAddr, routerAddr := Addresses(cfg.Admin)
	rt := amm.NewRuntime(amm.RuntimeConfig{Now: cfg.Now, StartBlock: cfg.StartBlock}, logger)
	ledger := token.NewLedger(rt)

	v := vault.New(vaultAddr, cfg.Admin, rt, ledger, logger)
	pm := poolmanager.New(poolmanager.Config{Address: pmAddr, Admin: cfg.Admin, FeeTiers: cfg.FeeTiers}, rt, v, logger)
	rec := metrics.New(cfg.Registerer)
	r := router.New(router.Config{Address: routerAddr, Admin: cfg.Admin}, rt, pm, rec, logger)

	return &System{
		Admin:       cfg.Admin,
		Runtime:     rt,
		Ledger:      ledger,
		Vault:       v,
		PoolManager: pm,
		Router:      r,
		Metrics:     rec,
	}, nil
}

// Deploy constructs the contracts and binds their links.
func Deploy(ctx context.Context, cfg Config, logger *zap.Logger) (*System, error) {
	sys, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := sys.Bind(ctx); err != nil {
		return nil, err
	}
	return sys, nil
}

// Bind links vault→pool manager and pool manager→router in one call made by
// the admin. Commit listeners attached before Bind observe the LinkBound events.
func (s *System) Bind(ctx context.Context) error {
	admin := amm.WithSender(ctx, s.Admin)
	return s.Runtime.Transact(admin, func(ctx context.Context) error {
		if err := s.Vault.SetPoolManager(ctx, s.PoolManager.Address()); err != nil {
			return fmt.Errorf("deploy: %w", err)
		}
		if err := s.PoolManager.SetRouter(ctx, s.Router.Address()); err != nil {
			return fmt.Errorf("deploy: %w", err)
		}
		return nil
	})
}

// Contract returns the name of the contract at addr, or "" if none.
func (s *System) Contract(addr common.Address) string {
	switch addr {
	case s.Vault.Address():
		return "vault"
	case s.PoolManager.Address():
		return "pool_manager"
	case s.Router.Address():
		return "router"
	default:
		return ""
	}
}

// PoolMeta resolves a pool's identity and live reserves; it lets the event
// decoder handle logs whose PoolCreated record was written elsewhere.
func (s *System) PoolMeta(key amm.PoolKey) (model.PoolMeta, bool) {
	pool := s.PoolManager.Pools(context.Background(), key)
	if !pool.Exists {
		return model.PoolMeta{}, false
	}
	return model.PoolMeta{
		Token0:   pool.Token0.Hex(),
		Token1:   pool.Token1.Hex(),
		FeeTier:  pool.FeeTier,
		Reserve0: amm.FormatAmount(pool.Reserve0),
		Reserve1: amm.FormatAmount(pool.Reserve1),
	}, true
}
