package router

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/metrics"
	"ammcore/internal/poolmanager"
)

// PoolManager is the pool manager surface the router forwards to.
type PoolManager interface {
	CreatePool(ctx context.Context, tokenA, tokenB common.Address, feeTier uint32) (amm.PoolKey, error)
	AddLiquidity(ctx context.Context, params poolmanager.AddLiquidityParams) (poolmanager.LiquidityResult, error)
	RemoveLiquidity(ctx context.Context, params poolmanager.RemoveLiquidityParams) (poolmanager.LiquidityResult, error)
	Swap(ctx context.Context, params poolmanager.SwapParams) (poolmanager.SwapResult, error)
	Quote(ctx context.Context, key amm.PoolKey, tokenIn, tokenOut common.Address, amountIn *uint256.Int) (*uint256.Int, error)
}

// Config configures a Router.
type Config struct {
	Address common.Address
	Admin   common.Address
}

// Router is the user entry point. It holds no balances; it validates intent,
// resolves the canonical pool and forwards to the pool manager.
type Router struct {
	address common.Address
	admin   common.Address
	rt      *amm.Runtime
	pm      PoolManager
	metrics *metrics.Recorder
	logger  *zap.Logger

	mu    sync.RWMutex
	guard amm.Guard
	pause amm.Pausable
}

func New(cfg Config, rt *amm.Runtime, pm PoolManager, rec *metrics.Recorder, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		address: cfg.Address,
		admin:   cfg.Admin,
		rt:      rt,
		pm:      pm,
		metrics: rec,
		logger:  logger.With(zap.String("contract", "router")),
	}
}

func (r *Router) Address() common.Address { return r.address }

// CreatePool creates the canonical pool for a pair and fee tier.
func (r *Router) CreatePool(ctx context.Context, tokenA, tokenB common.Address, feeTier uint32) (key amm.PoolKey, err error) {
	defer r.record(ctx, "create_pool", time.Now(), &err)
	err = r.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := r.enter("create pool", time.Time{})
		if err != nil {
			return err
		}
		defer release()

		key, err = r.pm.CreatePool(amm.WithSender(ctx, r.address), tokenA, tokenB, feeTier)
		if err != nil {
			return err
		}
		r.rt.AfterCommit(ctx, r.metrics.ObservePoolCreated)
		return nil
	})
	if err != nil {
		return amm.PoolKey{}, err
	}
	return key, nil
}

// AddLiquidity deposits the caller's tokens and credits shares to Recipient.
func (r *Router) AddLiquidity(ctx context.Context, req AddLiquidityRequest) (result LiquidityResult, err error) {
	defer r.record(ctx, "add_liquidity", time.Now(), &err)
	err = r.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := r.enter("add liquidity", req.Deadline)
		if err != nil {
			return err
		}
		defer release()

		params, flipped, err := req.params(amm.Sender(ctx))
		if err != nil {
			return err
		}
		res, err := r.pm.AddLiquidity(amm.WithSender(ctx, r.address), params)
		if err != nil {
			return err
		}
		result = userOrder(params.Key, res, flipped)
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}

// RemoveLiquidity burns the caller's shares and pays Recipient.
func (r *Router) RemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) (result LiquidityResult, err error) {
	defer r.record(ctx, "remove_liquidity", time.Now(), &err)
	err = r.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := r.enter("remove liquidity", req.Deadline)
		if err != nil {
			return err
		}
		defer release()

		params, flipped, err := req.params(amm.Sender(ctx))
		if err != nil {
			return err
		}
		res, err := r.pm.RemoveLiquidity(amm.WithSender(ctx, r.address), params)
		if err != nil {
			return err
		}
		result = userOrder(params.Key, res, flipped)
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}

// Swap trades an exact amount of the caller's TokenIn for TokenOut.
func (r *Router) Swap(ctx context.Context, req SwapRequest) (result SwapResult, err error) {
	defer r.record(ctx, "swap", time.Now(), &err)
	err = r.rt.Transact(ctx, func(ctx context.Context) error {
		release, err := r.enter("swap", req.Deadline)
		if err != nil {
			return err
		}
		defer release()

		params, err := req.params(amm.Sender(ctx))
		if err != nil {
			return err
		}
		res, err := r.pm.Swap(amm.WithSender(ctx, r.address), params)
		if err != nil {
			return err
		}
		result = SwapResult{Key: params.Key, AmountIn: res.AmountIn, AmountOut: res.AmountOut, Fee: res.Fee}
		r.rt.AfterCommit(ctx, func() {
			r.metrics.ObserveSwap(params.Key, params.TokenIn.Hex(), toFloat(res.AmountIn), toFloat(res.Fee))
		})
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}
	return result, nil
}

// Quote prices an exact-input swap through the canonical pool.
func (r *Router) Quote(ctx context.Context, tokenIn, tokenOut common.Address, feeTier uint32, amountIn *uint256.Int) (*uint256.Int, error) {
	if tokenIn == tokenOut {
		return nil, fmt.Errorf("quote: %w: identical tokens", amm.ErrInvalidInput)
	}
	return r.pm.Quote(ctx, amm.PoolKeyFor(tokenIn, tokenOut, feeTier), tokenIn, tokenOut, amountIn)
}

func (r *Router) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pause.Paused()
}

func (r *Router) Pause(ctx context.Context) error   { return r.setPaused(ctx, true) }
func (r *Router) Unpause(ctx context.Context) error { return r.setPaused(ctx, false) }

func (r *Router) setPaused(ctx context.Context, paused bool) error {
	return r.rt.Transact(ctx, func(ctx context.Context) error {
		if err := amm.RequireAdmin(ctx, r.admin, "set paused"); err != nil {
			return err
		}
		r.mu.Lock()
		changed := amm.SetPaused(ctx, r.rt, &r.mu, &r.pause, paused)
		r.mu.Unlock()
		if changed {
			r.rt.Emit(ctx, r.address, amm.PauseChanged{Paused: paused, Account: amm.Sender(ctx)})
			r.logger.Info("pause changed", zap.Bool("paused", paused))
		}
		return nil
	})
}

// enter checks pause and deadline, then takes the reentrancy lock.
func (r *Router) enter(op string, deadline time.Time) (func(), error) {
	if err := r.pause.Require(op); err != nil {
		return nil, err
	}
	if !deadline.IsZero() && r.rt.Now().After(deadline) {
		return nil, fmt.Errorf("%s: %w at %s", op, amm.ErrDeadlineExpired, deadline.UTC().Format(time.RFC3339))
	}
	return r.guard.Enter(op)
}

// record counts a routed call. Rejections count at once; successes count
// when the outermost call commits, so a nested call undone by its caller is
// never reported.
func (r *Router) record(ctx context.Context, op string, started time.Time, err *error) {
	if *err == nil {
		r.rt.AfterCommit(ctx, func() { r.metrics.ObserveCall(op, started, nil) })
		return
	}
	r.metrics.ObserveCall(op, started, *err)
	r.logger.Debug("call rejected",
		zap.String("op", op),
		zap.String("kind", amm.KindOf(*err)),
		zap.Error(*err),
	)
}

func toFloat(value *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(amm.Clone(value).ToBig()).Float64()
	return f
}

// State is the persisted form of the router.
type State struct {
	Paused bool `json:"paused"`
}

func (r *Router) Export() State {
	return State{Paused: r.Paused()}
}

func (r *Router) Import(state State) {
	r.mu.Lock()
	r.pause.Set(state.Paused)
	r.mu.Unlock()
}
