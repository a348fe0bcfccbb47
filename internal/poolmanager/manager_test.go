package poolmanager

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ammcore/internal/amm"
	"ammcore/internal/token"
	"ammcore/internal/vault"
)

var (
	admin    = common.HexToAddress("0xa000000000000000000000000000000000000001")
	routerAt = common.HexToAddress("0xa000000000000000000000000000000000000002")
	alice    = common.HexToAddress("0xa000000000000000000000000000000000000003")
	bob      = common.HexToAddress("0xa000000000000000000000000000000000000004")
	vaultAt  = common.HexToAddress("0xc000000000000000000000000000000000000001")
	pmAt     = common.HexToAddress("0xc000000000000000000000000000000000000002")

	tokenA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0x2000000000000000000000000000000000000002")
	tokenC = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

// fatalf is satisfied by *testing.T and *rapid.T.
type fatalf interface {
	Fatalf(format string, args ...any)
}

type fixture struct {
	rt     *amm.Runtime
	ledger *token.Ledger
	vault  *vault.Vault
	pm     *Manager
}

func newFixture(t fatalf) fixture {
	rt := amm.NewRuntime(amm.RuntimeConfig{}, nil)
	ledger := token.NewLedger(rt)
	v := vault.New(vaultAt, admin, rt, ledger, nil)
	pm := New(Config{Address: pmAt, Admin: admin}, rt, v, nil)

	adminCtx := amm.WithSender(context.Background(), admin)
	if err := v.SetPoolManager(adminCtx, pmAt); err != nil {
		t.Fatalf("bind pool manager: %v", err)
	}
	if err := pm.SetRouter(adminCtx, routerAt); err != nil {
		t.Fatalf("bind router: %v", err)
	}
	return fixture{rt: rt, ledger: ledger, vault: v, pm: pm}
}

func (f fixture) fund(t fatalf, owner common.Address, amount *uint256.Int, tokens ...common.Address) {
	for _, tok := range tokens {
		if err := f.ledger.Mint(context.Background(), tok, owner, amount); err != nil {
			t.Fatalf("mint: %v", err)
		}
		f.ledger.Approve(context.Background(), tok, owner, vaultAt, new(uint256.Int).SetAllOne())
	}
}

func (f fixture) seed(t fatalf, tokenX, tokenY common.Address, fee uint32, r0, r1 *uint256.Int) amm.PoolKey {
	key, err := f.pm.CreatePool(context.Background(), tokenX, tokenY, fee)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	pool := f.pm.Pools(context.Background(), key)
	_, err = f.pm.AddLiquidity(asRouter(), AddLiquidityParams{
		Key:            key,
		Token0:         pool.Token0,
		Token1:         pool.Token1,
		Amount0Desired: r0,
		Amount1Desired: r1,
		Payer:          alice,
		Recipient:      alice,
	})
	if err != nil {
		t.Fatalf("seed liquidity: %v", err)
	}
	return key
}

func asRouter() context.Context {
	return amm.WithSender(context.Background(), routerAt)
}

func e18(n int64) *uint256.Int {
	v, _ := uint256.FromBig(new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	return v
}

func TestCreatePoolExactlyOnce(t *testing.T) {
	f := newFixture(t)

	key, err := f.pm.CreatePool(context.Background(), tokenB, tokenA, 3000)
	require.NoError(t, err)
	require.Equal(t, amm.PoolKeyFor(tokenA, tokenB, 3000), key)

	pool := f.pm.Pools(context.Background(), key)
	require.True(t, pool.Exists)
	require.Equal(t, tokenA, pool.Token0)
	require.Equal(t, tokenB, pool.Token1)
	require.True(t, pool.Reserve0.IsZero())

	_, err = f.pm.CreatePool(context.Background(), tokenA, tokenB, 3000)
	require.ErrorIs(t, err, amm.ErrPoolExists)

	_, err = f.pm.CreatePool(context.Background(), tokenA, tokenB, 500)
	require.NoError(t, err)
	require.Len(t, f.pm.PoolKeys(context.Background()), 2)

	created := 0
	for _, e := range f.rt.Events() {
		if ev, ok := e.Event.(amm.PoolCreated); ok {
			created++
			require.Equal(t, tokenA, ev.Token0)
		}
	}
	require.Equal(t, 2, created)
}

func TestCreatePoolValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.pm.CreatePool(context.Background(), tokenA, tokenB, 1234)
	require.ErrorIs(t, err, amm.ErrInvalidFeeTier)
	_, err = f.pm.CreatePool(context.Background(), tokenA, tokenA, 3000)
	require.ErrorIs(t, err, amm.ErrInvalidInput)
	_, err = f.pm.CreatePool(context.Background(), tokenA, common.Address{}, 3000)
	require.ErrorIs(t, err, amm.ErrInvalidInput)
	require.False(t, f.pm.PoolExists(context.Background(), amm.PoolKeyFor(tokenA, tokenB, 1234)))
	require.False(t, f.pm.Pools(context.Background(), amm.PoolKeyFor(tokenA, tokenB, 1234)).Exists)
}

func TestConcreteSwapScenario(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, e18(1_000_000), tokenA, tokenB)
	f.fund(t, bob, e18(1_000), tokenA)
	key := f.seed(t, tokenA, tokenB, 3000, e18(100_000), e18(100_000))

	quote, err := f.pm.Quote(context.Background(), key, tokenA, tokenB, e18(100))
	require.NoError(t, err)

	res, err := f.pm.Swap(asRouter(), SwapParams{
		Key:       key,
		TokenIn:   tokenA,
		TokenOut:  tokenB,
		AmountIn:  e18(100),
		Payer:     bob,
		Recipient: bob,
	})
	require.NoError(t, err)
	require.Equal(t, quote, res.AmountOut)

	// out = 100000 * 99.7 / 100099.7 ≈ 99.6007
	low, high := amm.MustAmount("99600000000000000000"), amm.MustAmount("99610000000000000000")
	require.True(t, res.AmountOut.Gt(low) && res.AmountOut.Lt(high), "out %s", amm.FormatAmount(res.AmountOut))

	effective := new(big.Int).Div(new(big.Int).Mul(e18(100).ToBig(), big.NewInt(997_000)), big.NewInt(1_000_000))
	want := new(big.Int).Div(new(big.Int).Mul(e18(100_000).ToBig(), effective), new(big.Int).Add(e18(100_000).ToBig(), effective))
	require.Equal(t, want.String(), amm.FormatAmount(res.AmountOut))

	require.Equal(t, "300000000000000000", amm.FormatAmount(f.vault.ProtocolFee(context.Background(), tokenA)))
	require.Equal(t, "300000000000000000", amm.FormatAmount(res.Fee))

	r0, r1, err := f.pm.Reserves(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, amm.FormatAmount(e18(100_100)), amm.FormatAmount(r0))
	require.Equal(t, new(big.Int).Sub(e18(100_000).ToBig(), want).String(), amm.FormatAmount(r1))
	require.Equal(t, want.String(), amm.FormatAmount(f.ledger.BalanceOf(context.Background(), tokenB, bob)))
}

func TestSwapFailures(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(1_000_000), tokenA, tokenB, tokenC)
	key := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(100_000), uint256.NewInt(100_000))
	empty, err := f.pm.CreatePool(context.Background(), tokenA, tokenC, 3000)
	require.NoError(t, err)

	swap := func(p SwapParams) error {
		if p.Payer == (common.Address{}) {
			p.Payer, p.Recipient = alice, alice
		}
		_, err := f.pm.Swap(asRouter(), p)
		return err
	}

	err = swap(SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(1_000), MinAmountOut: uint256.NewInt(1_000)})
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)
	err = swap(SwapParams{Key: empty, TokenIn: tokenA, TokenOut: tokenC, AmountIn: uint256.NewInt(10)})
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
	err = swap(SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenC, AmountIn: uint256.NewInt(10)})
	require.ErrorIs(t, err, amm.ErrInvalidInput)
	err = swap(SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenA, AmountIn: uint256.NewInt(10)})
	require.ErrorIs(t, err, amm.ErrInvalidInput)
	err = swap(SwapParams{Key: amm.PoolKeyFor(tokenB, tokenC, 500), TokenIn: tokenB, TokenOut: tokenC, AmountIn: uint256.NewInt(10)})
	require.ErrorIs(t, err, amm.ErrPoolNotFound)
	err = swap(SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(1)})
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidity, "output rounds to zero")

	_, err = f.pm.Swap(amm.WithSender(context.Background(), alice), SwapParams{
		Key: key, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(10), Payer: alice, Recipient: alice,
	})
	require.ErrorIs(t, err, amm.ErrUnauthorized)

	r0, r1, err := f.pm.Reserves(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), r0.Uint64())
	require.Equal(t, uint64(100_000), r1.Uint64())
	require.True(t, f.vault.ProtocolFee(context.Background(), tokenA).IsZero())
}

func TestAddLiquidityKeepsRatio(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(1_000_000), tokenA, tokenB)
	f.fund(t, bob, uint256.NewInt(1_000_000), tokenA, tokenB)
	key := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(10_000), uint256.NewInt(40_000))
	require.Equal(t, uint64(20_000), f.pm.SharesOf(context.Background(), key, alice).Uint64())

	res, err := f.pm.AddLiquidity(asRouter(), AddLiquidityParams{
		Key: key, Token0: tokenA, Token1: tokenB,
		Amount0Desired: uint256.NewInt(1_000), Amount1Desired: uint256.NewInt(10_000),
		Payer: bob, Recipient: bob,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), res.Amount0.Uint64())
	require.Equal(t, uint64(4_000), res.Amount1.Uint64())
	require.Equal(t, uint64(2_000), res.Shares.Uint64())

	res, err = f.pm.AddLiquidity(asRouter(), AddLiquidityParams{
		Key: key, Token0: tokenA, Token1: tokenB,
		Amount0Desired: uint256.NewInt(1_000), Amount1Desired: uint256.NewInt(2_000),
		Payer: bob, Recipient: bob,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(500), res.Amount0.Uint64())
	require.Equal(t, uint64(2_000), res.Amount1.Uint64())

	_, err = f.pm.AddLiquidity(asRouter(), AddLiquidityParams{
		Key: key, Token0: tokenA, Token1: tokenB,
		Amount0Desired: uint256.NewInt(1_000), Amount1Desired: uint256.NewInt(2_000),
		Amount0Min: uint256.NewInt(600),
		Payer:      bob, Recipient: bob,
	})
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	_, err = f.pm.AddLiquidity(asRouter(), AddLiquidityParams{
		Key: key, Token0: tokenB, Token1: tokenA,
		Amount0Desired: uint256.NewInt(1), Amount1Desired: uint256.NewInt(1),
		Payer: bob, Recipient: bob,
	})
	require.ErrorIs(t, err, amm.ErrInvalidInput)
}

func TestRemoveLiquidity(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(1_000_000), tokenA, tokenB)
	key := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(10_000), uint256.NewInt(40_000))

	_, err := f.pm.RemoveLiquidity(asRouter(), RemoveLiquidityParams{
		Key: key, Shares: uint256.NewInt(20_001), Provider: alice, Recipient: alice,
	})
	require.ErrorIs(t, err, amm.ErrInsufficientShares)

	_, err = f.pm.RemoveLiquidity(asRouter(), RemoveLiquidityParams{
		Key: key, Shares: uint256.NewInt(5_000), Amount1Min: uint256.NewInt(10_001), Provider: alice, Recipient: alice,
	})
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	res, err := f.pm.RemoveLiquidity(asRouter(), RemoveLiquidityParams{
		Key: key, Shares: uint256.NewInt(5_000), Provider: alice, Recipient: bob,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2_500), res.Amount0.Uint64())
	require.Equal(t, uint64(10_000), res.Amount1.Uint64())
	require.Equal(t, uint64(15_000), f.pm.SharesOf(context.Background(), key, alice).Uint64())
	require.Equal(t, uint64(2_500), f.ledger.BalanceOf(context.Background(), tokenA, bob).Uint64())

	_, err = f.pm.RemoveLiquidity(asRouter(), RemoveLiquidityParams{
		Key: key, Shares: uint256.NewInt(1), Provider: bob, Recipient: bob,
	})
	require.ErrorIs(t, err, amm.ErrInsufficientShares)
}

func TestMultiPoolIsolation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(10_000_000), tokenA, tokenB, tokenC)
	x := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(100_000), uint256.NewInt(100_000))
	y := f.seed(t, tokenA, tokenC, 3000, uint256.NewInt(50_000), uint256.NewInt(70_000))
	z := f.seed(t, tokenA, tokenB, 500, uint256.NewInt(30_000), uint256.NewInt(30_000))

	before := map[amm.PoolKey]Pool{y: f.pm.Pools(context.Background(), y), z: f.pm.Pools(context.Background(), z)}
	for i := 0; i < 5; i++ {
		_, err := f.pm.Swap(asRouter(), SwapParams{
			Key: x, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(1_000), Payer: alice, Recipient: alice,
		})
		require.NoError(t, err)
	}
	for key, pool := range before {
		after := f.pm.Pools(context.Background(), key)
		require.Equal(t, pool.Reserve0, after.Reserve0)
		require.Equal(t, pool.Reserve1, after.Reserve1)
	}

	sum := new(uint256.Int)
	for _, key := range []amm.PoolKey{x, y, z} {
		sum.Add(sum, f.pm.Pools(context.Background(), key).Reserve0)
	}
	require.Equal(t, sum, f.vault.BalanceOf(context.Background(), tokenA), "vault holds exactly the reserves")
}

func TestPauseBlocksMutationsNotReads(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(1_000_000), tokenA, tokenB)
	key := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(10_000), uint256.NewInt(10_000))
	adminCtx := amm.WithSender(context.Background(), admin)

	require.NoError(t, f.pm.Pause(adminCtx))
	_, err := f.pm.CreatePool(context.Background(), tokenA, tokenC, 3000)
	require.ErrorIs(t, err, amm.ErrPaused)
	_, err = f.pm.Swap(asRouter(), SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(100), Payer: alice, Recipient: alice})
	require.ErrorIs(t, err, amm.ErrPaused)

	_, err = f.pm.Quote(context.Background(), key, tokenA, tokenB, uint256.NewInt(100))
	require.NoError(t, err)
	require.True(t, f.pm.Paused())

	require.ErrorIs(t, f.pm.SetRouter(adminCtx, bob), amm.ErrAlreadyBound)
	require.NoError(t, f.pm.Unpause(adminCtx))
	_, err = f.pm.Swap(asRouter(), SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(100), Payer: alice, Recipient: alice})
	require.NoError(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(1_000_000), tokenA, tokenB)
	key := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(10_000), uint256.NewInt(40_000))

	state := f.pm.Export()
	require.Len(t, state.Pools, 1)

	other := New(Config{Address: pmAt, Admin: admin}, amm.NewRuntime(amm.RuntimeConfig{}, nil), f.vault, nil)
	require.NoError(t, other.Import(state))
	require.Equal(t, f.pm.Pools(context.Background(), key), other.Pools(context.Background(), key))
	require.Equal(t, uint64(20_000), other.SharesOf(context.Background(), key, alice).Uint64())
	got, ok := other.Router()
	require.True(t, ok)
	require.Equal(t, routerAt, got)

	state.Pools[0].FeeTier = 500
	require.Error(t, other.Import(state))
}

func TestCreatePoolRequiresBoundLinks(t *testing.T) {
	rt := amm.NewRuntime(amm.RuntimeConfig{}, nil)
	v := vault.New(vaultAt, admin, rt, token.NewLedger(rt), nil)
	pm := New(Config{Address: pmAt, Admin: admin}, rt, v, nil)
	adminCtx := amm.WithSender(context.Background(), admin)

	_, err := pm.CreatePool(context.Background(), tokenA, tokenB, 3000)
	require.ErrorIs(t, err, amm.ErrUnauthorized)

	require.NoError(t, pm.SetRouter(adminCtx, routerAt))
	_, err = pm.CreatePool(context.Background(), tokenA, tokenB, 3000)
	require.ErrorIs(t, err, amm.ErrUnauthorized, "vault still unbound")

	require.NoError(t, v.SetPoolManager(adminCtx, bob))
	_, err = pm.CreatePool(context.Background(), tokenA, tokenB, 3000)
	require.ErrorIs(t, err, amm.ErrUnauthorized, "vault bound elsewhere")
	require.Empty(t, pm.PoolKeys(context.Background()))
}

func TestReadsWaitForSwapInFlight(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(1_000_000), tokenA, tokenB)
	key := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(10_000), uint256.NewInt(10_000))
	before := f.pm.Pools(context.Background(), key)
	vaultA := f.vault.BalanceOf(context.Background(), tokenA)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.ledger.SetHook(tokenB, func(ctx context.Context, tok, from, to common.Address, amount *uint256.Int) error {
		close(entered)
		<-release
		return errors.New("recipient rejects")
	})

	swapped := make(chan error, 1)
	go func() {
		_, err := f.pm.Swap(asRouter(), SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(1_000), Payer: alice, Recipient: alice})
		swapped <- err
	}()
	<-entered

	type reading struct {
		pool   Pool
		vaultA *uint256.Int
		alice  *uint256.Int
	}
	read := make(chan reading, 1)
	go func() {
		ctx := context.Background()
		read <- reading{
			pool:   f.pm.Pools(ctx, key),
			vaultA: f.vault.BalanceOf(ctx, tokenA),
			alice:  f.ledger.BalanceOf(ctx, tokenA, alice),
		}
	}()
	select {
	case got := <-read:
		t.Fatalf("read during swap: reserve0 %s vault %s", got.pool.Reserve0, got.vaultA)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.ErrorIs(t, <-swapped, amm.ErrTransferFailed)

	select {
	case got := <-read:
		require.Equal(t, before, got.pool)
		require.Equal(t, vaultA, got.vaultA)
		require.Equal(t, uint64(990_000), got.alice.Uint64())
	case <-time.After(2 * time.Second):
		t.Fatalf("reads never completed")
	}
}

func TestPanickingTokenLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, uint256.NewInt(1_000_000), tokenA, tokenB)
	key := f.seed(t, tokenA, tokenB, 3000, uint256.NewInt(10_000), uint256.NewInt(10_000))
	before := f.pm.Pools(context.Background(), key)
	events := len(f.rt.Events())

	f.ledger.SetHook(tokenB, func(ctx context.Context, tok, from, to common.Address, amount *uint256.Int) error {
		panic("token contract bug")
	})
	params := SwapParams{Key: key, TokenIn: tokenA, TokenOut: tokenB, AmountIn: uint256.NewInt(1_000), Payer: alice, Recipient: alice}
	require.Panics(t, func() { _, _ = f.pm.Swap(asRouter(), params) })

	require.Equal(t, before, f.pm.Pools(context.Background(), key))
	require.Equal(t, before.Reserve0, f.vault.BalanceOf(context.Background(), tokenA))
	require.Equal(t, before.Reserve1, f.vault.BalanceOf(context.Background(), tokenB))
	require.Equal(t, uint64(990_000), f.ledger.BalanceOf(context.Background(), tokenA, alice).Uint64())
	require.True(t, f.vault.ProtocolFee(context.Background(), tokenA).IsZero())
	require.Len(t, f.rt.Events(), events)

	f.ledger.SetHook(tokenB, nil)
	done := make(chan error, 1)
	go func() {
		_, err := f.pm.Swap(asRouter(), params)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("swap after panic never completed")
	}
}
