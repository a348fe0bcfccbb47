package eventlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ammcore/internal/amm"
	"ammcore/internal/dex"
	"ammcore/internal/model"
	"ammcore/internal/router"
	"ammcore/internal/storage"
	"ammcore/internal/system"
)

var (
	admin  = common.HexToAddress("0xa000000000000000000000000000000000000001")
	alice  = common.HexToAddress("0xa000000000000000000000000000000000000003")
	tokenA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func publishedSystem(t *testing.T) (*system.System, string) {
	t.Helper()
	sys, err := system.New(system.Config{Admin: admin, Now: func() time.Time { return epoch }}, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "events.jsonl")
	enc, err := NewEncoder(31337, func() time.Time { return epoch })
	require.NoError(t, err)
	NewPublisher(enc, storage.NewJsonlStorage(path), nil).Attach(sys.Runtime)
	require.NoError(t, sys.Bind(context.Background()))

	for _, tok := range []common.Address{tokenA, tokenB} {
		require.NoError(t, sys.Ledger.Mint(context.Background(), tok, alice, uint256.NewInt(1_000_000)))
		sys.Ledger.Approve(context.Background(), tok, alice, sys.Vault.Address(), uint256.NewInt(1_000_000))
	}
	return sys, path
}

func TestPublishedLogDecodesAndReconciles(t *testing.T) {
	sys, path := publishedSystem(t)
	ctx := amm.WithSender(context.Background(), alice)

	key, err := sys.Router.CreatePool(ctx, tokenA, tokenB, 3000)
	require.NoError(t, err)
	_, err = sys.Router.AddLiquidity(ctx, router.AddLiquidityRequest{
		TokenA: tokenA, TokenB: tokenB, FeeTier: 3000,
		AmountADesired: uint256.NewInt(100_000), AmountBDesired: uint256.NewInt(100_000),
		Recipient: alice,
	})
	require.NoError(t, err)
	swap, err := sys.Router.Swap(ctx, router.SwapRequest{
		TokenIn: tokenA, TokenOut: tokenB, FeeTier: 3000, AmountIn: uint256.NewInt(100), Recipient: alice,
	})
	require.NoError(t, err)
	require.NoError(t, sys.Vault.Pause(amm.WithSender(context.Background(), admin)))

	records, err := storage.ReadLogs(path)
	require.NoError(t, err)

	decoder, err := dex.NewAMMDecoder(dex.DecoderConfig{})
	require.NoError(t, err)
	dctx := dex.DecodeContext{PoolMetaCache: dex.NewPoolMetaCache()}

	var names []string
	var swapped model.SwapEventData
	for _, record := range records {
		require.Equal(t, uint64(31337), record.ChainID)
		require.Equal(t, uint64(epoch.Unix()), record.Timestamp)
		event, err := decoder.Decode(record, dctx)
		require.NoError(t, err)
		names = append(names, event.EventName)
		if data, ok := event.Decoded.(model.SwapEventData); ok {
			swapped = data
			require.Equal(t, sys.PoolManager.Address().Hex(), event.Address)
			require.Equal(t, uint32(3000), event.PoolMeta.FeeTier)
		}
	}
	require.Equal(t, []string{
		"LinkBound", "LinkBound",
		"PoolCreated",
		"LiquidityAdded",
		"ProtocolFeeRecorded", "Swap",
		"Paused",
	}, names)

	require.Equal(t, key.Hex(), swapped.PoolKey)
	require.Equal(t, alice.Hex(), swapped.Payer)
	require.Equal(t, tokenA.Hex(), swapped.TokenIn)
	require.Equal(t, amm.FormatAmount(swap.AmountOut), swapped.AmountOut)
	require.Equal(t, amm.FormatAmount(swap.Fee), swapped.Fee)

	res, err := Replay(records, decoder, dex.DecodeContext{})
	require.NoError(t, err)
	require.Equal(t, len(records), res.Decoded)
	require.Equal(t, sys.Runtime.Block(), res.LastBlock)
	require.Len(t, res.Pools, 1)
	require.Empty(t, Reconcile(context.Background(), res, sys.PoolManager))
}

func TestFailedCallPublishesNothing(t *testing.T) {
	sys, path := publishedSystem(t)
	before, err := storage.ReadLogs(path)
	require.NoError(t, err)

	_, err = sys.Router.CreatePool(amm.WithSender(context.Background(), alice), tokenA, tokenB, 7)
	require.ErrorIs(t, err, amm.ErrInvalidFeeTier)

	after, err := storage.ReadLogs(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestReplayDetectsDivergence(t *testing.T) {
	sys, path := publishedSystem(t)
	ctx := amm.WithSender(context.Background(), alice)
	_, err := sys.Router.CreatePool(ctx, tokenA, tokenB, 500)
	require.NoError(t, err)
	_, err = sys.Router.AddLiquidity(ctx, router.AddLiquidityRequest{
		TokenA: tokenA, TokenB: tokenB, FeeTier: 500,
		AmountADesired: uint256.NewInt(5_000), AmountBDesired: uint256.NewInt(5_000),
		Recipient: alice,
	})
	require.NoError(t, err)

	records, err := storage.ReadLogs(path)
	require.NoError(t, err)
	decoder, err := dex.NewAMMDecoder(dex.DecoderConfig{})
	require.NoError(t, err)

	truncated := records[:len(records)-1]
	res, err := Replay(truncated, decoder, dex.DecodeContext{})
	require.NoError(t, err)
	require.Len(t, Reconcile(context.Background(), res, sys.PoolManager), 1)

	swappedOrder := append([]model.LogRecord{records[1]}, records[0])
	_, err = Replay(swappedOrder, decoder, dex.DecodeContext{})
	require.Error(t, err)
}

func TestEncodeRejectsUnknownEvent(t *testing.T) {
	enc, err := NewEncoder(1, nil)
	require.NoError(t, err)
	_, err = enc.Encode(amm.Emitted{})
	require.Error(t, err)
	_, err = enc.Encode(amm.Emitted{Event: unknownEvent{}})
	require.Error(t, err)
}

type unknownEvent struct{}

func (unknownEvent) EventName() string { return "Unknown" }

func TestBlockHashIsChainScoped(t *testing.T) {
	require.NotEqual(t, BlockHash(1, 5), BlockHash(2, 5))
	require.NotEqual(t, BlockHash(1, 5), BlockHash(1, 6))
	require.Equal(t, BlockHash(1, 5), BlockHash(1, 5))
}
