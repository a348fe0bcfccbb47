package eventlog

import (
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"ammcore/internal/amm"
	"ammcore/internal/dex"
	"ammcore/internal/model"
)

// PoolReplay is the last state of a pool as reported by its event log.
type PoolReplay struct {
	Key      amm.PoolKey
	Meta     model.PoolMeta
	Events   int
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

// ReplayResult summarizes a replayed log.
type ReplayResult struct {
	Pools     map[amm.PoolKey]*PoolReplay
	Decoded   int
	Skipped   int
	LastBlock uint64
}

// Replay decodes records in commit order and folds them into per-pool
// reserves. Records must be ordered by block then log index.
func Replay(records []model.LogRecord, decoder dex.Decoder, ctx dex.DecodeContext) (ReplayResult, error) {
	res := ReplayResult{Pools: make(map[amm.PoolKey]*PoolReplay)}
	if ctx.PoolMetaCache == nil {
		ctx.PoolMetaCache = dex.NewPoolMetaCache()
	}

	var prevBlock, prevIndex uint64
	for i, record := range records {
		if i > 0 && (record.BlockNumber < prevBlock || (record.BlockNumber == prevBlock && record.LogIndex <= prevIndex)) {
			return res, fmt.Errorf("replay: record %d out of order at block %d log %d", i, record.BlockNumber, record.LogIndex)
		}
		prevBlock, prevIndex = record.BlockNumber, record.LogIndex
		res.LastBlock = record.BlockNumber

		if !decoder.CanDecode(record.Topic0()) {
			res.Skipped++
			continue
		}
		event, err := decoder.Decode(record, ctx)
		if err != nil {
			return res, fmt.Errorf("replay block %d log %d: %w", record.BlockNumber, record.LogIndex, err)
		}
		res.Decoded++
		if event.PoolKey == "" || event.PoolMeta == nil {
			continue
		}

		key, err := amm.ParsePoolKey(event.PoolKey)
		if err != nil {
			return res, err
		}
		pool := res.Pools[key]
		if pool == nil {
			pool = &PoolReplay{Key: key, Reserve0: new(uint256.Int), Reserve1: new(uint256.Int)}
			res.Pools[key] = pool
		}
		pool.Meta = *event.PoolMeta
		pool.Events++
		if event.PoolMeta.Reserve0 != "" {
			if pool.Reserve0, err = amm.ParseAmount(event.PoolMeta.Reserve0); err != nil {
				return res, err
			}
			if pool.Reserve1, err = amm.ParseAmount(event.PoolMeta.Reserve1); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// ReserveReader reads the live reserves of a pool.
type ReserveReader interface {
	Reserves(ctx context.Context, key amm.PoolKey) (*uint256.Int, *uint256.Int, error)
}

// Reconcile compares replayed reserves with live ones and returns one
// message per mismatching pool.
func Reconcile(ctx context.Context, res ReplayResult, live ReserveReader) []string {
	var mismatches []string
	for key, pool := range res.Pools {
		r0, r1, err := live.Reserves(ctx, key)
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("pool %s: %v", key, err))
			continue
		}
		if !r0.Eq(pool.Reserve0) || !r1.Eq(pool.Reserve1) {
			mismatches = append(mismatches, fmt.Sprintf("pool %s: log reserves %s/%s, live %s/%s",
				key, amm.FormatAmount(pool.Reserve0), amm.FormatAmount(pool.Reserve1), amm.FormatAmount(r0), amm.FormatAmount(r1)))
		}
	}
	sort.Strings(mismatches)
	return mismatches
}
