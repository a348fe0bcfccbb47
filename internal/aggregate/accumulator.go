package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"ammcore/internal/model"
)

// Accumulator holds aggregate values for one pool window.
type Accumulator struct {
	ChainID        uint64
	PoolKey        string
	Manager        string
	PoolMeta       model.PoolMeta
	WindowStart    uint64
	WindowEnd      uint64
	SwapCount      uint64
	LiquidityCount uint64
	Volume0        *big.Int
	Volume1        *big.Int
	Fee0           *big.Int
	Fee1           *big.Int
	Reserve0       *big.Int
	Reserve1       *big.Int
	FirstBlock     uint64
	LastBlock      uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	acc := &Accumulator{
		ChainID:     record.ChainID,
		PoolKey:     record.PoolKey,
		Manager:     record.Address,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		FirstBlock:  record.BlockNumber,
		LastBlock:   record.BlockNumber,
	}
	if record.PoolMeta != nil {
		acc.PoolMeta = *record.PoolMeta
	}
	return acc
}

// AddEvent folds one decoded pool event into the window. Events must arrive
// in commit order so the last reserves seen are the window's closing reserves.
func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.BlockNumber > a.LastBlock {
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if record.PoolMeta != nil {
		if err := a.applyReserves(*record.PoolMeta); err != nil {
			return err
		}
	}

	switch record.EventName {
	case model.EventSwap:
		var swap model.SwapEventData
		if err := record.DecodeData(&swap); err != nil {
			return err
		}
		return a.applySwap(swap)
	case model.EventLiquidityAdded, model.EventLiquidityRemoved:
		a.LiquidityCount++
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applyReserves(meta model.PoolMeta) error {
	if a.PoolMeta.Token0 == "" {
		a.PoolMeta.Token0, a.PoolMeta.Token1, a.PoolMeta.FeeTier = meta.Token0, meta.Token1, meta.FeeTier
	}
	if meta.Reserve0 == "" || meta.Reserve1 == "" {
		return nil
	}
	reserve0, err := parseBigInt(meta.Reserve0)
	if err != nil {
		return err
	}
	reserve1, err := parseBigInt(meta.Reserve1)
	if err != nil {
		return err
	}
	a.Reserve0, a.Reserve1 = reserve0, reserve1
	return nil
}

// applySwap books volume and the exact fee on the input side.
func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	fee, err := parseBigInt(swap.Fee)
	if err != nil {
		return err
	}

	switch {
	case strings.EqualFold(swap.TokenIn, a.PoolMeta.Token0):
		a.Volume0.Add(a.Volume0, amountIn)
		a.Fee0.Add(a.Fee0, fee)
	case strings.EqualFold(swap.TokenIn, a.PoolMeta.Token1):
		a.Volume1.Add(a.Volume1, amountIn)
		a.Fee1.Add(a.Fee1, fee)
	default:
		return fmt.Errorf("swap token %s not in pool %s", swap.TokenIn, a.PoolKey)
	}
	a.SwapCount++
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}
