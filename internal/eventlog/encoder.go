package eventlog

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"ammcore/internal/amm"
	"ammcore/internal/dex"
	"ammcore/internal/model"
)

// Encoder turns committed contract events into EVM-style log records.
type Encoder struct {
	chainID uint64
	ammABI  abi.ABI
	now     func() time.Time
}

// NewEncoder builds an encoder stamping records with chainID. now stamps
// IngestedAt and defaults to time.Now.
func NewEncoder(chainID uint64, now func() time.Time) (*Encoder, error) {
	parsed, err := dex.AMMABI()
	if err != nil {
		return nil, fmt.Errorf("parse amm abi: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Encoder{chainID: chainID, ammABI: parsed, now: now}, nil
}

// EncodeBatch encodes the events of one or more committed calls in order.
func (e *Encoder) EncodeBatch(events []amm.Emitted) ([]model.LogRecord, error) {
	out := make([]model.LogRecord, 0, len(events))
	for _, ev := range events {
		record, err := e.Encode(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// Encode converts one committed event. Each committed call is one block with
// a single transaction, so block and tx hashes derive from the block number.
func (e *Encoder) Encode(ev amm.Emitted) (model.LogRecord, error) {
	if ev.Event == nil {
		return model.LogRecord{}, fmt.Errorf("encode: nil event")
	}
	name := ev.Event.EventName()
	event, ok := e.ammABI.Events[name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("encode: unknown event %s", name)
	}

	indexed, values, err := arguments(ev.Event)
	if err != nil {
		return model.LogRecord{}, err
	}
	topics, err := encodeTopics(event, indexed)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("encode %s topics: %w", name, err)
	}
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("encode %s data: %w", name, err)
	}

	blockHash := BlockHash(e.chainID, ev.Block)
	return model.LogRecord{
		ChainID:     e.chainID,
		BlockNumber: ev.Block,
		BlockHash:   blockHash.Hex(),
		TxHash:      crypto.Keccak256Hash(blockHash.Bytes(), []byte{0}).Hex(),
		TxIndex:     0,
		LogIndex:    uint64(ev.Index),
		Address:     ev.Contract.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   ev.Timestamp,
		IngestedAt:  e.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// BlockHash derives the synthetic hash of a committed call.
func BlockHash(chainID, block uint64) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], chainID)
	binary.BigEndian.PutUint64(buf[8:], block)
	return crypto.Keccak256Hash(buf[:])
}

// arguments splits an event into its indexed topic values and ABI-ordered
// non-indexed values.
func arguments(event amm.Event) ([]interface{}, []interface{}, error) {
	switch ev := event.(type) {
	case amm.PoolCreated:
		return []interface{}{ev.Key.Hash(), ev.Token0, ev.Token1},
			[]interface{}{new(big.Int).SetUint64(uint64(ev.FeeTier))}, nil
	case amm.Swapped:
		return []interface{}{ev.Key.Hash(), ev.Payer, ev.Recipient},
			[]interface{}{ev.TokenIn, ev.TokenOut, toBig(ev.AmountIn), toBig(ev.AmountOut), toBig(ev.Fee), toBig(ev.Reserve0), toBig(ev.Reserve1)}, nil
	case amm.LiquidityAdded:
		return []interface{}{ev.Key.Hash(), ev.Provider, ev.Recipient},
			[]interface{}{toBig(ev.Amount0), toBig(ev.Amount1), toBig(ev.Shares), toBig(ev.Reserve0), toBig(ev.Reserve1)}, nil
	case amm.LiquidityRemoved:
		return []interface{}{ev.Key.Hash(), ev.Provider, ev.Recipient},
			[]interface{}{toBig(ev.Amount0), toBig(ev.Amount1), toBig(ev.Shares), toBig(ev.Reserve0), toBig(ev.Reserve1)}, nil
	case amm.ProtocolFeeRecorded:
		return []interface{}{ev.Token}, []interface{}{toBig(ev.Amount), toBig(ev.Total)}, nil
	case amm.PauseChanged:
		return nil, []interface{}{ev.Account}, nil
	case amm.LinkBound:
		return []interface{}{ev.Target}, []interface{}{ev.Name}, nil
	default:
		return nil, nil, fmt.Errorf("encode: unsupported event type %T", event)
	}
}

func encodeTopics(event abi.Event, indexed []interface{}) ([]string, error) {
	query := make([][]interface{}, len(indexed))
	for i, value := range indexed {
		query[i] = []interface{}{value}
	}
	hashes, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(hashes)+1)
	topics = append(topics, event.ID.Hex())
	for _, h := range hashes {
		topics = append(topics, h[0].Hex())
	}
	return topics, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
