package model

import (
	"encoding/json"
	"fmt"
)

// Event names as they appear in TypedEvent.EventName.
const (
	EventPoolCreated         = "PoolCreated"
	EventSwap                = "Swap"
	EventLiquidityAdded      = "LiquidityAdded"
	EventLiquidityRemoved    = "LiquidityRemoved"
	EventProtocolFeeRecorded = "ProtocolFeeRecorded"
	EventPaused              = "Paused"
	EventUnpaused            = "Unpaused"
	EventLinkBound           = "LinkBound"
)

// TypedEvent is a decoded contract event. Pool events carry the pool key and
// the pool's identity with its post-event reserves.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	PoolKey     string      `json:"pool_key,omitempty"`
	Decoded     interface{} `json:"decoded"`
	PoolMeta    *PoolMeta   `json:"pool_meta,omitempty"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps the undecoded payload for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// TypedEventRecord is a TypedEvent read back from JSONL. Decoded stays raw
// until the event name selects its type.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	PoolKey     string          `json:"pool_key,omitempty"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    *PoolMeta       `json:"pool_meta,omitempty"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// DecodeData unmarshals the event payload into v.
func (r TypedEventRecord) DecodeData(v interface{}) error {
	if len(r.Decoded) == 0 {
		return fmt.Errorf("decode %s: empty payload", r.EventName)
	}
	if err := json.Unmarshal(r.Decoded, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.EventName, err)
	}
	return nil
}

// IsPoolEvent reports whether the event belongs to a pool rather than to a
// contract as a whole.
func (r TypedEventRecord) IsPoolEvent() bool {
	return r.PoolKey != ""
}
