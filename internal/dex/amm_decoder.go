package dex

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ammcore/internal/amm"
	"ammcore/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map adds aliases from a topic0 hash to a known event name.
	Topic0Map map[string]string
}

// AMMDecoder decodes vault, pool manager and router event logs.
type AMMDecoder struct {
	ammABI      abi.ABI
	topicToName map[string]string
}

// NewAMMDecoder builds an AMM event decoder.
func NewAMMDecoder(cfg DecoderConfig) (*AMMDecoder, error) {
	parsed, err := AMMABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(parsed, name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &AMMDecoder{
		ammABI:      parsed,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *AMMDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent. Pool events are enriched with
// the pool identity learned from PoolCreated and the reserves they carry.
func (d *AMMDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}

	switch name {
	case model.EventPoolCreated:
		decoded, err := d.decodePoolCreated(log)
		if err != nil {
			return nil, err
		}
		key, err := amm.ParsePoolKey(decoded.PoolKey)
		if err != nil {
			return nil, err
		}
		meta := model.PoolMeta{Token0: decoded.Token0, Token1: decoded.Token1, FeeTier: decoded.FeeTier}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(key, meta)
		}
		callCtx := ctx.Context
		if callCtx == nil {
			callCtx = context.Background()
		}
		WarmTokenMeta(callCtx, ctx.Chain, ctx.TokenMetaCache, ctx.Logger,
			common.HexToAddress(decoded.Token0), common.HexToAddress(decoded.Token1))
		return buildTypedEvent(log, name, decoded, decoded.PoolKey, &meta), nil
	case model.EventSwap:
		decoded, err := d.decodeSwap(log)
		if err != nil {
			return nil, err
		}
		meta, err := poolMeta(ctx, decoded.PoolKey, decoded.Reserve0, decoded.Reserve1)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, decoded.PoolKey, meta), nil
	case model.EventLiquidityAdded, model.EventLiquidityRemoved:
		decoded, err := d.decodeLiquidity(log, name)
		if err != nil {
			return nil, err
		}
		meta, err := poolMeta(ctx, decoded.PoolKey, decoded.Reserve0, decoded.Reserve1)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, decoded.PoolKey, meta), nil
	case model.EventProtocolFeeRecorded:
		decoded, err := d.decodeProtocolFee(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, "", nil), nil
	case model.EventPaused, model.EventUnpaused:
		decoded, err := d.decodePause(log, name)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, "", nil), nil
	case model.EventLinkBound:
		decoded, err := d.decodeLinkBound(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, "", nil), nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func normalizeEventName(parsed abi.ABI, name string) string {
	trimmed := strings.TrimSpace(name)
	for known := range parsed.Events {
		if strings.EqualFold(known, trimmed) {
			return known
		}
	}
	return ""
}

// poolMeta resolves the pool identity and stamps it with the post-event
// reserves, which also become the cached latest reserves.
func poolMeta(ctx DecodeContext, poolKey, reserve0, reserve1 string) (*model.PoolMeta, error) {
	key, err := amm.ParsePoolKey(poolKey)
	if err != nil {
		return nil, err
	}

	var meta model.PoolMeta
	var ok bool
	if ctx.PoolMetaCache != nil {
		meta, ok = ctx.PoolMetaCache.Get(key)
	}
	if !ok && ctx.Pools != nil {
		meta, ok = ctx.Pools.PoolMeta(key)
	}
	if !ok {
		return nil, fmt.Errorf("unknown pool %s", poolKey)
	}

	meta.Reserve0 = reserve0
	meta.Reserve1 = reserve1
	if ctx.PoolMetaCache != nil {
		ctx.PoolMetaCache.Set(key, meta)
	}
	return &meta, nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, poolKey string, meta *model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		PoolKey:     poolKey,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         raw,
	}
}

func (d *AMMDecoder) decodePoolCreated(log model.LogRecord) (model.PoolCreatedEventData, error) {
	event := d.ammABI.Events[model.EventPoolCreated]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.PoolCreatedEventData{}, err
	}

	var indexed struct {
		PoolKey [32]byte
		Token0  common.Address
		Token1  common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.PoolCreatedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.PoolCreatedEventData{}, err
	}
	if len(values) != 1 {
		return model.PoolCreatedEventData{}, fmt.Errorf("unexpected pool created values: %d", len(values))
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return model.PoolCreatedEventData{}, err
	}

	return model.PoolCreatedEventData{
		PoolKey: common.Hash(indexed.PoolKey).Hex(),
		Token0:  indexed.Token0.Hex(),
		Token1:  indexed.Token1.Hex(),
		FeeTier: uint32(fee.Uint64()),
	}, nil
}

func (d *AMMDecoder) decodeSwap(log model.LogRecord) (model.SwapEventData, error) {
	event := d.ammABI.Events[model.EventSwap]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.SwapEventData{}, err
	}

	var indexed struct {
		PoolKey   [32]byte
		Payer     common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.SwapEventData{}, err
	}
	if len(values) != 7 {
		return model.SwapEventData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	tokenIn, err := asAddress(values[0])
	if err != nil {
		return model.SwapEventData{}, err
	}
	tokenOut, err := asAddress(values[1])
	if err != nil {
		return model.SwapEventData{}, err
	}
	amounts, err := bigStrings(values[2:])
	if err != nil {
		return model.SwapEventData{}, err
	}

	return model.SwapEventData{
		PoolKey:   common.Hash(indexed.PoolKey).Hex(),
		Payer:     indexed.Payer.Hex(),
		Recipient: indexed.Recipient.Hex(),
		TokenIn:   tokenIn.Hex(),
		TokenOut:  tokenOut.Hex(),
		AmountIn:  amounts[0],
		AmountOut: amounts[1],
		Fee:       amounts[2],
		Reserve0:  amounts[3],
		Reserve1:  amounts[4],
	}, nil
}

func (d *AMMDecoder) decodeLiquidity(log model.LogRecord, name string) (model.LiquidityEventData, error) {
	event := d.ammABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.LiquidityEventData{}, err
	}

	var indexed struct {
		PoolKey   [32]byte
		Provider  common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.LiquidityEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.LiquidityEventData{}, err
	}
	if len(values) != 5 {
		return model.LiquidityEventData{}, fmt.Errorf("unexpected liquidity values: %d", len(values))
	}
	amounts, err := bigStrings(values)
	if err != nil {
		return model.LiquidityEventData{}, err
	}

	return model.LiquidityEventData{
		PoolKey:   common.Hash(indexed.PoolKey).Hex(),
		Provider:  indexed.Provider.Hex(),
		Recipient: indexed.Recipient.Hex(),
		Amount0:   amounts[0],
		Amount1:   amounts[1],
		Shares:    amounts[2],
		Reserve0:  amounts[3],
		Reserve1:  amounts[4],
	}, nil
}

func (d *AMMDecoder) decodeProtocolFee(log model.LogRecord) (model.ProtocolFeeEventData, error) {
	event := d.ammABI.Events[model.EventProtocolFeeRecorded]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.ProtocolFeeEventData{}, err
	}

	var indexed struct {
		Token common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.ProtocolFeeEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.ProtocolFeeEventData{}, err
	}
	if len(values) != 2 {
		return model.ProtocolFeeEventData{}, fmt.Errorf("unexpected protocol fee values: %d", len(values))
	}
	amounts, err := bigStrings(values)
	if err != nil {
		return model.ProtocolFeeEventData{}, err
	}

	return model.ProtocolFeeEventData{
		Token:  indexed.Token.Hex(),
		Amount: amounts[0],
		Total:  amounts[1],
	}, nil
}

func (d *AMMDecoder) decodePause(log model.LogRecord, name string) (model.PauseEventData, error) {
	event := d.ammABI.Events[name]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return model.PauseEventData{}, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.PauseEventData{}, err
	}
	if len(values) != 1 {
		return model.PauseEventData{}, fmt.Errorf("unexpected %s values: %d", strings.ToLower(name), len(values))
	}
	account, err := asAddress(values[0])
	if err != nil {
		return model.PauseEventData{}, err
	}
	return model.PauseEventData{Account: account.Hex()}, nil
}

func (d *AMMDecoder) decodeLinkBound(log model.LogRecord) (model.LinkBoundEventData, error) {
	event := d.ammABI.Events[model.EventLinkBound]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.LinkBoundEventData{}, err
	}

	var indexed struct {
		Target common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.LinkBoundEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.LinkBoundEventData{}, err
	}
	if len(values) != 1 {
		return model.LinkBoundEventData{}, fmt.Errorf("unexpected link values: %d", len(values))
	}
	name, ok := values[0].(string)
	if !ok {
		return model.LinkBoundEventData{}, fmt.Errorf("unsupported string type %T", values[0])
	}
	return model.LinkBoundEventData{Name: name, Target: indexed.Target.Hex()}, nil
}

func bigStrings(values []interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, value := range values {
		v, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out[i] = v.String()
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
