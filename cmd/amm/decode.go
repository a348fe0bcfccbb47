package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/chain"
	"ammcore/internal/config"
	"ammcore/internal/dex"
	"ammcore/internal/model"
	"ammcore/internal/storage"
	"ammcore/internal/system"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decodeCtx := dex.DecodeContext{
		Context:        ctx,
		PoolMetaCache:  dex.NewPoolMetaCache(),
		TokenMetaCache: dex.NewTokenMetaCache(),
		Logger:         logger,
	}

	// Token metadata is only meaningful for records from the RPC's own chain.
	var rpcChainID uint64
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		if rpcChainID, err = chainClient.ChainID(ctx); err != nil {
			return err
		}
		decodeCtx.Chain = chainClient
	}

	if cfg.StateFile != "" {
		sys, err := loadSystem(cfg.StateFile, logger)
		if err != nil {
			return err
		}
		if sys != nil {
			decodeCtx.Pools = sys
		}
	}

	decoder, err := dex.NewAMMDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Uint64("rpc_chain_id", rpcChainID),
		zap.Bool("state", decodeCtx.Pools != nil),
	)

	var total, decoded, skipped, failed int
	err = storage.ScanJSONL(cfg.In, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			writeDecodeError(errWriter, model.DecodeError{Line: total, Error: err.Error()})
			return nil
		}
		if len(record.Topics) == 0 {
			failed++
			writeDecodeError(errWriter, model.NewDecodeError(record, fmt.Errorf("missing topic0")))
			return nil
		}

		if rpcChainID != 0 && record.ChainID != rpcChainID {
			failed++
			writeDecodeError(errWriter, model.NewDecodeError(record, fmt.Errorf("record chain id %d, rpc chain id %d", record.ChainID, rpcChainID)))
			return nil
		}

		if !decoder.CanDecode(record.Topic0()) {
			skipped++
			return nil
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			failed++
			writeDecodeError(errWriter, model.NewDecodeError(record, err))
			return nil
		}

		if err := outWriter.Write(event); err != nil {
			return err
		}
		decoded++
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Int("pools", decodeCtx.PoolMetaCache.Len()),
	)

	return nil
}

// loadSystem restores a deployment from path, or returns nil when none exists.
func loadSystem(path string, logger *zap.Logger) (*system.System, error) {
	state, ok, err := system.NewStateFile(path).Load()
	if err != nil || !ok {
		return nil, err
	}
	sys, err := system.New(system.Config{Admin: state.Admin, FeeTiers: state.FeeTiers}, logger)
	if err != nil {
		return nil, err
	}
	if err := sys.Import(state); err != nil {
		return nil, err
	}
	return sys, nil
}

func writeDecodeError(writer *storage.JSONLWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
