package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "amm",
		Short:        "Constant-product AMM with vault, pool manager and router",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("state-file", "./data/amm_state.json", "deployment state file")
	root.PersistentFlags().String("events-out", "./data/events.jsonl", "committed event log JSONL")
	root.PersistentFlags().Uint64("chain-id", 31337, "chain id stamped on event records")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Deploy the vault, pool manager and router",
		RunE:  runInit,
	}
	initCmd.Flags().String("admin", "", "admin address")
	initCmd.Flags().StringSlice("fee-tiers", nil, "allowed fee tiers in millionths (comma-separated, default 500,2500,3000,10000)")
	root.AddCommand(initCmd)

	root.AddCommand(newMintCmd(), newApproveCmd(), newPoolCmd(), newLiquidityCmd(), newSwapCmd(), newQuoteCmd())
	root.AddCommand(newPauseCmd(true), newPauseCmd(false), newShowCmd())

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the event log and reconcile it with the deployment state",
		RunE:  runReplay,
	}
	root.AddCommand(replayCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw event logs into typed events",
		RunE:  runDecode,
	}
	decodeCmd.Flags().String("rpc", "", "RPC URL for token metadata (optional)")
	decodeCmd.Flags().String("in", "./data/events.jsonl", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}
	aggregateCmd.Flags().String("rpc", "", "RPC URL for token decimals (optional)")
	aggregateCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("progress-file", "", "optional local file for progress tracking")
	aggregateCmd.Flags().Uint64("recompute-from", 0, "recompute from this block (exclusive)")
	aggregateCmd.Flags().Int("max-retries", 3, "maximum DB write attempts")
	aggregateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	aggregateCmd.Flags().String("token-decimals", "", "token decimals overrides (comma-separated address=decimals)")
	root.AddCommand(aggregateCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
