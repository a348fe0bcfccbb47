package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/dex"
	"ammcore/internal/eventlog"
	"ammcore/internal/storage"
)

func runReplay(cmd *cobra.Command, args []string) error {
	return withView(func(cmd *cobra.Command, s *session) error {
		records, err := storage.ReadLogs(s.cfg.EventsOut)
		if err != nil {
			return err
		}

		decoder, err := dex.NewAMMDecoder(dex.DecoderConfig{})
		if err != nil {
			return err
		}
		// No pool source: every pool must be created within the log itself.
		res, err := eventlog.Replay(records, decoder, dex.DecodeContext{
			Context: s.ctx,
			Logger:  s.logger,
		})
		if err != nil {
			return err
		}

		mismatches := eventlog.Reconcile(s.ctx, res, s.sys.PoolManager)
		for _, key := range s.sys.PoolManager.PoolKeys(s.ctx) {
			if _, ok := res.Pools[key]; !ok {
				mismatches = append(mismatches, fmt.Sprintf("pool %s: missing from event log", key))
			}
		}
		// Calls that emit nothing still advance the block, so the log may end early.
		if res.LastBlock > s.sys.Runtime.Block() {
			mismatches = append(mismatches, fmt.Sprintf("event log ends at block %d, past state block %d", res.LastBlock, s.sys.Runtime.Block()))
		}

		s.logger.Info("replay complete",
			zap.String("events", s.cfg.EventsOut),
			zap.Int("records", len(records)),
			zap.Int("decoded", res.Decoded),
			zap.Int("skipped", res.Skipped),
			zap.Int("pools", len(res.Pools)),
			zap.Uint64("last_block", res.LastBlock),
			zap.Int("mismatches", len(mismatches)),
		)
		for _, msg := range mismatches {
			fmt.Fprintln(cmd.ErrOrStderr(), msg)
		}
		if len(mismatches) > 0 {
			return fmt.Errorf("event log diverges from state: %d mismatches", len(mismatches))
		}
		return nil
	})(cmd, args)
}
