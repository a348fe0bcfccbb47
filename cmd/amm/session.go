package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/config"
	"ammcore/internal/eventlog"
	"ammcore/internal/storage"
	"ammcore/internal/system"
)

// session is one CLI invocation against the persisted deployment. Every
// committed call is appended to the event log; Close saves the state.
type session struct {
	ctx    context.Context
	stop   context.CancelFunc
	cfg    config.Config
	logger *zap.Logger
	sys    *system.System
	file   *system.StateFile
}

// openSession loads the deployment. With deploy set it requires that no
// state exists yet and deploys a fresh system instead.
func openSession(cmd *cobra.Command, deploy bool) (*session, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	file := system.NewStateFile(cfg.StateFile)
	state, exists, err := file.Load()
	if err != nil {
		return nil, err
	}

	var sysCfg system.Config
	switch {
	case deploy && exists:
		return nil, fmt.Errorf("deployment already exists at %s", file.Path())
	case deploy:
		admin, err := config.ParseAddress(cfg.Admin)
		if err != nil {
			return nil, fmt.Errorf("admin: %w", err)
		}
		tiers, err := config.ParseFeeTiers(cfg.FeeTiers)
		if err != nil {
			return nil, err
		}
		sysCfg = system.Config{Admin: admin, FeeTiers: tiers}
	case !exists:
		return nil, fmt.Errorf("no deployment at %s (run amm init)", file.Path())
	default:
		sysCfg = system.Config{Admin: state.Admin, FeeTiers: state.FeeTiers}
	}

	sys, err := system.New(sysCfg, logger)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := sys.Import(state); err != nil {
			return nil, err
		}
	}

	encoder, err := eventlog.NewEncoder(cfg.ChainID, nil)
	if err != nil {
		return nil, err
	}
	eventlog.NewPublisher(encoder, storage.NewJsonlStorage(cfg.EventsOut), logger).Attach(sys.Runtime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &session{ctx: ctx, stop: stop, cfg: cfg, logger: logger, sys: sys, file: file}
	if deploy {
		if err := sys.Bind(ctx); err != nil {
			s.stop()
			return nil, err
		}
	}
	return s, nil
}

// as returns the session context acting as the --from account, or the admin
// when the flag is absent.
func (s *session) as(cmd *cobra.Command) (context.Context, error) {
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		return amm.WithSender(s.ctx, s.sys.Admin), nil
	}
	addr, err := config.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	return amm.WithSender(s.ctx, addr), nil
}

// Close persists the deployment unless the command failed.
func (s *session) Close(runErr error) error {
	defer s.stop()
	defer s.logger.Sync()
	if runErr != nil {
		return runErr
	}
	if err := s.file.Save(s.sys.Export(s.ctx)); err != nil {
		return err
	}
	s.logger.Debug("state saved",
		zap.String("path", s.file.Path()),
		zap.Uint64("block", s.sys.Runtime.Block()),
	)
	return nil
}

// withSession runs fn against the persisted deployment and saves the result.
func withSession(fn func(cmd *cobra.Command, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		return s.Close(fn(cmd, s))
	}
}

// withView runs fn against the persisted deployment without saving it.
func withView(fn func(cmd *cobra.Command, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer s.stop()
		defer s.logger.Sync()
		return fn(cmd, s)
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	vaultAddr, pmAddr, routerAddr := system.Addresses(s.sys.Admin)
	s.logger.Info("deployed",
		zap.String("admin", s.sys.Admin.Hex()),
		zap.String("vault", vaultAddr.Hex()),
		zap.String("pool_manager", pmAddr.Hex()),
		zap.String("router", routerAddr.Hex()),
		zap.Uint32s("fee_tiers", s.sys.PoolManager.FeeTiers()),
		zap.String("state_file", s.file.Path()),
	)
	return s.Close(nil)
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	value, _ := cmd.Flags().GetString(name)
	addr, err := config.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
