package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/chain"
	"ammcore/internal/dex"
	"ammcore/internal/router"
	"ammcore/internal/system"
)

func newMintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint test tokens to an account",
		RunE: withSession(func(cmd *cobra.Command, s *session) error {
			tok, err := addressFlag(cmd, "token")
			if err != nil {
				return err
			}
			to, err := addressFlag(cmd, "to")
			if err != nil {
				return err
			}
			amount, err := amountFlag(cmd, "amount", true)
			if err != nil {
				return err
			}
			if err := s.sys.Ledger.Mint(s.ctx, tok, to, amount); err != nil {
				return err
			}
			s.logger.Info("minted",
				zap.String("token", tok.Hex()),
				zap.String("to", to.Hex()),
				zap.String("amount", amm.FormatAmount(amount)),
			)
			return nil
		}),
	}
	cmd.Flags().String("token", "", "token address")
	cmd.Flags().String("to", "", "recipient address")
	cmd.Flags().String("amount", "", "amount in base units")
	return cmd
}

func newApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve the vault (or --spender) to pull tokens from --from",
		RunE: withSession(func(cmd *cobra.Command, s *session) error {
			ctx, err := s.as(cmd)
			if err != nil {
				return err
			}
			tok, err := addressFlag(cmd, "token")
			if err != nil {
				return err
			}
			spender := s.sys.Vault.Address()
			if value, _ := cmd.Flags().GetString("spender"); value != "" {
				if spender, err = addressFlag(cmd, "spender"); err != nil {
					return err
				}
			}
			amount := new(uint256.Int).SetAllOne()
			if value, _ := cmd.Flags().GetString("amount"); value != "" {
				if amount, err = amountFlag(cmd, "amount", true); err != nil {
					return err
				}
			}
			owner := amm.Sender(ctx)
			s.sys.Ledger.Approve(ctx, tok, owner, spender, amount)
			s.logger.Info("approved",
				zap.String("token", tok.Hex()),
				zap.String("owner", owner.Hex()),
				zap.String("spender", spender.Hex()),
				zap.String("amount", amm.FormatAmount(amount)),
			)
			return nil
		}),
	}
	cmd.Flags().String("from", "", "owner address")
	cmd.Flags().String("token", "", "token address")
	cmd.Flags().String("spender", "", "spender address (default vault)")
	cmd.Flags().String("amount", "", "allowance in base units (default unlimited)")
	return cmd
}

func newPoolCmd() *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Pool operations",
	}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pool for a token pair and fee tier",
		RunE: withSession(func(cmd *cobra.Command, s *session) error {
			ctx, err := s.as(cmd)
			if err != nil {
				return err
			}
			tokenA, tokenB, feeTier, err := pairFlags(cmd)
			if err != nil {
				return err
			}
			key, err := s.sys.Router.CreatePool(ctx, tokenA, tokenB, feeTier)
			if err != nil {
				return err
			}
			s.logger.Info("pool created", zap.Stringer("pool_key", key), zap.Uint32("fee_tier", feeTier))
			return printJSON(cmd, map[string]string{"pool_key": key.Hex()})
		}),
	}
	createCmd.Flags().String("from", "", "caller address")
	addPairFlags(createCmd)
	poolCmd.AddCommand(createCmd)
	return poolCmd
}

func newLiquidityCmd() *cobra.Command {
	liquidityCmd := &cobra.Command{
		Use:   "liquidity",
		Short: "Liquidity operations",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Deposit a token pair into a pool",
		RunE: withSession(func(cmd *cobra.Command, s *session) error {
			ctx, err := s.as(cmd)
			if err != nil {
				return err
			}
			tokenA, tokenB, feeTier, err := pairFlags(cmd)
			if err != nil {
				return err
			}
			req := router.AddLiquidityRequest{TokenA: tokenA, TokenB: tokenB, FeeTier: feeTier}
			if req.AmountADesired, err = amountFlag(cmd, "amount-a", true); err != nil {
				return err
			}
			if req.AmountBDesired, err = amountFlag(cmd, "amount-b", true); err != nil {
				return err
			}
			if req.AmountAMin, err = amountFlag(cmd, "min-a", false); err != nil {
				return err
			}
			if req.AmountBMin, err = amountFlag(cmd, "min-b", false); err != nil {
				return err
			}
			if req.Recipient, err = recipientFlag(cmd, amm.Sender(ctx)); err != nil {
				return err
			}
			req.Deadline = deadlineFlag(cmd, s.sys.Runtime.Now())

			res, err := s.sys.Router.AddLiquidity(ctx, req)
			if err != nil {
				return err
			}
			s.logger.Info("liquidity added", zap.Stringer("pool_key", res.Key), zap.String("shares", amm.FormatAmount(res.Shares)))
			return printJSON(cmd, liquidityOutput(res))
		}),
	}
	addCmd.Flags().String("from", "", "provider address")
	addPairFlags(addCmd)
	addCmd.Flags().String("amount-a", "", "desired amount of token-a")
	addCmd.Flags().String("amount-b", "", "desired amount of token-b")
	addCmd.Flags().String("min-a", "", "minimum accepted amount of token-a")
	addCmd.Flags().String("min-b", "", "minimum accepted amount of token-b")
	addCmd.Flags().String("recipient", "", "share recipient (default --from)")
	addCmd.Flags().Duration("deadline", 0, "deadline relative to now, 0 means none")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Burn pool shares for the underlying tokens",
		RunE: withSession(func(cmd *cobra.Command, s *session) error {
			ctx, err := s.as(cmd)
			if err != nil {
				return err
			}
			tokenA, tokenB, feeTier, err := pairFlags(cmd)
			if err != nil {
				return err
			}
			req := router.RemoveLiquidityRequest{TokenA: tokenA, TokenB: tokenB, FeeTier: feeTier}
			if req.Shares, err = amountFlag(cmd, "shares", true); err != nil {
				return err
			}
			if req.AmountAMin, err = amountFlag(cmd, "min-a", false); err != nil {
				return err
			}
			if req.AmountBMin, err = amountFlag(cmd, "min-b", false); err != nil {
				return err
			}
			if req.Recipient, err = recipientFlag(cmd, amm.Sender(ctx)); err != nil {
				return err
			}
			req.Deadline = deadlineFlag(cmd, s.sys.Runtime.Now())

			res, err := s.sys.Router.RemoveLiquidity(ctx, req)
			if err != nil {
				return err
			}
			s.logger.Info("liquidity removed", zap.Stringer("pool_key", res.Key), zap.String("shares", amm.FormatAmount(res.Shares)))
			return printJSON(cmd, liquidityOutput(res))
		}),
	}
	removeCmd.Flags().String("from", "", "provider address")
	addPairFlags(removeCmd)
	removeCmd.Flags().String("shares", "", "shares to burn")
	removeCmd.Flags().String("min-a", "", "minimum accepted amount of token-a")
	removeCmd.Flags().String("min-b", "", "minimum accepted amount of token-b")
	removeCmd.Flags().String("recipient", "", "token recipient (default --from)")
	removeCmd.Flags().Duration("deadline", 0, "deadline relative to now, 0 means none")

	liquidityCmd.AddCommand(addCmd, removeCmd)
	return liquidityCmd
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap an exact input amount",
		RunE: withSession(func(cmd *cobra.Command, s *session) error {
			ctx, err := s.as(cmd)
			if err != nil {
				return err
			}
			req := router.SwapRequest{}
			if req.TokenIn, err = addressFlag(cmd, "token-in"); err != nil {
				return err
			}
			if req.TokenOut, err = addressFlag(cmd, "token-out"); err != nil {
				return err
			}
			req.FeeTier, _ = cmd.Flags().GetUint32("fee-tier")
			if req.AmountIn, err = amountFlag(cmd, "amount-in", true); err != nil {
				return err
			}
			if req.MinAmountOut, err = amountFlag(cmd, "min-out", false); err != nil {
				return err
			}
			if req.Recipient, err = recipientFlag(cmd, amm.Sender(ctx)); err != nil {
				return err
			}
			req.Deadline = deadlineFlag(cmd, s.sys.Runtime.Now())

			res, err := s.sys.Router.Swap(ctx, req)
			if err != nil {
				return err
			}
			s.logger.Info("swapped",
				zap.Stringer("pool_key", res.Key),
				zap.String("amount_in", amm.FormatAmount(res.AmountIn)),
				zap.String("amount_out", amm.FormatAmount(res.AmountOut)),
				zap.String("fee", amm.FormatAmount(res.Fee)),
			)
			return printJSON(cmd, map[string]string{
				"pool_key":   res.Key.Hex(),
				"amount_in":  amm.FormatAmount(res.AmountIn),
				"amount_out": amm.FormatAmount(res.AmountOut),
				"fee":        amm.FormatAmount(res.Fee),
			})
		}),
	}
	cmd.Flags().String("from", "", "payer address")
	addSwapFlags(cmd)
	cmd.Flags().String("min-out", "", "minimum accepted output")
	cmd.Flags().String("recipient", "", "output recipient (default --from)")
	cmd.Flags().Duration("deadline", 0, "deadline relative to now, 0 means none")
	return cmd
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote the output of an exact-input swap",
		RunE: withView(func(cmd *cobra.Command, s *session) error {
			tokenIn, err := addressFlag(cmd, "token-in")
			if err != nil {
				return err
			}
			tokenOut, err := addressFlag(cmd, "token-out")
			if err != nil {
				return err
			}
			feeTier, _ := cmd.Flags().GetUint32("fee-tier")
			amountIn, err := amountFlag(cmd, "amount-in", true)
			if err != nil {
				return err
			}
			out, err := s.sys.Router.Quote(s.ctx, tokenIn, tokenOut, feeTier, amountIn)
			if err != nil {
				return err
			}

			result := map[string]string{"amount_out": amm.FormatAmount(out)}
			if s.cfg.RPCURL != "" {
				chainClient, err := chain.NewClient(s.ctx, s.cfg.RPCURL)
				if err != nil {
					return fmt.Errorf("connect rpc: %w", err)
				}
				defer chainClient.Close()
				meta, err := dex.FetchTokenMeta(s.ctx, chainClient, tokenOut, s.logger)
				if err != nil {
					s.logger.Warn("token metadata unavailable", zap.String("token", tokenOut.Hex()), zap.Error(err))
				} else {
					result["amount_out_units"] = formatUnits(out, meta.Decimals)
					result["symbol"] = meta.Symbol
				}
			}
			return printJSON(cmd, result)
		}),
	}
	addSwapFlags(cmd)
	cmd.Flags().String("rpc", "", "RPC URL for token metadata (optional)")
	return cmd
}

func newPauseCmd(pause bool) *cobra.Command {
	use, short := "pause", "Pause a contract (vault, pool-manager or router)"
	if !pause {
		use, short = "unpause", "Unpause a contract (vault, pool-manager or router)"
	}
	cmd := &cobra.Command{
		Use:       use + " <target>",
		Short:     short,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"vault", "pool-manager", "router"},
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withSession(func(cmd *cobra.Command, s *session) error {
			ctx, err := s.as(cmd)
			if err != nil {
				return err
			}
			var target interface {
				Pause(ctx context.Context) error
				Unpause(ctx context.Context) error
			}
			switch args[0] {
			case "vault":
				target = s.sys.Vault
			case "pool-manager":
				target = s.sys.PoolManager
			case "router":
				target = s.sys.Router
			default:
				return fmt.Errorf("unknown target %q", args[0])
			}
			if pause {
				err = target.Pause(ctx)
			} else {
				err = target.Unpause(ctx)
			}
			if err != nil {
				return err
			}
			s.logger.Info(use+"d", zap.String("target", args[0]))
			return nil
		})(cmd, args)
	}
	cmd.Flags().String("from", "", "caller address (default admin)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the deployment state",
		RunE: withView(func(cmd *cobra.Command, s *session) error {
			type poolView struct {
				PoolKey     string `json:"pool_key"`
				Token0      string `json:"token0"`
				Token1      string `json:"token1"`
				FeeTier     uint32 `json:"fee_tier"`
				Reserve0    string `json:"reserve0"`
				Reserve1    string `json:"reserve1"`
				TotalShares string `json:"total_shares"`
			}
			vaultAddr, pmAddr, routerAddr := system.Addresses(s.sys.Admin)
			view := struct {
				Admin        string            `json:"admin"`
				Block        uint64            `json:"block"`
				Vault        string            `json:"vault"`
				PoolManager  string            `json:"pool_manager"`
				Router       string            `json:"router"`
				Paused       map[string]bool   `json:"paused"`
				FeeTiers     []uint32          `json:"fee_tiers"`
				Pools        []poolView        `json:"pools"`
				ProtocolFees map[string]string `json:"protocol_fees"`
			}{
				Admin:       s.sys.Admin.Hex(),
				Block:       s.sys.Runtime.Block(),
				Vault:       vaultAddr.Hex(),
				PoolManager: pmAddr.Hex(),
				Router:      routerAddr.Hex(),
				Paused: map[string]bool{
					"vault":        s.sys.Vault.Paused(),
					"pool_manager": s.sys.PoolManager.Paused(),
					"router":       s.sys.Router.Paused(),
				},
				FeeTiers:     s.sys.PoolManager.FeeTiers(),
				Pools:        []poolView{},
				ProtocolFees: map[string]string{},
			}
			tokens := make(map[common.Address]struct{})
			for _, key := range s.sys.PoolManager.PoolKeys(s.ctx) {
				pool := s.sys.PoolManager.Pools(s.ctx, key)
				view.Pools = append(view.Pools, poolView{
					PoolKey:     key.Hex(),
					Token0:      pool.Token0.Hex(),
					Token1:      pool.Token1.Hex(),
					FeeTier:     pool.FeeTier,
					Reserve0:    amm.FormatAmount(pool.Reserve0),
					Reserve1:    amm.FormatAmount(pool.Reserve1),
					TotalShares: amm.FormatAmount(pool.TotalShares),
				})
				tokens[pool.Token0] = struct{}{}
				tokens[pool.Token1] = struct{}{}
			}
			for tok := range tokens {
				view.ProtocolFees[tok.Hex()] = amm.FormatAmount(s.sys.Vault.ProtocolFee(s.ctx, tok))
			}
			return printJSON(cmd, view)
		}),
	}
}

func addPairFlags(cmd *cobra.Command) {
	cmd.Flags().String("token-a", "", "first token address")
	cmd.Flags().String("token-b", "", "second token address")
	cmd.Flags().Uint32("fee-tier", 3000, "fee tier in millionths")
}

func addSwapFlags(cmd *cobra.Command) {
	cmd.Flags().String("token-in", "", "input token address")
	cmd.Flags().String("token-out", "", "output token address")
	cmd.Flags().Uint32("fee-tier", 3000, "fee tier in millionths")
	cmd.Flags().String("amount-in", "", "exact input amount in base units")
}

func pairFlags(cmd *cobra.Command) (common.Address, common.Address, uint32, error) {
	tokenA, err := addressFlag(cmd, "token-a")
	if err != nil {
		return common.Address{}, common.Address{}, 0, err
	}
	tokenB, err := addressFlag(cmd, "token-b")
	if err != nil {
		return common.Address{}, common.Address{}, 0, err
	}
	feeTier, _ := cmd.Flags().GetUint32("fee-tier")
	return tokenA, tokenB, feeTier, nil
}

func amountFlag(cmd *cobra.Command, name string, required bool) (*uint256.Int, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" && required {
		return nil, fmt.Errorf("%s is required", name)
	}
	amount, err := amm.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return amount, nil
}

func recipientFlag(cmd *cobra.Command, fallback common.Address) (common.Address, error) {
	if value, _ := cmd.Flags().GetString("recipient"); value == "" {
		return fallback, nil
	}
	return addressFlag(cmd, "recipient")
}

func deadlineFlag(cmd *cobra.Command, now time.Time) time.Time {
	ttl, _ := cmd.Flags().GetDuration("deadline")
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func liquidityOutput(res router.LiquidityResult) map[string]string {
	return map[string]string{
		"pool_key": res.Key.Hex(),
		"amount_a": amm.FormatAmount(res.AmountA),
		"amount_b": amm.FormatAmount(res.AmountB),
		"shares":   amm.FormatAmount(res.Shares),
	}
}

func formatUnits(value *uint256.Int, decimals uint8) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(value.ToBig(), scale).FloatString(int(decimals))
}
