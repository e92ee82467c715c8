package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/amm/accounts"
	"github.com/rovshanmuradov/solana-amm/internal/amm/curve"
	"github.com/rovshanmuradov/solana-amm/internal/amm/instructions"
	"github.com/rovshanmuradov/solana-amm/internal/amm/swap"
)

func newSwapCmd(a *app) *cobra.Command {
	var (
		f           swapFlags
		minAmount   uint64
		slippageBps uint16
	)

	cmd := &cobra.Command{
		Use:   "swap [config]",
		Short: "Execute a swap on the local ledger",
		Long: `Execute a swap for the signing user. The command builds the swap
instruction, decodes it back as the program would and runs it atomically.
The user signs the pool, direction, amounts and their next nonce, so the
signature cannot be replayed or reused with a lower minimum.

The minimum output is --min when given, otherwise the quoted output reduced
by --slippage basis points.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			addr, err := parsePubkey("config", args[0])
			if err != nil {
				return err
			}
			user, err := signerFromFlags(cmd)
			if err != nil {
				return err
			}

			return a.withSession(ctx, func(s *session) error {
				programID := s.engine.ProgramID()
				info, err := s.engine.Pool(ctx, addr)
				if err != nil {
					return err
				}

				minimum := minAmount
				if !cmd.Flags().Changed("min") {
					q, err := s.engine.Quote(ctx, addr, f.isX(), f.amount)
					if err != nil {
						return err
					}
					minimum = curve.MinAmountOut(q.AmountOut, slippageBps)
				}

				resolved, err := accounts.Resolve(addr, info.Config, user.PublicKey)
				if err != nil {
					return err
				}
				ix, err := instructions.NewSwap(programID, resolved, instructions.SwapArgs{
					IsX:    f.isX(),
					Amount: f.amount,
					Min:    minimum,
				})
				if err != nil {
					return err
				}
				parsed, swapArgs, err := instructions.ParseSwap(ix)
				if err != nil {
					return err
				}

				nonce, err := s.engine.NextNonce(ctx, user.PublicKey)
				if err != nil {
					return err
				}
				req := swap.Request{
					Accounts:     parsed,
					IsX:          swapArgs.IsX,
					AmountIn:     swapArgs.Amount,
					MinAmountOut: swapArgs.Min,
					Nonce:        nonce,
				}
				if req.Signature, err = user.Sign(s.engine.DepositMessage(req)); err != nil {
					return err
				}

				res, err := s.engine.SwapDetailed(ctx, req)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Direction:   %s\n", side(swapArgs.IsX))
				fmt.Fprintf(out, "Amount in:   %d\n", swapArgs.Amount)
				fmt.Fprintf(out, "Minimum out: %d\n", swapArgs.Min)
				fmt.Fprintf(out, "Amount out:  %d\n", res.AmountOut)
				fmt.Fprintf(out, "Fee:         %d\n", res.Fee)
				return nil
			})
		},
	}

	f.register(cmd)
	cmd.Flags().Uint64Var(&minAmount, "min", 0, "minimum acceptable output")
	cmd.Flags().Uint16Var(&slippageBps, "slippage", 50, "slippage tolerance in basis points when --min is not set")
	addSignerFlags(cmd, "user")
	return cmd
}
