package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/amm/curve"
)

// swapFlags are shared by quote, swap and remote quote.
type swapFlags struct {
	isY    bool
	amount uint64
}

func (f *swapFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.isY, "y", false, "swap Y for X instead of X for Y")
	cmd.Flags().Uint64Var(&f.amount, "amount", 0, "input amount")
	_ = cmd.MarkFlagRequired("amount")
}

func (f *swapFlags) isX() bool {
	return !f.isY
}

func newQuoteCmd(a *app) *cobra.Command {
	var f swapFlags

	cmd := &cobra.Command{
		Use:   "quote [config]",
		Short: "Price a swap against the local ledger without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parsePubkey("config", args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(s *session) error {
				q, err := s.engine.Quote(cmd.Context(), addr, f.isX(), f.amount)
				if err != nil {
					return err
				}
				return printQuote(cmd.OutOrStdout(), f.isX(), q)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func printQuote(out io.Writer, isX bool, q curve.Quote) error {
	in, outAfter, err := q.ReservesAfter()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Direction:       %s\n", side(isX))
	fmt.Fprintf(out, "Amount in:       %d\n", q.AmountIn)
	fmt.Fprintf(out, "Amount out:      %d\n", q.AmountOut)
	fmt.Fprintf(out, "Fee:             %d\n", q.Fee)
	fmt.Fprintf(out, "Spot price:      %s\n", q.SpotPrice.StringFixed(6))
	fmt.Fprintf(out, "Execution price: %s\n", q.ExecutionPrice.StringFixed(6))
	fmt.Fprintf(out, "Price impact:    %s%%\n", q.PriceImpact.StringFixed(4))
	fmt.Fprintf(out, "Reserves after:  %d / %d\n", in, outAfter)
	return nil
}
