package cmd

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/amm/chain"
	"github.com/rovshanmuradov/solana-amm/internal/amm/swap"
)

func newRemoteCmd(a *app) *cobra.Command {
	remoteCmd := &cobra.Command{
		Use:   "remote",
		Short: "Read pools deployed on a Solana cluster",
	}

	reader := func() *chain.Reader {
		return chain.NewReader(rpc.New(a.cfg.RPC.URL), a.cfg.Program(), a.cfg.ChainOptions(), a.logger)
	}

	var f swapFlags
	quoteCmd := &cobra.Command{
		Use:   "quote [config]",
		Short: "Price a swap against on-chain reserves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parsePubkey("config", args[0])
			if err != nil {
				return err
			}
			q, err := swap.QuoteFrom(cmd.Context(), reader(), a.cfg.Program(), addr, f.isX(), f.amount)
			if err != nil {
				return err
			}
			return printQuote(cmd.OutOrStdout(), f.isX(), q)
		},
	}
	f.register(quoteCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools [config...]",
		Short: "Show on-chain pools with their reserves",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs := make([]solana.PublicKey, 0, len(args))
			for _, arg := range args {
				addr, err := parsePubkey("config", arg)
				if err != nil {
					return err
				}
				addrs = append(addrs, addr)
			}

			r := reader()
			// fail fast on any missing config before reading reserves
			if _, err := r.Pools(cmd.Context(), addrs); err != nil {
				return err
			}
			for _, addr := range addrs {
				info, err := swap.LoadPool(cmd.Context(), r, a.cfg.Program(), addr)
				if err != nil {
					return err
				}
				printPool(cmd.OutOrStdout(), info)
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	remoteCmd.AddCommand(quoteCmd, poolsCmd)
	return remoteCmd
}
