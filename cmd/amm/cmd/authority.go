package cmd

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/amm/authority"
	"github.com/rovshanmuradov/solana-amm/internal/amm/swap"
)

func newAuthorityCmd(a *app) *cobra.Command {
	var (
		seed         uint64
		mintX, mintY string
	)

	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Derive the pool authority and vault addresses for a seed",
		Long: `Derive the config address that acts as the pool's signing authority,
its bump, the LP mint address and, when mints are given, both vaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			programID := a.cfg.Program()
			out := cmd.OutOrStdout()

			configAddr, bump, err := authority.Derive(programID, seed)
			if err != nil {
				return err
			}
			lpMint, lpBump, err := solana.FindProgramAddress(
				[][]byte{[]byte(swap.LPSeedPrefix), configAddr.Bytes()}, programID)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Program:   %s\n", programID)
			fmt.Fprintf(out, "Config:    %s\n", configAddr)
			fmt.Fprintf(out, "Bump:      %d\n", bump)
			fmt.Fprintf(out, "LP mint:   %s (bump %d)\n", lpMint, lpBump)

			for _, m := range []struct{ label, value string }{{"Vault X", mintX}, {"Vault Y", mintY}} {
				if m.value == "" {
					continue
				}
				mint, err := parsePubkey("mint", m.value)
				if err != nil {
					return err
				}
				vault, err := authority.Vault(configAddr, mint)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s:   %s\n", m.label, vault)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "pool seed")
	cmd.Flags().StringVar(&mintX, "mint-x", "", "mint of side X")
	cmd.Flags().StringVar(&mintY, "mint-y", "", "mint of side Y")
	return cmd
}
