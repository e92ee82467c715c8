package cmd

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

func newAccountCmd(a *app) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Token account commands on the local ledger",
	}

	var owner, mint string
	var amount uint64

	fundCmd := &cobra.Command{
		Use:   "fund",
		Short: "Create an associated token account if needed and mint into it",
		Long: `Mint tokens into the associated token account of owner for mint.
Pass the pool config address as owner to fund a vault.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerKey, err := parsePubkey("owner", owner)
			if err != nil {
				return err
			}
			mintKey, err := parsePubkey("mint", mint)
			if err != nil {
				return err
			}
			ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
			if err != nil {
				return err
			}

			return a.withSession(cmd.Context(), func(s *session) error {
				ctx := cmd.Context()
				err := s.ledger.CreateTokenAccount(ctx, ata, mintKey, ownerKey)
				if err != nil && !errors.Is(err, ledger.ErrAccountExists) {
					return err
				}
				if err := s.ledger.MintTo(ctx, ata, amount); err != nil {
					return err
				}
				acc, err := s.ledger.TokenAccount(ctx, ata)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account: %s\nBalance: %d\n", ata, acc.Amount)
				return nil
			})
		},
	}
	fundCmd.Flags().StringVar(&owner, "owner", "", "account owner")
	fundCmd.Flags().StringVar(&mint, "mint", "", "token mint")
	fundCmd.Flags().Uint64Var(&amount, "amount", 0, "amount to mint")
	_ = fundCmd.MarkFlagRequired("owner")
	_ = fundCmd.MarkFlagRequired("mint")

	showCmd := &cobra.Command{
		Use:   "show [address]",
		Short: "Show a token account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parsePubkey("address", args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(s *session) error {
				acc, err := s.ledger.TokenAccount(cmd.Context(), addr)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Address: %s\n", addr)
				fmt.Fprintf(out, "Mint:    %s\n", acc.Mint)
				fmt.Fprintf(out, "Owner:   %s\n", acc.Owner)
				fmt.Fprintf(out, "Balance: %d\n", acc.Amount)
				return nil
			})
		},
	}

	accountCmd.AddCommand(fundCmd, showCmd)
	return accountCmd
}
