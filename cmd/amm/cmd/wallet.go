package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/wallet"
)

func newWalletCmd(a *app) *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet management commands",
	}

	walletNewCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a new wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := wallet.Generate()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "New wallet generated!")
			fmt.Fprintf(out, "  Public Key:  %s\n", w.PublicKey)
			fmt.Fprintf(out, "  Private Key: %s\n", w.Base58())
			fmt.Fprintln(out, "\n⚠️  WARNING: Save your private key securely. Never share it with anyone!")
			return nil
		},
	}

	walletShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the public key and associated token accounts of a wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := signerFromFlags(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Public Key: %s\n", w)

			mints, _ := cmd.Flags().GetStringSlice("mint")
			for _, m := range mints {
				mint, err := parsePubkey("mint", m)
				if err != nil {
					return err
				}
				ata, err := w.ATA(mint)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  ATA(%s): %s\n", mint, ata)
			}
			return nil
		},
	}
	addSignerFlags(walletShowCmd, "wallet")
	walletShowCmd.Flags().StringSlice("mint", nil, "mints to derive associated token accounts for")

	walletCmd.AddCommand(walletNewCmd, walletShowCmd)
	return walletCmd
}
