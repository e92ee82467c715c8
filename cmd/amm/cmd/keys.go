package cmd

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/wallet"
)

func parsePubkey(name, value string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return pk, nil
}

// addSignerFlags registers the ways a command can receive a signing key.
func addSignerFlags(cmd *cobra.Command, role string) {
	cmd.Flags().String("key", "", role+" private key (base58)")
	cmd.Flags().String("wallets", "", "wallets CSV file (name,private_key)")
	cmd.Flags().String("wallet", "", "wallet name in the wallets file")
}

func signerFromFlags(cmd *cobra.Command) (*wallet.Wallet, error) {
	key, _ := cmd.Flags().GetString("key")
	file, _ := cmd.Flags().GetString("wallets")
	name, _ := cmd.Flags().GetString("wallet")

	switch {
	case key != "":
		return wallet.NewWallet(key)
	case file != "":
		wallets, err := wallet.LoadWallets(file)
		if err != nil {
			return nil, err
		}
		w, ok := wallets[name]
		if !ok {
			return nil, fmt.Errorf("wallet %q not found in %s", name, file)
		}
		return w, nil
	default:
		return nil, errors.New("either --key or --wallets with --wallet is required")
	}
}
