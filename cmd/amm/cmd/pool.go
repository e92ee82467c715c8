package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/solana-amm/internal/amm/swap"
)

func newPoolCmd(a *app) *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Create, inspect and lock pools on the local ledger",
	}
	poolCmd.AddCommand(
		newPoolInitCmd(a),
		newPoolShowCmd(a),
		newPoolLockCmd(a, true),
		newPoolLockCmd(a, false),
	)
	return poolCmd
}

func newPoolInitCmd(a *app) *cobra.Command {
	var (
		seed         uint64
		fee          uint16
		mintX, mintY string
		admin        string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pool config and its empty vaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := swap.InitParams{Seed: seed, Fee: fee}
			var err error
			if p.MintX, err = parsePubkey("mint-x", mintX); err != nil {
				return err
			}
			if p.MintY, err = parsePubkey("mint-y", mintY); err != nil {
				return err
			}
			if admin != "" {
				adminKey, err := parsePubkey("admin", admin)
				if err != nil {
					return err
				}
				p.Authority = &adminKey
			}

			return a.withSession(cmd.Context(), func(s *session) error {
				info, err := s.engine.InitializePool(cmd.Context(), p)
				if err != nil {
					return err
				}
				printPool(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "pool seed")
	cmd.Flags().Uint16Var(&fee, "fee", 30, "fee in basis points")
	cmd.Flags().StringVar(&mintX, "mint-x", "", "mint of side X")
	cmd.Flags().StringVar(&mintY, "mint-y", "", "mint of side Y")
	cmd.Flags().StringVar(&admin, "admin", "", "authority allowed to lock the pool, empty for an immutable pool")
	_ = cmd.MarkFlagRequired("mint-x")
	_ = cmd.MarkFlagRequired("mint-y")
	return cmd
}

func newPoolShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [config]",
		Short: "Show a pool and its reserves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parsePubkey("config", args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(s *session) error {
				info, err := s.engine.Pool(cmd.Context(), addr)
				if err != nil {
					return err
				}
				printPool(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}
}

func newPoolLockCmd(a *app, locked bool) *cobra.Command {
	use, short := "unlock [config]", "Resume swaps on a pool"
	if locked {
		use, short = "lock [config]", "Reject swaps on a pool until unlocked"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parsePubkey("config", args[0])
			if err != nil {
				return err
			}
			admin, err := signerFromFlags(cmd)
			if err != nil {
				return err
			}

			return a.withSession(cmd.Context(), func(s *session) error {
				nonce, err := s.engine.NextNonce(cmd.Context(), admin.PublicKey)
				if err != nil {
					return err
				}
				sig, err := admin.Sign(swap.LockMessage(addr, locked, nonce))
				if err != nil {
					return err
				}
				if err := s.engine.SetLocked(cmd.Context(), addr, admin.PublicKey, nonce, sig, locked); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pool %s locked: %t\n", addr, locked)
				return nil
			})
		},
	}
	addSignerFlags(cmd, "pool admin")
	return cmd
}

func printPool(out io.Writer, info *swap.PoolInfo) {
	cfg := info.Config
	authority := "none (immutable)"
	if cfg.Authority != nil {
		authority = cfg.Authority.String()
	}

	fmt.Fprintf(out, "Pool:      %s\n", info.Address)
	fmt.Fprintf(out, "Seed:      %d\n", cfg.Seed)
	fmt.Fprintf(out, "Authority: %s\n", authority)
	fmt.Fprintf(out, "Fee:       %d bps\n", cfg.Fee)
	fmt.Fprintf(out, "Locked:    %t\n", cfg.Locked)
	fmt.Fprintf(out, "Mint X:    %s\n", cfg.MintX)
	fmt.Fprintf(out, "Mint Y:    %s\n", cfg.MintY)
	fmt.Fprintf(out, "Vault X:   %s (%d)\n", info.VaultX, info.ReserveX)
	fmt.Fprintf(out, "Vault Y:   %s (%d)\n", info.VaultY, info.ReserveY)
}

// side labels the input side for output.
func side(isX bool) string {
	if isX {
		return "X -> Y"
	}
	return "Y -> X"
}
