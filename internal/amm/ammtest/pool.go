// Package ammtest sets up funded pools on a ledger for tests.
package ammtest

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/amm/accounts"
	"github.com/rovshanmuradov/solana-amm/internal/amm/authority"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// ProgramID is the program the test pools are derived under.
var ProgramID = solana.MustPublicKeyFromBase58("64dwDBXenrc7rKLJcE1qfswQSf1cimYoLigJURKvQCEG")

// PoolParams describe the pool to create.
type PoolParams struct {
	Seed     uint64
	Fee      uint16
	Locked   bool
	ReserveX uint64
	ReserveY uint64
	UserX    uint64
	UserY    uint64
	Admin    *solana.PublicKey
}

// Pool is a created pool together with one funded trader.
type Pool struct {
	Config   *amm.Config
	Accounts accounts.SwapAccounts
	User     solana.PrivateKey
}

// NewPool stores the pool config, opens vaults and user accounts, and funds them.
// The config is written as given, so invalid fees can be stored on purpose.
func NewPool(t *testing.T, l ledger.Ledger, p PoolParams) *Pool {
	t.Helper()
	ctx := context.Background()

	configAddr, bump, err := authority.Derive(ProgramID, p.Seed)
	require.NoError(t, err)

	cfg := &amm.Config{
		Seed:       p.Seed,
		Authority:  p.Admin,
		MintX:      solana.NewWallet().PublicKey(),
		MintY:      solana.NewWallet().PublicKey(),
		Fee:        p.Fee,
		Locked:     p.Locked,
		ConfigBump: bump,
	}
	require.NoError(t, l.CreatePool(ctx, configAddr, cfg))

	user := solana.NewWallet().PrivateKey
	a, err := accounts.Resolve(configAddr, cfg, user.PublicKey())
	require.NoError(t, err)

	for _, acc := range []struct {
		addr, mint, owner solana.PublicKey
		amount            uint64
	}{
		{a.VaultX, cfg.MintX, configAddr, p.ReserveX},
		{a.VaultY, cfg.MintY, configAddr, p.ReserveY},
		{a.UserX, cfg.MintX, user.PublicKey(), p.UserX},
		{a.UserY, cfg.MintY, user.PublicKey(), p.UserY},
	} {
		require.NoError(t, l.CreateTokenAccount(ctx, acc.addr, acc.mint, acc.owner))
		if acc.amount > 0 {
			require.NoError(t, l.MintTo(ctx, acc.addr, acc.amount))
		}
	}

	return &Pool{Config: cfg, Accounts: a, User: user}
}

// Sign signs msg with the pool's user key.
func (p *Pool) Sign(t *testing.T, msg []byte) solana.Signature {
	t.Helper()
	sig, err := p.User.Sign(msg)
	require.NoError(t, err)
	return sig
}

// Balances is a snapshot of the four accounts touched by a swap.
type Balances struct {
	VaultX, VaultY, UserX, UserY uint64
}

// Snapshot reads the current balances.
func (p *Pool) Snapshot(t *testing.T, r ledger.Reader) Balances {
	t.Helper()
	read := func(addr solana.PublicKey) uint64 {
		acc, err := r.TokenAccount(context.Background(), addr)
		require.NoError(t, err)
		return acc.Amount
	}
	return Balances{
		VaultX: read(p.Accounts.VaultX),
		VaultY: read(p.Accounts.VaultY),
		UserX:  read(p.Accounts.UserX),
		UserY:  read(p.Accounts.UserY),
	}
}
