package custody

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-amm/internal/amm/ammtest"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
	"github.com/rovshanmuradov/solana-amm/internal/ledger/memory"
)

func setup(t *testing.T) (*memory.Ledger, *ammtest.Pool, *Custody) {
	l := memory.New(zaptest.NewLogger(t))
	pool := ammtest.NewPool(t, l, ammtest.PoolParams{
		Seed: 1, Fee: 30, ReserveX: 1_000, ReserveY: 2_000, UserX: 500, UserY: 500,
	})
	return l, pool, New(ammtest.ProgramID, pool.Accounts, pool.Config)
}

func TestDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	l, pool, c := setup(t)

	in := Intent{IsX: true, AmountIn: 100, MinAmountOut: 150}
	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		if err := c.Deposit(ctx, tx, in, pool.Sign(t, c.DepositMessage(in))); err != nil {
			return err
		}
		return c.Withdraw(ctx, tx, false, 150)
	})
	require.NoError(t, err)

	assert.Equal(t, ammtest.Balances{VaultX: 1_100, VaultY: 1_850, UserX: 400, UserY: 650}, pool.Snapshot(t, l))

	next, err := l.NextNonce(ctx, pool.User.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestDepositRequiresUserSignature(t *testing.T) {
	ctx := context.Background()
	l, pool, c := setup(t)

	in := Intent{IsX: true, AmountIn: 100, MinAmountOut: 150}
	signed := func(mod func(*Intent)) solana.Signature {
		other := in
		mod(&other)
		return pool.Sign(t, c.DepositMessage(other))
	}

	tests := []struct {
		name string
		sig  solana.Signature
		want error
	}{
		{"signature for another amount", signed(func(i *Intent) { i.AmountIn = 99 }), ledger.ErrUnauthorizedSigner},
		{"signature for another side", signed(func(i *Intent) { i.IsX = false }), ledger.ErrUnauthorizedSigner},
		{"signature for another minimum", signed(func(i *Intent) { i.MinAmountOut = 0 }), ledger.ErrUnauthorizedSigner},
		{"signature for another nonce", signed(func(i *Intent) { i.Nonce = 1 }), ledger.ErrUnauthorizedSigner},
		{"empty signature", solana.Signature{}, ledger.ErrUnauthorizedSigner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.sig
			err := l.Atomic(ctx, func(tx ledger.Tx) error {
				return c.Deposit(ctx, tx, in, sig)
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, uint64(500), pool.Snapshot(t, l).UserX)
}

func TestDepositMessageIsBoundToPool(t *testing.T) {
	_, pool, c := setup(t)
	in := Intent{IsX: true, AmountIn: 100, MinAmountOut: 150}

	other := *c
	other.Accounts.Config = solana.NewWallet().PublicKey()
	assert.NotEqual(t, c.DepositMessage(in), other.DepositMessage(in))
	assert.Equal(t, pool.Accounts.Config, c.Accounts.Config)
}

func TestDepositReplayRejected(t *testing.T) {
	ctx := context.Background()
	l, pool, c := setup(t)

	in := Intent{IsX: true, AmountIn: 100}
	sig := pool.Sign(t, c.DepositMessage(in))
	deposit := func() error {
		return l.Atomic(ctx, func(tx ledger.Tx) error {
			return c.Deposit(ctx, tx, in, sig)
		})
	}

	require.NoError(t, deposit())
	assert.ErrorIs(t, deposit(), ledger.ErrInvalidNonce)
	assert.Equal(t, uint64(400), pool.Snapshot(t, l).UserX)
}

func TestDepositInsufficientFundsPassesThrough(t *testing.T) {
	ctx := context.Background()
	l, pool, c := setup(t)

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		in := Intent{AmountIn: 501}
		return c.Deposit(ctx, tx, in, pool.Sign(t, c.DepositMessage(in)))
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestWithdrawWithCorruptedBumpFails(t *testing.T) {
	ctx := context.Background()
	l, pool, _ := setup(t)

	cfg := *pool.Config
	cfg.ConfigBump++
	c := New(ammtest.ProgramID, pool.Accounts, &cfg)

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		return c.Withdraw(ctx, tx, true, 1)
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorizedSigner)
	assert.Equal(t, uint64(1_000), pool.Snapshot(t, l).VaultX)
}

func TestWithdrawUnderOtherProgramFails(t *testing.T) {
	ctx := context.Background()
	l, pool, _ := setup(t)

	other := New(pool.User.PublicKey(), pool.Accounts, pool.Config)
	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		return other.Withdraw(ctx, tx, false, 1)
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorizedSigner)
}

func TestInstructionsTargetResolvedAccounts(t *testing.T) {
	_, pool, c := setup(t)

	dep := c.DepositInstruction(false, 7)
	assert.Equal(t, pool.Accounts.UserY, dep.GetSourceAccount().PublicKey)
	assert.Equal(t, pool.Accounts.VaultY, dep.GetDestinationAccount().PublicKey)
	assert.Equal(t, pool.Accounts.User, dep.GetOwnerAccount().PublicKey)

	wd := c.WithdrawInstruction(true, 7)
	assert.Equal(t, pool.Accounts.VaultX, wd.GetSourceAccount().PublicKey)
	assert.Equal(t, pool.Accounts.UserX, wd.GetDestinationAccount().PublicKey)
	assert.Equal(t, pool.Accounts.Config, wd.GetOwnerAccount().PublicKey)
	assert.Equal(t, uint64(7), *wd.Amount)
}
