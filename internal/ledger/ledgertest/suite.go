// Package ledgertest holds the behavioural suite every ledger.Ledger
// implementation must pass.
package ledgertest

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// Factory returns a fresh, empty ledger. The suite closes it.
type Factory func(t *testing.T) ledger.Ledger

// Run executes the suite against ledgers built by newLedger.
func Run(t *testing.T, newLedger Factory) {
	t.Run("token accounts", func(t *testing.T) { testTokenAccounts(t, newLedger(t)) })
	t.Run("pools", func(t *testing.T) { testPools(t, newLedger(t)) })
	t.Run("commit", func(t *testing.T) { testCommit(t, newLedger(t)) })
	t.Run("rollback on second leg", func(t *testing.T) { testRollbackSecondLeg(t, newLedger(t)) })
	t.Run("rollback on cancelled context", func(t *testing.T) { testRollbackCancelled(t, newLedger(t)) })
	t.Run("program signer", func(t *testing.T) { testProgramSigner(t, newLedger(t)) })
	t.Run("nonce replay", func(t *testing.T) { testNonceReplay(t, newLedger(t)) })
	t.Run("nonce restored on rollback", func(t *testing.T) { testNonceRollback(t, newLedger(t)) })
	t.Run("creates rolled back", func(t *testing.T) { testCreateRollback(t, newLedger(t)) })
}

// NonceSource is satisfied by both ledger.Ledger and ledger.Tx.
type NonceSource interface {
	NextNonce(ctx context.Context, signer solana.PublicKey) (uint64, error)
}

// Fixture is a funded pair of token accounts of one mint.
type Fixture struct {
	Owner   solana.PrivateKey
	Mint    solana.PublicKey
	Source  solana.PublicKey
	Sink    solana.PublicKey
	Balance uint64
}

// NewFixture creates two accounts owned by a fresh key and funds Source.
func NewFixture(t *testing.T, l ledger.Ledger, balance uint64) Fixture {
	t.Helper()
	ctx := context.Background()
	f := Fixture{
		Owner:   solana.NewWallet().PrivateKey,
		Mint:    solana.NewWallet().PublicKey(),
		Source:  solana.NewWallet().PublicKey(),
		Sink:    solana.NewWallet().PublicKey(),
		Balance: balance,
	}
	require.NoError(t, l.CreateTokenAccount(ctx, f.Source, f.Mint, f.Owner.PublicKey()))
	require.NoError(t, l.CreateTokenAccount(ctx, f.Sink, f.Mint, f.Owner.PublicKey()))
	require.NoError(t, l.MintTo(ctx, f.Source, balance))
	return f
}

// Transfer builds a transfer from Source to Sink signed with the owner's
// current nonce as seen by n.
func (f Fixture) Transfer(t *testing.T, n NonceSource, amount uint64) (*token.Transfer, ledger.Authorization) {
	t.Helper()
	nonce, err := n.NextNonce(context.Background(), f.Owner.PublicKey())
	require.NoError(t, err)
	return SignedTransfer(t, f.Owner, f.Source, f.Sink, amount, nonce)
}

// SignedTransfer builds a transfer instruction authorized by key with nonce.
func SignedTransfer(t *testing.T, key solana.PrivateKey, src, dst solana.PublicKey, amount, nonce uint64) (*token.Transfer, ledger.Authorization) {
	t.Helper()
	sig, err := key.Sign(ledger.TransferMessage(src, dst, amount, nonce, nil))
	require.NoError(t, err)
	ix := token.NewTransferInstruction(amount, src, dst, key.PublicKey(), nil)
	return ix, ledger.UserSignature{Signer: key.PublicKey(), Signature: sig, Nonce: nonce}
}

// Balance reads an account balance or fails the test.
func Balance(t *testing.T, r ledger.Reader, addr solana.PublicKey) uint64 {
	t.Helper()
	acc, err := r.TokenAccount(context.Background(), addr)
	require.NoError(t, err)
	return acc.Amount
}

func testTokenAccounts(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	ctx := context.Background()
	mint, owner, addr := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	_, err := l.TokenAccount(ctx, addr)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.ErrorIs(t, l.MintTo(ctx, addr, 1), ledger.ErrAccountNotFound)

	require.NoError(t, l.CreateTokenAccount(ctx, addr, mint, owner))
	assert.ErrorIs(t, l.CreateTokenAccount(ctx, addr, mint, owner), ledger.ErrAccountExists)

	require.NoError(t, l.MintTo(ctx, addr, 500))
	acc, err := l.TokenAccount(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, mint, acc.Mint)
	assert.Equal(t, owner, acc.Owner)
	assert.Equal(t, uint64(500), acc.Amount)
	assert.Equal(t, token.Initialized, acc.State)

	assert.ErrorIs(t, l.MintTo(ctx, addr, ^uint64(0)), ledger.ErrBalanceOverflow)
	assert.Equal(t, uint64(500), Balance(t, l, addr))
}

func testPools(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	ctx := context.Background()
	addr := solana.NewWallet().PublicKey()
	admin := solana.NewWallet().PublicKey()
	cfg := &amm.Config{
		Seed:       7,
		Authority:  &admin,
		MintX:      solana.NewWallet().PublicKey(),
		MintY:      solana.NewWallet().PublicKey(),
		Fee:        30,
		ConfigBump: 254,
		LPBump:     253,
	}

	_, err := l.Pool(ctx, addr)
	assert.ErrorIs(t, err, ledger.ErrPoolNotFound)
	assert.ErrorIs(t, l.SetLocked(ctx, addr, true), ledger.ErrPoolNotFound)

	require.NoError(t, l.CreatePool(ctx, addr, cfg))
	assert.ErrorIs(t, l.CreatePool(ctx, addr, cfg), ledger.ErrAccountExists)

	got, err := l.Pool(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	require.NoError(t, l.SetLocked(ctx, addr, true))
	got, err = l.Pool(ctx, addr)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, cfg.Fee, got.Fee)
}

func testCommit(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	f := NewFixture(t, l, 1_000)

	err := l.Atomic(context.Background(), func(tx ledger.Tx) error {
		ix, auth := f.Transfer(t, tx, 300)
		if err := tx.Transfer(context.Background(), ix, auth); err != nil {
			return err
		}
		// reads inside the unit see its own writes
		assert.Equal(t, uint64(700), Balance(t, tx, f.Source))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(700), Balance(t, l, f.Source))
	assert.Equal(t, uint64(300), Balance(t, l, f.Sink))
}

func testRollbackSecondLeg(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	ctx := context.Background()
	a := NewFixture(t, l, 1_000)
	b := NewFixture(t, l, 10)

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		ix, auth := a.Transfer(t, tx, 400)
		if err := tx.Transfer(ctx, ix, auth); err != nil {
			return err
		}
		ix, auth = b.Transfer(t, tx, 11)
		return tx.Transfer(ctx, ix, auth)
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, uint64(1_000), Balance(t, l, a.Source))
	assert.Equal(t, uint64(0), Balance(t, l, a.Sink))
	assert.Equal(t, uint64(10), Balance(t, l, b.Source))

	sentinel := errors.New("abort")
	err = l.Atomic(ctx, func(tx ledger.Tx) error {
		ix, auth := a.Transfer(t, tx, 1)
		require.NoError(t, tx.Transfer(ctx, ix, auth))
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, uint64(1_000), Balance(t, l, a.Source))
}

func testRollbackCancelled(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	f := NewFixture(t, l, 100)
	ctx, cancel := context.WithCancel(context.Background())

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		ix, auth := f.Transfer(t, tx, 50)
		require.NoError(t, tx.Transfer(ctx, ix, auth))
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(100), Balance(t, l, f.Source))
	assert.Equal(t, uint64(0), Balance(t, l, f.Sink))
}

func testProgramSigner(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	ctx := context.Background()
	programID := solana.NewWallet().PublicKey()
	seeds := [][]byte{[]byte("vault"), {9}}
	owner, bump, err := solana.FindProgramAddress(seeds, programID)
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	vault, user := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	require.NoError(t, l.CreateTokenAccount(ctx, vault, mint, owner))
	require.NoError(t, l.CreateTokenAccount(ctx, user, mint, solana.NewWallet().PublicKey()))
	require.NoError(t, l.MintTo(ctx, vault, 50))

	withdraw := func(b uint8) error {
		return l.Atomic(ctx, func(tx ledger.Tx) error {
			ix := token.NewTransferInstruction(20, vault, user, owner, nil)
			return tx.Transfer(ctx, ix, ledger.ProgramSigner{
				ProgramID: programID,
				Seeds:     append(append([][]byte{}, seeds...), []byte{b}),
			})
		})
	}

	assert.ErrorIs(t, withdraw(bump+1), ledger.ErrUnauthorizedSigner)
	assert.Equal(t, uint64(50), Balance(t, l, vault))

	require.NoError(t, withdraw(bump))
	assert.Equal(t, uint64(30), Balance(t, l, vault))
	assert.Equal(t, uint64(20), Balance(t, l, user))
}

func nextNonce(t *testing.T, n NonceSource, signer solana.PublicKey) uint64 {
	t.Helper()
	nonce, err := n.NextNonce(context.Background(), signer)
	require.NoError(t, err)
	return nonce
}

func testNonceReplay(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	ctx := context.Background()
	f := NewFixture(t, l, 100)
	assert.Equal(t, uint64(0), nextNonce(t, l, f.Owner.PublicKey()))

	ix, auth := f.Transfer(t, l, 10)
	transfer := func() error {
		return l.Atomic(ctx, func(tx ledger.Tx) error {
			return tx.Transfer(ctx, ix, auth)
		})
	}
	require.NoError(t, transfer())
	assert.Equal(t, uint64(1), nextNonce(t, l, f.Owner.PublicKey()))

	assert.ErrorIs(t, transfer(), ledger.ErrInvalidNonce)
	assert.Equal(t, uint64(90), Balance(t, l, f.Source))
	assert.Equal(t, uint64(10), Balance(t, l, f.Sink))

	// a nonce from the future is rejected as well
	ix, auth = SignedTransfer(t, f.Owner, f.Source, f.Sink, 10, 5)
	require.ErrorIs(t, l.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, ix, auth)
	}), ledger.ErrInvalidNonce)
	assert.Equal(t, uint64(90), Balance(t, l, f.Source))

	require.NoError(t, l.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.UseNonce(ctx, f.Owner.PublicKey(), 1)
	}))
	assert.Equal(t, uint64(2), nextNonce(t, l, f.Owner.PublicKey()))
}

func testNonceRollback(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	ctx := context.Background()
	f := NewFixture(t, l, 100)
	sentinel := errors.New("abort")

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		ix, auth := f.Transfer(t, tx, 10)
		require.NoError(t, tx.Transfer(ctx, ix, auth))
		assert.Equal(t, uint64(1), nextNonce(t, tx, f.Owner.PublicKey()))
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, uint64(0), nextNonce(t, l, f.Owner.PublicKey()))
	assert.Equal(t, uint64(100), Balance(t, l, f.Source))

	// the restored nonce is still usable
	ix, auth := f.Transfer(t, l, 10)
	require.NoError(t, l.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, ix, auth)
	}))
	assert.Equal(t, uint64(90), Balance(t, l, f.Source))
}

func testCreateRollback(t *testing.T, l ledger.Ledger) {
	defer l.Close()
	ctx := context.Background()
	pool, vault, taken := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	mint, owner := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	cfg := &amm.Config{Seed: 1, MintX: mint, MintY: solana.NewWallet().PublicKey(), Fee: 30}

	require.NoError(t, l.CreateTokenAccount(ctx, taken, mint, owner))

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.CreatePool(ctx, pool, cfg); err != nil {
			return err
		}
		if err := tx.CreateTokenAccount(ctx, vault, mint, owner); err != nil {
			return err
		}
		return tx.CreateTokenAccount(ctx, taken, mint, owner)
	})
	require.ErrorIs(t, err, ledger.ErrAccountExists)

	_, err = l.Pool(ctx, pool)
	assert.ErrorIs(t, err, ledger.ErrPoolNotFound)
	_, err = l.TokenAccount(ctx, vault)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = l.TokenAccount(ctx, taken)
	assert.NoError(t, err)

	require.NoError(t, l.CreatePool(ctx, pool, cfg))
}
