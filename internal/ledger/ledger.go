// Package ledger defines the token ledger the swap core runs on: SPL-style
// token accounts, pool config records, per-signer nonces, and an atomic unit
// of work in which changes either all apply or none do.
package ledger

import (
	"context"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
)

// Reader exposes the account state visible to a swap.
type Reader interface {
	TokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error)
	Pool(ctx context.Context, addr solana.PublicKey) (*amm.Config, error)
}

// Tx is one atomic unit of work. Changes applied through a Tx become visible
// only if the enclosing Atomic call returns nil.
type Tx interface {
	Reader

	// Transfer executes an SPL token transfer instruction authorized by auth.
	// A NoncedAuthorization also spends the signer's nonce.
	Transfer(ctx context.Context, ix *token.Transfer, auth Authorization) error

	CreatePool(ctx context.Context, addr solana.PublicKey, cfg *amm.Config) error
	SetLocked(ctx context.Context, addr solana.PublicKey, locked bool) error
	CreateTokenAccount(ctx context.Context, addr, mint, owner solana.PublicKey) error

	// NextNonce is the nonce the signer's next authorization must carry.
	NextNonce(ctx context.Context, signer solana.PublicKey) (uint64, error)
	// UseNonce spends nonce for signer. It fails with ErrInvalidNonce unless
	// nonce equals NextNonce.
	UseNonce(ctx context.Context, signer solana.PublicKey, nonce uint64) error
}

// Ledger is the platform hosting the pool accounts.
type Ledger interface {
	Reader

	NextNonce(ctx context.Context, signer solana.PublicKey) (uint64, error)

	// Atomic runs fn as a single serialized unit of work. Any error returned
	// by fn, or a context cancelled before commit, reverts every change.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	// Single-operation units.
	CreatePool(ctx context.Context, addr solana.PublicKey, cfg *amm.Config) error
	SetLocked(ctx context.Context, addr solana.PublicKey, locked bool) error
	CreateTokenAccount(ctx context.Context, addr, mint, owner solana.PublicKey) error
	MintTo(ctx context.Context, addr solana.PublicKey, amount uint64) error

	Close() error
}

// TransferMessage is the payload a token owner signs to authorize a transfer:
// source, destination, amount and nonce, followed by a caller-defined memo
// that binds the transfer to its purpose.
func TransferMessage(source, destination solana.PublicKey, amount, nonce uint64, memo []byte) []byte {
	msg := make([]byte, 0, 32+32+8+8+len(memo))
	msg = append(msg, source.Bytes()...)
	msg = append(msg, destination.Bytes()...)
	msg = binary.LittleEndian.AppendUint64(msg, amount)
	msg = binary.LittleEndian.AppendUint64(msg, nonce)
	return append(msg, memo...)
}
