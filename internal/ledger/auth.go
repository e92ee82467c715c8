package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Authorization proves the right to move funds out of a source account.
type Authorization interface {
	// Authorize checks the proof against the source account owner and the
	// decoded transfer.
	Authorize(owner solana.PublicKey, p TransferParams) error
}

// NoncedAuthorization is an Authorization that is valid once: the ledger
// spends the returned nonce of the signer in the same unit as the transfer.
type NoncedAuthorization interface {
	Authorization
	SignerNonce() (solana.PublicKey, uint64)
}

// UserSignature authorizes a transfer with the owner's ed25519 signature over
// TransferMessage(source, destination, amount, Nonce, Memo).
type UserSignature struct {
	Signer    solana.PublicKey
	Signature solana.Signature
	Nonce     uint64
	Memo      []byte
}

var _ NoncedAuthorization = UserSignature{}

func (s UserSignature) Authorize(owner solana.PublicKey, p TransferParams) error {
	if !s.Signer.Equals(owner) {
		return fmt.Errorf("%w: signer %s, owner %s", ErrOwnerMismatch, s.Signer, owner)
	}
	msg := TransferMessage(p.Source, p.Destination, p.Amount, s.Nonce, s.Memo)
	if !s.Signature.Verify(s.Signer, msg) {
		return fmt.Errorf("%w: bad signature from %s", ErrUnauthorizedSigner, s.Signer)
	}
	return nil
}

func (s UserSignature) SignerNonce() (solana.PublicKey, uint64) {
	return s.Signer, s.Nonce
}

// ProgramSigner authorizes a transfer out of an account owned by a program
// address. The ledger re-derives the address from the seeds, so only callers
// holding the exact seeds and bump can sign.
type ProgramSigner struct {
	ProgramID solana.PublicKey
	Seeds     [][]byte
}

func (s ProgramSigner) Authorize(owner solana.PublicKey, _ TransferParams) error {
	addr, err := solana.CreateProgramAddress(s.Seeds, s.ProgramID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorizedSigner, err)
	}
	if !addr.Equals(owner) {
		return fmt.Errorf("%w: seeds derive %s, owner %s", ErrUnauthorizedSigner, addr, owner)
	}
	return nil
}
