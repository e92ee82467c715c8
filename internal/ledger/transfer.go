package ledger

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// TransferParams are the operands of a decoded transfer instruction.
type TransferParams struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Owner       solana.PublicKey
	Amount      uint64
}

// ParseTransfer validates ix and extracts its operands.
func ParseTransfer(ix *token.Transfer) (TransferParams, error) {
	if ix == nil {
		return TransferParams{}, fmt.Errorf("%w: nil instruction", ErrInvalidInstruction)
	}
	if err := ix.Validate(); err != nil {
		return TransferParams{}, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return TransferParams{
		Source:      ix.GetSourceAccount().PublicKey,
		Destination: ix.GetDestinationAccount().PublicKey,
		Owner:       ix.GetOwnerAccount().PublicKey,
		Amount:      *ix.Amount,
	}, nil
}

// ApplyTransfer checks a transfer against the current source and destination
// state and returns their post-transfer copies. The inputs are not modified.
func ApplyTransfer(p TransferParams, src, dst *token.Account, auth Authorization) (*token.Account, *token.Account, error) {
	if p.Source.Equals(p.Destination) {
		return nil, nil, fmt.Errorf("%w: source equals destination", ErrInvalidInstruction)
	}
	if !p.Owner.Equals(src.Owner) {
		return nil, nil, fmt.Errorf("%w: instruction owner %s, account owner %s", ErrOwnerMismatch, p.Owner, src.Owner)
	}
	if !src.Mint.Equals(dst.Mint) {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if src.State == token.Frozen || dst.State == token.Frozen {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrAccountFrozen, p.Source, p.Destination)
	}
	if auth == nil {
		return nil, nil, fmt.Errorf("%w: missing authorization", ErrUnauthorizedSigner)
	}
	if err := auth.Authorize(src.Owner, p); err != nil {
		return nil, nil, err
	}
	if src.Amount < p.Amount {
		return nil, nil, fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, p.Source, src.Amount, p.Amount)
	}
	if dst.Amount+p.Amount < dst.Amount {
		return nil, nil, fmt.Errorf("%w: %s", ErrBalanceOverflow, p.Destination)
	}

	newSrc, newDst := *src, *dst
	newSrc.Amount -= p.Amount
	newDst.Amount += p.Amount
	return &newSrc, &newDst, nil
}

// NewTokenAccount returns an initialized empty token account.
func NewTokenAccount(mint, owner solana.PublicKey) *token.Account {
	return &token.Account{
		Mint:  mint,
		Owner: owner,
		State: token.Initialized,
	}
}

// SpendNonce checks nonce against next and returns the following value.
func SpendNonce(signer solana.PublicKey, next, nonce uint64) (uint64, error) {
	if nonce != next {
		return 0, fmt.Errorf("%w: %s presented %d, expected %d", ErrInvalidNonce, signer, nonce, next)
	}
	if next == math.MaxUint64 {
		return 0, fmt.Errorf("%w: %s exhausted its nonces", ErrInvalidNonce, signer)
	}
	return next + 1, nil
}
