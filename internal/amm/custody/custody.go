// =============================
// File: internal/amm/custody/custody.go
// =============================
package custody

import (
	"context"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/amm/accounts"
	"github.com/rovshanmuradov/solana-amm/internal/amm/authority"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// Custody moves funds between a user and the vaults of one pool.
type Custody struct {
	ProgramID solana.PublicKey
	Accounts  accounts.SwapAccounts
	Config    *amm.Config
}

// New binds a custody helper to a resolved account set.
func New(programID solana.PublicKey, a accounts.SwapAccounts, cfg *amm.Config) *Custody {
	return &Custody{ProgramID: programID, Accounts: a, Config: cfg}
}

// DepositInstruction builds the user -> vault transfer for the given side.
func (c *Custody) DepositInstruction(isX bool, amount uint64) *token.Transfer {
	return token.NewTransferInstruction(amount,
		c.Accounts.UserAccount(isX), c.Accounts.Vault(isX), c.Accounts.User, nil)
}

// WithdrawInstruction builds the vault -> user transfer for the given side.
func (c *Custody) WithdrawInstruction(isX bool, amount uint64) *token.Transfer {
	return token.NewTransferInstruction(amount,
		c.Accounts.Vault(isX), c.Accounts.UserAccount(isX), c.Accounts.Config, nil)
}

// Intent is the part of a swap the user commits to by signing its deposit.
type Intent struct {
	IsX          bool
	AmountIn     uint64
	MinAmountOut uint64
	// Nonce is the user's next ledger nonce.
	Nonce uint64
}

// intentMemo binds a deposit to the pool, the swap direction and the
// slippage bound: "swap:" | config | is_x | min_amount_out (LE).
func (c *Custody) intentMemo(in Intent) []byte {
	memo := make([]byte, 0, 5+32+1+8)
	memo = append(memo, "swap:"...)
	memo = append(memo, c.Accounts.Config.Bytes()...)
	if in.IsX {
		memo = append(memo, 1)
	} else {
		memo = append(memo, 0)
	}
	return binary.LittleEndian.AppendUint64(memo, in.MinAmountOut)
}

// DepositMessage is what the user signs to authorize the deposit of a swap.
func (c *Custody) DepositMessage(in Intent) []byte {
	return ledger.TransferMessage(c.Accounts.UserAccount(in.IsX), c.Accounts.Vault(in.IsX),
		in.AmountIn, in.Nonce, c.intentMemo(in))
}

// Deposit moves the input amount from the user's account into the vault of
// the input side. sig must cover DepositMessage(in); the ledger spends the
// nonce in the same unit.
func (c *Custody) Deposit(ctx context.Context, tx ledger.Tx, in Intent, sig solana.Signature) error {
	return tx.Transfer(ctx, c.DepositInstruction(in.IsX, in.AmountIn), ledger.UserSignature{
		Signer:    c.Accounts.User,
		Signature: sig,
		Nonce:     in.Nonce,
		Memo:      c.intentMemo(in),
	})
}

// Withdraw moves amount from the vault of the side to the user's account.
// The pool authority signs by presenting its derivation seeds; the ledger
// re-derives the address and compares it with the vault owner.
func (c *Custody) Withdraw(ctx context.Context, tx ledger.Tx, isX bool, amount uint64) error {
	return tx.Transfer(ctx, c.WithdrawInstruction(isX, amount), ledger.ProgramSigner{
		ProgramID: c.ProgramID,
		Seeds:     authority.SignerSeeds(c.Config.Seed, c.Config.ConfigBump),
	})
}
