// =============================
// File: internal/amm/instructions/swap.go
// =============================
package instructions

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/solana-amm/internal/amm/accounts"
)

// SwapDiscriminator is the Anchor sighash of the swap instruction.
var SwapDiscriminator = bin.SighashInstruction("swap")

// swapAccountCount is the number of accounts the swap instruction takes.
const swapAccountCount = 11

// SwapArgs are the borsh-encoded arguments of swap(is_x, amount, min).
type SwapArgs struct {
	IsX    bool
	Amount uint64
	Min    uint64
}

// NewSwap builds the on-chain swap instruction for the given account set.
func NewSwap(programID solana.PublicKey, a accounts.SwapAccounts, args SwapArgs) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	buf.Write(SwapDiscriminator)
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("encode swap args: %w", err)
	}

	// order follows the program's Swap accounts struct
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(a.User, true, true),
		solana.NewAccountMeta(a.MintX, false, false),
		solana.NewAccountMeta(a.MintY, false, false),
		solana.NewAccountMeta(a.Config, false, false),
		solana.NewAccountMeta(a.VaultX, true, false),
		solana.NewAccountMeta(a.VaultY, true, false),
		solana.NewAccountMeta(a.UserX, true, false),
		solana.NewAccountMeta(a.UserY, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, metas, buf.Bytes()), nil
}

// ParseSwap recovers the account set and arguments from a swap instruction.
func ParseSwap(ix solana.Instruction) (accounts.SwapAccounts, SwapArgs, error) {
	data, err := ix.Data()
	if err != nil {
		return accounts.SwapAccounts{}, SwapArgs{}, err
	}
	args, err := DecodeSwapArgs(data)
	if err != nil {
		return accounts.SwapAccounts{}, SwapArgs{}, err
	}

	metas := ix.Accounts()
	if len(metas) != swapAccountCount {
		return accounts.SwapAccounts{}, SwapArgs{}, fmt.Errorf("swap takes %d accounts, got %d", swapAccountCount, len(metas))
	}
	if !metas[0].IsSigner {
		return accounts.SwapAccounts{}, SwapArgs{}, fmt.Errorf("user %s must sign", metas[0].PublicKey)
	}
	return accounts.SwapAccounts{
		User:   metas[0].PublicKey,
		MintX:  metas[1].PublicKey,
		MintY:  metas[2].PublicKey,
		Config: metas[3].PublicKey,
		VaultX: metas[4].PublicKey,
		VaultY: metas[5].PublicKey,
		UserX:  metas[6].PublicKey,
		UserY:  metas[7].PublicKey,
	}, args, nil
}

// DecodeSwapArgs parses instruction data produced by NewSwap.
func DecodeSwapArgs(data []byte) (SwapArgs, error) {
	if len(data) < len(SwapDiscriminator) {
		return SwapArgs{}, fmt.Errorf("data too short for swap")
	}
	if !bytes.Equal(data[:len(SwapDiscriminator)], SwapDiscriminator) {
		return SwapArgs{}, fmt.Errorf("invalid discriminator for swap")
	}
	var args SwapArgs
	if err := bin.NewBorshDecoder(data[len(SwapDiscriminator):]).Decode(&args); err != nil {
		return SwapArgs{}, fmt.Errorf("decode swap args: %w", err)
	}
	return args, nil
}
