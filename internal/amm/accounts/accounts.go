// Package accounts resolves and checks the account set a swap runs against.
// Check is a pure pre-flight pass: it never touches balances and reports
// every violated constraint, not only the first.
package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/amm/authority"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// SwapAccounts is the caller-supplied account set of one swap.
type SwapAccounts struct {
	User   solana.PublicKey
	MintX  solana.PublicKey
	MintY  solana.PublicKey
	Config solana.PublicKey
	VaultX solana.PublicKey
	VaultY solana.PublicKey
	UserX  solana.PublicKey
	UserY  solana.PublicKey
}

// Vault returns the vault of the given side.
func (a SwapAccounts) Vault(isX bool) solana.PublicKey {
	if isX {
		return a.VaultX
	}
	return a.VaultY
}

// UserAccount returns the user's token account of the given side.
func (a SwapAccounts) UserAccount(isX bool) solana.PublicKey {
	if isX {
		return a.UserX
	}
	return a.UserY
}

// State is the on-ledger data behind a SwapAccounts.
type State struct {
	Config *amm.Config
	VaultX *token.Account
	VaultY *token.Account
	UserX  *token.Account
	UserY  *token.Account
}

// Resolve builds the canonical account set for user trading on the pool at configAddr.
func Resolve(configAddr solana.PublicKey, cfg *amm.Config, user solana.PublicKey) (SwapAccounts, error) {
	a := SwapAccounts{
		User:   user,
		MintX:  cfg.MintX,
		MintY:  cfg.MintY,
		Config: configAddr,
	}
	var err error
	if a.VaultX, err = authority.Vault(configAddr, cfg.MintX); err != nil {
		return SwapAccounts{}, err
	}
	if a.VaultY, err = authority.Vault(configAddr, cfg.MintY); err != nil {
		return SwapAccounts{}, err
	}
	if a.UserX, err = authority.Vault(user, cfg.MintX); err != nil {
		return SwapAccounts{}, err
	}
	if a.UserY, err = authority.Vault(user, cfg.MintY); err != nil {
		return SwapAccounts{}, err
	}
	return a, nil
}

// Load reads the state behind a from r. Ledger errors pass through unchanged.
func Load(ctx context.Context, r ledger.Reader, a SwapAccounts) (*State, error) {
	cfg, err := r.Pool(ctx, a.Config)
	if err != nil {
		return nil, err
	}
	s := &State{Config: cfg}
	for _, item := range []struct {
		addr solana.PublicKey
		dst  **token.Account
	}{
		{a.VaultX, &s.VaultX},
		{a.VaultY, &s.VaultY},
		{a.UserX, &s.UserX},
		{a.UserY, &s.UserY},
	} {
		acc, err := r.TokenAccount(ctx, item.addr)
		if err != nil {
			return nil, err
		}
		*item.dst = acc
	}
	return s, nil
}

// Violation is one failed account constraint.
type Violation struct {
	Account    string
	Constraint string
	Detail     string
	// Code is CodeAuthorityMismatch for derivation failures, CodeConstraintViolation otherwise.
	Code amm.ErrorCode
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Account, v.Constraint, v.Detail)
}

// Violations is the result of Check. A non-empty list is an error.
type Violations []Violation

func (vs Violations) Error() string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%d account constraint(s) violated: %s", len(vs), strings.Join(parts, "; "))
}

// Is matches ErrConstraintViolation and the code of every contained violation.
func (vs Violations) Is(target error) bool {
	t, ok := target.(*amm.Error)
	if !ok {
		return false
	}
	if t.Code == amm.CodeConstraintViolation {
		return len(vs) > 0
	}
	for _, v := range vs {
		if v.Code == t.Code {
			return true
		}
	}
	return false
}

// Has reports whether a violation was recorded for account.
func (vs Violations) Has(account string) bool {
	for _, v := range vs {
		if v.Account == account {
			return true
		}
	}
	return false
}

// Check verifies the account binding of a against s.
func Check(programID solana.PublicKey, a SwapAccounts, s *State) Violations {
	var vs Violations
	fail := func(code amm.ErrorCode, account, constraint, format string, args ...any) {
		vs = append(vs, Violation{
			Account:    account,
			Constraint: constraint,
			Detail:     fmt.Sprintf(format, args...),
			Code:       code,
		})
	}

	cfg := s.Config
	if err := authority.Verify(programID, cfg.Seed, cfg.ConfigBump, a.Config); err != nil {
		fail(amm.CodeAuthorityMismatch, "config", "seeds", "%v", err)
	}
	if !cfg.MintX.Equals(a.MintX) {
		fail(amm.CodeConstraintViolation, "config", "has_one mint_x", "config %s, supplied %s", cfg.MintX, a.MintX)
	}
	if !cfg.MintY.Equals(a.MintY) {
		fail(amm.CodeConstraintViolation, "config", "has_one mint_y", "config %s, supplied %s", cfg.MintY, a.MintY)
	}

	checkATA := func(name string, addr solana.PublicKey, acc *token.Account, mint, owner solana.PublicKey) {
		if acc == nil {
			fail(amm.CodeConstraintViolation, name, "account", "missing")
			return
		}
		if !acc.Mint.Equals(mint) {
			fail(amm.CodeConstraintViolation, name, "associated_token::mint", "holds %s, expected %s", acc.Mint, mint)
		}
		if !acc.Owner.Equals(owner) {
			code := amm.CodeConstraintViolation
			if owner.Equals(a.Config) {
				code = amm.CodeAuthorityMismatch
			}
			fail(code, name, "associated_token::authority", "owned by %s, expected %s", acc.Owner, owner)
		}
		ata, err := authority.Vault(owner, mint)
		if err != nil {
			fail(amm.CodeConstraintViolation, name, "associated_token", "%v", err)
			return
		}
		if !ata.Equals(addr) {
			fail(amm.CodeConstraintViolation, name, "associated_token", "address %s, expected %s", addr, ata)
		}
	}

	checkATA("vault_x", a.VaultX, s.VaultX, a.MintX, a.Config)
	checkATA("vault_y", a.VaultY, s.VaultY, a.MintY, a.Config)
	checkATA("user_x", a.UserX, s.UserX, a.MintX, a.User)
	checkATA("user_y", a.UserY, s.UserY, a.MintY, a.User)
	return vs
}

// Validate runs Check and folds the result into a pool error. Derivation
// failures are reported as AuthorityMismatch; anything else as
// ConstraintViolation. Both are integrity faults.
func Validate(programID solana.PublicKey, a SwapAccounts, s *State) error {
	vs := Check(programID, a, s)
	if len(vs) == 0 {
		return nil
	}
	if vs.Is(amm.ErrAuthorityMismatch) {
		return amm.ErrAuthorityMismatch.Wrap(vs)
	}
	return amm.ErrConstraintViolation.Wrap(vs)
}
