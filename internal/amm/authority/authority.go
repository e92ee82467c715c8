// Package authority derives the program-controlled signer that owns a pool's
// vaults. The authority is a program address computed from the pool seed and
// a bump; it has no private key, so only code presenting the same seeds can
// authorize transfers out of the vaults.
package authority

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
)

// ConfigSeedPrefix is the static first seed of every pool authority.
const ConfigSeedPrefix = "config"

// Seeds returns the derivation inputs for a pool seed, without the bump.
func Seeds(seed uint64) [][]byte {
	seedBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seedBytes, seed)
	return [][]byte{[]byte(ConfigSeedPrefix), seedBytes}
}

// SignerSeeds returns the seeds plus bump that prove the authority's signature.
func SignerSeeds(seed uint64, bump uint8) [][]byte {
	return append(Seeds(seed), []byte{bump})
}

// Derive runs the canonical bump search for a pool seed.
func Derive(programID solana.PublicKey, seed uint64) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(Seeds(seed), programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive pool authority for seed %d: %w", seed, err)
	}
	return addr, bump, nil
}

// Address recomputes the authority for a recorded bump. It never searches for
// another bump when the recorded one does not yield a valid address.
func Address(programID solana.PublicKey, seed uint64, bump uint8) (solana.PublicKey, error) {
	addr, err := solana.CreateProgramAddress(SignerSeeds(seed, bump), programID)
	if err != nil {
		return solana.PublicKey{}, amm.ErrAuthorityMismatch.Wrap(
			fmt.Errorf("seed %d bump %d: %w", seed, bump, err))
	}
	return addr, nil
}

// Verify checks that (seed, bump) re-derive exactly to expected.
func Verify(programID solana.PublicKey, seed uint64, bump uint8, expected solana.PublicKey) error {
	addr, err := Address(programID, seed, bump)
	if err != nil {
		return err
	}
	if !addr.Equals(expected) {
		return amm.ErrAuthorityMismatch.Wrapf("seed %d bump %d derives %s, recorded %s",
			seed, bump, addr, expected)
	}
	return nil
}

// ForConfig verifies the Config record stored at configAddr and returns its authority.
func ForConfig(programID, configAddr solana.PublicKey, cfg *amm.Config) (solana.PublicKey, error) {
	if err := Verify(programID, cfg.Seed, cfg.ConfigBump, configAddr); err != nil {
		return solana.PublicKey{}, err
	}
	return configAddr, nil
}

// Vault returns the custody account of the pool authority for mint.
func Vault(authority, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(authority, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive vault for mint %s: %w", mint, err)
	}
	return ata, nil
}
