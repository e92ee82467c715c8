// =============================
// File: internal/amm/config.go
// =============================
package amm

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// FeeDenominator is the basis-point scale of Config.Fee.
const FeeDenominator = 10_000

// ConfigDiscriminator prefixes every encoded Config account.
var ConfigDiscriminator = bin.SighashAccount("Config")

// Config is the durable record of one trading pair.
type Config struct {
	Seed       uint64            // distinguishes pools sharing the same pair
	Authority  *solana.PublicKey `bin:"optional"` // admin allowed to lock/unlock, nil when immutable
	MintX      solana.PublicKey
	MintY      solana.PublicKey
	Fee        uint16 // basis points charged on input
	Locked     bool
	ConfigBump uint8
	LPBump     uint8
}

// Validate checks the invariants every stored Config must satisfy.
func (c *Config) Validate() error {
	if c.Fee >= FeeDenominator {
		return ErrInvalidFee.Wrapf("fee %d bps must be below %d", c.Fee, FeeDenominator)
	}
	if c.MintX.Equals(c.MintY) {
		return fmt.Errorf("mint_x and mint_y must differ: %s", c.MintX)
	}
	return nil
}

// Mint returns the mint of the given side.
func (c *Config) Mint(isX bool) solana.PublicKey {
	if isX {
		return c.MintX
	}
	return c.MintY
}

// Reserves orders vault balances for a swap direction.
func Reserves(isX bool, vaultX, vaultY uint64) (reserveIn, reserveOut uint64) {
	if isX {
		return vaultX, vaultY
	}
	return vaultY, vaultX
}

// EncodeConfig serializes c into its account layout.
func EncodeConfig(c *Config) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(ConfigDiscriminator)
	if err := bin.NewBorshEncoder(buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeConfig parses account data into a Config.
func DecodeConfig(data []byte) (*Config, error) {
	if len(data) < len(ConfigDiscriminator) {
		return nil, fmt.Errorf("data too short for Config")
	}
	if !bytes.Equal(data[:len(ConfigDiscriminator)], ConfigDiscriminator) {
		return nil, fmt.Errorf("invalid discriminator for Config")
	}

	cfg := &Config{}
	if err := bin.NewBorshDecoder(data[len(ConfigDiscriminator):]).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
