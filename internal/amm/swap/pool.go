package swap

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/amm/authority"
	"github.com/rovshanmuradov/solana-amm/internal/amm/curve"
	"github.com/rovshanmuradov/solana-amm/internal/events"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// LPSeedPrefix is the first seed of the pool's LP mint address.
const LPSeedPrefix = "lp"

// InitParams describe a new pool.
type InitParams struct {
	Seed  uint64
	MintX solana.PublicKey
	MintY solana.PublicKey
	Fee   uint16
	// Authority may lock and unlock the pool. Nil makes the config immutable.
	Authority *solana.PublicKey
}

// PoolInfo is a read-only view of a pool.
type PoolInfo struct {
	Address solana.PublicKey
	Config  *amm.Config
	VaultX  solana.PublicKey
	VaultY  solana.PublicKey
	// Reserves are the current vault balances.
	ReserveX uint64
	ReserveY uint64
}

// InitializePool stores the Config at the derived authority address and
// opens both empty vaults in one ledger unit.
func (e *Engine) InitializePool(ctx context.Context, p InitParams) (*PoolInfo, error) {
	configAddr, bump, err := authority.Derive(e.programID, p.Seed)
	if err != nil {
		return nil, err
	}
	_, lpBump, err := solana.FindProgramAddress(
		[][]byte{[]byte(LPSeedPrefix), configAddr.Bytes()}, e.programID)
	if err != nil {
		return nil, fmt.Errorf("derive lp mint: %w", err)
	}

	cfg := &amm.Config{
		Seed:       p.Seed,
		Authority:  p.Authority,
		MintX:      p.MintX,
		MintY:      p.MintY,
		Fee:        p.Fee,
		ConfigBump: bump,
		LPBump:     lpBump,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	info := &PoolInfo{Address: configAddr, Config: cfg}
	if info.VaultX, err = authority.Vault(configAddr, p.MintX); err != nil {
		return nil, err
	}
	if info.VaultY, err = authority.Vault(configAddr, p.MintY); err != nil {
		return nil, err
	}

	err = e.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.CreatePool(ctx, configAddr, cfg); err != nil {
			return fmt.Errorf("create pool %s: %w", configAddr, err)
		}
		if err := tx.CreateTokenAccount(ctx, info.VaultX, p.MintX, configAddr); err != nil {
			return fmt.Errorf("create vault x: %w", err)
		}
		if err := tx.CreateTokenAccount(ctx, info.VaultY, p.MintY, configAddr); err != nil {
			return fmt.Errorf("create vault y: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Pool initialized",
		zap.String("pool", configAddr.String()),
		zap.Uint64("seed", p.Seed),
		zap.Uint16("fee_bps", p.Fee),
		zap.Uint8("bump", bump))
	e.publish(events.PoolInitializedEvent{
		BaseEvent: events.NewBase(events.PoolInitialized),
		Pool:      configAddr,
		MintX:     p.MintX,
		MintY:     p.MintY,
		Fee:       p.Fee,
	})
	return info, nil
}

// Pool loads a pool and its reserves from the engine's ledger.
func (e *Engine) Pool(ctx context.Context, configAddr solana.PublicKey) (*PoolInfo, error) {
	return LoadPool(ctx, e.ledger, e.programID, configAddr)
}

// Quote prices a swap on the engine's ledger without executing it.
func (e *Engine) Quote(ctx context.Context, configAddr solana.PublicKey, isX bool, amountIn uint64) (curve.Quote, error) {
	return QuoteFrom(ctx, e.ledger, e.programID, configAddr, isX, amountIn)
}

// LoadPool reads a pool and its reserves from r. The stored config must
// re-derive to its own address under programID.
func LoadPool(ctx context.Context, r ledger.Reader, programID, configAddr solana.PublicKey) (*PoolInfo, error) {
	cfg, err := r.Pool(ctx, configAddr)
	if err != nil {
		return nil, err
	}
	if _, err := authority.ForConfig(programID, configAddr, cfg); err != nil {
		return nil, err
	}

	info := &PoolInfo{Address: configAddr, Config: cfg}
	if info.VaultX, err = authority.Vault(configAddr, cfg.MintX); err != nil {
		return nil, err
	}
	if info.VaultY, err = authority.Vault(configAddr, cfg.MintY); err != nil {
		return nil, err
	}
	vx, err := r.TokenAccount(ctx, info.VaultX)
	if err != nil {
		return nil, err
	}
	vy, err := r.TokenAccount(ctx, info.VaultY)
	if err != nil {
		return nil, err
	}
	if !vx.Owner.Equals(configAddr) || !vy.Owner.Equals(configAddr) {
		return nil, amm.ErrAuthorityMismatch.Wrapf("vaults of %s are not owned by the pool authority", configAddr)
	}
	info.ReserveX, info.ReserveY = vx.Amount, vy.Amount
	return info, nil
}

// QuoteFrom prices a swap against the state in r. It applies the same checks
// as Swap except the slippage bound and the user accounts.
func QuoteFrom(ctx context.Context, r ledger.Reader, programID, configAddr solana.PublicKey, isX bool, amountIn uint64) (curve.Quote, error) {
	info, err := LoadPool(ctx, r, programID, configAddr)
	if err != nil {
		return curve.Quote{}, err
	}
	if info.Config.Locked {
		return curve.Quote{}, amm.ErrPoolLocked
	}
	reserveIn, reserveOut := amm.Reserves(isX, info.ReserveX, info.ReserveY)
	return curve.NewQuote(reserveIn, reserveOut, amountIn, info.Config.Fee)
}

// LockMessage is what the pool authority signs to lock or unlock a pool:
// "lock:" or "unlock:", the config address and the admin's nonce (LE).
func LockMessage(configAddr solana.PublicKey, locked bool, nonce uint64) []byte {
	action := "unlock:"
	if locked {
		action = "lock:"
	}
	msg := append([]byte(action), configAddr.Bytes()...)
	return binary.LittleEndian.AppendUint64(msg, nonce)
}

// SetLocked locks or unlocks a pool on behalf of its authority. The admin's
// nonce is spent in the same unit as the config update.
func (e *Engine) SetLocked(ctx context.Context, configAddr, admin solana.PublicKey, nonce uint64, sig solana.Signature, locked bool) error {
	err := e.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		cfg, err := tx.Pool(ctx, configAddr)
		if err != nil {
			return err
		}
		if cfg.Authority == nil {
			return amm.ErrImmutableConfig
		}
		if !cfg.Authority.Equals(admin) {
			return amm.ErrUnauthorized.Wrapf("%s is not the authority of %s", admin, configAddr)
		}
		if !sig.Verify(admin, LockMessage(configAddr, locked, nonce)) {
			return amm.ErrUnauthorized.Wrapf("bad signature from %s", admin)
		}
		if err := tx.UseNonce(ctx, admin, nonce); err != nil {
			return err
		}
		return tx.SetLocked(ctx, configAddr, locked)
	})
	if err != nil {
		return err
	}

	e.logger.Info("Pool lock changed",
		zap.String("pool", configAddr.String()),
		zap.Bool("locked", locked))
	e.publish(events.PoolLockChangedEvent{
		BaseEvent: events.NewBase(events.PoolLockChanged),
		Pool:      configAddr,
		Locked:    locked,
	})
	return nil
}
