// =============================
// File: internal/ledger/memory/memory.go
// =============================
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// Ledger is an in-process ledger. Atomic units are serialized by a single
// mutex and rolled back from a journal of pre-images.
type Ledger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*token.Account
	pools    map[solana.PublicKey][]byte
	nonces   map[solana.PublicKey]uint64
	logger   *zap.Logger
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates an empty in-memory ledger.
func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[solana.PublicKey]*token.Account),
		pools:    make(map[solana.PublicKey][]byte),
		nonces:   make(map[solana.PublicKey]uint64),
		logger:   logger.Named("memory_ledger"),
	}
}

func (l *Ledger) TokenAccount(_ context.Context, addr solana.PublicKey) (*token.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokenAccount(addr)
}

func (l *Ledger) Pool(_ context.Context, addr solana.PublicKey) (*amm.Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool(addr)
}

func (l *Ledger) NextNonce(_ context.Context, signer solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[signer], nil
}

// Atomic runs fn while holding the ledger lock. On failure everything fn
// touched is restored to its pre-image.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := newMemTx(l)
	err := fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
		l.logger.Debug("Unit of work rolled back",
			zap.Int("restored_accounts", len(tx.accounts)),
			zap.Int("restored_pools", len(tx.pools)),
			zap.Int("restored_nonces", len(tx.nonces)),
			zap.Error(err))
		return err
	}
	return nil
}

func (l *Ledger) CreatePool(ctx context.Context, addr solana.PublicKey, cfg *amm.Config) error {
	return l.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.CreatePool(ctx, addr, cfg)
	})
}

func (l *Ledger) SetLocked(ctx context.Context, addr solana.PublicKey, locked bool) error {
	return l.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.SetLocked(ctx, addr, locked)
	})
}

func (l *Ledger) CreateTokenAccount(ctx context.Context, addr, mint, owner solana.PublicKey) error {
	return l.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.CreateTokenAccount(ctx, addr, mint, owner)
	})
}

func (l *Ledger) MintTo(_ context.Context, addr solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	if acc.Amount+amount < acc.Amount {
		return fmt.Errorf("%w: %s", ledger.ErrBalanceOverflow, addr)
	}
	acc.Amount += amount
	return nil
}

func (l *Ledger) Close() error {
	return nil
}

func (l *Ledger) tokenAccount(addr solana.PublicKey) (*token.Account, error) {
	acc, ok := l.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	cp := *acc
	return &cp, nil
}

func (l *Ledger) pool(addr solana.PublicKey) (*amm.Config, error) {
	data, ok := l.pools[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, addr)
	}
	return amm.DecodeConfig(data)
}

// memTx is valid only inside the Atomic call that created it. Each journal
// keeps the first pre-image of an entry; a nil pre-image means the entry did
// not exist before the unit.
type memTx struct {
	ledger   *Ledger
	accounts map[solana.PublicKey]*token.Account
	pools    map[solana.PublicKey][]byte
	nonces   map[solana.PublicKey]*uint64
}

func newMemTx(l *Ledger) *memTx {
	return &memTx{
		ledger:   l,
		accounts: make(map[solana.PublicKey]*token.Account),
		pools:    make(map[solana.PublicKey][]byte),
		nonces:   make(map[solana.PublicKey]*uint64),
	}
}

func (tx *memTx) TokenAccount(_ context.Context, addr solana.PublicKey) (*token.Account, error) {
	return tx.ledger.tokenAccount(addr)
}

func (tx *memTx) Pool(_ context.Context, addr solana.PublicKey) (*amm.Config, error) {
	return tx.ledger.pool(addr)
}

func (tx *memTx) NextNonce(_ context.Context, signer solana.PublicKey) (uint64, error) {
	return tx.ledger.nonces[signer], nil
}

func (tx *memTx) UseNonce(ctx context.Context, signer solana.PublicKey, nonce uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cur, existed := tx.ledger.nonces[signer]
	next, err := ledger.SpendNonce(signer, cur, nonce)
	if err != nil {
		return err
	}
	if _, ok := tx.nonces[signer]; !ok {
		if existed {
			tx.nonces[signer] = &cur
		} else {
			tx.nonces[signer] = nil
		}
	}
	tx.ledger.nonces[signer] = next
	return nil
}

func (tx *memTx) Transfer(ctx context.Context, ix *token.Transfer, auth ledger.Authorization) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := ledger.ParseTransfer(ix)
	if err != nil {
		return err
	}
	src, err := tx.ledger.tokenAccount(p.Source)
	if err != nil {
		return err
	}
	dst, err := tx.ledger.tokenAccount(p.Destination)
	if err != nil {
		return err
	}

	newSrc, newDst, err := ledger.ApplyTransfer(p, src, dst, auth)
	if err != nil {
		return err
	}
	if nonced, ok := auth.(ledger.NoncedAuthorization); ok {
		signer, nonce := nonced.SignerNonce()
		if err := tx.UseNonce(ctx, signer, nonce); err != nil {
			return err
		}
	}

	tx.putAccount(p.Source, newSrc)
	tx.putAccount(p.Destination, newDst)
	return nil
}

func (tx *memTx) CreatePool(_ context.Context, addr solana.PublicKey, cfg *amm.Config) error {
	if _, ok := tx.ledger.pools[addr]; ok {
		return fmt.Errorf("%w: pool %s", ledger.ErrAccountExists, addr)
	}
	data, err := amm.EncodeConfig(cfg)
	if err != nil {
		return err
	}
	tx.putPool(addr, data)
	tx.ledger.logger.Debug("Pool created", zap.String("config", addr.String()))
	return nil
}

func (tx *memTx) SetLocked(_ context.Context, addr solana.PublicKey, locked bool) error {
	cfg, err := tx.ledger.pool(addr)
	if err != nil {
		return err
	}
	cfg.Locked = locked
	data, err := amm.EncodeConfig(cfg)
	if err != nil {
		return err
	}
	tx.putPool(addr, data)
	return nil
}

func (tx *memTx) CreateTokenAccount(_ context.Context, addr, mint, owner solana.PublicKey) error {
	if _, ok := tx.ledger.accounts[addr]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, addr)
	}
	tx.putAccount(addr, ledger.NewTokenAccount(mint, owner))
	return nil
}

func (tx *memTx) putAccount(addr solana.PublicKey, acc *token.Account) {
	if _, ok := tx.accounts[addr]; !ok {
		tx.accounts[addr] = tx.ledger.accounts[addr]
	}
	tx.ledger.accounts[addr] = acc
}

func (tx *memTx) putPool(addr solana.PublicKey, data []byte) {
	if _, ok := tx.pools[addr]; !ok {
		tx.pools[addr] = tx.ledger.pools[addr]
	}
	tx.ledger.pools[addr] = data
}

func (tx *memTx) rollback() {
	for addr, pre := range tx.accounts {
		if pre == nil {
			delete(tx.ledger.accounts, addr)
			continue
		}
		tx.ledger.accounts[addr] = pre
	}
	for addr, pre := range tx.pools {
		if pre == nil {
			delete(tx.ledger.pools, addr)
			continue
		}
		tx.ledger.pools[addr] = pre
	}
	for signer, pre := range tx.nonces {
		if pre == nil {
			delete(tx.ledger.nonces, signer)
			continue
		}
		tx.ledger.nonces[signer] = *pre
	}
}
