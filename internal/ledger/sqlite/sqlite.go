// Package sqlite is a durable ledger on top of SQLite. Each Atomic unit is a
// single immediate-mode SQL transaction on a one-connection pool.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// Ledger stores token accounts, pool configs and signer nonces in a SQLite database.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ ledger.Ledger = (*Ledger)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Ledger, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer at a time; Atomic relies on this to serialize units
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	l := &Ledger{db: db, logger: logger.Named("sqlite_ledger")}
	if err := migrate(ctx, db, l.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	l.logger.Debug("Ledger opened", zap.String("path", path))
	return l, nil
}

func (l *Ledger) TokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
	return loadTokenAccount(ctx, l.db, addr)
}

func (l *Ledger) Pool(ctx context.Context, addr solana.PublicKey) (*amm.Config, error) {
	return loadPool(ctx, l.db, addr)
}

// Atomic runs fn inside one SQL transaction.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx})
	})
}

func (l *Ledger) NextNonce(ctx context.Context, signer solana.PublicKey) (uint64, error) {
	return loadNonce(ctx, l.db, signer)
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

func (l *Ledger) MintTo(ctx context.Context, addr solana.PublicKey, amount uint64) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		acc, err := loadTokenAccount(ctx, tx, addr)
		if err != nil {
			return err
		}
		if acc.Amount+amount < acc.Amount {
			return fmt.Errorf("%w: %s", ledger.ErrBalanceOverflow, addr)
		}
		acc.Amount += amount
		return storeTokenAccount(ctx, tx, addr, acc)
	})
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// inTx commits only when fn succeeds and ctx is still live.
func (l *Ledger) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			l.logger.Error("Rollback failed", zap.Error(rbErr))
		}
		l.logger.Debug("Transaction rolled back", zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) TokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
	return loadTokenAccount(ctx, t.tx, addr)
}

func (t *sqlTx) Pool(ctx context.Context, addr solana.PublicKey) (*amm.Config, error) {
	return loadPool(ctx, t.tx, addr)
}

func (t *sqlTx) NextNonce(ctx context.Context, signer solana.PublicKey) (uint64, error) {
	return loadNonce(ctx, t.tx, signer)
}

func (t *sqlTx) UseNonce(ctx context.Context, signer solana.PublicKey, nonce uint64) error {
	cur, err := loadNonce(ctx, t.tx, signer)
	if err != nil {
		return err
	}
	next, err := ledger.SpendNonce(signer, cur, nonce)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO nonces (signer, next) VALUES (?, ?)
		ON CONFLICT (signer) DO UPDATE SET next = excluded.next, updated_at = CURRENT_TIMESTAMP`,
		signer.String(), binary.LittleEndian.AppendUint64(nil, next))
	if err != nil {
		return fmt.Errorf("failed to store nonce of %s: %w", signer, err)
	}
	return nil
}

func (t *sqlTx) Transfer(ctx context.Context, ix *token.Transfer, auth ledger.Authorization) error {
	p, err := ledger.ParseTransfer(ix)
	if err != nil {
		return err
	}
	src, err := loadTokenAccount(ctx, t.tx, p.Source)
	if err != nil {
		return err
	}
	dst, err := loadTokenAccount(ctx, t.tx, p.Destination)
	if err != nil {
		return err
	}

	newSrc, newDst, err := ledger.ApplyTransfer(p, src, dst, auth)
	if err != nil {
		return err
	}
	if nonced, ok := auth.(ledger.NoncedAuthorization); ok {
		signer, nonce := nonced.SignerNonce()
		if err := t.UseNonce(ctx, signer, nonce); err != nil {
			return err
		}
	}
	if err := storeTokenAccount(ctx, t.tx, p.Source, newSrc); err != nil {
		return err
	}
	return storeTokenAccount(ctx, t.tx, p.Destination, newDst)
}

func (t *sqlTx) CreatePool(ctx context.Context, addr solana.PublicKey, cfg *amm.Config) error {
	data, err := amm.EncodeConfig(cfg)
	if err != nil {
		return err
	}
	exists, err := rowExists(ctx, t.tx, `SELECT COUNT(*) FROM pools WHERE address = ?`, addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: pool %s", ledger.ErrAccountExists, addr)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO pools (address, mint_x, mint_y, data) VALUES (?, ?, ?, ?)`,
		addr.String(), cfg.MintX.String(), cfg.MintY.String(), data)
	if err != nil {
		return fmt.Errorf("failed to insert pool %s: %w", addr, err)
	}
	return nil
}

func (t *sqlTx) SetLocked(ctx context.Context, addr solana.PublicKey, locked bool) error {
	cfg, err := loadPool(ctx, t.tx, addr)
	if err != nil {
		return err
	}
	cfg.Locked = locked
	data, err := amm.EncodeConfig(cfg)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE pools SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE address = ?`,
		data, addr.String())
	if err != nil {
		return fmt.Errorf("failed to update pool %s: %w", addr, err)
	}
	return nil
}

func (t *sqlTx) CreateTokenAccount(ctx context.Context, addr, mint, owner solana.PublicKey) error {
	exists, err := rowExists(ctx, t.tx, `SELECT COUNT(*) FROM token_accounts WHERE address = ?`, addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, addr)
	}
	data, err := encodeTokenAccount(ledger.NewTokenAccount(mint, owner))
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO token_accounts (address, mint, owner, data) VALUES (?, ?, ?, ?)`,
		addr.String(), mint.String(), owner.String(), data)
	if err != nil {
		return fmt.Errorf("failed to insert token account %s: %w", addr, err)
	}
	return nil
}

func rowExists(ctx context.Context, q querier, query string, addr solana.PublicKey) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, query, addr.String()).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", addr, err)
	}
	return count > 0, nil
}

func loadTokenAccount(ctx context.Context, q querier, addr solana.PublicKey) (*token.Account, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM token_accounts WHERE address = ?`, addr.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token account %s: %w", addr, err)
	}

	acc := new(token.Account)
	if err := acc.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, fmt.Errorf("failed to decode token account %s: %w", addr, err)
	}
	return acc, nil
}

func storeTokenAccount(ctx context.Context, q querier, addr solana.PublicKey, acc *token.Account) error {
	data, err := encodeTokenAccount(acc)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`UPDATE token_accounts SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE address = ?`,
		data, addr.String())
	if err != nil {
		return fmt.Errorf("failed to store token account %s: %w", addr, err)
	}
	return nil
}

func encodeTokenAccount(acc *token.Account) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := acc.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return nil, fmt.Errorf("failed to encode token account: %w", err)
	}
	return buf.Bytes(), nil
}

func loadPool(ctx context.Context, q querier, addr solana.PublicKey) (*amm.Config, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM pools WHERE address = ?`, addr.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool %s: %w", addr, err)
	}
	return amm.DecodeConfig(data)
}

// loadNonce returns 0 for a signer that never spent a nonce.
func loadNonce(ctx context.Context, q querier, signer solana.PublicKey) (uint64, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT next FROM nonces WHERE signer = ?`, signer.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load nonce of %s: %w", signer, err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt nonce of %s: %d bytes", signer, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}
