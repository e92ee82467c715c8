package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	Up          string
}

// Token accounts and pool configs are stored in their on-chain binary layout.
// Amounts and nonces are kept as little-endian blobs because SQLite integers
// are signed 64-bit.
var migrations = []migration{
	{
		Version:     1,
		Description: "token accounts and pool configs",
		Up: `
		CREATE TABLE IF NOT EXISTS token_accounts (
			address    TEXT PRIMARY KEY,
			mint       TEXT NOT NULL,
			owner      TEXT NOT NULL,
			data       BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_token_accounts_owner ON token_accounts (owner);
		CREATE INDEX IF NOT EXISTS idx_token_accounts_mint ON token_accounts (mint);

		CREATE TABLE IF NOT EXISTS pools (
			address    TEXT PRIMARY KEY,
			mint_x     TEXT NOT NULL,
			mint_y     TEXT NOT NULL,
			data       BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		Version:     2,
		Description: "signer nonces",
		Up: `
		CREATE TABLE IF NOT EXISTS nonces (
			signer     TEXT PRIMARY KEY,
			next       BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
}

func migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	const ensure = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.ExecContext(ctx, ensure); err != nil {
		return fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		logger.Info("Applied migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description))
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
		m.Version, m.Description); err != nil {
		return err
	}
	return tx.Commit()
}
