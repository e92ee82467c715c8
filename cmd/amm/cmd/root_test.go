package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/amm/authority"
	"github.com/rovshanmuradov/solana-amm/internal/config"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
	"github.com/rovshanmuradov/solana-amm/internal/wallet"
)

type cli struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, db: filepath.Join(t.TempDir(), "amm.db")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--ledger", "sqlite", "--db", c.db, "--log-file="}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

type fixture struct {
	*cli
	pool         solana.PublicKey
	mintX, mintY solana.PublicKey
	admin, user  *wallet.Wallet
}

// newFixture creates a 30 bps pool with 1_000_000 / 1_000_000 reserves and a
// user holding 10_000 X.
func newFixture(t *testing.T) *fixture {
	f := &fixture{
		cli:   newCLI(t),
		mintX: solana.NewWallet().PublicKey(),
		mintY: solana.NewWallet().PublicKey(),
		admin: wallet.Generate(),
		user:  wallet.Generate(),
	}

	var err error
	f.pool, _, err = authority.Derive(solana.MustPublicKeyFromBase58(config.DefaultProgramID), 7)
	require.NoError(t, err)

	out := f.mustRun("pool", "init", "--seed", "7", "--fee", "30",
		"--mint-x", f.mintX.String(), "--mint-y", f.mintY.String(),
		"--admin", f.admin.PublicKey.String())
	assert.Contains(t, out, f.pool.String())

	f.mustRun("account", "fund", "--owner", f.pool.String(), "--mint", f.mintX.String(), "--amount", "1000000")
	f.mustRun("account", "fund", "--owner", f.pool.String(), "--mint", f.mintY.String(), "--amount", "1000000")
	f.mustRun("account", "fund", "--owner", f.user.PublicKey.String(), "--mint", f.mintX.String(), "--amount", "10000")
	f.mustRun("account", "fund", "--owner", f.user.PublicKey.String(), "--mint", f.mintY.String(), "--amount", "0")
	return f
}

func TestAuthorityCommand(t *testing.T) {
	c := newCLI(t)
	mint := solana.NewWallet().PublicKey()

	configAddr, bump, err := authority.Derive(solana.MustPublicKeyFromBase58(config.DefaultProgramID), 42)
	require.NoError(t, err)
	vault, err := authority.Vault(configAddr, mint)
	require.NoError(t, err)

	out := c.mustRun("authority", "--seed", "42", "--mint-x", mint.String())
	assert.Contains(t, out, configAddr.String())
	assert.Contains(t, out, vault.String())
	assert.Contains(t, out, fmt.Sprintf("Bump:      %d\n", bump))
}

func TestQuoteAndSwap(t *testing.T) {
	f := newFixture(t)

	out := f.mustRun("quote", f.pool.String(), "--amount", "10000")
	assert.Contains(t, out, "Amount out:      9871")
	assert.Contains(t, out, "Reserves after:  1010000 / 990129")

	journal := filepath.Join(t.TempDir(), "swaps.csv")
	out = f.mustRun("swap", f.pool.String(), "--amount", "10000", "--min", "9871",
		"--key", f.user.Base58(), "--journal", journal)
	assert.Contains(t, out, "Amount out:  9871")

	out = f.mustRun("pool", "show", f.pool.String())
	assert.Contains(t, out, "(1010000)")
	assert.Contains(t, out, "(990129)")

	userY, err := f.user.ATA(f.mintY)
	require.NoError(t, err)
	out = f.mustRun("account", "show", userY.String())
	assert.Contains(t, out, "Balance: 9871")

	file, err := os.Open(journal)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, f.pool.String(), records[1][1])
	assert.Equal(t, "9871", records[1][5])
}

func TestSwapSlippageLeavesBalancesUnchanged(t *testing.T) {
	f := newFixture(t)

	_, err := f.run("swap", f.pool.String(), "--amount", "10000", "--min", "9872", "--key", f.user.Base58())
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	out := f.mustRun("pool", "show", f.pool.String())
	assert.Contains(t, out, "(1000000)")
	assert.NotContains(t, out, "(990129)")
}

func TestSwapDefaultSlippage(t *testing.T) {
	f := newFixture(t)

	out := f.mustRun("swap", f.pool.String(), "--amount", "10000", "--key", f.user.Base58())
	// 9871 reduced by 50 bps
	assert.Contains(t, out, "Minimum out: 9821")
	assert.Contains(t, out, "Amount out:  9871")
}

func TestPoolLockUnlock(t *testing.T) {
	f := newFixture(t)

	_, err := f.run("pool", "lock", f.pool.String(), "--key", f.user.Base58())
	require.ErrorIs(t, err, amm.ErrUnauthorized)

	f.mustRun("pool", "lock", f.pool.String(), "--key", f.admin.Base58())
	_, err = f.run("swap", f.pool.String(), "--amount", "10000", "--min", "1", "--key", f.user.Base58())
	require.ErrorIs(t, err, amm.ErrPoolLocked)

	f.mustRun("pool", "unlock", f.pool.String(), "--key", f.admin.Base58())
	f.mustRun("swap", f.pool.String(), "--amount", "10000", "--min", "1", "--key", f.user.Base58())
}

func TestSwapExactMinimum(t *testing.T) {
	f := newFixture(t)

	out := f.mustRun("swap", f.pool.String(), "--amount", "10000", "--min", "9871", "--key", f.user.Base58())
	assert.Contains(t, out, "Amount out:  9871")
}

func TestMemoryLedgerHint(t *testing.T) {
	c := newCLI(t)
	pool := solana.NewWallet().PublicKey().String()

	_, err := c.run("--ledger", "memory", "pool", "show", pool)
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
	assert.ErrorContains(t, err, "--ledger sqlite")

	_, err = c.run("--ledger", "memory", "quote", pool, "--amount", "10")
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
	assert.ErrorContains(t, err, "--ledger sqlite")

	_, err = c.run("pool", "show", pool)
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
	assert.NotContains(t, err.Error(), "--ledger sqlite")
}

func TestSignerFromWalletsFile(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "wallets.csv")
	body := "name,private_key\ntrader," + f.user.Base58() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out := f.mustRun("wallet", "show", "--wallets", path, "--wallet", "trader", "--mint", f.mintX.String())
	assert.Contains(t, out, f.user.PublicKey.String())

	f.mustRun("swap", f.pool.String(), "--amount", "5000", "--min", "1", "--wallets", path, "--wallet", "trader")

	_, err := f.run("swap", f.pool.String(), "--amount", "5000", "--wallets", path, "--wallet", "nobody")
	assert.Error(t, err)
}

func TestInvalidFlags(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("pool", "show", "not-a-key")
	assert.Error(t, err)

	_, err = c.run("--ledger", "postgres", "pool", "show", solana.NewWallet().PublicKey().String())
	assert.Error(t, err)

	_, err = c.run("swap", solana.NewWallet().PublicKey().String(), "--amount", "1")
	assert.ErrorContains(t, err, "--key")
}

func TestWalletNew(t *testing.T) {
	out := newCLI(t).mustRun("wallet", "new")
	assert.Contains(t, out, "Public Key:")
	assert.Contains(t, out, "Private Key:")
}
