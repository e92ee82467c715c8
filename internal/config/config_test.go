package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
	assert.Equal(t, DriverMemory, cfg.Ledger.Driver)
	assert.Equal(t, DefaultRPCURL, cfg.RPC.URL)
	assert.Equal(t, DefaultRetries, cfg.RPC.Retries)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, DefaultProgramID, cfg.Program().String())

	opts := cfg.ChainOptions()
	assert.Equal(t, 500*time.Millisecond, opts.RetryDelay)
	assert.Equal(t, rpc.CommitmentConfirmed, opts.Commitment)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, "amm.yaml", `
ledger:
  driver: sqlite
  path: /tmp/amm-test.db
rpc:
  url: http://127.0.0.1:8899
  retries: 5
log:
  file: ""
  debug: true
journal: swaps.csv
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Ledger.Driver)
	assert.Equal(t, "/tmp/amm-test.db", cfg.Ledger.Path)
	assert.Equal(t, "http://127.0.0.1:8899", cfg.RPC.URL)
	assert.Equal(t, 5, cfg.RPC.Retries)
	assert.Equal(t, DefaultConcurrency, cfg.RPC.Concurrency)
	assert.Equal(t, "swaps.csv", cfg.Journal)

	lc := cfg.Logger()
	assert.True(t, lc.Development)
	assert.Empty(t, lc.LogFile)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SOLANA_AMM_LEDGER_DRIVER", "sqlite")
	t.Setenv("SOLANA_AMM_LEDGER_PATH", "env.db")
	t.Setenv("SOLANA_AMM_RPC_RETRIES", "9")

	path := writeConfig(t, "amm.json", `{"ledger": {"driver": "memory"}}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Ledger.Driver)
	assert.Equal(t, "env.db", cfg.Ledger.Path)
	assert.Equal(t, 9, cfg.RPC.Retries)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad program id", `{"program_id": "not-a-key"}`},
		{"unknown driver", `{"ledger": {"driver": "postgres"}}`},
		{"sqlite without path", `{"ledger": {"driver": "sqlite", "path": ""}}`},
		{"ws rpc url", `{"rpc": {"url": "ws://localhost:8900"}}`},
		{"negative retries", `{"rpc": {"retries": -1}}`},
		{"zero concurrency", `{"rpc": {"concurrency": 0}}`},
		{"bad commitment", `{"rpc": {"commitment": "eventually"}}`},
		{"negative log size", `{"log": {"max_size": -1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "amm.json", tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
