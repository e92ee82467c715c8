// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/solana-amm/internal/amm/chain"
	"github.com/rovshanmuradov/solana-amm/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. SOLANA_AMM_LEDGER_DRIVER.
const EnvPrefix = "SOLANA_AMM"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type Config struct {
	ProgramID string       `mapstructure:"program_id"`
	Ledger    LedgerConfig `mapstructure:"ledger"`
	RPC       RPCConfig    `mapstructure:"rpc"`
	Log       LogConfig    `mapstructure:"log"`
	Journal   string       `mapstructure:"journal"`
}

type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type RPCConfig struct {
	URL         string `mapstructure:"url"`
	Retries     int    `mapstructure:"retries"`
	RetryDelay  int    `mapstructure:"retry_delay"` // ms
	Concurrency int    `mapstructure:"concurrency"`
	Commitment  string `mapstructure:"commitment"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	Debug      bool   `mapstructure:"debug"`
	Pretty     bool   `mapstructure:"pretty"`
}

const (
	DefaultProgramID   = "64dwDBXenrc7rKLJcE1qfswQSf1cimYoLigJURKvQCEG"
	DefaultRPCURL      = "https://api.mainnet-beta.solana.com"
	DefaultRetries     = 3
	DefaultRetryDelay  = 500
	DefaultConcurrency = 4
)

func defaults() map[string]interface{} {
	lc := logger.DefaultConfig()
	return map[string]interface{}{
		"program_id":      DefaultProgramID,
		"ledger.driver":   DriverMemory,
		"ledger.path":     "amm.db",
		"rpc.url":         DefaultRPCURL,
		"rpc.retries":     DefaultRetries,
		"rpc.retry_delay": DefaultRetryDelay,
		"rpc.concurrency": DefaultConcurrency,
		"rpc.commitment":  string(rpc.CommitmentConfirmed),
		"log.file":        lc.LogFile,
		"log.max_size":    lc.MaxSize,
		"log.max_age":     lc.MaxAge,
		"log.max_backups": lc.MaxBackups,
		"log.compress":    lc.Compress,
		"log.debug":       lc.Development,
		"log.pretty":      lc.Pretty,
		"journal":         "",
	}
}

// NewViper returns a viper instance with defaults and environment overrides
// registered. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads path (optional) over the defaults and environment.
func LoadConfig(path string) (*Config, error) {
	return Load(NewViper(), path)
}

// Load reads path into v, when given, and decodes the merged result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if _, err := solana.PublicKeyFromBase58(cfg.ProgramID); err != nil {
		return fmt.Errorf("invalid program_id: %w", err)
	}
	switch cfg.Ledger.Driver {
	case DriverMemory:
	case DriverSQLite:
		if cfg.Ledger.Path == "" {
			return errors.New("ledger.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown ledger.driver %q", cfg.Ledger.Driver)
	}
	if err := validateURL(cfg.RPC.URL, "http"); err != nil {
		return fmt.Errorf("invalid rpc.url: %w", err)
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	switch rpc.CommitmentType(cfg.RPC.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("invalid rpc.commitment %q", cfg.RPC.Commitment)
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.RPC.Retries < 0 {
		return errors.New("invalid rpc.retries")
	}
	if cfg.RPC.RetryDelay < 0 {
		return errors.New("invalid rpc.retry_delay")
	}
	if cfg.RPC.Concurrency <= 0 {
		return errors.New("invalid rpc.concurrency")
	}
	if cfg.Log.MaxSize < 0 || cfg.Log.MaxAge < 0 || cfg.Log.MaxBackups < 0 {
		return errors.New("log rotation settings must not be negative")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// Program returns the parsed program id. Valid after Load.
func (c *Config) Program() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

// Logger maps log settings onto the logger package.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		LogFile:     c.Log.File,
		MaxSize:     c.Log.MaxSize,
		MaxAge:      c.Log.MaxAge,
		MaxBackups:  c.Log.MaxBackups,
		Compress:    c.Log.Compress,
		Development: c.Log.Debug,
		Pretty:      c.Log.Pretty,
	}
}

// ChainOptions maps RPC settings onto the chain reader.
func (c *Config) ChainOptions() chain.Options {
	return chain.Options{
		MaxRetries:  c.RPC.Retries,
		RetryDelay:  time.Duration(c.RPC.RetryDelay) * time.Millisecond,
		Concurrency: c.RPC.Concurrency,
		Commitment:  rpc.CommitmentType(c.RPC.Commitment),
	}
}
