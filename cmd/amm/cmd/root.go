package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-amm/internal/amm/swap"
	"github.com/rovshanmuradov/solana-amm/internal/config"
	"github.com/rovshanmuradov/solana-amm/internal/events"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
	"github.com/rovshanmuradov/solana-amm/internal/ledger/memory"
	"github.com/rovshanmuradov/solana-amm/internal/ledger/sqlite"
	"github.com/rovshanmuradov/solana-amm/internal/logger"
	"github.com/rovshanmuradov/solana-amm/internal/metrics"
)

// app carries what every subcommand needs once flags and config are resolved.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// Execute runs the CLI with SIGINT/SIGTERM cancelling the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "amm",
		Short: "Constant-product AMM swap engine",
		Long: `amm runs swaps against two-asset constant-product pools.

It provides commands for:
- Deriving pool authority and vault addresses
- Creating, inspecting and locking pools on a local ledger
- Quoting and executing swaps
- Quoting against pools read from a Solana RPC node`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger == nil {
				return nil
			}
			return logger.Sync(a.logger)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml or json)")
	flags.String("program-id", config.DefaultProgramID, "AMM program id")
	flags.String("ledger", config.DriverMemory, "ledger driver: memory (per command) or sqlite (persistent)")
	flags.String("db", "amm.db", "sqlite ledger path")
	flags.String("rpc", config.DefaultRPCURL, "Solana RPC endpoint")
	flags.String("journal", "", "append swap outcomes to this CSV file")
	flags.String("log-file", logger.DefaultConfig().LogFile, "JSON log file, empty to disable")
	flags.Bool("debug", false, "enable debug logging")

	for key, name := range map[string]string{
		"program_id":    "program-id",
		"ledger.driver": "ledger",
		"ledger.path":   "db",
		"rpc.url":       "rpc",
		"journal":       "journal",
		"log.file":      "log-file",
		"log.debug":     "debug",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding flag: %v\n", err)
		}
	}

	rootCmd.AddCommand(
		newAuthorityCmd(a),
		newWalletCmd(a),
		newAccountCmd(a),
		newPoolCmd(a),
		newQuoteCmd(a),
		newSwapCmd(a),
		newRemoteCmd(a),
	)
	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	l, err := logger.New(cfg.Logger())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logger = l
	return nil
}

func (a *app) openLedger(ctx context.Context) (ledger.Ledger, error) {
	switch a.cfg.Ledger.Driver {
	case config.DriverSQLite:
		return sqlite.Open(ctx, a.cfg.Ledger.Path, a.logger)
	default:
		return memory.New(a.logger), nil
	}
}

// session is an open ledger plus the engine wired to it.
type session struct {
	ledger ledger.Ledger
	engine *swap.Engine
	close  func() error
}

func (a *app) openSession(ctx context.Context) (*session, error) {
	l, err := a.openLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	opts := []swap.Option{swap.WithMetrics(metrics.New(prometheus.NewRegistry()))}
	closers := []func() error{l.Close}

	if a.cfg.Journal != "" {
		journal, err := logger.NewSwapJournal(a.cfg.Journal, time.Second, a.logger)
		if err != nil {
			l.Close()
			return nil, err
		}
		bus := events.NewBus(a.logger, 64)
		journal.Subscribe(bus)
		opts = append(opts, swap.WithPublisher(bus))

		// bus drains before the journal closes, then the ledger
		closers = append([]func() error{
			func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return bus.Shutdown(shutdownCtx)
			},
			journal.Close,
		}, closers...)
	}

	return &session{
		ledger: l,
		engine: swap.NewEngine(a.cfg.Program(), l, a.logger, opts...),
		close: func() error {
			var errs []error
			for _, c := range closers {
				errs = append(errs, c())
			}
			return errors.Join(errs...)
		},
	}, nil
}

// withSession runs fn against a fresh session and always closes it.
func (a *app) withSession(ctx context.Context, fn func(s *session) error) (err error) {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close())
	}()
	return a.hintEphemeral(fn(s))
}

// hintEphemeral explains a missing pool or account on the memory ledger,
// which starts empty on every command.
func (a *app) hintEphemeral(err error) error {
	if err == nil || a.cfg.Ledger.Driver == config.DriverSQLite {
		return err
	}
	if errors.Is(err, ledger.ErrPoolNotFound) || errors.Is(err, ledger.ErrAccountNotFound) {
		return fmt.Errorf("%w (the memory ledger is empty at the start of every command; use --ledger sqlite to keep state between runs)", err)
	}
	return err
}
