// =============================
// File: internal/amm/chain/client.go
// =============================
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// RPC is the subset of *rpc.Client the reader needs.
type RPC interface {
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error)
}

// ErrWrongOwner возникает, когда аккаунт принадлежит не той программе
var ErrWrongOwner = errors.New("account owned by unexpected program")

// Options tune retries of RPC reads.
type Options struct {
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
	Commitment  rpc.CommitmentType
}

// Reader reads pool state from a Solana RPC node. It implements
// ledger.Reader, so pools can be quoted against live chain state.
type Reader struct {
	rpc       RPC
	programID solana.PublicKey
	opts      Options
	logger    *zap.Logger
}

var _ ledger.Reader = (*Reader)(nil)

// NewReader создаёт Reader; нулевые опции заменяются значениями по умолчанию.
func NewReader(client RPC, programID solana.PublicKey, opts Options, logger *zap.Logger) *Reader {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	return &Reader{
		rpc:       client,
		programID: programID,
		opts:      opts,
		logger:    logger.Named("chain_reader"),
	}
}

// Pool fetches and decodes the Config account at addr.
func (r *Reader) Pool(ctx context.Context, addr solana.PublicKey) (*amm.Config, error) {
	accs, err := r.fetch(ctx, addr)
	if err != nil {
		return nil, err
	}
	acc := accs[0]
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, addr)
	}
	if !acc.Owner.Equals(r.programID) {
		return nil, fmt.Errorf("%w: config %s owned by %s", ErrWrongOwner, addr, acc.Owner)
	}
	return amm.DecodeConfig(acc.Data.GetBinary())
}

// TokenAccount fetches and decodes an SPL token account.
func (r *Reader) TokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
	accs, err := r.fetch(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decodeTokenAccount(addr, accs[0])
}

// Pools fetches several configs in parallel. The result is in addrs order.
func (r *Reader) Pools(ctx context.Context, addrs []solana.PublicKey) ([]*amm.Config, error) {
	out := make([]*amm.Config, len(addrs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			cfg, err := r.Pool(gCtx, addr)
			if err != nil {
				return fmt.Errorf("pool %s: %w", addr, err)
			}
			out[i] = cfg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch reads accounts in one request, retrying transport failures.
func (r *Reader) fetch(ctx context.Context, addrs ...solana.PublicKey) ([]*rpc.Account, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.opts.RetryDelay
	policy.MaxInterval = r.opts.RetryDelay * 10

	notify := func(err error, d time.Duration) {
		r.logger.Debug("Retrying account fetch", zap.Error(err), zap.Duration("backoff", d))
	}

	operation := func() ([]*rpc.Account, error) {
		res, err := r.rpc.GetMultipleAccountsWithOpts(ctx, addrs, &rpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: r.opts.Commitment,
		})
		if err != nil {
			return nil, err
		}
		if res == nil || len(res.Value) != len(addrs) {
			return nil, backoff.Permanent(fmt.Errorf("rpc returned %d accounts for %d keys", lenValue(res), len(addrs)))
		}
		return res.Value, nil
	}

	accs, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(r.opts.MaxRetries)),
		backoff.WithNotify(notify))
	if err != nil {
		r.logger.Warn("Account fetch failed", zap.Int("accounts", len(addrs)), zap.Error(err))
		return nil, err
	}
	return accs, nil
}

func lenValue(res *rpc.GetMultipleAccountsResult) int {
	if res == nil {
		return 0
	}
	return len(res.Value)
}

func decodeTokenAccount(addr solana.PublicKey, acc *rpc.Account) (*token.Account, error) {
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: token account %s owned by %s", ErrWrongOwner, addr, acc.Owner)
	}
	out := new(token.Account)
	if err := out.UnmarshalWithDecoder(bin.NewBinDecoder(acc.Data.GetBinary())); err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", addr, err)
	}
	return out, nil
}
