// Package swap is the exchange core: it prices a swap on the pool's
// constant-product curve and settles both legs in one ledger unit of work.
package swap

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/amm/accounts"
	"github.com/rovshanmuradov/solana-amm/internal/amm/curve"
	"github.com/rovshanmuradov/solana-amm/internal/amm/custody"
	"github.com/rovshanmuradov/solana-amm/internal/events"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
	"github.com/rovshanmuradov/solana-amm/internal/metrics"
)

// Engine executes swaps for pools of one program.
type Engine struct {
	programID solana.PublicKey
	ledger    ledger.Ledger
	logger    *zap.Logger
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets where swap and pool events go.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine on top of l.
func NewEngine(programID solana.PublicKey, l ledger.Ledger, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		programID: programID,
		ledger:    l,
		logger:    logger.Named("swap_engine"),
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProgramID returns the program the engine derives pool authorities under.
func (e *Engine) ProgramID() solana.PublicKey {
	return e.programID
}

// Request is one swap call.
type Request struct {
	Accounts     accounts.SwapAccounts
	IsX          bool // true when the input side is X
	AmountIn     uint64
	MinAmountOut uint64
	// Nonce is the user's next ledger nonce, see Engine.NextNonce.
	Nonce uint64
	// Signature is the user's signature over DepositMessage(req).
	Signature solana.Signature
}

// Intent is the part of req the user's signature commits to.
func (req Request) Intent() custody.Intent {
	return custody.Intent{
		IsX:          req.IsX,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		Nonce:        req.Nonce,
	}
}

// DepositMessage returns the bytes the user signs for req. The signature
// covers the pool, direction, amounts and nonce, so it authorizes exactly
// one swap.
func (e *Engine) DepositMessage(req Request) []byte {
	return custody.New(e.programID, req.Accounts, nil).DepositMessage(req.Intent())
}

// NextNonce returns the nonce signer's next signed request must carry.
func (e *Engine) NextNonce(ctx context.Context, signer solana.PublicKey) (uint64, error) {
	return e.ledger.NextNonce(ctx, signer)
}

// Result describes an executed swap.
type Result struct {
	AmountOut  uint64
	Fee        uint64
	ReserveIn  uint64
	ReserveOut uint64
}

// Swap executes req and returns the realized output amount. Either both
// transfers are applied or none is.
func (e *Engine) Swap(ctx context.Context, req Request) (uint64, error) {
	res, err := e.SwapDetailed(ctx, req)
	if err != nil {
		return 0, err
	}
	return res.AmountOut, nil
}

// SwapDetailed is Swap returning the pre-swap reserves and fee as well.
func (e *Engine) SwapDetailed(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	pool := req.Accounts.Config

	var res Result
	err := e.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		state, err := accounts.Load(ctx, tx, req.Accounts)
		if err != nil {
			return err
		}
		if err := accounts.Validate(e.programID, req.Accounts, state); err != nil {
			return err
		}

		amountOut, reserveIn, reserveOut, err := price(state, req.IsX, req.AmountIn)
		if err != nil {
			return err
		}
		if amountOut < req.MinAmountOut {
			return amm.ErrSlippageExceeded.Wrapf("amount out %d below minimum %d", amountOut, req.MinAmountOut)
		}

		c := custody.New(e.programID, req.Accounts, state.Config)
		if err := c.Deposit(ctx, tx, req.Intent(), req.Signature); err != nil {
			return err
		}
		if err := c.Withdraw(ctx, tx, !req.IsX, amountOut); err != nil {
			return err
		}

		res = Result{
			AmountOut:  amountOut,
			Fee:        curve.FeeAmount(req.AmountIn, state.Config.Fee),
			ReserveIn:  reserveIn,
			ReserveOut: reserveOut,
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		e.reject(req, err, elapsed)
		return Result{}, err
	}

	e.logger.Info("Swap executed",
		zap.String("pool", pool.String()),
		zap.String("user", req.Accounts.User.String()),
		zap.Bool("is_x", req.IsX),
		zap.Uint64("amount_in", req.AmountIn),
		zap.Uint64("amount_out", res.AmountOut),
		zap.Duration("elapsed", elapsed))

	e.metrics.ObserveSwap(metrics.ResultSuccess, "", elapsed)
	e.metrics.AddVolume(pool.String(), req.IsX, req.AmountIn)
	vaultX, vaultY := res.ReserveIn+req.AmountIn, res.ReserveOut-res.AmountOut
	if !req.IsX {
		vaultX, vaultY = vaultY, vaultX
	}
	e.metrics.SetReserves(pool.String(), vaultX, vaultY)

	e.publish(events.SwapExecutedEvent{
		BaseEvent:  events.NewBase(events.SwapExecuted),
		Pool:       pool,
		User:       req.Accounts.User,
		IsX:        req.IsX,
		AmountIn:   req.AmountIn,
		AmountOut:  res.AmountOut,
		Fee:        res.Fee,
		ReserveIn:  res.ReserveIn,
		ReserveOut: res.ReserveOut,
	})
	return res, nil
}

// price runs the policy checks in order and prices the swap.
func price(state *accounts.State, isX bool, amountIn uint64) (amountOut, reserveIn, reserveOut uint64, err error) {
	if state.Config.Locked {
		return 0, 0, 0, amm.ErrPoolLocked
	}
	if amountIn == 0 {
		return 0, 0, 0, amm.ErrInvalidAmount
	}
	reserveIn, reserveOut = amm.Reserves(isX, state.VaultX.Amount, state.VaultY.Amount)
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, 0, amm.ErrNoLiquidityInPool
	}
	amountOut, err = curve.AmountOut(reserveIn, reserveOut, amountIn, state.Config.Fee)
	if err != nil {
		return 0, 0, 0, err
	}
	return amountOut, reserveIn, reserveOut, nil
}

func (e *Engine) reject(req Request, err error, elapsed time.Duration) {
	name := amm.NameOf(err)
	result := metrics.ResultRejected
	fields := []zap.Field{
		zap.String("pool", req.Accounts.Config.String()),
		zap.Bool("is_x", req.IsX),
		zap.Uint64("amount_in", req.AmountIn),
		zap.Uint64("min_amount_out", req.MinAmountOut),
		zap.Error(err),
	}

	switch {
	case amm.IsIntegrity(err):
		result = metrics.ResultFailed
		e.logger.Error("Swap aborted: account integrity fault", fields...)
	case amm.IsArithmetic(err):
		result = metrics.ResultFailed
		e.logger.Warn("Swap aborted: arithmetic fault", fields...)
	case name != "":
		e.logger.Info("Swap rejected", append(fields, zap.String("code", name))...)
	default:
		result = metrics.ResultFailed
		e.logger.Warn("Swap failed in ledger", fields...)
	}

	e.metrics.ObserveSwap(result, name, elapsed)
	e.publish(events.SwapRejectedEvent{
		BaseEvent:    events.NewBase(events.SwapRejected),
		Pool:         req.Accounts.Config,
		User:         req.Accounts.User,
		IsX:          req.IsX,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		Code:         name,
		Error:        err,
	})
}

func (e *Engine) publish(ev events.Event) {
	if err := e.publisher.Publish(ev); err != nil {
		e.logger.Debug("Event not published",
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
	}
}
