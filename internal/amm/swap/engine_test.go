package swap

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
	"github.com/rovshanmuradov/solana-amm/internal/amm/ammtest"
	"github.com/rovshanmuradov/solana-amm/internal/events"
	"github.com/rovshanmuradov/solana-amm/internal/ledger"
	"github.com/rovshanmuradov/solana-amm/internal/ledger/memory"
	"github.com/rovshanmuradov/solana-amm/internal/ledger/sqlite"
	"github.com/rovshanmuradov/solana-amm/internal/metrics"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

var ledgers = map[string]func(t *testing.T) ledger.Ledger{
	"memory": func(t *testing.T) ledger.Ledger {
		return memory.New(zaptest.NewLogger(t))
	},
	"sqlite": func(t *testing.T) ledger.Ledger {
		l, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "amm.db"), zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { l.Close() })
		return l
	},
}

// forEachLedger runs fn once per ledger implementation.
func forEachLedger(t *testing.T, fn func(t *testing.T, l ledger.Ledger)) {
	for name, newLedger := range ledgers {
		t.Run(name, func(t *testing.T) { fn(t, newLedger(t)) })
	}
}

type harness struct {
	engine   *Engine
	ledger   ledger.Ledger
	pool     *ammtest.Pool
	recorder *recorder
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, l ledger.Ledger, p ammtest.PoolParams) *harness {
	rec := &recorder{}
	m := metrics.New(prometheus.NewRegistry())
	return &harness{
		engine:   NewEngine(ammtest.ProgramID, l, zaptest.NewLogger(t), WithPublisher(rec), WithMetrics(m)),
		ledger:   l,
		pool:     ammtest.NewPool(t, l, p),
		recorder: rec,
		metrics:  m,
	}
}

// request builds a swap signed by the pool user with their current nonce.
func (h *harness) request(t *testing.T, isX bool, amountIn, minOut uint64) Request {
	t.Helper()
	req := Request{
		Accounts:     h.pool.Accounts,
		IsX:          isX,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Nonce:        h.nonce(t),
	}
	req.Signature = h.pool.Sign(t, h.engine.DepositMessage(req))
	return req
}

func (h *harness) nonce(t *testing.T) uint64 {
	t.Helper()
	n, err := h.engine.NextNonce(context.Background(), h.pool.User.PublicKey())
	require.NoError(t, err)
	return n
}

func referencePool() ammtest.PoolParams {
	return ammtest.PoolParams{
		Seed:     1,
		Fee:      30,
		ReserveX: 1_000_000,
		ReserveY: 1_000_000,
		UserX:    50_000,
		UserY:    50_000,
	}
}

func TestSwapReferenceScenario(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		h := newHarness(t, l, referencePool())
		before := h.pool.Snapshot(t, l)

		_, err := h.engine.Swap(ctx, h.request(t, true, 10_000, 9_872))
		require.ErrorIs(t, err, amm.ErrSlippageExceeded)
		assert.True(t, amm.IsPolicy(err))
		assert.Equal(t, before, h.pool.Snapshot(t, l))
		assert.Equal(t, uint64(0), h.nonce(t))

		out, err := h.engine.Swap(ctx, h.request(t, true, 10_000, 9_871))
		require.NoError(t, err)
		assert.Equal(t, uint64(9_871), out)
		assert.Equal(t, ammtest.Balances{
			VaultX: 1_010_000,
			VaultY: 990_129,
			UserX:  40_000,
			UserY:  59_871,
		}, h.pool.Snapshot(t, l))
		assert.Equal(t, uint64(1), h.nonce(t))
	})
}

func TestSwapCheckOrder(t *testing.T) {
	tests := []struct {
		name   string
		params func(p *ammtest.PoolParams)
		isX    bool
		amount uint64
		want   *amm.Error
	}{
		{
			name:   "locked wins over zero amount",
			params: func(p *ammtest.PoolParams) { p.Locked = true },
			amount: 0,
			want:   amm.ErrPoolLocked,
		},
		{
			name:   "zero amount wins over empty pool",
			params: func(p *ammtest.PoolParams) { p.ReserveX = 0 },
			amount: 0,
			want:   amm.ErrInvalidAmount,
		},
		{
			name:   "empty output side",
			params: func(p *ammtest.PoolParams) { p.ReserveY = 0 },
			isX:    true,
			amount: 1,
			want:   amm.ErrNoLiquidityInPool,
		},
		{
			name:   "empty input side",
			params: func(p *ammtest.PoolParams) { p.ReserveY = 0 },
			isX:    false,
			amount: 1_000_000,
			want:   amm.ErrNoLiquidityInPool,
		},
		{
			name:   "fee above denominator",
			params: func(p *ammtest.PoolParams) { p.Fee = 10_001 },
			isX:    true,
			amount: 10,
			want:   amm.ErrInvalidFee,
		},
		{
			name: "intermediate product above 128 bits",
			params: func(p *ammtest.PoolParams) {
				p.ReserveX = 1
				p.ReserveY = ^uint64(0)
			},
			isX:    true,
			amount: ^uint64(0),
			want:   amm.ErrOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
				p := referencePool()
				tt.params(&p)
				h := newHarness(t, l, p)
				before := h.pool.Snapshot(t, l)

				_, err := h.engine.Swap(context.Background(), h.request(t, tt.isX, tt.amount, 0))
				require.ErrorIs(t, err, tt.want)
				assert.Equal(t, before, h.pool.Snapshot(t, l))

				ev, ok := h.recorder.last().(events.SwapRejectedEvent)
				require.True(t, ok)
				assert.Equal(t, tt.want.Name, ev.Code)
			})
		})
	}
}

func TestSwapFullFeeYieldsNothing(t *testing.T) {
	p := referencePool()
	p.Fee = amm.FeeDenominator
	h := newHarness(t, memory.New(zaptest.NewLogger(t)), p)

	out, err := h.engine.Swap(context.Background(), h.request(t, true, 1_000, 0))
	require.NoError(t, err)
	assert.Zero(t, out)
	assert.Equal(t, uint64(1_001_000), h.pool.Snapshot(t, h.ledger).VaultX)
}

func TestSwapRollsBackWhenSecondLegFails(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		h := newHarness(t, l, referencePool())
		// user_y is one short of overflowing, so crediting the output fails
		require.NoError(t, l.MintTo(ctx, h.pool.Accounts.UserY, ^uint64(0)-50_000-5))
		before := h.pool.Snapshot(t, l)

		_, err := h.engine.Swap(ctx, h.request(t, true, 10_000, 0))
		require.ErrorIs(t, err, ledger.ErrBalanceOverflow)
		assert.Equal(t, before, h.pool.Snapshot(t, l))
		// the nonce spent by the deposit leg is restored
		assert.Equal(t, uint64(0), h.nonce(t))
	})
}

func TestSwapReplayRejected(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		h := newHarness(t, l, referencePool())

		// loose enough that the replay still clears the slippage check
		req := h.request(t, true, 10_000, 9_000)
		_, err := h.engine.Swap(ctx, req)
		require.NoError(t, err)
		after := h.pool.Snapshot(t, l)

		_, err = h.engine.Swap(ctx, req)
		require.ErrorIs(t, err, ledger.ErrInvalidNonce)
		assert.Equal(t, after, h.pool.Snapshot(t, l))
		assert.Equal(t, uint64(1), h.nonce(t))

		ev, ok := h.recorder.last().(events.SwapRejectedEvent)
		require.True(t, ok)
		assert.Empty(t, ev.Code)
	})
}

func TestSwapRejectsChangedIntent(t *testing.T) {
	tests := []struct {
		name   string
		change func(req *Request)
	}{
		{"minimum lowered", func(req *Request) { req.MinAmountOut = 0 }},
		{"direction flipped", func(req *Request) { req.IsX = false }},
		{"amount raised", func(req *Request) { req.AmountIn = 20_000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
				ctx := context.Background()
				h := newHarness(t, l, referencePool())
				before := h.pool.Snapshot(t, l)

				signed := h.request(t, true, 10_000, 9_871)
				changed := signed
				tt.change(&changed)

				_, err := h.engine.Swap(ctx, changed)
				require.ErrorIs(t, err, ledger.ErrUnauthorizedSigner)
				assert.Equal(t, before, h.pool.Snapshot(t, l))
				assert.Equal(t, uint64(0), h.nonce(t))

				out, err := h.engine.Swap(ctx, signed)
				require.NoError(t, err)
				assert.Equal(t, uint64(9_871), out)
			})
		})
	}
}

func TestSwapSignatureBoundToPool(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		h := newHarness(t, l, referencePool())
		req := h.request(t, true, 10_000, 0)

		other := req
		other.Accounts.Config = solana.NewWallet().PublicKey()
		assert.NotEqual(t, h.engine.DepositMessage(req), h.engine.DepositMessage(other))
	})
}

func TestSwapLedgerFailuresPassThrough(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		h := newHarness(t, l, referencePool())
		before := h.pool.Snapshot(t, l)

		_, err := h.engine.Swap(ctx, h.request(t, true, 50_001, 0))
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		_, ok := amm.CodeOf(err)
		assert.False(t, ok)

		req := h.request(t, true, 100, 0)
		wrong := req
		wrong.AmountIn = 99
		req.Signature = h.pool.Sign(t, h.engine.DepositMessage(wrong))
		_, err = h.engine.Swap(ctx, req)
		require.ErrorIs(t, err, ledger.ErrUnauthorizedSigner)

		assert.Equal(t, before, h.pool.Snapshot(t, l))
	})
}

func TestSwapRejectsTamperedAccounts(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		h := newHarness(t, l, referencePool())
		other := ammtest.NewPool(t, l, referencePool2())
		before := h.pool.Snapshot(t, l)

		// output vault of another pool
		req := h.request(t, true, 10_000, 0)
		req.Accounts.VaultY = other.Accounts.VaultY
		_, err := h.engine.Swap(ctx, req)
		require.Error(t, err)
		assert.True(t, amm.IsIntegrity(err))

		// an engine for another program cannot re-derive the authority
		foreign := NewEngine(solana.NewWallet().PublicKey(), l, zaptest.NewLogger(t))
		_, err = foreign.Swap(ctx, h.request(t, true, 10_000, 0))
		require.ErrorIs(t, err, amm.ErrAuthorityMismatch)

		assert.Equal(t, before, h.pool.Snapshot(t, l))
	})
}

func referencePool2() ammtest.PoolParams {
	p := referencePool()
	p.Seed = 2
	return p
}

func TestSwapInvariantGrows(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		p := referencePool()
		p.ReserveX, p.ReserveY = 3_000_000, 700_000
		p.UserX, p.UserY = 10_000_000, 10_000_000
		h := newHarness(t, l, p)

		product := func(b ammtest.Balances) *uint256.Int {
			return new(uint256.Int).Mul(uint256.NewInt(b.VaultX), uint256.NewInt(b.VaultY))
		}
		prev := product(h.pool.Snapshot(t, l))

		amounts := []uint64{1, 7, 999, 12_345, 250_000, 3, 1_000_000, 42}
		for i, amount := range amounts {
			isX := i%2 == 0
			_, err := h.engine.Swap(ctx, h.request(t, isX, amount, 0))
			require.NoError(t, err)

			b := h.pool.Snapshot(t, l)
			assert.Positive(t, b.VaultX)
			assert.Positive(t, b.VaultY)
			cur := product(b)
			assert.False(t, cur.Lt(prev), "k shrank after swap %d", i)
			prev = cur
		}
	})
}

func TestSwapRoundTripLosesValue(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		h := newHarness(t, l, referencePool())

		out, err := h.engine.Swap(ctx, h.request(t, true, 20_000, 0))
		require.NoError(t, err)
		back, err := h.engine.Swap(ctx, h.request(t, false, out, 0))
		require.NoError(t, err)

		assert.Less(t, back, uint64(20_000))
		b := h.pool.Snapshot(t, l)
		assert.Equal(t, uint64(50_000-20_000)+back, b.UserX)
		assert.Equal(t, uint64(50_000), b.UserY)
	})
}

func TestSwapEventsAndMetrics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.New(zaptest.NewLogger(t)), referencePool())

	_, err := h.engine.Swap(ctx, h.request(t, true, 10_000, 0))
	require.NoError(t, err)

	ev, ok := h.recorder.last().(events.SwapExecutedEvent)
	require.True(t, ok)
	assert.Equal(t, h.pool.Accounts.Config, ev.Pool)
	assert.Equal(t, uint64(9_871), ev.AmountOut)
	assert.Equal(t, uint64(30), ev.Fee)
	assert.Equal(t, uint64(1_000_000), ev.ReserveIn)

	_, err = h.engine.Swap(ctx, h.request(t, true, 10_000, ^uint64(0)))
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := NewEngine(ammtest.ProgramID, h.ledger, zaptest.NewLogger(t), WithMetrics(m))
	_, err = e.Swap(ctx, h.request(t, false, 0, 0))
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	n, err := testutil.GatherAndCount(reg, "amm_swaps_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQuoteMatchesSwap(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l ledger.Ledger) {
		ctx := context.Background()
		h := newHarness(t, l, referencePool())

		q, err := h.engine.Quote(ctx, h.pool.Accounts.Config, true, 10_000)
		require.NoError(t, err)
		assert.Equal(t, uint64(9_871), q.AmountOut)
		assert.Equal(t, "1", q.SpotPrice.String())

		out, err := h.engine.Swap(ctx, h.request(t, true, 10_000, q.AmountOut))
		require.NoError(t, err)
		assert.Equal(t, q.AmountOut, out)

		info, err := h.engine.Pool(ctx, h.pool.Accounts.Config)
		require.NoError(t, err)
		rx, ry, err := q.ReservesAfter()
		require.NoError(t, err)
		assert.Equal(t, rx, info.ReserveX)
		assert.Equal(t, ry, info.ReserveY)

		_, err = h.engine.Quote(ctx, h.pool.Accounts.Config, true, 0)
		assert.ErrorIs(t, err, amm.ErrInvalidAmount)
	})
}
