package curve

import (
	"math/bits"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
)

var hundred = decimal.NewFromInt(100)

// Quote describes the expected result of a swap against given reserves.
type Quote struct {
	AmountIn       uint64
	AmountOut      uint64
	Fee            uint64
	ReserveIn      uint64
	ReserveOut     uint64
	SpotPrice      decimal.Decimal // reserveOut / reserveIn before the swap
	ExecutionPrice decimal.Decimal // amountOut / amountIn
	PriceImpact    decimal.Decimal // percent difference between spot and execution price
}

// NewQuote prices amountIn against the reserves with the same checks as a swap.
func NewQuote(reserveIn, reserveOut, amountIn uint64, feeBps uint16) (Quote, error) {
	if amountIn == 0 {
		return Quote{}, amm.ErrInvalidAmount
	}
	if reserveIn == 0 || reserveOut == 0 {
		return Quote{}, amm.ErrNoLiquidityInPool
	}

	out, err := AmountOut(reserveIn, reserveOut, amountIn, feeBps)
	if err != nil {
		return Quote{}, err
	}

	spot := decimal.NewFromUint64(reserveOut).Div(decimal.NewFromUint64(reserveIn))
	exec := decimal.NewFromUint64(out).Div(decimal.NewFromUint64(amountIn))
	impact := spot.Sub(exec).Div(spot).Mul(hundred)

	return Quote{
		AmountIn:       amountIn,
		AmountOut:      out,
		Fee:            FeeAmount(amountIn, feeBps),
		ReserveIn:      reserveIn,
		ReserveOut:     reserveOut,
		SpotPrice:      spot,
		ExecutionPrice: exec,
		PriceImpact:    impact,
	}, nil
}

// ReservesAfter returns the pool balances once the quoted swap settles. The
// input vault can exceed 64 bits near the top of the range, which the ledger
// would refuse to credit; that case reports amm.ErrOverflow.
func (q Quote) ReservesAfter() (reserveIn, reserveOut uint64, err error) {
	reserveIn, carry := bits.Add64(q.ReserveIn, q.AmountIn, 0)
	if carry != 0 {
		return 0, 0, amm.ErrOverflow.Wrapf("input reserve %d + %d", q.ReserveIn, q.AmountIn)
	}
	// AmountOut < ReserveOut whenever AmountIn fits the curve
	return reserveIn, q.ReserveOut - q.AmountOut, nil
}
