// =============================
// File: internal/amm/curve/curve.go
// =============================
package curve

import (
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/solana-amm/internal/amm"
)

// wideBits is the width of the intermediate products. Values are held in
// 256-bit words but any product above 128 bits is reported as Overflow.
const wideBits = 128

var feeDenominator = uint256.NewInt(amm.FeeDenominator)

// AmountOut prices a swap on a constant-product curve with the fee taken from
// the input:
//
//	scaled    = amountIn * (10000 - fee)
//	amountOut = scaled * reserveOut / (reserveIn * 10000 + scaled)
//
// Division floors, so the rounding remainder stays in the pool.
func AmountOut(reserveIn, reserveOut, amountIn uint64, feeBps uint16) (uint64, error) {
	if uint64(feeBps) > amm.FeeDenominator {
		return 0, amm.ErrInvalidFee.Wrapf("fee %d bps exceeds %d", feeBps, amm.FeeDenominator)
	}
	feeFactor := uint256.NewInt(amm.FeeDenominator - uint64(feeBps))

	scaled, err := mul(uint256.NewInt(amountIn), feeFactor)
	if err != nil {
		return 0, err
	}
	numerator, err := mul(scaled, uint256.NewInt(reserveOut))
	if err != nil {
		return 0, err
	}
	base, err := mul(uint256.NewInt(reserveIn), feeDenominator)
	if err != nil {
		return 0, err
	}
	denominator, err := add(base, scaled)
	if err != nil {
		return 0, err
	}
	if denominator.IsZero() {
		return 0, amm.ErrNoLiquidityInPool
	}

	out := new(uint256.Int).Div(numerator, denominator)
	if !out.IsUint64() {
		return 0, amm.ErrOverflow.Wrapf("amount out does not fit in 64 bits")
	}
	return out.Uint64(), nil
}

// FeeAmount is the part of amountIn kept by the pool as fee, rounded down.
func FeeAmount(amountIn uint64, feeBps uint16) uint64 {
	fee := new(uint256.Int).Mul(uint256.NewInt(amountIn), uint256.NewInt(uint64(feeBps)))
	fee.Div(fee, feeDenominator)
	return fee.Uint64()
}

// MinAmountOut applies a slippage tolerance in basis points to an expected output.
func MinAmountOut(expected uint64, slippageBps uint16) uint64 {
	if uint64(slippageBps) >= amm.FeeDenominator {
		return 0
	}
	out := new(uint256.Int).Mul(uint256.NewInt(expected), uint256.NewInt(amm.FeeDenominator-uint64(slippageBps)))
	out.Div(out, feeDenominator)
	return out.Uint64()
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow || z.BitLen() > wideBits {
		return nil, amm.ErrOverflow.Wrapf("%s * %s exceeds %d bits", x.Dec(), y.Dec(), wideBits)
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || z.BitLen() > wideBits {
		return nil, amm.ErrOverflow.Wrapf("%s + %s exceeds %d bits", x.Dec(), y.Dec(), wideBits)
	}
	return z, nil
}
