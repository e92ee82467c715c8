package amm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("swap: %w", ErrSlippageExceeded.Wrapf("got %d, want at least %d", 9871, 9872))

	assert.True(t, errors.Is(err, ErrSlippageExceeded))
	assert.False(t, errors.Is(err, ErrPoolLocked))

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeSlippageExceeded, code)
	assert.Equal(t, "SlippageExceeded", NameOf(err))
}

func TestErrorCodesAreStable(t *testing.T) {
	tests := []struct {
		err  *Error
		code ErrorCode
	}{
		{ErrPoolLocked, 6000},
		{ErrInvalidAmount, 6001},
		{ErrNoLiquidityInPool, 6002},
		{ErrInvalidFee, 6003},
		{ErrOverflow, 6004},
		{ErrSlippageExceeded, 6005},
	}
	for _, tt := range tests {
		t.Run(tt.err.Name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestErrorClasses(t *testing.T) {
	assert.True(t, IsPolicy(ErrPoolLocked))
	assert.True(t, IsPolicy(ErrSlippageExceeded))
	assert.True(t, IsArithmetic(ErrOverflow))
	assert.True(t, IsArithmetic(ErrInvalidFee))
	assert.True(t, IsIntegrity(ErrAuthorityMismatch.Wrap(errors.New("bump 254"))))
	assert.False(t, IsIntegrity(errors.New("plain")))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("insufficient funds")
	err := ErrConstraintViolation.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ConstraintViolation (6006)")
}
